package wa

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/gbarros/wamux/internal/protocol"
)

func newStreamClient() *Client {
	c := &Client{
		logger:    zap.NewNop(),
		sessionID: "s1",
		events:    make(chan protocol.Event, 4),
		wake:      make(chan struct{}, 1),
	}
	go c.pump()
	return c
}

// TestBurstKeepsEveryEvent: a producer far ahead of the consumer must not
// lose anything. A lost close update would leave the session wedged on a
// dead socket, a lost message batch would hole the projection.
func TestBurstKeepsEveryEvent(t *testing.T) {
	c := newStreamClient()

	const n = 200
	for i := range n {
		c.emit(protocol.ConnectionUpdate{State: protocol.ConnConnecting, Reason: i})
	}
	c.emit(protocol.ConnectionUpdate{State: protocol.ConnClose, Reason: 500})
	c.stop()

	var got []protocol.ConnectionUpdate
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt, ok := <-c.Events():
			if !ok {
				if len(got) != n+1 {
					t.Fatalf("received %d events, want %d", len(got), n+1)
				}
				for i := range n {
					if got[i].Reason != i {
						t.Fatalf("event %d has reason %d, order broken", i, got[i].Reason)
					}
				}
				last := got[n]
				if last.State != protocol.ConnClose || last.Reason != 500 {
					t.Fatalf("last event = %+v, want the close update", last)
				}
				return
			}
			got = append(got, evt.(protocol.ConnectionUpdate))
		case <-deadline:
			t.Fatalf("stream did not close, received %d events", len(got))
		}
	}
}

func TestEmitAfterStopIsDiscarded(t *testing.T) {
	c := newStreamClient()
	c.emit(protocol.ConnectionUpdate{State: protocol.ConnOpen})
	c.stop()
	c.emit(protocol.ConnectionUpdate{State: protocol.ConnClose, Reason: 500})

	var got []protocol.Event
	for evt := range c.Events() {
		got = append(got, evt)
	}
	if len(got) != 1 {
		t.Fatalf("received %d events, want 1 (post-stop emit discarded)", len(got))
	}
}

func TestStopIsIdempotent(t *testing.T) {
	c := newStreamClient()
	c.stop()
	c.stop()

	select {
	case _, ok := <-c.Events():
		if ok {
			t.Fatal("unexpected event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close")
	}
}
