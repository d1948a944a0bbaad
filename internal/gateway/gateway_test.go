package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/gbarros/wamux/internal/bus"
	"github.com/gbarros/wamux/internal/lifecycle"
	"github.com/gbarros/wamux/internal/meta"
	"github.com/gbarros/wamux/internal/protocol"
	"github.com/gbarros/wamux/internal/registry"
	"github.com/gbarros/wamux/internal/state"
)

type fakeClient struct {
	events    chan protocol.Event
	closeOnce sync.Once
	sendErr   error
	mu        sync.Mutex
	sent      [][2]string
}

func newFakeClient() *fakeClient {
	return &fakeClient{events: make(chan protocol.Event, 16)}
}

func (c *fakeClient) Events() <-chan protocol.Event { return c.events }
func (c *fakeClient) Connect(context.Context) error { return nil }
func (c *fakeClient) Disconnect() {
	c.closeOnce.Do(func() { close(c.events) })
}
func (c *fakeClient) Logout(context.Context) error { return nil }
func (c *fakeClient) SendText(_ context.Context, jid, text string) (string, error) {
	if c.sendErr != nil {
		return "", c.sendErr
	}
	c.mu.Lock()
	c.sent = append(c.sent, [2]string{jid, text})
	c.mu.Unlock()
	return "srv-42", nil
}
func (c *fakeClient) FetchChats(context.Context) ([]protocol.ChatInfo, error) { return nil, nil }
func (c *fakeClient) SelfJID() string                                         { return "self@s.whatsapp.net" }

type fakeFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
}

func (f *fakeFactory) NewClient(context.Context, string) (protocol.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := newFakeClient()
	f.clients = append(f.clients, c)
	return c, nil
}

func (f *fakeFactory) made() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

type fakeProvider struct {
	has bool
}

func (f *fakeProvider) HasCredentials(string) bool    { return f.has }
func (f *fakeProvider) PersistCreds(string) error     { return nil }
func (f *fakeProvider) DeleteCredentials(string) error { return nil }

type nopRecorder struct{}

func (nopRecorder) RecordConnection(*meta.Connection) error { return nil }

func newGateway(t *testing.T, hasCreds bool) (*Gateway, *fakeFactory, *lifecycle.Supervisor) {
	t.Helper()
	factory := &fakeFactory{}
	provider := &fakeProvider{has: hasCreds}
	sup := lifecycle.NewSupervisor(factory, registry.New[*lifecycle.Handle](), provider,
		nopRecorder{}, bus.New(), lifecycle.Options{ReconnectDelay: time.Second}, zap.NewNop())
	return New(sup, provider, zap.NewNop()), factory, sup
}

func TestCreateSessionIdempotent(t *testing.T) {
	g, factory, _ := newGateway(t, true)

	st1, err := g.CreateSession(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	st2, err := g.CreateSession(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if st1 != st2 {
		t.Errorf("statuses differ: %s vs %s", st1, st2)
	}
	if factory.made() != 1 {
		t.Errorf("constructed %d clients, want 1", factory.made())
	}
}

func TestCreateSessionRejectsBadID(t *testing.T) {
	g, factory, _ := newGateway(t, true)

	if _, err := g.CreateSession(context.Background(), "../escape"); err == nil {
		t.Error("bad id should be rejected")
	}
	if factory.made() != 0 {
		t.Error("no client may be constructed for a rejected id")
	}
}

func TestReconnectWithoutCredentials(t *testing.T) {
	g, factory, _ := newGateway(t, false)

	_, err := g.ReconnectSession(context.Background(), "s1")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
	if factory.made() != 0 {
		t.Errorf("constructed %d clients, want 0", factory.made())
	}
}

func TestReconnectReplacesLiveHandle(t *testing.T) {
	g, factory, sup := newGateway(t, true)

	if _, err := g.CreateSession(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	h1, _ := sup.Registry().Get("s1")

	if _, err := g.ReconnectSession(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	h2, ok := sup.Registry().Get("s1")
	if !ok || h1 == h2 {
		t.Error("reconnect should register a fresh handle")
	}
	if factory.made() != 2 {
		t.Errorf("constructed %d clients, want 2", factory.made())
	}
}

func TestQueriesRequireLiveHandle(t *testing.T) {
	g, _, _ := newGateway(t, true)

	if _, err := g.GetChats("ghost"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetChats err = %v, want ErrSessionNotFound", err)
	}
	if _, err := g.GetChatMessages("ghost", "a@g.us"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetChatMessages err = %v, want ErrSessionNotFound", err)
	}
	if _, err := g.SendMessage(context.Background(), "ghost", "a@g.us", "hi"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("SendMessage err = %v, want ErrSessionNotFound", err)
	}
	if _, err := g.Status("ghost"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Status err = %v, want ErrSessionNotFound", err)
	}
	if err := g.MarkRead("ghost", "a@g.us"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("MarkRead err = %v, want ErrSessionNotFound", err)
	}
}

func TestGetChatMessagesMarksRead(t *testing.T) {
	g, _, sup := newGateway(t, true)

	if _, err := g.CreateSession(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	h, _ := sup.Registry().Get("s1")
	h.Store().IngestMessage(protocol.MessageInfo{ID: "m1", ChatJID: "a@g.us", Timestamp: 100, Text: "hi"})

	if c, _ := h.Store().GetChat("a@g.us"); c.Unread != 1 {
		t.Fatalf("unread = %d, want 1 before read", c.Unread)
	}

	msgs, err := g.GetChatMessages("s1", "a@g.us")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if c, _ := h.Store().GetChat("a@g.us"); c.Unread != 0 {
		t.Errorf("unread = %d, want 0 after read", c.Unread)
	}
}

func TestSendMessage(t *testing.T) {
	g, factory, _ := newGateway(t, true)

	if _, err := g.CreateSession(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}

	msgID, err := g.SendMessage(context.Background(), "s1", "dest@s.whatsapp.net", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if msgID != "srv-42" {
		t.Errorf("msgID = %q, want srv-42", msgID)
	}

	factory.clients[0].sendErr = errors.New("socket closed")
	if _, err := g.SendMessage(context.Background(), "s1", "dest@s.whatsapp.net", "again"); err == nil {
		t.Error("send failure should propagate")
	}
}

func TestStatusAndList(t *testing.T) {
	g, _, _ := newGateway(t, true)

	if _, err := g.CreateSession(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	st, err := g.Status("s1")
	if err != nil {
		t.Fatal(err)
	}
	if st != state.Connecting {
		t.Errorf("status = %s, want CONNECTING before any connection update", st)
	}

	infos := g.ListSessions()
	if len(infos) != 1 || infos[0].ID != "s1" {
		t.Errorf("ListSessions = %+v, want one entry for s1", infos)
	}
}
