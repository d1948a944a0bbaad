package bus

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Bus is an in-process publish/subscribe notification bus. Subscribers filter
// by kind-namespace prefix and optionally by session id.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	namespace string
	sessionID string // empty matches all sessions
	ch        chan Event
}

// New creates a new bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish assigns an event id and timestamp (when unset) and delivers the
// event to every matching subscriber without blocking.
func (b *Bus) Publish(evt Event) {
	if evt.EventID == "" {
		evt.EventID = uuid.New().String()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !strings.HasPrefix(evt.Kind, sub.namespace) {
			continue
		}
		if sub.sessionID != "" && sub.sessionID != evt.SessionID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Drop if the subscriber is full; delivery is best-effort.
		}
	}
}

// Subscribe returns a channel receiving events whose kind starts with
// namespace, plus an unsubscribe function.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	return b.subscribe(namespace, "", bufSize)
}

// SubscribeSession is Subscribe restricted to a single session id.
func (b *Bus) SubscribeSession(namespace, sessionID string, bufSize int) (<-chan Event, func()) {
	return b.subscribe(namespace, sessionID, bufSize)
}

func (b *Bus) subscribe(namespace, sessionID string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{namespace: namespace, sessionID: sessionID, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
