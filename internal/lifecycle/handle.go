package lifecycle

import (
	"sync"
	"time"

	"github.com/gbarros/wamux/internal/bus"
	"github.com/gbarros/wamux/internal/convstore"
	"github.com/gbarros/wamux/internal/protocol"
	"github.com/gbarros/wamux/internal/state"
)

// Handle is one live session: its status machine, its conversation
// projection and, once creation succeeded, its protocol client. A handle is
// never reused across reconnects; supersession creates a fresh one.
type Handle struct {
	id        string
	createdAt time.Time
	machine   *state.Machine
	store     *convstore.Store

	mu     sync.RWMutex
	client protocol.Client
}

func newHandle(id string, b *bus.Bus) *Handle {
	return &Handle{
		id:        id,
		createdAt: time.Now(),
		machine:   state.NewMachine(id, b),
		store:     convstore.New(),
	}
}

// ID returns the session id.
func (h *Handle) ID() string {
	return h.id
}

// CreatedAt returns when this handle was created.
func (h *Handle) CreatedAt() time.Time {
	return h.createdAt
}

// Status returns the handle's current lifecycle status.
func (h *Handle) Status() state.Status {
	return h.machine.Current()
}

// Store returns the handle's conversation projection.
func (h *Handle) Store() *convstore.Store {
	return h.store
}

// Client returns the protocol client, or nil before creation completed.
func (h *Handle) Client() protocol.Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.client
}

func (h *Handle) setClient(c protocol.Client) {
	h.mu.Lock()
	h.client = c
	h.mu.Unlock()
}

// discard tears the connection down without any protocol-level goodbye. Used
// when a handle is superseded.
func (h *Handle) discard() {
	if c := h.Client(); c != nil {
		c.Disconnect()
	}
}
