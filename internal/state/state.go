package state

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gbarros/wamux/internal/bus"
)

// Status represents one session handle's lifecycle state.
type Status string

const (
	Idle         Status = "IDLE"
	Connecting   Status = "CONNECTING"
	QRPending    Status = "QR_PENDING"
	Connected    Status = "CONNECTED"
	Reconnecting Status = "RECONNECTING"
	LoggedOut    Status = "LOGGED_OUT"
	Error        Status = "ERROR"
)

// validTransitions defines allowed status transitions. LoggedOut and Error
// are terminal: a new handle must be created to retry. An explicit logout can
// land at any moment, so LoggedOut is reachable from every live status.
// QRPending repeats while the protocol refreshes the pairing code.
var validTransitions = map[Status][]Status{
	Idle:         {Connecting, LoggedOut},
	Connecting:   {QRPending, Connected, Reconnecting, LoggedOut, Error},
	QRPending:    {QRPending, Connected, Reconnecting, LoggedOut},
	Connected:    {Reconnecting, LoggedOut},
	Reconnecting: {LoggedOut},
	LoggedOut:    {},
	Error:        {},
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == LoggedOut || s == Error
}

// Machine tracks and enforces one session's status transitions.
type Machine struct {
	mu        sync.RWMutex
	current   Status
	sessionID string
	bus       *bus.Bus
}

// NewMachine creates a machine starting in Idle. The bus may be nil.
func NewMachine(sessionID string, b *bus.Bus) *Machine {
	return &Machine{
		current:   Idle,
		sessionID: sessionID,
		bus:       b,
	}
}

// Current returns the current status.
func (m *Machine) Current() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new status. Returns an error and leaves
// the status unchanged if the move is not in the transition table.
func (m *Machine) Transition(to Status) error {
	m.mu.Lock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	from := m.current
	m.current = to
	m.mu.Unlock()

	if m.bus != nil && from != to {
		m.bus.Publish(bus.Event{
			Kind:      "session.status_changed",
			SessionID: m.sessionID,
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From Status
	To   Status
}
