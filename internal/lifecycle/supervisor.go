// Package lifecycle owns the session state machine's transitions and their
// side effects: client creation, reconnection after transient closes, and
// logout. One Supervisor serves all sessions; each session's events arrive
// serialized through its own dispatcher.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gbarros/wamux/internal/authstate"
	"github.com/gbarros/wamux/internal/bus"
	"github.com/gbarros/wamux/internal/dispatch"
	"github.com/gbarros/wamux/internal/meta"
	"github.com/gbarros/wamux/internal/protocol"
	"github.com/gbarros/wamux/internal/qr"
	"github.com/gbarros/wamux/internal/registry"
	"github.com/gbarros/wamux/internal/state"
)

// ErrSessionNotFound is returned by commands against an id with no live
// handle, or reconnects with no persisted credentials.
var ErrSessionNotFound = errors.New("session not found")

// QRCodePayload carries a fresh pairing code.
type QRCodePayload struct {
	Code string
}

// ReadyPayload announces a session reached the connected state.
type ReadyPayload struct {
	SelfJID string
}

// DisconnectedPayload announces a transient connection loss.
type DisconnectedPayload struct {
	Reason       int
	Reconnecting bool
}

// ErrorPayload carries an asynchronous session failure.
type ErrorPayload struct {
	Error string
}

// Options tunes supervisor behavior.
type Options struct {
	// ReconnectDelay is the fixed wait before a dropped session reconnects.
	ReconnectDelay time.Duration
	// QRPath, when set, locates where a session's pairing image is written.
	QRPath func(sessionID string) string
}

// Supervisor drives session creation, reconnection and logout for all
// sessions, and owns the registry mutations those transitions imply.
type Supervisor struct {
	factory  protocol.Factory
	reg      *registry.Registry[*Handle]
	auth     authstate.Provider
	recorder meta.Recorder
	bus      *bus.Bus
	opts     Options
	logger   *zap.Logger
}

// NewSupervisor creates a supervisor.
func NewSupervisor(factory protocol.Factory, reg *registry.Registry[*Handle], auth authstate.Provider, recorder meta.Recorder, b *bus.Bus, opts Options, logger *zap.Logger) *Supervisor {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	return &Supervisor{
		factory:  factory,
		reg:      reg,
		auth:     auth,
		recorder: recorder,
		bus:      b,
		opts:     opts,
		logger:   logger,
	}
}

// Registry returns the session registry.
func (s *Supervisor) Registry() *registry.Registry[*Handle] {
	return s.reg
}

// Ensure returns the registered handle for id, creating and starting a new
// session only when none exists. Idempotent: a second call while a handle is
// live never constructs a second client.
func (s *Supervisor) Ensure(ctx context.Context, id string) (*Handle, error) {
	h := newHandle(id, s.bus)
	existing, stored := s.reg.PutIfAbsent(id, h)
	if !stored {
		return existing, nil
	}
	return s.start(ctx, h)
}

// Restart discards any live handle for id, without a protocol-level
// goodbye, and starts a fresh one. This is the at-most-one-handle
// enforcement point for explicit reconnects.
func (s *Supervisor) Restart(ctx context.Context, id string) (*Handle, error) {
	h := newHandle(id, s.bus)
	if prior, had := s.reg.Replace(id, h); had {
		s.logger.Info("discarding superseded session handle", zap.String("session", id))
		prior.discard()
	}
	return s.start(ctx, h)
}

// start runs the session-creation procedure for a freshly registered handle:
// Idle -> Connecting, client construction, dispatcher startup, connect.
func (s *Supervisor) start(ctx context.Context, h *Handle) (*Handle, error) {
	_ = h.machine.Transition(state.Connecting)
	s.logger.Info("starting session", zap.String("session", h.id))

	client, err := s.factory.NewClient(ctx, h.id)
	if err != nil {
		return nil, s.failCreation(h, fmt.Errorf("create client for session %q: %w", h.id, err))
	}
	h.setClient(client)

	d := dispatch.New(h.id, h.store, s.bus, s.auth, &connectionUpdates{s: s, h: h}, s.logger)
	go d.Run(client.Events())

	if err := client.Connect(ctx); err != nil {
		client.Disconnect()
		return nil, s.failCreation(h, fmt.Errorf("connect session %q: %w", h.id, err))
	}
	return h, nil
}

// failCreation is the Connecting -> Error path: the handle leaves the
// registry, the subscriber hears about it, and the caller gets the error.
func (s *Supervisor) failCreation(h *Handle, err error) error {
	_ = h.machine.Transition(state.Error)
	s.reg.Remove(h.id, h)
	s.logger.Error("session creation failed", zap.String("session", h.id), zap.Error(err))
	s.bus.Publish(bus.Event{
		Kind:      bus.KindError,
		SessionID: h.id,
		Payload:   ErrorPayload{Error: err.Error()},
	})
	return err
}

// connectionUpdates adapts one handle to the dispatcher's callback.
type connectionUpdates struct {
	s *Supervisor
	h *Handle
}

func (c *connectionUpdates) HandleConnectionUpdate(upd protocol.ConnectionUpdate) {
	c.s.handleConnectionUpdate(c.h, upd)
}

func (s *Supervisor) handleConnectionUpdate(h *Handle, upd protocol.ConnectionUpdate) {
	switch upd.State {
	case protocol.ConnConnecting:
		if upd.QRCode != "" {
			s.handleQR(h, upd.QRCode)
		}
	case protocol.ConnOpen:
		s.handleOpen(h)
	case protocol.ConnClose:
		if upd.Reason == protocol.ReasonLoggedOut {
			s.handleLoggedOut(h)
		} else {
			s.handleTransientClose(h, upd.Reason)
		}
	}
}

func (s *Supervisor) handleQR(h *Handle, code string) {
	if err := h.machine.Transition(state.QRPending); err != nil {
		s.logger.Warn("ignoring pairing code", zap.String("session", h.id), zap.Error(err))
		return
	}
	s.logger.Info("pairing code received", zap.String("session", h.id))
	if s.opts.QRPath != nil {
		if err := qr.WriteFile(s.opts.QRPath(h.id), code); err != nil {
			s.logger.Warn("failed to render pairing image", zap.String("session", h.id), zap.Error(err))
		}
	}
	s.bus.Publish(bus.Event{
		Kind:      bus.KindQR,
		SessionID: h.id,
		Payload:   QRCodePayload{Code: code},
	})
}

func (s *Supervisor) handleOpen(h *Handle) {
	if err := h.machine.Transition(state.Connected); err != nil {
		s.logger.Warn("ignoring open update", zap.String("session", h.id), zap.Error(err))
		return
	}
	selfJID := ""
	if c := h.Client(); c != nil {
		selfJID = c.SelfJID()
	}
	s.logger.Info("session connected", zap.String("session", h.id), zap.String("self", selfJID))

	if err := s.recorder.RecordConnection(&meta.Connection{
		SessionID:   h.id,
		ConnectedAt: time.Now().UnixMilli(),
		SelfJID:     selfJID,
	}); err != nil {
		s.logger.Error("failed to record connection", zap.String("session", h.id), zap.Error(err))
	}
	if s.opts.QRPath != nil {
		qr.Remove(s.opts.QRPath(h.id))
	}

	s.bus.Publish(bus.Event{
		Kind:      bus.KindReady,
		SessionID: h.id,
		Payload:   ReadyPayload{SelfJID: selfJID},
	})

	go s.warmUp(h)
}

// warmUp pre-populates the chat list. Best effort: failures are logged, never
// surfaced.
func (s *Supervisor) warmUp(h *Handle) {
	c := h.Client()
	if c == nil {
		return
	}
	chats, err := c.FetchChats(context.Background())
	if err != nil {
		s.logger.Warn("chat warm-up failed", zap.String("session", h.id), zap.Error(err))
		return
	}
	for _, chat := range chats {
		h.store.UpsertChat(chat)
	}
	s.logger.Info("chat warm-up complete", zap.String("session", h.id), zap.Int("chats", len(chats)))
}

func (s *Supervisor) handleLoggedOut(h *Handle) {
	// Transition and removal as one registry-locked step, so a pending
	// reconnect timer can never observe the handle between the two.
	s.reg.RemoveIf(h.id, h, func() bool {
		_ = h.machine.Transition(state.LoggedOut)
		return true
	})
	s.logger.Warn("session logged out remotely", zap.String("session", h.id))
	s.bus.Publish(bus.Event{
		Kind:      bus.KindLoggedOut,
		SessionID: h.id,
	})
}

// handleTransientClose arms the reconnect timer. The deferred action
// re-validates before acting: the timer is never cancelled, but firing after
// a logout or a newer reconnect finds the handle gone or superseded and does
// nothing. That re-check is the sole guard against overlapping clients for
// one session id.
func (s *Supervisor) handleTransientClose(h *Handle, reason int) {
	if err := h.machine.Transition(state.Reconnecting); err != nil {
		return
	}
	s.logger.Warn("session disconnected, will reconnect",
		zap.String("session", h.id),
		zap.Int("reason", reason),
		zap.Duration("delay", s.opts.ReconnectDelay))

	s.bus.Publish(bus.Event{
		Kind:      bus.KindDisconnected,
		SessionID: h.id,
		Payload:   DisconnectedPayload{Reason: reason, Reconnecting: true},
	})

	time.AfterFunc(s.opts.ReconnectDelay, func() {
		// Status check and removal must be one atomic step: a logout
		// moves the machine to LoggedOut under the same registry lock,
		// so the timer can never pass the check and then remove a
		// handle whose logout is already in flight.
		removed := s.reg.RemoveIf(h.id, h, func() bool {
			return h.Status() == state.Reconnecting
		})
		if !removed {
			// Superseded, logged out, or already removed while the
			// timer was pending.
			return
		}
		h.discard()
		if _, err := s.Ensure(context.Background(), h.id); err != nil {
			s.logger.Error("reconnect failed", zap.String("session", h.id), zap.Error(err))
		}
	})
}

// Logout invokes the protocol logout regardless of current status, then
// unconditionally removes the handle. Persisted credentials are deleted only
// on confirmed success; a failed logout keeps them so the session can be
// reconnected later.
func (s *Supervisor) Logout(ctx context.Context, id string) error {
	h, ok := s.reg.Get(id)
	if !ok {
		return fmt.Errorf("logout session %q: %w", id, ErrSessionNotFound)
	}

	// Move to LoggedOut before the (possibly slow) protocol call, under
	// the registry lock: a pending reconnect timer checks status and
	// removes in one locked step, so once this transition lands the timer
	// is guaranteed to stand down instead of reviving the session while
	// the logout is in flight.
	moved := s.reg.UpdateIfCurrent(id, h, func() {
		_ = h.machine.Transition(state.LoggedOut)
	})
	if !moved {
		// The handle was removed or superseded between Get and here.
		return fmt.Errorf("logout session %q: %w", id, ErrSessionNotFound)
	}

	var err error
	if c := h.Client(); c != nil {
		err = c.Logout(ctx)
	}
	s.reg.Remove(id, h)
	if s.opts.QRPath != nil {
		qr.Remove(s.opts.QRPath(id))
	}

	if err != nil {
		s.logger.Error("logout failed, handle removed, credentials kept",
			zap.String("session", id), zap.Error(err))
		s.bus.Publish(bus.Event{
			Kind:      bus.KindLogoutError,
			SessionID: id,
			Payload:   ErrorPayload{Error: err.Error()},
		})
		return fmt.Errorf("logout session %q: %w", id, err)
	}

	if err := s.auth.DeleteCredentials(id); err != nil {
		// The protocol logout succeeded but storage is left behind; that
		// is not a clean logout and the subscriber must hear about it.
		s.logger.Error("logout confirmed but credential deletion failed",
			zap.String("session", id), zap.Error(err))
		s.bus.Publish(bus.Event{
			Kind:      bus.KindLogoutError,
			SessionID: id,
			Payload:   ErrorPayload{Error: err.Error()},
		})
		return fmt.Errorf("delete credentials for session %q: %w", id, err)
	}
	s.logger.Info("session logged out", zap.String("session", id))
	s.bus.Publish(bus.Event{
		Kind:      bus.KindLogoutSuccess,
		SessionID: id,
	})
	return nil
}

// Shutdown hard-disconnects every live session. Used on daemon stop.
func (s *Supervisor) Shutdown() {
	for _, id := range s.reg.IDs() {
		if h, ok := s.reg.Get(id); ok {
			h.discard()
		}
	}
}
