// Package gateway is the command surface the transport layer calls:
// create, reconnect, query, send, mark-read and logout, composed over the
// registry, the lifecycle supervisor and each session's conversation store.
package gateway

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gbarros/wamux/internal/authstate"
	"github.com/gbarros/wamux/internal/convstore"
	"github.com/gbarros/wamux/internal/lifecycle"
	"github.com/gbarros/wamux/internal/session"
	"github.com/gbarros/wamux/internal/state"
)

// ErrSessionNotFound is returned for commands against an unknown session.
var ErrSessionNotFound = lifecycle.ErrSessionNotFound

// SessionInfo describes one live session.
type SessionInfo struct {
	ID        string
	Status    state.Status
	CreatedAt time.Time
}

// Gateway exposes the public session commands.
type Gateway struct {
	sup    *lifecycle.Supervisor
	auth   authstate.Provider
	logger *zap.Logger
}

// New creates a gateway.
func New(sup *lifecycle.Supervisor, auth authstate.Provider, logger *zap.Logger) *Gateway {
	return &Gateway{
		sup:    sup,
		auth:   auth,
		logger: logger,
	}
}

// CreateSession starts a session for id, or reports the current status when
// a handle already exists. Idempotent: it never builds a second connection
// for a live id.
func (g *Gateway) CreateSession(ctx context.Context, id string) (state.Status, error) {
	if err := session.ValidateID(id); err != nil {
		return "", err
	}
	h, err := g.sup.Ensure(ctx, id)
	if err != nil {
		return state.Error, err
	}
	return h.Status(), nil
}

// ReconnectSession rebuilds a session from its persisted credentials. The
// presence check goes against the credential storage, not the in-memory
// registry: a session can be reconnected after a restart with no live
// handle. Any live handle is discarded first.
func (g *Gateway) ReconnectSession(ctx context.Context, id string) (state.Status, error) {
	if err := session.ValidateID(id); err != nil {
		return "", err
	}
	if !g.auth.HasCredentials(id) {
		return "", fmt.Errorf("reconnect session %q: %w", id, ErrSessionNotFound)
	}
	h, err := g.sup.Restart(ctx, id)
	if err != nil {
		return state.Error, err
	}
	return h.Status(), nil
}

// GetChats returns the session's resolved chat list, most recent first.
func (g *Gateway) GetChats(id string) ([]convstore.ChatSummary, error) {
	h, err := g.handle(id)
	if err != nil {
		return nil, err
	}
	return h.Store().ListChats(), nil
}

// GetChatMessages returns one chat's messages in ascending timestamp order.
// Reading a chat marks it read.
func (g *Gateway) GetChatMessages(id, chatJID string) ([]convstore.Message, error) {
	h, err := g.handle(id)
	if err != nil {
		return nil, err
	}
	h.Store().MarkRead(chatJID)
	return h.Store().ListMessages(chatJID), nil
}

// MarkRead zeroes a chat's unread count.
func (g *Gateway) MarkRead(id, chatJID string) error {
	h, err := g.handle(id)
	if err != nil {
		return err
	}
	h.Store().MarkRead(chatJID)
	return nil
}

// SendMessage sends a text message through the session's protocol client and
// returns the server-assigned message id.
func (g *Gateway) SendMessage(ctx context.Context, id, to, text string) (string, error) {
	h, err := g.handle(id)
	if err != nil {
		return "", err
	}
	client := h.Client()
	if client == nil {
		return "", fmt.Errorf("send via session %q: %w", id, ErrSessionNotFound)
	}
	msgID, err := client.SendText(ctx, to, text)
	if err != nil {
		return "", fmt.Errorf("send via session %q: %w", id, err)
	}
	return msgID, nil
}

// Logout logs the session out, removes its handle and, on confirmed
// success, deletes its persisted credentials.
func (g *Gateway) Logout(ctx context.Context, id string) error {
	return g.sup.Logout(ctx, id)
}

// Status returns a session's lifecycle status.
func (g *Gateway) Status(id string) (state.Status, error) {
	h, err := g.handle(id)
	if err != nil {
		return "", err
	}
	return h.Status(), nil
}

// ListSessions returns info for every registered session.
func (g *Gateway) ListSessions() []SessionInfo {
	reg := g.sup.Registry()
	infos := make([]SessionInfo, 0, reg.Len())
	for _, id := range reg.IDs() {
		if h, ok := reg.Get(id); ok {
			infos = append(infos, SessionInfo{
				ID:        id,
				Status:    h.Status(),
				CreatedAt: h.CreatedAt(),
			})
		}
	}
	return infos
}

func (g *Gateway) handle(id string) (*lifecycle.Handle, error) {
	h, ok := g.sup.Registry().Get(id)
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, ErrSessionNotFound)
	}
	return h, nil
}
