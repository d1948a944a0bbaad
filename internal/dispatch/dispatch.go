// Package dispatch routes one session's inbound protocol events to the
// conversation store and to subscriber notifications. Each mapping is a pure
// routing decision; lifecycle policy lives with the connection handler.
package dispatch

import (
	"go.uber.org/zap"

	"github.com/gbarros/wamux/internal/authstate"
	"github.com/gbarros/wamux/internal/bus"
	"github.com/gbarros/wamux/internal/convstore"
	"github.com/gbarros/wamux/internal/protocol"
)

// ConnectionHandler receives connection.update events. Implemented by the
// session lifecycle.
type ConnectionHandler interface {
	HandleConnectionUpdate(upd protocol.ConnectionUpdate)
}

// NewMessagePayload carries a raw inbound batch to the subscriber.
type NewMessagePayload struct {
	Messages []protocol.MessageInfo
}

// ChatUpdatePayload announces a chat's unread count change.
type ChatUpdatePayload struct {
	JID    string
	Unread int
}

// Dispatcher consumes one session's ordered event stream.
type Dispatcher struct {
	sessionID string
	store     *convstore.Store
	bus       *bus.Bus
	auth      authstate.Provider
	conn      ConnectionHandler
	logger    *zap.Logger
}

// New creates a dispatcher for one session.
func New(sessionID string, store *convstore.Store, b *bus.Bus, auth authstate.Provider, conn ConnectionHandler, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		sessionID: sessionID,
		store:     store,
		bus:       b,
		auth:      auth,
		conn:      conn,
		logger:    logger,
	}
}

// Run consumes events until the channel closes. Events are processed one at
// a time, which serializes all store mutations for the session.
func (d *Dispatcher) Run(events <-chan protocol.Event) {
	for evt := range events {
		d.handle(evt)
	}
}

func (d *Dispatcher) handle(evt protocol.Event) {
	switch e := evt.(type) {
	case protocol.ConnectionUpdate:
		d.conn.HandleConnectionUpdate(e)

	case protocol.MessagesUpsert:
		if e.Kind != protocol.UpsertNotify {
			return
		}
		for _, m := range e.Messages {
			d.store.IngestMessage(m)
		}
		d.bus.Publish(bus.Event{
			Kind:      bus.KindNewMessage,
			SessionID: d.sessionID,
			Payload:   NewMessagePayload{Messages: e.Messages},
		})

	case protocol.ChatsSet:
		for _, c := range e.Chats {
			d.store.UpsertChat(c)
		}

	case protocol.ChatsUpsert:
		for _, c := range e.Chats {
			d.store.UpsertChat(c)
		}

	case protocol.ContactsUpdate:
		for _, c := range e.Contacts {
			d.store.MergeContact(c)
		}

	case protocol.MessagesUpdate:
		for _, u := range e.Updates {
			if !u.Read {
				continue
			}
			d.store.MarkRead(u.ChatJID)
			d.bus.Publish(bus.Event{
				Kind:      bus.KindChatUpdate,
				SessionID: d.sessionID,
				Payload:   ChatUpdatePayload{JID: u.ChatJID, Unread: 0},
			})
		}

	case protocol.CredsUpdate:
		if err := d.auth.PersistCreds(d.sessionID); err != nil {
			d.logger.Error("failed to persist credentials",
				zap.String("session", d.sessionID), zap.Error(err))
		}
	}
}
