// Package protocol defines the boundary to the external chat protocol
// client: the operations the session manager invokes and the ordered event
// stream it consumes. The real implementation lives in internal/wa; tests
// substitute fakes.
package protocol

import (
	"context"
	"strings"
)

// StatusBroadcastJID is the reserved broadcast/status pseudo-conversation.
// It must never surface in query results.
const StatusBroadcastJID = "status@broadcast"

// Client is one live, authenticated protocol connection.
//
// Events returns the client's event channel. Events for one client are
// delivered in order; the channel is closed when the client shuts down.
type Client interface {
	Events() <-chan Event
	Connect(ctx context.Context) error
	Disconnect()
	Logout(ctx context.Context) error
	SendText(ctx context.Context, jid, text string) (serverMsgID string, err error)
	FetchChats(ctx context.Context) ([]ChatInfo, error)
	SelfJID() string
}

// Factory constructs a Client bound to a session's persisted credentials.
type Factory interface {
	NewClient(ctx context.Context, sessionID string) (Client, error)
}

// ConnState enumerates connection.update states.
type ConnState int

const (
	ConnConnecting ConnState = iota
	ConnOpen
	ConnClose
)

// Disconnect reason codes carried on a close update.
const (
	// ReasonLoggedOut means the credentials were invalidated remotely.
	// It is the one close reason that must not trigger reconnection.
	ReasonLoggedOut = 401
	// ReasonConnectionLost is a timeout or dropped socket.
	ReasonConnectionLost = 408
	// ReasonReplaced means another client took over the stream.
	ReasonReplaced = 440
	// ReasonRestartRequired is sent by the server after pairing.
	ReasonRestartRequired = 515
)

// Event is a marker interface over the typed protocol events below.
type Event interface {
	isEvent()
}

// ConnectionUpdate drives the session lifecycle.
type ConnectionUpdate struct {
	State  ConnState
	Reason int    // close reason code, 0 if none
	QRCode string // pairing code, present while unauthenticated
}

// UpsertKind distinguishes live notifications from history appends.
type UpsertKind string

const (
	UpsertNotify UpsertKind = "notify"
	UpsertAppend UpsertKind = "append"
)

// MessagesUpsert carries a batch of inbound messages.
type MessagesUpsert struct {
	Kind     UpsertKind
	Messages []MessageInfo
}

// MessageInfo is one normalized inbound message.
type MessageInfo struct {
	ID        string
	ChatJID   string
	FromMe    bool
	Timestamp int64 // epoch seconds, 0 when absent
	Text      string
	MediaType string // non-empty when the payload is not plain text
	Raw       any    // opaque protocol payload, never mutated
}

// ChatInfo is one chat-list entry.
type ChatInfo struct {
	ID   string
	Name string
}

// ChatsSet replaces the known chat list.
type ChatsSet struct {
	Chats []ChatInfo
}

// ChatsUpsert adds or updates chat-list entries.
type ChatsUpsert struct {
	Chats []ChatInfo
}

// ContactInfo is a partial contact update: empty fields are unknown, not
// cleared.
type ContactInfo struct {
	ID     string
	Name   string
	Notify string
}

// ContactsUpdate carries partial contact records.
type ContactsUpdate struct {
	Contacts []ContactInfo
}

// MessageStatusUpdate is one messages.update entry.
type MessageStatusUpdate struct {
	ChatJID string
	Read    bool
}

// MessagesUpdate carries message status changes (read receipts).
type MessagesUpdate struct {
	Updates []MessageStatusUpdate
}

// CredsUpdate signals that credentials changed and must be persisted.
type CredsUpdate struct{}

func (ConnectionUpdate) isEvent() {}
func (MessagesUpsert) isEvent()   {}
func (ChatsSet) isEvent()         {}
func (ChatsUpsert) isEvent()      {}
func (ContactsUpdate) isEvent()   {}
func (MessagesUpdate) isEvent()   {}
func (CredsUpdate) isEvent()      {}

// LocalPart returns the part of a jid before the domain separator, or the
// whole jid when there is none.
func LocalPart(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		return jid[:i]
	}
	return jid
}
