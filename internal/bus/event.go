package bus

import "time"

// Notification kinds pushed to the transport layer, grouped by namespace.
const (
	KindQR            = "session.qr"
	KindReady         = "session.ready"
	KindDisconnected  = "session.disconnected"
	KindLoggedOut     = "session.logged_out"
	KindError         = "session.error"
	KindLogoutSuccess = "session.logout_success"
	KindLogoutError   = "session.logout_error"
	KindNewMessage    = "message.new"
	KindChatUpdate    = "chat.update"
)

// Event is one notification envelope. Every event belongs to exactly one
// session; EventID is assigned on publish.
type Event struct {
	EventID   string
	Kind      string
	SessionID string
	Timestamp time.Time
	Payload   any
}
