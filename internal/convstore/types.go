package convstore

// Chat is one stored conversation record.
type Chat struct {
	ID           string
	NameHint     string // explicit name supplied by the protocol, may be empty
	LastActivity int64  // epoch seconds of the latest accepted message
	Unread       int
}

// Contact is one stored contact record. Empty fields are unknown.
type Contact struct {
	ID     string
	Name   string
	Notify string // protocol-supplied display alias
}

// Message is one stored message record, unique by ID within its chat.
type Message struct {
	ID        string
	ChatJID   string
	FromMe    bool
	Timestamp int64 // epoch seconds, 0 when the input carried none
	Text      string
	Raw       any // opaque payload retained for re-derivation
}

// ChatSummary is a resolved chat-list entry as returned by ListChats.
type ChatSummary struct {
	ID              string
	DisplayName     string
	LastMessageText string
	LastMessageTime int64
	LastActivity    int64
	Unread          int
}
