// Package convstore holds one session's in-memory projection of chats,
// contacts and messages, built from the inbound protocol event stream. The
// projection lives for the process lifetime only; durable state stays with
// the credential store and the metadata log.
package convstore

import (
	"sort"
	"sync"

	"github.com/gbarros/wamux/internal/protocol"
)

// Store is one session's conversation projection. Mutations arrive serialized
// from the session's dispatcher goroutine; the lock makes queries from
// command callers safe against them.
type Store struct {
	mu       sync.RWMutex
	chats    map[string]*Chat
	contacts map[string]*Contact
	messages map[string][]Message
	seen     map[string]map[string]struct{} // chat jid -> message ids already ingested
}

// New creates an empty store.
func New() *Store {
	return &Store{
		chats:    make(map[string]*Chat),
		contacts: make(map[string]*Contact),
		messages: make(map[string][]Message),
		seen:     make(map[string]map[string]struct{}),
	}
}

// UpsertChat inserts or updates a chat record. Full list replaces and
// incremental upserts go through the same path. A name is only applied when
// the protocol actually supplied one.
func (s *Store) UpsertChat(info protocol.ChatInfo) {
	if info.ID == protocol.StatusBroadcastJID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[info.ID]
	if !ok {
		c = &Chat{ID: info.ID}
		s.chats[info.ID] = c
	}
	if info.Name != "" {
		c.NameHint = info.Name
	}
}

// IngestMessage appends a message to its chat. Messages for the broadcast
// pseudo-chat and duplicate ids are discarded. Returns whether the message
// was accepted.
func (s *Store) IngestMessage(m protocol.MessageInfo) bool {
	if m.ChatJID == protocol.StatusBroadcastJID {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, ok := s.seen[m.ChatJID]
	if !ok {
		ids = make(map[string]struct{})
		s.seen[m.ChatJID] = ids
	}
	if _, dup := ids[m.ID]; dup {
		return false
	}
	ids[m.ID] = struct{}{}

	s.messages[m.ChatJID] = append(s.messages[m.ChatJID], Message{
		ID:        m.ID,
		ChatJID:   m.ChatJID,
		FromMe:    m.FromMe,
		Timestamp: m.Timestamp,
		Text:      summarize(m),
		Raw:       m.Raw,
	})

	c, ok := s.chats[m.ChatJID]
	if !ok {
		c = &Chat{ID: m.ChatJID}
		s.chats[m.ChatJID] = c
	}
	c.LastActivity = m.Timestamp
	if !m.FromMe {
		c.Unread++
	}
	return true
}

// MergeContact creates the contact if absent, then overwrites only the
// fields present in the update, preserving previously known ones.
func (s *Store) MergeContact(info protocol.ContactInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[info.ID]
	if !ok {
		c = &Contact{ID: info.ID}
		s.contacts[info.ID] = c
	}
	if info.Name != "" {
		c.Name = info.Name
	}
	if info.Notify != "" {
		c.Notify = info.Notify
	}
}

// MarkRead zeroes the unread count for a chat. No-op for unknown chats.
func (s *Store) MarkRead(chatJID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.chats[chatJID]; ok {
		c.Unread = 0
	}
}

// ListChats resolves and returns chat summaries ordered by most recent
// activity first. The result is recomputed on every call.
func (s *Store) ListChats() []ChatSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]ChatSummary, 0, len(s.chats))
	for id, c := range s.chats {
		if id == protocol.StatusBroadcastJID {
			continue
		}
		sum := ChatSummary{
			ID:           id,
			DisplayName:  s.resolveDisplayName(c),
			LastActivity: c.LastActivity,
			Unread:       c.Unread,
		}
		if msgs := s.messages[id]; len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			sum.LastMessageText = last.Text
			sum.LastMessageTime = last.Timestamp
		}
		summaries = append(summaries, sum)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].LastActivity != summaries[j].LastActivity {
			return summaries[i].LastActivity > summaries[j].LastActivity
		}
		return summaries[i].ID < summaries[j].ID
	})
	return summaries
}

// ListMessages returns a chat's messages ordered by ascending timestamp.
// Records without a timestamp sort first.
func (s *Store) ListMessages(chatJID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := make([]Message, len(s.messages[chatJID]))
	copy(msgs, s.messages[chatJID])
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp < msgs[j].Timestamp
	})
	return msgs
}

// GetChat returns a copy of a chat record, if known.
func (s *Store) GetChat(chatJID string) (Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chats[chatJID]
	if !ok {
		return Chat{}, false
	}
	return *c, true
}

// GetContact returns a copy of a contact record, if known.
func (s *Store) GetContact(id string) (Contact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contacts[id]
	if !ok {
		return Contact{}, false
	}
	return *c, true
}

// ChatCount returns the number of stored chats.
func (s *Store) ChatCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chats)
}

// MessageCount returns the number of stored messages across all chats.
func (s *Store) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, msgs := range s.messages {
		n += len(msgs)
	}
	return n
}

// resolveDisplayName applies the display name precedence: explicit chat
// name, then contact name, then contact notify alias, then the local part
// of the jid. Caller holds the lock.
func (s *Store) resolveDisplayName(c *Chat) string {
	if c.NameHint != "" {
		return c.NameHint
	}
	if ct, ok := s.contacts[c.ID]; ok {
		if ct.Name != "" {
			return ct.Name
		}
		if ct.Notify != "" {
			return ct.Notify
		}
	}
	return protocol.LocalPart(c.ID)
}

// summarize derives the stored text: the message body when present,
// otherwise a media placeholder.
func summarize(m protocol.MessageInfo) string {
	if m.Text != "" {
		return m.Text
	}
	if m.MediaType != "" {
		return "[" + m.MediaType + "]"
	}
	return ""
}
