package wa

import (
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/gbarros/wamux/internal/protocol"
)

// parseMessage normalizes a live whatsmeow message event into the boundary
// shape. The raw payload rides along untouched for re-derivation.
func parseMessage(evt *events.Message) protocol.MessageInfo {
	return protocol.MessageInfo{
		ID:        evt.Info.ID,
		ChatJID:   evt.Info.Chat.ToNonAD().String(),
		FromMe:    evt.Info.IsFromMe,
		Timestamp: evt.Info.Timestamp.Unix(),
		Text:      extractTextBody(evt.Message),
		MediaType: detectMediaType(evt.Message),
		Raw:       evt.Message,
	}
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}

// detectMediaType names the payload kind for non-text messages, used for the
// stored placeholder. Plain text yields the empty string.
func detectMediaType(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return ""
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetContactMessage() != nil:
		return "contact"
	case msg.GetLocationMessage() != nil:
		return "location"
	default:
		return "unknown"
	}
}
