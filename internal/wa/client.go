package wa

import (
	"context"
	"fmt"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/gbarros/wamux/internal/protocol"
)

const eventBufferSize = 64

// Client adapts a whatsmeow connection to the protocol boundary. Whatsmeow
// delivers events on its own goroutine in order; Client translates them
// into a staging queue and a pump goroutine forwards them, still in order,
// onto the channel the dispatcher consumes. The queue is unbounded so a
// slow consumer never forces an event to be dropped: a lost close update
// would wedge the session and a lost message batch would silently hole the
// projection.
type Client struct {
	wm        *whatsmeow.Client
	container *sqlstore.Container
	logger    *zap.Logger
	sessionID string

	events chan protocol.Event

	mu     sync.Mutex
	queue  []protocol.Event
	wake   chan struct{} // 1-buffered; signaled on enqueue and on stop
	closed bool
}

// Events returns the translated event stream. Closed on Disconnect.
func (c *Client) Events() <-chan protocol.Event {
	return c.events
}

// Connect opens the socket. When the device has no stored credentials it
// first arms the QR channel and pumps pairing codes as connection updates;
// whatsmeow requires GetQRChannel before Connect.
func (c *Client) Connect(ctx context.Context) error {
	if c.wm.Store.ID == nil {
		qrChan, err := c.wm.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("get QR channel: %w", err)
		}
		go c.pumpQR(qrChan)
	}
	if err := c.wm.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (c *Client) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			c.emit(protocol.ConnectionUpdate{State: protocol.ConnConnecting, QRCode: item.Code})
		case "success":
			// Pairing done; the Connected event carries the rest.
			return
		case "timeout":
			c.logger.Warn("pairing code expired", zap.String("session", c.sessionID))
			c.emit(protocol.ConnectionUpdate{State: protocol.ConnClose, Reason: protocol.ReasonConnectionLost})
			return
		default:
			if item.Error != nil {
				c.logger.Warn("pairing failed", zap.String("session", c.sessionID), zap.Error(item.Error))
				c.emit(protocol.ConnectionUpdate{State: protocol.ConnClose, Reason: protocol.ReasonConnectionLost})
				return
			}
		}
	}
}

// Disconnect tears down the socket and stops the event stream. Queued
// events are still flushed before the channel closes. Safe to call more
// than once.
func (c *Client) Disconnect() {
	c.wm.Disconnect()
	c.stop()
}

// stop marks the stream finished and wakes the pump so it can flush and
// close the event channel.
func (c *Client) stop() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.signal()
}

// Logout invalidates the registration on the server side.
func (c *Client) Logout(ctx context.Context) error {
	return c.wm.Logout(ctx)
}

// SendText sends a plain text message. Returns the server-assigned ID.
func (c *Client) SendText(ctx context.Context, jid, text string) (string, error) {
	to, err := types.ParseJID(jid)
	if err != nil {
		return "", fmt.Errorf("parse JID: %w", err)
	}
	resp, err := c.wm.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// FetchChats lists known conversations from the device store's contact
// records. Used to warm the conversation cache after connecting.
func (c *Client) FetchChats(ctx context.Context) ([]protocol.ChatInfo, error) {
	allContacts, err := c.wm.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("get contacts: %w", err)
	}
	chats := make([]protocol.ChatInfo, 0, len(allContacts))
	for jid, info := range allContacts {
		name := info.FullName
		if name == "" {
			name = info.PushName
		}
		chats = append(chats, protocol.ChatInfo{
			ID:   jid.ToNonAD().String(),
			Name: name,
		})
	}
	return chats, nil
}

// SelfJID returns the authenticated account's JID, or empty if unpaired.
func (c *Client) SelfJID() string {
	if c.wm.Store.ID == nil {
		return ""
	}
	return c.wm.Store.ID.ToNonAD().String()
}

// handleEvent is registered with whatsmeow and maps its event types onto
// the protocol stream.
func (c *Client) handleEvent(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Connected:
		c.emit(protocol.ConnectionUpdate{State: protocol.ConnOpen})
	case *events.Disconnected:
		c.emit(protocol.ConnectionUpdate{State: protocol.ConnClose, Reason: protocol.ReasonConnectionLost})
	case *events.LoggedOut:
		c.logger.Warn("logged out remotely",
			zap.String("session", c.sessionID),
			zap.String("reason", evt.Reason.String()))
		c.emit(protocol.ConnectionUpdate{State: protocol.ConnClose, Reason: protocol.ReasonLoggedOut})
	case *events.StreamReplaced:
		c.emit(protocol.ConnectionUpdate{State: protocol.ConnClose, Reason: protocol.ReasonReplaced})
	case *events.Message:
		c.handleMessage(evt)
	case *events.HistorySync:
		c.handleHistorySync(evt)
	case *events.PushName:
		c.emit(protocol.ContactsUpdate{Contacts: []protocol.ContactInfo{{
			ID:     evt.JID.ToNonAD().String(),
			Notify: evt.NewPushName,
		}}})
	case *events.Receipt:
		if evt.Type == types.ReceiptTypeRead {
			c.emit(protocol.MessagesUpdate{Updates: []protocol.MessageStatusUpdate{{
				ChatJID: evt.Chat.ToNonAD().String(),
				Read:    true,
			}}})
		}
	case *events.PairSuccess:
		c.emit(protocol.CredsUpdate{})
	}
}

func (c *Client) handleMessage(evt *events.Message) {
	if evt.Info.PushName != "" && !evt.Info.IsFromMe {
		c.emit(protocol.ContactsUpdate{Contacts: []protocol.ContactInfo{{
			ID:     evt.Info.Sender.ToNonAD().String(),
			Notify: evt.Info.PushName,
		}}})
	}
	c.emit(protocol.MessagesUpsert{
		Kind:     protocol.UpsertNotify,
		Messages: []protocol.MessageInfo{parseMessage(evt)},
	})
}

func (c *Client) handleHistorySync(evt *events.HistorySync) {
	data := evt.Data
	if data == nil {
		return
	}

	var chats []protocol.ChatInfo
	var msgs []protocol.MessageInfo
	for _, conv := range data.GetConversations() {
		chatJID := conv.GetID()
		chats = append(chats, protocol.ChatInfo{ID: chatJID, Name: conv.GetName()})
		for _, hm := range conv.GetMessages() {
			wmsg := hm.GetMessage()
			if wmsg == nil || wmsg.GetMessage() == nil {
				continue
			}
			info := wmsg.GetMessage()
			msgs = append(msgs, protocol.MessageInfo{
				ID:        wmsg.GetKey().GetID(),
				ChatJID:   chatJID,
				FromMe:    wmsg.GetKey().GetFromMe(),
				Timestamp: int64(wmsg.GetMessageTimestamp()),
				Text:      extractTextBody(info),
				MediaType: detectMediaType(info),
				Raw:       info,
			})
		}
	}

	if len(chats) > 0 {
		c.emit(protocol.ChatsSet{Chats: chats})
	}
	if len(msgs) > 0 {
		c.emit(protocol.MessagesUpsert{Kind: protocol.UpsertAppend, Messages: msgs})
	}
}

// emit stages one event without blocking whatsmeow's handler goroutine.
// Only events arriving after Disconnect are discarded; the session is over
// by then.
func (c *Client) emit(evt protocol.Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, evt)
	c.mu.Unlock()
	c.signal()
}

func (c *Client) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// pump drains the staging queue into the event channel in order, then
// closes the channel once the client stopped and the queue is empty.
func (c *Client) pump() {
	for {
		c.mu.Lock()
		batch := c.queue
		c.queue = nil
		closed := c.closed
		c.mu.Unlock()

		for _, evt := range batch {
			c.events <- evt
		}
		if closed {
			close(c.events)
			return
		}
		if len(batch) == 0 {
			<-c.wake
		}
	}
}
