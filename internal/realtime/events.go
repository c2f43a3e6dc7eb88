package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Row change and presence events published on broker channels.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
	EventTyping = "typing"
)

// Replies sent directly to a single client.
const (
	EventConversationSelected = "conversation_selected"
	EventMessagesPage         = "messages_page"
	EventMessageSent          = "message_sent"
	EventUnreadCount          = "unread_count"
	EventNotificationsSync    = "notifications_sync"
	EventError                = "error"
)

// Client commands.
const (
	CommandSelectConversation = "select_conversation"
	CommandLoadMore           = "load_more"
	CommandSendMessage        = "send_message"
	CommandTyping             = "typing"
)

// Event is the envelope for everything pushed to websocket clients.
type Event struct {
	Type      string          `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	At        time.Time       `json:"at"`
}

// NewEvent marshals payload into an event stamped with the current time.
func NewEvent(eventType, channel string, payload interface{}) (Event, error) {
	ev := Event{Type: eventType, Channel: channel, At: time.Now().UTC()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("marshal %s event: %w", eventType, err)
		}
		ev.Payload = raw
	}
	return ev, nil
}

// Decode unmarshals the event payload into dest.
func (e Event) Decode(dest interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.Type)
	}
	return json.Unmarshal(e.Payload, dest)
}

// Command is a request sent by a websocket client.
type Command struct {
	Type           string  `json:"type"`
	RequestID      string  `json:"request_id,omitempty"`
	ConversationID string  `json:"conversation_id,omitempty"`
	Content        string  `json:"content,omitempty"`
	MessageType    string  `json:"message_type,omitempty"`
	ReplyToID      *string `json:"reply_to_id,omitempty"`
}

// TypingPayload is the presence state broadcast while a user types.
type TypingPayload struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	Typing         bool   `json:"typing"`
}

// MessagesChannel carries row events for a conversation's messages.
func MessagesChannel(conversationID string) string {
	return "messages:" + conversationID
}

// PresenceChannel carries typing presence for a conversation.
func PresenceChannel(conversationID string) string {
	return "presence:" + conversationID
}

// NotificationsChannel carries notification inserts for a user.
func NotificationsChannel(userID string) string {
	return "notifications:" + userID
}
