package models

import (
	"encoding/json"
	"time"
)

// MessageType describes the content of a message.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

// Message is a single entry in a conversation. Rows are append-only apart from
// edits and soft deletes.
type Message struct {
	ID             string          `db:"id" json:"id"`
	ConversationID string          `db:"conversation_id" json:"conversation_id"`
	SenderID       string          `db:"sender_id" json:"sender_id"`
	Content        string          `db:"content" json:"content"`
	MessageType    MessageType     `db:"message_type" json:"message_type"`
	Attachments    json.RawMessage `db:"attachments" json:"attachments,omitempty"`
	ReplyToID      *string         `db:"reply_to_id" json:"reply_to_id,omitempty"`
	IsDeleted      bool            `db:"is_deleted" json:"is_deleted"`
	IsEdited       bool            `db:"is_edited" json:"is_edited"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// MessageView is a message with sender display info for rendering.
type MessageView struct {
	Message
	SenderName   string  `db:"sender_name" json:"sender_name"`
	SenderAvatar *string `db:"sender_avatar" json:"sender_avatar,omitempty"`
	ReplyPreview *string `db:"reply_preview" json:"reply_preview,omitempty"`
}

// MessageFilter narrows the moderation feed.
type MessageFilter struct {
	ConversationID string
	SenderID       string
	Search         string
	IncludeDeleted bool
	Page           int
	PageSize       int
}

// PageRequest is an offset page used by message history.
type PageRequest struct {
	Offset int
	Limit  int
}
