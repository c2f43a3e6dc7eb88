package models

import (
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
)

// ConversationType classifies a conversation's participant set.
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
	ConversationClass  ConversationType = "class"
)

// AIAssistantID is the pseudo participant id used for assistant conversations.
const AIAssistantID = "ai-assistant"

// Conversation is a participant set plus its ordered messages.
type Conversation struct {
	ID             string           `db:"id" json:"id"`
	Type           ConversationType `db:"type" json:"type"`
	Participants   pq.StringArray   `db:"participants" json:"participants"`
	ParticipantKey string           `db:"participant_key" json:"-"`
	Title          *string          `db:"title" json:"title,omitempty"`
	LastMessageAt  *time.Time       `db:"last_message_at" json:"last_message_at,omitempty"`
	IsArchived     bool             `db:"is_archived" json:"is_archived"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Others returns every participant except userID.
func (c *Conversation) Others(userID string) []string {
	out := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != userID {
			out = append(out, p)
		}
	}
	return out
}

// ParticipantKey builds the order independent key of a participant set.
// Duplicate ids collapse so membership stays unique.
func ParticipantKey(ids ...string) string {
	set := make(map[string]struct{}, len(ids))
	uniq := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := set[id]; ok || id == "" {
			continue
		}
		set[id] = struct{}{}
		uniq = append(uniq, id)
	}
	sort.Strings(uniq)
	return strings.Join(uniq, ":")
}

// ConversationSummary is a conversation annotated for list views. It is derived on
// every load and never persisted.
type ConversationSummary struct {
	Conversation
	OtherParticipant *ProfileSummary `json:"other_participant,omitempty"`
	LastMessage      *Message        `json:"last_message,omitempty"`
	UnreadCount      int             `json:"unread_count"`
}
