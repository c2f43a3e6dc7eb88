package models

import (
	"encoding/json"
	"time"
)

// NotificationPriority ranks notifications for display.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

// Notification types emitted by the platform.
const (
	NotificationNewMessage             = "new_message"
	NotificationSessionRequest         = "session_request"
	NotificationSessionRequestAccepted = "session_request_accepted"
	NotificationSessionRequestDeclined = "session_request_declined"
	NotificationSessionRequestCanceled = "session_request_cancelled"
	NotificationSessionRequestExpired  = "session_request_expired"
	NotificationVerificationApproved   = "verification_approved"
	NotificationVerificationRejected   = "verification_rejected"
	NotificationAccountSuspended       = "account_suspended"
	NotificationAccountReinstated      = "account_reinstated"
	NotificationSystem                 = "system"
)

// Notification is a user-facing alert.
type Notification struct {
	ID        string               `db:"id" json:"id"`
	UserID    string               `db:"user_id" json:"user_id"`
	Type      string               `db:"type" json:"type"`
	Title     string               `db:"title" json:"title"`
	Message   string               `db:"message" json:"message"`
	Data      json.RawMessage      `db:"data" json:"data,omitempty"`
	IsRead    bool                 `db:"is_read" json:"is_read"`
	Priority  NotificationPriority `db:"priority" json:"priority"`
	ExpiresAt *time.Time           `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt time.Time            `db:"created_at" json:"created_at"`
}

// NotificationFilter narrows the notification list.
type NotificationFilter struct {
	UnreadOnly bool
	Page       int
	PageSize   int
}

// NotificationPreference controls browser delivery per notification type.
type NotificationPreference struct {
	UserID         string    `db:"user_id" json:"user_id"`
	Type           string    `db:"type" json:"type"`
	BrowserEnabled bool      `db:"browser_enabled" json:"browser_enabled"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
