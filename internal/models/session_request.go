package models

import "time"

// SessionRequestStatus tracks the lifecycle of a booking proposal.
type SessionRequestStatus string

const (
	SessionRequestPending   SessionRequestStatus = "pending"
	SessionRequestAccepted  SessionRequestStatus = "accepted"
	SessionRequestDeclined  SessionRequestStatus = "declined"
	SessionRequestCancelled SessionRequestStatus = "cancelled"
	SessionRequestExpired   SessionRequestStatus = "expired"
)

// Refunds reports whether reaching s returns the escrowed tokens to the student.
func (s SessionRequestStatus) Refunds() bool {
	return s == SessionRequestDeclined || s == SessionRequestCancelled || s == SessionRequestExpired
}

// SessionRequest is a token escrowed booking proposal from a student to a teacher.
type SessionRequest struct {
	ID              string               `db:"id" json:"id"`
	StudentID       string               `db:"student_id" json:"student_id"`
	TeacherID       string               `db:"teacher_id" json:"teacher_id"`
	Subject         string               `db:"subject" json:"subject"`
	Message         string               `db:"message" json:"message"`
	RequestedStart  time.Time            `db:"requested_start" json:"requested_start"`
	RequestedEnd    time.Time            `db:"requested_end" json:"requested_end"`
	DurationHours   float64              `db:"duration_hours" json:"duration_hours"`
	TokensRequired  int                  `db:"tokens_required" json:"tokens_required"`
	Status          SessionRequestStatus `db:"status" json:"status"`
	DeclineReason   *string              `db:"decline_reason" json:"decline_reason,omitempty"`
	TeacherResponse *string              `db:"teacher_response" json:"teacher_response,omitempty"`
	ExpiresAt       time.Time            `db:"expires_at" json:"expires_at"`
	RespondedAt     *time.Time           `db:"responded_at" json:"responded_at,omitempty"`
	CreatedAt       time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time            `db:"updated_at" json:"updated_at"`
}

// SessionRequestView adds counterpart display names.
type SessionRequestView struct {
	SessionRequest
	StudentName string `db:"student_name" json:"student_name"`
	TeacherName string `db:"teacher_name" json:"teacher_name"`
}

// SessionRequestFilter narrows request listings.
type SessionRequestFilter struct {
	StudentID string
	TeacherID string
	Status    *SessionRequestStatus
	Page      int
	PageSize  int
}

// Transition captures a status change applied by the workflow.
type Transition struct {
	RequestID string
	ActorID   string
	To        SessionRequestStatus
	Reason    *string
	Response  *string
	At        time.Time
}
