package models

import (
	"time"

	"github.com/lib/pq"
)

// VerificationStatus tracks admin review of a teacher.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

// Teacher holds the tutor-specific extension of a profile.
type Teacher struct {
	ID                 string             `db:"id" json:"id"`
	Bio                string             `db:"bio" json:"bio"`
	HourlyRate         float64            `db:"hourly_rate" json:"hourly_rate"`
	Subjects           pq.StringArray     `db:"subjects" json:"subjects"`
	ExperienceYears    int                `db:"experience_years" json:"experience_years"`
	Rating             float64            `db:"rating" json:"rating"`
	VerificationStatus VerificationStatus `db:"verification_status" json:"verification_status"`
	VerificationNote   *string            `db:"verification_note" json:"verification_note,omitempty"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updated_at"`
}

// TeacherListing joins the teacher row with the public profile fields.
type TeacherListing struct {
	Teacher
	FullName    string  `db:"full_name" json:"full_name"`
	Email       string  `db:"email" json:"email"`
	AvatarURL   *string `db:"avatar_url" json:"avatar_url,omitempty"`
	IsActive    bool    `db:"is_active" json:"is_active"`
	IsSuspended bool    `db:"is_suspended" json:"-"`
}

// TeacherFilter captures filtering options for browsing teachers.
type TeacherFilter struct {
	Search       string
	Subject      string
	MaxRate      *float64
	VerifiedOnly bool
	Status       *VerificationStatus
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
