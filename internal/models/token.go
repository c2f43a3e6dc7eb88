package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is a persisted refresh session. Tokens rotate on every
// exchange, so a row is spent once it has been used.
type RefreshToken struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	Token     string     `db:"token" json:"token"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	Revoked   bool       `db:"revoked" json:"revoked"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	IPAddress string     `db:"ip_address" json:"ip_address"`
	UserAgent string     `db:"user_agent" json:"user_agent"`
}

// NewRefreshToken opens a refresh session for userID that lasts ttl from now.
func NewRefreshToken(userID, value string, ttl time.Duration, now time.Time, client LoginRequest) *RefreshToken {
	return &RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     value,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
	}
}

// Usable reports whether the token may still be exchanged at now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
