package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleParent  UserRole = "parent"
	RoleAdmin   UserRole = "admin"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleParent, RoleAdmin:
		return true
	}
	return false
}

// Profile represents an account stored in the profiles table.
type Profile struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	AvatarURL    *string    `db:"avatar_url" json:"avatar_url,omitempty"`
	IsVerified   bool       `db:"is_verified" json:"is_verified"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	IsSuspended  bool       `db:"is_suspended" json:"is_suspended"`
	TokenVersion int        `db:"token_version" json:"-"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// ProfileSummary is the public projection of a profile attached to other resources.
type ProfileSummary struct {
	ID        string   `db:"id" json:"id"`
	FullName  string   `db:"full_name" json:"full_name"`
	Role      UserRole `db:"role" json:"role"`
	AvatarURL *string  `db:"avatar_url" json:"avatar_url,omitempty"`
}

// Summary projects the profile to its public fields.
func (p *Profile) Summary() ProfileSummary {
	return ProfileSummary{ID: p.ID, FullName: p.FullName, Role: p.Role, AvatarURL: p.AvatarURL}
}

// UserFilter captures filtering criteria for listing profiles.
type UserFilter struct {
	Role      *UserRole
	Suspended *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// AccountDetail is the signed-in profile with its role extension.
type AccountDetail struct {
	Profile
	Teacher *Teacher `json:"teacher,omitempty"`
	Student *Student `json:"student,omitempty"`
	Parent  *Parent  `json:"parent,omitempty"`
}
