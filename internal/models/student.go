package models

// Student holds the learner extension of a profile, including the token balance.
type Student struct {
	ID         string  `db:"id" json:"id"`
	GradeLevel string  `db:"grade_level" json:"grade_level"`
	Tokens     int     `db:"tokens" json:"tokens"`
	ParentID   *string `db:"parent_id" json:"parent_id,omitempty"`
}

// StudentDetail contains student information with display fields from the profile.
type StudentDetail struct {
	Student
	FullName  string  `db:"full_name" json:"full_name"`
	Email     string  `db:"email" json:"email"`
	AvatarURL *string `db:"avatar_url" json:"avatar_url,omitempty"`
}

// Parent holds the guardian extension of a profile.
type Parent struct {
	ID            string `db:"id" json:"id"`
	ChildrenCount int    `db:"children_count" json:"children_count"`
}
