package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

const teacherListingColumns = `t.id, t.bio, t.hourly_rate, t.subjects, t.experience_years, t.rating, t.verification_status, t.verification_note, t.updated_at,
p.full_name, p.email, p.avatar_url, p.is_active, p.is_suspended`

// TeacherRepository handles persistence for tutor profiles.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository instantiates the repository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// List returns teachers joined with their profile for browsing.
func (r *TeacherRepository) List(ctx context.Context, filter models.TeacherFilter) ([]models.TeacherListing, int, error) {
	base := ` FROM teachers t JOIN profiles p ON p.id = t.id WHERE p.is_suspended = FALSE`
	conditions := []string{}
	args := []interface{}{}

	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(p.full_name) LIKE $%d OR LOWER(t.bio) LIKE $%d)", len(args), len(args)))
	}
	if filter.Subject != "" {
		args = append(args, filter.Subject)
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(t.subjects)", len(args)))
	}
	if filter.MaxRate != nil {
		args = append(args, *filter.MaxRate)
		conditions = append(conditions, fmt.Sprintf("t.hourly_rate <= $%d", len(args)))
	}
	if filter.VerifiedOnly {
		args = append(args, models.VerificationApproved)
		conditions = append(conditions, fmt.Sprintf("t.verification_status = $%d", len(args)))
	} else if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("t.verification_status = $%d", len(args)))
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortColumn := map[string]string{
		"rating":      "t.rating",
		"hourly_rate": "t.hourly_rate",
		"experience":  "t.experience_years",
		"full_name":   "p.full_name",
	}[filter.SortBy]
	if sortColumn == "" {
		sortColumn = "t.rating"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}
	_, pageSize, offset := normalizePage(filter.Page, filter.PageSize)

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*)"+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count teachers: %w", err)
	}

	query := fmt.Sprintf("SELECT %s%s ORDER BY %s %s, p.full_name ASC LIMIT %d OFFSET %d", teacherListingColumns, base, sortColumn, sortOrder, pageSize, offset)
	var teachers []models.TeacherListing
	if err := r.db.SelectContext(ctx, &teachers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teachers: %w", err)
	}
	return teachers, total, nil
}

// FindByID fetches a teacher listing by id.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.TeacherListing, error) {
	query := `SELECT ` + teacherListingColumns + ` FROM teachers t JOIN profiles p ON p.id = t.id WHERE t.id = $1`
	var teacher models.TeacherListing
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get teacher: %w", err)
	}
	return &teacher, nil
}

// UpdateProfile persists the teacher's editable fields.
func (r *TeacherRepository) UpdateProfile(ctx context.Context, teacher *models.Teacher) error {
	teacher.UpdatedAt = time.Now().UTC()
	const query = `UPDATE teachers SET bio = :bio, hourly_rate = :hourly_rate, subjects = :subjects, experience_years = :experience_years, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, teacher); err != nil {
		return fmt.Errorf("update teacher: %w", err)
	}
	return nil
}

// SetVerification records the outcome of an admin review on the teacher and profile rows.
func (r *TeacherRepository) SetVerification(ctx context.Context, id string, status models.VerificationStatus, note *string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin verification tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `UPDATE teachers SET verification_status = $2, verification_note = $3, updated_at = $4 WHERE id = $1`, id, status, note, now)
	if err != nil {
		return fmt.Errorf("update verification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	if _, err := tx.ExecContext(ctx, `UPDATE profiles SET is_verified = $2, updated_at = $3 WHERE id = $1`, id, status == models.VerificationApproved, now); err != nil {
		return fmt.Errorf("update profile verification: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit verification tx: %w", err)
	}
	return nil
}
