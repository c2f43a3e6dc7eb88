package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

// AdminRepository runs the aggregate queries behind the admin dashboard. Each method
// is an independent read so callers may run them concurrently.
type AdminRepository struct {
	db *sqlx.DB
}

// NewAdminRepository constructs the repository.
func NewAdminRepository(db *sqlx.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

// CountUsersByRole returns profile counts grouped by role.
func (r *AdminRepository) CountUsersByRole(ctx context.Context) (map[models.UserRole]int, error) {
	var rows []struct {
		Role  models.UserRole `db:"role"`
		Total int             `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT role, COUNT(*) AS total FROM profiles GROUP BY role`); err != nil {
		return nil, fmt.Errorf("count users by role: %w", err)
	}
	result := make(map[models.UserRole]int, len(rows))
	for _, row := range rows {
		result[row.Role] = row.Total
	}
	return result, nil
}

// CountTeachers returns active, unsuspended teachers with the given verification status.
func (r *AdminRepository) CountTeachers(ctx context.Context, status models.VerificationStatus) (int, error) {
	const query = `SELECT COUNT(*) FROM teachers t JOIN profiles p ON p.id = t.id
WHERE t.verification_status = $1 AND p.is_active = TRUE AND p.is_suspended = FALSE`
	var total int
	if err := r.db.GetContext(ctx, &total, query, status); err != nil {
		return 0, fmt.Errorf("count teachers: %w", err)
	}
	return total, nil
}

// CountNewUsers returns profiles created within the window.
func (r *AdminRepository) CountNewUsers(ctx context.Context, window models.DateWindow) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM profiles WHERE created_at >= $1 AND created_at < $2`, window.From, window.To); err != nil {
		return 0, fmt.Errorf("count new users: %w", err)
	}
	return total, nil
}

// RevenueCents sums completed payments within the window.
func (r *AdminRepository) RevenueCents(ctx context.Context, window models.DateWindow) (int64, error) {
	const query = `SELECT COALESCE(SUM(amount_cents), 0) FROM payments WHERE status = 'completed' AND created_at >= $1 AND created_at < $2`
	var total int64
	if err := r.db.GetContext(ctx, &total, query, window.From, window.To); err != nil {
		return 0, fmt.Errorf("sum revenue: %w", err)
	}
	return total, nil
}

// CountRequests returns session requests created within the window.
func (r *AdminRepository) CountRequests(ctx context.Context, window models.DateWindow) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM session_requests WHERE created_at >= $1 AND created_at < $2`, window.From, window.To); err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return total, nil
}

// CountRequestsByStatus returns all-time session request counts per status.
func (r *AdminRepository) CountRequestsByStatus(ctx context.Context) (map[models.SessionRequestStatus]int, error) {
	var rows []struct {
		Status models.SessionRequestStatus `db:"status"`
		Total  int                         `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS total FROM session_requests GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count requests by status: %w", err)
	}
	result := make(map[models.SessionRequestStatus]int, len(rows))
	for _, row := range rows {
		result[row.Status] = row.Total
	}
	return result, nil
}
