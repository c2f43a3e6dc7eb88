package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

const notificationColumns = `id, user_id, type, title, message, data, is_read, priority, expires_at, created_at`

// NotificationRepository persists notifications and per-type delivery preferences.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create stores a notification.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	return insertNotification(ctx, r.db, n)
}

// List returns the user's live notifications, newest first.
func (r *NotificationRepository) List(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, int, error) {
	base := ` FROM notifications WHERE user_id = $1 AND (expires_at IS NULL OR expires_at > NOW())`
	if filter.UnreadOnly {
		base += ` AND is_read = FALSE`
	}
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*)`+base, userID); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	_, limit, offset := normalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf(`SELECT %s%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, notificationColumns, base, limit, offset)
	var items []models.Notification
	if err := r.db.SelectContext(ctx, &items, query, userID); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	return items, total, nil
}

// UnreadCount returns the number of unread live notifications.
func (r *NotificationRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE AND (expires_at IS NULL OR expires_at > NOW())`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkAsRead flags one of the user's notifications as read.
func (r *NotificationRepository) MarkAsRead(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkAllAsRead flags every unread notification of the user as read.
func (r *NotificationRepository) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Delete removes one of the user's notifications.
func (r *NotificationRepository) Delete(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// PurgeExpired deletes notifications whose expiry passed.
func (r *NotificationRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ListPreferences returns stored preferences of the user.
func (r *NotificationRepository) ListPreferences(ctx context.Context, userID string) ([]models.NotificationPreference, error) {
	const query = `SELECT user_id, type, browser_enabled, updated_at FROM notification_preferences WHERE user_id = $1 ORDER BY type`
	var prefs []models.NotificationPreference
	if err := r.db.SelectContext(ctx, &prefs, query, userID); err != nil {
		return nil, fmt.Errorf("list notification preferences: %w", err)
	}
	return prefs, nil
}

// UpsertPreference stores the browser delivery flag for a type.
func (r *NotificationRepository) UpsertPreference(ctx context.Context, pref *models.NotificationPreference) error {
	pref.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO notification_preferences (user_id, type, browser_enabled, updated_at)
VALUES (:user_id, :type, :browser_enabled, :updated_at)
ON CONFLICT (user_id, type) DO UPDATE SET browser_enabled = EXCLUDED.browser_enabled, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, pref); err != nil {
		return fmt.Errorf("upsert notification preference: %w", err)
	}
	return nil
}

// BrowserEnabled reports whether browser delivery is allowed for the type. Missing
// preferences default to enabled.
func (r *NotificationRepository) BrowserEnabled(ctx context.Context, userID, notificationType string) (bool, error) {
	var enabled bool
	err := r.db.GetContext(ctx, &enabled, `SELECT browser_enabled FROM notification_preferences WHERE user_id = $1 AND type = $2`, userID, notificationType)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("get notification preference: %w", err)
	}
	return enabled, nil
}
