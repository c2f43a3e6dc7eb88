package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/pkg/database"
)

var (
	// ErrInsufficientBalance means the student cannot cover the request cost.
	ErrInsufficientBalance = errors.New("insufficient token balance")
	// ErrPendingExists means the student already has a pending request with the teacher.
	ErrPendingExists = errors.New("pending request already exists")
	// ErrNotPending means the request already left the pending state.
	ErrNotPending = errors.New("session request is not pending")
	// ErrRequestExpired means the request is still pending but past its
	// expiry and waits for the sweep to refund it.
	ErrRequestExpired = errors.New("session request has expired")
)

const pendingRequestIndex = "session_requests_one_pending"

const sessionRequestColumns = `id, student_id, teacher_id, subject, message, requested_start, requested_end, duration_hours, tokens_required, status, decline_reason, teacher_response, expires_at, responded_at, created_at, updated_at`

// SessionRequestRepository runs the token escrow workflow against Postgres. Every
// state change that moves tokens happens inside a single transaction holding a row
// lock on the student, so balance checks and writes cannot interleave.
type SessionRequestRepository struct {
	db *sqlx.DB
}

// NewSessionRequestRepository constructs the repository.
func NewSessionRequestRepository(db *sqlx.DB) *SessionRequestRepository {
	return &SessionRequestRepository{db: db}
}

// CreateWithDebit inserts the request, debits its cost, records the ledger entry and
// stores the teacher notification atomically. Nothing is written when the balance is
// too low or a pending request to the same teacher exists.
func (r *SessionRequestRepository) CreateWithDebit(ctx context.Context, req *models.SessionRequest, note *models.Notification) (int, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now
	req.Status = models.SessionRequestPending

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin session request tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var tokens int
	if err := tx.GetContext(ctx, &tokens, `SELECT tokens FROM students WHERE id = $1 FOR UPDATE`, req.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return 0, err
		}
		return 0, fmt.Errorf("lock student: %w", err)
	}
	if tokens < req.TokensRequired {
		return tokens, ErrInsufficientBalance
	}

	var pending bool
	const pendingQuery = `SELECT EXISTS (SELECT 1 FROM session_requests WHERE student_id = $1 AND teacher_id = $2 AND status = 'pending')`
	if err := tx.GetContext(ctx, &pending, pendingQuery, req.StudentID, req.TeacherID); err != nil {
		return tokens, fmt.Errorf("check pending request: %w", err)
	}
	if pending {
		return tokens, ErrPendingExists
	}

	const insert = `INSERT INTO session_requests (id, student_id, teacher_id, subject, message, requested_start, requested_end, duration_hours, tokens_required, status, expires_at, created_at, updated_at)
VALUES (:id, :student_id, :teacher_id, :subject, :message, :requested_start, :requested_end, :duration_hours, :tokens_required, :status, :expires_at, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insert, req); err != nil {
		if database.IsUniqueViolation(err, pendingRequestIndex) {
			return tokens, ErrPendingExists
		}
		return tokens, fmt.Errorf("insert session request: %w", err)
	}

	var balance int
	if err := tx.GetContext(ctx, &balance, `UPDATE students SET tokens = tokens - $2 WHERE id = $1 RETURNING tokens`, req.StudentID, req.TokensRequired); err != nil {
		return tokens, fmt.Errorf("debit tokens: %w", err)
	}

	requestID := req.ID
	debit := &models.TokenTransaction{
		StudentID:        req.StudentID,
		SessionRequestID: &requestID,
		Amount:           -req.TokensRequired,
		Type:             models.TokenDebit,
		Description:      fmt.Sprintf("Session request %s", strings.TrimSpace(req.Subject)),
		CreatedAt:        now,
	}
	if err := insertTokenTransaction(ctx, tx, debit); err != nil {
		return tokens, err
	}
	if note != nil {
		if err := insertNotification(ctx, tx, note); err != nil {
			return tokens, err
		}
	}

	if err := tx.Commit(); err != nil {
		return tokens, fmt.Errorf("commit session request tx: %w", err)
	}
	return balance, nil
}

// Transition moves a pending request to t.To. Refunding states credit tokens_required
// back with one refund ledger entry. note is addressed by the caller and stored in the
// same transaction. The updated request is returned.
func (r *SessionRequestRepository) Transition(ctx context.Context, t models.Transition, note func(*models.SessionRequest) *models.Notification) (*models.SessionRequest, error) {
	if t.At.IsZero() {
		t.At = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var req models.SessionRequest
	lockQuery := `SELECT ` + sessionRequestColumns + ` FROM session_requests WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &req, lockQuery, t.RequestID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock session request: %w", err)
	}
	if req.Status != models.SessionRequestPending {
		return &req, ErrNotPending
	}
	if t.To == models.SessionRequestAccepted && !req.ExpiresAt.After(t.At) {
		return &req, ErrRequestExpired
	}

	req.Status = t.To
	req.DeclineReason = t.Reason
	req.TeacherResponse = t.Response
	req.UpdatedAt = t.At
	if t.To == models.SessionRequestAccepted || t.To == models.SessionRequestDeclined {
		at := t.At
		req.RespondedAt = &at
	}
	const update = `UPDATE session_requests SET status = :status, decline_reason = :decline_reason, teacher_response = :teacher_response,
responded_at = :responded_at, updated_at = :updated_at WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, update, &req); err != nil {
		return nil, fmt.Errorf("update session request: %w", err)
	}

	if t.To.Refunds() && req.TokensRequired > 0 {
		if _, err := tx.ExecContext(ctx, `UPDATE students SET tokens = tokens + $2 WHERE id = $1`, req.StudentID, req.TokensRequired); err != nil {
			return nil, fmt.Errorf("refund tokens: %w", err)
		}
		requestID := req.ID
		refund := &models.TokenTransaction{
			StudentID:        req.StudentID,
			SessionRequestID: &requestID,
			Amount:           req.TokensRequired,
			Type:             models.TokenRefund,
			Description:      fmt.Sprintf("Refund for %s session request", t.To),
			CreatedAt:        t.At,
		}
		if err := insertTokenTransaction(ctx, tx, refund); err != nil {
			return nil, err
		}
	}

	if note != nil {
		if n := note(&req); n != nil {
			if err := insertNotification(ctx, tx, n); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition tx: %w", err)
	}
	return &req, nil
}

// FindByID returns a request with counterpart names.
func (r *SessionRequestRepository) FindByID(ctx context.Context, id string) (*models.SessionRequestView, error) {
	query := `SELECT ` + prefixed("sr", sessionRequestColumns) + `, sp.full_name AS student_name, tp.full_name AS teacher_name
FROM session_requests sr
JOIN profiles sp ON sp.id = sr.student_id
JOIN profiles tp ON tp.id = sr.teacher_id
WHERE sr.id = $1`
	var req models.SessionRequestView
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get session request: %w", err)
	}
	return &req, nil
}

// List returns requests matching the filter, newest first.
func (r *SessionRequestRepository) List(ctx context.Context, filter models.SessionRequestFilter) ([]models.SessionRequestView, int, error) {
	base := ` FROM session_requests sr
JOIN profiles sp ON sp.id = sr.student_id
JOIN profiles tp ON tp.id = sr.teacher_id
WHERE 1=1`
	var args []interface{}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		base += fmt.Sprintf(" AND sr.student_id = $%d", len(args))
	}
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		base += fmt.Sprintf(" AND sr.teacher_id = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		base += fmt.Sprintf(" AND sr.status = $%d", len(args))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*)"+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count session requests: %w", err)
	}
	_, limit, offset := normalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s, sp.full_name AS student_name, tp.full_name AS teacher_name%s ORDER BY sr.created_at DESC LIMIT %d OFFSET %d",
		prefixed("sr", sessionRequestColumns), base, limit, offset)
	var requests []models.SessionRequestView
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list session requests: %w", err)
	}
	return requests, total, nil
}

// ListExpired returns pending request ids whose expiry passed.
func (r *SessionRequestRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	const query = `SELECT id FROM session_requests WHERE status = 'pending' AND expires_at <= $1 ORDER BY expires_at ASC LIMIT $2`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, now, limit); err != nil {
		return nil, fmt.Errorf("list expired session requests: %w", err)
	}
	return ids, nil
}

// RefundCount returns how many refund entries reference the request.
func (r *SessionRequestRepository) RefundCount(ctx context.Context, requestID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM token_transactions WHERE session_request_id = $1 AND type = 'refund'`, requestID); err != nil {
		return 0, fmt.Errorf("count refunds: %w", err)
	}
	return count, nil
}

func insertTokenTransaction(ctx context.Context, ext sqlx.ExtContext, txn *models.TokenTransaction) error {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO token_transactions (id, student_id, session_request_id, amount, type, description, created_at)
VALUES (:id, :student_id, :session_request_id, :amount, :type, :description, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, ext, query, txn); err != nil {
		return fmt.Errorf("insert token transaction: %w", err)
	}
	return nil
}

func insertNotification(ctx context.Context, ext sqlx.ExtContext, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Priority == "" {
		n.Priority = models.PriorityNormal
	}
	if len(n.Data) == 0 {
		n.Data = json.RawMessage("{}")
	}
	const query = `INSERT INTO notifications (id, user_id, type, title, message, data, is_read, priority, expires_at, created_at)
VALUES (:id, :user_id, :type, :title, :message, :data, :is_read, :priority, :expires_at, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, ext, query, n); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
