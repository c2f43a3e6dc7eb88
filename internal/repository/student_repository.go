package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

// StudentRepository handles persistence for students, parents and the token ledger.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a new repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns a student with profile display fields.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	const query = `SELECT s.id, s.grade_level, s.tokens, s.parent_id, p.full_name, p.email, p.avatar_url
FROM students s JOIN profiles p ON p.id = s.id WHERE s.id = $1`
	var student models.StudentDetail
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get student: %w", err)
	}
	return &student, nil
}

// ListByParent returns the children linked to a parent.
func (r *StudentRepository) ListByParent(ctx context.Context, parentID string) ([]models.StudentDetail, error) {
	const query = `SELECT s.id, s.grade_level, s.tokens, s.parent_id, p.full_name, p.email, p.avatar_url
FROM students s JOIN profiles p ON p.id = s.id WHERE s.parent_id = $1 ORDER BY p.full_name ASC`
	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, parentID); err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	return students, nil
}

// FindParent returns the parent extension row.
func (r *StudentRepository) FindParent(ctx context.Context, id string) (*models.Parent, error) {
	var parent models.Parent
	if err := r.db.GetContext(ctx, &parent, `SELECT id, children_count FROM parents WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get parent: %w", err)
	}
	return &parent, nil
}

// ListTransactions returns the student's token ledger, newest first.
func (r *StudentRepository) ListTransactions(ctx context.Context, studentID string, page, pageSize int) ([]models.TokenTransaction, int, error) {
	_, limit, offset := normalizePage(page, pageSize)
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM token_transactions WHERE student_id = $1`, studentID); err != nil {
		return nil, 0, fmt.Errorf("count token transactions: %w", err)
	}
	const query = `SELECT id, student_id, session_request_id, amount, type, description, created_at
FROM token_transactions WHERE student_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	var txs []models.TokenTransaction
	if err := r.db.SelectContext(ctx, &txs, query, studentID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("list token transactions: %w", err)
	}
	return txs, total, nil
}
