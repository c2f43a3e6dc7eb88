package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

const paymentViewColumns = `pm.id, pm.user_id, pm.amount_cents, pm.currency, pm.tokens, pm.status, pm.provider_ref, pm.created_at,
p.full_name AS user_name, p.email AS user_email`

// maxExportRows bounds a single payment export.
const maxExportRows = 50000

// PaymentRepository reads payments for admin oversight.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// List returns a page of payments matching filter, newest first.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentView, int, error) {
	base, args := paymentFilterClause(filter)
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*)"+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	_, limit, offset := normalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s%s ORDER BY pm.created_at DESC LIMIT %d OFFSET %d", paymentViewColumns, base, limit, offset)
	var payments []models.PaymentView
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	return payments, total, nil
}

// ListForExport returns every payment matching filter up to the export bound.
func (r *PaymentRepository) ListForExport(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentView, error) {
	base, args := paymentFilterClause(filter)
	query := fmt.Sprintf("SELECT %s%s ORDER BY pm.created_at ASC LIMIT %d", paymentViewColumns, base, maxExportRows)
	var payments []models.PaymentView
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, fmt.Errorf("list payments for export: %w", err)
	}
	return payments, nil
}

func paymentFilterClause(filter models.PaymentFilter) (string, []interface{}) {
	base := ` FROM payments pm JOIN profiles p ON p.id = pm.user_id WHERE 1=1`
	var args []interface{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		base += fmt.Sprintf(" AND pm.status = $%d", len(args))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		base += fmt.Sprintf(" AND pm.user_id = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		base += fmt.Sprintf(" AND pm.created_at >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		base += fmt.Sprintf(" AND pm.created_at < $%d", len(args))
	}
	return base, args
}
