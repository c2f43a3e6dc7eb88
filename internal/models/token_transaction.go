package models

import "time"

// TokenTransactionType classifies a ledger entry.
type TokenTransactionType string

const (
	TokenDebit      TokenTransactionType = "debit"
	TokenRefund     TokenTransactionType = "refund"
	TokenPurchase   TokenTransactionType = "purchase"
	TokenAdjustment TokenTransactionType = "adjustment"
)

// TokenTransaction records a signed movement of a student's token balance.
type TokenTransaction struct {
	ID               string               `db:"id" json:"id"`
	StudentID        string               `db:"student_id" json:"student_id"`
	SessionRequestID *string              `db:"session_request_id" json:"session_request_id,omitempty"`
	Amount           int                  `db:"amount" json:"amount"`
	Type             TokenTransactionType `db:"type" json:"type"`
	Description      string               `db:"description" json:"description"`
	CreatedAt        time.Time            `db:"created_at" json:"created_at"`
}
