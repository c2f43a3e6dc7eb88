package models

import "time"

// PaymentStatus is the settlement state of a payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Payment is a token purchase recorded by the billing integration.
type Payment struct {
	ID          string        `db:"id" json:"id"`
	UserID      string        `db:"user_id" json:"user_id"`
	AmountCents int64         `db:"amount_cents" json:"amount_cents"`
	Currency    string        `db:"currency" json:"currency"`
	Tokens      int           `db:"tokens" json:"tokens"`
	Status      PaymentStatus `db:"status" json:"status"`
	ProviderRef *string       `db:"provider_ref" json:"provider_ref,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
}

// PaymentView joins the payer's display fields.
type PaymentView struct {
	Payment
	UserName  string `db:"user_name" json:"user_name"`
	UserEmail string `db:"user_email" json:"user_email"`
}

// PaymentFilter narrows payment oversight queries.
type PaymentFilter struct {
	Status   *PaymentStatus
	UserID   string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}
