package models

import (
	"time"
)

// Invoice is a local cache of a Stripe invoice, refreshed whenever the
// team leader's invoice history is fetched.
type Invoice struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	UserID           uint      `json:"user_id" gorm:"not null;index"`
	StripeInvoiceID  string    `json:"stripe_invoice_id" gorm:"unique;not null"`
	AmountDue        int64     `json:"amount_due"`
	Currency         string    `json:"currency"`
	Status           string    `json:"status"`
	HostedInvoiceURL string    `json:"hosted_invoice_url"`
	IssuedAt         time.Time `json:"issued_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
