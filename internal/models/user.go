package models

import (
	"time"
)

type User struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	FullName string `json:"full_name" gorm:"not null"`
	Email    string `json:"email" gorm:"unique;not null"`
	Password string `json:"-" gorm:"not null"`

	// Stripe references. The customer id is set the first time the user
	// completes a subscription checkout; the card fields mirror the
	// customer's default payment method so the UI can render it without
	// another Stripe round trip.
	StripeCustomerID   string `json:"stripe_customer_id" gorm:"index"`
	StripeCardID       string `json:"stripe_card_id"`
	CardBrand          string `json:"card_brand"`
	CardLast4          string `json:"card_last4"`
	HasCardInformation bool   `json:"has_card_information"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
