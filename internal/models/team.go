package models

import (
	"time"
)

type Team struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	Name         string `json:"name" gorm:"not null"`
	Slug         string `json:"slug" gorm:"unique;not null"`
	TeamLeaderID uint   `json:"team_leader_id" gorm:"not null;index"`

	StripeSubscriptionID string `json:"stripe_subscription_id" gorm:"index"`
	IsSubscriptionActive bool   `json:"is_subscription_active"`
	IsPaymentFailed      bool   `json:"is_payment_failed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
