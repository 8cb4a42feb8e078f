package models

type CreateCheckoutSessionRequest struct {
	TeamID uint   `json:"team_id" validate:"required"`
	Mode   string `json:"mode" validate:"required,oneof=subscription setup"`
}

type CancelSubscriptionRequest struct {
	TeamID uint `json:"team_id" validate:"required"`
}

type SubscribeTeamRequest struct {
	TeamID uint `json:"team_id" validate:"required"`
}

type AddCardRequest struct {
	Token string `json:"token" validate:"required"`
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}
