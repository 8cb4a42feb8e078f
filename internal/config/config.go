package config

import (
	"os"
)

type AppConfig struct {
	// URL is the public address of the web frontend. APIURL is the address
	// this server is reachable at; Stripe redirects the browser here after
	// checkout.
	URL    string
	APIURL string
	Port   string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// PriceID is the single subscription price every team subscribes to.
	PriceID string
}

type EmailConfig struct {
	APIKey      string
	FromAddress string
	FromName    string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

type Config struct {
	App      AppConfig
	Stripe   StripeConfig
	Email    EmailConfig
	R2       R2Config
	Database struct {
		URL string
	}
	JWT struct {
		Secret string
	}
}

func LoadConfig() *Config {
	cfg := &Config{}

	cfg.App.URL = os.Getenv("APP_URL")
	cfg.App.APIURL = os.Getenv("API_URL")
	cfg.App.Port = os.Getenv("PORT")
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}

	cfg.Stripe.SecretKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.Stripe.WebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	cfg.Stripe.PriceID = os.Getenv("STRIPE_PRICE_ID")

	cfg.Email.APIKey = os.Getenv("RESEND_API_KEY")
	cfg.Email.FromAddress = os.Getenv("EMAIL_FROM_ADDRESS")
	cfg.Email.FromName = os.Getenv("EMAIL_FROM_NAME")

	cfg.R2.AccountID = os.Getenv("R2_ACCOUNT_ID")
	cfg.R2.AccessKeyID = os.Getenv("R2_ACCESS_KEY_ID")
	cfg.R2.SecretAccessKey = os.Getenv("R2_SECRET_ACCESS_KEY")
	cfg.R2.Bucket = os.Getenv("R2_BUCKET")

	cfg.Database.URL = os.Getenv("DATABASE_URL")
	cfg.JWT.Secret = os.Getenv("JWT_SECRET")

	return cfg
}
