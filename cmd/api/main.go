package main

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"

	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/deepakgsrn/saas/internal/config"
	"github.com/deepakgsrn/saas/internal/handler"
	"github.com/deepakgsrn/saas/internal/middleware"
	"github.com/deepakgsrn/saas/internal/models"
	"github.com/deepakgsrn/saas/internal/repository"
	"github.com/deepakgsrn/saas/internal/service"
	"github.com/deepakgsrn/saas/pkg/database"
	"github.com/deepakgsrn/saas/pkg/email"
	"github.com/deepakgsrn/saas/pkg/logger"
	"github.com/deepakgsrn/saas/pkg/payment"
	"github.com/deepakgsrn/saas/pkg/storage"
	"github.com/deepakgsrn/saas/pkg/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	cfg := config.LoadConfig()

	zlog, err := logger.New()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer func() { _ = zlog.Sync() }()

	db, err := database.NewDatabase(cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Team{},
		&models.Invoice{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	teamRepo := repository.NewTeamRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)

	// Stripe gateway
	stripeGateway := payment.NewStripeGateway(payment.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		PriceID:       cfg.Stripe.PriceID,
		AppURL:        cfg.App.URL,
		APIURL:        cfg.App.APIURL,
	})

	// Receipt archive
	receiptStorage, err := storage.NewReceiptStorage(cfg)
	if err != nil {
		log.Fatal("Failed to initialize receipt storage:", err)
	}

	// Email service
	emailService := email.NewEmailService(cfg.Email.APIKey, cfg.Email.FromAddress, cfg.Email.FromName, zlog)

	// Services
	billingService := service.NewBillingService(
		stripeGateway,
		userRepo,
		teamRepo,
		invoiceRepo,
		receiptStorage,
		emailService,
		zlog,
	)
	authService := service.NewAuthService(userRepo, cfg.JWT.Secret)

	// Validator
	validator := utils.NewValidator()

	// Handlers
	billingHandler := handler.NewBillingHandler(billingService, validator, zlog, cfg.App.URL)
	authHandler := handler.NewAuthHandler(authService, validator)

	// Router
	app := fiber.New()

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.URL,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE",
		AllowCredentials: true,
	}))
	app.Use(fiberlogger.New())
	app.Use(limiter.New(limiter.Config{
		Max:        20,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}))

	// Browser redirect target for finished checkouts (public)
	app.Get("/stripe/checkout-completed/:sessionId", billingHandler.CheckoutCompleted)

	api := app.Group("/api/v1")

	// Server-to-server webhook (public, signature verified)
	api.Post("/public/stripe-invoice-payment-failed", billingHandler.InvoicePaymentFailed)

	// Auth
	api.Post("/auth/login", authHandler.Login)

	// Team-leader billing routes (protected)
	teamLeader := api.Group("/team-leader", middleware.AuthMiddleware(cfg.JWT.Secret))
	teamLeader.Post("/stripe/checkout-session", billingHandler.CreateCheckoutSession)
	teamLeader.Post("/stripe/card", billingHandler.AddCard)
	teamLeader.Post("/subscribe", billingHandler.SubscribeTeam)
	teamLeader.Post("/cancel-subscription", billingHandler.CancelSubscription)
	teamLeader.Get("/invoices", billingHandler.GetInvoices)

	zlog.Infow("starting server", "port", cfg.App.Port)
	log.Fatal(app.Listen(":" + cfg.App.Port))
}
