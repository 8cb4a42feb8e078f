package handler

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/deepakgsrn/saas/internal/models"
	"github.com/deepakgsrn/saas/internal/service"
	"github.com/deepakgsrn/saas/pkg/payment"
	"github.com/deepakgsrn/saas/pkg/utils"
)

type BillingHandler struct {
	billingService *service.BillingService
	validator      *utils.Validator
	logger         *zap.SugaredLogger
	appURL         string
}

func NewBillingHandler(billingService *service.BillingService, validator *utils.Validator, logger *zap.SugaredLogger, appURL string) *BillingHandler {
	return &BillingHandler{
		billingService: billingService,
		validator:      validator,
		logger:         logger,
		appURL:         appURL,
	}
}

// CheckoutCompleted is where Stripe redirects the browser after checkout.
// Every failure becomes a redirect to the settings page with the message
// in the query string; the browser never sees a raw error status here.
func (h *BillingHandler) CheckoutCompleted(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")

	team, err := h.billingService.CompleteCheckout(sessionID)
	if err != nil {
		h.logger.Warnw("checkout completion failed", "session_id", sessionID, "error", err)
		return c.Redirect(
			h.appURL+"/your-settings?error="+url.QueryEscape(err.Error()),
			fiber.StatusFound,
		)
	}

	return c.Redirect(
		fmt.Sprintf("%s/team/%s/billing", h.appURL, team.Slug),
		fiber.StatusFound,
	)
}

// InvoicePaymentFailed receives Stripe's invoice.payment_failed webhook.
// The body must stay raw until the signature is verified. Verified events
// are acknowledged with 200 regardless of content so Stripe stops
// retrying; verification failures go to the framework's error handler.
func (h *BillingHandler) InvoicePaymentFailed(c *fiber.Ctx) error {
	payload := c.Body()
	signatureHeader := c.Get("Stripe-Signature")

	event, err := h.billingService.VerifyWebhook(payload, signatureHeader)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("webhook verification failed: %v", err))
	}

	// TODO: decide whether a failed invoice payment should flip the
	// team's IsPaymentFailed flag or suspend the subscription.
	h.logger.Infow("stripe invoice payment failed",
		"event_id", event.ID,
		"event_type", event.Type,
	)

	return c.SendStatus(fiber.StatusOK)
}

func (h *BillingHandler) CreateCheckoutSession(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse("User not authenticated"))
	}

	var req models.CreateCheckoutSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("Invalid request body"))
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse(err.Error()))
	}

	session, err := h.billingService.StartCheckout(userID, req.TeamID, payment.SessionMode(req.Mode))
	if err != nil {
		return h.serviceError(c, err)
	}

	return c.JSON(models.SuccessResponse(session, ""))
}

func (h *BillingHandler) CancelSubscription(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse("User not authenticated"))
	}

	var req models.CancelSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("Invalid request body"))
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse(err.Error()))
	}

	team, err := h.billingService.CancelTeamSubscription(userID, req.TeamID)
	if err != nil {
		return h.serviceError(c, err)
	}

	return c.JSON(models.SuccessResponse(team, "Subscription cancelled"))
}

func (h *BillingHandler) SubscribeTeam(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse("User not authenticated"))
	}

	var req models.SubscribeTeamRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("Invalid request body"))
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse(err.Error()))
	}

	team, err := h.billingService.SubscribeTeamWithCardOnFile(userID, req.TeamID)
	if err != nil {
		return h.serviceError(c, err)
	}

	return c.JSON(models.SuccessResponse(team, "Team subscribed"))
}

func (h *BillingHandler) AddCard(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse("User not authenticated"))
	}

	var req models.AddCardRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("Invalid request body"))
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse(err.Error()))
	}

	user, err := h.billingService.AddCard(userID, req.Token)
	if err != nil {
		return h.serviceError(c, err)
	}

	return c.JSON(models.SuccessResponse(user, "Card saved"))
}

func (h *BillingHandler) GetInvoices(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse("User not authenticated"))
	}

	invoices, err := h.billingService.GetListOfInvoices(userID)
	if err != nil {
		return h.serviceError(c, err)
	}

	return c.JSON(models.SuccessResponse(invoices, ""))
}

// serviceError maps billing errors onto HTTP statuses for the JSON API.
func (h *BillingHandler) serviceError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrPermissionDenied):
		status = fiber.StatusForbidden
	case errors.Is(err, service.ErrUserNotFound), errors.Is(err, service.ErrTeamNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, payment.ErrMissingSetupTarget),
		errors.Is(err, service.ErrNoSubscription),
		errors.Is(err, service.ErrNoCardOnFile),
		errors.Is(err, service.ErrAlreadyPaying):
		status = fiber.StatusBadRequest
	}
	return c.Status(status).JSON(models.ErrorResponse(err.Error()))
}

func currentUserID(c *fiber.Ctx) (uint, bool) {
	userID, ok := c.Locals("userID").(uint)
	return userID, ok
}
