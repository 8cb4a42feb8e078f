package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v74"
	"go.uber.org/zap"

	"github.com/deepakgsrn/saas/internal/models"
	"github.com/deepakgsrn/saas/pkg/payment"
)

// PaymentGateway is the slice of the Stripe gateway the billing flow uses.
type PaymentGateway interface {
	CreateSession(p payment.SessionParams) (*stripe.CheckoutSession, error)
	RetrieveSession(sessionID string) (*stripe.CheckoutSession, error)
	CreateCustomer(token, email string, teamLeaderID uint) (*stripe.Customer, error)
	CreateSubscription(customerID string, teamID, teamLeaderID uint) (*stripe.Subscription, error)
	CancelSubscription(subscriptionID string) (*stripe.Subscription, error)
	RetrieveCard(customerID, cardID string) (*stripe.Card, error)
	CreateNewCard(customerID, token string) (*stripe.Card, error)
	UpdateCustomerDefaultPaymentMethod(customerID, paymentMethodID string) error
	UpdateSubscriptionDefaultPaymentMethod(subscriptionID, paymentMethodID string) error
	ListInvoices(customerID string) ([]*stripe.Invoice, error)
	VerifyWebhook(payload []byte, signatureHeader string) (*stripe.Event, error)
}

type UserStore interface {
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
}

type TeamStore interface {
	GetByID(id uint) (*models.Team, error)
	Update(team *models.Team) error
}

type InvoiceStore interface {
	Upsert(invoice *models.Invoice) error
	GetByUserID(userID uint) ([]models.Invoice, error)
}

// ReceiptArchiver persists a checkout receipt to object storage.
type ReceiptArchiver interface {
	Archive(ctx context.Context, key string, body []byte) error
}

// EmailSender notifies the team leader that their subscription started.
type EmailSender interface {
	SendSubscriptionStarted(toEmail, fullName, teamName string) error
}

type BillingService struct {
	gateway  PaymentGateway
	users    UserStore
	teams    TeamStore
	invoices InvoiceStore
	archive  ReceiptArchiver
	email    EmailSender
	logger   *zap.SugaredLogger
}

// NewBillingService wires the billing flow. archive and email are
// optional; pass nil to disable receipt archiving or the receipt email.
func NewBillingService(
	gateway PaymentGateway,
	users UserStore,
	teams TeamStore,
	invoices InvoiceStore,
	archive ReceiptArchiver,
	email EmailSender,
	logger *zap.SugaredLogger,
) *BillingService {
	return &BillingService{
		gateway:  gateway,
		users:    users,
		teams:    teams,
		invoices: invoices,
		archive:  archive,
		email:    email,
		logger:   logger,
	}
}

// StartCheckout creates a checkout session for the team. Only the team
// leader may start one; setup mode additionally needs a stored customer
// and subscription to retarget.
func (s *BillingService) StartCheckout(userID, teamID uint, mode payment.SessionMode) (*models.CheckoutSession, error) {
	user, team, err := s.authorize(userID, teamID)
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateSession(payment.SessionParams{
		UserID:         user.ID,
		TeamID:         team.ID,
		TeamSlug:       team.Slug,
		CustomerID:     user.StripeCustomerID,
		SubscriptionID: team.StripeSubscriptionID,
		UserEmail:      user.Email,
		Mode:           mode,
	})
	if err != nil {
		return nil, err
	}

	return &models.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// CompleteCheckout finishes a redirect-based checkout. It retrieves the
// expanded session, authorizes it against the user/team referenced in its
// metadata and applies the payment state for the session's mode. The
// returned team carries the slug for the success redirect.
func (s *BillingService) CompleteCheckout(sessionID string) (*models.Team, error) {
	session, err := s.gateway.RetrieveSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("retrieve checkout session: %w", err)
	}

	userID, err := strconv.ParseUint(session.Metadata["userId"], 10, 32)
	if err != nil {
		return nil, ErrWrongSession
	}
	teamID, err := strconv.ParseUint(session.Metadata["teamId"], 10, 32)
	if err != nil {
		return nil, ErrWrongSession
	}

	user, team, err := s.authorize(uint(userID), uint(teamID))
	if err != nil {
		return nil, err
	}

	switch session.Mode {
	case stripe.CheckoutSessionModeSetup:
		if session.SetupIntent == nil || session.SetupIntent.PaymentMethod == nil {
			return nil, ErrWrongSession
		}
		if err := s.applyNewCard(session, user, team); err != nil {
			return nil, err
		}
	case stripe.CheckoutSessionModeSubscription:
		if err := s.SaveStripeCustomerAndCard(session, user); err != nil {
			return nil, err
		}
		if err := s.SubscribeTeam(session, team); err != nil {
			return nil, err
		}
		if _, err := s.syncInvoices(user); err != nil {
			return nil, err
		}
		s.archiveReceipt(session, team)
		s.sendReceiptEmail(user, team)
	default:
		return nil, ErrWrongSession
	}

	return team, nil
}

// applyNewCard handles a completed setup-mode session: the customer's and
// subscription's default payment methods are switched to the confirmed
// method before the card reference is persisted on the user.
func (s *BillingService) applyNewCard(session *stripe.CheckoutSession, user *models.User, team *models.Team) error {
	paymentMethod := session.SetupIntent.PaymentMethod

	if user.StripeCustomerID != "" {
		if err := s.gateway.UpdateCustomerDefaultPaymentMethod(user.StripeCustomerID, paymentMethod.ID); err != nil {
			return err
		}
	}
	if team.StripeSubscriptionID != "" {
		if err := s.gateway.UpdateSubscriptionDefaultPaymentMethod(team.StripeSubscriptionID, paymentMethod.ID); err != nil {
			return err
		}
	}

	return s.ChangeStripeCard(session, user)
}

// ChangeStripeCard persists the session's confirmed payment method as the
// user's card on file.
func (s *BillingService) ChangeStripeCard(session *stripe.CheckoutSession, user *models.User) error {
	if session.SetupIntent == nil || session.SetupIntent.PaymentMethod == nil {
		return ErrWrongSession
	}
	paymentMethod := session.SetupIntent.PaymentMethod

	user.StripeCardID = paymentMethod.ID
	if paymentMethod.Card != nil {
		user.CardBrand = string(paymentMethod.Card.Brand)
		user.CardLast4 = paymentMethod.Card.Last4
	}
	user.HasCardInformation = true

	return s.users.Update(user)
}

// SaveStripeCustomerAndCard persists the customer created by a
// subscription-mode checkout, plus the card Stripe collected with it.
func (s *BillingService) SaveStripeCustomerAndCard(session *stripe.CheckoutSession, user *models.User) error {
	if session.Customer == nil {
		return ErrWrongSession
	}

	user.StripeCustomerID = session.Customer.ID
	if session.Subscription != nil && session.Subscription.DefaultPaymentMethod != nil {
		paymentMethod := session.Subscription.DefaultPaymentMethod
		user.StripeCardID = paymentMethod.ID
		if paymentMethod.Card != nil {
			user.CardBrand = string(paymentMethod.Card.Brand)
			user.CardLast4 = paymentMethod.Card.Last4
		}
		user.HasCardInformation = true
	}

	return s.users.Update(user)
}

// SubscribeTeam marks the team as subscribed with the session's
// subscription.
func (s *BillingService) SubscribeTeam(session *stripe.CheckoutSession, team *models.Team) error {
	if session.Subscription == nil {
		return ErrWrongSession
	}

	team.StripeSubscriptionID = session.Subscription.ID
	team.IsSubscriptionActive = true
	team.IsPaymentFailed = false

	return s.teams.Update(team)
}

// AddCard registers a card from a one-time token. The Stripe customer is
// created on first use; later tokens attach a new card to it.
func (s *BillingService) AddCard(userID uint, token string) (*models.User, error) {
	user, err := s.users.GetByID(userID)
	if err != nil || user == nil {
		return nil, ErrUserNotFound
	}

	var newCard *stripe.Card
	if user.StripeCustomerID == "" {
		stripeCustomer, err := s.gateway.CreateCustomer(token, user.Email, user.ID)
		if err != nil {
			return nil, err
		}
		user.StripeCustomerID = stripeCustomer.ID
		if stripeCustomer.DefaultSource != nil {
			newCard, err = s.gateway.RetrieveCard(stripeCustomer.ID, stripeCustomer.DefaultSource.ID)
			if err != nil {
				return nil, err
			}
		}
	} else {
		newCard, err = s.gateway.CreateNewCard(user.StripeCustomerID, token)
		if err != nil {
			return nil, err
		}
	}

	if newCard != nil {
		user.StripeCardID = newCard.ID
		user.CardBrand = string(newCard.Brand)
		user.CardLast4 = newCard.Last4
		user.HasCardInformation = true
	}

	if err := s.users.Update(user); err != nil {
		return nil, err
	}
	return user, nil
}

// SubscribeTeamWithCardOnFile subscribes the team using the leader's
// stored card, without the checkout redirect flow.
func (s *BillingService) SubscribeTeamWithCardOnFile(userID, teamID uint) (*models.Team, error) {
	user, team, err := s.authorize(userID, teamID)
	if err != nil {
		return nil, err
	}
	if user.StripeCustomerID == "" || !user.HasCardInformation {
		return nil, ErrNoCardOnFile
	}
	if team.IsSubscriptionActive {
		return nil, ErrAlreadyPaying
	}

	subscription, err := s.gateway.CreateSubscription(user.StripeCustomerID, team.ID, user.ID)
	if err != nil {
		return nil, err
	}

	team.StripeSubscriptionID = subscription.ID
	team.IsSubscriptionActive = true
	team.IsPaymentFailed = false
	if err := s.teams.Update(team); err != nil {
		return nil, err
	}
	return team, nil
}

// CancelTeamSubscription cancels the team's subscription at Stripe and
// clears the local reference. Leader only.
func (s *BillingService) CancelTeamSubscription(userID, teamID uint) (*models.Team, error) {
	_, team, err := s.authorize(userID, teamID)
	if err != nil {
		return nil, err
	}
	if team.StripeSubscriptionID == "" {
		return nil, ErrNoSubscription
	}

	if _, err := s.gateway.CancelSubscription(team.StripeSubscriptionID); err != nil {
		return nil, err
	}

	team.StripeSubscriptionID = ""
	team.IsSubscriptionActive = false
	if err := s.teams.Update(team); err != nil {
		return nil, err
	}

	return team, nil
}

// GetListOfInvoices refreshes the local invoice cache from Stripe and
// returns it, newest first.
func (s *BillingService) GetListOfInvoices(userID uint) ([]models.Invoice, error) {
	user, err := s.users.GetByID(userID)
	if err != nil || user == nil {
		return nil, ErrUserNotFound
	}
	return s.syncInvoices(user)
}

// VerifyWebhook validates an inbound webhook's signature against the raw
// request body.
func (s *BillingService) VerifyWebhook(payload []byte, signatureHeader string) (*stripe.Event, error) {
	return s.gateway.VerifyWebhook(payload, signatureHeader)
}

func (s *BillingService) authorize(userID, teamID uint) (*models.User, *models.Team, error) {
	user, err := s.users.GetByID(userID)
	if err != nil || user == nil {
		return nil, nil, ErrUserNotFound
	}
	team, err := s.teams.GetByID(teamID)
	if err != nil || team == nil {
		return nil, nil, ErrTeamNotFound
	}
	if team.TeamLeaderID != user.ID {
		return nil, nil, ErrPermissionDenied
	}
	return user, team, nil
}

func (s *BillingService) syncInvoices(user *models.User) ([]models.Invoice, error) {
	if user.StripeCustomerID == "" {
		return nil, nil
	}

	stripeInvoices, err := s.gateway.ListInvoices(user.StripeCustomerID)
	if err != nil {
		return nil, err
	}
	for _, inv := range stripeInvoices {
		record := &models.Invoice{
			UserID:           user.ID,
			StripeInvoiceID:  inv.ID,
			AmountDue:        inv.AmountDue,
			Currency:         string(inv.Currency),
			Status:           string(inv.Status),
			HostedInvoiceURL: inv.HostedInvoiceURL,
			IssuedAt:         time.Unix(inv.Created, 0),
		}
		if err := s.invoices.Upsert(record); err != nil {
			return nil, err
		}
	}

	return s.invoices.GetByUserID(user.ID)
}

// archiveReceipt is best effort: a storage failure must not fail the
// checkout the user already paid for.
func (s *BillingService) archiveReceipt(session *stripe.CheckoutSession, team *models.Team) {
	if s.archive == nil {
		return
	}

	receipt := map[string]interface{}{
		"session_id":   session.ID,
		"team_id":      team.ID,
		"team_slug":    team.Slug,
		"completed_at": time.Now().UTC().Format(time.RFC3339),
	}
	if session.Customer != nil {
		receipt["customer_id"] = session.Customer.ID
	}
	if session.Subscription != nil {
		receipt["subscription_id"] = session.Subscription.ID
	}

	body, err := json.Marshal(receipt)
	if err != nil {
		s.logger.Warnw("marshal checkout receipt", "session_id", session.ID, "error", err)
		return
	}

	key := fmt.Sprintf("receipts/team-%d/%s.json", team.ID, session.ID)
	if err := s.archive.Archive(context.Background(), key, body); err != nil {
		s.logger.Warnw("archive checkout receipt", "session_id", session.ID, "key", key, "error", err)
	}
}

func (s *BillingService) sendReceiptEmail(user *models.User, team *models.Team) {
	if s.email == nil {
		return
	}
	if err := s.email.SendSubscriptionStarted(user.Email, user.FullName, team.Name); err != nil {
		s.logger.Warnw("send subscription email", "user_id", user.ID, "error", err)
	}
}
