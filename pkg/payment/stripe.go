package payment

import (
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/card"
	"github.com/stripe/stripe-go/v74/checkout/session"
	"github.com/stripe/stripe-go/v74/customer"
	"github.com/stripe/stripe-go/v74/invoice"
	sub "github.com/stripe/stripe-go/v74/subscription"
	"github.com/stripe/stripe-go/v74/webhook"
)

// ErrMissingSetupTarget is returned when a setup-mode checkout session is
// requested without an existing customer and subscription to attach the
// new card to.
var ErrMissingSetupTarget = errors.New("setup mode requires an existing customer and subscription")

type SessionMode string

const (
	ModeSubscription SessionMode = "subscription"
	ModeSetup        SessionMode = "setup"
)

// invoiceListLimit caps how many invoices a single history fetch returns.
const invoiceListLimit = 100

type Config struct {
	SecretKey     string
	WebhookSecret string
	PriceID       string
	AppURL        string
	APIURL        string
}

// StripeGateway wraps every Stripe API call the billing flow makes. It is
// constructed once in main and passed to the services that need it; the
// stripe-go package key is set here and nowhere else.
type StripeGateway struct {
	cfg Config
}

func NewStripeGateway(cfg Config) *StripeGateway {
	stripe.Key = cfg.SecretKey
	return &StripeGateway{cfg: cfg}
}

type SessionParams struct {
	UserID         uint
	TeamID         uint
	TeamSlug       string
	CustomerID     string
	SubscriptionID string
	UserEmail      string
	Mode           SessionMode
}

// buildSessionParams translates SessionParams into the Stripe request.
// Kept separate from the API call so the mode rules stay testable.
func (g *StripeGateway) buildSessionParams(p SessionParams) (*stripe.CheckoutSessionParams, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(p.Mode)),
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		// Stripe substitutes the placeholder with the real session id
		// before redirecting the browser.
		SuccessURL: stripe.String(g.cfg.APIURL + "/stripe/checkout-completed/{CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(fmt.Sprintf("%s/team/%s/billing", g.cfg.AppURL, p.TeamSlug)),
	}

	params.AddMetadata("userId", fmt.Sprintf("%d", p.UserID))
	params.AddMetadata("teamId", fmt.Sprintf("%d", p.TeamID))

	switch p.Mode {
	case ModeSubscription:
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(g.cfg.PriceID),
				Quantity: stripe.Int64(1),
			},
		}
		// Customer and CustomerEmail are mutually exclusive on the
		// Stripe side.
		if p.CustomerID != "" {
			params.Customer = stripe.String(p.CustomerID)
		} else if p.UserEmail != "" {
			params.CustomerEmail = stripe.String(p.UserEmail)
		}
	case ModeSetup:
		if p.CustomerID == "" || p.SubscriptionID == "" {
			return nil, ErrMissingSetupTarget
		}
		params.Customer = stripe.String(p.CustomerID)
		params.SetupIntentData = &stripe.CheckoutSessionSetupIntentDataParams{
			Metadata: map[string]string{
				"customer_id":     p.CustomerID,
				"subscription_id": p.SubscriptionID,
			},
		}
	default:
		return nil, fmt.Errorf("unsupported checkout session mode %q", p.Mode)
	}

	return params, nil
}

func (g *StripeGateway) CreateSession(p SessionParams) (*stripe.CheckoutSession, error) {
	params, err := g.buildSessionParams(p)
	if err != nil {
		return nil, err
	}
	return session.New(params)
}

// sessionExpansions materializes the nested objects the completion flow
// branches on, instead of leaving them as id references.
var sessionExpansions = []string{
	"setup_intent",
	"setup_intent.payment_method",
	"customer",
	"subscription",
	"subscription.default_payment_method",
}

func retrieveSessionParams() *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{}
	for _, expand := range sessionExpansions {
		params.AddExpand(expand)
	}
	return params
}

func (g *StripeGateway) RetrieveSession(sessionID string) (*stripe.CheckoutSession, error) {
	return session.Get(sessionID, retrieveSessionParams())
}

func (g *StripeGateway) CreateCustomer(token, email string, teamLeaderID uint) (*stripe.Customer, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Source = stripe.String(token)
	params.AddMetadata("teamLeaderId", fmt.Sprintf("%d", teamLeaderID))

	return customer.New(params)
}

func (g *StripeGateway) CreateSubscription(customerID string, teamID, teamLeaderID uint) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{
				Price: stripe.String(g.cfg.PriceID),
			},
		},
	}
	params.AddMetadata("teamId", fmt.Sprintf("%d", teamID))
	params.AddMetadata("teamLeaderId", fmt.Sprintf("%d", teamLeaderID))

	return sub.New(params)
}

func (g *StripeGateway) CancelSubscription(subscriptionID string) (*stripe.Subscription, error) {
	return sub.Cancel(subscriptionID, nil)
}

func (g *StripeGateway) RetrieveCard(customerID, cardID string) (*stripe.Card, error) {
	return card.Get(cardID, &stripe.CardParams{
		Customer: stripe.String(customerID),
	})
}

func (g *StripeGateway) CreateNewCard(customerID, token string) (*stripe.Card, error) {
	return card.New(&stripe.CardParams{
		Customer: stripe.String(customerID),
		Token:    stripe.String(token),
	})
}

func (g *StripeGateway) UpdateCustomerDefaultPaymentMethod(customerID, paymentMethodID string) error {
	_, err := customer.Update(customerID, &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	})
	return err
}

func (g *StripeGateway) UpdateSubscriptionDefaultPaymentMethod(subscriptionID, paymentMethodID string) error {
	_, err := sub.Update(subscriptionID, &stripe.SubscriptionParams{
		DefaultPaymentMethod: stripe.String(paymentMethodID),
	})
	return err
}

func (g *StripeGateway) ListInvoices(customerID string) ([]*stripe.Invoice, error) {
	params := &stripe.InvoiceListParams{
		Customer: stripe.String(customerID),
	}
	params.Limit = stripe.Int64(invoiceListLimit)

	var invoices []*stripe.Invoice
	iter := invoice.List(params)
	for iter.Next() {
		invoices = append(invoices, iter.Invoice())
	}
	return invoices, iter.Err()
}

// VerifyWebhook checks the signature of an inbound webhook against the
// endpoint secret. The payload must be the raw, unparsed request body.
func (g *StripeGateway) VerifyWebhook(payload []byte, signatureHeader string) (*stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.cfg.WebhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
	if err != nil {
		return nil, err
	}
	return &event, nil
}
