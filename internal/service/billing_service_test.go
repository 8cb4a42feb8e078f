package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"
	"go.uber.org/zap"

	"github.com/deepakgsrn/saas/internal/models"
	"github.com/deepakgsrn/saas/pkg/payment"
)

type fakeGateway struct {
	sessions map[string]*stripe.CheckoutSession
	invoices []*stripe.Invoice
	created  *stripe.CheckoutSession
	calls    *[]string
}

func (f *fakeGateway) record(call string) {
	if f.calls != nil {
		*f.calls = append(*f.calls, call)
	}
}

func (f *fakeGateway) CreateSession(p payment.SessionParams) (*stripe.CheckoutSession, error) {
	f.record("gateway.CreateSession")
	if f.created != nil {
		return f.created, nil
	}
	return &stripe.CheckoutSession{ID: "cs_new", URL: "https://checkout.stripe.com/cs_new"}, nil
}

func (f *fakeGateway) RetrieveSession(sessionID string) (*stripe.CheckoutSession, error) {
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, errors.New("no such checkout session")
	}
	return session, nil
}

func (f *fakeGateway) CreateCustomer(token, email string, teamLeaderID uint) (*stripe.Customer, error) {
	f.record("gateway.CreateCustomer:" + token)
	return &stripe.Customer{
		ID:            "cus_created",
		DefaultSource: &stripe.PaymentSource{ID: "card_default"},
	}, nil
}

func (f *fakeGateway) CreateSubscription(customerID string, teamID, teamLeaderID uint) (*stripe.Subscription, error) {
	f.record("gateway.CreateSubscription:" + customerID)
	return &stripe.Subscription{ID: "sub_created"}, nil
}

func (f *fakeGateway) CancelSubscription(subscriptionID string) (*stripe.Subscription, error) {
	f.record("gateway.CancelSubscription:" + subscriptionID)
	return &stripe.Subscription{ID: subscriptionID}, nil
}

func (f *fakeGateway) RetrieveCard(customerID, cardID string) (*stripe.Card, error) {
	f.record("gateway.RetrieveCard:" + customerID + ":" + cardID)
	return &stripe.Card{ID: cardID, Brand: stripe.CardBrandVisa, Last4: "4242"}, nil
}

func (f *fakeGateway) CreateNewCard(customerID, token string) (*stripe.Card, error) {
	f.record("gateway.CreateNewCard:" + customerID + ":" + token)
	return &stripe.Card{ID: "card_new", Brand: stripe.CardBrandAmericanExpress, Last4: "0005"}, nil
}

func (f *fakeGateway) UpdateCustomerDefaultPaymentMethod(customerID, paymentMethodID string) error {
	f.record("gateway.UpdateCustomerDefaultPaymentMethod:" + customerID + ":" + paymentMethodID)
	return nil
}

func (f *fakeGateway) UpdateSubscriptionDefaultPaymentMethod(subscriptionID, paymentMethodID string) error {
	f.record("gateway.UpdateSubscriptionDefaultPaymentMethod:" + subscriptionID + ":" + paymentMethodID)
	return nil
}

func (f *fakeGateway) ListInvoices(customerID string) ([]*stripe.Invoice, error) {
	f.record("gateway.ListInvoices:" + customerID)
	return f.invoices, nil
}

func (f *fakeGateway) VerifyWebhook(payload []byte, signatureHeader string) (*stripe.Event, error) {
	return &stripe.Event{ID: "evt_fake"}, nil
}

type fakeUserStore struct {
	users map[uint]*models.User
	calls *[]string
}

func (f *fakeUserStore) GetByID(id uint) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return user, nil
}

func (f *fakeUserStore) GetByEmail(email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, errors.New("record not found")
}

func (f *fakeUserStore) Update(user *models.User) error {
	if f.calls != nil {
		*f.calls = append(*f.calls, "users.Update")
	}
	f.users[user.ID] = user
	return nil
}

type fakeTeamStore struct {
	teams map[uint]*models.Team
	calls *[]string
}

func (f *fakeTeamStore) GetByID(id uint) (*models.Team, error) {
	team, ok := f.teams[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return team, nil
}

func (f *fakeTeamStore) Update(team *models.Team) error {
	if f.calls != nil {
		*f.calls = append(*f.calls, "teams.Update")
	}
	f.teams[team.ID] = team
	return nil
}

type fakeInvoiceStore struct {
	records map[string]models.Invoice
}

func (f *fakeInvoiceStore) Upsert(invoice *models.Invoice) error {
	if f.records == nil {
		f.records = map[string]models.Invoice{}
	}
	f.records[invoice.StripeInvoiceID] = *invoice
	return nil
}

func (f *fakeInvoiceStore) GetByUserID(userID uint) ([]models.Invoice, error) {
	var out []models.Invoice
	for _, inv := range f.records {
		if inv.UserID == userID {
			out = append(out, inv)
		}
	}
	return out, nil
}

type billingFixture struct {
	svc      *BillingService
	gateway  *fakeGateway
	users    *fakeUserStore
	teams    *fakeTeamStore
	invoices *fakeInvoiceStore
	calls    []string
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()

	f := &billingFixture{}
	f.gateway = &fakeGateway{sessions: map[string]*stripe.CheckoutSession{}, calls: &f.calls}
	f.users = &fakeUserStore{users: map[uint]*models.User{
		1: {ID: 1, FullName: "Ada Leader", Email: "ada@example.com"},
		2: {ID: 2, FullName: "Ben Member", Email: "ben@example.com"},
	}, calls: &f.calls}
	f.teams = &fakeTeamStore{teams: map[uint]*models.Team{
		1: {ID: 1, Name: "Alpha", Slug: "alpha", TeamLeaderID: 1},
	}, calls: &f.calls}
	f.invoices = &fakeInvoiceStore{}

	f.svc = NewBillingService(f.gateway, f.users, f.teams, f.invoices, nil, nil, zap.NewNop().Sugar())
	return f
}

func setupSession(metadata map[string]string, intent *stripe.SetupIntent) *stripe.CheckoutSession {
	return &stripe.CheckoutSession{
		ID:          "cs_test",
		Mode:        stripe.CheckoutSessionModeSetup,
		Metadata:    metadata,
		SetupIntent: intent,
	}
}

func TestCompleteCheckout_MissingMetadata(t *testing.T) {
	f := newBillingFixture(t)
	f.gateway.sessions["cs_test"] = &stripe.CheckoutSession{
		ID:   "cs_test",
		Mode: stripe.CheckoutSessionModeSubscription,
	}

	_, err := f.svc.CompleteCheckout("cs_test")
	assert.ErrorIs(t, err, ErrWrongSession)
}

func TestCompleteCheckout_PermissionDenied(t *testing.T) {
	f := newBillingFixture(t)
	// user 2 is not the leader of team 1
	f.gateway.sessions["cs_test"] = setupSession(
		map[string]string{"userId": "2", "teamId": "1"},
		&stripe.SetupIntent{PaymentMethod: &stripe.PaymentMethod{ID: "pm_1"}},
	)

	_, err := f.svc.CompleteCheckout("cs_test")
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Empty(t, f.calls, "no mutation may happen on a permission failure")
}

func TestCompleteCheckout_UnknownUserAndTeam(t *testing.T) {
	f := newBillingFixture(t)
	f.gateway.sessions["cs_test"] = setupSession(
		map[string]string{"userId": "99", "teamId": "1"},
		&stripe.SetupIntent{PaymentMethod: &stripe.PaymentMethod{ID: "pm_1"}},
	)

	_, err := f.svc.CompleteCheckout("cs_test")
	assert.ErrorIs(t, err, ErrUserNotFound)

	f.gateway.sessions["cs_test"].Metadata = map[string]string{"userId": "1", "teamId": "99"}
	_, err = f.svc.CompleteCheckout("cs_test")
	assert.ErrorIs(t, err, ErrTeamNotFound)
}

func TestCompleteCheckout_SetupWithoutIntent(t *testing.T) {
	f := newBillingFixture(t)
	f.gateway.sessions["cs_test"] = setupSession(
		map[string]string{"userId": "1", "teamId": "1"},
		nil,
	)

	_, err := f.svc.CompleteCheckout("cs_test")
	assert.ErrorIs(t, err, ErrWrongSession)
}

func TestCompleteCheckout_UnexpectedMode(t *testing.T) {
	f := newBillingFixture(t)
	f.gateway.sessions["cs_test"] = &stripe.CheckoutSession{
		ID:       "cs_test",
		Mode:     stripe.CheckoutSessionModePayment,
		Metadata: map[string]string{"userId": "1", "teamId": "1"},
	}

	_, err := f.svc.CompleteCheckout("cs_test")
	assert.ErrorIs(t, err, ErrWrongSession)
}

func TestCompleteCheckout_SetupUpdatesPaymentMethodsBeforePersisting(t *testing.T) {
	f := newBillingFixture(t)
	f.users.users[1].StripeCustomerID = "cus_1"
	f.teams.teams[1].StripeSubscriptionID = "sub_1"
	f.gateway.sessions["cs_test"] = setupSession(
		map[string]string{"userId": "1", "teamId": "1"},
		&stripe.SetupIntent{PaymentMethod: &stripe.PaymentMethod{
			ID: "pm_new",
			Card: &stripe.PaymentMethodCard{
				Brand: stripe.PaymentMethodCardBrandVisa,
				Last4: "4242",
			},
		}},
	)

	team, err := f.svc.CompleteCheckout("cs_test")
	require.NoError(t, err)
	assert.Equal(t, "alpha", team.Slug)

	assert.Equal(t, []string{
		"gateway.UpdateCustomerDefaultPaymentMethod:cus_1:pm_new",
		"gateway.UpdateSubscriptionDefaultPaymentMethod:sub_1:pm_new",
		"users.Update",
	}, f.calls)

	user := f.users.users[1]
	assert.Equal(t, "pm_new", user.StripeCardID)
	assert.Equal(t, "visa", user.CardBrand)
	assert.Equal(t, "4242", user.CardLast4)
	assert.True(t, user.HasCardInformation)
}

func TestCompleteCheckout_SetupWithoutStoredReferences(t *testing.T) {
	f := newBillingFixture(t)
	f.gateway.sessions["cs_test"] = setupSession(
		map[string]string{"userId": "1", "teamId": "1"},
		&stripe.SetupIntent{PaymentMethod: &stripe.PaymentMethod{ID: "pm_new"}},
	)

	_, err := f.svc.CompleteCheckout("cs_test")
	require.NoError(t, err)

	// no customer or subscription on file, so only the card persists
	assert.Equal(t, []string{"users.Update"}, f.calls)
}

func TestCompleteCheckout_Subscription(t *testing.T) {
	f := newBillingFixture(t)
	f.gateway.invoices = []*stripe.Invoice{
		{ID: "in_1", AmountDue: 5000, Currency: stripe.CurrencyUSD, Status: stripe.InvoiceStatusPaid, Created: 1700000000},
	}
	f.gateway.sessions["cs_test"] = &stripe.CheckoutSession{
		ID:       "cs_test",
		Mode:     stripe.CheckoutSessionModeSubscription,
		Metadata: map[string]string{"userId": "1", "teamId": "1"},
		Customer: &stripe.Customer{ID: "cus_9"},
		Subscription: &stripe.Subscription{
			ID: "sub_9",
			DefaultPaymentMethod: &stripe.PaymentMethod{
				ID: "pm_9",
				Card: &stripe.PaymentMethodCard{
					Brand: stripe.PaymentMethodCardBrandMastercard,
					Last4: "4444",
				},
			},
		},
	}

	team, err := f.svc.CompleteCheckout("cs_test")
	require.NoError(t, err)
	assert.Equal(t, "alpha", team.Slug)

	user := f.users.users[1]
	assert.Equal(t, "cus_9", user.StripeCustomerID)
	assert.Equal(t, "pm_9", user.StripeCardID)
	assert.True(t, user.HasCardInformation)

	got := f.teams.teams[1]
	assert.Equal(t, "sub_9", got.StripeSubscriptionID)
	assert.True(t, got.IsSubscriptionActive)
	assert.False(t, got.IsPaymentFailed)

	invoices, err := f.invoices.GetByUserID(1)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, "in_1", invoices[0].StripeInvoiceID)
	assert.Equal(t, int64(5000), invoices[0].AmountDue)
}

func TestStartCheckout_LeaderOnly(t *testing.T) {
	f := newBillingFixture(t)

	_, err := f.svc.StartCheckout(2, 1, payment.ModeSubscription)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	session, err := f.svc.StartCheckout(1, 1, payment.ModeSubscription)
	require.NoError(t, err)
	assert.Equal(t, "cs_new", session.ID)
	assert.NotEmpty(t, session.URL)
}

func TestCancelTeamSubscription(t *testing.T) {
	f := newBillingFixture(t)

	_, err := f.svc.CancelTeamSubscription(1, 1)
	assert.ErrorIs(t, err, ErrNoSubscription)

	f.teams.teams[1].StripeSubscriptionID = "sub_1"
	f.teams.teams[1].IsSubscriptionActive = true

	team, err := f.svc.CancelTeamSubscription(1, 1)
	require.NoError(t, err)
	assert.Empty(t, team.StripeSubscriptionID)
	assert.False(t, team.IsSubscriptionActive)
	assert.Contains(t, f.calls, "gateway.CancelSubscription:sub_1")
}

func TestAddCard_CreatesCustomerOnFirstUse(t *testing.T) {
	f := newBillingFixture(t)

	user, err := f.svc.AddCard(1, "tok_visa")
	require.NoError(t, err)
	assert.Equal(t, "cus_created", user.StripeCustomerID)
	assert.Equal(t, "card_default", user.StripeCardID)
	assert.Equal(t, "Visa", user.CardBrand)
	assert.Equal(t, "4242", user.CardLast4)
	assert.True(t, user.HasCardInformation)
	assert.Contains(t, f.calls, "gateway.CreateCustomer:tok_visa")
	assert.Contains(t, f.calls, "gateway.RetrieveCard:cus_created:card_default")
}

func TestAddCard_AttachesToExistingCustomer(t *testing.T) {
	f := newBillingFixture(t)
	f.users.users[1].StripeCustomerID = "cus_1"

	user, err := f.svc.AddCard(1, "tok_amex")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", user.StripeCustomerID)
	assert.Equal(t, "card_new", user.StripeCardID)
	assert.Contains(t, f.calls, "gateway.CreateNewCard:cus_1:tok_amex")
}

func TestSubscribeTeamWithCardOnFile(t *testing.T) {
	f := newBillingFixture(t)

	_, err := f.svc.SubscribeTeamWithCardOnFile(1, 1)
	assert.ErrorIs(t, err, ErrNoCardOnFile)

	f.users.users[1].StripeCustomerID = "cus_1"
	f.users.users[1].HasCardInformation = true

	team, err := f.svc.SubscribeTeamWithCardOnFile(1, 1)
	require.NoError(t, err)
	assert.Equal(t, "sub_created", team.StripeSubscriptionID)
	assert.True(t, team.IsSubscriptionActive)

	_, err = f.svc.SubscribeTeamWithCardOnFile(1, 1)
	assert.ErrorIs(t, err, ErrAlreadyPaying)
}

func TestGetListOfInvoices_NoCustomer(t *testing.T) {
	f := newBillingFixture(t)

	invoices, err := f.svc.GetListOfInvoices(1)
	require.NoError(t, err)
	assert.Empty(t, invoices)
	assert.Empty(t, f.calls, "no Stripe call without a customer on file")
}
