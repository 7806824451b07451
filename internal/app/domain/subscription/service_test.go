package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83"
	"go.uber.org/zap"

	"github.com/vacadoc/vacadoc/internal/app/models"
	"github.com/vacadoc/vacadoc/internal/pkg/config"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetCurrent(ctx context.Context, userID string) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockRepository) CreatePlaceholder(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockRepository) ApplySync(ctx context.Context, sub *models.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

func (m *MockRepository) SetStripeCustomer(ctx context.Context, userID, customerID string) error {
	return m.Called(ctx, userID, customerID).Error(0)
}

func (m *MockRepository) GetStripeCustomerID(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *MockRepository) GetUserIDByCustomer(ctx context.Context, customerID string) (string, error) {
	args := m.Called(ctx, customerID)
	return args.String(0), args.Error(1)
}

type MockPayments struct {
	mock.Mock
}

func (m *MockPayments) CreateCustomer(userID, email string) (string, error) {
	args := m.Called(userID, email)
	return args.String(0), args.Error(1)
}

func (m *MockPayments) GetSubscription(subscriptionID string) (*stripe.Subscription, error) {
	args := m.Called(subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.Subscription), args.Error(1)
}

func (m *MockPayments) CreateCheckoutSession(customerID, priceID, successURL, cancelURL string) (string, error) {
	args := m.Called(customerID, priceID, successURL, cancelURL)
	return args.String(0), args.Error(1)
}

func (m *MockPayments) CreatePortalSession(customerID, returnURL string) (string, error) {
	args := m.Called(customerID, returnURL)
	return args.String(0), args.Error(1)
}

func (m *MockPayments) ConstructWebhookEvent(payload []byte, signature string) (stripe.Event, error) {
	args := m.Called(payload, signature)
	return args.Get(0).(stripe.Event), args.Error(1)
}

func testConfig() *config.Config {
	return &config.Config{
		Stripe: config.StripeConfig{
			SuccessURL:   "https://vacadoc.fr/billing/success",
			CancelURL:    "https://vacadoc.fr/billing/cancel",
			PortalReturn: "https://vacadoc.fr/account",
		},
	}
}

func TestCurrentStatusNoRowIsNone(t *testing.T) {
	repo := new(MockRepository)
	repo.On("GetCurrent", mock.Anything, "doc-1").Return(nil, models.ErrNotFound)

	svc := NewService(repo, nil, testConfig(), zap.NewNop())
	resp, err := svc.CurrentStatus(context.Background(), "doc-1")

	require.NoError(t, err)
	assert.Equal(t, models.StatusNone, resp.Status)
	assert.Empty(t, resp.PlanType)
}

func TestCurrentStatusMapsPlan(t *testing.T) {
	plan := models.PlanPro
	repo := new(MockRepository)
	repo.On("GetCurrent", mock.Anything, "doc-1").Return(&models.Subscription{
		UserID:   "doc-1",
		Status:   models.StatusActive,
		PlanType: &plan,
	}, nil)

	svc := NewService(repo, nil, testConfig(), zap.NewNop())
	resp, err := svc.CurrentStatus(context.Background(), "doc-1")

	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, resp.Status)
	assert.Equal(t, "pro", resp.PlanType)
}

func TestSyncWithoutProcessorConfigured(t *testing.T) {
	svc := NewService(new(MockRepository), nil, testConfig(), zap.NewNop())

	_, err := svc.SyncFromProcessor(context.Background(), "doc-1", "sub_123")
	assert.ErrorIs(t, err, models.ErrMissingConfig)

	_, err = svc.PortalURL(context.Background(), "doc-1")
	assert.ErrorIs(t, err, models.ErrMissingConfig)

	_, err = svc.CheckoutURL(context.Background(), "doc-1", "doc@vacadoc.fr", models.PlanPro)
	assert.ErrorIs(t, err, models.ErrMissingConfig)
}

func TestApplyProcessorSubscriptionMapsFields(t *testing.T) {
	repo := new(MockRepository)
	var persisted *models.Subscription
	repo.On("ApplySync", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		persisted = args.Get(1).(*models.Subscription)
	}).Return(nil)

	svc := NewService(repo, new(MockPayments), testConfig(), zap.NewNop())

	periodStart := int64(1770000000)
	periodEnd := int64(1772600000)
	sub := &stripe.Subscription{
		ID:       "sub_123",
		Status:   stripe.SubscriptionStatusActive,
		Customer: &stripe.Customer{ID: "cus_123"},
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{{
			Price:              &stripe.Price{ID: "price_premium_monthly"},
			CurrentPeriodStart: periodStart,
			CurrentPeriodEnd:   periodEnd,
		}}},
	}

	record, err := svc.ApplyProcessorSubscription(context.Background(), "doc-1", sub)
	require.NoError(t, err)
	require.NotNil(t, persisted)

	assert.Equal(t, models.StatusActive, record.Status)
	require.NotNil(t, record.PlanType)
	assert.Equal(t, models.PlanPremium, *record.PlanType)
	require.NotNil(t, record.CurrentPeriodStart)
	assert.Equal(t, time.Unix(periodStart, 0).UTC(), *record.CurrentPeriodStart)
	require.NotNil(t, record.StripeCustomerID)
	assert.Equal(t, "cus_123", *record.StripeCustomerID)
	require.NotNil(t, record.StripeSubscriptionID)
	assert.Equal(t, "sub_123", *record.StripeSubscriptionID)
}

func TestApplyProcessorSubscriptionUnknownPriceDefaultsToEssentiel(t *testing.T) {
	repo := new(MockRepository)
	repo.On("ApplySync", mock.Anything, mock.Anything).Return(nil)

	svc := NewService(repo, new(MockPayments), testConfig(), zap.NewNop())

	record, err := svc.ApplyProcessorSubscription(context.Background(), "doc-1", &stripe.Subscription{
		ID:     "sub_123",
		Status: stripe.SubscriptionStatusActive,
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{{
			Price: &stripe.Price{ID: "price_legacy_2019"},
		}}},
	})

	require.NoError(t, err)
	require.NotNil(t, record.PlanType)
	assert.Equal(t, models.PlanEssentiel, *record.PlanType)
}

func TestApplyProcessorSubscriptionLiveStatusAlwaysHasPlan(t *testing.T) {
	repo := new(MockRepository)
	repo.On("ApplySync", mock.Anything, mock.Anything).Return(nil)

	svc := NewService(repo, new(MockPayments), testConfig(), zap.NewNop())

	record, err := svc.ApplyProcessorSubscription(context.Background(), "doc-1", &stripe.Subscription{
		ID:     "sub_123",
		Status: stripe.SubscriptionStatusTrialing,
	})

	require.NoError(t, err)
	require.NotNil(t, record.PlanType)
	assert.Equal(t, models.PlanEssentiel, *record.PlanType)
}

func TestApplyProcessorSubscriptionCanceledKeepsPlanUnset(t *testing.T) {
	repo := new(MockRepository)
	repo.On("ApplySync", mock.Anything, mock.Anything).Return(nil)

	svc := NewService(repo, new(MockPayments), testConfig(), zap.NewNop())

	record, err := svc.ApplyProcessorSubscription(context.Background(), "doc-1", &stripe.Subscription{
		ID:     "sub_123",
		Status: stripe.SubscriptionStatusCanceled,
	})

	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, record.Status)
	assert.Nil(t, record.PlanType)
}

func TestPortalURLWithoutCustomerRef(t *testing.T) {
	repo := new(MockRepository)
	repo.On("GetStripeCustomerID", mock.Anything, "doc-1").Return("", models.ErrNoCustomerRef)

	svc := NewService(repo, new(MockPayments), testConfig(), zap.NewNop())

	_, err := svc.PortalURL(context.Background(), "doc-1")
	assert.ErrorIs(t, err, models.ErrNoCustomerRef)
}

func TestCheckoutURLProvisionsCustomerOnFirstUse(t *testing.T) {
	repo := new(MockRepository)
	repo.On("GetStripeCustomerID", mock.Anything, "doc-1").Return("", models.ErrNoCustomerRef)
	repo.On("SetStripeCustomer", mock.Anything, "doc-1", "cus_new").Return(nil)

	payments := new(MockPayments)
	payments.On("CreateCustomer", "doc-1", "doc@vacadoc.fr").Return("cus_new", nil)
	payments.On("CreateCheckoutSession", "cus_new", "price_pro_monthly",
		"https://vacadoc.fr/billing/success", "https://vacadoc.fr/billing/cancel").
		Return("https://checkout.stripe.com/c/sess_123", nil)

	svc := NewService(repo, payments, testConfig(), zap.NewNop())

	url, err := svc.CheckoutURL(context.Background(), "doc-1", "doc@vacadoc.fr", models.PlanPro)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/sess_123", url)
	repo.AssertExpectations(t)
	payments.AssertExpectations(t)
}

func TestHandleWebhookInvalidSignature(t *testing.T) {
	payments := new(MockPayments)
	payments.On("ConstructWebhookEvent", mock.Anything, "bad-sig").
		Return(stripe.Event{}, errors.New("signature mismatch"))

	svc := NewService(new(MockRepository), payments, testConfig(), zap.NewNop())

	err := svc.HandleWebhook(context.Background(), []byte("{}"), "bad-sig")
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
}

func TestHandleWebhookSubscriptionUpdated(t *testing.T) {
	repo := new(MockRepository)
	repo.On("GetUserIDByCustomer", mock.Anything, "cus_123").Return("doc-1", nil)
	var persisted *models.Subscription
	repo.On("ApplySync", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		persisted = args.Get(1).(*models.Subscription)
	}).Return(nil)

	raw := []byte(`{"id":"sub_123","status":"canceled","customer":{"id":"cus_123"}}`)
	payments := new(MockPayments)
	payments.On("ConstructWebhookEvent", mock.Anything, "sig").Return(stripe.Event{
		Type: "customer.subscription.deleted",
		Data: &stripe.EventData{Raw: raw},
	}, nil)

	svc := NewService(repo, payments, testConfig(), zap.NewNop())

	err := svc.HandleWebhook(context.Background(), []byte("{}"), "sig")
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, "doc-1", persisted.UserID)
	assert.Equal(t, models.StatusCanceled, persisted.Status)
}

func TestHandleWebhookIgnoresUnknownEvents(t *testing.T) {
	payments := new(MockPayments)
	payments.On("ConstructWebhookEvent", mock.Anything, "sig").Return(stripe.Event{
		Type: "invoice.paid",
		Data: &stripe.EventData{Raw: []byte(`{}`)},
	}, nil)

	svc := NewService(new(MockRepository), payments, testConfig(), zap.NewNop())

	err := svc.HandleWebhook(context.Background(), []byte("{}"), "sig")
	assert.NoError(t, err)
}
