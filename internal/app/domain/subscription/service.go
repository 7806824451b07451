package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vacadoc/vacadoc/internal/app/models"
	"github.com/vacadoc/vacadoc/internal/pkg/config"
	"github.com/vacadoc/vacadoc/internal/pkg/debugger"
)

// Ensure implementation satisfies the interface
var _ Service = (*ServiceImpl)(nil)

// PaymentProvider is the payment-processor surface the service needs.
type PaymentProvider interface {
	CreateCustomer(userID, email string) (string, error)
	GetSubscription(subscriptionID string) (*stripe.Subscription, error)
	CreateCheckoutSession(customerID, priceID, successURL, cancelURL string) (string, error)
	CreatePortalSession(customerID, returnURL string) (string, error)
	ConstructWebhookEvent(payload []byte, signature string) (stripe.Event, error)
}

// Service owns the subscription record lifecycle: the placeholder on signup,
// reconciliation of the processor's subscription object into the row, and the
// hosted checkout/portal flows.
type Service interface {
	CurrentStatus(ctx context.Context, userID string) (*StatusResponse, error)
	EnsurePlaceholder(ctx context.Context, userID string) error
	SyncFromProcessor(ctx context.Context, userID, processorSubID string) (*models.Subscription, error)
	ApplyProcessorSubscription(ctx context.Context, userID string, sub *stripe.Subscription) (*models.Subscription, error)
	PortalURL(ctx context.Context, userID string) (string, error)
	CheckoutURL(ctx context.Context, userID, email string, tier models.PlanTier) (string, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type ServiceImpl struct {
	logger   *zap.Logger
	repo     Repository
	payments PaymentProvider // nil when the processor is not configured
	cfg      *config.Config
}

func NewService(repo Repository, payments PaymentProvider, cfg *config.Config, logger *zap.Logger) *ServiceImpl {
	return &ServiceImpl{logger: logger, repo: repo, payments: payments, cfg: cfg}
}

// CurrentStatus reads the current row into the status wire shape. Absence of
// a row yields status "none", not an error.
func (s *ServiceImpl) CurrentStatus(ctx context.Context, userID string) (*StatusResponse, error) {
	sub, err := s.repo.GetCurrent(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &StatusResponse{Status: models.StatusNone}, nil
		}
		return nil, err
	}

	resp := &StatusResponse{Status: sub.Status}
	if sub.PlanType != nil {
		resp.PlanType = string(*sub.PlanType)
	}
	return resp, nil
}

func (s *ServiceImpl) EnsurePlaceholder(ctx context.Context, userID string) error {
	return s.repo.CreatePlaceholder(ctx, userID)
}

// SyncFromProcessor fetches the subscription object from the processor and
// reconciles it into the subscription record.
func (s *ServiceImpl) SyncFromProcessor(ctx context.Context, userID, processorSubID string) (*models.Subscription, error) {
	l := s.logger.With(zap.String("method", "SyncFromProcessor"), zap.String("userID", userID))

	if s.payments == nil {
		l.Error("Payment processor not configured")
		return nil, fmt.Errorf("payment processor: %w", models.ErrMissingConfig)
	}

	sub, err := s.payments.GetSubscription(processorSubID)
	if err != nil {
		l.Error("Failed to fetch processor subscription", zap.Error(err))
		return nil, fmt.Errorf("failed to fetch subscription from processor: %w", err)
	}

	return s.ApplyProcessorSubscription(ctx, userID, sub)
}

// ApplyProcessorSubscription maps the processor's subscription object onto
// the record and persists it. Unrecognized price identifiers default to the
// lowest tier with a warning rather than failing the sync.
func (s *ServiceImpl) ApplyProcessorSubscription(ctx context.Context, userID string, sub *stripe.Subscription) (*models.Subscription, error) {
	l := s.logger.With(zap.String("method", "ApplyProcessorSubscription"), zap.String("userID", userID))

	tracer := otel.Tracer("Vacadoc")
	ctx, span := tracer.Start(ctx, "SubscriptionService.ApplyProcessorSubscription", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.String("subscription_id", sub.ID),
	))
	defer span.End()

	record := &models.Subscription{
		UserID: userID,
		Status: mapProcessorStatus(sub.Status),
	}
	if sub.ID != "" {
		record.StripeSubscriptionID = &sub.ID
	}
	if sub.Customer != nil && sub.Customer.ID != "" {
		record.StripeCustomerID = &sub.Customer.ID
	}

	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			tier := ResolvePlanFromPrice(item.Price.ID, l)
			record.PlanType = &tier
		}
		if item.CurrentPeriodStart > 0 {
			start := time.Unix(item.CurrentPeriodStart, 0).UTC()
			record.CurrentPeriodStart = &start
		}
		if item.CurrentPeriodEnd > 0 {
			end := time.Unix(item.CurrentPeriodEnd, 0).UTC()
			record.CurrentPeriodEnd = &end
		}
	}

	// plan_type is never null for a live subscription
	if record.PlanType == nil {
		switch record.Status {
		case models.StatusActive, models.StatusTrialing, models.StatusPastDue:
			tier := models.PlanEssentiel
			record.PlanType = &tier
		}
	}

	if err := s.repo.ApplySync(ctx, record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Persisting sync failed")
		return nil, err
	}

	l.Info("Subscription synced",
		zap.String("status", string(record.Status)),
		zap.Any("plan_type", record.PlanType))
	span.SetStatus(codes.Ok, "Subscription synced")
	return record, nil
}

// PortalURL resolves the stored customer reference into a hosted portal URL.
func (s *ServiceImpl) PortalURL(ctx context.Context, userID string) (string, error) {
	l := s.logger.With(zap.String("method", "PortalURL"), zap.String("userID", userID))

	if s.payments == nil {
		l.Error("Payment processor not configured")
		return "", fmt.Errorf("payment processor: %w", models.ErrMissingConfig)
	}

	customerID, err := s.repo.GetStripeCustomerID(ctx, userID)
	if err != nil {
		return "", err
	}

	url, err := s.payments.CreatePortalSession(customerID, s.cfg.Stripe.PortalReturn)
	if err != nil {
		l.Error("Failed to create portal session", zap.Error(err))
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}
	return url, nil
}

// CheckoutURL launches a hosted checkout for the tier, provisioning the
// processor customer reference on first use.
func (s *ServiceImpl) CheckoutURL(ctx context.Context, userID, email string, tier models.PlanTier) (string, error) {
	l := s.logger.With(zap.String("method", "CheckoutURL"), zap.String("userID", userID))

	if s.payments == nil {
		l.Error("Payment processor not configured")
		return "", fmt.Errorf("payment processor: %w", models.ErrMissingConfig)
	}

	priceID, ok := PriceForPlan(tier)
	if !ok {
		return "", fmt.Errorf("unknown plan tier %q: %w", tier, models.ErrBadRequest)
	}

	customerID, err := s.repo.GetStripeCustomerID(ctx, userID)
	if errors.Is(err, models.ErrNoCustomerRef) {
		customerID, err = s.payments.CreateCustomer(userID, email)
		if err != nil {
			l.Error("Failed to create processor customer", zap.Error(err))
			return "", fmt.Errorf("failed to create customer: %w", err)
		}
		if err := s.repo.SetStripeCustomer(ctx, userID, customerID); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	url, err := s.payments.CreateCheckoutSession(customerID, priceID, s.cfg.Stripe.SuccessURL, s.cfg.Stripe.CancelURL)
	if err != nil {
		l.Error("Failed to create checkout session", zap.Error(err))
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return url, nil
}

// HandleWebhook verifies and dispatches processor events onto the sync path.
func (s *ServiceImpl) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	l := s.logger.With(zap.String("method", "HandleWebhook"))

	if s.payments == nil {
		l.Error("Payment processor not configured")
		return fmt.Errorf("payment processor: %w", models.ErrMissingConfig)
	}

	event, err := s.payments.ConstructWebhookEvent(payload, signature)
	if err != nil {
		l.Warn("Webhook verification failed", zap.Error(err))
		return fmt.Errorf("webhook verification: %w", models.ErrUnauthenticated)
	}

	if l.Core().Enabled(zapcore.DebugLevel) {
		debugger.DebugPrintEvents(l.Sugar(), payload)
	}

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return fmt.Errorf("parsing checkout session event: %w", err)
		}
		if session.Customer == nil || session.Subscription == nil {
			l.Warn("Checkout session event missing customer or subscription", zap.String("event_id", event.ID))
			return nil
		}
		userID, err := s.repo.GetUserIDByCustomer(ctx, session.Customer.ID)
		if err != nil {
			return err
		}
		_, err = s.SyncFromProcessor(ctx, userID, session.Subscription.ID)
		return err

	case "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("parsing subscription event: %w", err)
		}
		if sub.Customer == nil {
			l.Warn("Subscription event missing customer", zap.String("event_id", event.ID))
			return nil
		}
		userID, err := s.repo.GetUserIDByCustomer(ctx, sub.Customer.ID)
		if err != nil {
			return err
		}
		_, err = s.ApplyProcessorSubscription(ctx, userID, &sub)
		return err

	default:
		l.Debug("Ignoring webhook event", zap.String("type", string(event.Type)))
		return nil
	}
}

// mapProcessorStatus folds the processor's status vocabulary into ours.
func mapProcessorStatus(status stripe.SubscriptionStatus) models.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive:
		return models.StatusActive
	case stripe.SubscriptionStatusTrialing:
		return models.StatusTrialing
	case stripe.SubscriptionStatusPastDue:
		return models.StatusPastDue
	case stripe.SubscriptionStatusCanceled:
		return models.StatusCanceled
	default:
		// incomplete, incomplete_expired, unpaid, paused
		return models.StatusInactive
	}
}
