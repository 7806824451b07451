package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vacadoc/vacadoc/internal/app/models"
)

var _ Repository = (*PostgresRepository)(nil)

// PgxPool is the subset of pgxpool.Pool the repository uses; pgxmock
// implements it for tests.
type PgxPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Repository interface {
	// GetCurrent returns the most recent subscription row for the user.
	GetCurrent(ctx context.Context, userID string) (*models.Subscription, error)
	// CreatePlaceholder provisions the zero-plan row on signup; a no-op when
	// any row already exists.
	CreatePlaceholder(ctx context.Context, userID string) error
	// ApplySync writes the reconciled billing state onto the current row,
	// inserting one when the user has none.
	ApplySync(ctx context.Context, sub *models.Subscription) error
	// SetStripeCustomer stores the payment-processor customer reference.
	SetStripeCustomer(ctx context.Context, userID, customerID string) error
	// GetStripeCustomerID resolves the stored customer reference;
	// models.ErrNoCustomerRef when absent.
	GetStripeCustomerID(ctx context.Context, userID string) (string, error)
	// GetUserIDByCustomer maps a customer reference back to the owning user.
	GetUserIDByCustomer(ctx context.Context, customerID string) (string, error)
}

type PostgresRepository struct {
	logger *slog.Logger
	pgpool PgxPool
}

func NewPostgresRepository(pgpool PgxPool, logger *slog.Logger) *PostgresRepository {
	return &PostgresRepository{
		logger: logger,
		pgpool: pgpool,
	}
}

const currentSubscriptionQuery = `
SELECT id, user_id, status, plan_type, current_period_start, current_period_end,
       stripe_customer_id, stripe_subscription_id, created_at, updated_at
FROM subscriptions
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT 1`

func (r *PostgresRepository) GetCurrent(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.pgpool.QueryRow(ctx, currentSubscriptionQuery, userID).Scan(
		&sub.ID, &sub.UserID, &sub.Status, &sub.PlanType,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd,
		&sub.StripeCustomerID, &sub.StripeSubscriptionID,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("no subscription for user %s: %w", userID, models.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Error fetching current subscription", slog.Any("error", err), slog.String("userID", userID))
		return nil, fmt.Errorf("database error fetching subscription: %w", err)
	}
	return &sub, nil
}

func (r *PostgresRepository) CreatePlaceholder(ctx context.Context, userID string) error {
	query := `
INSERT INTO subscriptions (user_id, status)
SELECT $1, 'none'
WHERE NOT EXISTS (SELECT 1 FROM subscriptions WHERE user_id = $1)`
	_, err := r.pgpool.Exec(ctx, query, userID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating placeholder subscription", slog.Any("error", err), slog.String("userID", userID))
		return fmt.Errorf("database error creating placeholder subscription: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ApplySync(ctx context.Context, sub *models.Subscription) error {
	updateQuery := `
UPDATE subscriptions s
SET status = $2,
    plan_type = $3,
    current_period_start = $4,
    current_period_end = $5,
    stripe_customer_id = COALESCE($6, s.stripe_customer_id),
    stripe_subscription_id = COALESCE($7, s.stripe_subscription_id),
    updated_at = NOW()
WHERE s.id = (SELECT id FROM subscriptions WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1)`
	tag, err := r.pgpool.Exec(ctx, updateQuery,
		sub.UserID, sub.Status, sub.PlanType,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.StripeCustomerID, sub.StripeSubscriptionID,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error syncing subscription", slog.Any("error", err), slog.String("userID", sub.UserID))
		return fmt.Errorf("database error syncing subscription: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	insertQuery := `
INSERT INTO subscriptions (user_id, status, plan_type, current_period_start, current_period_end,
                           stripe_customer_id, stripe_subscription_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = r.pgpool.Exec(ctx, insertQuery,
		sub.UserID, sub.Status, sub.PlanType,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.StripeCustomerID, sub.StripeSubscriptionID,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error inserting subscription", slog.Any("error", err), slog.String("userID", sub.UserID))
		return fmt.Errorf("database error inserting subscription: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetStripeCustomer(ctx context.Context, userID, customerID string) error {
	if err := r.CreatePlaceholder(ctx, userID); err != nil {
		return err
	}
	query := `
UPDATE subscriptions s
SET stripe_customer_id = $2, updated_at = NOW()
WHERE s.id = (SELECT id FROM subscriptions WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1)`
	_, err := r.pgpool.Exec(ctx, query, userID, customerID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error storing stripe customer reference", slog.Any("error", err), slog.String("userID", userID))
		return fmt.Errorf("database error storing customer reference: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetStripeCustomerID(ctx context.Context, userID string) (string, error) {
	var customerID string
	query := `
SELECT stripe_customer_id FROM subscriptions
WHERE user_id = $1 AND stripe_customer_id IS NOT NULL
ORDER BY created_at DESC
LIMIT 1`
	err := r.pgpool.QueryRow(ctx, query, userID).Scan(&customerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("user %s has no customer reference: %w", userID, models.ErrNoCustomerRef)
		}
		r.logger.ErrorContext(ctx, "Error fetching customer reference", slog.Any("error", err), slog.String("userID", userID))
		return "", fmt.Errorf("database error fetching customer reference: %w", err)
	}
	return customerID, nil
}

func (r *PostgresRepository) GetUserIDByCustomer(ctx context.Context, customerID string) (string, error) {
	var userID string
	query := `
SELECT user_id FROM subscriptions
WHERE stripe_customer_id = $1
ORDER BY created_at DESC
LIMIT 1`
	err := r.pgpool.QueryRow(ctx, query, customerID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("no user for customer %s: %w", customerID, models.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Error resolving customer reference", slog.Any("error", err), slog.String("customerID", customerID))
		return "", fmt.Errorf("database error resolving customer reference: %w", err)
	}
	return userID, nil
}
