package subscription

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vacadoc/vacadoc/internal/app/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	return NewPostgresRepository(mockPool, slog.Default()), mockPool
}

func TestGetCurrentReturnsLatestRow(t *testing.T) {
	repo, mockPool := newRepoWithMock(t)

	plan := models.PlanPro
	custID := "cus_123"
	subID := "sub_123"
	now := time.Now()

	rows := pgxmock.NewRows([]string{
		"id", "user_id", "status", "plan_type", "current_period_start", "current_period_end",
		"stripe_customer_id", "stripe_subscription_id", "created_at", "updated_at",
	}).AddRow("row-1", "doc-1", models.StatusActive, &plan, (*time.Time)(nil), (*time.Time)(nil), &custID, &subID, now, now)

	mockPool.ExpectQuery("SELECT id, user_id, status, plan_type").
		WithArgs("doc-1").
		WillReturnRows(rows)

	sub, err := repo.GetCurrent(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, sub.Status)
	require.NotNil(t, sub.PlanType)
	assert.Equal(t, models.PlanPro, *sub.PlanType)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestGetCurrentNoRowIsNotFound(t *testing.T) {
	repo, mockPool := newRepoWithMock(t)

	mockPool.ExpectQuery("SELECT id, user_id, status, plan_type").
		WithArgs("doc-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err := repo.GetCurrent(context.Background(), "doc-1")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestCreatePlaceholderIsIdempotent(t *testing.T) {
	repo, mockPool := newRepoWithMock(t)

	// second call matches an existing row and inserts nothing
	mockPool.ExpectExec("INSERT INTO subscriptions").
		WithArgs("doc-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectExec("INSERT INTO subscriptions").
		WithArgs("doc-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	require.NoError(t, repo.CreatePlaceholder(context.Background(), "doc-1"))
	require.NoError(t, repo.CreatePlaceholder(context.Background(), "doc-1"))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestApplySyncUpdatesExistingRow(t *testing.T) {
	repo, mockPool := newRepoWithMock(t)

	plan := models.PlanPremium
	sub := &models.Subscription{
		UserID:   "doc-1",
		Status:   models.StatusActive,
		PlanType: &plan,
	}

	mockPool.ExpectExec("UPDATE subscriptions").
		WithArgs(sub.UserID, sub.Status, sub.PlanType, sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
			sub.StripeCustomerID, sub.StripeSubscriptionID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.ApplySync(context.Background(), sub))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestApplySyncInsertsWhenNoRowExists(t *testing.T) {
	repo, mockPool := newRepoWithMock(t)

	sub := &models.Subscription{
		UserID: "doc-1",
		Status: models.StatusActive,
	}

	mockPool.ExpectExec("UPDATE subscriptions").
		WithArgs(sub.UserID, sub.Status, sub.PlanType, sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
			sub.StripeCustomerID, sub.StripeSubscriptionID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mockPool.ExpectExec("INSERT INTO subscriptions").
		WithArgs(sub.UserID, sub.Status, sub.PlanType, sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
			sub.StripeCustomerID, sub.StripeSubscriptionID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.ApplySync(context.Background(), sub))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestGetStripeCustomerIDAbsent(t *testing.T) {
	repo, mockPool := newRepoWithMock(t)

	mockPool.ExpectQuery("SELECT stripe_customer_id FROM subscriptions").
		WithArgs("doc-1").
		WillReturnRows(pgxmock.NewRows([]string{"stripe_customer_id"}))

	_, err := repo.GetStripeCustomerID(context.Background(), "doc-1")
	assert.ErrorIs(t, err, models.ErrNoCustomerRef)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestGetUserIDByCustomer(t *testing.T) {
	repo, mockPool := newRepoWithMock(t)

	mockPool.ExpectQuery("SELECT user_id FROM subscriptions").
		WithArgs("cus_123").
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow("doc-1"))

	userID, err := repo.GetUserIDByCustomer(context.Background(), "cus_123")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", userID)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
