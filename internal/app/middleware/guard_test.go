package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83"
	"go.uber.org/zap"

	"github.com/vacadoc/vacadoc/internal/app/domain/subscription"
	"github.com/vacadoc/vacadoc/internal/app/models"
	"github.com/vacadoc/vacadoc/internal/pkg/cache"
)

// stubStatusService serves a fixed status response; the optional gate makes
// the first fetch hang to exercise the loading pass-through.
type stubStatusService struct {
	resp *subscription.StatusResponse
	gate chan struct{}
}

func (s *stubStatusService) CurrentStatus(ctx context.Context, _ string) (*subscription.StatusResponse, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.resp, nil
}

func (s *stubStatusService) EnsurePlaceholder(context.Context, string) error { return nil }

func (s *stubStatusService) SyncFromProcessor(context.Context, string, string) (*models.Subscription, error) {
	return nil, nil
}

func (s *stubStatusService) ApplyProcessorSubscription(context.Context, string, *stripe.Subscription) (*models.Subscription, error) {
	return nil, nil
}

func (s *stubStatusService) PortalURL(context.Context, string) (string, error) { return "", nil }

func (s *stubStatusService) CheckoutURL(context.Context, string, string, models.PlanTier) (string, error) {
	return "", nil
}

func (s *stubStatusService) HandleWebhook(context.Context, []byte, string) error { return nil }

var _ subscription.Service = (*stubStatusService)(nil)

func newGuardRouter(t *testing.T, svc subscription.Service, userID string, role models.UserRole) (*gin.Engine, *subscription.Coordinator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	coordinator := subscription.NewCoordinator(context.Background(), svc, cache.NewMemoryActivityStore(),
		func(string) (string, error) { return "token", nil }, zap.NewNop())

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Set("role", string(role))
		c.Set("email", "user@vacadoc.fr")
		c.Next()
	})
	r.GET("/protected", EntitlementGuard(coordinator, zap.NewNop()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "plan": c.GetString("plan")})
	})
	return r, coordinator
}

func TestGuardPassesNonDoctorRoles(t *testing.T) {
	svc := &stubStatusService{resp: &subscription.StatusResponse{Status: models.StatusNone}}
	r, _ := newGuardRouter(t, svc, "est-1", models.RoleEstablishment)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGuardPassesEntitledDoctor(t *testing.T) {
	svc := &stubStatusService{resp: &subscription.StatusResponse{Status: models.StatusActive, PlanType: "pro"}}
	r, coordinator := newGuardRouter(t, svc, "doc-1", models.RoleDoctor)

	// settle the first fetch so the decision runs on resolved state
	coordinator.ForUser("doc-1", models.RoleDoctor).Fetch(context.Background())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	// the resolved plan rides the request context for feature gates
	assert.Contains(t, w.Body.String(), `"plan":"pro"`)
}

func TestGuardBlocksUnsubscribedDoctorWithDiagnostics(t *testing.T) {
	svc := &stubStatusService{resp: &subscription.StatusResponse{Status: models.StatusNone}}
	r, coordinator := newGuardRouter(t, svc, "doc-2", models.RoleDoctor)

	coordinator.ForUser("doc-2", models.RoleDoctor).Fetch(context.Background())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))

	require.Equal(t, http.StatusPaymentRequired, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "none", body["status"])
	assert.Equal(t, "user@vacadoc.fr", body["email"])
	assert.Equal(t, "/api/v1/billing/checkout", body["checkout"])
	assert.Equal(t, true, body["retry"])
}

func TestGuardPassesWhileFirstFetchInFlight(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)

	svc := &stubStatusService{resp: &subscription.StatusResponse{Status: models.StatusNone}, gate: gate}
	r, _ := newGuardRouter(t, svc, "doc-3", models.RoleDoctor)

	// the fetcher is still waiting on its first response here
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRoleRejectsOtherRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("role", string(models.RoleEstablishment))
		c.Next()
	})
	r.POST("/doctor-only", RequireRole(models.RoleDoctor), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/doctor-only", nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
}
