package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/vacadoc/vacadoc/internal/app/domain/subscription"
	"github.com/vacadoc/vacadoc/internal/app/models"
	"github.com/vacadoc/vacadoc/internal/app/observability/metrics"
)

// RequireRole blocks users whose role is not in the allowed set.
func RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role := models.UserRole(c.GetString("role"))
		if _, ok := allowed[role]; !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient role for this resource"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// EntitlementGuard protects subscriber-only routes. The decision runs on the
// user's cached entitlement state so it stays cheap on the request path:
//
//   - while the very first fetch is still in flight the request passes, so a
//     paying user never sees a paywall flash on cold start
//   - any settled non-entitled state answers 402 with a diagnostic envelope
//     and kicks off a background re-fetch, so a user who just paid recovers
//     on retry without waiting out the poll interval
//
// Non-doctor roles are never billed and always pass.
func EntitlementGuard(coordinator *subscription.Coordinator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		role := models.UserRole(c.GetString("role"))

		if role != models.RoleDoctor {
			c.Next()
			return
		}

		fetcher := coordinator.ForUser(userID, role)
		if fetcher.Entitled(c.Request.Context()) {
			recordGuardDecision(c, "allow")
			// downstream handlers gate individual features on the plan;
			// empty until the first fetch resolves
			c.Set("plan", string(fetcher.Snapshot().Plan))
			c.Next()
			return
		}
		recordGuardDecision(c, "deny")

		st := fetcher.Snapshot()
		logger.Info("Blocked unentitled request",
			zap.String("user_id", userID),
			zap.String("status", string(st.Status)),
			zap.String("path", c.Request.URL.Path))

		// The state may simply be stale; re-check in the background so an
		// immediate retry after checkout succeeds.
		coordinator.Refresh(userID)

		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":    "An active subscription is required",
			"status":   st.Status,
			"plan":     st.Plan,
			"email":    c.GetString("email"),
			"checkout": "/api/v1/billing/checkout",
			"retry":    true,
		})
		c.Abort()
	}
}

func recordGuardDecision(c *gin.Context, decision string) {
	m := metrics.TryGet()
	if m == nil {
		return
	}
	m.GuardDecisionsTotal.Add(c.Request.Context(), 1,
		metric.WithAttributes(attribute.String("decision", decision)))
}
