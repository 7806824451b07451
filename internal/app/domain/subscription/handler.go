package subscription

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vacadoc/vacadoc/internal/app/models"
)

type SyncRequest struct {
	SubscriptionID string `json:"subscription_id" binding:"required"`
}

type CheckoutRequest struct {
	Plan string `json:"plan" binding:"required"`
}

type Handlers struct {
	svc         Service
	coordinator *Coordinator
	logger      *zap.Logger
}

func NewHandlers(svc Service, coordinator *Coordinator, logger *zap.Logger) *Handlers {
	return &Handlers{
		svc:         svc,
		coordinator: coordinator,
		logger:      logger,
	}
}

// GetStatus answers the status endpoint consumed by the fetcher and the SPA.
func (h *Handlers) GetStatus(c *gin.Context) {
	userID := c.GetString("user_id")

	resp, err := h.svc.CurrentStatus(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to resolve subscription status", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve subscription status"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// SyncPlan reconciles the processor subscription object into the record,
// then nudges the user's fetcher so protected pages pick the change up
// without waiting for the next poll.
func (h *Handlers) SyncPlan(c *gin.Context) {
	userID := c.GetString("user_id")

	var req SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subscription_id is required"})
		return
	}

	record, err := h.svc.SyncFromProcessor(c.Request.Context(), userID, req.SubscriptionID)
	if err != nil {
		h.writeServiceError(c, userID, err)
		return
	}

	h.coordinator.Refresh(userID)

	out := gin.H{"status": record.Status}
	if record.PlanType != nil {
		out["plan_type"] = *record.PlanType
	}
	c.JSON(http.StatusOK, out)
}

// RefreshEntitlement is the manual "check again" affordance: it forces an
// immediate fetch and returns the resulting state.
func (h *Handlers) RefreshEntitlement(c *gin.Context) {
	userID := c.GetString("user_id")
	role := models.UserRole(c.GetString("role"))

	fetcher := h.coordinator.ForUser(userID, role)
	st := fetcher.Fetch(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"status":     st.Status,
		"plan":       st.Plan,
		"subscribed": fetcher.Entitled(c.Request.Context()),
	})
}

// Portal returns a hosted billing-portal URL for self-service management.
func (h *Handlers) Portal(c *gin.Context) {
	userID := c.GetString("user_id")

	url, err := h.svc.PortalURL(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrNoCustomerRef) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No billing customer for this account"})
			return
		}
		h.writeServiceError(c, userID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

// Checkout launches a hosted checkout session for a plan tier.
func (h *Handlers) Checkout(c *gin.Context) {
	userID := c.GetString("user_id")
	email := c.GetString("email")

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "plan is required"})
		return
	}

	tier, ok := ParsePlanName(req.Plan)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown plan"})
		return
	}

	url, err := h.svc.CheckoutURL(c.Request.Context(), userID, email, tier)
	if err != nil {
		h.writeServiceError(c, userID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

// Webhook receives processor events. Signature failures are 400s so the
// processor retries; handled events always answer 200.
func (h *Handlers) Webhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read payload"})
		return
	}

	err = h.svc.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, models.ErrUnauthenticated) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
			return
		}
		h.writeServiceError(c, "", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *Handlers) writeServiceError(c *gin.Context, userID string, err error) {
	switch {
	case errors.Is(err, models.ErrMissingConfig):
		h.logger.Error("Billing endpoint hit without configuration", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "missing configuration"})
	case errors.Is(err, models.ErrBadRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	default:
		h.logger.Error("Billing operation failed", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Billing operation failed"})
	}
}
