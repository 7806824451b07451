package vacations

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vacadoc/vacadoc/internal/app/domain/subscription"
	"github.com/vacadoc/vacadoc/internal/app/models"
)

type CreateVacationRequest struct {
	Specialty     string    `json:"specialty" binding:"required"`
	Title         string    `json:"title" binding:"required"`
	Description   string    `json:"description"`
	Location      string    `json:"location"`
	StartDate     time.Time `json:"start_date" binding:"required"`
	EndDate       time.Time `json:"end_date" binding:"required"`
	HourlyRateEUR float64   `json:"hourly_rate_eur"`
	Urgent        bool      `json:"urgent"`
}

type BookRequest struct {
	Message string `json:"message"`
}

type VacationHandlers struct {
	svc    VacationService
	logger *zap.Logger
}

func NewVacationHandlers(svc VacationService, logger *zap.Logger) *VacationHandlers {
	return &VacationHandlers{svc: svc, logger: logger}
}

func (h *VacationHandlers) Create(c *gin.Context) {
	doctorID := c.GetString("user_id")

	var req CreateVacationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vacation payload"})
		return
	}

	// urgent posts are a pro-tier feature. An empty plan means the first
	// status fetch has not resolved yet; the request passes rather than
	// paywalling a doctor whose plan is merely unknown.
	if req.Urgent {
		role := models.UserRole(c.GetString("role"))
		if plan := models.PlanTier(c.GetString("plan")); plan != "" &&
			!subscription.HasFeature(role, plan, subscription.FeatureUrgentVacations) {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "Urgent posts require the pro plan or higher",
				"plan":    plan,
				"feature": subscription.FeatureUrgentVacations,
			})
			return
		}
	}

	v, err := h.svc.Create(c.Request.Context(), doctorID, &models.Vacation{
		Specialty:     req.Specialty,
		Title:         req.Title,
		Description:   req.Description,
		Location:      req.Location,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		HourlyRateEUR: req.HourlyRateEUR,
		Urgent:        req.Urgent,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, v)
}

func (h *VacationHandlers) Search(c *gin.Context) {
	filter := models.VacationFilter{
		Specialty: c.Query("specialty"),
		Location:  c.Query("location"),
		Query:     c.Query("q"),
		Status:    models.VacationStatus(c.Query("status")),
	}
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.From = &t
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.To = &t
		}
	}
	if v := c.Query("urgent"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			filter.Urgent = &b
		}
	}
	if v := c.Query("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := c.Query("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	results, err := h.svc.Search(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"vacations": results, "count": len(results)})
}

func (h *VacationHandlers) Get(c *gin.Context) {
	v, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *VacationHandlers) ListMine(c *gin.Context) {
	results, err := h.svc.ListMine(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vacations": results, "count": len(results)})
}

func (h *VacationHandlers) Cancel(c *gin.Context) {
	err := h.svc.Cancel(c.Request.Context(), c.GetString("user_id"), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Vacation cancelled"})
}

func (h *VacationHandlers) Book(c *gin.Context) {
	var req BookRequest
	_ = c.ShouldBindJSON(&req)

	booking, err := h.svc.Book(c.Request.Context(), c.GetString("user_id"), c.Param("id"), req.Message)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, booking)
}

func (h *VacationHandlers) Confirm(c *gin.Context) {
	err := h.svc.Confirm(c.Request.Context(), c.GetString("user_id"), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Booking confirmed"})
}

func (h *VacationHandlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Vacation not found"})
	case errors.Is(err, models.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Not allowed"})
	case errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Vacation is no longer available"})
	default:
		h.logger.Error("Vacation operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Operation failed"})
	}
}
