package establishments

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vacadoc/vacadoc/internal/app/models"
)

type ProfileRequest struct {
	Name    string `json:"name" binding:"required"`
	Kind    string `json:"kind"`
	Address string `json:"address"`
	City    string `json:"city"`
	Phone   string `json:"phone"`
	SIRET   string `json:"siret"`
}

type EstablishmentHandlers struct {
	repo   EstablishmentRepo
	logger *zap.Logger
}

func NewEstablishmentHandlers(repo EstablishmentRepo, logger *zap.Logger) *EstablishmentHandlers {
	return &EstablishmentHandlers{repo: repo, logger: logger}
}

func (h *EstablishmentHandlers) SaveProfile(c *gin.Context) {
	userID := c.GetString("user_id")

	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid profile payload"})
		return
	}

	kind := req.Kind
	if kind == "" {
		kind = "clinic"
	}

	profile := &models.Establishment{
		UserID:  userID,
		Name:    req.Name,
		Kind:    kind,
		Address: req.Address,
		City:    req.City,
		Phone:   req.Phone,
		SIRET:   req.SIRET,
	}
	if err := h.repo.Upsert(c.Request.Context(), profile); err != nil {
		h.logger.Error("Failed to save establishment profile", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save profile"})
		return
	}

	c.JSON(http.StatusOK, profile)
}

func (h *EstablishmentHandlers) GetProfile(c *gin.Context) {
	userID := c.GetString("user_id")

	profile, err := h.repo.GetByUserID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No profile yet"})
			return
		}
		h.logger.Error("Failed to load establishment profile", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load profile"})
		return
	}

	c.JSON(http.StatusOK, profile)
}
