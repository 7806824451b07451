package messaging

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vacadoc/vacadoc/internal/app/models"
)

type StartConversationRequest struct {
	PartnerID  string  `json:"partner_id" binding:"required"`
	VacationID *string `json:"vacation_id"`
}

type SendMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

type MessagingHandlers struct {
	svc      MessageService
	hub      *Hub
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewMessagingHandlers(svc MessageService, hub *Hub, logger *zap.Logger) *MessagingHandlers {
	return &MessagingHandlers{
		svc:    svc,
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// auth happens in middleware before the upgrade
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *MessagingHandlers) StartConversation(c *gin.Context) {
	userID := c.GetString("user_id")
	role := models.UserRole(c.GetString("role"))

	var req StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "partner_id is required"})
		return
	}

	// conversations are stored doctor-first
	doctorID, partnerID := userID, req.PartnerID
	if role != models.RoleDoctor {
		doctorID, partnerID = req.PartnerID, userID
	}

	conv, err := h.svc.StartConversation(c.Request.Context(), doctorID, partnerID, req.VacationID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *MessagingHandlers) ListConversations(c *gin.Context) {
	convs, err := h.svc.ListConversations(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs, "count": len(convs)})
}

func (h *MessagingHandlers) Send(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body is required"})
		return
	}

	msg, err := h.svc.Send(c.Request.Context(), c.GetString("user_id"), c.Param("id"), req.Body)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *MessagingHandlers) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	msgs, err := h.svc.History(c.Request.Context(), c.GetString("user_id"), c.Param("id"), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "count": len(msgs)})
}

// Connect upgrades to a websocket and streams message events for the user.
func (h *MessagingHandlers) Connect(c *gin.Context) {
	userID := c.GetString("user_id")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	client := NewClient(h.hub, conn, userID, h.logger)
	client.Start()
}

func (h *MessagingHandlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
	case errors.Is(err, models.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant"})
	default:
		h.logger.Error("Messaging operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Operation failed"})
	}
}
