package messaging

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vacadoc/vacadoc/internal/app/models"
)

var _ MessageService = (*MessageServiceImpl)(nil)

type MessageService interface {
	StartConversation(ctx context.Context, doctorID, partnerID string, vacationID *string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	Send(ctx context.Context, senderID, conversationID, body string) (*models.Message, error)
	History(ctx context.Context, userID, conversationID string, limit int) ([]models.Message, error)
}

type MessageServiceImpl struct {
	logger *zap.Logger
	repo   MessageRepo
	hub    *Hub
}

func NewMessageService(repo MessageRepo, hub *Hub, logger *zap.Logger) *MessageServiceImpl {
	return &MessageServiceImpl{logger: logger, repo: repo, hub: hub}
}

func (s *MessageServiceImpl) StartConversation(ctx context.Context, doctorID, partnerID string, vacationID *string) (*models.Conversation, error) {
	if doctorID == partnerID {
		return nil, fmt.Errorf("cannot start a conversation with yourself: %w", models.ErrValidation)
	}
	return s.repo.EnsureConversation(ctx, doctorID, partnerID, vacationID)
}

func (s *MessageServiceImpl) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	return s.repo.ListConversations(ctx, userID)
}

// Send persists the message, then pushes it to the other participant's open
// connections. Persistence first: a dropped push only costs liveness, the
// message is still there on the next history load.
func (s *MessageServiceImpl) Send(ctx context.Context, senderID, conversationID, body string) (*models.Message, error) {
	l := s.logger.With(zap.String("method", "Send"), zap.String("conversationID", conversationID))

	if body == "" {
		return nil, fmt.Errorf("message body is empty: %w", models.ErrValidation)
	}

	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	recipient, ok := otherParticipant(conv, senderID)
	if !ok {
		l.Warn("Send attempt by non-participant", zap.String("senderID", senderID))
		return nil, fmt.Errorf("not a participant of this conversation: %w", models.ErrForbidden)
	}

	msg := &models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
	}
	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	if s.hub != nil {
		s.hub.SendToUser(recipient, Event{
			Type:           "message",
			ConversationID: conversationID,
			SenderID:       senderID,
			Body:           body,
			CreatedAt:      msg.CreatedAt.Format(time.RFC3339),
		})
	}
	return msg, nil
}

func (s *MessageServiceImpl) History(ctx context.Context, userID, conversationID string, limit int) ([]models.Message, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if _, ok := otherParticipant(conv, userID); !ok {
		return nil, fmt.Errorf("not a participant of this conversation: %w", models.ErrForbidden)
	}
	return s.repo.ListMessages(ctx, conversationID, limit)
}

// otherParticipant returns the counterpart of userID in the conversation,
// and whether userID participates at all.
func otherParticipant(conv *models.Conversation, userID string) (string, bool) {
	switch userID {
	case conv.DoctorID:
		return conv.PartnerID, true
	case conv.PartnerID:
		return conv.DoctorID, true
	default:
		return "", false
	}
}
