package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vacadoc/vacadoc/internal/app/models"
)

type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) EnsureConversation(ctx context.Context, doctorID, partnerID string, vacationID *string) (*models.Conversation, error) {
	args := m.Called(ctx, doctorID, partnerID, vacationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockMessageRepo) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockMessageRepo) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Conversation), args.Error(1)
}

func (m *MockMessageRepo) AppendMessage(ctx context.Context, msg *models.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockMessageRepo) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func conversationFixture() *models.Conversation {
	return &models.Conversation{
		ID:        "conv-1",
		DoctorID:  "doc-1",
		PartnerID: "est-1",
	}
}

func TestSendRejectsNonParticipant(t *testing.T) {
	repo := new(MockMessageRepo)
	repo.On("GetConversation", mock.Anything, "conv-1").Return(conversationFixture(), nil)

	svc := NewMessageService(repo, nil, zap.NewNop())

	_, err := svc.Send(context.Background(), "intruder", "conv-1", "hello")
	assert.ErrorIs(t, err, models.ErrForbidden)
	repo.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything)
}

func TestSendRejectsEmptyBody(t *testing.T) {
	svc := NewMessageService(new(MockMessageRepo), nil, zap.NewNop())

	_, err := svc.Send(context.Background(), "doc-1", "conv-1", "")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSendPersistsAndNotifiesRecipient(t *testing.T) {
	repo := new(MockMessageRepo)
	repo.On("GetConversation", mock.Anything, "conv-1").Return(conversationFixture(), nil)
	repo.On("AppendMessage", mock.Anything, mock.MatchedBy(func(m *models.Message) bool {
		return m.SenderID == "doc-1" && m.Body == "Bonjour"
	})).Return(nil)

	hub := NewHub(zap.NewNop())
	go hub.Run()

	svc := NewMessageService(repo, hub, zap.NewNop())

	msg, err := svc.Send(context.Background(), "doc-1", "conv-1", "Bonjour")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", msg.ConversationID)
	repo.AssertExpectations(t)

	// the recipient side is observable through the hub queue draining
	assert.Eventually(t, func() bool {
		return len(hub.deliver) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestStartConversationWithSelf(t *testing.T) {
	svc := NewMessageService(new(MockMessageRepo), nil, zap.NewNop())

	_, err := svc.StartConversation(context.Background(), "doc-1", "doc-1", nil)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestHistoryRequiresParticipation(t *testing.T) {
	repo := new(MockMessageRepo)
	repo.On("GetConversation", mock.Anything, "conv-1").Return(conversationFixture(), nil)

	svc := NewMessageService(repo, nil, zap.NewNop())

	_, err := svc.History(context.Background(), "intruder", "conv-1", 50)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestOtherParticipant(t *testing.T) {
	conv := conversationFixture()

	got, ok := otherParticipant(conv, "doc-1")
	assert.True(t, ok)
	assert.Equal(t, "est-1", got)

	got, ok = otherParticipant(conv, "est-1")
	assert.True(t, ok)
	assert.Equal(t, "doc-1", got)

	_, ok = otherParticipant(conv, "someone-else")
	assert.False(t, ok)
}
