package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/vacadoc/vacadoc/internal/app/models"
)

var _ MessageRepo = (*PostgresMessageRepo)(nil)

// PgxPool is the subset of pgxpool.Pool the repository uses; pgxmock
// implements it for tests.
type PgxPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type MessageRepo interface {
	// EnsureConversation finds or creates the conversation between a doctor
	// and a partner, optionally anchored to a vacation.
	EnsureConversation(ctx context.Context, doctorID, partnerID string, vacationID *string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	AppendMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
}

type PostgresMessageRepo struct {
	logger *slog.Logger
	pgpool PgxPool
}

func NewPostgresMessageRepo(pgpool PgxPool, logger *slog.Logger) *PostgresMessageRepo {
	return &PostgresMessageRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *PostgresMessageRepo) EnsureConversation(ctx context.Context, doctorID, partnerID string, vacationID *string) (*models.Conversation, error) {
	conv := &models.Conversation{DoctorID: doctorID, PartnerID: partnerID, VacationID: vacationID}

	// the backing constraint is UNIQUE NULLS NOT DISTINCT, so the arbiter
	// also fires for two general threads with a NULL vacation_id
	query := `
INSERT INTO conversations (doctor_id, partner_id, vacation_id)
VALUES ($1, $2, $3)
ON CONFLICT (doctor_id, partner_id, vacation_id) DO UPDATE SET doctor_id = EXCLUDED.doctor_id
RETURNING id, created_at`
	err := r.pgpool.QueryRow(ctx, query, doctorID, partnerID, vacationID).Scan(&conv.ID, &conv.CreatedAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error ensuring conversation", slog.Any("error", err),
			slog.String("doctorID", doctorID), slog.String("partnerID", partnerID))
		return nil, fmt.Errorf("database error ensuring conversation: %w", err)
	}
	return conv, nil
}

func (r *PostgresMessageRepo) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	query := `SELECT id, vacation_id, doctor_id, partner_id, created_at FROM conversations WHERE id = $1`
	err := r.pgpool.QueryRow(ctx, query, id).Scan(&conv.ID, &conv.VacationID, &conv.DoctorID, &conv.PartnerID, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("conversation %s not found: %w", id, models.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Error fetching conversation", slog.Any("error", err), slog.String("id", id))
		return nil, fmt.Errorf("database error fetching conversation: %w", err)
	}
	return &conv, nil
}

func (r *PostgresMessageRepo) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	query := `
SELECT id, vacation_id, doctor_id, partner_id, created_at
FROM conversations
WHERE doctor_id = $1 OR partner_id = $1
ORDER BY created_at DESC`
	rows, err := r.pgpool.Query(ctx, query, userID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing conversations", slog.Any("error", err), slog.String("userID", userID))
		return nil, fmt.Errorf("database error listing conversations: %w", err)
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.VacationID, &conv.DoctorID, &conv.PartnerID, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}
	return out, nil
}

func (r *PostgresMessageRepo) AppendMessage(ctx context.Context, m *models.Message) error {
	query := `
INSERT INTO messages (conversation_id, sender_id, body)
VALUES ($1, $2, $3)
RETURNING id, created_at`
	err := r.pgpool.QueryRow(ctx, query, m.ConversationID, m.SenderID, m.Body).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error appending message", slog.Any("error", err),
			slog.String("conversationID", m.ConversationID))
		return fmt.Errorf("database error appending message: %w", err)
	}
	return nil
}

func (r *PostgresMessageRepo) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	query := `
SELECT id, conversation_id, sender_id, body, created_at
FROM messages
WHERE conversation_id = $1
ORDER BY created_at DESC
LIMIT $2`
	rows, err := r.pgpool.Query(ctx, query, conversationID, limit)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing messages", slog.Any("error", err), slog.String("conversationID", conversationID))
		return nil, fmt.Errorf("database error listing messages: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	// oldest first for display
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
