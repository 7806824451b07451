package establishments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vacadoc/vacadoc/internal/app/models"
)

var _ EstablishmentRepo = (*PostgresEstablishmentRepo)(nil)

type EstablishmentRepo interface {
	// Upsert creates the profile on first save and updates it afterwards.
	Upsert(ctx context.Context, e *models.Establishment) error
	GetByUserID(ctx context.Context, userID string) (*models.Establishment, error)
}

type PostgresEstablishmentRepo struct {
	logger *slog.Logger
	pgpool *pgxpool.Pool
}

func NewPostgresEstablishmentRepo(pgpool *pgxpool.Pool, logger *slog.Logger) *PostgresEstablishmentRepo {
	return &PostgresEstablishmentRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *PostgresEstablishmentRepo) Upsert(ctx context.Context, e *models.Establishment) error {
	query := `
INSERT INTO establishments (user_id, name, kind, address, city, phone, siret)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_id) DO UPDATE SET
    name = EXCLUDED.name,
    kind = EXCLUDED.kind,
    address = EXCLUDED.address,
    city = EXCLUDED.city,
    phone = EXCLUDED.phone,
    siret = EXCLUDED.siret,
    updated_at = NOW()
RETURNING id, created_at, updated_at`
	err := r.pgpool.QueryRow(ctx, query,
		e.UserID, e.Name, e.Kind, e.Address, e.City, e.Phone, e.SIRET,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error upserting establishment profile", slog.Any("error", err), slog.String("userID", e.UserID))
		return fmt.Errorf("database error saving establishment profile: %w", err)
	}
	return nil
}

func (r *PostgresEstablishmentRepo) GetByUserID(ctx context.Context, userID string) (*models.Establishment, error) {
	var e models.Establishment
	query := `
SELECT id, user_id, name, kind, address, city, phone, siret, created_at, updated_at
FROM establishments
WHERE user_id = $1`
	err := r.pgpool.QueryRow(ctx, query, userID).Scan(
		&e.ID, &e.UserID, &e.Name, &e.Kind, &e.Address, &e.City, &e.Phone, &e.SIRET,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("no establishment profile for user %s: %w", userID, models.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Error fetching establishment profile", slog.Any("error", err), slog.String("userID", userID))
		return nil, fmt.Errorf("database error fetching establishment profile: %w", err)
	}
	return &e, nil
}
