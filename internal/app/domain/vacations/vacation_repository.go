package vacations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/vacadoc/vacadoc/internal/app/models"
	"github.com/vacadoc/vacadoc/internal/app/observability/metrics"
)

var _ VacationRepo = (*PostgresVacationRepo)(nil)

type VacationRepo interface {
	Create(ctx context.Context, v *models.Vacation) error
	GetByID(ctx context.Context, id string) (*models.Vacation, error)
	Search(ctx context.Context, filter models.VacationFilter) ([]models.Vacation, error)
	ListByDoctor(ctx context.Context, doctorID string) ([]models.Vacation, error)
	UpdateStatus(ctx context.Context, id string, from, to models.VacationStatus) error
	CreateBooking(ctx context.Context, b *models.Booking) error
	ListBookings(ctx context.Context, vacationID string) ([]models.Booking, error)
}

type PostgresVacationRepo struct {
	logger *slog.Logger
	pgpool *pgxpool.Pool
}

func NewPostgresVacationRepo(pgpool *pgxpool.Pool, logger *slog.Logger) *PostgresVacationRepo {
	return &PostgresVacationRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const vacationColumns = `id, doctor_id, specialty, title, description, location,
       start_date, end_date, hourly_rate_eur, urgent, status, created_at, updated_at`

func (r *PostgresVacationRepo) Create(ctx context.Context, v *models.Vacation) error {
	query := `
INSERT INTO vacations (doctor_id, specialty, title, description, location, search_text,
                       start_date, end_date, hourly_rate_eur, urgent)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id, status, created_at, updated_at`
	err := r.pgpool.QueryRow(ctx, query,
		v.DoctorID, v.Specialty, v.Title, v.Description, v.Location,
		searchText(v.Title, v.Specialty, v.Location, v.Description),
		v.StartDate, v.EndDate, v.HourlyRateEUR, v.Urgent,
	).Scan(&v.ID, &v.Status, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating vacation", slog.Any("error", err), slog.String("doctorID", v.DoctorID))
		return fmt.Errorf("database error creating vacation: %w", err)
	}
	return nil
}

func (r *PostgresVacationRepo) GetByID(ctx context.Context, id string) (*models.Vacation, error) {
	query := "SELECT " + vacationColumns + " FROM vacations WHERE id = $1"
	var v models.Vacation
	err := r.pgpool.QueryRow(ctx, query, id).Scan(
		&v.ID, &v.DoctorID, &v.Specialty, &v.Title, &v.Description, &v.Location,
		&v.StartDate, &v.EndDate, &v.HourlyRateEUR, &v.Urgent, &v.Status,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("vacation %s not found: %w", id, models.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Error fetching vacation", slog.Any("error", err), slog.String("id", id))
		return nil, fmt.Errorf("database error fetching vacation: %w", err)
	}
	return &v, nil
}

// buildSearchQuery assembles the filtered listing query. Free-text matching
// runs against the pre-folded search_text column with an equally folded
// needle, which makes it accent and case insensitive.
func buildSearchQuery(filter models.VacationFilter) sq.SelectBuilder {
	q := psql.Select(
		"id", "doctor_id", "specialty", "title", "description", "location",
		"start_date", "end_date", "hourly_rate_eur", "urgent", "status",
		"created_at", "updated_at",
	).From("vacations")

	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": filter.Status})
	}
	if filter.Specialty != "" {
		q = q.Where(sq.Eq{"specialty": filter.Specialty})
	}
	if filter.Location != "" {
		q = q.Where(sq.ILike{"location": "%" + filter.Location + "%"})
	}
	if filter.Query != "" {
		q = q.Where(sq.Like{"search_text": "%" + Normalize(filter.Query) + "%"})
	}
	if filter.From != nil {
		q = q.Where(sq.GtOrEq{"start_date": *filter.From})
	}
	if filter.To != nil {
		q = q.Where(sq.LtOrEq{"end_date": *filter.To})
	}
	if filter.Urgent != nil {
		q = q.Where(sq.Eq{"urgent": *filter.Urgent})
	}

	// urgent posts first, then soonest start
	q = q.OrderBy("urgent DESC", "start_date ASC")

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q = q.Limit(uint64(limit))
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return q
}

func (r *PostgresVacationRepo) Search(ctx context.Context, filter models.VacationFilter) ([]models.Vacation, error) {
	query, args, err := buildSearchQuery(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building search query: %w", err)
	}

	start := time.Now()
	rows, err := r.pgpool.Query(ctx, query, args...)
	recordQuery(ctx, "vacations_search", start, err)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error searching vacations", slog.Any("error", err))
		return nil, fmt.Errorf("database error searching vacations: %w", err)
	}
	defer rows.Close()

	return scanVacations(rows)
}

func recordQuery(ctx context.Context, name string, start time.Time, err error) {
	m := metrics.TryGet()
	if m == nil {
		return
	}
	m.DBQueryDurationSeconds.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("query", name)))
	if err != nil {
		m.DBQueryErrorsTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("query", name)))
	}
}

func (r *PostgresVacationRepo) ListByDoctor(ctx context.Context, doctorID string) ([]models.Vacation, error) {
	query := "SELECT " + vacationColumns + " FROM vacations WHERE doctor_id = $1 ORDER BY start_date DESC"
	rows, err := r.pgpool.Query(ctx, query, doctorID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing doctor vacations", slog.Any("error", err), slog.String("doctorID", doctorID))
		return nil, fmt.Errorf("database error listing vacations: %w", err)
	}
	defer rows.Close()

	return scanVacations(rows)
}

func scanVacations(rows pgx.Rows) ([]models.Vacation, error) {
	var out []models.Vacation
	for rows.Next() {
		var v models.Vacation
		err := rows.Scan(
			&v.ID, &v.DoctorID, &v.Specialty, &v.Title, &v.Description, &v.Location,
			&v.StartDate, &v.EndDate, &v.HourlyRateEUR, &v.Urgent, &v.Status,
			&v.CreatedAt, &v.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning vacation row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vacation rows: %w", err)
	}
	return out, nil
}

// UpdateStatus transitions a vacation from one status to another. The guard
// on the current status makes concurrent transitions race safe: exactly one
// of two competing bookings will see rows affected.
func (r *PostgresVacationRepo) UpdateStatus(ctx context.Context, id string, from, to models.VacationStatus) error {
	query := `UPDATE vacations SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`
	tag, err := r.pgpool.Exec(ctx, query, id, from, to)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating vacation status", slog.Any("error", err), slog.String("id", id))
		return fmt.Errorf("database error updating vacation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vacation %s not in status %s: %w", id, from, models.ErrConflict)
	}
	return nil
}

func (r *PostgresVacationRepo) CreateBooking(ctx context.Context, b *models.Booking) error {
	query := `
INSERT INTO bookings (vacation_id, establishment_id, message)
VALUES ($1, $2, $3)
RETURNING id, created_at`
	err := r.pgpool.QueryRow(ctx, query, b.VacationID, b.EstablishmentID, b.Message).
		Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("establishment already booked this vacation: %w", models.ErrConflict)
		}
		r.logger.ErrorContext(ctx, "Error creating booking", slog.Any("error", err), slog.String("vacationID", b.VacationID))
		return fmt.Errorf("database error creating booking: %w", err)
	}
	return nil
}

func (r *PostgresVacationRepo) ListBookings(ctx context.Context, vacationID string) ([]models.Booking, error) {
	query := `
SELECT id, vacation_id, establishment_id, message, created_at
FROM bookings
WHERE vacation_id = $1
ORDER BY created_at ASC`
	rows, err := r.pgpool.Query(ctx, query, vacationID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing bookings", slog.Any("error", err), slog.String("vacationID", vacationID))
		return nil, fmt.Errorf("database error listing bookings: %w", err)
	}
	defer rows.Close()

	var out []models.Booking
	for rows.Next() {
		var b models.Booking
		if err := rows.Scan(&b.ID, &b.VacationID, &b.EstablishmentID, &b.Message, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning booking row: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating booking rows: %w", err)
	}
	return out, nil
}
