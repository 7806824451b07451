package vacations

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vacadoc/vacadoc/internal/app/models"
)

// Ensure implementation satisfies the interface
var _ VacationService = (*VacationServiceImpl)(nil)

type VacationService interface {
	Create(ctx context.Context, doctorID string, v *models.Vacation) (*models.Vacation, error)
	Get(ctx context.Context, id string) (*models.Vacation, error)
	Search(ctx context.Context, filter models.VacationFilter) ([]models.Vacation, error)
	ListMine(ctx context.Context, doctorID string) ([]models.Vacation, error)
	Cancel(ctx context.Context, doctorID, vacationID string) error
	Book(ctx context.Context, establishmentID, vacationID, message string) (*models.Booking, error)
	Confirm(ctx context.Context, doctorID, vacationID string) error
}

type VacationServiceImpl struct {
	logger *zap.Logger
	repo   VacationRepo
}

func NewVacationService(repo VacationRepo, logger *zap.Logger) *VacationServiceImpl {
	return &VacationServiceImpl{logger: logger, repo: repo}
}

func (s *VacationServiceImpl) Create(ctx context.Context, doctorID string, v *models.Vacation) (*models.Vacation, error) {
	l := s.logger.With(zap.String("method", "Create"), zap.String("doctorID", doctorID))

	if v.Title == "" || v.Specialty == "" {
		return nil, fmt.Errorf("title and specialty are required: %w", models.ErrValidation)
	}
	if !v.EndDate.After(v.StartDate) {
		return nil, fmt.Errorf("end date must be after start date: %w", models.ErrValidation)
	}
	if v.HourlyRateEUR < 0 {
		return nil, fmt.Errorf("hourly rate cannot be negative: %w", models.ErrValidation)
	}

	v.DoctorID = doctorID
	if err := s.repo.Create(ctx, v); err != nil {
		l.Error("Failed to create vacation", zap.Error(err))
		return nil, err
	}

	l.Info("Vacation created", zap.String("vacationID", v.ID), zap.Bool("urgent", v.Urgent))
	return v, nil
}

func (s *VacationServiceImpl) Get(ctx context.Context, id string) (*models.Vacation, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *VacationServiceImpl) Search(ctx context.Context, filter models.VacationFilter) ([]models.Vacation, error) {
	tracer := otel.Tracer("Vacadoc")
	ctx, span := tracer.Start(ctx, "VacationService.Search", trace.WithAttributes(
		attribute.String("specialty", filter.Specialty),
		attribute.String("query", filter.Query),
	))
	defer span.End()

	// open posts only unless the caller asks otherwise
	if filter.Status == "" {
		filter.Status = models.VacationOpen
	}

	results, err := s.repo.Search(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Search failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("results", len(results)))
	span.SetStatus(codes.Ok, "Search complete")
	return results, nil
}

func (s *VacationServiceImpl) ListMine(ctx context.Context, doctorID string) ([]models.Vacation, error) {
	return s.repo.ListByDoctor(ctx, doctorID)
}

// Cancel marks an open vacation cancelled. Only the owning doctor may cancel.
func (s *VacationServiceImpl) Cancel(ctx context.Context, doctorID, vacationID string) error {
	l := s.logger.With(zap.String("method", "Cancel"), zap.String("vacationID", vacationID))

	v, err := s.repo.GetByID(ctx, vacationID)
	if err != nil {
		return err
	}
	if v.DoctorID != doctorID {
		l.Warn("Cancel attempt by non-owner", zap.String("doctorID", doctorID))
		return fmt.Errorf("vacation belongs to another doctor: %w", models.ErrForbidden)
	}

	if err := s.repo.UpdateStatus(ctx, vacationID, v.Status, models.VacationCanceled); err != nil {
		return err
	}

	l.Info("Vacation cancelled")
	return nil
}

// Book reserves an open vacation for an establishment. The status guard in
// the repository decides the winner when two establishments race.
func (s *VacationServiceImpl) Book(ctx context.Context, establishmentID, vacationID, message string) (*models.Booking, error) {
	l := s.logger.With(zap.String("method", "Book"),
		zap.String("vacationID", vacationID),
		zap.String("establishmentID", establishmentID))

	if err := s.repo.UpdateStatus(ctx, vacationID, models.VacationOpen, models.VacationBooked); err != nil {
		l.Warn("Booking transition failed", zap.Error(err))
		return nil, err
	}

	booking := &models.Booking{
		VacationID:      vacationID,
		EstablishmentID: establishmentID,
		Message:         message,
	}
	if err := s.repo.CreateBooking(ctx, booking); err != nil {
		// hand the slot back; the booking row is what makes it theirs
		if rbErr := s.repo.UpdateStatus(ctx, vacationID, models.VacationBooked, models.VacationOpen); rbErr != nil {
			l.Error("Failed to reopen vacation after booking failure", zap.Error(rbErr))
		}
		return nil, err
	}

	l.Info("Vacation booked")
	return booking, nil
}

// Confirm lets the owning doctor accept a booking.
func (s *VacationServiceImpl) Confirm(ctx context.Context, doctorID, vacationID string) error {
	v, err := s.repo.GetByID(ctx, vacationID)
	if err != nil {
		return err
	}
	if v.DoctorID != doctorID {
		return fmt.Errorf("vacation belongs to another doctor: %w", models.ErrForbidden)
	}
	return s.repo.UpdateStatus(ctx, vacationID, models.VacationBooked, models.VacationConfirmed)
}
