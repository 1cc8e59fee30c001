package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tutorlane/tutorlane-api/internal/models"
	"github.com/tutorlane/tutorlane-api/internal/repository"
	appErrors "github.com/tutorlane/tutorlane-api/pkg/errors"
)

type bookingRepository interface {
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	FetchOverlapping(ctx context.Context, teacherID string, start, end time.Time) ([]models.Booking, error)
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error)
	InsertExclusive(ctx context.Context, booking *models.Booking) error
	UpdateStatus(ctx context.Context, id string, status models.BookingStatus) error
	MarkCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BookSlotRequest represents payload for committing a slot.
type BookSlotRequest struct {
	TeacherID string    `json:"teacher_id" validate:"required"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required"`
}

// BookingServiceConfig governs commit behaviour.
type BookingServiceConfig struct {
	// RequirePaymentHold creates bookings as PENDING; the payment
	// collaborator confirms them out of band. The engine only guarantees
	// exclusivity of the time range either way.
	RequirePaymentHold bool
	SlotDuration       time.Duration
}

// BookingService implements the booking commit protocol plus the booking
// lifecycle views around it.
type BookingService struct {
	repo      bookingRepository
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       BookingServiceConfig
}

// NewBookingService constructs a BookingService.
func NewBookingService(repo bookingRepository, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg BookingServiceConfig) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlotDuration <= 0 {
		cfg.SlotDuration = time.Hour
	}
	return &BookingService{repo: repo, cache: cache, metrics: metrics, validator: validate, logger: logger, cfg: cfg}
}

// Book commits a slot for the student. The previously displayed
// availability flag is never trusted: the repository re-checks overlap under
// a per-teacher serialization point, so concurrent commits for the same
// range resolve to exactly one winner.
func (s *BookingService) Book(ctx context.Context, studentID string, req BookSlotRequest) (*models.Booking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	if !req.StartTime.Before(req.EndTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be before end_time")
	}
	if req.EndTime.Sub(req.StartTime) != s.cfg.SlotDuration {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("booking length must equal the slot duration of %s", s.cfg.SlotDuration))
	}

	status := models.BookingStatusConfirmed
	if s.cfg.RequirePaymentHold {
		status = models.BookingStatusPending
	}

	booking := &models.Booking{
		TeacherID: req.TeacherID,
		StudentID: studentID,
		StartTime: req.StartTime.UTC(),
		EndTime:   req.EndTime.UTC(),
		Status:    status,
	}

	if err := s.repo.InsertExclusive(ctx, booking); err != nil {
		if errors.Is(err, repository.ErrBookingOverlap) {
			if s.metrics != nil {
				s.metrics.RecordBookingCommit(false)
			}
			return nil, appErrors.Clone(appErrors.ErrSlotConflict, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to commit booking")
	}

	if s.metrics != nil {
		s.metrics.RecordBookingCommit(true)
	}
	s.invalidateSlots(ctx, booking.TeacherID)
	return booking, nil
}

// Get returns a booking visible to the requesting user.
func (s *BookingService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Booking, error) {
	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	if !canSeeBooking(booking, claims) {
		return nil, appErrors.ErrForbidden
	}
	return booking, nil
}

// List returns bookings matching the filter, scoped to what the requesting
// user may see.
func (s *BookingService) List(ctx context.Context, filter models.BookingFilter, claims *models.JWTClaims) ([]models.Booking, *models.Pagination, error) {
	if claims != nil {
		switch claims.Role {
		case models.RoleTeacher:
			filter.TeacherID = claims.UserID
		case models.RoleStudent:
			filter.StudentID = claims.UserID
		}
	}

	bookings, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return bookings, pagination, nil
}

// Cancel transitions a booking to CANCELLED on behalf of a participant.
// Cancelling frees the time range for new commits.
func (s *BookingService) Cancel(ctx context.Context, id string, claims *models.JWTClaims) (*models.Booking, error) {
	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	if !canSeeBooking(booking, claims) {
		return nil, appErrors.ErrForbidden
	}
	if booking.Status == models.BookingStatusCancelled || booking.Status == models.BookingStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("booking is already %s", booking.Status))
	}

	if err := s.repo.UpdateStatus(ctx, id, models.BookingStatusCancelled); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to cancel booking")
	}
	booking.Status = models.BookingStatusCancelled
	s.invalidateSlots(ctx, booking.TeacherID)
	return booking, nil
}

// SweepCompleted promotes confirmed bookings whose end time has elapsed.
// Invoked on an interval by the lifecycle sweeper.
func (s *BookingService) SweepCompleted(ctx context.Context) error {
	count, err := s.repo.MarkCompletedBefore(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sweep completed bookings: %w", err)
	}
	if count > 0 {
		s.logger.Info("bookings completed", zap.Int64("count", count))
	}
	return nil
}

func (s *BookingService) invalidateSlots(ctx context.Context, teacherID string) {
	if s.cache == nil {
		return
	}
	// The cache-key date a booking falls on depends on the slot timezone,
	// so invalidate the whole teacher instead of guessing.
	pattern := fmt.Sprintf("slots:%s:*", teacherID)
	if err := s.cache.Invalidate(ctx, pattern); err != nil {
		s.logger.Warn("slot cache invalidation failed", zap.String("pattern", pattern), zap.Error(err))
	}
}

func canSeeBooking(booking *models.Booking, claims *models.JWTClaims) bool {
	if claims == nil {
		return false
	}
	switch claims.Role {
	case models.RoleAdmin:
		return true
	case models.RoleTeacher:
		return booking.TeacherID == claims.UserID
	case models.RoleStudent:
		return booking.StudentID == claims.UserID
	default:
		return false
	}
}
