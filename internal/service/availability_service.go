package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tutorlane/tutorlane-api/internal/models"
	"github.com/tutorlane/tutorlane-api/internal/repository"
	appErrors "github.com/tutorlane/tutorlane-api/pkg/errors"
)

type availabilityRepository interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.AvailabilityWindow, error)
	Insert(ctx context.Context, window *models.AvailabilityWindow) error
	Delete(ctx context.Context, teacherID, windowID string) error
}

// CreateWindowRequest represents payload for declaring availability.
type CreateWindowRequest struct {
	Kind         models.WindowKind `json:"kind" validate:"required,oneof=RECURRING ONE_TIME"`
	DayOfWeek    *int              `json:"day_of_week" validate:"omitempty,min=0,max=6"`
	SpecificDate string            `json:"specific_date" validate:"omitempty,datetime=2006-01-02"`
	StartTime    string            `json:"start_time" validate:"required"`
	EndTime      string            `json:"end_time" validate:"required"`
}

// AvailabilityService orchestrates load/add/delete of availability windows.
// It keeps a per-teacher snapshot of the last loaded window set; every
// successful mutation reloads the snapshot from storage before returning, so
// consumers observe either the pre-mutation set or the fully reloaded one.
// On failure the prior snapshot is retained untouched.
type AvailabilityService struct {
	repo      availabilityRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger

	mu        sync.RWMutex
	snapshots map[string][]models.AvailabilityWindow
}

// NewAvailabilityService constructs an AvailabilityService.
func NewAvailabilityService(repo availabilityRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{
		repo:      repo,
		cache:     cache,
		validator: validate,
		logger:    logger,
		snapshots: make(map[string][]models.AvailabilityWindow),
	}
}

// Windows returns the teacher's availability windows, loading through the
// snapshot on first access.
func (s *AvailabilityService) Windows(ctx context.Context, teacherID string) ([]models.AvailabilityWindow, error) {
	s.mu.RLock()
	cached, ok := s.snapshots[teacherID]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}
	return s.reload(ctx, teacherID)
}

// Add validates and persists a new window, then reloads the snapshot.
func (s *AvailabilityService) Add(ctx context.Context, teacherID string, req CreateWindowRequest) (*models.AvailabilityWindow, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}

	window := &models.AvailabilityWindow{
		TeacherID: teacherID,
		Kind:      req.Kind,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	}

	switch req.Kind {
	case models.WindowRecurring:
		if req.DayOfWeek == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "day_of_week is required for recurring windows")
		}
		window.DayOfWeek = req.DayOfWeek
	case models.WindowOneTime:
		if req.SpecificDate == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "specific_date is required for one-time windows")
		}
		date, err := time.Parse("2006-01-02", req.SpecificDate)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid specific_date")
		}
		window.SpecificDate = &date
	}

	if err := validateTimeRange(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}

	if err := s.repo.Insert(ctx, window); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to store availability window")
	}

	if _, err := s.reload(ctx, teacherID); err != nil {
		// Snapshot reload failing after a successful insert is surfaced, but
		// the stored window stands; the next read attempts a fresh load.
		s.dropSnapshot(teacherID)
		return nil, err
	}
	s.invalidateSlots(ctx, teacherID)
	return window, nil
}

// Delete removes a window owned by the teacher, then reloads the snapshot.
func (s *AvailabilityService) Delete(ctx context.Context, teacherID, windowID string) error {
	if err := s.repo.Delete(ctx, teacherID, windowID); err != nil {
		if errors.Is(err, repository.ErrWindowNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "availability window not found")
		}
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to delete availability window")
	}
	if _, err := s.reload(ctx, teacherID); err != nil {
		s.dropSnapshot(teacherID)
		return err
	}
	s.invalidateSlots(ctx, teacherID)
	return nil
}

func (s *AvailabilityService) reload(ctx context.Context, teacherID string) ([]models.AvailabilityWindow, error) {
	windows, err := s.repo.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load availability windows")
	}
	s.mu.Lock()
	s.snapshots[teacherID] = windows
	s.mu.Unlock()
	return windows, nil
}

func (s *AvailabilityService) dropSnapshot(teacherID string) {
	s.mu.Lock()
	delete(s.snapshots, teacherID)
	s.mu.Unlock()
}

func (s *AvailabilityService) invalidateSlots(ctx context.Context, teacherID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("slots:%s:*", teacherID)); err != nil {
		s.logger.Warn("slot cache invalidation failed", zap.String("teacher_id", teacherID), zap.Error(err))
	}
}

func validateTimeRange(start, end string) error {
	startMin, err := models.ParseTimeOfDay(start)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start_time")
	}
	endMin, err := models.ParseTimeOfDay(end)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid end_time")
	}
	if startMin >= endMin {
		return appErrors.Clone(appErrors.ErrValidation, "start_time must be before end_time")
	}
	return nil
}
