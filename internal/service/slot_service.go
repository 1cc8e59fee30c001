package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tutorlane/tutorlane-api/internal/models"
	appErrors "github.com/tutorlane/tutorlane-api/pkg/errors"
)

type overlapFetcher interface {
	FetchOverlapping(ctx context.Context, teacherID string, start, end time.Time) ([]models.Booking, error)
}

// SlotServiceConfig tunes generation and caching.
type SlotServiceConfig struct {
	SlotDuration time.Duration
	Location     *time.Location
	CacheTTL     time.Duration
}

// SlotService assembles the inputs for slot generation: availability windows
// through the controller, same-day bookings from storage, and the pure
// generator on top. Results are cached briefly; staleness is acceptable
// because the booking commit re-validates.
type SlotService struct {
	availability *AvailabilityService
	bookings     overlapFetcher
	cache        *CacheService
	metrics      *MetricsService
	logger       *zap.Logger
	cfg          SlotServiceConfig
}

// NewSlotService constructs a SlotService.
func NewSlotService(availability *AvailabilityService, bookings overlapFetcher, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg SlotServiceConfig) *SlotService {
	if cfg.SlotDuration <= 0 {
		cfg.SlotDuration = time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotService{
		availability: availability,
		bookings:     bookings,
		cache:        cache,
		metrics:      metrics,
		logger:       logger,
		cfg:          cfg,
	}
}

// ListSlots returns the candidate slots for a teacher on the given date
// (formatted 2006-01-02). The result is a snapshot: slots can go stale
// between display and commit, which the commit protocol handles.
func (s *SlotService) ListSlots(ctx context.Context, teacherID, dateRaw string) (*models.DaySlots, error) {
	if teacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher id is required")
	}
	date, err := time.ParseInLocation("2006-01-02", dateRaw, s.cfg.Location)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date, expected YYYY-MM-DD")
	}

	cacheKey := fmt.Sprintf("slots:%s:%s", teacherID, dateRaw)
	if s.cache != nil {
		var cached models.DaySlots
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	windows, err := s.availability.Windows(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	dayStart := date
	dayEnd := date.AddDate(0, 0, 1)
	bookings, err := s.bookings.FetchOverlapping(ctx, teacherID, dayStart, dayEnd)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load bookings")
	}

	started := time.Now()
	slots := GenerateSlots(windows, date, bookings, s.cfg.SlotDuration)
	if s.metrics != nil {
		s.metrics.ObserveSlotGeneration(time.Since(started), len(slots))
	}

	applicable := 0
	for _, window := range windows {
		if window.AppliesOn(date) {
			applicable++
		}
	}

	result := &models.DaySlots{
		TeacherID:   teacherID,
		Date:        dateRaw,
		WindowCount: applicable,
		Slots:       slots,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, result, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("slot cache write failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return result, nil
}
