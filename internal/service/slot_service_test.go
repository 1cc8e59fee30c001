package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tutorlane/tutorlane-api/internal/models"
	appErrors "github.com/tutorlane/tutorlane-api/pkg/errors"
)

func newSlotServiceForTest(availRepo *mockAvailabilityRepo, bookingRepo *mockBookingRepo) *SlotService {
	availability := newAvailabilityServiceForTest(availRepo)
	return NewSlotService(availability, bookingRepo, nil, nil, zap.NewNop(), SlotServiceConfig{
		SlotDuration: time.Hour,
		Location:     time.UTC,
	})
}

func TestSlotListSlots(t *testing.T) {
	availRepo := newMockAvailabilityRepo()
	// 2026-09-02 is a Wednesday.
	availRepo.windows["t1"] = []models.AvailabilityWindow{
		{ID: "w1", TeacherID: "t1", Kind: models.WindowRecurring, DayOfWeek: intPtr(3), StartTime: "09:00", EndTime: "12:00"},
	}
	bookingRepo := newMockBookingRepo()
	bookingRepo.bookings["b1"] = &models.Booking{
		ID:        "b1",
		TeacherID: "t1",
		StudentID: "s1",
		StartTime: time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 9, 2, 11, 0, 0, 0, time.UTC),
		Status:    models.BookingStatusConfirmed,
	}

	svc := newSlotServiceForTest(availRepo, bookingRepo)
	day, err := svc.ListSlots(context.Background(), "t1", "2026-09-02")
	require.NoError(t, err)

	assert.Equal(t, "t1", day.TeacherID)
	assert.Equal(t, "2026-09-02", day.Date)
	assert.Equal(t, 1, day.WindowCount)
	require.Len(t, day.Slots, 3)
	assert.True(t, day.Slots[0].IsAvailable)
	assert.False(t, day.Slots[1].IsAvailable)
	assert.True(t, day.Slots[2].IsAvailable)
}

func TestSlotListSlotsEmptyDay(t *testing.T) {
	svc := newSlotServiceForTest(newMockAvailabilityRepo(), newMockBookingRepo())

	day, err := svc.ListSlots(context.Background(), "t1", "2026-09-02")
	require.NoError(t, err)
	assert.Equal(t, 0, day.WindowCount)
	require.NotNil(t, day.Slots)
	assert.Empty(t, day.Slots)
}

func TestSlotListSlotsValidation(t *testing.T) {
	svc := newSlotServiceForTest(newMockAvailabilityRepo(), newMockBookingRepo())

	_, err := svc.ListSlots(context.Background(), "", "2026-09-02")
	assertAppError(t, err, appErrors.ErrValidation.Code)

	_, err = svc.ListSlots(context.Background(), "t1", "02/09/2026")
	assertAppError(t, err, appErrors.ErrValidation.Code)
}

func TestSlotListSlotsWindowCountIgnoresOtherDays(t *testing.T) {
	availRepo := newMockAvailabilityRepo()
	otherDate := time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC)
	availRepo.windows["t1"] = []models.AvailabilityWindow{
		{ID: "w1", TeacherID: "t1", Kind: models.WindowRecurring, DayOfWeek: intPtr(3), StartTime: "09:00", EndTime: "10:00"},
		{ID: "w2", TeacherID: "t1", Kind: models.WindowRecurring, DayOfWeek: intPtr(5), StartTime: "09:00", EndTime: "10:00"},
		{ID: "w3", TeacherID: "t1", Kind: models.WindowOneTime, SpecificDate: &otherDate, StartTime: "09:00", EndTime: "10:00"},
	}

	svc := newSlotServiceForTest(availRepo, newMockBookingRepo())
	day, err := svc.ListSlots(context.Background(), "t1", "2026-09-02")
	require.NoError(t, err)
	assert.Equal(t, 1, day.WindowCount)
	assert.Len(t, day.Slots, 1)
}
