package service

import (
	"sort"
	"time"

	"github.com/tutorlane/tutorlane-api/internal/models"
)

// GenerateSlots converts a teacher's availability windows into the ordered
// sequence of candidate lesson slots for one calendar date.
//
// The computation is pure: it touches no storage and is deterministic for
// identical inputs. Recurring windows apply when their weekday matches the
// date, one-time windows when pinned to it. Each applicable window is
// partitioned into consecutive slotDuration intervals from its start time; a
// trailing remainder shorter than slotDuration is never offered. Candidates
// sharing a start time (overlapping input windows) are de-duplicated. A slot
// is available unless it intersects an active (pending or confirmed) booking
// on the half-open range [start, end).
//
// A date with no applicable windows yields an empty, non-nil result so
// callers can distinguish "no windows" from "all slots taken" via the
// returned count alongside window metadata.
func GenerateSlots(windows []models.AvailabilityWindow, date time.Time, bookings []models.Booking, slotDuration time.Duration) []models.TimeSlot {
	slots := []models.TimeSlot{}
	if slotDuration <= 0 {
		return slots
	}

	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	seen := make(map[int64]struct{})

	for _, window := range windows {
		if !window.AppliesOn(date) {
			continue
		}
		startMin, err := models.ParseTimeOfDay(window.StartTime)
		if err != nil {
			continue
		}
		endMin, err := models.ParseTimeOfDay(window.EndTime)
		if err != nil || endMin <= startMin {
			continue
		}

		windowStart := midnight.Add(time.Duration(startMin) * time.Minute)
		windowEnd := midnight.Add(time.Duration(endMin) * time.Minute)

		for cursor := windowStart; !cursor.Add(slotDuration).After(windowEnd); cursor = cursor.Add(slotDuration) {
			if _, dup := seen[cursor.Unix()]; dup {
				continue
			}
			seen[cursor.Unix()] = struct{}{}
			slotEnd := cursor.Add(slotDuration)
			slots = append(slots, models.TimeSlot{
				StartTime:   cursor,
				EndTime:     slotEnd,
				IsAvailable: !intersectsActiveBooking(bookings, cursor, slotEnd),
			})
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		return slots[i].StartTime.Before(slots[j].StartTime)
	})
	return slots
}

func intersectsActiveBooking(bookings []models.Booking, start, end time.Time) bool {
	for _, booking := range bookings {
		if !booking.Blocks() {
			continue
		}
		if booking.Overlaps(start, end) {
			return true
		}
	}
	return false
}
