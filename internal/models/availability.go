package models

import (
	"fmt"
	"time"
)

// WindowKind distinguishes recurring weekly windows from one-time windows
// pinned to a specific calendar date.
type WindowKind string

const (
	WindowRecurring WindowKind = "RECURRING"
	WindowOneTime   WindowKind = "ONE_TIME"
)

// AvailabilityWindow is a teacher-declared interval of time-of-day during
// which lessons may be scheduled. Windows are never mutated in place;
// updates are delete + recreate.
type AvailabilityWindow struct {
	ID        string     `db:"id" json:"id"`
	TeacherID string     `db:"teacher_id" json:"teacher_id"`
	Kind      WindowKind `db:"kind" json:"kind"`
	// DayOfWeek is set for recurring windows only. 0 = Sunday, matching
	// time.Weekday numbering.
	DayOfWeek *int `db:"day_of_week" json:"day_of_week,omitempty"`
	// SpecificDate is set for one-time windows only, truncated to midnight.
	SpecificDate *time.Time `db:"specific_date" json:"specific_date,omitempty"`
	StartTime    string     `db:"start_time" json:"start_time"`
	EndTime      string     `db:"end_time" json:"end_time"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// AppliesOn reports whether the window offers availability on the given
// calendar date.
func (w AvailabilityWindow) AppliesOn(date time.Time) bool {
	switch w.Kind {
	case WindowRecurring:
		return w.DayOfWeek != nil && *w.DayOfWeek == int(date.Weekday())
	case WindowOneTime:
		if w.SpecificDate == nil {
			return false
		}
		y1, m1, d1 := w.SpecificDate.Date()
		y2, m2, d2 := date.Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	default:
		return false
	}
}

// ParseTimeOfDay converts an "HH:MM" clock value to minutes past midnight.
func ParseTimeOfDay(raw string) (int, error) {
	var hours, minutes int
	if _, err := fmt.Sscanf(raw, "%d:%d", &hours, &minutes); err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", raw, err)
	}
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("time of day %q out of range", raw)
	}
	return hours*60 + minutes, nil
}
