package models

import "time"

// TimeSlot is a fixed-duration candidate lesson interval derived from
// availability windows. Slots are computed on demand and never persisted.
type TimeSlot struct {
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	IsAvailable bool      `json:"is_available"`
}

// DaySlots wraps the generated slots for one teacher and date. WindowCount
// lets callers tell "no windows for this date" apart from "all slots taken".
type DaySlots struct {
	TeacherID   string     `json:"teacher_id"`
	Date        string     `json:"date"`
	WindowCount int        `json:"window_count"`
	Slots       []TimeSlot `json:"slots"`
}
