package models

import "time"

// BookingStatus captures the booking lifecycle.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// ActiveBookingStatuses are the statuses that hold a time range. Completed
// and cancelled bookings never block availability.
var ActiveBookingStatuses = []BookingStatus{BookingStatusPending, BookingStatusConfirmed}

// Booking is a committed lesson reservation. For a fixed teacher no two
// bookings in an active status may overlap on [StartTime, EndTime).
type Booking struct {
	ID        string        `db:"id" json:"id"`
	TeacherID string        `db:"teacher_id" json:"teacher_id"`
	StudentID string        `db:"student_id" json:"student_id"`
	StartTime time.Time     `db:"start_time" json:"start_time"`
	EndTime   time.Time     `db:"end_time" json:"end_time"`
	Status    BookingStatus `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// Blocks reports whether the booking currently holds its time range.
func (b Booking) Blocks() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}

// Overlaps applies the half-open interval intersection test against the
// provided range.
func (b Booking) Overlaps(start, end time.Time) bool {
	return start.Before(b.EndTime) && b.StartTime.Before(end)
}

// BookingFilter narrows down booking listings.
type BookingFilter struct {
	TeacherID string
	StudentID string
	Status    *BookingStatus
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}
