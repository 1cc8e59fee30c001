package models

import (
	"time"

	"github.com/lib/pq"
)

// Teacher is a marketplace tutor profile. Its ID matches the owning user's
// ID so route-level SELF checks work without an extra lookup.
type Teacher struct {
	ID         string         `db:"id" json:"id"`
	Email      string         `db:"email" json:"email"`
	FullName   string         `db:"full_name" json:"full_name"`
	Bio        *string        `db:"bio" json:"bio,omitempty"`
	Subjects   pq.StringArray `db:"subjects" json:"subjects"`
	HourlyRate float64        `db:"hourly_rate" json:"hourly_rate"`
	Active     bool           `db:"active" json:"active"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// TeacherFilter captures filtering criteria for the teacher directory.
type TeacherFilter struct {
	Subject   string
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
