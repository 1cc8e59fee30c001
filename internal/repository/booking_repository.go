package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/tutorlane/tutorlane-api/internal/models"
)

// Sentinel errors surfaced to services for mapping onto the API taxonomy.
var (
	ErrBookingOverlap = errors.New("booking overlaps an existing active booking")
	ErrWindowNotFound = errors.New("availability window not found")
)

const bookingColumns = "id, teacher_id, student_id, start_time, end_time, status, created_at, updated_at"

// BookingRepository persists lesson bookings and enforces the exclusivity
// guarantee for concurrent commits.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs a BookingRepository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// FindByID fetches a booking by ID.
func (r *BookingRepository) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	query := fmt.Sprintf("SELECT %s FROM bookings WHERE id = $1", bookingColumns)
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// FetchOverlapping returns active bookings for a teacher intersecting the
// half-open range [start, end).
func (r *BookingRepository) FetchOverlapping(ctx context.Context, teacherID string, start, end time.Time) ([]models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM bookings
WHERE teacher_id = $1 AND status IN ('PENDING', 'CONFIRMED')
  AND start_time < $3 AND end_time > $2
ORDER BY start_time ASC`, bookingColumns)
	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, teacherID, start, end); err != nil {
		return nil, fmt.Errorf("fetch overlapping bookings: %w", err)
	}
	return bookings, nil
}

// List returns bookings matching the filter along with total count.
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	base := "FROM bookings WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("end_time > $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("start_time < $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY start_time ASC LIMIT %d OFFSET %d", bookingColumns, base, size, offset)
	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}

	return bookings, total, nil
}

// InsertExclusive commits a booking with the check-and-insert performed
// atomically with respect to concurrent commits for the same teacher. The
// transaction takes a per-teacher advisory lock before re-checking overlap,
// and constraint violations from the bookings exclusion index are mapped to
// ErrBookingOverlap as a second line of defence.
func (r *BookingRepository) InsertExclusive(ctx context.Context, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin booking commit: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, booking.TeacherID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("acquire teacher booking lock: %w", err)
	}

	var exists bool
	const overlapQuery = `SELECT EXISTS (
SELECT 1 FROM bookings
WHERE teacher_id = $1 AND status IN ('PENDING', 'CONFIRMED')
  AND start_time < $3 AND end_time > $2)`
	if err := tx.GetContext(ctx, &exists, overlapQuery, booking.TeacherID, booking.StartTime, booking.EndTime); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("check booking overlap: %w", err)
	}
	if exists {
		tx.Rollback() //nolint:errcheck
		return ErrBookingOverlap
	}

	const insertQuery = `INSERT INTO bookings (id, teacher_id, student_id, start_time, end_time, status, created_at, updated_at)
VALUES (:id, :teacher_id, :student_id, :start_time, :end_time, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, tx, insertQuery, booking); err != nil {
		tx.Rollback() //nolint:errcheck
		if isExclusionViolation(err) {
			return ErrBookingOverlap
		}
		return fmt.Errorf("insert booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isExclusionViolation(err) {
			return ErrBookingOverlap
		}
		return fmt.Errorf("commit booking: %w", err)
	}
	return nil
}

// UpdateStatus transitions a booking to the given status.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, status models.BookingStatus) error {
	const query = `UPDATE bookings SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update booking status rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("booking %s not found", id)
	}
	return nil
}

// MarkCompletedBefore promotes confirmed bookings whose end time has elapsed
// and returns the number of rows updated.
func (r *BookingRepository) MarkCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `UPDATE bookings SET status = 'COMPLETED', updated_at = $2
WHERE status = 'CONFIRMED' AND end_time <= $1`
	res, err := r.db.ExecContext(ctx, query, cutoff, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("mark bookings completed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark bookings completed rows affected: %w", err)
	}
	return affected, nil
}

// isExclusionViolation recognises Postgres unique (23505) and exclusion
// (23P01) constraint failures.
func isExclusionViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" || pqErr.Code == "23P01"
	}
	return false
}
