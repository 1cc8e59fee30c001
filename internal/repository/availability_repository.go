package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tutorlane/tutorlane-api/internal/models"
)

// AvailabilityRepository persists teacher availability windows.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs an AvailabilityRepository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListByTeacher returns all windows for a teacher ordered for display:
// recurring windows by weekday then start, one-time windows by date.
func (r *AvailabilityRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.AvailabilityWindow, error) {
	const query = `SELECT id, teacher_id, kind, day_of_week, specific_date, start_time, end_time, created_at
FROM availability_windows
WHERE teacher_id = $1
ORDER BY kind ASC, day_of_week ASC NULLS LAST, specific_date ASC NULLS LAST, start_time ASC`
	var windows []models.AvailabilityWindow
	if err := r.db.SelectContext(ctx, &windows, query, teacherID); err != nil {
		return nil, fmt.Errorf("list availability windows: %w", err)
	}
	return windows, nil
}

// Insert stores a new window. The ID is assigned here when empty.
func (r *AvailabilityRepository) Insert(ctx context.Context, window *models.AvailabilityWindow) error {
	if window.ID == "" {
		window.ID = uuid.NewString()
	}
	if window.CreatedAt.IsZero() {
		window.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO availability_windows (id, teacher_id, kind, day_of_week, specific_date, start_time, end_time, created_at)
VALUES (:id, :teacher_id, :kind, :day_of_week, :specific_date, :start_time, :end_time, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, window); err != nil {
		return fmt.Errorf("insert availability window: %w", err)
	}
	return nil
}

// Delete removes a window scoped to its owning teacher. Returns
// ErrWindowNotFound when nothing matched.
func (r *AvailabilityRepository) Delete(ctx context.Context, teacherID, windowID string) error {
	const query = `DELETE FROM availability_windows WHERE id = $1 AND teacher_id = $2`
	res, err := r.db.ExecContext(ctx, query, windowID, teacherID)
	if err != nil {
		return fmt.Errorf("delete availability window: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete availability window rows affected: %w", err)
	}
	if affected == 0 {
		return ErrWindowNotFound
	}
	return nil
}
