package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorlane/tutorlane-api/internal/models"
)

func newBookingRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func bookingRows(bookings ...models.Booking) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "teacher_id", "student_id", "start_time", "end_time", "status", "created_at", "updated_at"})
	for _, b := range bookings {
		rows.AddRow(b.ID, b.TeacherID, b.StudentID, b.StartTime, b.EndTime, b.Status, b.CreatedAt, b.UpdatedAt)
	}
	return rows
}

func TestBookingRepositoryFetchOverlapping(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	start := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Hour)
	booking := models.Booking{
		ID: "b1", TeacherID: "t1", StudentID: "s1",
		StartTime: start.Add(time.Hour), EndTime: start.Add(2 * time.Hour),
		Status: models.BookingStatusConfirmed, CreatedAt: start, UpdatedAt: start,
	}
	mock.ExpectQuery("SELECT (.+) FROM bookings\\s+WHERE teacher_id = \\$1 AND status IN \\('PENDING', 'CONFIRMED'\\)").
		WithArgs("t1", start, end).
		WillReturnRows(bookingRows(booking))

	got, err := repo.FetchOverlapping(context.Background(), "t1", start, end)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b1", got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryInsertExclusive(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	start := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	booking := &models.Booking{
		TeacherID: "t1", StudentID: "s1",
		StartTime: start, EndTime: start.Add(time.Hour),
		Status: models.BookingStatusConfirmed,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("t1", booking.StartTime, booking.EndTime).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO bookings").
		WithArgs(sqlmock.AnyArg(), "t1", "s1", booking.StartTime, booking.EndTime, models.BookingStatusConfirmed, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.InsertExclusive(context.Background(), booking)
	require.NoError(t, err)
	assert.NotEmpty(t, booking.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryInsertExclusiveOverlap(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	start := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	booking := &models.Booking{
		TeacherID: "t1", StudentID: "s1",
		StartTime: start, EndTime: start.Add(time.Hour),
		Status: models.BookingStatusConfirmed,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("t1", booking.StartTime, booking.EndTime).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.InsertExclusive(context.Background(), booking)
	require.ErrorIs(t, err, ErrBookingOverlap)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryInsertExclusiveConstraintRace(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	start := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	booking := &models.Booking{
		TeacherID: "t1", StudentID: "s1",
		StartTime: start, EndTime: start.Add(time.Hour),
		Status: models.BookingStatusConfirmed,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("t1", booking.StartTime, booking.EndTime).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO bookings").
		WillReturnError(&pq.Error{Code: "23P01"})
	mock.ExpectRollback()

	err := repo.InsertExclusive(context.Background(), booking)
	require.ErrorIs(t, err, ErrBookingOverlap)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	status := models.BookingStatusConfirmed
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE 1=1 AND teacher_id = \\$1 AND status = \\$2 ORDER BY start_time ASC LIMIT 20 OFFSET 0").
		WithArgs("t1", status).
		WillReturnRows(bookingRows())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM bookings WHERE 1=1 AND teacher_id = $1 AND status = $2")).
		WithArgs("t1", status).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	list, total, err := repo.List(context.Background(), models.BookingFilter{TeacherID: "t1", Status: &status})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, 0, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryMarkCompletedBefore(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	cutoff := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE bookings SET status = 'COMPLETED'").
		WithArgs(cutoff, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	affected, err := repo.MarkCompletedBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}
