package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorlane/tutorlane-api/internal/models"
)

func newExportRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestExportRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newExportRepoMock(t)
	defer cleanup()
	repo := NewExportRepository(db)

	mock.ExpectExec("INSERT INTO export_jobs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	job := &models.ExportJob{
		Params:    models.ExportJobParams{TeacherID: "t1", From: "2026-09-01", To: "2026-09-07", Format: models.ExportFormatCSV},
		CreatedBy: "t1",
	}
	require.NoError(t, repo.Create(context.Background(), job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.ExportStatusQueued, job.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExportRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newExportRepoMock(t)
	defer cleanup()
	repo := NewExportRepository(db)

	rows := sqlmock.NewRows([]string{"id", "params", "status", "result_url", "created_by", "created_at", "finished_at", "error_message"}).
		AddRow("j1", []byte(`{"teacherId":"t1","from":"2026-09-01","to":"2026-09-07","format":"csv"}`), models.ExportStatusQueued, nil, "t1", time.Now(), nil, nil)
	mock.ExpectQuery("SELECT (.+) FROM export_jobs WHERE id = \\$1").
		WithArgs("j1").
		WillReturnRows(rows)

	job, err := repo.GetByID(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, "t1", job.Params.TeacherID)
	assert.Equal(t, models.ExportFormatCSV, job.Params.Format)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExportRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newExportRepoMock(t)
	defer cleanup()
	repo := NewExportRepository(db)

	status := models.ExportStatusFinished
	url := "/api/v1/export/token"
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE export_jobs SET status = $1, result_url = $2, finished_at = $3 WHERE id = $4")).
		WithArgs(status, url, now, "j1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "j1", UpdateExportJobParams{Status: &status, ResultURL: &url, FinishedAt: &now})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExportRepositoryUpdateNoChanges(t *testing.T) {
	db, mock, cleanup := newExportRepoMock(t)
	defer cleanup()
	repo := NewExportRepository(db)

	require.NoError(t, repo.Update(context.Background(), "j1", UpdateExportJobParams{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
