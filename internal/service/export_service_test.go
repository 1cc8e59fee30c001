package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tutorlane/tutorlane-api/internal/models"
	"github.com/tutorlane/tutorlane-api/internal/repository"
	appErrors "github.com/tutorlane/tutorlane-api/pkg/errors"
	"github.com/tutorlane/tutorlane-api/pkg/jobs"
	"github.com/tutorlane/tutorlane-api/pkg/storage"
)

type mockExportStore struct {
	jobs              map[string]*models.ExportJob
	createErr         error
	updateErr         error
	listFinishedCalls int
}

func newMockExportStore() *mockExportStore {
	return &mockExportStore{jobs: make(map[string]*models.ExportJob)}
}

func (m *mockExportStore) Create(_ context.Context, job *models.ExportJob) error {
	if m.createErr != nil {
		return m.createErr
	}
	job.ID = fmt.Sprintf("job%d", len(m.jobs)+1)
	job.CreatedAt = time.Now()
	clone := *job
	m.jobs[job.ID] = &clone
	return nil
}

func (m *mockExportStore) GetByID(_ context.Context, id string) (*models.ExportJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *job
	return &clone, nil
}

func (m *mockExportStore) Update(_ context.Context, id string, params repository.UpdateExportJobParams) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	job, ok := m.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (m *mockExportStore) ListQueued(_ context.Context, limit int) ([]models.ExportJob, error) {
	var out []models.ExportJob
	for _, job := range m.jobs {
		if job.Status == models.ExportStatusQueued && len(out) < limit {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (m *mockExportStore) ListFinishedBefore(_ context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	m.listFinishedCalls++
	var out []models.ExportJob
	for _, job := range m.jobs {
		if job.Status != models.ExportStatusFinished || job.FinishedAt == nil {
			continue
		}
		if job.FinishedAt.Before(cutoff) && len(out) < limit {
			out = append(out, *job)
		}
	}
	return out, nil
}

type mockDispatcher struct {
	enqueued   []jobs.Job
	enqueueErr error
}

func (m *mockDispatcher) Enqueue(job jobs.Job) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}

type mockGenerator struct {
	result *ExportResult
	err    error
	calls  int
}

func (m *mockGenerator) Generate(_ context.Context, _ *models.ExportJob) (*ExportResult, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func newExportServiceForTest(store *mockExportStore, queue *mockDispatcher) *ExportService {
	return NewExportService(store, queue, nil, validator.New(), zap.NewNop(), ExportServiceConfig{})
}

func validExportRequest() CreateExportRequest {
	return CreateExportRequest{TeacherID: "t1", From: "2026-09-01", To: "2026-09-30", Format: "csv"}
}

func TestExportCreateJob(t *testing.T) {
	store := newMockExportStore()
	queue := &mockDispatcher{}
	svc := newExportServiceForTest(store, queue)

	view, err := svc.CreateJob(context.Background(), validExportRequest(), "t1", models.RoleTeacher)
	require.NoError(t, err)
	assert.Equal(t, string(models.ExportStatusQueued), view.Status)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, view.ID, queue.enqueued[0].ID)
	assert.Equal(t, "schedule_export", queue.enqueued[0].Type)
}

func TestExportCreateJobValidation(t *testing.T) {
	svc := newExportServiceForTest(newMockExportStore(), &mockDispatcher{})

	cases := []struct {
		name   string
		mutate func(*CreateExportRequest)
	}{
		{"bad format", func(r *CreateExportRequest) { r.Format = "xlsx" }},
		{"bad date", func(r *CreateExportRequest) { r.From = "Sep 1" }},
		{"from after to", func(r *CreateExportRequest) { r.From = "2026-10-01" }},
		{"missing teacher", func(r *CreateExportRequest) { r.TeacherID = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validExportRequest()
			tc.mutate(&req)
			_, err := svc.CreateJob(context.Background(), req, "t1", models.RoleAdmin)
			assertAppError(t, err, appErrors.ErrValidation.Code)
		})
	}
}

func TestExportCreateJobTeacherScope(t *testing.T) {
	svc := newExportServiceForTest(newMockExportStore(), &mockDispatcher{})

	_, err := svc.CreateJob(context.Background(), validExportRequest(), "t2", models.RoleTeacher)
	assertAppError(t, err, appErrors.ErrForbidden.Code)

	// Admins may export any teacher's schedule.
	_, err = svc.CreateJob(context.Background(), validExportRequest(), "a1", models.RoleAdmin)
	require.NoError(t, err)
}

func TestExportCreateJobEnqueueFailure(t *testing.T) {
	store := newMockExportStore()
	queue := &mockDispatcher{enqueueErr: errors.New("queue full")}
	svc := newExportServiceForTest(store, queue)

	_, err := svc.CreateJob(context.Background(), validExportRequest(), "t1", models.RoleTeacher)
	require.Error(t, err)

	require.Len(t, store.jobs, 1)
	for _, job := range store.jobs {
		assert.Equal(t, models.ExportStatusFailed, job.Status)
		require.NotNil(t, job.ErrorMessage)
		assert.NotNil(t, job.FinishedAt)
	}
}

func TestExportGetStatus(t *testing.T) {
	store := newMockExportStore()
	queue := &mockDispatcher{}
	svc := newExportServiceForTest(store, queue)

	view, err := svc.CreateJob(context.Background(), validExportRequest(), "t1", models.RoleTeacher)
	require.NoError(t, err)

	got, err := svc.GetStatus(context.Background(), view.ID, "t1", models.RoleTeacher)
	require.NoError(t, err)
	assert.Equal(t, string(models.ExportStatusQueued), got.Status)
	assert.Nil(t, got.ResultURL)

	_, err = svc.GetStatus(context.Background(), view.ID, "t2", models.RoleTeacher)
	assertAppError(t, err, appErrors.ErrForbidden.Code)

	_, err = svc.GetStatus(context.Background(), view.ID, "a1", models.RoleAdmin)
	require.NoError(t, err)

	_, err = svc.GetStatus(context.Background(), "missing", "a1", models.RoleAdmin)
	assertAppError(t, err, appErrors.ErrNotFound.Code)
}

func TestExportRecoverPendingJobs(t *testing.T) {
	store := newMockExportStore()
	store.jobs["job1"] = &models.ExportJob{ID: "job1", Status: models.ExportStatusQueued}
	store.jobs["job2"] = &models.ExportJob{ID: "job2", Status: models.ExportStatusFinished}
	queue := &mockDispatcher{}
	svc := newExportServiceForTest(store, queue)

	svc.RecoverPendingJobs(context.Background())
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, "job1", queue.enqueued[0].ID)
}

func TestExportWorkerHandleSuccess(t *testing.T) {
	store := newMockExportStore()
	store.jobs["job1"] = &models.ExportJob{ID: "job1", Status: models.ExportStatusQueued}
	gen := &mockGenerator{result: &ExportResult{URL: "/api/v1/export/tok123", RelativePath: "x.csv"}}
	worker := NewExportWorker(store, gen, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job1", Type: "schedule_export", Attempt: 1})
	require.NoError(t, err)

	job := store.jobs["job1"]
	assert.Equal(t, models.ExportStatusFinished, job.Status)
	require.NotNil(t, job.ResultURL)
	assert.Equal(t, "/api/v1/export/tok123", *job.ResultURL)
	assert.NotNil(t, job.FinishedAt)
}

func TestExportWorkerHandleRetry(t *testing.T) {
	store := newMockExportStore()
	store.jobs["job1"] = &models.ExportJob{ID: "job1", Status: models.ExportStatusQueued}
	gen := &mockGenerator{err: errors.New("render failed")}
	worker := NewExportWorker(store, gen, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job1", Attempt: 1})
	require.Error(t, err)

	// Attempts remain, so the job goes back to the queue with the error kept.
	job := store.jobs["job1"]
	assert.Equal(t, models.ExportStatusQueued, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Equal(t, "render failed", *job.ErrorMessage)
	assert.Nil(t, job.FinishedAt)
}

func TestExportWorkerHandleExhaustedRetries(t *testing.T) {
	store := newMockExportStore()
	store.jobs["job1"] = &models.ExportJob{ID: "job1", Status: models.ExportStatusQueued}
	gen := &mockGenerator{err: errors.New("render failed")}
	worker := NewExportWorker(store, gen, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job1", Attempt: 3})
	require.Error(t, err)

	job := store.jobs["job1"]
	assert.Equal(t, models.ExportStatusFailed, job.Status)
	assert.NotNil(t, job.FinishedAt)
	assert.Equal(t, 1, gen.calls)
}

func seedExpiredJobs(store *mockExportStore, count int) {
	finishedAt := time.Now().Add(-2 * time.Hour)
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("expired%d", i)
		ts := finishedAt
		store.jobs[id] = &models.ExportJob{ID: id, Status: models.ExportStatusFinished, FinishedAt: &ts}
	}
}

func newCleanupServiceForTest(t *testing.T, store *mockExportStore) *ExportService {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("cleanup-secret", time.Hour)
	exporter := NewScheduleExporter(nil, nil, files, signer, ExporterConfig{}, zap.NewNop(), nil, nil)
	return NewExportService(store, &mockDispatcher{}, exporter, validator.New(), zap.NewNop(), ExportServiceConfig{ResultTTL: time.Hour})
}

func TestExportCleanupExpiredMarksJobsAcrossPages(t *testing.T) {
	store := newMockExportStore()
	seedExpiredJobs(store, 150)
	svc := newCleanupServiceForTest(t, store)

	svc.cleanupExpired(context.Background())

	// Full page of 100 then a short page of 50.
	assert.Equal(t, 2, store.listFinishedCalls)
	for _, job := range store.jobs {
		assert.Equal(t, models.ExportStatusExpired, job.Status)
	}
}

func TestExportCleanupExpiredStopsWithoutProgress(t *testing.T) {
	store := newMockExportStore()
	seedExpiredJobs(store, 100)
	store.updateErr = errors.New("update refused")
	svc := newCleanupServiceForTest(t, store)

	svc.cleanupExpired(context.Background())

	// The page stays FINISHED when updates fail, so a second query would
	// return the same rows forever. One pass with no progress must end the run.
	assert.Equal(t, 1, store.listFinishedCalls)
	for _, job := range store.jobs {
		assert.Equal(t, models.ExportStatusFinished, job.Status)
	}
}

func TestExportWorkerHandleUnknownJob(t *testing.T) {
	worker := NewExportWorker(newMockExportStore(), &mockGenerator{}, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "missing"})
	require.ErrorIs(t, err, sql.ErrNoRows)
}
