package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tutorlane/tutorlane-api/internal/models"
	"github.com/tutorlane/tutorlane-api/pkg/export"
	"github.com/tutorlane/tutorlane-api/pkg/storage"
)

type exportBookingSource interface {
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error)
}

type exportTeacherSource interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExporterConfig tunes export generation behaviour.
type ExporterConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	ExpiresAt    time.Time
}

// ScheduleExporter builds booking schedule datasets and persists rendered files.
type ScheduleExporter struct {
	bookings exportBookingSource
	teachers exportTeacherSource
	storage  fileStorage
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
	cfg      ExporterConfig
}

// NewScheduleExporter constructs a ScheduleExporter.
func NewScheduleExporter(bookings exportBookingSource, teachers exportTeacherSource, store fileStorage, signer *storage.SignedURLSigner, cfg ExporterConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ScheduleExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ScheduleExporter{
		bookings: bookings,
		teachers: teachers,
		storage:  store,
		csv:      csv,
		pdf:      pdf,
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
	}
}

// Generate builds the schedule dataset for the job window and stores the rendered export.
func (s *ScheduleExporter) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/export/%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ScheduleExporter) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ScheduleExporter) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ScheduleExporter) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ScheduleExporter) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ScheduleExporter) buildFilename(job *models.ExportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	teacherPart := sanitizeFilename(job.Params.TeacherID)
	return fmt.Sprintf("schedule_%s_%s.%s", teacherPart, timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ScheduleExporter) buildDataset(ctx context.Context, job *models.ExportJob) (export.Dataset, string, error) {
	from, err := time.Parse("2006-01-02", job.Params.From)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("invalid from date %q: %w", job.Params.From, err)
	}
	to, err := time.Parse("2006-01-02", job.Params.To)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("invalid to date %q: %w", job.Params.To, err)
	}
	// Ranges are inclusive on both dates; extend the upper bound to cover the
	// whole final day.
	toEnd := to.AddDate(0, 0, 1)

	teacherName := job.Params.TeacherID
	if teacher, err := s.teachers.FindByID(ctx, job.Params.TeacherID); err == nil && teacher != nil {
		teacherName = teacher.FullName
	}

	bookings, _, err := s.bookings.List(ctx, models.BookingFilter{
		TeacherID: job.Params.TeacherID,
		From:      &from,
		To:        &toEnd,
		Page:      1,
		PageSize:  1000,
	})
	if err != nil {
		return export.Dataset{}, "", err
	}

	rows := make([]map[string]string, 0, len(bookings))
	for _, b := range bookings {
		rows = append(rows, map[string]string{
			"Date":       b.StartTime.UTC().Format("2006-01-02"),
			"Start":      b.StartTime.UTC().Format("15:04"),
			"End":        b.EndTime.UTC().Format("15:04"),
			"Student ID": b.StudentID,
			"Status":     string(b.Status),
			"Booked At":  b.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Date", "Start", "End", "Student ID", "Status", "Booked At"},
		Rows:    rows,
	}
	title := fmt.Sprintf("Schedule %s (%s to %s)", teacherName, job.Params.From, job.Params.To)
	return dataset, title, nil
}
