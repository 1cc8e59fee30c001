package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	internalmiddleware "github.com/tutorlane/tutorlane-api/internal/middleware"
	"github.com/tutorlane/tutorlane-api/internal/models"
	"github.com/tutorlane/tutorlane-api/internal/repository"
	"github.com/tutorlane/tutorlane-api/internal/service"
)

type availabilityRepoIntegrationMock struct {
	windows map[string][]models.AvailabilityWindow
	nextID  int
}

func (m *availabilityRepoIntegrationMock) ListByTeacher(_ context.Context, teacherID string) ([]models.AvailabilityWindow, error) {
	return m.windows[teacherID], nil
}

func (m *availabilityRepoIntegrationMock) Insert(_ context.Context, window *models.AvailabilityWindow) error {
	m.nextID++
	window.ID = fmt.Sprintf("w%d", m.nextID)
	window.CreatedAt = time.Now()
	m.windows[window.TeacherID] = append(m.windows[window.TeacherID], *window)
	return nil
}

func (m *availabilityRepoIntegrationMock) Delete(_ context.Context, teacherID, windowID string) error {
	list := m.windows[teacherID]
	for i, w := range list {
		if w.ID == windowID {
			m.windows[teacherID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return repository.ErrWindowNotFound
}

type bookingRepoIntegrationMock struct {
	bookings map[string]*models.Booking
	nextID   int
}

func (m *bookingRepoIntegrationMock) FindByID(_ context.Context, id string) (*models.Booking, error) {
	booking, ok := m.bookings[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *booking
	return &clone, nil
}

func (m *bookingRepoIntegrationMock) FetchOverlapping(_ context.Context, teacherID string, start, end time.Time) ([]models.Booking, error) {
	var out []models.Booking
	for _, b := range m.bookings {
		if b.TeacherID == teacherID && b.StartTime.Before(end) && b.EndTime.After(start) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *bookingRepoIntegrationMock) List(_ context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	var out []models.Booking
	for _, b := range m.bookings {
		if filter.TeacherID != "" && b.TeacherID != filter.TeacherID {
			continue
		}
		if filter.StudentID != "" && b.StudentID != filter.StudentID {
			continue
		}
		out = append(out, *b)
	}
	return out, len(out), nil
}

func (m *bookingRepoIntegrationMock) InsertExclusive(_ context.Context, booking *models.Booking) error {
	for _, existing := range m.bookings {
		if existing.TeacherID != booking.TeacherID {
			continue
		}
		if existing.Status == models.BookingStatusCancelled || existing.Status == models.BookingStatusCompleted {
			continue
		}
		if existing.StartTime.Before(booking.EndTime) && existing.EndTime.After(booking.StartTime) {
			return repository.ErrBookingOverlap
		}
	}
	m.nextID++
	booking.ID = fmt.Sprintf("b%d", m.nextID)
	clone := *booking
	m.bookings[booking.ID] = &clone
	return nil
}

func (m *bookingRepoIntegrationMock) UpdateStatus(_ context.Context, id string, status models.BookingStatus) error {
	booking, ok := m.bookings[id]
	if !ok {
		return sql.ErrNoRows
	}
	booking.Status = status
	return nil
}

func (m *bookingRepoIntegrationMock) MarkCompletedBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func buildSlotRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{
				UserID: c.GetHeader("X-Test-User"),
				Role:   models.UserRole(role),
			})
		}
		c.Next()
	})

	availRepo := &availabilityRepoIntegrationMock{windows: map[string][]models.AvailabilityWindow{}}
	bookingRepo := &bookingRepoIntegrationMock{bookings: map[string]*models.Booking{}}

	availability := service.NewAvailabilityService(availRepo, nil, nil, zap.NewNop())
	slots := service.NewSlotService(availability, bookingRepo, nil, nil, zap.NewNop(), service.SlotServiceConfig{
		SlotDuration: time.Hour,
		Location:     time.UTC,
	})
	bookings := service.NewBookingService(bookingRepo, nil, nil, nil, zap.NewNop(), service.BookingServiceConfig{SlotDuration: time.Hour})

	availabilityHandler := NewAvailabilityHandler(availability)
	slotHandler := NewSlotHandler(slots)
	bookingHandler := NewBookingHandler(bookings)

	router.GET("/teachers/:id/slots", slotHandler.List)
	router.GET("/teachers/:id/availability", availabilityHandler.List)
	router.POST("/teachers/:id/availability", availabilityHandler.Add)
	router.DELETE("/teachers/:id/availability/:windowId", availabilityHandler.Delete)
	router.POST("/bookings", internalmiddleware.RequireRoles(models.RoleStudent, models.RoleAdmin), bookingHandler.Book)
	router.PATCH("/bookings/:id/cancel", bookingHandler.Cancel)

	return router
}

func performSlotRequest(router *gin.Engine, method, target, role, userID string, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req, _ := http.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		req.Header.Set("X-Test-Role", role)
		req.Header.Set("X-Test-User", userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSlotRoutesIntegration(t *testing.T) {
	router := buildSlotRouter(t)

	// 2026-09-02 is a Wednesday.
	t.Run("teacher declares a recurring window", func(t *testing.T) {
		resp := performSlotRequest(router, http.MethodPost, "/teachers/t1/availability", "TEACHER", "t1",
			`{"kind":"RECURRING","day_of_week":3,"start_time":"09:00","end_time":"12:00"}`)
		require.Equal(t, http.StatusCreated, resp.Code)
	})

	t.Run("other teacher cannot mutate availability", func(t *testing.T) {
		resp := performSlotRequest(router, http.MethodPost, "/teachers/t1/availability", "TEACHER", "t2",
			`{"kind":"RECURRING","day_of_week":3,"start_time":"14:00","end_time":"16:00"}`)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("slots are public and reflect availability", func(t *testing.T) {
		resp := performSlotRequest(router, http.MethodGet, "/teachers/t1/slots?date=2026-09-02", "", "", "")
		require.Equal(t, http.StatusOK, resp.Code)

		var payload struct {
			Data models.DaySlots `json:"data"`
		}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
		require.Len(t, payload.Data.Slots, 3)
		for _, slot := range payload.Data.Slots {
			require.True(t, slot.IsAvailable)
		}
	})

	t.Run("slots require a date", func(t *testing.T) {
		resp := performSlotRequest(router, http.MethodGet, "/teachers/t1/slots", "", "", "")
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("student books a slot", func(t *testing.T) {
		resp := performSlotRequest(router, http.MethodPost, "/bookings", "STUDENT", "s1",
			`{"teacher_id":"t1","start_time":"2026-09-02T10:00:00Z","end_time":"2026-09-02T11:00:00Z"}`)
		require.Equal(t, http.StatusCreated, resp.Code)
		require.Contains(t, resp.Body.String(), `"CONFIRMED"`)
	})

	t.Run("booking the taken slot conflicts", func(t *testing.T) {
		resp := performSlotRequest(router, http.MethodPost, "/bookings", "STUDENT", "s2",
			`{"teacher_id":"t1","start_time":"2026-09-02T10:00:00Z","end_time":"2026-09-02T11:00:00Z"}`)
		require.Equal(t, http.StatusConflict, resp.Code)
		require.Contains(t, resp.Body.String(), "SLOT_CONFLICT")
	})

	t.Run("teacher may not create bookings", func(t *testing.T) {
		resp := performSlotRequest(router, http.MethodPost, "/bookings", "TEACHER", "t1",
			`{"teacher_id":"t1","start_time":"2026-09-02T13:00:00Z","end_time":"2026-09-02T14:00:00Z"}`)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("booked slot shows unavailable", func(t *testing.T) {
		resp := performSlotRequest(router, http.MethodGet, "/teachers/t1/slots?date=2026-09-02", "", "", "")
		require.Equal(t, http.StatusOK, resp.Code)

		var payload struct {
			Data models.DaySlots `json:"data"`
		}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
		require.Len(t, payload.Data.Slots, 3)
		unavailable := 0
		for _, slot := range payload.Data.Slots {
			if !slot.IsAvailable {
				unavailable++
			}
		}
		require.Equal(t, 1, unavailable)
	})

	t.Run("cancel frees the slot", func(t *testing.T) {
		resp := performSlotRequest(router, http.MethodPatch, "/bookings/b1/cancel", "STUDENT", "s1", "")
		require.Equal(t, http.StatusOK, resp.Code)

		rebook := performSlotRequest(router, http.MethodPost, "/bookings", "STUDENT", "s2",
			`{"teacher_id":"t1","start_time":"2026-09-02T10:00:00Z","end_time":"2026-09-02T11:00:00Z"}`)
		require.Equal(t, http.StatusCreated, rebook.Code)
	})

	t.Run("delete window requires ownership", func(t *testing.T) {
		resp := performSlotRequest(router, http.MethodDelete, "/teachers/t1/availability/w1", "STUDENT", "s1", "")
		require.Equal(t, http.StatusForbidden, resp.Code)

		resp = performSlotRequest(router, http.MethodDelete, "/teachers/t1/availability/w1", "TEACHER", "t1", "")
		require.Equal(t, http.StatusNoContent, resp.Code)
	})
}
