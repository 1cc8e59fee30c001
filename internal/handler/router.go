package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/tutorlane/tutorlane-api/internal/middleware"
	"github.com/tutorlane/tutorlane-api/internal/models"
	"github.com/tutorlane/tutorlane-api/internal/service"
)

// Handlers aggregates the HTTP handlers wired into the router.
type Handlers struct {
	Auth         *AuthHandler
	Teacher      *TeacherHandler
	Availability *AvailabilityHandler
	Slot         *SlotHandler
	Booking      *BookingHandler
	Export       *ExportHandler
	Metrics      *MetricsHandler
}

// RegisterRoutes mounts all API routes on the engine.
func RegisterRoutes(r *gin.Engine, h Handlers, authService *service.AuthService) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Health)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group("/api/v1")

	auth := api.Group("/auth")
	{
		auth.POST("/login", h.Auth.Login)
		auth.POST("/register", h.Auth.Register)
		auth.POST("/refresh", h.Auth.Refresh)
		auth.POST("/logout", middleware.JWT(authService), h.Auth.Logout)
		auth.GET("/me", middleware.JWT(authService), h.Auth.Me)
	}

	teachers := api.Group("/teachers")
	{
		teachers.GET("", h.Teacher.List)
		teachers.GET("/:id", h.Teacher.Get)
		teachers.GET("/:id/slots", h.Slot.List)
		teachers.GET("/:id/availability", h.Availability.List)

		teachers.POST("", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin), h.Teacher.Create)
		teachers.PUT("/:id", middleware.JWT(authService), middleware.RBAC(string(models.RoleAdmin), middleware.SelfRole), h.Teacher.Update)
		teachers.DELETE("/:id", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin), h.Teacher.Deactivate)

		teachers.POST("/:id/availability", middleware.JWT(authService), h.Availability.Add)
		teachers.DELETE("/:id/availability/:windowId", middleware.JWT(authService), h.Availability.Delete)
	}

	bookings := api.Group("/bookings", middleware.JWT(authService))
	{
		bookings.POST("", middleware.RequireRoles(models.RoleStudent, models.RoleAdmin), h.Booking.Book)
		bookings.GET("", h.Booking.List)
		bookings.GET("/:id", h.Booking.Get)
		bookings.PATCH("/:id/cancel", h.Booking.Cancel)
	}

	if h.Export != nil {
		exports := api.Group("/exports", middleware.JWT(authService))
		{
			exports.POST("", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), h.Export.Create)
			exports.GET("/:id", h.Export.Status)
		}
		// Download authenticates via the signed token itself.
		api.GET("/export/:token", h.Export.Download)
	}
}
