package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tutorlane/tutorlane-api/internal/models"
	"github.com/tutorlane/tutorlane-api/internal/service"
	appErrors "github.com/tutorlane/tutorlane-api/pkg/errors"
	"github.com/tutorlane/tutorlane-api/pkg/response"
)

// AvailabilityHandler manages availability window HTTP endpoints.
type AvailabilityHandler struct {
	service *service.AvailabilityService
}

// NewAvailabilityHandler constructs the handler.
func NewAvailabilityHandler(svc *service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc}
}

// canManage reports whether the actor may mutate the teacher's windows.
// Teachers manage only their own calendar; admins manage any.
func canManage(claims *models.JWTClaims, teacherID string) bool {
	if claims == nil {
		return false
	}
	if claims.Role == models.RoleAdmin {
		return true
	}
	return claims.Role == models.RoleTeacher && claims.UserID == teacherID
}

// List godoc
// @Summary List availability windows
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/availability [get]
func (h *AvailabilityHandler) List(c *gin.Context) {
	windows, err := h.service.Windows(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, windows, nil)
}

// Add godoc
// @Summary Add an availability window
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param payload body service.CreateWindowRequest true "Window payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /teachers/{id}/availability [post]
func (h *AvailabilityHandler) Add(c *gin.Context) {
	teacherID := c.Param("id")
	if !canManage(claimsFromContext(c), teacherID) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	var req service.CreateWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid window payload"))
		return
	}
	window, err := h.service.Add(c.Request.Context(), teacherID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, window)
}

// Delete godoc
// @Summary Delete an availability window
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Param windowId path string true "Window ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /teachers/{id}/availability/{windowId} [delete]
func (h *AvailabilityHandler) Delete(c *gin.Context) {
	teacherID := c.Param("id")
	if !canManage(claimsFromContext(c), teacherID) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	if err := h.service.Delete(c.Request.Context(), teacherID, c.Param("windowId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
