package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumen-ed/lumen-api/internal/service"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
	"github.com/lumen-ed/lumen-api/pkg/response"
)

// AssignmentHandler exposes assignment bundle endpoints.
type AssignmentHandler struct {
	service *service.AssignmentService
}

// NewAssignmentHandler constructs an assignment handler.
func NewAssignmentHandler(svc *service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{service: svc}
}

// Create godoc
// @Summary Create assignment bundle
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body service.CreateAssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /assignments [post]
func (h *AssignmentHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}

	assignment, err := h.service.Create(c.Request.Context(), claims.UserID, claims.Role, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// Get godoc
// @Summary Get assignment detail
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assignments/{id} [get]
func (h *AssignmentHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	assignment, err := h.service.Get(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// ListByCourse godoc
// @Summary List assignments of a course
// @Description Students only see published assignments.
// @Tags Assignments
// @Produce json
// @Param courseId query string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /assignments [get]
func (h *AssignmentHandler) ListByCourse(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	courseID := c.Query("courseId")
	if courseID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "courseId required"))
		return
	}

	assignments, err := h.service.ListByCourse(c.Request.Context(), claims.Role, courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// SetPublished godoc
// @Summary Publish or unpublish an assignment
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body map[string]bool true "Published flag"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /assignments/{id}/published [put]
func (h *AssignmentHandler) SetPublished(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		Published *bool `json:"published" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "published flag required"))
		return
	}

	if err := h.service.SetPublished(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"), *payload.Published); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
