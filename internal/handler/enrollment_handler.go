package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lumen-ed/lumen-api/internal/models"
	"github.com/lumen-ed/lumen-api/internal/service"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
	"github.com/lumen-ed/lumen-api/pkg/response"
)

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	service *service.EnrollmentService
}

// NewEnrollmentHandler constructs an enrollment handler.
func NewEnrollmentHandler(svc *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

// Join godoc
// @Summary Join a course by lesson code
// @Description Idempotent: re-joining with the same code returns the existing enrollment.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body map[string]string true "Join code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /enrollments/join [post]
func (h *EnrollmentHandler) Join(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "join code required"))
		return
	}

	result, err := h.service.JoinByCode(c.Request.Context(), claims.UserID, payload.Code)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Leave godoc
// @Summary Leave a course
// @Description Soft leave: the enrollment row is kept with status LEFT.
// @Tags Enrollments
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 204 {object} response.Envelope
// @Router /enrollments/{courseId} [delete]
func (h *EnrollmentHandler) Leave(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Leave(c.Request.Context(), claims.UserID, c.Param("courseId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MyCourses godoc
// @Summary List the caller's active enrollments
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enrollments/mine [get]
func (h *EnrollmentHandler) MyCourses(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	enrollments, err := h.service.MyCourses(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// Roster godoc
// @Summary Course roster
// @Description Owning teacher or admin only.
// @Tags Enrollments
// @Produce json
// @Param courseId path string true "Course ID"
// @Param status query string false "Enrollment status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /courses/{courseId}/roster [get]
func (h *EnrollmentHandler) Roster(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.EnrollmentFilter
	filter.Status = models.EnrollmentStatus(c.Query("status"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}

	roster, total, err := h.service.Roster(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}
