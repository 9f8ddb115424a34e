package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumen-ed/lumen-api/internal/middleware"
	"github.com/lumen-ed/lumen-api/internal/models"
	"github.com/lumen-ed/lumen-api/internal/service"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
	"github.com/lumen-ed/lumen-api/pkg/response"
)

// AnalyticsHandler exposes aggregated progress endpoints.
type AnalyticsHandler struct {
	progress *service.ProgressService
	access   *service.AccessService
}

// NewAnalyticsHandler constructs an analytics handler.
func NewAnalyticsHandler(progress *service.ProgressService, access *service.AccessService) *AnalyticsHandler {
	return &AnalyticsHandler{progress: progress, access: access}
}

// CourseAnalytics godoc
// @Summary Course-wide progress and mastery analytics
// @Description Served from cache when fresh; the cache_hit meta flag reports the source. Teachers see their own courses only.
// @Tags Analytics
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /analytics/courses/{id} [get]
func (h *AnalyticsHandler) CourseAnalytics(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	courseID := c.Param("id")
	if err := h.access.EvaluateCourseRead(c.Request.Context(), claims.UserID, claims.Role, courseID); err != nil {
		response.Error(c, err)
		return
	}

	analytics, cached, err := h.progress.CourseAnalytics(c.Request.Context(), courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, analytics, nil, middleware.ExtractMeta(c))
}

// StudentProgress godoc
// @Summary Per-student course progress
// @Description Students may only view their own progress; teachers only students of their own courses.
// @Tags Analytics
// @Produce json
// @Param courseId path string true "Course ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /analytics/courses/{courseId}/students/{studentId} [get]
func (h *AnalyticsHandler) StudentProgress(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	courseID := c.Param("id")
	studentID := c.Param("studentId")
	if claims.Role == models.RoleStudent {
		if claims.UserID != studentID {
			response.Error(c, appErrors.ErrForbidden)
			return
		}
	} else if err := h.access.EvaluateCourseRead(c.Request.Context(), claims.UserID, claims.Role, courseID); err != nil {
		response.Error(c, err)
		return
	}

	summary, err := h.progress.StudentProgress(c.Request.Context(), studentID, courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
