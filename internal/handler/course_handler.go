package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lumen-ed/lumen-api/internal/models"
	"github.com/lumen-ed/lumen-api/internal/service"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
	"github.com/lumen-ed/lumen-api/pkg/response"
)

// CourseHandler exposes course and lesson authoring endpoints.
type CourseHandler struct {
	service *service.CourseService
}

// NewCourseHandler constructs a course handler.
func NewCourseHandler(svc *service.CourseService) *CourseHandler {
	return &CourseHandler{service: svc}
}

// Create godoc
// @Summary Create course
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body service.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}

	course, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Param subject query string false "Filter by subject"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.CourseFilter
	filter.Subject = c.Query("subject")
	filter.Search = strings.TrimSpace(c.Query("search"))
	if claims.Role == models.RoleTeacher {
		filter.TeacherID = claims.UserID
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	courses, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// Get godoc
// @Summary Get course detail
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Update godoc
// @Summary Update course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.UpdateCourseRequest true "Course payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /courses/{id} [patch]
func (h *CourseHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}

	course, err := h.service.Update(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// CreateLesson godoc
// @Summary Add lesson to course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.CreateLessonRequest true "Lesson payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses/{id}/lessons [post]
func (h *CourseHandler) CreateLesson(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid lesson payload"))
		return
	}

	lesson, err := h.service.CreateLesson(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lesson)
}

// ListLessons godoc
// @Summary List lessons of a course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/lessons [get]
func (h *CourseHandler) ListLessons(c *gin.Context) {
	lessons, err := h.service.ListLessons(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lessons, nil)
}

// RotateJoinCode godoc
// @Summary Rotate lesson join code
// @Tags Courses
// @Produce json
// @Param lessonId path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /lessons/{lessonId}/join-code [post]
func (h *CourseHandler) RotateJoinCode(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	lesson, err := h.service.RotateJoinCode(c.Request.Context(), claims.UserID, claims.Role, c.Param("lessonId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}
