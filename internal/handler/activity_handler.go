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

// ActivityHandler exposes activity authoring endpoints.
type ActivityHandler struct {
	service *service.ActivityService
	access  *service.AccessService
}

// NewActivityHandler constructs an activity handler.
func NewActivityHandler(svc *service.ActivityService, access *service.AccessService) *ActivityHandler {
	return &ActivityHandler{service: svc, access: access}
}

// Create godoc
// @Summary Create activity
// @Tags Activities
// @Accept json
// @Produce json
// @Param payload body service.CreateActivityRequest true "Activity payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /activities [post]
func (h *ActivityHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid activity payload"))
		return
	}

	activity, err := h.service.Create(c.Request.Context(), claims.UserID, claims.Role, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, activity)
}

// Update godoc
// @Summary Update activity
// @Tags Activities
// @Accept json
// @Produce json
// @Param id path string true "Activity ID"
// @Param payload body service.UpdateActivityRequest true "Activity payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /activities/{id} [patch]
func (h *ActivityHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid activity payload"))
		return
	}

	activity, err := h.service.Update(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activity, nil)
}

// Get godoc
// @Summary Get activity detail
// @Description Students only see activities their access policy allows.
// @Tags Activities
// @Produce json
// @Param id path string true "Activity ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /activities/{id} [get]
func (h *ActivityHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	activity, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	decision, err := h.access.Evaluate(c.Request.Context(), claims.UserID, claims.Role, activity)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !decision.Allowed() {
		response.Error(c, decision.Err())
		return
	}
	response.JSON(c, http.StatusOK, activity, nil)
}

// List godoc
// @Summary List activities of a course
// @Description Students only receive activities visible to them.
// @Tags Activities
// @Produce json
// @Param courseId query string true "Course ID"
// @Param lessonId query string false "Lesson ID"
// @Param type query string false "Activity type"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /activities [get]
func (h *ActivityHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.ActivityFilter
	filter.CourseID = c.Query("courseId")
	filter.LessonID = c.Query("lessonId")
	filter.Type = models.ActivityType(c.Query("type"))
	if filter.CourseID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "courseId required"))
		return
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	activities, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	if claims.Role == models.RoleStudent {
		activities, err = h.access.FilterVisible(c.Request.Context(), claims.UserID, claims.Role, filter.CourseID, activities)
		if err != nil {
			response.Error(c, err)
			return
		}
		total = len(activities)
	}

	response.JSON(c, http.StatusOK, activities, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}
