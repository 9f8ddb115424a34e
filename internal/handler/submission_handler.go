package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumen-ed/lumen-api/internal/models"
	"github.com/lumen-ed/lumen-api/internal/service"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
	"github.com/lumen-ed/lumen-api/pkg/response"
)

// SubmissionHandler exposes the submission lifecycle endpoints.
type SubmissionHandler struct {
	completions *service.CompletionService
	activities  *service.ActivityService
	metrics     *service.MetricsService
}

// NewSubmissionHandler constructs a submission handler. metrics may be nil.
func NewSubmissionHandler(completions *service.CompletionService, activities *service.ActivityService, metrics *service.MetricsService) *SubmissionHandler {
	return &SubmissionHandler{completions: completions, activities: activities, metrics: metrics}
}

// Start godoc
// @Summary Start an activity
// @Description Idempotent: starting an already started activity returns the current submission.
// @Tags Submissions
// @Produce json
// @Param activityId path string true "Activity ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /activities/{activityId}/start [post]
func (h *SubmissionHandler) Start(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	submission, err := h.completions.Start(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// ReportProgress godoc
// @Summary Report content progress
// @Description Progress never rewinds; crossing the completion gate finishes the activity.
// @Tags Submissions
// @Accept json
// @Produce json
// @Param activityId path string true "Activity ID"
// @Param payload body map[string]float64 true "Progress ratio"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /activities/{activityId}/progress [put]
func (h *SubmissionHandler) ReportProgress(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		Ratio *float64 `json:"ratio" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "ratio required"))
		return
	}

	submission, err := h.completions.ReportProgress(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"), *payload.Ratio)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.recordCompletion(c, submission)
	response.JSON(c, http.StatusOK, submission, nil)
}

// Submit godoc
// @Summary Submit an attempt
// @Description Scores the attempt server-side according to the activity type.
// @Tags Submissions
// @Accept json
// @Produce json
// @Param activityId path string true "Activity ID"
// @Param payload body models.AttemptPayload true "Attempt payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /activities/{activityId}/submit [post]
func (h *SubmissionHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload models.AttemptPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attempt payload"))
		return
	}

	result, err := h.completions.Submit(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.recordCompletion(c, result.Submission)
	response.JSON(c, http.StatusOK, result, nil)
}

// Abandon godoc
// @Summary Abandon an activity
// @Tags Submissions
// @Produce json
// @Param activityId path string true "Activity ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /activities/{activityId}/abandon [post]
func (h *SubmissionHandler) Abandon(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	submission, err := h.completions.Abandon(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// Grade godoc
// @Summary Grade a submitted attempt
// @Description Teacher grading; points may be overridden for custom activities.
// @Tags Submissions
// @Accept json
// @Produce json
// @Param activityId path string true "Activity ID"
// @Param payload body map[string]interface{} true "Grade payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /activities/{activityId}/grade [post]
func (h *SubmissionHandler) Grade(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		StudentID      string `json:"student_id" binding:"required"`
		OverridePoints *int   `json:"override_points"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "student_id required"))
		return
	}

	submission, err := h.completions.Grade(c.Request.Context(), payload.StudentID, c.Param("id"), payload.OverridePoints)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// Get godoc
// @Summary Get the caller's submission for an activity
// @Tags Submissions
// @Produce json
// @Param activityId path string true "Activity ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /activities/{activityId}/submission [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	submission, err := h.completions.Get(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// recordCompletion observes a completion when the submission reached a
// terminal scoring state.
func (h *SubmissionHandler) recordCompletion(c *gin.Context, submission *models.Submission) {
	if h.metrics == nil || submission == nil {
		return
	}
	if submission.Status != models.SubmissionStatusSubmitted && submission.Status != models.SubmissionStatusGraded {
		return
	}
	activity, err := h.activities.Get(c.Request.Context(), submission.ActivityID)
	if err != nil {
		return
	}
	h.metrics.RecordCompletion(activity.Type, submission.PointsEarned)
}
