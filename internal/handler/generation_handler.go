package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumen-ed/lumen-api/internal/models"
	"github.com/lumen-ed/lumen-api/internal/service"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
	"github.com/lumen-ed/lumen-api/pkg/response"
)

// GenerationHandler exposes the generative content endpoints.
type GenerationHandler struct {
	service *service.GenerationService
}

// NewGenerationHandler constructs a generation handler.
func NewGenerationHandler(svc *service.GenerationService) *GenerationHandler {
	return &GenerationHandler{service: svc}
}

// GenerateQuiz godoc
// @Summary Generate a quiz from a topic
// @Description Provider output is validated before it is returned; malformed output is retryable.
// @Tags Generation
// @Accept json
// @Produce json
// @Param payload body models.GenerateQuizRequest true "Quiz prompt"
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Failure 504 {object} response.Envelope
// @Router /generation/quiz [post]
func (h *GenerationHandler) GenerateQuiz(c *gin.Context) {
	var req models.GenerateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid quiz prompt"))
		return
	}

	quiz, err := h.service.GenerateQuiz(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quiz, nil)
}

// GenerateActivity godoc
// @Summary Generate an activity definition from a topic
// @Tags Generation
// @Accept json
// @Produce json
// @Param payload body models.GenerateActivityRequest true "Activity prompt"
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /generation/activity [post]
func (h *GenerationHandler) GenerateActivity(c *gin.Context) {
	var req models.GenerateActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid activity prompt"))
		return
	}

	activity, err := h.service.GenerateActivity(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activity, nil)
}

// TutorTurn godoc
// @Summary Evaluate one AI tutor turn
// @Description Returns the tutor reply and persists per-objective mastery updates.
// @Tags Generation
// @Accept json
// @Produce json
// @Param payload body models.TutorTurnRequest true "Tutor turn"
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /generation/tutor [post]
func (h *GenerationHandler) TutorTurn(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.TutorTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid tutor turn"))
		return
	}

	evaluation, err := h.service.EvaluateTutorTurn(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evaluation, nil)
}
