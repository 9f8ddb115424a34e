package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumen-ed/lumen-api/internal/models"
	"github.com/lumen-ed/lumen-api/internal/service"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
	"github.com/lumen-ed/lumen-api/pkg/response"
)

// CollabHandler exposes the collaboration event log endpoints.
type CollabHandler struct {
	service *service.CollabService
}

// NewCollabHandler constructs a collaboration handler.
func NewCollabHandler(svc *service.CollabService) *CollabHandler {
	return &CollabHandler{service: svc}
}

type recordEventRequest struct {
	ActivityID string          `json:"activity_id" binding:"required"`
	SessionID  string          `json:"session_id" binding:"required"`
	Kind       string          `json:"kind" binding:"required"`
	Payload    json.RawMessage `json:"payload"`
}

// RecordEvent godoc
// @Summary Append a collaboration event
// @Description Events are durable; session counters are derived from the log, never mutated directly.
// @Tags Collaboration
// @Accept json
// @Produce json
// @Param payload body recordEventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /collab/events [post]
func (h *CollabHandler) RecordEvent(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req recordEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid event payload"))
		return
	}

	event, err := h.service.RecordEvent(c.Request.Context(), claims.UserID, claims.Role, req.ActivityID, req.SessionID, models.EventKind(req.Kind), req.Payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// ReplaySession godoc
// @Summary Replay a session's event log in append order
// @Tags Collaboration
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /collab/sessions/{sessionId}/events [get]
func (h *CollabHandler) ReplaySession(c *gin.Context) {
	events, err := h.service.ReplaySession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// Counters godoc
// @Summary Session participation counters
// @Tags Collaboration
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /collab/sessions/{sessionId}/counters [get]
func (h *CollabHandler) Counters(c *gin.Context) {
	counters, err := h.service.Counters(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, counters, nil)
}
