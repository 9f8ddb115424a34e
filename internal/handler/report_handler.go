package handler

import (
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lumen-ed/lumen-api/internal/models"
	"github.com/lumen-ed/lumen-api/internal/service"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
	"github.com/lumen-ed/lumen-api/pkg/response"
	"github.com/lumen-ed/lumen-api/pkg/storage"
)

// ReportHandler exposes asynchronous report endpoints.
type ReportHandler struct {
	service *service.ReportService
	store   *storage.LocalStorage
	signer  *storage.SignedURLSigner
}

// NewReportHandler constructs a report handler.
func NewReportHandler(svc *service.ReportService, store *storage.LocalStorage, signer *storage.SignedURLSigner) *ReportHandler {
	return &ReportHandler{service: svc, store: store, signer: signer}
}

type requestReportPayload struct {
	Type     models.ReportType   `json:"type" binding:"required"`
	CourseID string              `json:"course_id" binding:"required"`
	Format   models.ReportFormat `json:"format" binding:"required"`
}

// Request godoc
// @Summary Queue a report for background generation
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body requestReportPayload true "Report request"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /reports [post]
func (h *ReportHandler) Request(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload requestReportPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid report request"))
		return
	}

	job, err := h.service.Request(c.Request.Context(), claims.UserID, claims.Role, payload.Type, models.ReportJobParams{
		CourseID: payload.CourseID,
		Format:   payload.Format,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Get godoc
// @Summary Report job status
// @Description Includes a signed download URL when the job has finished.
// @Tags Reports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/{id} [get]
func (h *ReportHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	job, err := h.service.Get(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// List godoc
// @Summary List the caller's report jobs
// @Tags Reports
// @Produce json
// @Param limit query int false "Max entries"
// @Success 200 {object} response.Envelope
// @Router /reports [get]
func (h *ReportHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	limit := 20
	if parsed, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		limit = parsed
	}

	jobs, err := h.service.List(c.Request.Context(), claims.UserID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, jobs, nil)
}

// Download godoc
// @Summary Download a finished report
// @Description The token is the signed URL issued on the job; no session is required.
// @Tags Reports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /reports/download [get]
func (h *ReportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token required"))
		return
	}

	_, relPath, _, err := h.signer.Parse(token, false)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token"))
		return
	}

	file, err := h.store.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "report file no longer available"))
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read report file"))
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filepath.Base(relPath)+`"`)
	c.DataFromReader(http.StatusOK, info.Size(), "application/octet-stream", file, nil)
}
