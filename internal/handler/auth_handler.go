package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumen-ed/lumen-api/internal/models"
	"github.com/lumen-ed/lumen-api/internal/service"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
	"github.com/lumen-ed/lumen-api/pkg/response"
)

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service *service.AuthService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{service: svc}
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate user by email and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Refresh godoc
// @Summary Refresh access token
// @Description Exchange refresh token for new access token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RefreshTokenRequest true "Refresh payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid refresh payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.RefreshToken(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Logout godoc
// @Summary Logout current session
// @Description Revoke refresh token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body map[string]string true "Refresh token"
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "refresh token required"))
		return
	}

	meta := models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	if err := h.service.Logout(c.Request.Context(), payload.RefreshToken, claims.UserID, meta); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// ChangePassword godoc
// @Summary Change password
// @Description Change password for the current user and revoke active sessions
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.ChangePasswordRequest true "Password payload"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/password [put]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid password payload"))
		return
	}

	if err := h.service.ChangePassword(c.Request.Context(), claims.UserID, req); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Me godoc
// @Summary Current user profile
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.JSON(c, http.StatusOK, models.UserInfo{
		ID:       claims.UserID,
		Email:    claims.Email,
		FullName: claims.FullName,
		Role:     claims.Role,
	}, nil)
}
