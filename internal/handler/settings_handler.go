package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusshare/analytics-api/internal/models"
	appErrors "github.com/campusshare/analytics-api/pkg/errors"
	"github.com/campusshare/analytics-api/pkg/response"
)

type settingsService interface {
	Get(ctx context.Context, userID string) (*models.SettingsView, error)
	UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.SettingsView, error)
	UpdateSettings(ctx context.Context, userID string, req models.UpdateSettingsRequest) (*models.SettingsView, error)
}

// SettingsHandler serves the caller's own profile and preferences.
type SettingsHandler struct {
	service settingsService
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(svc settingsService) *SettingsHandler {
	return &SettingsHandler{service: svc}
}

// Get godoc
// @Summary Get settings
// @Tags Settings
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /settings [get]
func (h *SettingsHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	view, err := h.service.Get(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// UpdateProfile godoc
// @Summary Update profile
// @Description Changes name, email or department. A password change needs the current password.
// @Tags Settings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.UpdateProfileRequest true "Profile payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /settings/profile [put]
func (h *SettingsHandler) UpdateProfile(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.UpdateProfileRequest
	if err := decodeStrict(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	view, err := h.service.UpdateProfile(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// UpdateSettings godoc
// @Summary Update settings
// @Description Merges the present preference, notification and privacy keys
// @Tags Settings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.UpdateSettingsRequest true "Settings payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /settings [put]
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.UpdateSettingsRequest
	if err := decodeStrict(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	view, err := h.service.UpdateSettings(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}
