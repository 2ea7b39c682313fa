package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arvichandar/facemark-api/internal/dto"
	"github.com/arvichandar/facemark-api/internal/middleware"
	"github.com/arvichandar/facemark-api/internal/service"
	appErrors "github.com/arvichandar/facemark-api/pkg/errors"
	"github.com/arvichandar/facemark-api/pkg/response"
)

// SettingsHandler exposes the student self-auth feature flag.
type SettingsHandler struct {
	flags *service.FlagService
}

// NewSettingsHandler creates a new handler.
func NewSettingsHandler(flags *service.FlagService) *SettingsHandler {
	return &SettingsHandler{flags: flags}
}

// GetStudentAuth godoc
// @Summary Read the student self-auth flag
// @Tags Settings
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /settings/student-auth [get]
func (h *SettingsHandler) GetStudentAuth(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.flags.Current(c.Request.Context()), nil)
}

// UpdateStudentAuth godoc
// @Summary Flip the student self-auth flag
// @Description Enable or disable student self-service login and marking. Only one update may be in flight at a time.
// @Tags Settings
// @Accept json
// @Produce json
// @Param payload body dto.UpdateFlagRequest true "Flag payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /settings/student-auth [put]
func (h *SettingsHandler) UpdateStudentAuth(c *gin.Context) {
	var req dto.UpdateFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "enabled is required"))
		return
	}

	claims := middleware.CurrentClaims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	flag, err := h.flags.SetEnabled(c.Request.Context(), *req.Enabled, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, flag, nil)
}
