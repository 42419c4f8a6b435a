package handler

import (
	"net/http"

	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/proanbud/proanbud-api/internal/service"
	"go.uber.org/zap"
)

type SettingsHandler struct {
	settingsService *service.SettingsService
	logger          *zap.Logger
}

func NewSettingsHandler(settingsService *service.SettingsService, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{
		settingsService: settingsService,
		logger:          logger,
	}
}

// Get godoc
// @Summary Get user settings
// @Tags Settings
// @Produce json
// @Success 200 {object} domain.UserSettings
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /settings [get]
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	settings, err := h.settingsService.Get(r.Context(), acc)
	if err != nil {
		respondServiceError(w, h.logger, err, "hente innstillinger")
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// Save godoc
// @Summary Replace user settings
// @Tags Settings
// @Accept json
// @Produce json
// @Param request body domain.UserSettings true "User settings"
// @Success 200 {object} domain.UserSettings
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /settings [put]
func (h *SettingsHandler) Save(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	var req domain.UserSettings
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	settings, err := h.settingsService.Save(r.Context(), acc, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "lagre innstillinger")
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// Update godoc
// @Summary Update user settings
// @Description Merge the given fields into the stored settings. Unknown fields are rejected.
// @Tags Settings
// @Accept json
// @Produce json
// @Param request body object true "Fields to change"
// @Success 200 {object} domain.UserSettings
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /settings [patch]
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	var fields map[string]any
	if err := decodeJSON(w, r, &fields); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	settings, err := h.settingsService.Update(r.Context(), acc, fields)
	if err != nil {
		respondServiceError(w, h.logger, err, "oppdatere innstillinger")
		return
	}
	respondJSON(w, http.StatusOK, settings)
}
