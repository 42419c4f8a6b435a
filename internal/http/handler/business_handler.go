package handler

import (
	"net/http"

	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/proanbud/proanbud-api/internal/service"
	"go.uber.org/zap"
)

type BusinessHandler struct {
	businessService *service.BusinessService
	logger          *zap.Logger
}

func NewBusinessHandler(businessService *service.BusinessService, logger *zap.Logger) *BusinessHandler {
	return &BusinessHandler{
		businessService: businessService,
		logger:          logger,
	}
}

// businessContextResponse wraps the plain-text business summary
type businessContextResponse struct {
	Context string `json:"context"`
}

// Get godoc
// @Summary Get business settings
// @Tags Business
// @Produce json
// @Success 200 {object} domain.BusinessSettings
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /business [get]
func (h *BusinessHandler) Get(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	settings, err := h.businessService.Get(r.Context(), acc)
	if err != nil {
		respondServiceError(w, h.logger, err, "hente bedriftsinnstillinger")
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// Save godoc
// @Summary Replace business settings
// @Tags Business
// @Accept json
// @Produce json
// @Param request body domain.BusinessSettings true "Business settings"
// @Success 200 {object} domain.BusinessSettings
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /business [put]
func (h *BusinessHandler) Save(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	var req domain.BusinessSettings
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	settings, err := h.businessService.Save(r.Context(), acc, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "lagre bedriftsinnstillinger")
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// Update godoc
// @Summary Update business settings
// @Description Merge the given fields into the stored settings. Unknown fields are rejected.
// @Tags Business
// @Accept json
// @Produce json
// @Param request body object true "Fields to change"
// @Success 200 {object} domain.BusinessSettings
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /business [patch]
func (h *BusinessHandler) Update(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	var fields map[string]any
	if err := decodeJSON(w, r, &fields); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	settings, err := h.businessService.Update(r.Context(), acc, fields)
	if err != nil {
		respondServiceError(w, h.logger, err, "oppdatere bedriftsinnstillinger")
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// Context godoc
// @Summary Business summary
// @Description Norwegian plain-text summary of the business. Empty when no settings exist.
// @Tags Business
// @Produce json
// @Success 200 {object} businessContextResponse
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /business/context [get]
func (h *BusinessHandler) Context(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	text, err := h.businessService.Context(r.Context(), acc)
	if err != nil {
		respondServiceError(w, h.logger, err, "hente bedriftsinformasjon")
		return
	}
	respondJSON(w, http.StatusOK, businessContextResponse{Context: text})
}
