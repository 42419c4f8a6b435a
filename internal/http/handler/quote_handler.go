package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/proanbud/proanbud-api/internal/service"
	"go.uber.org/zap"
)

type QuoteHandler struct {
	quoteService *service.QuoteService
	logger       *zap.Logger
}

func NewQuoteHandler(quoteService *service.QuoteService, logger *zap.Logger) *QuoteHandler {
	return &QuoteHandler{
		quoteService: quoteService,
		logger:       logger,
	}
}

// List godoc
// @Summary List quotes
// @Description Quotes of the account, newest first
// @Tags Quotes
// @Produce json
// @Param status query string false "Filter by status" Enums(pending, won, lost)
// @Success 200 {array} domain.QuoteDTO
// @Failure 400 {object} domain.APIError
// @Failure 503 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /quotes [get]
func (h *QuoteHandler) List(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}

	var (
		quotes []domain.QuoteDTO
		err    error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		s := domain.QuoteStatus(status)
		if !s.IsValid() {
			respondWithError(w, http.StatusBadRequest, "status must be one of: pending, won, lost")
			return
		}
		quotes, err = h.quoteService.ListByStatus(r.Context(), acc, s)
	} else {
		quotes, err = h.quoteService.List(r.Context(), acc)
	}
	if err != nil {
		respondServiceError(w, h.logger, err, "hente tilbud")
		return
	}
	respondJSON(w, http.StatusOK, quotes)
}

// Search godoc
// @Summary Search quotes
// @Description Case-insensitive match on customer name or project
// @Tags Quotes
// @Produce json
// @Param q query string true "Search text"
// @Success 200 {array} domain.QuoteDTO
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /quotes/search [get]
func (h *QuoteHandler) Search(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'q' is required")
		return
	}
	quotes, err := h.quoteService.Search(r.Context(), acc, query)
	if err != nil {
		respondServiceError(w, h.logger, err, "søke i tilbud")
		return
	}
	respondJSON(w, http.StatusOK, quotes)
}

// Stats godoc
// @Summary Quote statistics
// @Description Counts and value totals per status
// @Tags Quotes
// @Produce json
// @Success 200 {object} domain.QuoteStats
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /quotes/stats [get]
func (h *QuoteHandler) Stats(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	stats, err := h.quoteService.Stats(r.Context(), acc)
	if err != nil {
		respondServiceError(w, h.logger, err, "hente tilbudsstatistikk")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// GetByID godoc
// @Summary Get quote
// @Tags Quotes
// @Produce json
// @Param id path string true "Quote ID"
// @Success 200 {object} domain.QuoteDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /quotes/{id} [get]
func (h *QuoteHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	quote, err := h.quoteService.GetByID(r.Context(), acc, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err, "hente tilbud")
		return
	}
	respondJSON(w, http.StatusOK, quote)
}

// Create godoc
// @Summary Create quote
// @Description Creates a quote for an existing customer and updates the customer's counters
// @Tags Quotes
// @Accept json
// @Produce json
// @Param request body domain.CreateQuoteRequest true "Quote data"
// @Success 201 {object} domain.QuoteDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /quotes [post]
func (h *QuoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	var req domain.CreateQuoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	quote, err := h.quoteService.Create(r.Context(), acc, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "opprette tilbud")
		return
	}

	w.Header().Set("Location", "/api/v1/quotes/"+quote.ID)
	respondJSON(w, http.StatusCreated, quote)
}

// Update godoc
// @Summary Update quote
// @Description Partial update. Status and customer changes adjust customer counters.
// @Tags Quotes
// @Accept json
// @Produce json
// @Param id path string true "Quote ID"
// @Param request body domain.UpdateQuoteRequest true "Fields to change"
// @Success 200 {object} domain.QuoteDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /quotes/{id} [put]
func (h *QuoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	var req domain.UpdateQuoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	quote, err := h.quoteService.Update(r.Context(), acc, chi.URLParam(r, "id"), &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "oppdatere tilbud")
		return
	}
	respondJSON(w, http.StatusOK, quote)
}

// Delete godoc
// @Summary Delete quote
// @Tags Quotes
// @Param id path string true "Quote ID"
// @Success 204
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /quotes/{id} [delete]
func (h *QuoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	if err := h.quoteService.Delete(r.Context(), acc, chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, h.logger, err, "slette tilbud")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
