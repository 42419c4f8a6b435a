package handler

import (
	"net/http"
	"strconv"

	"github.com/proanbud/proanbud-api/internal/service"
	"go.uber.org/zap"
)

// maxActivityLimit bounds the activity feed length a client may request
const maxActivityLimit = 50

type DashboardHandler struct {
	dashboardService *service.DashboardService
	logger           *zap.Logger
}

func NewDashboardHandler(dashboardService *service.DashboardService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: dashboardService,
		logger:           logger,
	}
}

// KPIs godoc
// @Summary Dashboard KPI cards
// @Description Total revenue, active quotes, won quotes and win rate, each with the change from last month.
// @Description Amounts are formatted in Norwegian kroner.
// @Tags Dashboard
// @Produce json
// @Success 200 {object} domain.DashboardKPIs
// @Failure 503 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /dashboard/kpis [get]
func (h *DashboardHandler) KPIs(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	kpis, err := h.dashboardService.KPIs(r.Context(), acc)
	if err != nil {
		respondServiceError(w, h.logger, err, "hente nøkkeltall")
		return
	}
	respondJSON(w, http.StatusOK, kpis)
}

// Chart godoc
// @Summary Revenue chart
// @Description Won revenue and quoted value for the trailing twelve months
// @Tags Dashboard
// @Produce json
// @Success 200 {array} domain.ChartPoint
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /dashboard/chart [get]
func (h *DashboardHandler) Chart(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	points, err := h.dashboardService.Chart(r.Context(), acc)
	if err != nil {
		respondServiceError(w, h.logger, err, "hente diagramdata")
		return
	}
	respondJSON(w, http.StatusOK, points)
}

// Activity godoc
// @Summary Recent activity
// @Description Latest quote and customer events, newest first
// @Tags Dashboard
// @Produce json
// @Param limit query int false "Number of entries (max 50)"
// @Success 200 {array} domain.ActivityItem
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /dashboard/activity [get]
func (h *DashboardHandler) Activity(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxActivityLimit {
			respondWithError(w, http.StatusBadRequest, "limit must be between 1 and 50")
			return
		}
		limit = n
	}

	items, err := h.dashboardService.Activity(r.Context(), acc, limit)
	if err != nil {
		respondServiceError(w, h.logger, err, "hente aktivitet")
		return
	}
	respondJSON(w, http.StatusOK, items)
}
