package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/proanbud/proanbud-api/internal/service"
	"go.uber.org/zap"
)

// DefaultStreamHeartbeat is the keep-alive interval of analytics streams
const DefaultStreamHeartbeat = 25 * time.Second

type AnalyticsHandler struct {
	analyticsService *service.AnalyticsService
	heartbeat        time.Duration
	logger           *zap.Logger
}

func NewAnalyticsHandler(analyticsService *service.AnalyticsService, heartbeat time.Duration, logger *zap.Logger) *AnalyticsHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultStreamHeartbeat
	}
	return &AnalyticsHandler{
		analyticsService: analyticsService,
		heartbeat:        heartbeat,
		logger:           logger,
	}
}

func parsePeriod(w http.ResponseWriter, r *http.Request) (domain.TimePeriod, bool) {
	period, ok := domain.ParseTimePeriod(r.URL.Query().Get("period"))
	if !ok {
		respondWithError(w, http.StatusBadRequest, "period must be one of: 7dager, 30dager, 1aar, frastart")
		return "", false
	}
	return period, true
}

// Get godoc
// @Summary Get analytics
// @Description Summary of the account's quotes narrowed to a time period. 7dager and 30dager
// @Description return a daily series, 1aar the trailing twelve months and frastart every month
// @Description since the first quote. The cached summary is recomputed when older than the configured limit.
// @Tags Analytics
// @Produce json
// @Param period query string false "Time period" Enums(7dager, 30dager, 1aar, frastart) default(frastart)
// @Success 200 {object} domain.Analytics
// @Failure 400 {object} domain.APIError
// @Failure 503 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /analytics [get]
func (h *AnalyticsHandler) Get(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	period, ok := parsePeriod(w, r)
	if !ok {
		return
	}
	view, err := h.analyticsService.GetForPeriod(r.Context(), acc, period)
	if err != nil {
		respondServiceError(w, h.logger, err, "hente analyse")
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// Refresh godoc
// @Summary Recompute analytics
// @Description Rebuilds and stores the summary from the current quotes and customers
// @Tags Analytics
// @Produce json
// @Success 200 {object} domain.Analytics
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /analytics/refresh [post]
func (h *AnalyticsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	summary, err := h.analyticsService.Refresh(r.Context(), acc)
	if err != nil {
		respondServiceError(w, h.logger, err, "oppdatere analyse")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// Stream godoc
// @Summary Live analytics
// @Description Server-sent events. An "analytics" event carries the summary for the period
// @Description each time quotes or customers change; the event id is the summary version.
// @Description An "error" event reports a failed recompute. Comment lines keep the connection alive.
// @Tags Analytics
// @Produce text/event-stream
// @Param period query string false "Time period" Enums(7dager, 30dager, 1aar, frastart) default(frastart)
// @Success 200 {object} domain.Analytics
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /analytics/stream [get]
func (h *AnalyticsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	period, ok := parsePeriod(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "Streaming is not supported")
		return
	}

	ctx := r.Context()
	// holds at most the newest undelivered summary
	updates := make(chan *domain.Analytics, 1)
	unsubscribe, err := h.analyticsService.Subscribe(ctx, acc, func(summary *domain.Analytics) {
		select {
		case <-updates:
		default:
		}
		updates <- summary
	})
	if err != nil {
		respondServiceError(w, h.logger, err, "hente analyse")
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", (5 * time.Second).Milliseconds())
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case summary := <-updates:
			if err := h.writeEvent(w, r, acc, period, summary); err != nil {
				h.logger.Debug("analytics stream closed", zap.String("account_id", acc), zap.Error(err))
				return
			}
		}
		flusher.Flush()
	}
}

func (h *AnalyticsHandler) writeEvent(w http.ResponseWriter, r *http.Request, acc string, period domain.TimePeriod, summary *domain.Analytics) error {
	if summary == nil {
		return writeSSE(w, "error", "", domain.APIError{
			Type:   string(domain.CategoryGeneric),
			Title:  "Recompute failed",
			Status: http.StatusInternalServerError,
			Detail: domain.UserMessage(domain.CategoryGeneric, "oppdatere analyse"),
		})
	}

	view, err := h.analyticsService.View(r.Context(), acc, summary, period)
	if err != nil {
		category := service.Categorize(err)
		h.logger.Warn("failed to narrow live analytics", zap.String("account_id", acc), zap.Error(err))
		return writeSSE(w, "error", "", domain.APIError{
			Type:   string(category),
			Title:  "Recompute failed",
			Status: statusForCategory(category),
			Detail: domain.UserMessage(category, "oppdatere analyse"),
		})
	}
	return writeSSE(w, "analytics", fmt.Sprint(summary.Version), view)
}

func writeSSE(w http.ResponseWriter, event, id string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}
