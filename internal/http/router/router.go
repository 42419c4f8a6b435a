package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/proanbud/proanbud-api/internal/auth"
	"github.com/proanbud/proanbud-api/internal/config"
	"github.com/proanbud/proanbud-api/internal/database"
	"github.com/proanbud/proanbud-api/internal/docstore"
	"github.com/proanbud/proanbud-api/internal/http/handler"
	"github.com/proanbud/proanbud-api/internal/http/middleware"
	"github.com/proanbud/proanbud-api/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	_ "github.com/proanbud/proanbud-api/docs" // Import generated swagger docs
)

// healthTimeout bounds each dependency probe
const healthTimeout = 5 * time.Second

// Handlers groups the API handlers mounted under /api/v1
type Handlers struct {
	Account   *handler.AccountHandler
	Customer  *handler.CustomerHandler
	Quote     *handler.QuoteHandler
	Analytics *handler.AnalyticsHandler
	Dashboard *handler.DashboardHandler
	Business  *handler.BusinessHandler
	Settings  *handler.SettingsHandler
}

type Router struct {
	cfg            *config.Config
	logger         *zap.Logger
	store          docstore.Store
	sqlStore       *docstore.SQLStore
	gatherer       prometheus.Gatherer
	httpMetrics    *metrics.HTTPMetrics
	authMiddleware *auth.Middleware
	rateLimiter    *middleware.RateLimiter
	handlers       Handlers
}

// NewRouter wires the HTTP surface. sqlStore is nil unless the store is SQL backed;
// gatherer may be nil when metrics are disabled.
func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	store docstore.Store,
	sqlStore *docstore.SQLStore,
	gatherer prometheus.Gatherer,
	httpMetrics *metrics.HTTPMetrics,
	authMiddleware *auth.Middleware,
	rateLimiter *middleware.RateLimiter,
	handlers Handlers,
) *Router {
	return &Router{
		cfg:            cfg,
		logger:         logger,
		store:          store,
		sqlStore:       sqlStore,
		gatherer:       gatherer,
		httpMetrics:    httpMetrics,
		authMiddleware: authMiddleware,
		rateLimiter:    rateLimiter,
		handlers:       handlers,
	}
}

func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(rt.logger))
	r.Use(middleware.Logging(rt.logger))
	r.Use(middleware.Metrics(rt.httpMetrics))
	r.Use(middleware.SecurityHeaders(&rt.cfg.Security))
	r.Use(middleware.CORS(&rt.cfg.CORS, rt.cfg.App.Environment, rt.logger))
	r.Use(rt.rateLimiter.LimitByIP)

	// Liveness probe
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/health/store", rt.storeHealth)
	r.Get("/health/ready", rt.readiness)

	if rt.cfg.Metrics.Enabled && rt.gatherer != nil {
		r.Handle(rt.cfg.Metrics.Path, promhttp.HandlerFor(rt.gatherer, promhttp.HandlerOpts{}))
	}

	if rt.cfg.Server.EnableSwagger {
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}

	h := rt.handlers
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.authMiddleware.Authenticate)
		r.Use(rt.rateLimiter.Limit)

		// the analytics stream stays open for the life of the connection
		r.Get("/analytics/stream", h.Analytics.Stream)

		r.Group(func(r chi.Router) {
			if timeout := rt.cfg.Server.RequestTimeoutDuration(); timeout > 0 {
				r.Use(chimiddleware.Timeout(timeout))
			}

			r.Get("/account/me", h.Account.Me)
			r.Post("/account/init", h.Account.Init)

			r.Route("/customers", func(r chi.Router) {
				r.Get("/", h.Customer.List)
				r.Post("/", h.Customer.Create)
				r.Get("/search", h.Customer.Search)
				r.Post("/reconcile", h.Customer.Reconcile)
				r.Get("/{id}", h.Customer.GetByID)
				r.Put("/{id}", h.Customer.Update)
				r.Delete("/{id}", h.Customer.Delete)
			})

			r.Route("/quotes", func(r chi.Router) {
				r.Get("/", h.Quote.List)
				r.Post("/", h.Quote.Create)
				r.Get("/search", h.Quote.Search)
				r.Get("/stats", h.Quote.Stats)
				r.Get("/{id}", h.Quote.GetByID)
				r.Put("/{id}", h.Quote.Update)
				r.Delete("/{id}", h.Quote.Delete)
			})

			r.Get("/analytics", h.Analytics.Get)
			r.Post("/analytics/refresh", h.Analytics.Refresh)

			r.Route("/dashboard", func(r chi.Router) {
				r.Get("/kpis", h.Dashboard.KPIs)
				r.Get("/chart", h.Dashboard.Chart)
				r.Get("/activity", h.Dashboard.Activity)
			})

			r.Route("/business", func(r chi.Router) {
				r.Get("/", h.Business.Get)
				r.Put("/", h.Business.Save)
				r.Patch("/", h.Business.Update)
				r.Get("/context", h.Business.Context)
			})

			r.Route("/settings", func(r chi.Router) {
				r.Get("/", h.Settings.Get)
				r.Put("/", h.Settings.Save)
				r.Patch("/", h.Settings.Update)
			})
		})
	})

	return r
}

func writeHealth(w http.ResponseWriter, healthy bool, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if healthy {
		body["status"] = "healthy"
		w.WriteHeader(http.StatusOK)
	} else {
		body["status"] = "unhealthy"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(body)
}

// storeHealth pings the document store and reports SQL pool statistics when available
func (rt *Router) storeHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	body := map[string]interface{}{
		"service": "store",
		"driver":  rt.cfg.Store.Driver,
	}
	if err := rt.store.Ping(ctx); err != nil {
		rt.logger.Error("store health check failed", zap.Error(err))
		body["error"] = err.Error()
		writeHealth(w, false, body)
		return
	}
	if rt.sqlStore != nil {
		stats, err := database.HealthCheckWithStats(ctx, rt.sqlStore.DB())
		if err != nil {
			rt.logger.Error("database health check failed", zap.Error(err))
			body["error"] = err.Error()
			writeHealth(w, false, body)
			return
		}
		body["stats"] = stats
	}
	writeHealth(w, true, body)
}

// readiness checks every dependency needed to serve requests
func (rt *Router) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	checks := make(map[string]interface{})
	healthy := true
	if err := rt.store.Ping(ctx); err != nil {
		rt.logger.Error("store readiness check failed", zap.Error(err))
		checks["store"] = map[string]interface{}{"status": "unhealthy", "error": err.Error()}
		healthy = false
	} else {
		checks["store"] = map[string]interface{}{"status": "healthy"}
	}
	if rt.sqlStore != nil {
		if err := database.HealthCheck(ctx, rt.sqlStore.DB()); err != nil {
			rt.logger.Error("database readiness check failed", zap.Error(err))
			checks["database"] = map[string]interface{}{"status": "unhealthy", "error": err.Error()}
			healthy = false
		} else {
			checks["database"] = map[string]interface{}{"status": "healthy"}
		}
	}
	writeHealth(w, healthy, map[string]interface{}{"checks": checks})
}
