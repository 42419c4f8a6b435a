package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/proanbud/proanbud-api/docs"
	"github.com/proanbud/proanbud-api/internal/analytics"
	"github.com/proanbud/proanbud-api/internal/auth"
	"github.com/proanbud/proanbud-api/internal/config"
	"github.com/proanbud/proanbud-api/internal/docstore"
	"github.com/proanbud/proanbud-api/internal/http/handler"
	"github.com/proanbud/proanbud-api/internal/http/middleware"
	"github.com/proanbud/proanbud-api/internal/http/router"
	"github.com/proanbud/proanbud-api/internal/jobs"
	"github.com/proanbud/proanbud-api/internal/logger"
	"github.com/proanbud/proanbud-api/internal/metrics"
	"github.com/proanbud/proanbud-api/internal/repository"
	"github.com/proanbud/proanbud-api/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// @title Proanbud API
// @version 1.0
// @description Quote, customer and sales analytics API for Proanbud
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@proanbud.no

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Firebase ID token as Bearer token

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name x-api-key
// @description API key for system operations, combined with X-Account-ID
// @Security BearerAuth
// @Security ApiKeyAuth

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load basic configuration first (for logging setup)
	basicCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&basicCfg.Logging, &basicCfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting application",
		zap.String("app", basicCfg.App.Name),
		zap.String("env", basicCfg.App.Environment),
		zap.Int("port", basicCfg.App.Port),
	)

	switch basicCfg.App.Environment {
	case "staging":
		docs.SwaggerInfo.Host = "api.staging.proanbud.no"
	case "production":
		docs.SwaggerInfo.Host = "api.proanbud.no"
	default:
		docs.SwaggerInfo.Host = fmt.Sprintf("localhost:%d", basicCfg.App.Port)
	}

	// In development secrets come from the environment, elsewhere from Azure Key Vault
	cfg, err := config.LoadWithSecrets(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	location, err := cfg.Analytics.Location()
	if err != nil {
		return fmt.Errorf("invalid analytics timezone: %w", err)
	}

	store, sqlStore, err := docstore.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open document store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("Error closing document store", zap.Error(err))
		}
	}()
	log.Info("Document store opened", zap.String("driver", cfg.Store.Driver))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	var registerer prometheus.Registerer
	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		registerer, gatherer = registry, registry
	}

	engine := analytics.NewEngine(log, analytics.WithLocation(location))

	// Initialize repositories
	quoteRepo := repository.NewQuoteRepository(store, log)
	customerRepo := repository.NewCustomerRepository(store, log)
	analyticsRepo := repository.NewAnalyticsRepository(store, log)
	businessRepo := repository.NewBusinessSettingsRepository(store, log)
	userSettingsRepo := repository.NewUserSettingsRepository(store, log)
	accountRepo := repository.NewAccountRepository(store, log)

	// Initialize services
	customerService := service.NewCustomerService(store, customerRepo, quoteRepo, log)
	quoteService := service.NewQuoteService(store, quoteRepo, businessRepo, customerService, log)
	analyticsService := service.NewAnalyticsService(store, engine, quoteRepo, customerRepo, analyticsRepo,
		metrics.NewAnalyticsMetrics(registerer), cfg.Analytics.StaleAfterDuration(), log)
	dashboardService := service.NewDashboardService(store, engine, analyticsService, quoteRepo, customerRepo,
		cfg.Analytics.ActivityLimit, log)
	businessService := service.NewBusinessService(store, businessRepo, engine, log)
	settingsService := service.NewSettingsService(store, userSettingsRepo, log)
	accountService := service.NewAccountService(store, accountRepo, analyticsRepo, businessService, settingsService, engine, log)

	// Initialize middleware
	authMiddleware := auth.NewMiddleware(cfg, log)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)

	handlers := router.Handlers{
		Account:   handler.NewAccountHandler(accountService, log),
		Customer:  handler.NewCustomerHandler(customerService, log),
		Quote:     handler.NewQuoteHandler(quoteService, log),
		Analytics: handler.NewAnalyticsHandler(analyticsService, cfg.Server.StreamHeartbeatDuration(), log),
		Dashboard: handler.NewDashboardHandler(dashboardService, log),
		Business:  handler.NewBusinessHandler(businessService, log),
		Settings:  handler.NewSettingsHandler(settingsService, log),
	}

	rt := router.NewRouter(
		cfg,
		log,
		store,
		sqlStore,
		gatherer,
		metrics.NewHTTPMetrics(registerer),
		authMiddleware,
		rateLimiter,
		handlers,
	)

	var scheduler *jobs.Scheduler
	if cfg.Jobs.Enabled {
		scheduler = jobs.NewScheduler(log)
		jobMetrics := metrics.NewJobMetrics(registerer)

		refreshJob := jobs.NewAnalyticsRefreshJob(accountRepo, analyticsService, jobMetrics, log,
			cfg.Jobs.AnalyticsRefreshTimeoutDuration())
		if err := jobs.RegisterAnalyticsRefreshJob(scheduler, refreshJob, cfg.Jobs.AnalyticsRefreshCron, true); err != nil {
			return fmt.Errorf("failed to register analytics refresh job: %w", err)
		}

		reconcileJob := jobs.NewCounterReconcileJob(accountRepo, customerService, jobMetrics, log,
			cfg.Jobs.CounterReconcileTimeoutDuration())
		if err := jobs.RegisterCounterReconcileJob(scheduler, reconcileJob, cfg.Jobs.CounterReconcileCron); err != nil {
			return fmt.Errorf("failed to register counter reconcile job: %w", err)
		}

		scheduler.Start()
	} else {
		log.Info("Background jobs disabled")
	}

	// server.writeTimeout defaults to 0 so analytics streams are not cut off
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           rt.Setup(),
		ReadTimeout:       cfg.Server.ReadTimeoutDuration(),
		ReadHeaderTimeout: cfg.Server.ReadTimeoutDuration(),
		WriteTimeout:      cfg.Server.WriteTimeoutDuration(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		if scheduler != nil {
			<-scheduler.Stop().Done()
			log.Info("Scheduler stopped")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Failed to shutdown gracefully", zap.Error(err))
			return err
		}

		log.Info("Server stopped gracefully")
	}

	return nil
}
