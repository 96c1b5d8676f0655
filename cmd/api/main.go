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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-scheduler/internal/api/router"
	"github.com/wolfman30/clinic-scheduler/internal/app/bootstrap"
	"github.com/wolfman30/clinic-scheduler/internal/cache"
	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/conversation"
	httpmiddleware "github.com/wolfman30/clinic-scheduler/internal/http/middleware"
	"github.com/wolfman30/clinic-scheduler/internal/notify"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting clinic-scheduler API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"api_version", cfg.APIVersion,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger, time.Now())
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// app is the fully wired HTTP surface plus everything that must be released
// on shutdown.
type app struct {
	Handler  http.Handler
	Registry *prometheus.Registry
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, now time.Time) (*app, error) {
	a := &app{}

	repo, closeRepo, err := bootstrap.BuildRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeRepo)

	if cfg.SeedDatabase {
		if err := scheduling.Seed(ctx, repo, now, logger); err != nil {
			a.Close()
			return nil, fmt.Errorf("seed database: %w", err)
		}
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
	}

	registry, metricsHandler := setupMetrics()
	a.Registry = registry
	availability := cache.New(redisClient, metrics.NewCacheMetrics(registry), logger)

	notifier := notify.NewBookingNotifier(bootstrap.BuildEmailSender(ctx, cfg, logger), logger)
	service := scheduling.NewService(repo, scheduling.ServiceConfig{
		Cache:       availability,
		Notifier:    notifier,
		Metrics:     metrics.NewBookingMetrics(registry),
		ScheduleTTL: cfg.ScheduleCacheTTL,
		PatientTTL:  cfg.PatientCacheTTL,
	}, logger)

	sessions, closeSessions := bootstrap.BuildSessionStore(cfg, redisClient, logger)
	a.closers = append(a.closers, closeSessions)

	engine := conversation.NewEngine(conversation.EngineConfig{
		Store:           sessions,
		Scheduler:       service,
		Metrics:         metrics.NewConversationMetrics(registry),
		AnonymousUserID: cfg.AnonymousUserID,
	}, logger)

	var limiter *httpmiddleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = httpmiddleware.NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	a.Handler = router.New(&router.Config{
		Logger:              logger,
		APIVersion:          cfg.APIVersion,
		Environment:         cfg.Env,
		SchedulingHandler:   scheduling.NewHandler(service, logger),
		ConversationHandler: conversation.NewHandler(engine, logger),
		CacheHandler:        cache.NewHandler(availability, logger),
		MetricsHandler:      metricsHandler,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimiter:         limiter,
	})
	return a, nil
}

// setupMetrics uses a private registry so tests can build the app more than
// once without duplicate registration panics.
func setupMetrics() (*prometheus.Registry, http.Handler) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
