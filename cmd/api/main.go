// Package main is the entry point for the CropCare API server.
//
// It loads configuration, builds the provider clients, the enrichment
// aggregator and the history backend, mounts the HTTP handlers on the core
// chassis (middleware, routing, health checks) and listens until SIGINT or
// SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"cropcare/internal/api/handlers"
	"cropcare/internal/assessment"
	"cropcare/internal/config"
	"cropcare/internal/core"
	"cropcare/internal/db"
	"cropcare/internal/enrichment"
	"cropcare/internal/external"
	"cropcare/internal/history"
	"cropcare/internal/location"
	"cropcare/internal/risk"
	"cropcare/internal/telemetry"
	"cropcare/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	// SSM resolution is skipped when APP_ENV=local, so the provider is only
	// built for deployed environments.
	var secrets config.SecretProvider
	if env := os.Getenv("APP_ENV"); env != "" && env != "local" {
		secrets = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}
	cfg, err := config.LoadConfig(secrets)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.RequireHistory(); err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("starting CropCare API",
		"env", cfg.Environment,
		"version", cfg.Build.Version,
		"port", cfg.Server.Port,
		"history_backend", cfg.History.Backend,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	srv, err := buildServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return runHTTPServer(srv, cfg, logger)
}

// buildServer wires every dependency and mounts the routes. ctx bounds
// startup work only (AWS config, database connect and migration).
func buildServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	metrics, err := newCollector(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	srv.Metrics = metrics
	srv.RateLimitStore = core.NewMemoryRateLimitStore(types.RealClock{})

	registry := external.NewClientRegistry(cfg, logger)

	aggregator, err := enrichment.NewFromConfig(cfg, registry, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("building enrichment aggregator: %w", err)
	}

	resolver, err := location.NewProviderFromConfig(cfg.Location, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("loading regions: %w", err)
	}

	severity, err := risk.LoadSeverityTable(cfg.Risk.SeverityKeywordsFile)
	if err != nil {
		return nil, fmt.Errorf("loading severity keywords: %w", err)
	}

	store, err := newHistoryStore(ctx, cfg, srv, registry)
	if err != nil {
		return nil, err
	}
	historySvc := history.NewService(store, severity, types.RealClock{}, logger)

	assessmentSvc := assessment.NewService(registry.Inference, aggregator,
		assessment.WithHistory(historySvc),
		assessment.WithMetrics(metrics),
		assessment.WithLogger(logger),
	)

	val := srv.Validator
	assessments := handlers.NewAssessmentHandler(assessmentSvc, resolver, val,
		srv.RateLimit(cfg.Server.AssessmentRateLimit, cfg.Server.AssessmentRateWindow), logger)
	enrich := handlers.NewEnrichmentHandler(aggregator, resolver, val, logger)
	records := handlers.NewHistoryHandler(historySvc, val, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		assessments.RegisterRoutes,
		enrich.RegisterRoutes,
		records.RegisterRoutes,
	)

	srv.MountRoutes()
	return srv, nil
}

// newHistoryStore opens the configured history backend. The postgres pool
// is registered with the server for health checks and shutdown.
func newHistoryStore(ctx context.Context, cfg *config.Config, srv *core.Server, reg *external.ClientRegistry) (types.HistoryStore, error) {
	if cfg.History.Backend == config.HistoryBackendHTTP {
		if reg.History == nil {
			return nil, errors.New("http history backend selected but no client was built")
		}
		return reg.History, nil
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := db.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	srv.HealthProbes = append(srv.HealthProbes, db.HealthProbe{DB: pool})
	srv.Closers = append(srv.Closers, pool.Close)
	return db.NewHistoryRepository(pool), nil
}

// newCollector returns the CloudWatch collector when enabled, otherwise a
// collector that writes metrics to the log at debug level.
func newCollector(ctx context.Context, cfg *config.Config, logger *slog.Logger) (telemetry.Collector, error) {
	obs := cfg.Observability
	if !obs.EnableCloudWatch {
		return telemetry.NewLogCollector(logger), nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(obs.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if obs.AWSEndpointURL != "" {
			o.BaseEndpoint = aws.String(obs.AWSEndpointURL)
		}
	})
	return telemetry.NewCloudWatchCollector(client, obs.MetricNamespace, logger), nil
}

// runHTTPServer starts a standard HTTP server and blocks until a shutdown
// signal is received.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	// WriteTimeout covers the inference budget plus enrichment.
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with a 10-second deadline.
	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Release server resources (DB pool, etc.).
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
