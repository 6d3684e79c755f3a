// Package core provides the API chassis for CropCare. It creates a chi
// router and enforces cross-cutting concerns (panic recovery, request
// timeouts, logging, metrics, account scoping, rate limiting) before
// requests reach domain-specific handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cropcare/internal/config"
)

// MetricsCollector defines the interface for recording API telemetry.
// telemetry.Collector satisfies it.
type MetricsCollector interface {
	// RecordRequest records API request metrics including latency and count.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// RouteRegistrar mounts a group of handlers on the /v1 router.
type RouteRegistrar func(r chi.Router)

// Server encapsulates all dependencies for the CropCare API, allowing for
// easy injection during testing and distinct configuration for different
// environments.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector

	// RateLimitStore backs the per-account limit on expensive routes. Nil
	// disables limiting.
	RateLimitStore RateLimitStore

	// HealthProbes are executed by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars are populated by main.go. This indirection avoids
	// import cycles between core and handler packages.
	V1RouteRegistrars []RouteRegistrar

	// Closers are released in order by Shutdown (database pool, metrics
	// flushers).
	Closers []func()

	router *chi.Mux
}

// NewServer initializes dependencies and prepares the server for route
// mounting. It performs a "fail-fast" check on critical configuration.
//
// The caller is responsible for mounting routes (via MountRoutes) after
// construction so tests can customize route registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases server resources registered in Closers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	for i := len(s.Closers) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("shutdown interrupted: %w", err)
		}
		s.Closers[i]()
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
