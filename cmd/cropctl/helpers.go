package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"cropcare/internal/config"
	"cropcare/internal/enrichment"
	"cropcare/internal/external"
	"cropcare/internal/location"
	"cropcare/internal/telemetry"
)

// env is everything an enrichment command needs.
type env struct {
	cfg        *config.Config
	logger     *slog.Logger
	aggregator *enrichment.Aggregator
}

// loadEnv reads configuration from the environment and builds the
// enrichment pipeline. Logs go to stderr so stdout stays machine-readable.
// Operators run cropctl outside AWS, so *_SSM_PARAM references resolve
// against other environment variables.
func loadEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := config.LoadConfig(config.NewEnvVarProvider())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.LogLevel
	if override, _ := cmd.Flags().GetString("log-level"); override != "" {
		level = override
	}
	logger := newLogger(cmd.ErrOrStderr(), level)

	reg := external.NewClientRegistry(cfg, logger)
	agg, err := enrichment.NewFromConfig(cfg, reg, telemetry.NewLogCollector(logger), logger)
	if err != nil {
		return nil, fmt.Errorf("build aggregator: %w", err)
	}
	return &env{cfg: cfg, logger: logger, aggregator: agg}, nil
}

func (e *env) locationProvider(sensor location.Sensor) (*location.Provider, error) {
	p, err := location.NewProviderFromConfig(e.cfg.Location, sensor, e.logger)
	if err != nil {
		return nil, fmt.Errorf("location: %w", err)
	}
	return p, nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
