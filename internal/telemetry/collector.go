// Package telemetry records request and provider-outcome metrics. The API
// publishes to CloudWatch in cloud environments and to the structured log
// locally; both satisfy Collector.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"cropcare/internal/types"
)

// Outcome is the result of one provider lookup as seen by the pipeline.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
	OutcomeCacheHit Outcome = "cache_hit"
)

// Collector records API and provider telemetry. RecordRequest matches the
// HTTP chassis' MetricsCollector so one collector serves both layers.
type Collector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
	RecordProvider(ctx context.Context, provider types.Provider, outcome Outcome, category types.ErrorCategory, duration time.Duration)
	RecordAssessment(ctx context.Context, fields int, inferenceOK bool)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordRequest(string, string, string, time.Duration) {}
func (Nop) RecordProvider(context.Context, types.Provider, Outcome, types.ErrorCategory, time.Duration) {
}
func (Nop) RecordAssessment(context.Context, int, bool) {}

// LogCollector writes metrics as debug-level log lines. Used locally where
// CloudWatch is not available.
type LogCollector struct {
	logger *slog.Logger
}

// NewLogCollector creates a collector that logs through logger.
func NewLogCollector(logger *slog.Logger) *LogCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogCollector{logger: logger.With("component", "metrics")}
}

func (c *LogCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	c.logger.Debug("metric",
		"name", types.MetricAPILatency,
		"method", method,
		"endpoint", endpoint,
		"status", status,
		"duration_ms", duration.Milliseconds(),
	)
}

func (c *LogCollector) RecordProvider(ctx context.Context, provider types.Provider, outcome Outcome, category types.ErrorCategory, duration time.Duration) {
	attrs := []any{
		"name", metricForOutcome(outcome),
		"provider", string(provider),
		"duration_ms", duration.Milliseconds(),
	}
	if category != types.CategoryNone {
		attrs = append(attrs, "category", string(category))
	}
	c.logger.DebugContext(ctx, "metric", attrs...)
}

func (c *LogCollector) RecordAssessment(ctx context.Context, fields int, inferenceOK bool) {
	c.logger.DebugContext(ctx, "metric",
		"name", types.MetricAssessment,
		"fields", fields,
		"inference_ok", inferenceOK,
	)
}

func metricForOutcome(o Outcome) string {
	switch o {
	case OutcomeFailure:
		return types.MetricProviderFailure
	case OutcomeCacheHit:
		return types.MetricCacheHit
	default:
		return types.MetricProviderSuccess
	}
}

var (
	_ Collector = Nop{}
	_ Collector = (*LogCollector)(nil)
)
