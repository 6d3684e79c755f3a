package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"cropcare/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// requestMetricTimeout bounds the publish for RecordRequest, which has no
// caller context.
const requestMetricTimeout = 2 * time.Second

// CloudWatchCollector publishes metrics with PutMetricData.
//
// Metrics emitted:
//   - APILatency: Dims {Endpoint, Status}
//   - ProviderSuccess / ProviderFailure / EnrichmentCacheHit: Dims {Provider} (+ {Category} on failure)
//   - ProviderLatency: Dims {Provider}
//   - AssessmentCompleted: Dims {Status}
//
// Publish failures are logged and never returned.
type CloudWatchCollector struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchCollector creates a collector publishing under namespace
// (types.MetricNamespace when empty).
func NewCloudWatchCollector(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchCollector {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchCollector{client: client, namespace: namespace, logger: logger}
}

func (m *CloudWatchCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), requestMetricTimeout)
	defer cancel()

	m.put(ctx, "api latency", cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricAPILatency),
		Value:      aws.Float64(float64(duration.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{
			dim(types.DimEndpoint, method+" "+endpoint),
			dim(types.DimStatus, status),
		},
	})
}

func (m *CloudWatchCollector) RecordProvider(ctx context.Context, provider types.Provider, outcome Outcome, category types.ErrorCategory, duration time.Duration) {
	countDims := []cwtypes.Dimension{dim(types.DimProvider, string(provider))}
	if outcome == OutcomeFailure && category != types.CategoryNone {
		countDims = append(countDims, dim(types.DimCategory, string(category)))
	}
	data := []cwtypes.MetricDatum{{
		MetricName: aws.String(metricForOutcome(outcome)),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: countDims,
	}}
	if outcome != OutcomeCacheHit {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricProviderLatency),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: []cwtypes.Dimension{dim(types.DimProvider, string(provider))},
		})
	}
	m.put(ctx, "provider outcome", data...)
}

func (m *CloudWatchCollector) RecordAssessment(ctx context.Context, fields int, inferenceOK bool) {
	status := "ok"
	if !inferenceOK {
		status = "inference_failed"
	}
	m.put(ctx, "assessment", cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricAssessment),
		Value:      aws.Float64(float64(fields)),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{dim(types.DimStatus, status)},
	})
}

func (m *CloudWatchCollector) put(ctx context.Context, what string, data ...cwtypes.MetricDatum) {
	// A cancelled request context must not drop the datapoint.
	ctx = context.WithoutCancel(ctx)
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record "+what+" metric", "error", err.Error())
	}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

var _ Collector = (*CloudWatchCollector)(nil)
