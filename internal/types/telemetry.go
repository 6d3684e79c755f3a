package types

// Telemetry metric names for CloudWatch.
const (
	MetricProviderLatency = "ProviderLatency"
	MetricProviderFailure = "ProviderFailure"
	MetricProviderSuccess = "ProviderSuccess"
	MetricCacheHit        = "EnrichmentCacheHit"
	MetricAPILatency      = "APILatency"
	MetricAssessment      = "AssessmentCompleted"

	DimProvider = "Provider"
	DimCategory = "Category"
	DimEndpoint = "Endpoint"
	DimStatus   = "Status"

	MetricNamespace = "CropCare"
)
