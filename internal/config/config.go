// Package config defines the process configuration for the CropCare API and
// CLI. Configuration is loaded once at startup and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format fails startup.
package config

import (
	"time"

	"cropcare/internal/types"
)

// SecretString is an alias for types.SecretString so config consumers do not
// need to import types just to unmask a credential.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the subset they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"cropcare-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	History       HistoryConfig
	Providers     ProviderConfig
	Location      LocationConfig
	Enrichment    EnrichmentConfig
	Risk          RiskConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"90s"`

	// AssessmentRateLimit caps inference submissions per account (or client
	// address) per AssessmentRateWindow. Zero disables the limit.
	AssessmentRateLimit  int           `envconfig:"ASSESSMENT_RATE_LIMIT" default:"60" validate:"gte=0"`
	AssessmentRateWindow time.Duration `envconfig:"ASSESSMENT_RATE_WINDOW" default:"1h"`
}

// DatabaseConfig holds the Postgres connection used by the history backend.
type DatabaseConfig struct {
	URL               SecretString  `envconfig:"DATABASE_URL"`
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// History backends.
const (
	HistoryBackendPostgres = "postgres"
	HistoryBackendHTTP     = "http"
)

// HistoryConfig selects where assessment summaries are persisted.
type HistoryConfig struct {
	Backend  string       `envconfig:"HISTORY_BACKEND" default:"postgres" validate:"oneof=postgres http"`
	APIURL   string       `envconfig:"HISTORY_API_URL" validate:"omitempty,url"`
	APIToken SecretString `envconfig:"HISTORY_API_TOKEN"`
}

// ProviderConfig holds remote endpoint locations and per-call budgets.
type ProviderConfig struct {
	InferenceURL      string        `envconfig:"INFERENCE_URL" default:"http://localhost:8000/predict" validate:"required,url"`
	InferenceTimeout  time.Duration `envconfig:"INFERENCE_TIMEOUT" default:"60s"`
	WeatherURL        string        `envconfig:"WEATHER_URL" default:"https://api.open-meteo.com/v1/forecast" validate:"required,url"`
	AirQualityURL     string        `envconfig:"AIR_QUALITY_URL" default:"https://air-quality-api.open-meteo.com/v1/air-quality" validate:"required,url"`
	GeocodeURL        string        `envconfig:"GEOCODE_URL" default:"https://nominatim.openstreetmap.org/reverse" validate:"required,url"`
	AlertsURL         string        `envconfig:"ALERTS_URL" validate:"omitempty,url"`
	EnrichmentTimeout time.Duration `envconfig:"ENRICHMENT_TIMEOUT" default:"8s"`
	UserAgent         string        `envconfig:"PROVIDER_USER_AGENT" default:"CropCare/1.0"`
}

// LocationConfig holds the fallback coordinate and the manual region table.
type LocationConfig struct {
	DefaultLat       float64 `envconfig:"DEFAULT_LAT" default:"23.8103" validate:"gte=-90,lte=90"`
	DefaultLon       float64 `envconfig:"DEFAULT_LON" default:"90.4125" validate:"gte=-180,lte=180"`
	DefaultAccuracyM float64 `envconfig:"DEFAULT_ACCURACY_M" default:"5000" validate:"gte=0"`
	RegionsFile      string  `envconfig:"REGIONS_FILE"`
}

// EnrichmentConfig toggles optional providers and sets the cache lifetime.
type EnrichmentConfig struct {
	CacheMaxAge      time.Duration `envconfig:"ENRICHMENT_CACHE_MAX_AGE" default:"5m"`
	EnableAirQuality bool          `envconfig:"ENABLE_AIR_QUALITY" default:"true"`
	EnableGeocode    bool          `envconfig:"ENABLE_GEOCODE" default:"true"`
	EnableAlerts     bool          `envconfig:"ENABLE_ALERTS" default:"false"`
}

// RiskConfig points at an override for the embedded severity keyword table.
type RiskConfig struct {
	SeverityKeywordsFile string `envconfig:"SEVERITY_KEYWORDS_FILE"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace  string `envconfig:"METRIC_NAMESPACE" default:"CropCare"`
	EnableCloudWatch bool   `envconfig:"ENABLE_CLOUDWATCH" default:"false"`
	AWSRegion        string `envconfig:"AWS_REGION" default:"us-east-1"`
	// LocalStack Support (Empty in Prod)
	AWSEndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
