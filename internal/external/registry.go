package external

import (
	"log/slog"
	"net/http"

	"cropcare/internal/config"
	"cropcare/internal/types"
)

// ClientRegistry holds every outbound client the application uses. A nil
// source means the provider is disabled by configuration.
type ClientRegistry struct {
	Inference  InferenceService
	Weather    WeatherSource
	AirQuality AirQualitySource
	Geocode    GeocodeSource
	Alerts     AlertsSource

	// History is set only when HISTORY_BACKEND=http.
	History *HistoryClient
}

// RegistryOption is a functional option for configuring a ClientRegistry.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	httpClient  *http.Client
	clock       types.Clock
	baseOptions []BaseClientOption
}

// WithHTTPClient shares one *http.Client (and its connection pool) across
// providers.
func WithHTTPClient(c *http.Client) RegistryOption {
	return func(rc *registryConfig) { rc.httpClient = c }
}

// WithClock sets the clock used to stamp inference results.
func WithClock(c types.Clock) RegistryOption {
	return func(rc *registryConfig) { rc.clock = c }
}

// WithBaseClientOptions applies options to every provider's BaseClient.
func WithBaseClientOptions(opts ...BaseClientOption) RegistryOption {
	return func(rc *registryConfig) { rc.baseOptions = append(rc.baseOptions, opts...) }
}

// NewClientRegistry builds provider clients from configuration. Each provider
// gets its own circuit breaker; enrichment lookups share the enrichment
// timeout while inference uses its longer budget.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger, opts ...RegistryOption) *ClientRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	rc := &registryConfig{}
	for _, opt := range opts {
		opt(rc)
	}

	p := cfg.Providers
	enrichmentEndpoint := func(provider types.Provider) *EndpointClient {
		return NewEndpointClient(EndpointConfig{
			Provider:   provider,
			HTTPClient: rc.httpClient,
			Timeout:    p.EnrichmentTimeout,
			Retry:      DefaultRetryPolicy(),
			UserAgent:  p.UserAgent,
			Logger:     logger,
			Options:    rc.baseOptions,
		})
	}

	reg := &ClientRegistry{
		Inference: NewInferenceClient(InferenceClientConfig{
			URL:        p.InferenceURL,
			Timeout:    p.InferenceTimeout,
			UserAgent:  p.UserAgent,
			Clock:      rc.clock,
			Logger:     logger,
			HTTPClient: rc.httpClient,
			Options:    rc.baseOptions,
		}),
		Weather: NewWeatherClient(enrichmentEndpoint(types.ProviderWeather), p.WeatherURL),
	}

	if cfg.Enrichment.EnableAirQuality {
		reg.AirQuality = NewAirQualityClient(enrichmentEndpoint(types.ProviderAirQuality), p.AirQualityURL)
	}
	if cfg.Enrichment.EnableGeocode {
		reg.Geocode = NewGeocodeClient(enrichmentEndpoint(types.ProviderGeocode), p.GeocodeURL)
	}
	if cfg.Enrichment.EnableAlerts && p.AlertsURL != "" {
		reg.Alerts = NewAlertsClient(enrichmentEndpoint(types.ProviderAlerts), p.AlertsURL, logger)
	}

	if cfg.History.Backend == config.HistoryBackendHTTP {
		reg.History = NewHistoryClient(NewEndpointClient(EndpointConfig{
			Provider:   types.ProviderHistory,
			HTTPClient: rc.httpClient,
			Timeout:    p.EnrichmentTimeout,
			Retry:      NoRetry(),
			UserAgent:  p.UserAgent,
			Logger:     logger,
			Options:    rc.baseOptions,
		}), cfg.History.APIURL, cfg.History.APIToken)
	}

	logger.Info("external clients initialized",
		"air_quality", reg.AirQuality != nil,
		"geocode", reg.Geocode != nil,
		"alerts", reg.Alerts != nil,
		"history_backend", cfg.History.Backend,
	)
	return reg
}
