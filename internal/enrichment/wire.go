package enrichment

import (
	"log/slog"

	"cropcare/internal/config"
	"cropcare/internal/external"
	"cropcare/internal/telemetry"
)

// NewFromConfig builds the Aggregator used by the API server and the CLI:
// sources from the registry, the default degrade policy, and a cache when
// ENRICHMENT_CACHE_MAX_AGE is positive.
func NewFromConfig(cfg *config.Config, reg *external.ClientRegistry, metrics telemetry.Collector, logger *slog.Logger) (*Aggregator, error) {
	var cache *Cache
	if cfg.Enrichment.CacheMaxAge > 0 {
		cache = NewCache(nil)
	}
	return NewAggregator(Config{
		Sources:     SourcesFromRegistry(reg),
		Cache:       cache,
		CacheMaxAge: cfg.Enrichment.CacheMaxAge,
		Metrics:     metrics,
		Logger:      logger,
	})
}
