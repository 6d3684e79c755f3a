// Package enrichment fans out the weather, air-quality, geocode and alert
// lookups for a coordinate and merges their outcomes into one Assessment.
//
// Every provider is independent: one provider's latency or failure never
// delays or blocks another, and each outcome is merged as soon as it settles.
// A failed provider leaves its field absent (or applies its DegradePolicy
// rule). Results that settle after the invocation's context is cancelled are
// discarded.
package enrichment

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cropcare/internal/external"
	"cropcare/internal/risk"
	"cropcare/internal/telemetry"
	"cropcare/internal/types"
)

// Sources are the enrichment clients. A nil source is not requested.
type Sources struct {
	Weather    external.WeatherSource
	AirQuality external.AirQualitySource
	Geocode    external.GeocodeSource
	Alerts     external.AlertsSource
}

// SourcesFromRegistry picks the enrichment clients out of a registry.
// Providers disabled by configuration stay nil.
func SourcesFromRegistry(reg *external.ClientRegistry) Sources {
	return Sources{
		Weather:    reg.Weather,
		AirQuality: reg.AirQuality,
		Geocode:    reg.Geocode,
		Alerts:     reg.Alerts,
	}
}

// Config wires an Aggregator.
type Config struct {
	Sources Sources
	Policy  DegradePolicy
	// Cache is optional; nil disables caching.
	Cache       *Cache
	CacheMaxAge time.Duration
	Metrics     telemetry.Collector
	Logger      *slog.Logger
}

// Aggregator runs enrichment fan-outs. It is stateless between calls apart
// from the optional cache and safe for concurrent use.
type Aggregator struct {
	src     Sources
	policy  DegradePolicy
	cache   *Cache
	maxAge  time.Duration
	metrics telemetry.Collector
	logger  *slog.Logger
}

// NewAggregator validates the policy and builds an Aggregator.
func NewAggregator(cfg Config) (*Aggregator, error) {
	policy := cfg.Policy
	if policy == nil {
		policy = DefaultPolicy()
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.Nop{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		src:     cfg.Sources,
		policy:  policy,
		cache:   cfg.Cache,
		maxAge:  cfg.CacheMaxAge,
		metrics: metrics,
		logger:  logger.With("component", "enrichment"),
	}, nil
}

// Cache returns the aggregator's cache (nil when disabled).
func (a *Aggregator) Cache() *Cache { return a.cache }

// Request is the input of one fan-out.
type Request struct {
	// Coordinate drives every lookup; nil means nothing is fetched.
	Coordinate *types.Coordinate
	Source     types.LocationSource
	// Detection is attached to the Assessment as-is. It does not trigger
	// any lookup.
	Detection *types.DetectionResult
}

// Update reports one settled provider.
type Update struct {
	Provider  types.Provider
	Err       error
	FromCache bool
	// Assessment is a snapshot taken right after this outcome was merged.
	// The receiver owns it.
	Assessment *types.Assessment
}

// Enrich runs a fan-out and returns the Assessment once every requested
// provider has settled.
func (a *Aggregator) Enrich(ctx context.Context, req Request) *types.Assessment {
	return a.EnrichStream(ctx, req, nil)
}

// EnrichStream is Enrich with a callback invoked after each provider's
// outcome is merged, so earlier results are usable before the slowest call
// settles. Callbacks are serialized; onUpdate must not block for long.
//
// If ctx is cancelled mid-flight, outcomes that settle afterwards are
// discarded and no further callbacks fire.
func (a *Aggregator) EnrichStream(ctx context.Context, req Request, onUpdate func(Update)) *types.Assessment {
	b := &builder{
		ctx:      ctx,
		asm:      &types.Assessment{Detection: req.Detection, Source: req.Source},
		onUpdate: onUpdate,
	}
	if req.Coordinate == nil {
		return b.asm.Clone()
	}
	c := *req.Coordinate
	b.asm.Coordinate = &c

	var g errgroup.Group
	if a.src.Weather != nil {
		g.Go(func() error {
			w, cached, err := lookup(ctx, a, types.ProviderWeather, &c, func(ctx context.Context) (*types.WeatherSnapshot, error) {
				return a.src.Weather.CurrentWeather(ctx, c)
			})
			b.settle(types.ProviderWeather, err, cached, func(asm *types.Assessment) {
				if err != nil {
					w = a.defaultWeather()
				}
				if w != nil {
					asm.Weather = w
					asm.Risk = risk.Score(w)
				}
			})
			return nil
		})
	}
	if a.src.AirQuality != nil {
		g.Go(func() error {
			aq, cached, err := lookup(ctx, a, types.ProviderAirQuality, &c, func(ctx context.Context) (*types.AirQualitySnapshot, error) {
				return a.src.AirQuality.CurrentAirQuality(ctx, c)
			})
			b.settle(types.ProviderAirQuality, err, cached, func(asm *types.Assessment) {
				if err != nil {
					aq = a.defaultAir()
				}
				if aq != nil {
					asm.Air = aq
				}
			})
			return nil
		})
	}
	if a.src.Geocode != nil {
		g.Go(func() error {
			label, cached, err := lookup(ctx, a, types.ProviderGeocode, &c, func(ctx context.Context) (*types.LocationLabel, error) {
				return a.src.Geocode.ReverseGeocode(ctx, c)
			})
			b.settle(types.ProviderGeocode, err, cached, func(asm *types.Assessment) {
				if err != nil {
					label = a.defaultLabel()
				}
				if label != nil {
					asm.Location = label
				}
			})
			return nil
		})
	}
	if a.src.Alerts != nil {
		g.Go(func() error {
			// The alert list is not coordinate-specific; cache it globally and
			// filter per request.
			all, cached, err := lookup(ctx, a, types.ProviderAlerts, nil, func(ctx context.Context) ([]types.RegionalAlert, error) {
				return a.src.Alerts.RegionalAlerts(ctx)
			})
			b.settle(types.ProviderAlerts, err, cached, func(asm *types.Assessment) {
				if err != nil {
					all = a.defaultAlerts()
					if all == nil {
						return
					}
				}
				asm.Alerts = NearbyAlerts(all, c)
			})
			return nil
		})
	}
	_ = g.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.asm.Clone()
}

// Alerts lists regional alerts through the cache. Unlike the fan-out it
// returns the failure so the caller can report it.
func (a *Aggregator) Alerts(ctx context.Context) ([]types.RegionalAlert, error) {
	if a.src.Alerts == nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable, "regional alerts are disabled", nil)
	}
	all, _, err := lookup(ctx, a, types.ProviderAlerts, nil, func(ctx context.Context) ([]types.RegionalAlert, error) {
		return a.src.Alerts.RegionalAlerts(ctx)
	})
	if err != nil {
		if def := a.defaultAlerts(); def != nil {
			return def, nil
		}
		return nil, err
	}
	return all, nil
}

// builder owns the Assessment under construction for one invocation. No
// other invocation writes into it.
type builder struct {
	ctx      context.Context
	onUpdate func(Update)

	mu  sync.Mutex
	asm *types.Assessment
}

func (b *builder) settle(p types.Provider, err error, cached bool, apply func(*types.Assessment)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx.Err() != nil {
		return
	}
	apply(b.asm)
	if b.onUpdate != nil {
		b.onUpdate(Update{Provider: p, Err: err, FromCache: cached, Assessment: b.asm.Clone()})
	}
}

// lookup runs one provider call through the cache and records its outcome.
// Only successes are cached.
func lookup[T any](ctx context.Context, a *Aggregator, p types.Provider, c *types.Coordinate, call func(context.Context) (T, error)) (T, bool, error) {
	key := KeyFor(p, c, a.maxAge)
	if v, ok := a.cache.Get(key); ok {
		if t, ok := v.(T); ok {
			a.metrics.RecordProvider(ctx, p, telemetry.OutcomeCacheHit, types.CategoryNone, 0)
			return t, true, nil
		}
	}

	start := time.Now()
	v, err := call(ctx)
	elapsed := time.Since(start)
	if err == nil && isNil(v) {
		err = &external.Failure{Provider: p, Kind: external.KindDecode, Err: errors.New("empty result")}
	}
	if err != nil {
		var zero T
		if ctx.Err() != nil {
			a.logger.DebugContext(ctx, "enrichment lookup abandoned", "provider", string(p))
			return zero, false, err
		}
		a.metrics.RecordProvider(ctx, p, telemetry.OutcomeFailure, types.CategoryOf(err), elapsed)
		attrs := append(external.LogAttrs(err), "policy", a.policy.Rule(p).OnFailure.String())
		if _, ok := external.AsFailure(err); !ok {
			attrs = append(attrs, "provider", string(p))
		}
		if c != nil {
			attrs = append(attrs, "coordinate", c.String())
		}
		a.logger.WarnContext(ctx, "enrichment provider failed, degrading", attrs...)
		return zero, false, err
	}

	a.metrics.RecordProvider(ctx, p, telemetry.OutcomeSuccess, types.CategoryNone, elapsed)
	a.cache.Put(key, v)
	return v, false, nil
}

func isNil(v any) bool {
	switch t := v.(type) {
	case *types.WeatherSnapshot:
		return t == nil
	case *types.AirQualitySnapshot:
		return t == nil
	case *types.LocationLabel:
		return t == nil
	default:
		return false
	}
}

func (a *Aggregator) defaultWeather() *types.WeatherSnapshot {
	r := a.policy.Rule(types.ProviderWeather)
	if r.OnFailure != UseDefault {
		return nil
	}
	w := r.Default.(types.WeatherSnapshot)
	return &w
}

func (a *Aggregator) defaultAir() *types.AirQualitySnapshot {
	r := a.policy.Rule(types.ProviderAirQuality)
	if r.OnFailure != UseDefault {
		return nil
	}
	aq := r.Default.(types.AirQualitySnapshot)
	return &aq
}

func (a *Aggregator) defaultLabel() *types.LocationLabel {
	r := a.policy.Rule(types.ProviderGeocode)
	if r.OnFailure != UseDefault {
		return nil
	}
	l := r.Default.(types.LocationLabel)
	return &l
}

func (a *Aggregator) defaultAlerts() []types.RegionalAlert {
	r := a.policy.Rule(types.ProviderAlerts)
	if r.OnFailure != UseDefault {
		return nil
	}
	alerts := r.Default.([]types.RegionalAlert)
	return append(make([]types.RegionalAlert, 0, len(alerts)), alerts...)
}
