package enrichment

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"cropcare/internal/external"
	"cropcare/internal/types"
)

type weatherFunc func(ctx context.Context, c types.Coordinate) (*types.WeatherSnapshot, error)

func (f weatherFunc) CurrentWeather(ctx context.Context, c types.Coordinate) (*types.WeatherSnapshot, error) {
	return f(ctx, c)
}

type airFunc func(ctx context.Context, c types.Coordinate) (*types.AirQualitySnapshot, error)

func (f airFunc) CurrentAirQuality(ctx context.Context, c types.Coordinate) (*types.AirQualitySnapshot, error) {
	return f(ctx, c)
}

type geocodeFunc func(ctx context.Context, c types.Coordinate) (*types.LocationLabel, error)

func (f geocodeFunc) ReverseGeocode(ctx context.Context, c types.Coordinate) (*types.LocationLabel, error) {
	return f(ctx, c)
}

type alertsFunc func(ctx context.Context) ([]types.RegionalAlert, error)

func (f alertsFunc) RegionalAlerts(ctx context.Context) ([]types.RegionalAlert, error) {
	return f(ctx)
}

var (
	coordA = types.NewCoordinate(23.8103, 90.4125, 20)
	coordB = types.NewCoordinate(24.8949, 91.8687, 20)
)

// weatherAt derives a distinct snapshot from the coordinate so results can
// be attributed to the coordinate they were fetched for.
func weatherAt(c types.Coordinate) *types.WeatherSnapshot {
	return &types.WeatherSnapshot{TempC: c.Lat, HumidityPct: 50, WindKph: 5, UVIndex: 2, VisibilityKm: 10, WeatherCode: int(c.Lon)}
}

func airAt(c types.Coordinate) *types.AirQualitySnapshot {
	aqi := int(c.Lat * 2)
	return &types.AirQualitySnapshot{AQI: aqi, Category: types.CategoryForAQI(aqi)}
}

func labelAt(c types.Coordinate) *types.LocationLabel {
	return &types.LocationLabel{Text: "near " + c.String()}
}

func transportFailure(p types.Provider) error {
	return &external.Failure{Provider: p, Kind: external.KindTimeout, Err: context.DeadlineExceeded}
}

// countingSources returns sources that answer from the coordinate and count
// their calls.
type countingSources struct {
	weather, air, geocode, alerts atomic.Int32
	alertList                     []types.RegionalAlert
}

func (cs *countingSources) sources() Sources {
	return Sources{
		Weather: weatherFunc(func(_ context.Context, c types.Coordinate) (*types.WeatherSnapshot, error) {
			cs.weather.Add(1)
			return weatherAt(c), nil
		}),
		AirQuality: airFunc(func(_ context.Context, c types.Coordinate) (*types.AirQualitySnapshot, error) {
			cs.air.Add(1)
			return airAt(c), nil
		}),
		Geocode: geocodeFunc(func(_ context.Context, c types.Coordinate) (*types.LocationLabel, error) {
			cs.geocode.Add(1)
			return labelAt(c), nil
		}),
		Alerts: alertsFunc(func(context.Context) ([]types.RegionalAlert, error) {
			cs.alerts.Add(1)
			return cs.alertList, nil
		}),
	}
}

// gate blocks a fake call until released, ignoring cancellation so that the
// call can deliver a late result.
type gate struct {
	once    sync.Once
	ch      chan struct{}
	entered chan struct{}
}

func newGate() *gate {
	return &gate{ch: make(chan struct{}), entered: make(chan struct{}, 16)}
}

func (g *gate) wait() {
	g.entered <- struct{}{}
	<-g.ch
}

func (g *gate) release() { g.once.Do(func() { close(g.ch) }) }

// mutableClock is a Clock tests can advance.
type mutableClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *mutableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *mutableClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
