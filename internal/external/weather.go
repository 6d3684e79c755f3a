package external

import (
	"context"
	"fmt"
	"net/url"

	"cropcare/internal/types"
)

// openMeteoCurrentFields is the "current" variable list requested from the
// forecast API, in the order the response normalizer reads them.
const openMeteoCurrentFields = "temperature_2m,relative_humidity_2m,rain,weather_code,wind_speed_10m,uv_index,visibility"

// WeatherClient reads current conditions from an Open-Meteo compatible
// forecast endpoint.
type WeatherClient struct {
	endpoint *EndpointClient
	url      string
}

// NewWeatherClient creates a WeatherClient on top of an EndpointClient.
func NewWeatherClient(endpoint *EndpointClient, baseURL string) *WeatherClient {
	return &WeatherClient{endpoint: endpoint, url: baseURL}
}

type openMeteoWeather struct {
	Current *struct {
		Temperature *float64 `json:"temperature_2m"`
		Humidity    *float64 `json:"relative_humidity_2m"`
		Rain        *float64 `json:"rain"`
		WeatherCode *int     `json:"weather_code"`
		WindSpeed   *float64 `json:"wind_speed_10m"`
		UVIndex     *float64 `json:"uv_index"`
		Visibility  *float64 `json:"visibility"` // meters
	} `json:"current"`
}

// CurrentWeather fetches and normalizes the current conditions at c.
func (w *WeatherClient) CurrentWeather(ctx context.Context, c types.Coordinate) (*types.WeatherSnapshot, error) {
	q := url.Values{}
	q.Set("latitude", formatFloat(c.Lat))
	q.Set("longitude", formatFloat(c.Lon))
	q.Set("current", openMeteoCurrentFields)
	q.Set("wind_speed_unit", "kmh")

	var resp openMeteoWeather
	if err := w.endpoint.GetJSON(ctx, w.url, q, &resp); err != nil {
		return nil, err
	}
	return normalizeWeather(resp)
}

func normalizeWeather(resp openMeteoWeather) (*types.WeatherSnapshot, error) {
	malformed := func(format string, args ...any) error {
		return &Failure{Provider: types.ProviderWeather, Kind: KindDecode, Err: fmt.Errorf(format, args...)}
	}
	cur := resp.Current
	if cur == nil {
		return nil, malformed("missing current block")
	}
	required := []struct {
		name string
		v    *float64
	}{
		{"temperature_2m", cur.Temperature},
		{"relative_humidity_2m", cur.Humidity},
		{"rain", cur.Rain},
		{"wind_speed_10m", cur.WindSpeed},
		{"uv_index", cur.UVIndex},
		{"visibility", cur.Visibility},
	}
	for _, f := range required {
		if f.v == nil {
			return nil, malformed("missing %s", f.name)
		}
	}
	if cur.WeatherCode == nil {
		return nil, malformed("missing weather_code")
	}

	snap := &types.WeatherSnapshot{
		TempC:        *cur.Temperature,
		HumidityPct:  *cur.Humidity,
		RainMM:       *cur.Rain,
		WindKph:      *cur.WindSpeed,
		UVIndex:      *cur.UVIndex,
		VisibilityKm: *cur.Visibility / 1000,
		WeatherCode:  *cur.WeatherCode,
	}
	switch {
	case snap.HumidityPct < 0 || snap.HumidityPct > 100:
		return nil, malformed("humidity %v outside [0, 100]", snap.HumidityPct)
	case snap.RainMM < 0, snap.WindKph < 0, snap.UVIndex < 0, snap.VisibilityKm < 0:
		return nil, malformed("negative reading in %+v", *snap)
	}
	return snap, nil
}
