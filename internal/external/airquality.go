package external

import (
	"context"
	"fmt"
	"math"
	"net/url"

	"cropcare/internal/types"
)

// AirQualityClient reads the current US AQI from an Open-Meteo compatible
// air-quality endpoint. The category is always derived locally.
type AirQualityClient struct {
	endpoint *EndpointClient
	url      string
}

// NewAirQualityClient creates an AirQualityClient.
func NewAirQualityClient(endpoint *EndpointClient, baseURL string) *AirQualityClient {
	return &AirQualityClient{endpoint: endpoint, url: baseURL}
}

type openMeteoAirQuality struct {
	Current *struct {
		USAQI *float64 `json:"us_aqi"`
	} `json:"current"`
}

// CurrentAirQuality fetches the AQI at c.
func (a *AirQualityClient) CurrentAirQuality(ctx context.Context, c types.Coordinate) (*types.AirQualitySnapshot, error) {
	q := url.Values{}
	q.Set("latitude", formatFloat(c.Lat))
	q.Set("longitude", formatFloat(c.Lon))
	q.Set("current", "us_aqi")

	var resp openMeteoAirQuality
	if err := a.endpoint.GetJSON(ctx, a.url, q, &resp); err != nil {
		return nil, err
	}
	if resp.Current == nil || resp.Current.USAQI == nil {
		return nil, &Failure{Provider: types.ProviderAirQuality, Kind: KindDecode, Err: fmt.Errorf("missing current.us_aqi")}
	}
	raw := *resp.Current.USAQI
	if raw < 0 || math.IsNaN(raw) {
		return nil, &Failure{Provider: types.ProviderAirQuality, Kind: KindDecode, Err: fmt.Errorf("aqi %v is negative", raw)}
	}
	aqi := int(math.Round(raw))
	return &types.AirQualitySnapshot{AQI: aqi, Category: types.CategoryForAQI(aqi)}, nil
}
