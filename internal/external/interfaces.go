package external

import (
	"context"

	"cropcare/internal/types"
)

// InferenceRequest is the image plus crop metadata submitted for
// classification.
type InferenceRequest struct {
	Image      []byte
	Filename   string
	CropType   types.CropType
	CropStage  types.CropStage
	Coordinate *types.Coordinate
}

// InferenceService classifies a crop image. Every error is surfaced to the
// caller; there is no fallback label.
type InferenceService interface {
	Predict(ctx context.Context, req InferenceRequest) (*types.DetectionResult, error)
}

// WeatherSource fetches current conditions.
type WeatherSource interface {
	CurrentWeather(ctx context.Context, c types.Coordinate) (*types.WeatherSnapshot, error)
}

// AirQualitySource fetches the current AQI.
type AirQualitySource interface {
	CurrentAirQuality(ctx context.Context, c types.Coordinate) (*types.AirQualitySnapshot, error)
}

// GeocodeSource resolves a coordinate to a place name.
type GeocodeSource interface {
	ReverseGeocode(ctx context.Context, c types.Coordinate) (*types.LocationLabel, error)
}

// AlertsSource lists active regional outbreak alerts.
type AlertsSource interface {
	RegionalAlerts(ctx context.Context) ([]types.RegionalAlert, error)
}
