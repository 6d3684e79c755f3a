package types

import "strings"

// RiskLevel is the low/medium/high classification shared by weather risk,
// regional alerts, and historical severity buckets.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Rank orders levels so that escalation can be expressed as max(). Unknown
// values rank below low.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	default:
		return 0
	}
}

// Max returns the more severe of the two levels.
func (l RiskLevel) Max(other RiskLevel) RiskLevel {
	if other.Rank() > l.Rank() {
		return other
	}
	return l
}

// Valid reports whether l is one of the three defined levels.
func (l RiskLevel) Valid() bool {
	return l.Rank() > 0
}

// ParseRiskLevel normalizes free-form severity strings ("High", " medium ").
func ParseRiskLevel(s string) (RiskLevel, bool) {
	l := RiskLevel(strings.ToLower(strings.TrimSpace(s)))
	return l, l.Valid()
}

// AQICategory is the US EPA air-quality band derived from an AQI value.
type AQICategory string

const (
	AQIGood               AQICategory = "Good"
	AQIModerate           AQICategory = "Moderate"
	AQIUnhealthySensitive AQICategory = "UnhealthySensitive"
	AQIUnhealthy          AQICategory = "Unhealthy"
	AQIVeryUnhealthy      AQICategory = "VeryUnhealthy"
	AQIHazardous          AQICategory = "Hazardous"
)

// CategoryForAQI maps an AQI value onto its fixed band.
//
//	0-50 Good, 51-100 Moderate, 101-150 Unhealthy for sensitive groups,
//	151-200 Unhealthy, 201-300 Very Unhealthy, >300 Hazardous
func CategoryForAQI(aqi int) AQICategory {
	switch {
	case aqi <= 50:
		return AQIGood
	case aqi <= 100:
		return AQIModerate
	case aqi <= 150:
		return AQIUnhealthySensitive
	case aqi <= 200:
		return AQIUnhealthy
	case aqi <= 300:
		return AQIVeryUnhealthy
	default:
		return AQIHazardous
	}
}

// CropType identifies the crop submitted for inference.
type CropType string

const (
	CropRice   CropType = "rice"
	CropWheat  CropType = "wheat"
	CropMaize  CropType = "maize"
	CropPotato CropType = "potato"
	CropTomato CropType = "tomato"
	CropPepper CropType = "pepper"
)

// CropStage identifies the growth stage submitted for inference.
type CropStage string

const (
	StageSeedling   CropStage = "seedling"
	StageVegetative CropStage = "vegetative"
	StageFlowering  CropStage = "flowering"
	StageFruiting   CropStage = "fruiting"
	StageMaturity   CropStage = "maturity"
)

var knownCrops = map[CropType]struct{}{
	CropRice: {}, CropWheat: {}, CropMaize: {}, CropPotato: {}, CropTomato: {}, CropPepper: {},
}

var knownStages = map[CropStage]struct{}{
	StageSeedling: {}, StageVegetative: {}, StageFlowering: {}, StageFruiting: {}, StageMaturity: {},
}

// ParseCropType validates and normalizes a crop type string.
func ParseCropType(s string) (CropType, bool) {
	c := CropType(strings.ToLower(strings.TrimSpace(s)))
	_, ok := knownCrops[c]
	return c, ok
}

// ParseCropStage validates and normalizes a crop stage string.
func ParseCropStage(s string) (CropStage, bool) {
	st := CropStage(strings.ToLower(strings.TrimSpace(s)))
	_, ok := knownStages[st]
	return st, ok
}

// Provider names an enrichment source. Used as the cache key component,
// the degrade-policy key, and the metrics dimension.
type Provider string

const (
	ProviderWeather    Provider = "weather"
	ProviderAirQuality Provider = "air_quality"
	ProviderGeocode    Provider = "geocode"
	ProviderAlerts     Provider = "alerts"
	ProviderInference  Provider = "inference"
	ProviderHistory    Provider = "history"
)

// LocationSource records how a coordinate was obtained.
type LocationSource string

const (
	SourceSensor  LocationSource = "sensor"
	SourceManual  LocationSource = "manual"
	SourceDefault LocationSource = "default"
)
