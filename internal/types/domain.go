package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Coordinate is an immutable geographic fix. AccuracyMeters is nil when the
// source did not report one.
type Coordinate struct {
	Lat            float64  `json:"lat"`
	Lon            float64  `json:"lon"`
	AccuracyMeters *float64 `json:"accuracy_m,omitempty"`
}

// NewCoordinate builds a Coordinate with an optional accuracy (acc <= 0 means
// unknown).
func NewCoordinate(lat, lon, acc float64) Coordinate {
	c := Coordinate{Lat: lat, Lon: lon}
	if acc > 0 {
		a := acc
		c.AccuracyMeters = &a
	}
	return c
}

// Validate checks the coordinate is within WGS84 bounds.
func (c Coordinate) Validate() error {
	if c.Lat < MinLat || c.Lat > MaxLat {
		return NewAppError(ErrCodeValidationInvalidLat,
			fmt.Sprintf("latitude %.6f outside [%v, %v]", c.Lat, MinLat, MaxLat), nil)
	}
	if c.Lon < MinLon || c.Lon > MaxLon {
		return NewAppError(ErrCodeValidationInvalidLon,
			fmt.Sprintf("longitude %.6f outside [%v, %v]", c.Lon, MinLon, MaxLon), nil)
	}
	return nil
}

// SamePoint reports whether two coordinates refer to the same position,
// ignoring accuracy.
func (c Coordinate) SamePoint(other Coordinate) bool {
	return c.Lat == other.Lat && c.Lon == other.Lon
}

// String formats the coordinate for logs.
func (c Coordinate) String() string {
	return fmt.Sprintf("%.5f,%.5f", c.Lat, c.Lon)
}

// DetectionResult is a single structured prediction from the inference
// service. Created once per inference call and never mutated.
type DetectionResult struct {
	ClassID    int         `json:"class_id"`
	Label      string      `json:"label"`
	Confidence float64     `json:"confidence"`
	CapturedAt time.Time   `json:"captured_at"`
	CropType   CropType    `json:"crop_type"`
	CropStage  CropStage   `json:"crop_stage"`
	Coordinate *Coordinate `json:"coordinate,omitempty"`
}

// WeatherSnapshot is the normalized current-conditions reading for a
// coordinate.
type WeatherSnapshot struct {
	TempC        float64 `json:"temp_c"`
	HumidityPct  float64 `json:"humidity_pct"`
	RainMM       float64 `json:"rain_mm"`
	WindKph      float64 `json:"wind_kph"`
	UVIndex      float64 `json:"uv_index"`
	VisibilityKm float64 `json:"visibility_km"`
	WeatherCode  int     `json:"weather_code"`
}

// AirQualitySnapshot is an AQI reading plus its locally derived band.
type AirQualitySnapshot struct {
	AQI      int         `json:"aqi"`
	Category AQICategory `json:"category"`
}

// LocationLabel is a best-effort human-readable place name.
type LocationLabel struct {
	Text string `json:"text"`
}

// RiskAssessment is derived purely from a WeatherSnapshot.
type RiskAssessment struct {
	Level RiskLevel `json:"level"`
	Notes []string  `json:"notes"`
}

// RegionalAlert is an outbreak alert supplied by the alerts provider.
type RegionalAlert struct {
	Region       string     `json:"region"`
	TopDisease   string     `json:"top_disease"`
	Severity     RiskLevel  `json:"severity"`
	Summary      string     `json:"summary"`
	Tips         []string   `json:"tips"`
	Center       Coordinate `json:"center"`
	RadiusMeters float64    `json:"radius_m"`

	// DistanceMeters is from the requested coordinate to Center, set only
	// on alerts matched against a coordinate.
	DistanceMeters float64 `json:"distance_m,omitempty"`
}

// Assessment is the unit produced by one enrichment + inference cycle.
// Every field is independently optional: nil means the provider failed or
// was not requested.
type Assessment struct {
	Detection *DetectionResult    `json:"detection,omitempty"`
	Weather   *WeatherSnapshot    `json:"weather,omitempty"`
	Air       *AirQualitySnapshot `json:"air,omitempty"`
	Location  *LocationLabel      `json:"location,omitempty"`
	Risk      *RiskAssessment     `json:"risk,omitempty"`

	// Alerts is empty, not nil, when the lookup succeeded with nothing
	// nearby.
	Alerts []RegionalAlert `json:"alerts,omitempty"`

	// Coordinate is the fix the enrichment fields were resolved under.
	Coordinate *Coordinate    `json:"coordinate,omitempty"`
	Source     LocationSource `json:"location_source,omitempty"`
}

// Clone returns a copy whose top-level pointers can be replaced without
// affecting the original. Pointed-to values are shared; they are never
// mutated after construction.
func (a *Assessment) Clone() *Assessment {
	if a == nil {
		return nil
	}
	c := *a
	if a.Alerts != nil {
		c.Alerts = append(make([]RegionalAlert, 0, len(a.Alerts)), a.Alerts...)
	}
	return &c
}

// MarshalJSON omits alerts when the lookup failed or was not requested, and
// writes an empty list when it succeeded with nothing nearby.
func (a Assessment) MarshalJSON() ([]byte, error) {
	type plain Assessment
	out := struct {
		plain
		Alerts *[]RegionalAlert `json:"alerts,omitempty"`
	}{plain: plain(a)}
	if a.Alerts != nil {
		out.Alerts = &a.Alerts
	}
	return json.Marshal(out)
}

// RecordID identifies a persisted history record.
type RecordID string

// HistoryRecord is a past assessment summary as returned by the history
// listing.
type HistoryRecord struct {
	ID          RecordID   `json:"id"`
	CapturedAt  time.Time  `json:"captured_at"`
	CropType    string     `json:"crop_type"`
	Disease     string     `json:"disease"`
	Severity    *RiskLevel `json:"severity,omitempty"`
	Temperature *float64   `json:"temperature,omitempty"`
	Humidity    *float64   `json:"humidity,omitempty"`
	Location    string     `json:"location,omitempty"`
}

// DayBucket is one calendar day of activity counts.
type DayBucket struct {
	Day   string `json:"day"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// SeverityDistribution counts records per severity bucket.
type SeverityDistribution struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

// Total returns the number of records counted.
func (d SeverityDistribution) Total() int {
	return d.Low + d.Medium + d.High
}
