package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cropcare/internal/types"
)

// DefaultAlertRadiusMeters applies when an alert omits its radius.
const DefaultAlertRadiusMeters = 5000

// AlertsClient lists regional outbreak alerts.
type AlertsClient struct {
	endpoint *EndpointClient
	url      string
	logger   *slog.Logger
}

// NewAlertsClient creates an AlertsClient.
func NewAlertsClient(endpoint *EndpointClient, baseURL string, logger *slog.Logger) *AlertsClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertsClient{endpoint: endpoint, url: baseURL, logger: logger}
}

type alertWire struct {
	Region     string   `json:"region"`
	TopDisease string   `json:"top_disease"`
	Severity   string   `json:"severity"`
	Summary    string   `json:"summary"`
	Tips       []string `json:"tips"`
	Center     *struct {
		Lat *float64 `json:"lat"`
		Lon *float64 `json:"lon"`
	} `json:"center"`
	RadiusM float64 `json:"radius_m"`
}

// alertsEnvelope accepts both a bare array and {"alerts": [...]}.
type alertsEnvelope []alertWire

func (e *alertsEnvelope) UnmarshalJSON(b []byte) error {
	var list []alertWire
	if err := json.Unmarshal(b, &list); err == nil {
		*e = list
		return nil
	}
	var wrapped struct {
		Alerts *[]alertWire `json:"alerts"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return err
	}
	if wrapped.Alerts == nil {
		return fmt.Errorf("expected an array or an object with an alerts field")
	}
	*e = *wrapped.Alerts
	return nil
}

// RegionalAlerts fetches and normalizes all alerts. Entries missing a region,
// a valid severity or a center are dropped and logged.
func (a *AlertsClient) RegionalAlerts(ctx context.Context) ([]types.RegionalAlert, error) {
	var resp alertsEnvelope
	if err := a.endpoint.GetJSON(ctx, a.url, nil, &resp); err != nil {
		return nil, err
	}

	alerts := make([]types.RegionalAlert, 0, len(resp))
	for i, w := range resp {
		alert, err := normalizeAlert(w)
		if err != nil {
			a.logger.WarnContext(ctx, "dropping malformed regional alert", "index", i, "error", err)
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

func normalizeAlert(w alertWire) (types.RegionalAlert, error) {
	if w.Region == "" {
		return types.RegionalAlert{}, fmt.Errorf("missing region")
	}
	sev, ok := types.ParseRiskLevel(w.Severity)
	if !ok {
		return types.RegionalAlert{}, fmt.Errorf("region %s: invalid severity %q", w.Region, w.Severity)
	}
	if w.Center == nil || w.Center.Lat == nil || w.Center.Lon == nil {
		return types.RegionalAlert{}, fmt.Errorf("region %s: missing center", w.Region)
	}
	center := types.Coordinate{Lat: *w.Center.Lat, Lon: *w.Center.Lon}
	if err := center.Validate(); err != nil {
		return types.RegionalAlert{}, fmt.Errorf("region %s: %w", w.Region, err)
	}
	radius := w.RadiusM
	if radius <= 0 {
		radius = DefaultAlertRadiusMeters
	}
	tips := w.Tips
	if tips == nil {
		tips = []string{}
	}
	return types.RegionalAlert{
		Region:       w.Region,
		TopDisease:   w.TopDisease,
		Severity:     sev,
		Summary:      w.Summary,
		Tips:         tips,
		Center:       center,
		RadiusMeters: radius,
	}, nil
}
