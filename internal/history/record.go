package history

import (
	"cropcare/internal/types"
)

// RecordFromAssessment flattens an assessment into the persisted summary.
// A detection is required: history records describe a diagnosed image.
func RecordFromAssessment(account string, a *types.Assessment) (types.NewHistoryRecord, error) {
	if account == "" {
		return types.NewHistoryRecord{}, types.NewAppError(types.ErrCodeAuthAccountMissing, "account is required to save history", nil)
	}
	if a == nil || a.Detection == nil {
		return types.NewHistoryRecord{}, types.NewAppError(types.ErrCodeValidationMissingField,
			"only assessments with a detection can be saved", nil)
	}

	d := a.Detection
	rec := types.NewHistoryRecord{
		Account:    account,
		CropType:   string(d.CropType),
		Disease:    d.Label,
		CapturedAt: d.CapturedAt,
	}
	if a.Weather != nil {
		temp, hum := a.Weather.TempC, a.Weather.HumidityPct
		rec.Temperature = &temp
		rec.Humidity = &hum
	}
	if a.Location != nil {
		rec.Location = a.Location.Text
	}

	// A fallback coordinate says nothing about where the photo was taken.
	coord := a.Coordinate
	if coord == nil {
		coord = d.Coordinate
	}
	if coord != nil && a.Source != types.SourceDefault {
		lat, lon := coord.Lat, coord.Lon
		rec.Lat = &lat
		rec.Lon = &lon
	}
	return rec, nil
}
