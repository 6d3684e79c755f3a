package handlers

import (
	"strconv"
	"strings"

	"cropcare/internal/types"
)

// locationParams are the optional coordinate inputs shared by the
// assessment form and the enrichment query.
type locationParams struct {
	Lat    *float64 `form:"lat" validate:"omitempty,latitude"`
	Lon    *float64 `form:"lon" validate:"omitempty,longitude"`
	Acc    float64  `form:"acc" validate:"gte=0"`
	Region string   `form:"region" validate:"max=64"`
}

// coarseAccuracyMeters is the accuracy above which a fix is flagged as
// imprecise. It matches the default-location accuracy.
const coarseAccuracyMeters = 5000

// Warnings implements core.Warner.
func (p locationParams) Warnings() []string {
	if p.Lat != nil && p.Acc > coarseAccuracyMeters {
		return []string{"location accuracy is coarse; weather and alerts may not reflect the field"}
	}
	return nil
}

// readLocation parses lat, lon, acc and region from get. Malformed numbers
// map to the coordinate-specific validation codes.
func readLocation(get func(string) string) (locationParams, error) {
	var p locationParams
	var err error
	if p.Lat, err = optionalFloat(get("lat"), "lat", types.ErrCodeValidationInvalidLat); err != nil {
		return p, err
	}
	if p.Lon, err = optionalFloat(get("lon"), "lon", types.ErrCodeValidationInvalidLon); err != nil {
		return p, err
	}
	acc, err := optionalFloat(get("acc"), "acc", types.ErrCodeValidationInvalidPayload)
	if err != nil {
		return p, err
	}
	if acc != nil {
		p.Acc = *acc
	}
	p.Region = strings.TrimSpace(get("region"))
	return p, nil
}

func optionalFloat(raw, name string, code types.ErrorCode) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, types.NewAppError(code, name+" must be a valid number", nil)
	}
	return &v, nil
}

func optionalInt(raw, name string, def int, code types.ErrorCode) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, types.NewAppError(code, name+" must be an integer", nil)
	}
	return v, nil
}

func optionalBool(raw, name string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeValidationInvalidPayload, name+" must be true or false", nil)
	}
	return v, nil
}
