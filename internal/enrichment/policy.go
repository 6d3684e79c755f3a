package enrichment

import (
	"fmt"

	"cropcare/internal/types"
)

// FailureAction says what a failed provider contributes to the Assessment.
type FailureAction int

const (
	// Absent leaves the field unset.
	Absent FailureAction = iota
	// UseDefault substitutes Rule.Default.
	UseDefault
)

func (f FailureAction) String() string {
	switch f {
	case Absent:
		return "absent"
	case UseDefault:
		return "default"
	default:
		return fmt.Sprintf("FailureAction(%d)", int(f))
	}
}

// Rule is the degrade behaviour for one provider.
type Rule struct {
	OnFailure FailureAction
	// Default must match the provider's field type: types.WeatherSnapshot,
	// types.AirQualitySnapshot, types.LocationLabel or []types.RegionalAlert.
	Default any
}

// DegradePolicy maps each enrichment provider to its failure rule. Providers
// without an entry degrade to Absent.
type DegradePolicy map[types.Provider]Rule

// DefaultPolicy degrades every provider to Absent, so a failed lookup is
// never shown as a placeholder value.
func DefaultPolicy() DegradePolicy {
	return DegradePolicy{
		types.ProviderWeather:    {OnFailure: Absent},
		types.ProviderAirQuality: {OnFailure: Absent},
		types.ProviderGeocode:    {OnFailure: Absent},
		types.ProviderAlerts:     {OnFailure: Absent},
	}
}

// Rule returns the rule for p.
func (p DegradePolicy) Rule(provider types.Provider) Rule {
	if r, ok := p[provider]; ok {
		return r
	}
	return Rule{OnFailure: Absent}
}

// Validate checks every UseDefault rule carries a value of the right type.
func (p DegradePolicy) Validate() error {
	for provider, r := range p {
		if r.OnFailure != UseDefault {
			continue
		}
		var ok bool
		switch provider {
		case types.ProviderWeather:
			_, ok = r.Default.(types.WeatherSnapshot)
		case types.ProviderAirQuality:
			_, ok = r.Default.(types.AirQualitySnapshot)
		case types.ProviderGeocode:
			_, ok = r.Default.(types.LocationLabel)
		case types.ProviderAlerts:
			_, ok = r.Default.([]types.RegionalAlert)
		default:
			return fmt.Errorf("degrade policy: %s is not an enrichment provider", provider)
		}
		if !ok {
			return fmt.Errorf("degrade policy: default for %s has type %T", provider, r.Default)
		}
	}
	return nil
}
