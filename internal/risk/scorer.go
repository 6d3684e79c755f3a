// Package risk derives classifications from enrichment data: the weather
// risk level with its advisory notes, the keyword-based severity of past
// detections, and day-bucketed activity counts. Everything here is pure and
// deterministic.
package risk

import "cropcare/internal/types"

// Advisory notes, one per triggered row.
const (
	NoteExtremeHumidity = "Extreme humidity: Severe fungal/mold risk."
	NoteHighHumidity    = "High humidity: Monitor for fungal growth."
	NoteHeavyRain       = "Heavy rainfall: Flood risk & soil erosion likely."
	NoteModerateRain    = "Moderate rain: Check drainage systems."
	NoteExtremeHeat     = "Extreme heat: Heat stress risk for crops/livestock."
	NoteHighTemperature = "High temperature: Ensure adequate hydration/irrigation."
	NoteFreeze          = "Freeze warning: Frost damage risk to sensitive plants."
	NoteCold            = "Cold warning: Potential for frost."
	NoteGale            = "Gale force winds: Structural damage risk. Avoid spraying."
	NoteHighWind        = "High winds: Spray drift risk. Secure loose equipment."
	NoteExtremeUV       = "Extreme UV: High radiation risk for field workers."
	NoteFog             = "Dense fog: Low visibility. Use caution with machinery."
)

// rule evaluates one row of the threshold table. ok is false when the row
// did not trigger.
type rule struct {
	name string
	eval func(w types.WeatherSnapshot) (level types.RiskLevel, note string, ok bool)
}

// rules is evaluated in order; notes keep this order. A value sitting on a
// band edge belongs to the band that names it inclusively (90% humidity is
// medium, anything above is high).
var rules = []rule{
	{"humidity", func(w types.WeatherSnapshot) (types.RiskLevel, string, bool) {
		switch {
		case w.HumidityPct > 90:
			return types.RiskHigh, NoteExtremeHumidity, true
		case w.HumidityPct >= 80:
			return types.RiskMedium, NoteHighHumidity, true
		}
		return "", "", false
	}},
	{"rain", func(w types.WeatherSnapshot) (types.RiskLevel, string, bool) {
		switch {
		case w.RainMM > 50:
			return types.RiskHigh, NoteHeavyRain, true
		case w.RainMM >= 10:
			return types.RiskMedium, NoteModerateRain, true
		}
		return "", "", false
	}},
	{"temperature", func(w types.WeatherSnapshot) (types.RiskLevel, string, bool) {
		switch {
		case w.TempC > 35:
			return types.RiskHigh, NoteExtremeHeat, true
		case w.TempC >= 30:
			return types.RiskMedium, NoteHighTemperature, true
		case w.TempC < 0:
			return types.RiskHigh, NoteFreeze, true
		case w.TempC <= 4:
			return types.RiskMedium, NoteCold, true
		}
		return "", "", false
	}},
	{"wind", func(w types.WeatherSnapshot) (types.RiskLevel, string, bool) {
		switch {
		case w.WindKph > 60:
			return types.RiskHigh, NoteGale, true
		case w.WindKph >= 30:
			return types.RiskMedium, NoteHighWind, true
		}
		return "", "", false
	}},
	{"uv", func(w types.WeatherSnapshot) (types.RiskLevel, string, bool) {
		if w.UVIndex > 8 {
			return types.RiskMedium, NoteExtremeUV, true
		}
		return "", "", false
	}},
	{"visibility", func(w types.WeatherSnapshot) (types.RiskLevel, string, bool) {
		if w.VisibilityKm < 1 {
			return types.RiskMedium, NoteFog, true
		}
		return "", "", false
	}},
}

// Score derives the risk level and notes for a weather snapshot. The level
// is the maximum severity across triggered rows and never de-escalates
// within one evaluation. A nil snapshot yields nil, not a default "low".
func Score(w *types.WeatherSnapshot) *types.RiskAssessment {
	if w == nil {
		return nil
	}
	out := &types.RiskAssessment{Level: types.RiskLow, Notes: []string{}}
	for _, r := range rules {
		level, note, ok := r.eval(*w)
		if !ok {
			continue
		}
		out.Level = out.Level.Max(level)
		out.Notes = append(out.Notes, note)
	}
	return out
}
