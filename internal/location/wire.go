package location

import (
	"log/slog"

	"cropcare/internal/config"
	"cropcare/internal/types"
)

// NewProviderFromConfig builds a Provider with the configured default
// coordinate and region table. sensor may be nil for servers, which only
// use Resolve.
func NewProviderFromConfig(cfg config.LocationConfig, sensor Sensor, logger *slog.Logger) (*Provider, error) {
	regions, err := LoadRegions(cfg.RegionsFile)
	if err != nil {
		return nil, err
	}
	def := types.NewCoordinate(cfg.DefaultLat, cfg.DefaultLon, cfg.DefaultAccuracyM)
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return NewProvider(ProviderConfig{
		Default: def,
		Regions: regions,
		Sensor:  sensor,
		Logger:  logger,
	}), nil
}
