package main

import (
	"context"

	"github.com/spf13/cobra"

	"cropcare/internal/enrichment"
)

type enrichFlags struct {
	lat, lon, acc float64
	region        string
}

func newEnrichCmd() *cobra.Command {
	var flags enrichFlags
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Fetch weather, air quality, place name and risk for one location",
		Long: "enrich runs one enrichment fan-out and prints the Assessment as JSON.\n" +
			"Providers that fail are left out of the result.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEnrich(cmd, flags)
		},
	}
	f := cmd.Flags()
	f.Float64Var(&flags.lat, "lat", 0, "Latitude in degrees")
	f.Float64Var(&flags.lon, "lon", 0, "Longitude in degrees")
	f.Float64Var(&flags.acc, "acc", 0, "Fix accuracy in meters")
	f.StringVar(&flags.region, "region", "", "Named region instead of lat/lon")

	cmd.MarkFlagsRequiredTogether("lat", "lon")
	cmd.MarkFlagsMutuallyExclusive("lat", "region")
	cmd.MarkFlagsMutuallyExclusive("lon", "region")
	return cmd
}

func runEnrich(cmd *cobra.Command, flags enrichFlags) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	p, err := e.locationProvider(nil)
	if err != nil {
		return err
	}

	var lat, lon *float64
	if cmd.Flags().Changed("lat") {
		lat, lon = &flags.lat, &flags.lon
	}
	coord, source, err := p.Resolve(lat, lon, flags.acc, flags.region)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a := e.aggregator.Enrich(ctx, enrichment.Request{Coordinate: &coord, Source: source})
	return writeJSON(cmd.OutOrStdout(), a)
}
