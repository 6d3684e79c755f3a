package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cropcare/internal/risk"
	"cropcare/internal/types"
)

func newRiskCmd() *cobra.Command {
	var (
		w      types.WeatherSnapshot
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Score crop risk for given weather readings",
		Long:  "risk applies the weather threshold table offline; no provider is called.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			result := risk.Score(&w)
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, result)
			}
			fmt.Fprintf(out, "Risk: %s\n", result.Level)
			for _, note := range result.Notes {
				fmt.Fprintf(out, "  - %s\n", note)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.Float64Var(&w.TempC, "temp", 20, "Temperature in °C")
	f.Float64Var(&w.HumidityPct, "humidity", 50, "Relative humidity in percent")
	f.Float64Var(&w.RainMM, "rain", 0, "Rainfall in mm")
	f.Float64Var(&w.WindKph, "wind", 0, "Wind speed in km/h")
	f.Float64Var(&w.UVIndex, "uv", 0, "UV index")
	f.Float64Var(&w.VisibilityKm, "visibility", 10, "Visibility in km")
	f.BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}
