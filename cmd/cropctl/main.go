// cropctl is the operator CLI: one-shot enrichment, offline risk scoring and
// a continuous watch over a stream of location fixes.
//
// Usage:
//
//	cropctl enrich --lat=24.89 --lon=91.87 [--acc=20] | --region=Sylhet
//	cropctl risk --temp=31 --humidity=92 [--rain --wind --uv --visibility]
//	cropctl watch < fixes.txt
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cropcare/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cropctl",
		Short: "Crop health enrichment and risk tools",
		Long:  "cropctl runs the enrichment pipeline and risk scoring used by the\nCropCare API from the command line.",
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		SilenceUsage: true,
		Version:      config.NewBuildInfo().Version,
	}
	root.PersistentFlags().String("log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	root.AddCommand(newEnrichCmd())
	root.AddCommand(newRiskCmd())
	root.AddCommand(newWatchCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
