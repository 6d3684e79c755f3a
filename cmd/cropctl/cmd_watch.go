package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cropcare/internal/enrichment"
	"cropcare/internal/location"
)

func newWatchCmd() *cobra.Command {
	var region string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow location fixes from stdin and print each completed Assessment",
		Long: "watch reads \"lat,lon[,acc]\" lines from stdin as a continuous location\n" +
			"sensor. Every move starts a new enrichment; results for superseded\n" +
			"positions are discarded. Each settled Assessment is printed as one JSON line.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, region)
		},
	}
	cmd.Flags().StringVar(&region, "region", "", "Start from a named region until the first fix")
	return cmd
}

func runWatch(cmd *cobra.Command, region string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	p, err := e.locationProvider(location.ReaderSensor{R: cmd.InOrStdin()})
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := json.NewEncoder(cmd.OutOrStdout())
	var writeErr error
	session := enrichment.NewSession(e.aggregator, enrichment.WithUpdates(func(u enrichment.SessionUpdate) {
		if !u.Final || writeErr != nil {
			return
		}
		writeErr = out.Encode(u.Assessment)
	}))
	defer session.Close()

	if region != "" {
		if err := p.SelectRegion(region); err != nil {
			return err
		}
	}

	// Stop following before the provider is disabled so the reset to the
	// default coordinate does not start another fan-out.
	defer p.Disable()
	unfollow := session.Follow(ctx, p)
	defer unfollow()
	p.Enable(ctx)

	select {
	case <-p.Done():
	case <-ctx.Done():
		return nil
	}
	if _, err := session.Wait(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("waiting for enrichment: %w", err)
	}
	return writeErr
}
