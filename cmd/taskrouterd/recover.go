package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRecoverCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Run the pending/running routing reconciliation sweep once and exit",
		Long: `recover runs the same scan serve performs at startup (spec §4.5):
every TaskRouting left pending or running — because the server crashed or
was killed mid-routing — is resumed from its stored agent index and
iteration, or marked failed if its task can no longer be loaded. Useful to re-run on demand
after restoring a data directory from backup, without starting the HTTP API.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecover(cmd.Context())
		},
	}
}

func runRecover(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	application, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.store.Close()
	defer application.shutdownObservability(ctx)

	result := application.recoverer.Run(ctx)
	application.log.Info("recovery sweep complete",
		"found", result.RoutingsFound, "resumed", result.RoutingsResumed,
		"failed", result.RoutingsFailed, "orphans_cleaned", result.OrphansCleaned)

	detail := fmt.Sprintf("found=%d resumed=%d failed=%d orphans_cleaned=%d",
		result.RoutingsFound, result.RoutingsResumed, result.RoutingsFailed, result.OrphansCleaned)
	fmt.Fprintln(os.Stdout, statusLine("recover", result.RoutingsFailed == 0, detail))

	return nil
}
