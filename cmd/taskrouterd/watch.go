package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"taskrouter/internal/eventbus"
	"taskrouter/internal/logging"
	"taskrouter/internal/store"
	"taskrouter/internal/watch"
)

func newWatchCommand() *cobra.Command {
	var remote string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Open the terminal dashboard",
		Long: `watch opens a read-only terminal dashboard over workspaces, tasks, and
their routing/execution state. With --remote it talks to a running server
over HTTP and its websocket event feed (GET /api/events/ws); without it,
it opens the data directory's own database file directly.

watch never issues a trigger, resume, or cancel call — it is strictly an
observer (spec §4.8).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote != "" {
				return runWatchRemote(cmd.Context(), remote)
			}
			return runWatchLocal(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&remote, "remote", "", "base URL of a running server, e.g. http://localhost:8080 (default: open the local data directory)")
	return cmd
}

func runWatchRemote(ctx context.Context, baseURL string) error {
	src, err := watch.NewRemoteSource(ctx, baseURL)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", baseURL, err)
	}
	defer src.Close()
	return watch.Run(ctx, src)
}

// runWatchLocal opens the same sqlite file a colocated `serve` process uses.
// It does not share serve's in-process eventbus.Bus — a separate OS process
// cannot observe another process's in-memory event fan-out — so this bus is
// a private, always-empty one and the dashboard falls back entirely to its
// own periodic poll (internal/watch's 2s tick) for liveness. This trades
// sub-second push updates for the ability to run `watch` as a lightweight,
// no-routing-engine, read-only process alongside `serve` rather than
// in-process with it, which matches spec §4.8's framing of watch as an
// external observer.
func runWatchLocal(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logging.New(logging.Config{
		Level:  parseLogLevel(cfg.LogLevel),
		Format: parseLogFormat(cfg.LogFormat),
	})

	s, err := store.Open(ctx, cfg.DBPath, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	bus := eventbus.New()
	src := watch.NewLocalSource(s, bus)
	defer src.Close()

	return watch.Run(ctx, src)
}
