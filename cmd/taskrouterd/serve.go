package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"taskrouter/internal/httpapi"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the task routing HTTP API and driver loops",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

// runServe wires the full app, runs the startup recovery scan, serves the
// HTTP API until interrupted, then drains in-flight executions before
// exiting — matching the teacher's cobra_cli.go signal-handling idiom
// (signal.Notify on os.Interrupt/SIGTERM) pointed at this server's own
// graceful-shutdown sequence (spec §4.7) instead of a TUI cleanup.
func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	application, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.store.Close()

	result := application.recoverer.Run(ctx)
	application.log.Info("startup recovery complete",
		"found", result.RoutingsFound, "resumed", result.RoutingsResumed,
		"failed", result.RoutingsFailed, "orphans_cleaned", result.OrphansCleaned)

	router := httpapi.NewRouter(httpapi.Deps{
		Store:           application.store,
		Engine:          application.engine,
		Bus:             application.bus,
		AttachmentStore: application.attachmentStore,
		Logger:          application.log,
	}, httpapi.DefaultConfig())

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	serveErr := make(chan error, 1)
	go func() {
		application.log.Info("listening", "addr", cfg.HTTPAddr)
		fmt.Fprintln(os.Stdout, statusLine("serve", true, "listening on "+cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		application.log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			application.log.Error("http server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		application.log.Warn("http server shutdown", "error", err)
	}
	if err := application.lifecycle.Shutdown(shutdownCtx); err != nil {
		application.log.Warn("lifecycle shutdown", "error", err)
	}
	application.shutdownObservability(shutdownCtx)

	return nil
}
