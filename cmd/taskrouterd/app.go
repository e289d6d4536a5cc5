package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"taskrouter/internal/attachments"
	"taskrouter/internal/config"
	"taskrouter/internal/eventbus"
	"taskrouter/internal/executor"
	"taskrouter/internal/lifecycle"
	"taskrouter/internal/logging"
	"taskrouter/internal/observability"
	"taskrouter/internal/pool"
	"taskrouter/internal/recovery"
	"taskrouter/internal/routing"
	"taskrouter/internal/store"
)

// app bundles every collaborator the serve/recover subcommands share, built
// once at process startup and torn down in reverse order on shutdown.
// Grounded on the teacher's Container (cmd/alex/container.go's dependency
// struct, read via other pack references) generalized to this system's
// store/bus/pool/executor/routing/recovery/lifecycle stack.
type app struct {
	cfg             config.Config
	log             logging.Logger
	store           *store.Store
	bus             *eventbus.Bus
	pool            *pool.Pool
	attachmentStore *attachments.Store
	executor        *executor.Executor
	engine          *routing.Engine
	recoverer       *recovery.Recoverer
	lifecycle       *lifecycle.Coordinator
	metrics         *observability.MetricsCollector
	tracerShutdown  func(context.Context) error
}

// buildApp wires every component in dependency order: store first (nothing
// else can run without persistence), then bus/pool/attachments, then the
// executor and routing engine that close over them, then the two layers
// that observe the engine from outside (recovery, lifecycle).
func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	log := logging.New(logging.Config{
		Level:  parseLogLevel(cfg.LogLevel),
		Format: parseLogFormat(cfg.LogFormat),
	})

	s, err := store.Open(ctx, cfg.DBPath, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	attachmentStore, err := attachments.New(cfg.AttachmentsDir)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open attachment store: %w", err)
	}

	bus := eventbus.New()
	p := pool.New(cfg.PoolMaxConcurrent)

	var metrics *observability.MetricsCollector
	var tracerShutdown func(context.Context) error
	if cfg.Observability.MetricsEnabled {
		metrics, err = observability.NewMetricsCollector(observability.MetricsConfig{Enabled: true})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("start metrics collector: %w", err)
		}
	}
	if cfg.Observability.TracingEnabled {
		tracingCfg := observability.DefaultTracingConfig()
		tracingCfg.Enabled = true
		if cfg.Observability.Exporter != "" {
			tracingCfg.Exporter = cfg.Observability.Exporter
		}
		tracingCfg.Endpoint = cfg.Observability.Endpoint
		tracerShutdown, err = observability.NewTracerProvider(ctx, tracingCfg)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("start tracer provider: %w", err)
		}
	}

	exec := executor.New(p, bus, s, attachmentStore, cfg.TmpDir,
		executor.WithAgentCommand(cfg.AgentCommand, cfg.AgentArgs),
		executor.WithLogger(log),
	)

	var routingOpts []routing.Option
	routingOpts = append(routingOpts, routing.WithLogger(log))
	if metrics != nil {
		routingOpts = append(routingOpts, routing.WithMetrics(metrics))
	}
	engine := routing.New(s, exec, bus, routingOpts...)

	recoverer := recovery.New(s, engine, log)
	coordinator := lifecycle.New(engine, exec, s, lifecycle.DefaultConfig(), log)

	return &app{
		cfg:             cfg,
		log:             log,
		store:           s,
		bus:             bus,
		pool:            p,
		attachmentStore: attachmentStore,
		executor:        exec,
		engine:          engine,
		recoverer:       recoverer,
		lifecycle:       coordinator,
		metrics:         metrics,
		tracerShutdown:  tracerShutdown,
	}, nil
}

// shutdownObservability stops the metrics collector and tracer provider, if
// running. It is not part of lifecycle.Coordinator because neither is a
// drain target (spec §4.7 drains executions, not telemetry exporters).
func (a *app) shutdownObservability(ctx context.Context) {
	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.log.Warn("metrics shutdown", "error", err)
		}
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.log.Warn("tracer shutdown", "error", err)
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseLogFormat(format string) logging.Format {
	if strings.ToLower(format) == "json" {
		return logging.FormatJSON
	}
	return logging.FormatText
}
