// Package lifecycle implements the shutdown coordinator from spec §4.7: stop
// accepting new routing triggers, give in-flight executions a grace window
// to finish on their own, escalate to cancellation for whatever remains,
// then close persistence. It is grounded on the teacher's
// internal/app/lifecycle/drainable.go — the same "drain a set of named
// subsystems, each against its own deadline, collect but do not abort on
// per-subsystem errors" shape, adapted here into a single two-stage drain
// (soft wait, then hard cancel) instead of a list of arbitrary subsystems,
// since spec §4.7 names exactly one drain target: in-flight executions.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"taskrouter/internal/logging"
)

// AcceptingSetter is the capability the coordinator needs on the routing
// engine. Kept as its own narrow interface (spec §9's "cyclic module
// dependency" note) so this package never imports internal/routing.
type AcceptingSetter interface {
	SetAccepting(v bool)
}

// RunningExecutionCanceller is the capability the coordinator needs on the
// executor. Satisfied structurally by *executor.Executor.
type RunningExecutionCanceller interface {
	GetRunningExecutions() []string
	Cancel(executionID string) bool
}

// Closer is the capability the coordinator needs on the persistence layer.
// Satisfied structurally by *store.Store.
type Closer interface {
	Close() error
}

// Config controls the shutdown coordinator's drain behavior.
type Config struct {
	// DrainPollInterval is how often the running-execution count is
	// re-checked while waiting for in-flight work to finish on its own.
	DrainPollInterval time.Duration
	// DrainTimeout is the total time budget for the soft-drain wait before
	// the coordinator escalates to cancelling whatever remains.
	DrainTimeout time.Duration
}

// DefaultConfig matches spec §4.7 step 2 exactly: 1-second polling for up
// to 30 seconds.
func DefaultConfig() Config {
	return Config{DrainPollInterval: time.Second, DrainTimeout: 30 * time.Second}
}

// Coordinator runs the shutdown sequence described in spec §4.7.
type Coordinator struct {
	accepting AcceptingSetter
	executor  RunningExecutionCanceller
	store     Closer
	cfg       Config
	log       logging.Logger

	mu         sync.Mutex
	shutdownAt *time.Time
}

// New constructs a Coordinator.
func New(accepting AcceptingSetter, exec RunningExecutionCanceller, store Closer, cfg Config, log logging.Logger) *Coordinator {
	if cfg.DrainPollInterval <= 0 {
		cfg.DrainPollInterval = time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	return &Coordinator{
		accepting: accepting,
		executor:  exec,
		store:     store,
		cfg:       cfg,
		log:       logging.NewComponentLogger(log, "lifecycle"),
	}
}

// Shutdown runs the full sequence from spec §4.7. Re-entering Shutdown while
// one is already in progress is a no-op, per the spec's explicit note.
// Persistence is closed even when executions had to be force-cancelled; in
// that case the force-cancel summary from drainOrCancel is returned.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.shutdownAt != nil {
		c.mu.Unlock()
		c.log.Info("shutdown already in progress, ignoring re-entry")
		return nil
	}
	now := time.Now()
	c.shutdownAt = &now
	c.mu.Unlock()

	c.log.Info("shutdown: refusing new routing triggers")
	c.accepting.SetAccepting(false)

	drainErr := c.drainOrCancel(ctx)
	if drainErr != nil {
		c.log.Warn("drain did not fully complete", "error", drainErr)
	}

	c.log.Info("shutdown: closing persistence")
	if err := c.store.Close(); err != nil {
		return fmt.Errorf("close persistence: %w", err)
	}

	c.log.Info("shutdown complete")
	return drainErr
}

// drainOrCancel polls the executor's running-execution count at
// cfg.DrainPollInterval for up to cfg.DrainTimeout. If everything drains
// naturally within the window, it returns nil; otherwise it cancels every
// execution still running and returns an error summarizing how many were
// force-cancelled.
func (c *Coordinator) drainOrCancel(ctx context.Context) error {
	deadline := time.Now().Add(c.cfg.DrainTimeout)
	ticker := time.NewTicker(c.cfg.DrainPollInterval)
	defer ticker.Stop()

	for {
		running := c.executor.GetRunningExecutions()
		if len(running) == 0 {
			c.log.Info("shutdown: all executions drained naturally")
			return nil
		}
		if time.Now().After(deadline) {
			return c.forceCancel(running)
		}

		select {
		case <-ticker.C:
			continue
		case <-ctx.Done():
			return c.forceCancel(c.executor.GetRunningExecutions())
		}
	}
}

func (c *Coordinator) forceCancel(running []string) error {
	c.log.Warn("shutdown: drain window elapsed, force-cancelling remaining executions", "count", len(running))
	cancelled := 0
	for _, id := range running {
		if c.executor.Cancel(id) {
			cancelled++
		}
	}
	return fmt.Errorf("force-cancelled %d/%d executions after drain timeout", cancelled, len(running))
}
