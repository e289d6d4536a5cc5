// Package routing implements the driver-loop state machine that walks a
// task's workspace agents in order, reacting to each execution's result
// (spec §4.4). It is grounded on the teacher's
// internal/delivery/server/app/task_execution_service.go: the background-
// goroutine-with-panic-recovery shape, the cancelFuncs-by-id map, and the
// otel span/metrics wiring around one unit of async work are all adapted
// from that file's ExecuteTaskAsync/executeTaskInBackground pair.
package routing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"taskrouter/internal/apperr"
	"taskrouter/internal/domain"
	"taskrouter/internal/eventbus"
	"taskrouter/internal/executor"
	"taskrouter/internal/ids"
	"taskrouter/internal/logging"
)

// Store is the persistence surface the routing engine needs. It is
// satisfied structurally by *store.Store.
type Store interface {
	GetTask(ctx context.Context, id string) (domain.Task, error)
	SetTaskStatus(ctx context.Context, id string, status domain.TaskStatus) error
	GetWorkspace(ctx context.Context, id string) (domain.Workspace, error)
	GetWorkspaceSetting(ctx context.Context, workspaceID, key string) (string, bool, error)
	ListAgentsByWorkspace(ctx context.Context, workspaceID string) ([]domain.Agent, error)
	ListCommentsByTask(ctx context.Context, taskID string) ([]domain.Comment, error)
	ListAttachmentsByTask(ctx context.Context, taskID string) ([]domain.Attachment, error)

	FindOrCreateRouting(ctx context.Context, taskID string) (domain.TaskRouting, error)
	GetRouting(ctx context.Context, id string) (domain.TaskRouting, error)
	GetRoutingByTaskID(ctx context.Context, taskID string) (domain.TaskRouting, error)
	ResetRoutingForTrigger(ctx context.Context, id string) error
	TryAcquireRoutingLock(ctx context.Context, id string) (bool, error)
	ReleaseRoutingLock(ctx context.Context, id string) error
	SetRoutingRunning(ctx context.Context, id string) error
	SetRoutingCompleted(ctx context.Context, id string) error
	SetRoutingFailed(ctx context.Context, id, errMsg string) error
	AdvanceToNextAgent(ctx context.Context, id string) error
	StartNewIteration(ctx context.Context, id string) error
	MarkAgentWorked(ctx context.Context, id string) error
	IncrementRetryCount(ctx context.Context, id string) error
	ResetRetryCount(ctx context.Context, id string) error
	ListPendingOrRunningRoutings(ctx context.Context) ([]domain.TaskRouting, error)

	CreateExecution(ctx context.Context, e domain.Execution) (domain.Execution, error)
	SetExecutionRunning(ctx context.Context, id string) error
	CompleteExecution(ctx context.Context, id string, status domain.ExecutionStatus, result *domain.ExecutionResult, output string) error

	CreateComment(ctx context.Context, c domain.Comment) (domain.Comment, error)
}

// Executor is the subset of internal/executor.Executor the routing engine
// drives. Satisfied structurally by *executor.Executor.
type Executor interface {
	Execute(ctx context.Context, ec executor.Context) (executor.Report, error)
	Cancel(executionID string) bool
	CancelByTask(taskID string) int
}

// Metrics is the subset of internal/observability.MetricsCollector the
// routing engine reports against. Satisfied structurally by
// *observability.MetricsCollector; nil-safe default is noopMetrics.
type Metrics interface {
	RecordExecution(ctx context.Context, agentName, status string, d time.Duration)
	IncrementActiveDrivers(ctx context.Context)
	DecrementActiveDrivers(ctx context.Context)
	RecordRoutingIteration(ctx context.Context, taskID string)
}

type noopMetrics struct{}

func (noopMetrics) RecordExecution(context.Context, string, string, time.Duration) {}
func (noopMetrics) IncrementActiveDrivers(context.Context)                         {}
func (noopMetrics) DecrementActiveDrivers(context.Context)                         {}
func (noopMetrics) RecordRoutingIteration(context.Context, string)                 {}

// workspaceInstructionKey is the workspace setting key holding the free-text
// instruction every agent invocation in that workspace is given alongside
// its own role/working instruction.
const workspaceInstructionKey = "instruction"

// Engine runs the routing driver loop described in spec §4.4.
type Engine struct {
	store   Store
	exec    Executor
	bus     *eventbus.Bus
	log     logging.Logger
	metrics Metrics

	cliType    string
	retryDelay time.Duration

	sf singleflight.Group

	agentCache *lru.Cache[string, []domain.Agent]

	engineCtx    context.Context
	engineCancel context.CancelFunc
	wg           sync.WaitGroup

	accepting         atomic.Bool
	activeDriverCount atomic.Int64
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger attaches a component logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.log = logging.NewComponentLogger(l, "routing") }
}

// WithCLIType sets the cli_type recorded on every Execution.
func WithCLIType(cliType string) Option {
	return func(e *Engine) { e.cliType = cliType }
}

// WithRetryDelay overrides the 1000ms inter-retry sleep (spec §4.4); tests
// use this to avoid waiting in real time.
func WithRetryDelay(d time.Duration) Option {
	return func(e *Engine) { e.retryDelay = d }
}

// WithMetrics attaches a metrics collector. Defaults to a no-op so the
// engine never needs a nil check before reporting.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New constructs an Engine. The engine starts in the accepting-new-routings
// state; internal/lifecycle flips it off during graceful shutdown.
func New(store Store, exec Executor, bus *eventbus.Bus, opts ...Option) *Engine {
	cache, _ := lru.New[string, []domain.Agent](256)
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:        store,
		exec:         exec,
		bus:          bus,
		log:          logging.Nop,
		metrics:      noopMetrics{},
		cliType:      "agent-cli",
		retryDelay:   time.Second,
		agentCache:   cache,
		engineCtx:    ctx,
		engineCancel: cancel,
	}
	e.accepting.Store(true)
	for _, opt := range opts {
		opt(e)
	}
	e.log = logging.NewComponentLogger(e.log, "routing")
	return e
}

// SetAccepting flips whether Trigger accepts new work. Used by
// internal/lifecycle during shutdown (spec §4.7 step 1).
func (e *Engine) SetAccepting(v bool) {
	e.accepting.Store(v)
}

// Accepting reports whether Trigger currently accepts new work.
func (e *Engine) Accepting() bool {
	return e.accepting.Load()
}

// ActiveDrivers returns how many driver-loop goroutines are currently live.
// internal/lifecycle polls GetRunningExecutions on the executor
// instead for the shutdown drain, but this is exposed for diagnostics.
func (e *Engine) ActiveDrivers() int {
	return int(e.activeDriverCount.Load())
}

// InvalidateAgentCache drops a workspace's cached agent ordering. Callers
// that mutate a workspace's agents must call this so the driver loop picks
// up the change on its next iteration.
func (e *Engine) InvalidateAgentCache(workspaceID string) {
	e.agentCache.Remove(workspaceID)
}

// Close cancels any in-flight driver loops and waits for them to return.
func (e *Engine) Close() {
	e.engineCancel()
	e.wg.Wait()
}

func (e *Engine) loadAgents(ctx context.Context, workspaceID string) ([]domain.Agent, error) {
	if cached, ok := e.agentCache.Get(workspaceID); ok {
		return cached, nil
	}
	agents, err := e.store.ListAgentsByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	e.agentCache.Add(workspaceID, agents)
	return agents, nil
}

func (e *Engine) buildExecutionContext(ctx context.Context, task domain.Task, agent domain.Agent, execution domain.Execution) (executor.Context, error) {
	ws, err := e.store.GetWorkspace(ctx, task.WorkspaceID)
	if err != nil {
		return executor.Context{}, fmt.Errorf("load workspace: %w", err)
	}
	instruction, _, err := e.store.GetWorkspaceSetting(ctx, task.WorkspaceID, workspaceInstructionKey)
	if err != nil {
		return executor.Context{}, fmt.Errorf("load workspace instruction: %w", err)
	}
	comments, err := e.store.ListCommentsByTask(ctx, task.ID)
	if err != nil {
		return executor.Context{}, fmt.Errorf("load comments: %w", err)
	}
	attachments, err := e.store.ListAttachmentsByTask(ctx, task.ID)
	if err != nil {
		return executor.Context{}, fmt.Errorf("load attachments: %w", err)
	}
	return executor.Context{
		Execution:            execution,
		Task:                 task,
		Agent:                agent,
		Workspace:            ws,
		WorkspaceInstruction: instruction,
		Comments:             comments,
		Attachments:          attachments,
	}, nil
}

func (e *Engine) addSystemComment(ctx context.Context, taskID, content string) {
	_, err := e.store.CreateComment(ctx, domain.Comment{
		ID:         ids.New(),
		TaskID:     taskID,
		Author:     "system",
		AuthorType: domain.AuthorSystem,
		Content:    content,
	})
	if err != nil {
		e.log.Warn("failed to append system comment", "task_id", taskID, "error", err)
		return
	}
	e.bus.Emit(eventbus.TaskCommentAdded, map[string]any{"task_id": taskID, "content": content})
}

func (e *Engine) publishRoutingUpdated(ctx context.Context, routingID, taskID string) {
	e.bus.Emit(eventbus.RoutingUpdated, map[string]any{"routing_id": routingID, "task_id": taskID})
}

func (e *Engine) publishTaskUpdated(ctx context.Context, taskID string) {
	e.bus.Emit(eventbus.TaskUpdated, map[string]any{"task_id": taskID})
}

var errShuttingDown = apperr.UnavailableError("routing engine is shutting down")
