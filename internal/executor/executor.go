// Package executor runs one agent CLI against one task in a per-execution
// sandbox directory and reports a structured result (spec §4.3).
//
// Process-lifecycle management (process groups, soft-then-hard kill, stderr
// tail capture) is adapted directly from the teacher's
// internal/infra/external/subprocess package; the spawn→stdin-write→
// line-by-line stdout parse→exit-classification flow follows
// internal/infra/external/bridge's executor (see DESIGN.md).
package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"taskrouter/internal/attachments"
	"taskrouter/internal/domain"
	"taskrouter/internal/eventbus"
	"taskrouter/internal/ids"
	"taskrouter/internal/logging"
	"taskrouter/internal/pool"
)

// LogAppender persists one execution log line. Implemented by
// internal/store.Store; kept as a narrow interface here so the executor does
// not depend on the whole store package surface.
type LogAppender interface {
	AppendExecutionLog(ctx context.Context, l domain.ExecutionLog) (domain.ExecutionLog, error)
}

// Context bundles everything one execution needs (spec §4.3).
type Context struct {
	Execution            domain.Execution
	Task                 domain.Task
	Agent                domain.Agent
	Workspace            domain.Workspace
	WorkspaceInstruction string
	Comments             []domain.Comment
	Attachments          []domain.Attachment
}

// Report is the classification the executor hands back to the routing
// engine (spec §4.3 "Classification" table).
type Report struct {
	Status  domain.ExecutionStatus
	Result  *domain.ExecutionResult
	Output  string
	Killed  bool
}

// Executor runs agent CLI invocations.
type Executor struct {
	pool        *pool.Pool
	bus         *eventbus.Bus
	logs        LogAppender
	attachments *attachments.Store
	tmpDir      string
	agentCmd    string
	agentArgs   []string
	log         logging.Logger

	mu              sync.RWMutex
	runningByExec   map[string]*runningProcess
	runningByTask   map[string]map[string]bool
}

// Option configures an Executor at construction time.
type Option func(*Executor)

func WithAgentCommand(cmd string, args []string) Option {
	return func(e *Executor) { e.agentCmd = cmd; e.agentArgs = args }
}

func WithLogger(l logging.Logger) Option {
	return func(e *Executor) { e.log = logging.NewComponentLogger(l, "executor") }
}

// New constructs an Executor. tmpDir is the root under which
// executions/<execution_id> sandboxes are created.
func New(p *pool.Pool, bus *eventbus.Bus, logs LogAppender, attachmentStore *attachments.Store, tmpDir string, opts ...Option) *Executor {
	e := &Executor{
		pool:          p,
		bus:           bus,
		logs:          logs,
		attachments:   attachmentStore,
		tmpDir:        tmpDir,
		agentCmd:      "agent-cli",
		agentArgs:     []string{"--stream-json", "--dangerously-skip-permissions"},
		log:           logging.Nop,
		runningByExec: make(map[string]*runningProcess),
		runningByTask: make(map[string]map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = logging.NewComponentLogger(e.log, "executor")
	return e
}

// Execute runs one agent invocation end to end: acquires a pool slot,
// prepares the sandbox, spawns the CLI, streams its output, waits for exit
// or timeout, parses task_output.json, and cleans up. Every path out of this
// method releases its pool slot exactly once (spec §4.2).
func (e *Executor) Execute(ctx context.Context, ec Context) (Report, error) {
	tok, err := e.pool.Acquire(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("acquire pool slot: %w", err)
	}
	defer tok.Release()

	execID := ec.Execution.ID
	sandboxDir := filepath.Join(e.tmpDir, "executions", execID)

	if err := e.prepareSandbox(sandboxDir, ec); err != nil {
		return Report{Status: domain.ExecutionFailed, Output: err.Error()}, nil
	}
	defer os.RemoveAll(sandboxDir) // best-effort, spec §4.3 step 9

	proc, err := e.spawn(ctx, sandboxDir, ec)
	if err != nil {
		return Report{Status: domain.ExecutionFailed, Output: err.Error()}, nil
	}

	e.registerRunning(ec.Task.ID, execID, proc)
	defer e.unregisterRunning(ec.Task.ID, execID)

	var timeoutTimer *time.Timer
	if ec.Agent.TimeoutMinutes != nil && *ec.Agent.TimeoutMinutes > 0 {
		d := time.Duration(*ec.Agent.TimeoutMinutes) * time.Minute
		timeoutTimer = time.AfterFunc(d, func() {
			_ = proc.stop()
		})
	}

	e.streamOutput(ctx, execID, proc)

	waitErr := proc.wait()
	if timeoutTimer != nil {
		timeoutTimer.Stop()
	}

	if proc.wasKilled() {
		return Report{
			Status: domain.ExecutionFailed,
			Output: "Execution was terminated after exceeding its timeout or being cancelled",
			Killed: true,
		}, nil
	}
	if waitErr != nil {
		msg := fmt.Sprintf("CLI exited with code %d", proc.exitCode())
		if tail := proc.stderrTail(); tail != "" {
			msg += ": " + tail
		}
		return Report{
			Status: domain.ExecutionFailed,
			Output: msg,
		}, nil
	}

	return e.classifyOutput(sandboxDir), nil
}

// Cancel sends the kill sequence to a running execution's process group.
// Returns whether a live process was found.
func (e *Executor) Cancel(executionID string) bool {
	e.mu.RLock()
	proc, ok := e.runningByExec[executionID]
	e.mu.RUnlock()
	if !ok {
		return false
	}
	_ = proc.stop()
	return true
}

// CancelByTask cancels every running execution for a task, returning how
// many were found.
func (e *Executor) CancelByTask(taskID string) int {
	e.mu.RLock()
	execIDs := make([]string, 0, len(e.runningByTask[taskID]))
	for id := range e.runningByTask[taskID] {
		execIDs = append(execIDs, id)
	}
	e.mu.RUnlock()

	count := 0
	for _, id := range execIDs {
		if e.Cancel(id) {
			count++
		}
	}
	return count
}

// GetRunningExecutions returns the ids of all currently running executions.
func (e *Executor) GetRunningExecutions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.runningByExec))
	for id := range e.runningByExec {
		out = append(out, id)
	}
	return out
}

// GetPoolStats proxies to the underlying concurrency pool.
func (e *Executor) GetPoolStats() pool.Stats {
	return e.pool.Stats()
}

func (e *Executor) registerRunning(taskID, execID string, proc *runningProcess) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runningByExec[execID] = proc
	if e.runningByTask[taskID] == nil {
		e.runningByTask[taskID] = make(map[string]bool)
	}
	e.runningByTask[taskID][execID] = true
}

func (e *Executor) unregisterRunning(taskID, execID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.runningByExec, execID)
	if m := e.runningByTask[taskID]; m != nil {
		delete(m, execID)
		if len(m) == 0 {
			delete(e.runningByTask, taskID)
		}
	}
}

func (e *Executor) appendLog(ctx context.Context, executionID, content string) {
	now := time.Now().UnixMilli()
	_, err := e.logs.AppendExecutionLog(ctx, domain.ExecutionLog{
		ID:          ids.New(),
		ExecutionID: executionID,
		Content:     content,
		Timestamp:   now,
	})
	if err != nil {
		e.log.Warn("failed to append execution log", "execution_id", executionID, "error", err)
	}
	e.bus.Emit(eventbus.ExecutionLogEvent, map[string]any{
		"execution_id": executionID,
		"content":      content,
		"timestamp":    now,
	})
}
