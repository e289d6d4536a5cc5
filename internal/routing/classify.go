package routing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"taskrouter/internal/domain"
	"taskrouter/internal/eventbus"
	"taskrouter/internal/executor"
	"taskrouter/internal/ids"
)

// outcome is the driver loop's view of one executeAgent call (spec §4.4.1).
type outcome struct {
	success   bool
	worked    bool
	retryable bool
	errMsg    string
	fatal     error // non-nil only for errors the loop cannot classify at all
}

// executeAgent creates an Execution, runs it through the executor, and
// classifies the result per the table in spec §4.4.1.
func (e *Engine) executeAgent(ctx context.Context, task domain.Task, agent domain.Agent) outcome {
	ctx, span := tracer.Start(ctx, "routing.executeAgent", trace.WithAttributes(
		attribute.String("task_id", task.ID),
		attribute.String("agent_id", agent.ID),
		attribute.String("agent_name", agent.Name),
	))
	defer span.End()

	execution, err := e.store.CreateExecution(ctx, domain.Execution{
		ID:        ids.New(),
		TaskID:    task.ID,
		AgentID:   agent.ID,
		AgentName: agent.Name,
		CLIType:   e.cliType,
		Status:    domain.ExecutionPending,
	})
	if err != nil {
		return outcome{fatal: fmt.Errorf("create execution: %w", err)}
	}
	e.bus.Emit(eventbus.ExecutionCreated, map[string]any{
		"execution_id": execution.ID,
		"task_id":      task.ID,
		"agent_id":     agent.ID,
	})

	if err := e.store.SetExecutionRunning(ctx, execution.ID); err != nil {
		return outcome{fatal: fmt.Errorf("mark execution running: %w", err)}
	}
	e.bus.Emit(eventbus.ExecutionUpdated, map[string]any{"execution_id": execution.ID, "status": string(domain.ExecutionRunning)})

	ec, err := e.buildExecutionContext(ctx, task, agent, execution)
	if err != nil {
		return outcome{fatal: fmt.Errorf("build execution context: %w", err)}
	}

	started := time.Now()
	report, err := e.exec.Execute(ctx, ec)
	e.metrics.RecordExecution(ctx, agent.Name, string(report.Status), time.Since(started))
	if err != nil {
		return outcome{fatal: fmt.Errorf("execute agent %s: %w", agent.Name, err)}
	}

	if err := e.store.CompleteExecution(ctx, execution.ID, report.Status, report.Result, report.Output); err != nil {
		return outcome{fatal: fmt.Errorf("persist execution result: %w", err)}
	}
	e.bus.Emit(eventbus.ExecutionUpdated, map[string]any{
		"execution_id": execution.ID,
		"status":       string(report.Status),
		"result":       resultString(report.Result),
	})

	return e.classify(ctx, task, agent, report)
}

// classify maps a completed/failed Execution report to {success, worked,
// retryable} exactly per spec §4.4.1's table.
func (e *Engine) classify(ctx context.Context, task domain.Task, agent domain.Agent, report executor.Report) outcome {
	if report.Status == domain.ExecutionCompleted {
		if report.Result == nil {
			return outcome{success: true, worked: false}
		}
		switch *report.Result {
		case domain.ResultComment:
			_, err := e.store.CreateComment(ctx, domain.Comment{
				ID:         ids.New(),
				TaskID:     task.ID,
				Author:     agent.Name,
				AuthorType: domain.AuthorAgent,
				Content:    report.Output,
			})
			if err != nil {
				e.log.Warn("failed to append agent comment", "task_id", task.ID, "error", err)
			} else {
				e.bus.Emit(eventbus.TaskCommentAdded, map[string]any{"task_id": task.ID, "author": agent.Name})
			}
			return outcome{success: true, worked: true}
		case domain.ResultError:
			return outcome{success: true, worked: true}
		case domain.ResultSkip:
			fallthrough
		default:
			return outcome{success: true, worked: false}
		}
	}

	// report.Status == domain.ExecutionFailed
	lower := strings.ToLower(report.Output)
	if strings.Contains(lower, "timeout") || strings.Contains(lower, "terminated") {
		e.addSystemComment(ctx, task.ID, fmt.Sprintf("Agent %s timed out", agent.Name))
		return outcome{success: true, worked: true}
	}
	return outcome{success: false, worked: false, retryable: true, errMsg: report.Output}
}

func resultString(r *domain.ExecutionResult) string {
	if r == nil {
		return ""
	}
	return string(*r)
}
