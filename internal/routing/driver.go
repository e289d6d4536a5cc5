package routing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"taskrouter/internal/domain"
	"taskrouter/internal/eventbus"
)

var tracer = otel.Tracer("taskrouter/routing")

// Trigger starts or resumes routing for a task (spec §4.4 "Trigger").
// Concurrent calls for the same task id are collapsed via singleflight; the
// lock acquired below is what actually makes repeated triggers idempotent
// once a driver loop is already running.
func (e *Engine) Trigger(ctx context.Context, taskID string) (domain.TaskRouting, error) {
	ctx, span := tracer.Start(ctx, "routing.Trigger", trace.WithAttributes(attribute.String("task_id", taskID)))
	defer span.End()

	if !e.Accepting() {
		span.SetStatus(codes.Error, errShuttingDown.Error())
		return domain.TaskRouting{}, errShuttingDown
	}
	v, err, _ := e.sf.Do("trigger:"+taskID, func() (any, error) {
		return e.triggerOnce(ctx, taskID)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.TaskRouting{}, err
	}
	return v.(domain.TaskRouting), nil
}

func (e *Engine) triggerOnce(ctx context.Context, taskID string) (domain.TaskRouting, error) {
	if _, err := e.store.GetTask(ctx, taskID); err != nil {
		return domain.TaskRouting{}, err
	}

	routing, err := e.store.FindOrCreateRouting(ctx, taskID)
	if err != nil {
		return domain.TaskRouting{}, err
	}

	if routing.Status.IsTerminal() {
		if err := e.store.ResetRoutingForTrigger(ctx, routing.ID); err != nil {
			return domain.TaskRouting{}, err
		}
		routing, err = e.store.GetRouting(ctx, routing.ID)
		if err != nil {
			return domain.TaskRouting{}, err
		}
	}

	acquired, err := e.store.TryAcquireRoutingLock(ctx, routing.ID)
	if err != nil {
		return domain.TaskRouting{}, err
	}
	if !acquired {
		// A fresh lock means a driver loop already owns this routing —
		// idempotent no-op, return the record unchanged.
		return e.store.GetRouting(ctx, routing.ID)
	}

	if err := e.store.SetTaskStatus(ctx, taskID, domain.TaskInProgress); err != nil {
		_ = e.store.ReleaseRoutingLock(ctx, routing.ID)
		return domain.TaskRouting{}, err
	}
	if err := e.store.SetRoutingRunning(ctx, routing.ID); err != nil {
		_ = e.store.ReleaseRoutingLock(ctx, routing.ID)
		return domain.TaskRouting{}, err
	}
	e.publishRoutingUpdated(ctx, routing.ID, taskID)
	e.publishTaskUpdated(ctx, taskID)

	e.spawnDriver(routing.ID, taskID)

	return e.store.GetRouting(ctx, routing.ID)
}

// Resume re-enters the driver loop for an existing routing at its persisted
// progress (spec §4.5). Terminal-state routings are skipped; lock
// contention is a no-op, same as Trigger.
func (e *Engine) Resume(ctx context.Context, routingID string) (domain.TaskRouting, error) {
	routing, err := e.store.GetRouting(ctx, routingID)
	if err != nil {
		return domain.TaskRouting{}, err
	}
	if routing.Status.IsTerminal() {
		return routing, nil
	}

	acquired, err := e.store.TryAcquireRoutingLock(ctx, routingID)
	if err != nil {
		return domain.TaskRouting{}, err
	}
	if !acquired {
		return routing, nil
	}

	if routing.Status != domain.RoutingRunning {
		if err := e.store.SetRoutingRunning(ctx, routingID); err != nil {
			_ = e.store.ReleaseRoutingLock(ctx, routingID)
			return domain.TaskRouting{}, err
		}
	}
	e.publishRoutingUpdated(ctx, routingID, routing.TaskID)

	e.spawnDriver(routingID, routing.TaskID)

	return e.store.GetRouting(ctx, routingID)
}

// Cancel stops all running work for a task (spec §4.4.2). Calling it on a
// task with no routing is a no-op that returns (zero-value, false).
func (e *Engine) Cancel(ctx context.Context, taskID string) (domain.TaskRouting, bool, error) {
	routing, err := e.store.GetRoutingByTaskID(ctx, taskID)
	if err != nil {
		return domain.TaskRouting{}, false, nil
	}

	e.exec.CancelByTask(taskID)

	if err := e.store.SetRoutingFailed(ctx, routing.ID, "Cancelled by user"); err != nil {
		return domain.TaskRouting{}, false, err
	}
	if err := e.store.SetTaskStatus(ctx, taskID, domain.TaskTodo); err != nil {
		return domain.TaskRouting{}, false, err
	}
	e.addSystemComment(ctx, taskID, "Task routing cancelled by user")
	e.publishRoutingUpdated(ctx, routing.ID, taskID)
	e.publishTaskUpdated(ctx, taskID)

	updated, err := e.store.GetRouting(ctx, routing.ID)
	return updated, true, err
}

// spawnDriver launches runExecutionLoop on the engine's own background
// context (independent of any single request's lifetime), recovering from
// panics the way the teacher's executeTaskInBackground does.
func (e *Engine) spawnDriver(routingID, taskID string) {
	e.wg.Add(1)
	e.activeDriverCount.Add(1)
	e.metrics.IncrementActiveDrivers(e.engineCtx)
	go func() {
		defer e.wg.Done()
		defer e.activeDriverCount.Add(-1)
		defer e.metrics.DecrementActiveDrivers(e.engineCtx)
		defer func() {
			if r := recover(); r != nil {
				e.log.Error("panic in routing driver loop", "routing_id", routingID, "task_id", taskID, "panic", r)
				e.failRouting(e.engineCtx, routingID, taskID, fmt.Errorf("panic: %v", r))
			}
		}()
		e.runExecutionLoop(e.engineCtx, routingID, taskID)
	}()
}

// runExecutionLoop is the driver loop pseudocode from spec §4.4, transcribed
// directly: load routing, load agents, dispatch or converge, classify,
// retry/advance, repeat. The routing lock is always released on the way
// out, matching the spec's "always releases the lock in its terminating
// finally".
func (e *Engine) runExecutionLoop(ctx context.Context, routingID, taskID string) {
	ctx, span := tracer.Start(ctx, "routing.driverLoop", trace.WithAttributes(
		attribute.String("routing_id", routingID),
		attribute.String("task_id", taskID),
	))
	defer span.End()
	defer func() {
		if err := e.store.ReleaseRoutingLock(context.Background(), routingID); err != nil {
			e.log.Warn("failed to release routing lock", "routing_id", routingID, "error", err)
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		routing, err := e.store.GetRouting(ctx, routingID)
		if err != nil {
			e.log.Error("failed to load routing in driver loop", "routing_id", routingID, "error", err)
			return
		}
		if routing.Status != domain.RoutingRunning {
			return // cancelled or otherwise moved to a terminal state externally
		}

		task, err := e.store.GetTask(ctx, taskID)
		if err != nil {
			e.failRouting(ctx, routingID, taskID, fmt.Errorf("load task: %w", err))
			return
		}

		agents, err := e.loadAgents(ctx, task.WorkspaceID)
		if err != nil {
			e.failRouting(ctx, routingID, taskID, fmt.Errorf("load agents: %w", err))
			return
		}

		if len(agents) == 0 {
			e.completeRouting(ctx, routingID, taskID)
			return
		}

		if routing.CurrentAgentIndex >= len(agents) {
			if routing.AnyAgentWorked {
				if err := e.store.StartNewIteration(ctx, routingID); err != nil {
					e.failRouting(ctx, routingID, taskID, fmt.Errorf("start new iteration: %w", err))
					return
				}
				e.metrics.RecordRoutingIteration(ctx, taskID)
				e.publishRoutingUpdated(ctx, routingID, taskID)
				continue
			}
			e.completeRouting(ctx, routingID, taskID)
			return
		}

		agent := agents[routing.CurrentAgentIndex]
		out := e.executeAgent(ctx, task, agent)
		if out.fatal != nil {
			span.RecordError(out.fatal)
			span.SetStatus(codes.Error, out.fatal.Error())
			e.failRouting(ctx, routingID, taskID, out.fatal)
			return
		}

		if out.success {
			if out.worked {
				if err := e.store.MarkAgentWorked(ctx, routingID); err != nil {
					e.failRouting(ctx, routingID, taskID, fmt.Errorf("mark agent worked: %w", err))
					return
				}
			}
			if err := e.store.ResetRetryCount(ctx, routingID); err != nil {
				e.failRouting(ctx, routingID, taskID, fmt.Errorf("reset retry count: %w", err))
				return
			}
			if err := e.store.AdvanceToNextAgent(ctx, routingID); err != nil {
				e.failRouting(ctx, routingID, taskID, fmt.Errorf("advance agent: %w", err))
				return
			}
			e.publishRoutingUpdated(ctx, routingID, taskID)
			e.bus.Emit(eventbus.TaskUpdated, map[string]any{"task_id": taskID})
			continue
		}

		// failure path: retry the same agent up to MaxRetries, else give up on
		// it and advance (a failed agent still counts as "worked" so the
		// iteration-convergence check cannot loop forever).
		if out.retryable && routing.RetryCount < domain.MaxRetries {
			if err := e.store.IncrementRetryCount(ctx, routingID); err != nil {
				e.failRouting(ctx, routingID, taskID, fmt.Errorf("increment retry count: %w", err))
				return
			}
			select {
			case <-time.After(e.retryDelay):
			case <-ctx.Done():
				return
			}
			continue
		}

		e.addSystemComment(ctx, taskID, fmt.Sprintf("Agent %s failed: %s", agent.Name, out.errMsg))
		if err := e.store.MarkAgentWorked(ctx, routingID); err != nil {
			e.failRouting(ctx, routingID, taskID, fmt.Errorf("mark agent worked: %w", err))
			return
		}
		if err := e.store.ResetRetryCount(ctx, routingID); err != nil {
			e.failRouting(ctx, routingID, taskID, fmt.Errorf("reset retry count: %w", err))
			return
		}
		if err := e.store.AdvanceToNextAgent(ctx, routingID); err != nil {
			e.failRouting(ctx, routingID, taskID, fmt.Errorf("advance agent: %w", err))
			return
		}
		e.publishRoutingUpdated(ctx, routingID, taskID)
	}
}
