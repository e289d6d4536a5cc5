package routing

import (
	"context"

	"taskrouter/internal/domain"
)

// completeRouting marks a routing converged: every agent in the latest
// iteration skipped, so there is nothing left to do until a human acts
// (spec §4.4.2).
func (e *Engine) completeRouting(ctx context.Context, routingID, taskID string) {
	if err := e.store.SetRoutingCompleted(ctx, routingID); err != nil {
		e.log.Error("failed to mark routing completed", "routing_id", routingID, "error", err)
		return
	}
	if err := e.store.SetTaskStatus(ctx, taskID, domain.TaskInReview); err != nil {
		e.log.Error("failed to move task to in_review", "task_id", taskID, "error", err)
	}
	e.addSystemComment(ctx, taskID, "Task routing completed — awaiting review")
	e.publishRoutingUpdated(ctx, routingID, taskID)
	e.publishTaskUpdated(ctx, taskID)
}

// failRouting marks a routing failed with err recorded as its error_message
// and returns the task to todo so the user can retry (spec §4.4.2). Any
// fatal, unclassifiable error inside the driver loop routes here.
func (e *Engine) failRouting(ctx context.Context, routingID, taskID string, cause error) {
	if err := e.store.SetRoutingFailed(ctx, routingID, cause.Error()); err != nil {
		e.log.Error("failed to mark routing failed", "routing_id", routingID, "error", err)
		return
	}
	if err := e.store.SetTaskStatus(ctx, taskID, domain.TaskTodo); err != nil {
		e.log.Error("failed to move task to todo", "task_id", taskID, "error", err)
	}
	e.addSystemComment(ctx, taskID, "Task routing failed: "+cause.Error())
	e.publishRoutingUpdated(ctx, routingID, taskID)
	e.publishTaskUpdated(ctx, taskID)
}
