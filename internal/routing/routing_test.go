package routing

import (
	"context"
	"testing"
	"time"

	"taskrouter/internal/domain"
	"taskrouter/internal/eventbus"
	"taskrouter/internal/executor"
	"taskrouter/internal/ids"
)

func newTestEngine(t *testing.T, store *fakeStore, exec *scriptedExecutor) *Engine {
	t.Helper()
	bus := eventbus.New()
	e := New(store, exec, bus, WithRetryDelay(time.Millisecond))
	t.Cleanup(e.Close)
	return e
}

func seedWorkspaceAndTask(store *fakeStore, agents ...domain.Agent) (domain.Workspace, domain.Task) {
	ws := domain.Workspace{ID: ids.New(), Name: "ws"}
	store.workspaces[ws.ID] = ws
	store.agents[ws.ID] = agents
	task := domain.Task{ID: ids.New(), WorkspaceID: ws.ID, Title: "T", Status: domain.TaskTodo}
	store.tasks[task.ID] = task
	return ws, task
}

func waitForTerminal(t *testing.T, store *fakeStore, routingID string) domain.TaskRouting {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		r, err := store.GetRouting(context.Background(), routingID)
		if err == nil && r.Status.IsTerminal() {
			return r
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for routing %s to reach a terminal state", routingID)
	return domain.TaskRouting{}
}

// Scenario 1: Skip-only convergence.
func TestSkipOnlyConvergence(t *testing.T) {
	store := newFakeStore()
	a1 := domain.Agent{ID: ids.New(), Name: "A1"}
	a2 := domain.Agent{ID: ids.New(), Name: "A2"}
	_, task := seedWorkspaceAndTask(store, a1, a2)

	exec := newScriptedExecutor()
	engine := newTestEngine(t, store, exec)

	routing, err := engine.Trigger(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	final := waitForTerminal(t, store, routing.ID)
	if final.Status != domain.RoutingCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	if final.AnyAgentWorked {
		t.Fatalf("expected any_agent_worked=false")
	}
	if exec.callCount(a1.ID) != 1 || exec.callCount(a2.ID) != 1 {
		t.Fatalf("expected exactly one execution per agent, got a1=%d a2=%d", exec.callCount(a1.ID), exec.callCount(a2.ID))
	}

	finalTask, _ := store.GetTask(context.Background(), task.ID)
	if finalTask.Status != domain.TaskInReview {
		t.Fatalf("expected task in_review, got %s", finalTask.Status)
	}

	comments, _ := store.ListCommentsByTask(context.Background(), task.ID)
	if len(comments) != 1 || comments[0].Content != "Task routing completed — awaiting review" {
		t.Fatalf("expected exactly one convergence comment, got %+v", comments)
	}
}

// Scenario 2: comment then skip.
func TestCommentThenSkipConvergence(t *testing.T) {
	store := newFakeStore()
	a1 := domain.Agent{ID: ids.New(), Name: "A1"}
	_, task := seedWorkspaceAndTask(store, a1)

	exec := newScriptedExecutor()
	exec.program(a1.ID,
		executor.Report{Status: domain.ExecutionCompleted, Result: commentResult(), Output: "hello"},
		executor.Report{Status: domain.ExecutionCompleted, Result: skipResult()},
	)
	engine := newTestEngine(t, store, exec)

	routing, err := engine.Trigger(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	final := waitForTerminal(t, store, routing.ID)
	if final.Status != domain.RoutingCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	if final.Iteration != 1 {
		t.Fatalf("expected iteration=1, got %d", final.Iteration)
	}
	if final.AnyAgentWorked {
		t.Fatalf("expected any_agent_worked=false at convergence")
	}

	comments, _ := store.ListCommentsByTask(context.Background(), task.ID)
	found := false
	for _, c := range comments {
		if c.Content == "hello" && c.AuthorType == domain.AuthorAgent {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an agent comment with content 'hello', got %+v", comments)
	}
}

// Scenario 4: crash and retry.
func TestCrashAndRetryThenCancel(t *testing.T) {
	store := newFakeStore()
	a1 := domain.Agent{ID: ids.New(), Name: "A1"}
	_, task := seedWorkspaceAndTask(store, a1)

	exec := newScriptedExecutor()
	failing := executor.Report{Status: domain.ExecutionFailed, Output: "CLI exited with code 1"}
	exec.program(a1.ID, failing, failing, failing, failing)
	engine := newTestEngine(t, store, exec)

	routing, err := engine.Trigger(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	// Let the driver burn through MaxRetries, then cancel it (per the spec's
	// own framing: this cycle is only broken by an operator cancelling).
	deadline := time.Now().Add(5 * time.Second)
	for exec.callCount(a1.ID) < domain.MaxRetries+1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if exec.callCount(a1.ID) < domain.MaxRetries+1 {
		t.Fatalf("expected %d executions before giving up, got %d", domain.MaxRetries+1, exec.callCount(a1.ID))
	}

	if _, cancelled, err := engine.Cancel(context.Background(), task.ID); err != nil || !cancelled {
		t.Fatalf("Cancel: cancelled=%v err=%v", cancelled, err)
	}

	final := waitForTerminal(t, store, routing.ID)
	if final.Status != domain.RoutingFailed {
		t.Fatalf("expected failed after cancel, got %s", final.Status)
	}
	finalTask, _ := store.GetTask(context.Background(), task.ID)
	if finalTask.Status != domain.TaskTodo {
		t.Fatalf("expected task back to todo, got %s", finalTask.Status)
	}
}

func TestTriggerOnAlreadyRunningRoutingIsNoOp(t *testing.T) {
	store := newFakeStore()
	a1 := domain.Agent{ID: ids.New(), Name: "A1"}
	_, task := seedWorkspaceAndTask(store, a1)

	exec := newScriptedExecutor()
	exec.program(a1.ID, executor.Report{Status: domain.ExecutionFailed, Output: "hangs"})
	engine := newTestEngine(t, store, exec)

	first, err := engine.Trigger(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	second, err := engine.Trigger(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("second Trigger: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same routing record, got %s vs %s", first.ID, second.ID)
	}

	engine.Cancel(context.Background(), task.ID)
	waitForTerminal(t, store, first.ID)
}

func TestEmptyWorkspaceCompletesImmediately(t *testing.T) {
	store := newFakeStore()
	_, task := seedWorkspaceAndTask(store)

	exec := newScriptedExecutor()
	engine := newTestEngine(t, store, exec)

	routing, err := engine.Trigger(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	final := waitForTerminal(t, store, routing.ID)
	if final.Status != domain.RoutingCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
}
