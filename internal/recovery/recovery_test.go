package recovery

import (
	"context"
	"fmt"
	"testing"

	"taskrouter/internal/domain"
	"taskrouter/internal/ids"
	"taskrouter/internal/logging"
)

type fakeRecoveryStore struct {
	routings     []domain.TaskRouting
	tasks        map[string]domain.Task
	agents       map[string][]domain.Agent
	executions   map[string]domain.Execution
	orphansCalls []string
}

func newFakeRecoveryStore() *fakeRecoveryStore {
	return &fakeRecoveryStore{
		tasks:      make(map[string]domain.Task),
		agents:     make(map[string][]domain.Agent),
		executions: make(map[string]domain.Execution),
	}
}

func (f *fakeRecoveryStore) ListPendingOrRunningRoutings(ctx context.Context) ([]domain.TaskRouting, error) {
	return f.routings, nil
}

func (f *fakeRecoveryStore) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return f.tasks[id], nil
}

func (f *fakeRecoveryStore) ListAgentsByWorkspace(ctx context.Context, workspaceID string) ([]domain.Agent, error) {
	return f.agents[workspaceID], nil
}

func (f *fakeRecoveryStore) ListOrphanedExecutions(ctx context.Context, taskID string, agentIDsPastIndex map[string]bool) ([]domain.Execution, error) {
	f.orphansCalls = append(f.orphansCalls, taskID)
	var out []domain.Execution
	for _, e := range f.executions {
		if e.TaskID != taskID {
			continue
		}
		if e.Status != domain.ExecutionPending && e.Status != domain.ExecutionRunning {
			continue
		}
		if agentIDsPastIndex[e.AgentID] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRecoveryStore) CompleteExecution(ctx context.Context, id string, status domain.ExecutionStatus, result *domain.ExecutionResult, output string) error {
	e := f.executions[id]
	e.Status = status
	e.Result = result
	e.Output = output
	f.executions[id] = e
	return nil
}

type fakeRecoveryEngine struct {
	resumed []string
	failOn  map[string]bool
}

func newFakeRecoveryEngine() *fakeRecoveryEngine {
	return &fakeRecoveryEngine{failOn: make(map[string]bool)}
}

func (f *fakeRecoveryEngine) Resume(ctx context.Context, routingID string) (domain.TaskRouting, error) {
	f.resumed = append(f.resumed, routingID)
	if f.failOn[routingID] {
		return domain.TaskRouting{}, fmt.Errorf("boom")
	}
	return domain.TaskRouting{ID: routingID}, nil
}

func TestRunResumesEveryPendingOrRunningRouting(t *testing.T) {
	store := newFakeRecoveryStore()
	ws := "ws-1"
	task1 := domain.Task{ID: ids.New(), WorkspaceID: ws}
	task2 := domain.Task{ID: ids.New(), WorkspaceID: ws}
	store.tasks[task1.ID] = task1
	store.tasks[task2.ID] = task2
	store.agents[ws] = []domain.Agent{{ID: ids.New()}}

	r1 := domain.TaskRouting{ID: ids.New(), TaskID: task1.ID, Status: domain.RoutingRunning}
	r2 := domain.TaskRouting{ID: ids.New(), TaskID: task2.ID, Status: domain.RoutingPending}
	store.routings = []domain.TaskRouting{r1, r2}

	engine := newFakeRecoveryEngine()
	rec := New(store, engine, logging.Nop)

	res := rec.Run(context.Background())

	if res.RoutingsFound != 2 || res.RoutingsResumed != 2 || res.RoutingsFailed != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(engine.resumed) != 2 || engine.resumed[0] != r1.ID || engine.resumed[1] != r2.ID {
		t.Fatalf("expected resume in creation order, got %v", engine.resumed)
	}
}

func TestRunContinuesAfterOneResumeFails(t *testing.T) {
	store := newFakeRecoveryStore()
	ws := "ws-1"
	task1 := domain.Task{ID: ids.New(), WorkspaceID: ws}
	task2 := domain.Task{ID: ids.New(), WorkspaceID: ws}
	store.tasks[task1.ID] = task1
	store.tasks[task2.ID] = task2
	store.agents[ws] = nil

	r1 := domain.TaskRouting{ID: ids.New(), TaskID: task1.ID, Status: domain.RoutingRunning}
	r2 := domain.TaskRouting{ID: ids.New(), TaskID: task2.ID, Status: domain.RoutingRunning}
	store.routings = []domain.TaskRouting{r1, r2}

	engine := newFakeRecoveryEngine()
	engine.failOn[r1.ID] = true
	rec := New(store, engine, logging.Nop)

	res := rec.Run(context.Background())

	if res.RoutingsFailed != 1 || res.RoutingsResumed != 1 {
		t.Fatalf("expected one failure and one success, got %+v", res)
	}
	if len(engine.resumed) != 2 {
		t.Fatalf("expected both routings to be attempted, got %v", engine.resumed)
	}
}

func TestReconcileOrphansMarksPastAndCurrentAgentExecutionsFailed(t *testing.T) {
	store := newFakeRecoveryStore()
	ws := "ws-1"
	a1 := domain.Agent{ID: ids.New()}
	a2 := domain.Agent{ID: ids.New()}
	a3 := domain.Agent{ID: ids.New()}
	store.agents[ws] = []domain.Agent{a1, a2, a3}

	task := domain.Task{ID: ids.New(), WorkspaceID: ws}
	store.tasks[task.ID] = task

	// Routing crashed while on agent index 1 (a2). a1's execution already
	// completed cleanly in a prior iteration; a2 has a stale running row
	// left by the crash; a3 has never run.
	staleA1 := domain.Execution{ID: ids.New(), TaskID: task.ID, AgentID: a1.ID, Status: domain.ExecutionCompleted}
	staleA2 := domain.Execution{ID: ids.New(), TaskID: task.ID, AgentID: a2.ID, Status: domain.ExecutionRunning}
	store.executions[staleA1.ID] = staleA1
	store.executions[staleA2.ID] = staleA2

	routing := domain.TaskRouting{ID: ids.New(), TaskID: task.ID, Status: domain.RoutingRunning, CurrentAgentIndex: 1}

	rec := New(store, newFakeRecoveryEngine(), logging.Nop)
	cleaned, err := rec.reconcileOrphans(context.Background(), routing)
	if err != nil {
		t.Fatalf("reconcileOrphans: %v", err)
	}
	if cleaned != 1 {
		t.Fatalf("expected exactly 1 orphan cleaned (the stale a2 row), got %d", cleaned)
	}

	got := store.executions[staleA2.ID]
	if got.Status != domain.ExecutionFailed || got.Output != "recovered: orphaned by restart" {
		t.Fatalf("expected staleA2 marked failed/orphaned, got %+v", got)
	}
	if store.executions[staleA1.ID].Status != domain.ExecutionCompleted {
		t.Fatalf("a1's already-completed row should not have been touched")
	}
}

func TestRunSkipsOrphanSweepWhenNoAgents(t *testing.T) {
	store := newFakeRecoveryStore()
	ws := "ws-empty"
	task := domain.Task{ID: ids.New(), WorkspaceID: ws}
	store.tasks[task.ID] = task
	store.agents[ws] = nil

	routing := domain.TaskRouting{ID: ids.New(), TaskID: task.ID, Status: domain.RoutingRunning}
	store.routings = []domain.TaskRouting{routing}

	rec := New(store, newFakeRecoveryEngine(), logging.Nop)
	res := rec.Run(context.Background())

	if res.OrphansCleaned != 0 {
		t.Fatalf("expected no orphans cleaned with no agents, got %d", res.OrphansCleaned)
	}
	if len(store.orphansCalls) != 0 {
		t.Fatalf("expected ListOrphanedExecutions to be skipped entirely, got calls %v", store.orphansCalls)
	}
}
