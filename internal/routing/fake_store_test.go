package routing

import (
	"context"
	"sync"

	"taskrouter/internal/apperr"
	"taskrouter/internal/domain"
	"taskrouter/internal/ids"
)

// fakeStore is a minimal in-memory implementation of Store, enough to drive
// the routing engine's acceptance scenarios without a real database.
type fakeStore struct {
	mu sync.Mutex

	tasks        map[string]domain.Task
	workspaces   map[string]domain.Workspace
	settings     map[string]string
	agents       map[string][]domain.Agent
	comments     map[string][]domain.Comment
	attachments  map[string][]domain.Attachment
	routings     map[string]domain.TaskRouting
	routingByTsk map[string]string
	executions   map[string]domain.Execution
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks:        make(map[string]domain.Task),
		workspaces:   make(map[string]domain.Workspace),
		settings:     make(map[string]string),
		agents:       make(map[string][]domain.Agent),
		comments:     make(map[string][]domain.Comment),
		attachments:  make(map[string][]domain.Attachment),
		routings:     make(map[string]domain.TaskRouting),
		routingByTsk: make(map[string]string),
		executions:   make(map[string]domain.Execution),
	}
}

func (f *fakeStore) GetTask(ctx context.Context, id string) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return domain.Task{}, apperr.NotFoundError("task " + id)
	}
	return t, nil
}

func (f *fakeStore) SetTaskStatus(ctx context.Context, id string, status domain.TaskStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return apperr.NotFoundError("task " + id)
	}
	if !domain.CanTransitionTask(t.Status, status) {
		return apperr.ValidationError("bad transition")
	}
	t.Status = status
	f.tasks[id] = t
	return nil
}

func (f *fakeStore) GetWorkspace(ctx context.Context, id string) (domain.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.workspaces[id]
	if !ok {
		return domain.Workspace{}, apperr.NotFoundError("workspace " + id)
	}
	return w, nil
}

func (f *fakeStore) GetWorkspaceSetting(ctx context.Context, workspaceID, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.settings[workspaceID+"/"+key]
	return v, ok, nil
}

func (f *fakeStore) ListAgentsByWorkspace(ctx context.Context, workspaceID string) ([]domain.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Agent, len(f.agents[workspaceID]))
	copy(out, f.agents[workspaceID])
	return out, nil
}

func (f *fakeStore) ListCommentsByTask(ctx context.Context, taskID string) ([]domain.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Comment, len(f.comments[taskID]))
	copy(out, f.comments[taskID])
	return out, nil
}

func (f *fakeStore) ListAttachmentsByTask(ctx context.Context, taskID string) ([]domain.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Attachment, len(f.attachments[taskID]))
	copy(out, f.attachments[taskID])
	return out, nil
}

func (f *fakeStore) FindOrCreateRouting(ctx context.Context, taskID string) (domain.TaskRouting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.routingByTsk[taskID]; ok {
		return f.routings[id], nil
	}
	id := ids.New()
	r := domain.TaskRouting{ID: id, TaskID: taskID, Status: domain.RoutingPending}
	f.routings[id] = r
	f.routingByTsk[taskID] = id
	return r, nil
}

func (f *fakeStore) GetRouting(ctx context.Context, id string) (domain.TaskRouting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.routings[id]
	if !ok {
		return domain.TaskRouting{}, apperr.NotFoundError("routing " + id)
	}
	return r, nil
}

func (f *fakeStore) GetRoutingByTaskID(ctx context.Context, taskID string) (domain.TaskRouting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.routingByTsk[taskID]
	if !ok {
		return domain.TaskRouting{}, apperr.NotFoundError("routing for task " + taskID)
	}
	return f.routings[id], nil
}

func (f *fakeStore) ResetRoutingForTrigger(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.routings[id]
	r.Status = domain.RoutingPending
	r.CurrentAgentIndex = 0
	r.Iteration = 0
	r.AnyAgentWorked = false
	r.RetryCount = 0
	r.ErrorMessage = nil
	f.routings[id] = r
	return nil
}

func (f *fakeStore) TryAcquireRoutingLock(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.routings[id]
	if r.LockedAt != nil {
		return false, nil
	}
	now := int64(1)
	r.LockedAt = &now
	f.routings[id] = r
	return true, nil
}

func (f *fakeStore) ReleaseRoutingLock(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.routings[id]
	r.LockedAt = nil
	f.routings[id] = r
	return nil
}

func (f *fakeStore) SetRoutingRunning(ctx context.Context, id string) error {
	return f.setRoutingStatus(id, domain.RoutingRunning, nil)
}

func (f *fakeStore) SetRoutingCompleted(ctx context.Context, id string) error {
	return f.setRoutingStatus(id, domain.RoutingCompleted, nil)
}

func (f *fakeStore) SetRoutingFailed(ctx context.Context, id, errMsg string) error {
	return f.setRoutingStatus(id, domain.RoutingFailed, &errMsg)
}

func (f *fakeStore) setRoutingStatus(id string, status domain.RoutingStatus, errMsg *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.routings[id]
	r.Status = status
	r.ErrorMessage = errMsg
	f.routings[id] = r
	return nil
}

func (f *fakeStore) AdvanceToNextAgent(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.routings[id]
	r.CurrentAgentIndex++
	r.RetryCount = 0
	f.routings[id] = r
	return nil
}

func (f *fakeStore) StartNewIteration(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.routings[id]
	r.CurrentAgentIndex = 0
	r.Iteration++
	r.AnyAgentWorked = false
	r.RetryCount = 0
	f.routings[id] = r
	return nil
}

func (f *fakeStore) MarkAgentWorked(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.routings[id]
	r.AnyAgentWorked = true
	f.routings[id] = r
	return nil
}

func (f *fakeStore) IncrementRetryCount(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.routings[id]
	r.RetryCount++
	f.routings[id] = r
	return nil
}

func (f *fakeStore) ResetRetryCount(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.routings[id]
	r.RetryCount = 0
	f.routings[id] = r
	return nil
}

func (f *fakeStore) ListPendingOrRunningRoutings(ctx context.Context) ([]domain.TaskRouting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TaskRouting
	for _, r := range f.routings {
		if r.Status == domain.RoutingPending || r.Status == domain.RoutingRunning {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateExecution(ctx context.Context, e domain.Execution) (domain.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e.ID == "" {
		e.ID = ids.New()
	}
	f.executions[e.ID] = e
	return e, nil
}

func (f *fakeStore) SetExecutionRunning(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.executions[id]
	e.Status = domain.ExecutionRunning
	f.executions[id] = e
	return nil
}

func (f *fakeStore) CompleteExecution(ctx context.Context, id string, status domain.ExecutionStatus, result *domain.ExecutionResult, output string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.executions[id]
	e.Status = status
	e.Result = result
	e.Output = output
	f.executions[id] = e
	return nil
}

func (f *fakeStore) CreateComment(ctx context.Context, c domain.Comment) (domain.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == "" {
		c.ID = ids.New()
	}
	f.comments[c.TaskID] = append(f.comments[c.TaskID], c)
	return c, nil
}
