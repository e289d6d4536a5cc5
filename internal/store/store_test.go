package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"taskrouter/internal/apperr"
	"taskrouter/internal/domain"
	"taskrouter/internal/ids"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), filepath.Join(dir, "test.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrateIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	s1, err := Open(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	s1.Close()

	s2, err := Open(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("second open (re-running migrations): %v", err)
	}
	s2.Close()
}

func TestWorkspaceCreateGetDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ws, err := s.CreateWorkspace(ctx, domain.Workspace{ID: ids.New(), Name: "W"})
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}

	got, err := s.GetWorkspace(ctx, ws.ID)
	if err != nil {
		t.Fatalf("GetWorkspace: %v", err)
	}
	if got.Name != "W" {
		t.Fatalf("expected name W, got %q", got.Name)
	}

	if err := s.DeleteWorkspace(ctx, ws.ID, false); err != nil {
		t.Fatalf("DeleteWorkspace: %v", err)
	}
	if _, err := s.GetWorkspace(ctx, ws.ID); err == nil {
		t.Fatalf("expected not found after delete")
	}
}

func TestDeleteWorkspaceConflictsOnInProgressTask(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ws, err := s.CreateWorkspace(ctx, domain.Workspace{ID: ids.New(), Name: "W"})
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	task, err := s.CreateTask(ctx, domain.Task{ID: ids.New(), WorkspaceID: ws.ID, Title: "T"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := s.SetTaskStatus(ctx, task.ID, domain.TaskInProgress); err != nil {
		t.Fatalf("SetTaskStatus: %v", err)
	}

	if err := s.DeleteWorkspace(ctx, ws.ID, false); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := s.DeleteWorkspace(ctx, ws.ID, true); err != nil {
		t.Fatalf("forced DeleteWorkspace: %v", err)
	}
}

func TestAgentDenseOrderingAfterDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ws, _ := s.CreateWorkspace(ctx, domain.Workspace{ID: ids.New(), Name: "W"})
	var created []domain.Agent
	for i := 0; i < 3; i++ {
		a, err := s.CreateAgent(ctx, domain.Agent{ID: ids.New(), WorkspaceID: ws.ID, Name: "A"})
		if err != nil {
			t.Fatalf("CreateAgent: %v", err)
		}
		created = append(created, a)
	}

	if err := s.DeleteAgent(ctx, created[1].ID); err != nil {
		t.Fatalf("DeleteAgent: %v", err)
	}

	remaining, err := s.ListAgentsByWorkspace(ctx, ws.ID)
	if err != nil {
		t.Fatalf("ListAgentsByWorkspace: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected 2 remaining agents, got %d", len(remaining))
	}
	for i, a := range remaining {
		if a.Order != i {
			t.Fatalf("expected dense order, agent %d has order %d", i, a.Order)
		}
	}
}

func TestRoutingLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ws, _ := s.CreateWorkspace(ctx, domain.Workspace{ID: ids.New(), Name: "W"})
	task, err := s.CreateTask(ctx, domain.Task{ID: ids.New(), WorkspaceID: ws.ID, Title: "T"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	r, err := s.FindOrCreateRouting(ctx, task.ID)
	if err != nil {
		t.Fatalf("FindOrCreateRouting: %v", err)
	}
	if r.Status != domain.RoutingPending {
		t.Fatalf("expected pending status, got %s", r.Status)
	}

	r2, err := s.FindOrCreateRouting(ctx, task.ID)
	if err != nil {
		t.Fatalf("FindOrCreateRouting (idempotent): %v", err)
	}
	if r2.ID != r.ID {
		t.Fatalf("expected idempotent routing creation, got two different ids")
	}

	acquired, err := s.TryAcquireRoutingLock(ctx, r.ID)
	if err != nil || !acquired {
		t.Fatalf("expected lock acquisition to succeed, got acquired=%v err=%v", acquired, err)
	}
	acquiredAgain, err := s.TryAcquireRoutingLock(ctx, r.ID)
	if err != nil {
		t.Fatalf("TryAcquireRoutingLock: %v", err)
	}
	if acquiredAgain {
		t.Fatalf("expected second acquire attempt on a fresh lock to fail")
	}

	if err := s.ReleaseRoutingLock(ctx, r.ID); err != nil {
		t.Fatalf("ReleaseRoutingLock: %v", err)
	}
	acquiredAfterRelease, err := s.TryAcquireRoutingLock(ctx, r.ID)
	if err != nil || !acquiredAfterRelease {
		t.Fatalf("expected lock acquisition after release to succeed")
	}
}

func TestTaskStatusTransitionValidation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ws, _ := s.CreateWorkspace(ctx, domain.Workspace{ID: ids.New(), Name: "W"})
	task, _ := s.CreateTask(ctx, domain.Task{ID: ids.New(), WorkspaceID: ws.ID, Title: "T"})

	if err := s.SetTaskStatus(ctx, task.ID, domain.TaskInProgress); err != nil {
		t.Fatalf("expected valid transition todo->in_progress, got %v", err)
	}
	if err := s.SetTaskStatus(ctx, task.ID, domain.TaskInReview); err != nil {
		t.Fatalf("expected valid transition in_progress->in_review, got %v", err)
	}

	// in_review -> in_progress is valid, but done -> in_progress is not.
	if err := s.SetTaskStatus(ctx, task.ID, domain.TaskDone); err != nil {
		t.Fatalf("expected valid transition in_review->done, got %v", err)
	}
	if err := s.SetTaskStatus(ctx, task.ID, domain.TaskInProgress); err == nil {
		t.Fatalf("expected done->in_progress to be rejected")
	}
}
