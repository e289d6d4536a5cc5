package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"taskrouter/internal/logging"
)

type fakeAccepting struct {
	mu       sync.Mutex
	accepted bool
}

func newFakeAccepting() *fakeAccepting {
	return &fakeAccepting{accepted: true}
}

func (f *fakeAccepting) SetAccepting(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = v
}

func (f *fakeAccepting) get() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accepted
}

type fakeExecutor struct {
	mu        sync.Mutex
	running   []string
	cancelled []string
}

func (f *fakeExecutor) GetRunningExecutions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.running))
	copy(out, f.running)
	return out
}

func (f *fakeExecutor) Cancel(executionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, id := range f.running {
		if id == executionID {
			f.running = append(f.running[:i], f.running[i+1:]...)
			f.cancelled = append(f.cancelled, executionID)
			return true
		}
	}
	return false
}

func (f *fakeExecutor) finishAfter(d time.Duration) {
	time.AfterFunc(d, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.running = nil
	})
}

type fakeStore struct {
	mu     sync.Mutex
	closed bool
}

func (f *fakeStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeStore) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestShutdownStopsAcceptingImmediately(t *testing.T) {
	accepting := newFakeAccepting()
	exec := &fakeExecutor{}
	store := &fakeStore{}
	c := New(accepting, exec, store, Config{DrainPollInterval: 5 * time.Millisecond, DrainTimeout: 50 * time.Millisecond}, logging.Nop)

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if accepting.get() {
		t.Fatal("expected accepting to be false after shutdown")
	}
	if !store.isClosed() {
		t.Fatal("expected persistence to be closed")
	}
}

func TestShutdownWaitsForNaturalDrain(t *testing.T) {
	accepting := newFakeAccepting()
	exec := &fakeExecutor{running: []string{"exec-1"}}
	exec.finishAfter(10 * time.Millisecond)
	store := &fakeStore{}
	c := New(accepting, exec, store, Config{DrainPollInterval: 5 * time.Millisecond, DrainTimeout: 200 * time.Millisecond}, logging.Nop)

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("expected natural drain with no error, got %v", err)
	}
	if len(exec.cancelled) != 0 {
		t.Fatalf("expected no force-cancellation, got %v", exec.cancelled)
	}
}

func TestShutdownForceCancelsAfterDrainTimeout(t *testing.T) {
	accepting := newFakeAccepting()
	exec := &fakeExecutor{running: []string{"exec-1", "exec-2"}}
	store := &fakeStore{}
	c := New(accepting, exec, store, Config{DrainPollInterval: 2 * time.Millisecond, DrainTimeout: 10 * time.Millisecond}, logging.Nop)

	err := c.Shutdown(context.Background())
	if err == nil {
		t.Fatal("expected an error summarizing the forced cancellation")
	}
	if len(exec.cancelled) != 2 {
		t.Fatalf("expected both executions force-cancelled, got %v", exec.cancelled)
	}
	if !store.isClosed() {
		t.Fatal("expected persistence closed even after a forced cancel")
	}
}

func TestShutdownReentryIsNoOp(t *testing.T) {
	accepting := newFakeAccepting()
	exec := &fakeExecutor{}
	store := &fakeStore{}
	c := New(accepting, exec, store, Config{DrainPollInterval: 5 * time.Millisecond, DrainTimeout: 50 * time.Millisecond}, logging.Nop)

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	closedOnce := store.isClosed()

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown should be a no-op, got error: %v", err)
	}
	if !closedOnce || !store.isClosed() {
		t.Fatal("expected store to remain closed across re-entry")
	}
}
