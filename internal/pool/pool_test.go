package pool

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p := New(1)
	tok, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if stats := p.Stats(); stats.Current != 1 {
		t.Fatalf("expected current 1, got %d", stats.Current)
	}
	tok.Release()
	if stats := p.Stats(); stats.Current != 0 {
		t.Fatalf("expected current 0 after release, got %d", stats.Current)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	p := New(1)
	tok, _ := p.Acquire(context.Background())
	tok.Release()
	tok.Release() // must not panic or go negative
	if stats := p.Stats(); stats.Current != 0 {
		t.Fatalf("expected current 0, got %d", stats.Current)
	}
}

func TestTryAcquireAtCapacity(t *testing.T) {
	p := New(1)
	tok := p.TryAcquire()
	if tok == nil {
		t.Fatalf("expected first TryAcquire to succeed")
	}
	if second := p.TryAcquire(); second != nil {
		t.Fatalf("expected TryAcquire to fail at capacity")
	}
	tok.Release()
	if second := p.TryAcquire(); second == nil {
		t.Fatalf("expected TryAcquire to succeed after release")
	}
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	p := New(1)
	tok, _ := p.Acquire(context.Background())

	acquired := make(chan struct{})
	go func() {
		tok2, err := p.Acquire(context.Background())
		if err != nil {
			t.Errorf("Acquire: %v", err)
			return
		}
		tok2.Release()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatalf("second acquire should not complete before release")
	case <-time.After(50 * time.Millisecond):
	}

	tok.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("second acquire did not complete after release")
	}
}

func TestFIFOOrdering(t *testing.T) {
	p := New(1)
	tok, _ := p.Acquire(context.Background())

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Stagger goroutine start so waiters enqueue in order.
			time.Sleep(time.Duration(i) * 10 * time.Millisecond)
			t2, err := p.Acquire(context.Background())
			if err != nil {
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			t2.Release()
		}(i)
	}
	time.Sleep(40 * time.Millisecond)
	tok.Release()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(order); i++ {
		if order[i] < order[i-1] {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
}

func TestSetMaxConcurrentReleasesWaiters(t *testing.T) {
	p := New(1)
	tok, _ := p.Acquire(context.Background())
	_ = tok

	acquired := make(chan struct{})
	go func() {
		t2, err := p.Acquire(context.Background())
		if err != nil {
			return
		}
		close(acquired)
		t2.Release()
	}()
	time.Sleep(20 * time.Millisecond)

	p.SetMaxConcurrent(2)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("expected waiter to be released by capacity increase")
	}
}

func TestAcquireContextCancel(t *testing.T) {
	p := New(1)
	tok, _ := p.Acquire(context.Background())
	defer tok.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.Acquire(ctx)
	if err == nil {
		t.Fatalf("expected context deadline error")
	}
}
