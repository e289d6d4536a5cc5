package domain

import "testing"

func TestCanTransitionTask(t *testing.T) {
	cases := []struct {
		from, to TaskStatus
		want     bool
	}{
		{TaskTodo, TaskInProgress, true},
		{TaskTodo, TaskInReview, false},
		{TaskInProgress, TaskInReview, true},
		{TaskInReview, TaskInProgress, true},
		{TaskDone, TaskInProgress, false},
		{TaskDone, TaskTodo, true},
		{TaskTodo, TaskTodo, true},
	}
	for _, c := range cases {
		if got := CanTransitionTask(c.from, c.to); got != c.want {
			t.Fatalf("CanTransitionTask(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestDenseOrder(t *testing.T) {
	agents := []Agent{{ID: "a", Order: 5}, {ID: "b", Order: 9}}
	out := DenseOrder(agents)
	if out[0].Order != 0 || out[1].Order != 1 {
		t.Fatalf("expected dense 0..N-1 ordering, got %+v", out)
	}
	// Original slice must be untouched.
	if agents[0].Order != 5 {
		t.Fatalf("expected input slice to be unmodified")
	}
}

func TestRoutingStatusIsTerminal(t *testing.T) {
	if !RoutingCompleted.IsTerminal() || !RoutingFailed.IsTerminal() {
		t.Fatalf("completed/failed must be terminal")
	}
	if RoutingRunning.IsTerminal() || RoutingPending.IsTerminal() {
		t.Fatalf("pending/running must not be terminal")
	}
}
