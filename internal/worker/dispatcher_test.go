package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingRunner captures refinements in arrival order.
type recordingRunner struct {
	mu    sync.Mutex
	seen  []RefineTask
	done  chan struct{}
	delay time.Duration
}

func (r *recordingRunner) Refine(_ context.Context, userID int64, userText, replyText string) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	r.seen = append(r.seen, RefineTask{UserID: userID, UserText: userText, ReplyText: replyText})
	r.mu.Unlock()
	if r.done != nil {
		r.done <- struct{}{}
	}
	return nil
}

func (r *recordingRunner) tasks() []RefineTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RefineTask, len(r.seen))
	copy(out, r.seen)
	return out
}

func waitN(t *testing.T, done chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for job %d of %d", i+1, n)
		}
	}
}

func TestDispatchRunsJobs(t *testing.T) {
	runner := &recordingRunner{done: make(chan struct{}, 8)}
	d := NewDispatcher(1, 1, 8, runner, time.Minute)

	if err := d.DispatchRefine(1, "question", "answer"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	waitN(t, runner.done, 1)

	tasks := runner.tasks()
	if len(tasks) != 1 || tasks[0].UserID != 1 || tasks[0].UserText != "question" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
}

func TestPerUserFIFOOrder(t *testing.T) {
	runner := &recordingRunner{done: make(chan struct{}, 16)}
	// single worker so execution order is the dispatch order
	d := NewDispatcher(1, 1, 16, runner, time.Minute)

	for i := 0; i < 4; i++ {
		if err := d.DispatchRefine(7, string(rune('a'+i)), "r"); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	waitN(t, runner.done, 4)

	tasks := runner.tasks()
	for i, want := range []string{"a", "b", "c", "d"} {
		if tasks[i].UserText != want {
			t.Fatalf("job %d out of order: got %q want %q", i, tasks[i].UserText, want)
		}
	}
}

func TestDispatchBusyWhenQueueFull(t *testing.T) {
	runner := &recordingRunner{delay: 200 * time.Millisecond, done: make(chan struct{}, 8)}
	d := NewDispatcher(1, 1, 1, runner, time.Minute)

	// keep feeding until the queue refuses
	var sawBusy bool
	for i := 0; i < 50; i++ {
		if err := d.DispatchRefine(1, "x", "y"); errors.Is(err, ErrDispatcherBusy) {
			sawBusy = true
			break
		}
	}
	if !sawBusy {
		t.Fatalf("expected ErrDispatcherBusy from a saturated queue")
	}
}

func TestCancelUserDropsPending(t *testing.T) {
	runner := &recordingRunner{delay: 100 * time.Millisecond, done: make(chan struct{}, 16)}
	d := NewDispatcher(1, 1, 16, runner, time.Minute)

	if err := d.DispatchRefine(1, "running", "r"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	waitN(t, runner.done, 1)

	// queue several for user 2 while no worker is free, then cancel
	runner.delay = 300 * time.Millisecond
	if err := d.DispatchRefine(1, "blocker", "r"); err != nil {
		t.Fatalf("dispatch blocker: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	for i := 0; i < 3; i++ {
		if err := d.DispatchRefine(2, "doomed", "r"); err != nil {
			t.Fatalf("dispatch doomed %d: %v", i, err)
		}
	}
	time.Sleep(50 * time.Millisecond)
	d.CancelUser(2)

	waitN(t, runner.done, 1) // the blocker finishes
	time.Sleep(500 * time.Millisecond)

	// at most one job can already be in flight when the cancel lands; the
	// rest of the queue must be dropped
	var ran int
	for _, task := range runner.tasks() {
		if task.UserID == 2 {
			ran++
		}
	}
	if ran > 1 {
		t.Fatalf("cancelled user still ran %d jobs", ran)
	}
}
