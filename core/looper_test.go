package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
)

// newTestLooper prepares a fresh registry, context and handler.
func newTestLooper(t *testing.T, opts ...RegistryOption) (*Registry, *LoopContext, *Handler) {
	t.Helper()

	if len(opts) == 0 {
		opts = []RegistryOption{WithLogger(NewNoOpLogger())}
	}
	reg := NewRegistry(opts...)
	lc := NewLoopContext()
	if _, err := reg.Prepare(lc); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	h, err := NewHandler(reg, lc)
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}
	return reg, lc, h
}

// TestLoop_ExecutionOrder tests FIFO execution
// Main test items:
// 1. Tasks posted before Loop run in submission order
// 2. Loop terminates normally once the sentinel arrives
func TestLoop_ExecutionOrder(t *testing.T) {
	reg, lc, h := newTestLooper(t)

	var order []int
	for i := 0; i < 10; i++ {
		id := i
		ok, err := h.Post(func(ctx context.Context) error {
			order = append(order, id)
			return nil
		})
		if err != nil || !ok {
			t.Fatalf("Post %d = (%v, %v), want (true, nil)", i, ok, err)
		}
	}
	h.Shutdown()

	if err := reg.Loop(context.Background(), lc); err != nil {
		t.Fatalf("Loop failed: %v", err)
	}

	if len(order) != 10 {
		t.Fatalf("executed %d tasks, want 10", len(order))
	}
	for i, got := range order {
		if got != i {
			t.Errorf("position %d ran task %d", i, got)
		}
	}
}

// TestLoop_FailingTaskDoesNotStopLoop tests failure isolation
// Main test items:
// 1. A fire-and-forget task that fails does not abort the loop
// 2. A task submitted right after it still executes
// 3. A panicking task is also survived
func TestLoop_FailingTaskDoesNotStopLoop(t *testing.T) {
	reg, lc, h := newTestLooper(t)

	var after bool
	h.Post(func(ctx context.Context) error {
		return errors.New("boom")
	})
	h.Post(func(ctx context.Context) error {
		panic("kaboom")
	})
	h.Post(func(ctx context.Context) error {
		after = true
		return nil
	})
	h.Shutdown()

	if err := reg.Loop(context.Background(), lc); err != nil {
		t.Fatalf("Loop failed: %v", err)
	}
	if !after {
		t.Fatal("task after the failing ones did not run")
	}

	snap := reg.RecentExecutions(0)
	var failed, panicked int
	for _, r := range snap {
		if r.Failed {
			failed++
		}
		if r.Panicked {
			panicked++
		}
	}
	if failed != 1 || panicked != 1 {
		t.Errorf("history failed=%d panicked=%d, want 1 and 1", failed, panicked)
	}
}

// TestLoop_DrainCheckTerminates tests the empty-queue drain check
// Main test items:
// 1. With the flag set but the sentinel still behind pending work, the loop
//    stops as soon as the queue drains
// 2. The sentinel path and the drain path both lead to termination
func TestLoop_DrainCheckTerminates(t *testing.T) {
	reg, lc, h := newTestLooper(t)

	var ran int
	h.Post(func(ctx context.Context) error {
		ran++
		return nil
	})

	// Shutdown enqueues the sentinel behind the pending task; the drain
	// check cannot fire before the sentinel here, but the loop must stop
	// exactly once either way.
	h.Shutdown()

	done := make(chan error, 1)
	go func() { done <- reg.Loop(context.Background(), lc) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Loop failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Loop did not terminate")
	}
	if ran != 1 {
		t.Fatalf("ran = %d, want 1", ran)
	}
}

// TestLoop_CancellationPropagates tests consumer cancellation
// Main test items:
// 1. Cancelling the loop's context while it is blocked on an empty queue
//    makes Loop return promptly with the context error
// 2. The cancellation is propagated, not swallowed
// 3. The handle is deregistered; queued-but-unprocessed tasks are abandoned
func TestLoop_CancellationPropagates(t *testing.T) {
	reg, lc, h := newTestLooper(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reg.Loop(ctx, lc) }()

	time.Sleep(20 * time.Millisecond) // let the loop park in dequeue
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Loop err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Loop did not return after cancellation")
	}

	// Terminated handle: strict submissions are declined from now on.
	ok, err := h.Post(func(ctx context.Context) error { return nil })
	if err != nil || ok {
		t.Fatalf("Post after termination = (%v, %v), want (false, nil)", ok, err)
	}
}

// TestLoop_CancellationAbandonsQueuedTasks tests abandonment on cancellation
// Main test items:
// 1. Cancelling the loop's context while a task runs leaves queued entries
//    unexecuted once that task finishes
// 2. Loop returns the context error, not a drained-queue nil
func TestLoop_CancellationAbandonsQueuedTasks(t *testing.T) {
	reg, lc, h := newTestLooper(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var abandonedRan bool

	h.Post(func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	h.Post(func(ctx context.Context) error {
		abandonedRan = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reg.Loop(ctx, lc) }()

	<-started
	cancel()
	close(release)

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Loop err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Loop did not return after cancellation")
	}

	if abandonedRan {
		t.Fatal("queued task ran after cancellation; it must be abandoned")
	}
}

// TestLoop_SingleConsumer tests the one-consumer invariant
// Main test items:
// 1. A second concurrent Loop call for the same handle fails with ErrLooping
func TestLoop_SingleConsumer(t *testing.T) {
	reg, lc, h := newTestLooper(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- reg.Loop(ctx, lc) }()
	time.Sleep(20 * time.Millisecond)

	if err := reg.Loop(ctx, lc); !errors.Is(err, ErrLooping) {
		t.Fatalf("second Loop err = %v, want ErrLooping", err)
	}

	h.Shutdown()
	if err := <-done; err != nil {
		t.Fatalf("first Loop failed: %v", err)
	}
}

// TestLoop_TerminatedLooperNotResumed tests terminal loop state
// Main test items:
// 1. After normal termination the handle is deregistered
// 2. Loop on the same context fails with ErrNotPrepared
// 3. A fresh Prepare/Loop pair with a new context works
func TestLoop_TerminatedLooperNotResumed(t *testing.T) {
	reg, lc, h := newTestLooper(t)

	h.Shutdown()
	if err := reg.Loop(context.Background(), lc); err != nil {
		t.Fatalf("Loop failed: %v", err)
	}

	if err := reg.Loop(context.Background(), lc); !errors.Is(err, ErrNotPrepared) {
		t.Fatalf("Loop after termination err = %v, want ErrNotPrepared", err)
	}

	lc2 := NewLoopContext()
	if _, err := reg.Prepare(lc2); err != nil {
		t.Fatalf("fresh Prepare failed: %v", err)
	}
	h2, _ := NewHandler(reg, lc2)
	h2.Shutdown()
	if err := reg.Loop(context.Background(), lc2); err != nil {
		t.Fatalf("fresh Loop failed: %v", err)
	}
}

// TestLoop_CrossGoroutineSubmission tests producer/consumer separation
// Main test items:
// 1. Tasks posted from other goroutines while the loop runs are executed
// 2. Per-producer submission order is preserved
func TestLoop_CrossGoroutineSubmission(t *testing.T) {
	reg, lc, h := newTestLooper(t)

	var mu sync.Mutex
	seen := make(map[int][]int)

	done := make(chan error, 1)
	go func() { done <- reg.Loop(context.Background(), lc) }()

	const producers = 4
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				i := i
				h.Post(func(ctx context.Context) error {
					mu.Lock()
					seen[p] = append(seen[p], i)
					mu.Unlock()
					return nil
				})
			}
		}(p)
	}
	wg.Wait()
	h.Shutdown()

	if err := <-done; err != nil {
		t.Fatalf("Loop failed: %v", err)
	}

	for p := 0; p < producers; p++ {
		if len(seen[p]) != perProducer {
			t.Fatalf("producer %d: executed %d tasks, want %d", p, len(seen[p]), perProducer)
		}
		for i, got := range seen[p] {
			if got != i {
				t.Fatalf("producer %d: position %d ran task %d", p, i, got)
			}
		}
	}
}

// TestLoop_SelfSubmission tests a task reaching its own looper
// Main test items:
// 1. CurrentHandle inside a task reports the running looper
// 2. HandlerFromContext posts follow-up work to the same queue
// 3. A task can shut its own looper down
func TestLoop_SelfSubmission(t *testing.T) {
	reg, lc, h := newTestLooper(t)

	var followUp bool
	h.Post(func(ctx context.Context) error {
		if _, ok := CurrentHandle(ctx); !ok {
			t.Error("CurrentHandle not available inside a task")
		}
		self, err := HandlerFromContext(ctx)
		if err != nil {
			return err
		}
		self.Post(func(ctx context.Context) error {
			followUp = true
			return nil
		})
		self.Shutdown()
		return nil
	})

	if err := reg.Loop(context.Background(), lc); err != nil {
		t.Fatalf("Loop failed: %v", err)
	}
	if !followUp {
		t.Fatal("self-posted follow-up did not run")
	}
}
