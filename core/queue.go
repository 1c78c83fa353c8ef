package core

import (
	"context"
	"sync"
)

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// taskQueue is the unbounded blocking FIFO behind one handle.
//
// Concurrency contract: many producers, exactly one consumer. Push never
// blocks; Take suspends the consumer until an entry arrives or its context
// is done. Insertion order equals consumption order (no reordering, no
// priorities).
//
// Blocking is built on a one-slot notify channel rather than a condition
// variable so that Take can also select on context cancellation. A stale
// wakeup only costs the consumer one extra pop attempt.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []*task
	notify chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks:  make([]*task, 0, defaultQueueCap),
		notify: make(chan struct{}, 1),
	}
}

// Push appends t and wakes the consumer if it is parked in Take.
func (q *taskQueue) Push(t *task) {
	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// TryPop removes and returns the head entry without blocking.
func (q *taskQueue) TryPop() (*task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}

	item := q.tasks[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	q.maybeCompactLocked()

	return item, true
}

// Take blocks the calling (consumer) goroutine until an entry is available
// or ctx is done. Only one goroutine may call Take.
//
// Cancellation wins over pending work: a done ctx returns its error even
// when entries are queued, so the consumer never pops another entry after
// its context ends.
func (q *taskQueue) Take(ctx context.Context) (*task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if t, ok := q.TryPop(); ok {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *taskQueue) IsEmpty() bool {
	return q.Len() == 0
}

// maybeCompactLocked reallocates the backing array once the live window has
// shrunk well below capacity, so a long-lived looper does not pin the high
// water mark of a burst forever.
func (q *taskQueue) maybeCompactLocked() {
	n := len(q.tasks)
	c := cap(q.tasks)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.tasks = make([]*task, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]*task, n, newCap)
	copy(newSlice, q.tasks)
	q.tasks = newSlice
}
