package core

import (
	"context"
	"runtime/debug"
	"time"
)

// =============================================================================
// Context Helper
// =============================================================================

type loopContextKeyType struct{}

var loopContextKey loopContextKeyType

type loopContextValue struct {
	registry *Registry
	handle   Handle
}

// CurrentHandle returns the handle of the looper a task is running on, or
// ok=false when ctx does not belong to a task execution.
func CurrentHandle(ctx context.Context) (Handle, bool) {
	if v, ok := ctx.Value(loopContextKey).(loopContextValue); ok {
		return v.handle, true
	}
	return Handle{}, false
}

// HandlerFromContext builds a Handler bound to the looper a task is
// currently running on. This is how a task submits follow-up work (or
// shutdown) to its own queue.
func HandlerFromContext(ctx context.Context) (*Handler, error) {
	v, ok := ctx.Value(loopContextKey).(loopContextValue)
	if !ok {
		return nil, ErrNotPrepared
	}
	return &Handler{registry: v.registry, handle: v.handle}, nil
}

// =============================================================================
// Consumer Loop
// =============================================================================

// Loop runs the consumer procedure for lc's handle on the calling
// goroutine, blocking until terminated. Termination cases:
//
//   - the poison sentinel is dequeued (after Shutdown): returns nil;
//   - the shutdown flag is set and the queue drains: returns nil. The
//     sentinel normally arrives first; the drain check keeps the two
//     mechanisms redundant;
//   - ctx is done: returns ctx.Err(), never swallowed, whether the loop was
//     parked in dequeue or between tasks. Entries still queued at that
//     point are abandoned, never executed; the handle is deregistered
//     either way.
//
// A failing task never terminates the loop: fire-and-forget failures are
// logged and counted, future-bound failures are captured into the promise
// cell, panics go to the PanicHandler.
//
// Exactly one goroutine may run Loop for a given handle; a second call
// returns ErrLooping. A terminated loop is never resumed; Prepare a fresh
// LoopContext instead.
func (r *Registry) Loop(ctx context.Context, lc *LoopContext) error {
	h, ok := lc.Handle()
	if !ok {
		return ErrNotPrepared
	}
	rec, ok := r.lookup(h)
	if !ok {
		// Prepared once, but the loop already ran and terminated.
		return ErrNotPrepared
	}

	if !rec.looping.CompareAndSwap(false, true) {
		return ErrLooping
	}
	defer r.deregister(h)

	runCtx := context.WithValue(ctx, loopContextKey, loopContextValue{registry: r, handle: h})

	for {
		t, err := rec.queue.Take(ctx)
		if err != nil {
			return err
		}
		if t == poisonPill {
			return nil
		}

		r.runTask(runCtx, h, rec, t)

		// Drain check: once shut down, stop as soon as the queue empties,
		// even if the sentinel has not been reached yet.
		if rec.shut.Load() && rec.queue.IsEmpty() {
			return nil
		}
	}
}

// runTask executes one queue entry with panic isolation and records the
// outcome. Failures of future-bound entries are settled inside t.run and
// never surface here.
func (r *Registry) runTask(ctx context.Context, h Handle, rec *loopRecord, t *task) {
	startedAt := time.Now()
	var (
		taskErr   error
		panicked  bool
		panicInfo any
	)

	func() {
		defer func() {
			if info := recover(); info != nil {
				panicked = true
				panicInfo = info
				r.panics.HandlePanic(ctx, h, info, debug.Stack())
			}
		}()
		taskErr = t.run(ctx)
	}()

	finishedAt := time.Now()
	duration := finishedAt.Sub(startedAt)

	rec.executed.Add(1)
	r.metrics.RecordTaskDuration(h, t.kind, duration)

	if panicked {
		rec.panicked.Add(1)
		r.metrics.RecordTaskPanic(h, panicInfo)
	} else if taskErr != nil {
		// Only fire-and-forget entries report errors here; the failure is
		// swallowed so the loop survives, and logged so it is not lost.
		rec.failed.Add(1)
		r.metrics.RecordTaskFailure(h)
		r.logger.Error("task failed",
			F("handle", h.String()),
			F("task", t.name),
			F("error", taskErr),
		)
	}

	r.history.Add(TaskExecutionRecord{
		Handle:     h,
		Name:       t.name,
		Kind:       t.kind,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Duration:   duration,
		Failed:     taskErr != nil,
		Panicked:   panicked,
	})
}
