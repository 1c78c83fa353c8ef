package core

import (
	"context"
	"runtime/debug"
)

// Handler is the submission facade producers hold. It binds to the handle
// of the LoopContext it was constructed from: built on the consumer's own
// context it submits to the consumer's queue; handed to other goroutines it
// submits cross-goroutine. Handlers are immutable and safe for concurrent
// use; any number of them may target the same handle.
type Handler struct {
	registry *Registry
	handle   Handle
}

// NewHandler builds a Handler bound to lc's handle. Fails with
// ErrNotPrepared if lc was never registered.
func NewHandler(registry *Registry, lc *LoopContext) (*Handler, error) {
	h, ok := lc.Handle()
	if !ok {
		return nil, ErrNotPrepared
	}
	return &Handler{registry: registry, handle: h}, nil
}

// Handle returns the handle this Handler submits to.
func (h *Handler) Handle() Handle {
	return h.handle
}

// Post submits a fire-and-forget action through the strict admission path.
// The bool reports acceptance: false once the looper has shut down or its
// loop has terminated. A fire-and-forget decline is silent, not an error;
// the only error is ErrInvalidArgument for a nil action.
//
// If the action fails or panics when it eventually runs, the failure is
// logged and the loop continues; nothing comes back to the poster.
func (h *Handler) Post(action Action) (bool, error) {
	if action == nil {
		return false, ErrInvalidArgument
	}

	t := &task{
		run:  action,
		name: resolveTaskName(action),
		kind: TaskKindAction,
	}
	if !h.registry.tryEnqueue(h.handle, t) {
		h.noteRejected("post")
		return false, nil
	}
	return true, nil
}

// Shutdown requests orderly termination of the bound looper. Idempotent.
func (h *Handler) Shutdown() {
	h.registry.Shutdown(h.handle)
}

func (h *Handler) noteRejected(reason string) {
	if rec, ok := h.registry.lookup(h.handle); ok {
		rec.rejected.Add(1)
	}
	h.registry.metrics.RecordSubmissionRejected(h.handle, reason)
}

// =============================================================================
// Generic submissions
// =============================================================================
//
// Go methods cannot introduce type parameters, so the future-producing
// submissions are package-level functions taking the Handler first.

// Execute submits a result-producing computation through the strict path
// and returns its Future. Fails with ErrRejected once the looper has shut
// down: a submission with an observable result must not vanish silently.
//
// A failure inside call is captured into the Future and re-raised by Get;
// the loop is not affected.
func Execute[T any](h *Handler, call Callable[T]) (*Future[T], error) {
	if call == nil {
		return nil, ErrInvalidArgument
	}

	f := newFuture[T]()
	t := &task{
		run:  futureRun(f, call),
		name: resolveTaskName(call),
		kind: TaskKindFuture,
	}
	if !h.registry.tryEnqueue(h.handle, t) {
		h.noteRejected("execute")
		return nil, ErrRejected
	}
	return f, nil
}

// ExecuteResult submits an action whose Future resolves to the fixed result
// on success rather than a computed value. Strict admission, same rejection
// policy as Execute.
func ExecuteResult[T any](h *Handler, action Action, result T) (*Future[T], error) {
	if action == nil {
		return nil, ErrInvalidArgument
	}
	return executeFixed(h, action, result, h.registry.tryEnqueue)
}

// ExecuteResultRelaxed is ExecuteResult over the relaxed admission path:
// the shutdown flag is read without the admission critical section, so for
// a brief, unpredictable moment after Shutdown one submission may still be
// accepted. A submission that slips in during that window can land behind
// the shutdown sentinel and never execute, in which case its Future never
// settles; always bound a Get on a relaxed Future with a context. That is
// the trade for skipping the per-handle lock; use it only where best-effort
// admission is acceptable.
func ExecuteResultRelaxed[T any](h *Handler, action Action, result T) (*Future[T], error) {
	if action == nil {
		return nil, ErrInvalidArgument
	}
	return executeFixed(h, action, result, h.registry.looseEnqueue)
}

func executeFixed[T any](h *Handler, action Action, result T, enqueue func(Handle, *task) bool) (*Future[T], error) {
	f := newFuture[T]()
	t := &task{
		run: futureRun(f, func(ctx context.Context) (T, error) {
			if err := action(ctx); err != nil {
				var zero T
				return zero, err
			}
			return result, nil
		}),
		name: resolveTaskName(action),
		kind: TaskKindFuture,
	}
	if !enqueue(h.handle, t) {
		h.noteRejected("execute")
		return nil, ErrRejected
	}
	return f, nil
}

// futureRun wraps a callable into a queue entry that settles f instead of
// reporting outcomes to the loop. Panics inside the computation are caught
// here and rejected as *TaskPanicError, so reject runs at most once and the
// loop's own panic isolation never fires for future-bound entries.
func futureRun[T any](f *Future[T], call Callable[T]) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		defer func() {
			if info := recover(); info != nil {
				f.reject(&TaskPanicError{Value: info, Stack: debug.Stack()})
			}
		}()

		value, err := call(ctx)
		if err != nil {
			f.reject(err)
			return nil
		}
		f.resolve(value)
		return nil
	}
}
