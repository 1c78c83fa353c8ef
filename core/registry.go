package core

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// Handle and LoopContext
// =============================================================================

// Handle is the opaque identity of a registered looper. Producers use it
// (through a Handler) to target submissions. Handles come from a
// monotonically increasing counter, so they are unique for the lifetime of
// the registry and never reused.
//
// The zero Handle is invalid.
type Handle struct {
	id uint64
}

// Valid reports whether h identifies a registration (live or terminated).
func (h Handle) Valid() bool {
	return h.id != 0
}

func (h Handle) String() string {
	if !h.Valid() {
		return "looper-none"
	}
	return fmt.Sprintf("looper-%d", h.id)
}

// LoopContext is the explicit per-consumer context object. The consumer
// goroutine creates one, registers it with Prepare, and passes it to Loop
// and NewHandler. Holding registration state in an explicit object instead
// of goroutine-ambient storage keeps the primitive testable: a single test
// goroutine can drive several simulated consumers.
//
// A LoopContext holds at most one handle, ever. Re-preparing a used context
// fails; terminate the loop and create a fresh context to loop again.
type LoopContext struct {
	mu     sync.Mutex
	handle Handle
}

// NewLoopContext creates an empty, unregistered LoopContext.
func NewLoopContext() *LoopContext {
	return &LoopContext{}
}

// Handle returns the context's handle, or ok=false if the context was never
// prepared.
func (lc *LoopContext) Handle() (Handle, bool) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.handle, lc.handle.Valid()
}

// =============================================================================
// Registry
// =============================================================================

// loopRecord is the per-handle shared state: the queue, the shutdown flag
// and the critical section that serializes admission against shutdown.
type loopRecord struct {
	// mu covers check-flag-then-mutate for the strict admission path and
	// for Shutdown. It is the only lock a producer ever takes, and it is
	// never held across task execution.
	mu    sync.Mutex
	queue *taskQueue

	// shut transitions false -> true exactly once. Written under mu; read
	// either under mu (strict path) or atomically without it (relaxed path
	// and the loop's drain check).
	shut atomic.Bool

	// looping guards the single-consumer invariant on Loop.
	looping atomic.Bool

	executed atomic.Int64
	failed   atomic.Int64
	panicked atomic.Int64
	rejected atomic.Int64
}

// Registry owns the handle table for a set of loopers. It is an owned
// instance rather than process-global state, so independent registries can
// coexist (the root package provides a lazy process-default for
// convenience).
//
// Contention is isolated per handle: the registry-level lock only guards
// the handle table itself, never admission or shutdown.
type Registry struct {
	mu      sync.RWMutex
	records map[Handle]*loopRecord
	nextID  atomic.Uint64

	logger  Logger
	metrics Metrics
	panics  PanicHandler
	history *executionHistory
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger used for fire-and-forget task failures.
// Defaults to DefaultLogger.
func WithLogger(logger Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to NilMetrics.
func WithMetrics(metrics Metrics) RegistryOption {
	return func(r *Registry) {
		if metrics != nil {
			r.metrics = metrics
		}
	}
}

// WithPanicHandler sets the panic handler. Defaults to LogPanicHandler on
// the registry's logger.
func WithPanicHandler(handler PanicHandler) RegistryOption {
	return func(r *Registry) {
		if handler != nil {
			r.panics = handler
		}
	}
}

// WithHistoryCapacity sets how many recent task execution records the
// registry retains for RecentExecutions.
func WithHistoryCapacity(capacity int) RegistryOption {
	return func(r *Registry) {
		r.history = newExecutionHistory(capacity)
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		records: make(map[Handle]*loopRecord),
		logger:  NewDefaultLogger(),
		metrics: &NilMetrics{},
		history: newExecutionHistory(defaultHistoryCapacity),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.panics == nil {
		r.panics = NewLogPanicHandler(r.logger)
	}
	return r
}

// Prepare registers lc as a consumer: it allocates a fresh handle with an
// empty queue and a cleared shutdown flag. Fails with ErrAlreadyPrepared if
// lc already holds a handle; the existing registration stays usable.
func (r *Registry) Prepare(lc *LoopContext) (Handle, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if lc.handle.Valid() {
		return Handle{}, ErrAlreadyPrepared
	}

	h := Handle{id: r.nextID.Add(1)}
	rec := &loopRecord{queue: newTaskQueue()}

	r.mu.Lock()
	r.records[h] = rec
	r.mu.Unlock()

	lc.handle = h
	return h, nil
}

func (r *Registry) lookup(h Handle) (*loopRecord, bool) {
	r.mu.RLock()
	rec, ok := r.records[h]
	r.mu.RUnlock()
	return rec, ok
}

// deregister removes the record once its loop has terminated. Entries still
// queued at that point are abandoned with the queue.
func (r *Registry) deregister(h Handle) {
	r.mu.Lock()
	delete(r.records, h)
	r.mu.Unlock()
}

// tryEnqueue is the strict admission path: read the flag and enqueue as one
// critical section keyed by the handle, so a concurrent Shutdown can never
// interleave between the check and the append. Returns false when the
// handle is shut down or gone.
func (r *Registry) tryEnqueue(h Handle, t *task) bool {
	rec, ok := r.lookup(h)
	if !ok {
		return false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.shut.Load() {
		return false
	}
	rec.queue.Push(t)
	return true
}

// looseEnqueue is the relaxed admission path: it reads the flag atomically
// without taking the admission lock. A Shutdown racing between the read and
// the append can let one entry slip in after shutdown was requested. That
// staleness window is the documented price for skipping the lock; callers
// opt into it via ExecuteResultRelaxed.
func (r *Registry) looseEnqueue(h Handle, t *task) bool {
	rec, ok := r.lookup(h)
	if !ok {
		return false
	}

	if rec.shut.Load() {
		return false
	}
	rec.queue.Push(t)
	return true
}

// Shutdown requests orderly termination of h's loop. Idempotent; a no-op
// for unknown or already shut down handles.
//
// Under the same critical section as strict admission it enqueues the
// poison sentinel first and flips the flag second. The order is mandatory:
// flipping the flag first would make the sentinel's own enqueue subject to
// the rejection check it just armed, and the loop might never observe a
// reason to stop.
//
// After Shutdown returns, no strict submission is ever admitted for h, and
// the queue is guaranteed to contain the sentinel.
func (r *Registry) Shutdown(h Handle) {
	rec, ok := r.lookup(h)
	if !ok {
		return
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.shut.Load() {
		return
	}
	rec.queue.Push(poisonPill)
	rec.shut.Store(true)
}

// QueueDepth returns the number of pending entries for h.
func (r *Registry) QueueDepth(h Handle) (int, bool) {
	rec, ok := r.lookup(h)
	if !ok {
		return 0, false
	}
	return rec.queue.Len(), true
}

// Snapshot returns a point-in-time view of every live registration.
func (r *Registry) Snapshot() RegistrySnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := RegistrySnapshot{
		TakenAt: time.Now(),
		Loopers: make([]LooperStats, 0, len(r.records)),
	}
	for h, rec := range r.records {
		snap.Loopers = append(snap.Loopers, LooperStats{
			Handle:   h,
			Pending:  rec.queue.Len(),
			Looping:  rec.looping.Load(),
			ShutDown: rec.shut.Load(),
			Executed: rec.executed.Load(),
			Failed:   rec.failed.Load(),
			Panicked: rec.panicked.Load(),
			Rejected: rec.rejected.Load(),
		})
	}
	return snap
}

// RecentExecutions returns up to limit recent task execution records across
// all loopers of this registry, newest first.
func (r *Registry) RecentExecutions(limit int) []TaskExecutionRecord {
	return r.history.Recent(limit)
}
