package core

import (
	"context"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a submitted task panics during execution.
// The loop always survives the panic; the handler decides how loudly to
// complain about it.
//
// Implementations must be safe for concurrent use: a registry may drive
// several loopers at once.
type PanicHandler interface {
	// HandlePanic is called with the panicked task's context, the handle of
	// the looper it ran on, the recovered value and the stack trace captured
	// at the panic site.
	HandlePanic(ctx context.Context, handle Handle, panicInfo any, stackTrace []byte)
}

// LogPanicHandler reports panics through the registry's Logger. It is the
// default.
type LogPanicHandler struct {
	logger Logger
}

func NewLogPanicHandler(logger Logger) *LogPanicHandler {
	if logger == nil {
		logger = NewDefaultLogger()
	}
	return &LogPanicHandler{logger: logger}
}

func (h *LogPanicHandler) HandlePanic(ctx context.Context, handle Handle, panicInfo any, stackTrace []byte) {
	h.logger.Error("task panicked",
		F("handle", handle.String()),
		F("panic", panicInfo),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting looper execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast: with the exception of
// RecordQueueDepth they run on the consumer goroutine between tasks.
type Metrics interface {
	// RecordTaskDuration records how long a task took to execute.
	RecordTaskDuration(handle Handle, kind TaskKind, duration time.Duration)

	// RecordTaskFailure records a fire-and-forget action that returned an
	// error. Future-bound failures are not reported here; they are
	// observable only through the promise cell.
	RecordTaskFailure(handle Handle)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(handle Handle, panicInfo any)

	// RecordSubmissionRejected records a submission declined because the
	// handle was already shut down. reason is "post" or "execute".
	RecordSubmissionRejected(handle Handle, reason string)

	// RecordQueueDepth records the current queue depth. Called by pollers,
	// not by the loop itself.
	RecordQueueDepth(handle Handle, depth int)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics are configured.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(handle Handle, kind TaskKind, duration time.Duration) {}
func (m *NilMetrics) RecordTaskFailure(handle Handle)                                         {}
func (m *NilMetrics) RecordTaskPanic(handle Handle, panicInfo any)                            {}
func (m *NilMetrics) RecordSubmissionRejected(handle Handle, reason string)                   {}
func (m *NilMetrics) RecordQueueDepth(handle Handle, depth int)                               {}

// =============================================================================
// Snapshots
// =============================================================================

// LooperStats represents the runtime state of one registered looper.
type LooperStats struct {
	Handle   Handle
	Pending  int
	Looping  bool
	ShutDown bool
	Executed int64
	Failed   int64
	Panicked int64
	Rejected int64
}

// RegistrySnapshot is a point-in-time view over every live registration.
type RegistrySnapshot struct {
	TakenAt time.Time
	Loopers []LooperStats
}

// TaskExecutionRecord captures a completed task execution event for the
// registry's bounded history ring.
type TaskExecutionRecord struct {
	Handle     Handle
	Name       string
	Kind       TaskKind
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Failed     bool
	Panicked   bool
}
