package looper

import "github.com/Swind/go-looper/core"

// Re-export commonly used types from the core package for convenience.
// This allows users to import only the looper package for most use cases.

// Action is the fire-and-forget unit of work.
type Action = core.Action

// Callable is a result-producing computation for the Execute family.
type Callable[T any] = core.Callable[T]

// Registry owns a set of looper registrations.
type Registry = core.Registry

// RegistryOption configures a Registry.
type RegistryOption = core.RegistryOption

// LoopContext is the explicit per-consumer registration object.
type LoopContext = core.LoopContext

// Handle is the opaque identity of a registered looper.
type Handle = core.Handle

// Handler is the producer-side submission facade.
type Handler = core.Handler

// Future is the single-assignment result cell returned by Execute.
type Future[T any] = core.Future[T]

// Logger, Field and Metrics are the pluggable observability surfaces.
type (
	Logger       = core.Logger
	Field        = core.Field
	Metrics      = core.Metrics
	PanicHandler = core.PanicHandler
)

// Stats snapshot types.
type (
	LooperStats         = core.LooperStats
	RegistrySnapshot    = core.RegistrySnapshot
	TaskExecutionRecord = core.TaskExecutionRecord
)

// TaskPanicError wraps a panic recovered from a submitted task.
type TaskPanicError = core.TaskPanicError

// Error taxonomy re-exports. Compare with errors.Is.
var (
	ErrInvalidArgument = core.ErrInvalidArgument
	ErrAlreadyPrepared = core.ErrAlreadyPrepared
	ErrNotPrepared     = core.ErrNotPrepared
	ErrRejected        = core.ErrRejected
	ErrLooping         = core.ErrLooping
)

// Constructor and option re-exports.
var (
	NewRegistry         = core.NewRegistry
	NewLoopContext      = core.NewLoopContext
	WithLogger          = core.WithLogger
	WithMetrics         = core.WithMetrics
	WithPanicHandler    = core.WithPanicHandler
	WithHistoryCapacity = core.WithHistoryCapacity
	NewDefaultLogger    = core.NewDefaultLogger
	NewNoOpLogger       = core.NewNoOpLogger
	F                   = core.F
)

// NewHandlerFor builds a Handler bound to lc's handle on reg.
func NewHandlerFor(reg *Registry, lc *LoopContext) (*Handler, error) {
	return core.NewHandler(reg, lc)
}

// Execute submits a result-producing computation; see core.Execute.
func Execute[T any](h *Handler, call Callable[T]) (*Future[T], error) {
	return core.Execute(h, call)
}

// ExecuteResult submits an action with a fixed success result; see
// core.ExecuteResult.
func ExecuteResult[T any](h *Handler, action Action, result T) (*Future[T], error) {
	return core.ExecuteResult(h, action, result)
}

// ExecuteResultRelaxed is ExecuteResult over the relaxed admission path;
// see core.ExecuteResultRelaxed.
func ExecuteResultRelaxed[T any](h *Handler, action Action, result T) (*Future[T], error) {
	return core.ExecuteResultRelaxed(h, action, result)
}

// CurrentHandle and HandlerFromContext let a running task reach its own
// looper.
var (
	CurrentHandle      = core.CurrentHandle
	HandlerFromContext = core.HandlerFromContext
)
