package core

import "context"

// Action is the unit of work (Closure) for fire-and-forget submissions.
// A non-nil error reports the action's own failure; the loop logs it and
// keeps going. A failing action never stops its looper.
type Action func(ctx context.Context) error

// Callable is a result-producing computation submitted via Execute.
// Its outcome (value or error) is delivered to the submitter through the
// returned Future; the loop itself never observes the failure.
type Callable[T any] func(ctx context.Context) (T, error)

// TaskKind labels the shape of a queue entry for logging and metrics.
type TaskKind int

const (
	// TaskKindAction: fire-and-forget action posted via Handler.Post.
	TaskKindAction TaskKind = iota

	// TaskKindFuture: future-bound computation posted via Execute and
	// friends. Failures are captured into the promise cell.
	TaskKindFuture
)

func (k TaskKind) String() string {
	switch k {
	case TaskKindAction:
		return "action"
	case TaskKindFuture:
		return "future"
	default:
		return "unknown"
	}
}

// task is a single queue entry. Exactly one of the following shapes:
//   - run != nil: an action or a future-bound execution closure
//   - the poison sentinel: the package-level poisonPill value, carried with
//     no payload and compared by identity in the loop
type task struct {
	run  func(ctx context.Context) error
	name string
	kind TaskKind
}

// poisonPill is the distinguished entry that terminates a loop. It is never
// produced by user code and never executed; Loop compares pointers against
// it before anything else.
var poisonPill = &task{}
