package core

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidArgument reports a nil action or callable.
	ErrInvalidArgument = errors.New("looper: invalid argument")

	// ErrAlreadyPrepared reports a second Prepare on a LoopContext that
	// already holds a handle. The existing registration stays usable.
	ErrAlreadyPrepared = errors.New("looper: loop context already prepared")

	// ErrNotPrepared reports an operation on a LoopContext that was never
	// prepared, or whose loop has already terminated.
	ErrNotPrepared = errors.New("looper: loop context not prepared")

	// ErrRejected reports a future-bound submission declined because the
	// target looper has shut down.
	ErrRejected = errors.New("looper: submission rejected")

	// ErrLooping reports a second concurrent Loop call for the same handle.
	ErrLooping = errors.New("looper: already looping")
)

// TaskPanicError wraps a panic recovered from a future-bound task. It is
// delivered through the Future's error channel so the submitter can tell a
// panic apart from an ordinary failure.
type TaskPanicError struct {
	// Value is the value the task panicked with.
	Value any

	// Stack is the stack trace captured at the panic site.
	Stack []byte
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("looper: task panicked: %v", e.Value)
}
