package recorder

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks invalid session configuration. Recording never starts.
	ErrConfig = errors.New("recorder: invalid configuration")

	// ErrState is returned when an operation is not allowed in the
	// session's current state.
	ErrState = errors.New("recorder: invalid state")

	// ErrNotStarted is returned by Stop on a session that was never started.
	ErrNotStarted = fmt.Errorf("%w: session not started", ErrState)

	// ErrDropped is returned by Processor.Process when the processor had to
	// discard data because its queue was full.
	ErrDropped = errors.New("recorder: dropped")
)

// ComponentError reports which component failed and why.
type ComponentError struct {
	Component string
	Op        string
	Err       error
}

func (e *ComponentError) Error() string {
	return fmt.Sprintf("recorder: %s: %s: %v", e.Component, e.Op, e.Err)
}

func (e *ComponentError) Unwrap() error { return e.Err }

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// panicError is what a recovered panic inside a component turns into.
type panicError struct {
	value any
}

func (e panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}
