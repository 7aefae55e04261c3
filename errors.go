package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTaskNotFound is returned when an operation references an id that is
	// not currently waiting.
	ErrTaskNotFound = errors.New("throttle: task not found")

	// ErrDuplicateTask settles a task added with an id that is already waiting.
	ErrDuplicateTask = errors.New("throttle: task id already waiting")

	// ErrCleared settles every waiting task discarded by [Scheduler.Clear].
	ErrCleared = errors.New("throttle: queue cleared")
)

// ConfigError reports an option that violates its numeric contract.
type ConfigError struct {
	Option string
	Bound  string
	Value  any
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("throttle: expected %s to be %s, got %v (%T)", e.Option, e.Bound, e.Value, e.Value)
}

// CancelledError settles a task whose context was cancelled before or during
// execution. Reason is the context's cancellation cause.
type CancelledError struct {
	ID     string
	Reason error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("throttle: task %q cancelled: %v", e.ID, e.Reason)
}

func (e *CancelledError) Unwrap() error {
	return e.Reason
}

// TimeoutError settles a task that did not finish within its timeout.
type TimeoutError struct {
	ID      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("throttle: task %q timed out after %s", e.ID, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}
