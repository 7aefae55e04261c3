package throttle

import (
	"context"
	"time"
)

// Event identifies a queue-level transition reported to [Hook.OnEvent].
type Event int

const (
	// EventNext fires each time a task leaves the queue.
	EventNext Event = iota
	// EventEmpty fires when an admission opportunity finds the queue empty.
	EventEmpty
	// EventIdle fires when the queue is empty and no task is running.
	EventIdle
	// EventPendingZero fires when the last running task settles.
	EventPendingZero
	// EventRateLimit fires when the interval cap is reached with work waiting.
	EventRateLimit
	// EventRateLimitCleared fires when the rate limit stops blocking admission.
	EventRateLimitCleared
)

var eventNames = map[Event]string{
	EventNext:             "next",
	EventEmpty:            "empty",
	EventIdle:             "idle",
	EventPendingZero:      "pending-zero",
	EventRateLimit:        "rate-limit",
	EventRateLimitCleared: "rate-limit-cleared",
}

func (e Event) String() string {
	if s, ok := eventNames[e]; ok {
		return s
	}
	return "unknown"
}

// TaskInfo describes a task to hooks and middleware.
type TaskInfo struct {
	ID       string
	Priority Priority
	Timeout  time.Duration

	// Run identifies one dispatch of the task and is unique for the life of
	// the scheduler, unlike ID. Run and StartedAt are zero for a task that
	// settled without ever starting.
	Run       uint64
	StartedAt time.Time
}

// Started returns true if the task was dispatched and its body ran.
func (i TaskInfo) Started() bool {
	return i.Run != 0
}

// RunningTask is a snapshot of a task that has been dispatched and has not
// settled.
type RunningTask = TaskInfo

// Hook defines hooks for monitoring task and queue events. Hooks are called
// synchronously while the [Scheduler] holds its lock, so they must be fast and
// must not call back into the [Scheduler].
type Hook interface {
	// OnAdd is called when a task enters the queue.
	OnAdd(info TaskInfo)
	// OnActive is called when a task is dispatched.
	OnActive(info TaskInfo)
	// OnCompleted is called when a dispatched task succeeds.
	OnCompleted(info TaskInfo, elapsed time.Duration)
	// OnError is called when a task fails, times out or is cancelled.
	OnError(info TaskInfo, err error)
	// OnEvent is called on queue-level transitions.
	OnEvent(ev Event)
}

// NopHook implements [Hook] with no-op methods. Embed it to implement only
// the methods of interest.
type NopHook struct{}

func (NopHook) OnAdd(TaskInfo) {}
func (NopHook) OnActive(TaskInfo) {}
func (NopHook) OnCompleted(TaskInfo, time.Duration) {}
func (NopHook) OnError(TaskInfo, error) {}
func (NopHook) OnEvent(Event) {}

// Handler runs a task body.
type Handler func(ctx context.Context) error

// Middleware wraps the execution of a task body. It runs on the task's own
// goroutine and MUST call next to continue the chain unless it
// short-circuits with an error.
type Middleware func(ctx context.Context, info TaskInfo, next Handler) error

// Chain composes middleware into a single [Middleware]. The first middleware
// in the list is the outermost wrapper.
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, info TaskInfo, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, info, prev)
			}
		}
		return h(ctx)
	}
}
