package throttle

import (
	"log/slog"
	"math"
	"time"
)

// Unbounded disables a concurrency or interval cap limit.
const Unbounded = math.MaxInt

// Options holds configuration options for the [Scheduler].
type Options struct {
	// Concurrency is the maximum number of tasks running at once.
	Concurrency int

	// Interval is the length of the rate limit window.
	Interval time.Duration

	// IntervalCap is the maximum number of tasks started within any
	// Interval. Unbounded disables rate tracking entirely.
	IntervalCap int

	// AutoStart admits tasks as soon as they are added. When false the
	// scheduler starts paused.
	AutoStart bool

	// Timeout bounds every task's run time unless the task sets its own.
	// Zero means no timeout.
	Timeout time.Duration

	Logger      *slog.Logger
	Hooks       []Hook
	Middleware  []Middleware
	IDGenerator func() string
}

func defaultOptions() *Options {
	return &Options{
		Concurrency: Unbounded,
		Interval:    time.Millisecond,
		IntervalCap: Unbounded,
		AutoStart:   true,
	}
}

// Option is a function that configures [Options].
type Option func(*Options)

// WithConcurrency sets the maximum number of tasks running at once.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		o.Concurrency = n
	}
}

// WithInterval sets the length of the rate limit window.
func WithInterval(d time.Duration) Option {
	return func(o *Options) {
		o.Interval = d
	}
}

// WithIntervalCap sets the maximum number of tasks started within any
// interval.
func WithIntervalCap(n int) Option {
	return func(o *Options) {
		o.IntervalCap = n
	}
}

// WithAutoStart controls whether the [Scheduler] admits tasks immediately.
func WithAutoStart(start bool) Option {
	return func(o *Options) {
		o.AutoStart = start
	}
}

// WithTimeout sets the default per-task timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithLogger sets the structured logger for the [Scheduler].
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithHooks appends hooks notified of task and queue events.
func WithHooks(hooks ...Hook) Option {
	return func(o *Options) {
		o.Hooks = append(o.Hooks, hooks...)
	}
}

// WithMiddleware appends middleware wrapped around every task body. The
// first middleware is the outermost.
func WithMiddleware(mws ...Middleware) Option {
	return func(o *Options) {
		o.Middleware = append(o.Middleware, mws...)
	}
}

// WithIDGenerator replaces the sequential id assigned to tasks added without
// an explicit id.
func WithIDGenerator(fn func() string) Option {
	return func(o *Options) {
		o.IDGenerator = fn
	}
}

func (o *Options) validate() error {
	if err := validateLimit("concurrency", o.Concurrency); err != nil {
		return err
	}
	if err := validateLimit("intervalCap", o.IntervalCap); err != nil {
		return err
	}
	if o.Interval < time.Millisecond {
		return &ConfigError{Option: "interval", Bound: "a duration of at least 1ms", Value: o.Interval}
	}
	if o.Timeout < 0 {
		return &ConfigError{Option: "timeout", Bound: "a non-negative duration", Value: o.Timeout}
	}
	return nil
}

func validateLimit(name string, n int) error {
	if n < 1 {
		return &ConfigError{Option: name, Bound: "a number from 1 and up", Value: n}
	}
	return nil
}

// TaskOptions holds per-task configuration.
type TaskOptions struct {
	ID       string
	Priority Priority
	Timeout  time.Duration
}

// TaskOption is a function that configures [TaskOptions].
type TaskOption func(*TaskOptions)

// WithID sets the task id. Ids must be unique among waiting tasks.
func WithID(id string) TaskOption {
	return func(o *TaskOptions) {
		o.ID = id
	}
}

// WithPriority sets the task priority. The default is [Priorities.Normal].
func WithPriority(p Priority) TaskOption {
	return func(o *TaskOptions) {
		o.Priority = p
	}
}

// WithTaskTimeout overrides the scheduler's default timeout for one task.
func WithTaskTimeout(d time.Duration) TaskOption {
	return func(o *TaskOptions) {
		o.Timeout = d
	}
}
