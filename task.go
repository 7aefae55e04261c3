package throttle

import (
	"context"
	"sync"
	"time"
)

// TaskFunc is a unit of work run by the [Scheduler]. It should observe ctx,
// which is cancelled when the caller's context is cancelled or the task's
// timeout elapses.
type TaskFunc[T any] func(ctx context.Context) (T, error)

// task is the envelope the scheduler keeps for an added [TaskFunc].
type task[T any] struct {
	fn      TaskFunc[T]
	ctx     context.Context
	timeout time.Duration
	future  *Future[T]

	// stop deregisters the listener that removes the task from the queue
	// when ctx is cancelled. It is called on every path out of the queue.
	stop func() bool
}

type result[T any] struct {
	val T
	err error
}

// Future is the eventual outcome of a task added with [Scheduler.Go].
type Future[T any] struct {
	id   string
	once sync.Once
	done chan struct{} // closed when settled.
	res  result[T]
}

func newFuture[T any](id string) *Future[T] {
	return &Future[T]{
		id:   id,
		done: make(chan struct{}),
	}
}

// ID returns the id the task was added under.
func (f *Future[T]) ID() string {
	return f.id
}

// Done returns a channel that is closed once the task has settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Settled returns true if the task has settled.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the task settles and returns its outcome. If ctx is
// cancelled first, Wait returns ctx's cause; the task itself is unaffected.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.res.val, f.res.err
	case <-ctx.Done():
		var zero T
		return zero, context.Cause(ctx)
	}
}

// settle records the outcome. Only the first call has any effect.
func (f *Future[T]) settle(val T, err error) {
	f.once.Do(func() {
		f.res = result[T]{val: val, err: err}
		close(f.done)
	})
}
