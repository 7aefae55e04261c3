package throttle

import "context"

const eventCount = int(EventRateLimitCleared) + 1

// signal is a one-shot broadcast. Firing closes ch, waking every waiter, and
// the owner replaces it with a fresh signal.
type signal struct {
	ch  chan struct{}
	err error // set before ch is closed.
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{})}
}

// fire must be called with the scheduler's lock held.
func (s *signal) fire(err error) *signal {
	s.err = err
	close(s.ch)
	return newSignal()
}

// OnEmpty blocks until the queue is empty. It returns immediately if the
// queue is already empty, otherwise on the next empty transition.
func (s *Scheduler[T]) OnEmpty(ctx context.Context) error {
	return s.await(ctx, EventEmpty, func() bool {
		return s.queue.Len() == 0
	})
}

// OnIdle blocks until the queue is empty and no task is running.
func (s *Scheduler[T]) OnIdle(ctx context.Context) error {
	return s.await(ctx, EventIdle, func() bool {
		return s.queue.Len() == 0 && s.pending == 0
	})
}

// OnPendingZero blocks until every running task has settled. Tasks may still
// be waiting in the queue.
func (s *Scheduler[T]) OnPendingZero(ctx context.Context) error {
	return s.await(ctx, EventPendingZero, func() bool {
		return s.pending == 0
	})
}

// OnRateLimit blocks until the interval cap blocks admission.
func (s *Scheduler[T]) OnRateLimit(ctx context.Context) error {
	return s.await(ctx, EventRateLimit, func() bool {
		return s.rateLimited
	})
}

// OnRateLimitCleared blocks until the interval cap no longer blocks
// admission.
func (s *Scheduler[T]) OnRateLimitCleared(ctx context.Context) error {
	return s.await(ctx, EventRateLimitCleared, func() bool {
		return !s.rateLimited
	})
}

// OnSizeLessThan blocks until fewer than n tasks are waiting.
func (s *Scheduler[T]) OnSizeLessThan(ctx context.Context, n int) error {
	for {
		s.mu.Lock()
		if s.queue.Len() < n {
			s.mu.Unlock()
			return nil
		}
		sig := s.signals[EventNext]
		s.mu.Unlock()

		select {
		case <-sig.ch:
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
}

// OnError blocks until the next task fails and returns that task's error.
// Every failing task still reports its error through its own [Future]. If ctx
// is cancelled first, OnError returns ctx's cause.
func (s *Scheduler[T]) OnError(ctx context.Context) error {
	s.mu.Lock()
	sig := s.errSignal
	s.mu.Unlock()

	select {
	case <-sig.ch:
		return sig.err
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

func (s *Scheduler[T]) await(ctx context.Context, ev Event, cond func() bool) error {
	s.mu.Lock()
	if cond() {
		s.mu.Unlock()
		return nil
	}
	sig := s.signals[ev]
	s.mu.Unlock()

	select {
	case <-sig.ch:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
