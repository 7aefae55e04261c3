// Package throttle implements an in-process task scheduler that admits work
// under a concurrency limit, a sliding-window rate limit and a priority order.
//
// Tasks wait in a priority queue until an admission opportunity allows them to
// start. Higher priorities start first and tasks of equal priority start in
// the order they were added. A task is admitted only when fewer than the
// configured number of tasks are running and fewer than the interval cap have
// started within the trailing interval. When the interval window is full, the
// scheduler arms a single timer for the moment the oldest start leaves the
// window and resumes admission without external polling.
//
// Each task receives the context it was added with. Cancelling that context
// removes a waiting task from the queue, or settles a running task with a
// [CancelledError] as soon as the cancellation fires. Task bodies are expected
// to observe the context; the scheduler never interrupts them.
//
//	s, err := throttle.New[string](
//	    throttle.WithConcurrency(2),
//	    throttle.WithInterval(time.Second),
//	    throttle.WithIntervalCap(10),
//	)
//	if err != nil {
//	    return err
//	}
//
//	body, err := s.Add(ctx, fetch, throttle.WithPriority(throttle.Priorities.High))
package throttle
