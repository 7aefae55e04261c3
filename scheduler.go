package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Scheduler admits tasks into execution under three constraints:
//
//   - at most Concurrency tasks run at once
//   - at most IntervalCap tasks start within any trailing Interval
//   - waiting tasks start in priority order, FIFO among equal priorities
//
// Every add, start, completion and window expiry is an admission
// opportunity. The scheduler drains as many waiting tasks as both limits
// allow at each opportunity. Tasks already running are never preempted.
type Scheduler[T any] struct {
	mu         sync.Mutex
	logger     *slog.Logger
	hooks      []Hook
	middleware Middleware

	queue  *queue[T]
	window *tickWindow // nil when the interval cap is unbounded.

	concurrency int
	intervalCap int
	timeout     time.Duration
	paused      bool

	pending int
	running map[uint64]TaskInfo
	runSeq  uint64

	rateLimited bool

	// A single timer re-attempts admission when the oldest tick leaves the
	// window. timerGen invalidates callbacks of stopped timers.
	timer    *time.Timer
	timerGen uint64

	idSeq uint64
	idGen func() string

	signals   [eventCount]*signal
	errSignal *signal
}

// New creates a new [Scheduler] with the given options. It fails with a
// [ConfigError] if a numeric option is out of range.
func New[T any](opts ...Option) (*Scheduler[T], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	s := &Scheduler[T]{
		logger:      o.Logger,
		hooks:       o.Hooks,
		queue:       newQueue[T](),
		concurrency: o.Concurrency,
		intervalCap: o.IntervalCap,
		timeout:     o.Timeout,
		paused:      !o.AutoStart,
		running:     make(map[uint64]TaskInfo),
		idGen:       o.IDGenerator,
		errSignal:   newSignal(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if len(o.Middleware) > 0 {
		s.middleware = Chain(o.Middleware...)
	}
	if o.IntervalCap != Unbounded {
		s.window = newTickWindow(o.Interval)
	}
	for i := range s.signals {
		s.signals[i] = newSignal()
	}

	return s, nil
}

// Go adds a task and returns its [Future] without waiting for it to run.
//
// Cancelling ctx while the task waits removes it from the queue. Cancelling
// ctx while it runs settles the future with a [CancelledError] immediately
// and frees its concurrency slot; the task body is expected to observe ctx.
func (s *Scheduler[T]) Go(ctx context.Context, fn TaskFunc[T], opts ...TaskOption) *Future[T] {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o := TaskOptions{Timeout: s.timeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ID == "" {
		o.ID = s.nextID()
	}

	f := newFuture[T](o.ID)
	t := &task[T]{
		fn:      fn,
		ctx:     ctx,
		timeout: o.Timeout,
		future:  f,
	}

	e, err := s.queue.insert(t, o.ID, o.Priority)
	if err != nil {
		var zero T
		f.settle(zero, err)
		return f
	}
	t.stop = context.AfterFunc(ctx, func() {
		s.abandon(e)
	})

	info := TaskInfo{ID: e.id, Priority: e.priority, Timeout: t.timeout}
	for _, h := range s.hooks {
		h.OnAdd(info)
	}

	s.drain()
	return f
}

// Add adds a task and blocks until it settles. The returned error is the
// task's own error, a [CancelledError], a [TimeoutError] or [ErrCleared].
func (s *Scheduler[T]) Add(ctx context.Context, fn TaskFunc[T], opts ...TaskOption) (T, error) {
	f := s.Go(ctx, fn, opts...)
	<-f.Done()
	return f.res.val, f.res.err
}

// AddMany adds every task with the same options and waits for all of them.
// It fails with the first error as soon as any task fails; the remaining
// tasks keep running and settle on their own.
func (s *Scheduler[T]) AddMany(ctx context.Context, fns []TaskFunc[T], opts ...TaskOption) ([]T, error) {
	futures := make([]*Future[T], len(fns))
	for i, fn := range fns {
		futures[i] = s.Go(ctx, fn, opts...)
	}

	out := make([]T, len(fns))
	g, gctx := errgroup.WithContext(context.Background())
	for i, f := range futures {
		g.Go(func() error {
			v, err := f.Wait(gctx)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Prioritize changes the priority of a waiting task. It fails with
// [ErrTaskNotFound] if no task with the id is waiting.
func (s *Scheduler[T]) Prioritize(id string, priority Priority) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.queue.reprioritize(id, priority)
}

// Start resumes admission and starts as many waiting tasks as the limits
// allow.
func (s *Scheduler[T]) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.paused {
		return
	}
	s.paused = false
	s.drain()
}

// Pause stops admission. Running tasks are unaffected.
func (s *Scheduler[T]) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.paused = true
}

// Clear discards every waiting task, settling each with [ErrCleared].
// Running tasks are unaffected.
func (s *Scheduler[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	entries := s.queue.drain()
	for _, e := range entries {
		e.task.stop()
		e.task.future.settle(zero, ErrCleared)
	}
	if len(entries) > 0 {
		s.emit(EventNext)
	}

	s.updateRateLimit()
	s.emit(EventEmpty)
	if s.pending == 0 {
		s.emit(EventIdle)
	}
}

// SetConcurrency changes the concurrency limit. Running tasks are never
// preempted; a raised limit admits waiting tasks immediately.
func (s *Scheduler[T]) SetConcurrency(n int) error {
	if err := validateLimit("concurrency", n); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.concurrency = n
	s.drain()
	return nil
}

// Concurrency returns the concurrency limit.
func (s *Scheduler[T]) Concurrency() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.concurrency
}

// Size returns the number of waiting tasks.
func (s *Scheduler[T]) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// SizeBy returns the number of waiting tasks with the given priority.
func (s *Scheduler[T]) SizeBy(priority Priority) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue.filter(priority))
}

// Pending returns the number of running tasks.
func (s *Scheduler[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// RunningTasks returns a snapshot of the running tasks in dispatch order.
func (s *Scheduler[T]) RunningTasks() []RunningTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]uint64, 0, len(s.running))
	for k := range s.running {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]RunningTask, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.running[k])
	}
	return out
}

// Peek returns the task that would start next without removing it.
func (s *Scheduler[T]) Peek() (TaskInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.queue.peek()
	if e == nil {
		return TaskInfo{}, false
	}
	return TaskInfo{ID: e.id, Priority: e.priority, Timeout: e.task.timeout}, true
}

// IsPaused returns true if admission is paused.
func (s *Scheduler[T]) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// IsRateLimited returns true if the interval cap is blocking waiting tasks.
func (s *Scheduler[T]) IsRateLimited() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rateLimited
}

// IsSaturated returns true if tasks are waiting and neither the concurrency
// limit nor the interval cap allows another to start.
func (s *Scheduler[T]) IsSaturated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue.Len() == 0 {
		return false
	}
	return s.pending >= s.concurrency || s.rateLimited
}

// drain performs admission opportunities until one fails, then recomputes
// the rate limit state. Caller must hold the lock.
func (s *Scheduler[T]) drain() {
	for s.tryStartNext() {
	}
	s.updateRateLimit()
}

// tryStartNext performs a single admission opportunity. It returns true if a
// task left the queue. Caller must hold the lock.
func (s *Scheduler[T]) tryStartNext() bool {
	if s.queue.Len() == 0 {
		s.emit(EventEmpty)
		if s.pending == 0 {
			s.emit(EventIdle)
		}
		return false
	}

	if s.paused || s.pending >= s.concurrency {
		return false
	}

	now := time.Now()
	if s.window != nil && s.window.active(now) >= s.intervalCap {
		return false
	}

	e := s.queue.extract()
	s.emit(EventNext)

	if s.window != nil {
		s.window.consume(now)
	}
	s.dispatch(e, now)
	return true
}

// dispatch runs an entry that has left the queue. A task whose context was
// cancelled before it could start never runs and gives back its tick.
// Caller must hold the lock.
func (s *Scheduler[T]) dispatch(e *entry[T], now time.Time) {
	t := e.task
	t.stop()

	info := TaskInfo{
		ID:       e.id,
		Priority: e.priority,
		Timeout:  t.timeout,
	}

	if t.ctx.Err() != nil {
		if s.window != nil {
			s.window.restoreLast()
		}
		var zero T
		err := &CancelledError{ID: e.id, Reason: context.Cause(t.ctx)}
		t.future.settle(zero, err)
		s.notifyError(info, err)
		return
	}

	s.pending++
	s.runSeq++
	key := s.runSeq
	info.Run = key
	info.StartedAt = now
	s.running[key] = info

	for _, h := range s.hooks {
		h.OnActive(info)
	}
	s.logger.Debug("task started",
		slog.String("task_id", info.ID),
		slog.Int("priority", int(info.Priority)),
		slog.Int("pending", s.pending),
	)

	go s.run(key, t, info)
}

// run races the task body against its context for the whole execution.
func (s *Scheduler[T]) run(key uint64, t *task[T], info TaskInfo) {
	ctx, cancel := t.ctx, context.CancelFunc(func() {})
	if t.timeout > 0 {
		ctx, cancel = context.WithTimeout(t.ctx, t.timeout)
	}
	defer cancel()

	// Buffered so an abandoned body can still deliver its result and exit.
	done := make(chan result[T], 1)
	go func() {
		done <- s.execute(ctx, t, info)
	}()

	var res result[T]
	select {
	case res = <-done:
		// The body may observe ctx and return before this select does.
		if res.err != nil && ctx.Err() != nil {
			res = result[T]{err: s.contextError(t, info)}
		}
	case <-ctx.Done():
		res.err = s.contextError(t, info)
	}

	s.finish(key, t, info, res)
}

// contextError reports why a running task's context is done: the caller
// cancelled it, or else its timeout elapsed.
func (s *Scheduler[T]) contextError(t *task[T], info TaskInfo) error {
	if t.ctx.Err() != nil {
		return &CancelledError{ID: info.ID, Reason: context.Cause(t.ctx)}
	}
	return &TimeoutError{ID: info.ID, Timeout: t.timeout}
}

// execute calls the task body through the middleware chain, converting a
// panic into the task's error.
func (s *Scheduler[T]) execute(ctx context.Context, t *task[T], info TaskInfo) (res result[T]) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked",
				slog.String("task_id", info.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			res = result[T]{err: fmt.Errorf("throttle: task %q panicked: %v", info.ID, r)}
		}
	}()

	if s.middleware == nil {
		res.val, res.err = t.fn(ctx)
		return res
	}

	res.err = s.middleware(ctx, info, func(ctx context.Context) error {
		var err error
		res.val, err = t.fn(ctx)
		return err
	})
	return res
}

// finish settles a dispatched task and performs the admission opportunity
// its completion creates. It runs on the task's goroutine, never inside
// another admission opportunity.
func (s *Scheduler[T]) finish(key uint64, t *task[T], info TaskInfo, res result[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending--
	delete(s.running, key)
	t.future.settle(res.val, res.err)

	if res.err != nil {
		s.notifyError(info, res.err)
	} else {
		elapsed := time.Since(info.StartedAt)
		for _, h := range s.hooks {
			h.OnCompleted(info, elapsed)
		}
		s.logger.Debug("task completed",
			slog.String("task_id", info.ID),
			slog.Duration("elapsed", elapsed),
		)
	}

	if s.pending == 0 {
		s.emit(EventPendingZero)
	}
	s.drain()
}

// abandon removes a waiting task whose context was cancelled.
func (s *Scheduler[T]) abandon(e *entry[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.queue.remove(e) {
		return
	}

	var zero T
	err := &CancelledError{ID: e.id, Reason: context.Cause(e.task.ctx)}
	e.task.future.settle(zero, err)
	s.notifyError(TaskInfo{ID: e.id, Priority: e.priority, Timeout: e.task.timeout}, err)
	s.emit(EventNext)

	s.drain()
}

// updateRateLimit recomputes whether the interval cap blocks waiting tasks,
// arming the expiry timer while it does. Rate limiting only applies while
// tasks are waiting. Caller must hold the lock.
func (s *Scheduler[T]) updateRateLimit() {
	limited := false
	if s.window != nil && s.queue.Len() > 0 {
		limited = s.window.active(time.Now()) >= s.intervalCap
	}

	if limited {
		s.armTimer()
	} else {
		s.stopTimer()
	}

	if limited == s.rateLimited {
		return
	}
	s.rateLimited = limited

	if limited {
		s.logger.Debug("rate limit reached", slog.Int("waiting", s.queue.Len()))
		s.emit(EventRateLimit)
	} else {
		s.logger.Debug("rate limit cleared")
		s.emit(EventRateLimitCleared)
	}
}

func (s *Scheduler[T]) armTimer() {
	if s.timer != nil {
		return
	}

	now := time.Now()
	at, ok := s.window.nextExpiry(now)
	if !ok {
		return
	}

	s.timerGen++
	gen := s.timerGen
	s.timer = time.AfterFunc(max(at.Sub(now), 0), func() {
		s.onTimer(gen)
	})
}

func (s *Scheduler[T]) stopTimer() {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.timer = nil
	s.timerGen++
}

func (s *Scheduler[T]) onTimer(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.timerGen {
		return
	}
	s.timer = nil
	s.drain()
}

func (s *Scheduler[T]) notifyError(info TaskInfo, err error) {
	for _, h := range s.hooks {
		h.OnError(info, err)
	}
	s.errSignal = s.errSignal.fire(err)
	s.logger.Debug("task failed",
		slog.String("task_id", info.ID),
		slog.Any("error", err),
	)
}

func (s *Scheduler[T]) emit(ev Event) {
	for _, h := range s.hooks {
		h.OnEvent(ev)
	}
	s.signals[ev] = s.signals[ev].fire(nil)
}

func (s *Scheduler[T]) nextID() string {
	if s.idGen != nil {
		return s.idGen()
	}
	s.idSeq++
	return strconv.FormatUint(s.idSeq, 10)
}
