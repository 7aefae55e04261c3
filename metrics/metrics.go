// Package metrics exports scheduler activity as Prometheus metrics.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tomasbasham/throttle"
)

// Stats is the read-only view of a scheduler sampled on every scrape.
// [throttle.Scheduler] satisfies it for any result type.
type Stats interface {
	Size() int
	Pending() int
	IsPaused() bool
	IsRateLimited() bool
}

// Hook records task lifecycle events as Prometheus metrics. It implements
// [throttle.Hook].
type Hook struct {
	added     *prometheus.CounterVec
	started   *prometheus.CounterVec
	completed *prometheus.CounterVec
	failed    *prometheus.CounterVec
	events    *prometheus.CounterVec
	running   prometheus.Gauge
	duration  *prometheus.HistogramVec

	mu     sync.Mutex
	active map[uint64]struct{} // keyed by TaskInfo.Run.
}

// NewHook creates a [Hook] whose collectors are registered with reg. A nil
// reg registers with the default registry.
func NewHook(reg prometheus.Registerer, namespace string) *Hook {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Hook{
		added: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "throttle",
				Name:      "tasks_added_total",
				Help:      "Total number of tasks added to the queue",
			},
			[]string{"priority"},
		),

		started: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "throttle",
				Name:      "tasks_started_total",
				Help:      "Total number of tasks dispatched",
			},
			[]string{"priority"},
		),

		completed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "throttle",
				Name:      "tasks_completed_total",
				Help:      "Total number of tasks that succeeded",
			},
			[]string{"priority"},
		),

		failed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "throttle",
				Name:      "tasks_failed_total",
				Help:      "Total number of tasks that failed, timed out or were cancelled",
			},
			[]string{"reason"},
		),

		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "throttle",
				Name:      "events_total",
				Help:      "Total number of queue events",
			},
			[]string{"event"},
		),

		running: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "throttle",
				Name:      "tasks_running",
				Help:      "Current number of running tasks",
			},
		),

		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "throttle",
				Name:      "task_duration_seconds",
				Help:      "Duration of successful tasks in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to 16s
			},
			[]string{"priority"},
		),

		active: make(map[uint64]struct{}),
	}
}

var _ throttle.Hook = (*Hook)(nil)

// OnAdd implements [throttle.Hook].
func (h *Hook) OnAdd(info throttle.TaskInfo) {
	h.added.WithLabelValues(info.Priority.String()).Inc()
}

// OnActive implements [throttle.Hook].
func (h *Hook) OnActive(info throttle.TaskInfo) {
	h.started.WithLabelValues(info.Priority.String()).Inc()

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.active[info.Run]; ok {
		return
	}
	h.active[info.Run] = struct{}{}
	h.running.Inc()
}

// OnCompleted implements [throttle.Hook].
func (h *Hook) OnCompleted(info throttle.TaskInfo, elapsed time.Duration) {
	h.completed.WithLabelValues(info.Priority.String()).Inc()
	h.duration.WithLabelValues(info.Priority.String()).Observe(elapsed.Seconds())
	h.release(info)
}

// OnError implements [throttle.Hook]. Tasks cancelled before they started
// never count as running.
func (h *Hook) OnError(info throttle.TaskInfo, err error) {
	h.failed.WithLabelValues(reason(err)).Inc()
	h.release(info)
}

// OnEvent implements [throttle.Hook].
func (h *Hook) OnEvent(ev throttle.Event) {
	h.events.WithLabelValues(ev.String()).Inc()
}

func (h *Hook) release(info throttle.TaskInfo) {
	if !info.Started() {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.active[info.Run]; !ok {
		return
	}
	delete(h.active, info.Run)
	h.running.Dec()
}

func reason(err error) string {
	var cancelled *throttle.CancelledError
	var timeout *throttle.TimeoutError
	switch {
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &cancelled):
		return "cancelled"
	default:
		return "error"
	}
}

// RegisterStats registers gauges that sample s on every scrape: the number
// of waiting tasks and whether the scheduler is paused or rate limited.
func RegisterStats(reg prometheus.Registerer, namespace string, s Stats) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "throttle",
			Name:      "tasks_waiting",
			Help:      "Current number of tasks waiting in the queue",
		},
		func() float64 { return float64(s.Size()) },
	)

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "throttle",
			Name:      "paused",
			Help:      "Whether admission is paused (1) or not (0)",
		},
		func() float64 { return boolToFloat(s.IsPaused()) },
	)

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "throttle",
			Name:      "rate_limited",
			Help:      "Whether the interval cap is blocking waiting tasks (1) or not (0)",
		},
		func() float64 { return boolToFloat(s.IsRateLimited()) },
	)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
