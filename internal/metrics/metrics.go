package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/volume-sync/vsc/internal/dispatch"
)

// Metrics holds the container's Prometheus collectors. All collectors are
// registered on a private registry so tests can create independent
// instances.
type Metrics struct {
	registry *prometheus.Registry

	tasksSubmitted *prometheus.CounterVec
	tasksCompleted *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	violations     prometheus.Counter

	pendingCalls prometheus.GaugeFunc
	queueDepth   prometheus.GaugeFunc
}

// Compile-time assertion that Metrics is a dispatch violation sink.
var _ dispatch.ViolationSink = (*Metrics)(nil)

// New creates and registers the container collectors. pendingFn and queueFn
// sample the dispatcher's pending count and the executor's queue depth; nil
// funcs report zero.
func New(pendingFn, queueFn func() int) *Metrics {
	if pendingFn == nil {
		pendingFn = func() int { return 0 }
	}
	if queueFn == nil {
		queueFn = func() int { return 0 }
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		tasksSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vsc_tasks_submitted_total",
			Help: "Tasks accepted by the executor, by operation.",
		}, []string{"op"}),
		tasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vsc_tasks_completed_total",
			Help: "Task completions, by operation and outcome.",
		}, []string{"op", "outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vsc_task_duration_seconds",
			Help:    "Task execution latency, by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		violations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vsc_dispatch_violations_total",
			Help: "Completion events dropped as protocol violations.",
		}),
		pendingCalls: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "vsc_dispatch_pending_calls",
			Help: "In-flight calls awaiting a completion event.",
		}, func() float64 { return float64(pendingFn()) }),
		queueDepth: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "vsc_task_queue_depth",
			Help: "Tasks queued but not yet executed.",
		}, func() float64 { return float64(queueFn()) }),
	}

	registry.MustRegister(
		m.tasksSubmitted,
		m.tasksCompleted,
		m.taskDuration,
		m.violations,
		m.pendingCalls,
		m.queueDepth,
	)

	return m
}

// TaskSubmitted counts an accepted task.
func (m *Metrics) TaskSubmitted(id int64, op dispatch.Operation) {
	m.tasksSubmitted.WithLabelValues(string(op)).Inc()
}

// TaskCompleted counts a completion and observes its latency.
func (m *Metrics) TaskCompleted(id int64, op dispatch.Operation, ok bool, elapsed time.Duration) {
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	m.tasksCompleted.WithLabelValues(string(op), outcome).Inc()
	m.taskDuration.WithLabelValues(string(op)).Observe(elapsed.Seconds())
}

// RecordViolation counts a dropped completion event.
func (m *Metrics) RecordViolation(taskID int64, reason string) {
	m.violations.Inc()
}

// Handler returns the HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
