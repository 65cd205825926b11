package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "profilestate"

// Recorder owns a private registry so repeated runs in one process (watch
// mode, tests) never collide on global registration.
type Recorder struct {
	registry *prometheus.Registry

	reconciles *prometheus.CounterVec
	errors     *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	lastRun    prometheus.Gauge
}

// New builds a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		reconciles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "total",
				Help:      "Profile reconciliations by target state and result.",
			},
			[]string{"state", "result"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "errors_total",
				Help:      "Reconciliations aborted by a capability error.",
			},
			[]string{"state"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "duration_seconds",
				Help:      "Time spent reconciling one profile.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"state"},
		),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed convergence run.",
		}),
	}
	r.registry.MustRegister(r.reconciles, r.errors, r.duration, r.lastRun)
	return r
}

// RecordReconcile counts one finished reconciliation. result is the report
// result label ("success", "failure", "would-change").
func (r *Recorder) RecordReconcile(state, result string, duration time.Duration) {
	if r == nil {
		return
	}
	r.reconciles.WithLabelValues(state, result).Inc()
	r.duration.WithLabelValues(state).Observe(duration.Seconds())
}

// RecordError counts a reconciliation that ended in a capability error.
func (r *Recorder) RecordError(state string, duration time.Duration) {
	if r == nil {
		return
	}
	r.errors.WithLabelValues(state).Inc()
	r.duration.WithLabelValues(state).Observe(duration.Seconds())
}

// MarkRun stamps the completion time of a convergence run.
func (r *Recorder) MarkRun(at time.Time) {
	if r == nil {
		return
	}
	r.lastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes the current metrics in the text exposition format for
// the node_exporter textfile collector. The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
