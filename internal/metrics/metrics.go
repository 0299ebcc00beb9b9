// Package metrics exposes the domain counters of the API and worker in the
// Prometheus text format.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrtlevels/hrtlevels/internal/pk"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "hrtlevels"

// Simulation sources.
const (
	SourceStateless = "stateless"
	SourceUser      = "user"
	SourceSnapshot  = "snapshot"
)

// Outcome labels.
const (
	OutcomeOK          = "ok"
	OutcomeInvalid     = "invalid"
	OutcomeUnsupported = "unsupported"
	OutcomeError       = "error"
	OutcomeSkipped     = "skipped"
)

// Metrics holds the Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SimulationsTotal   *prometheus.CounterVec
	SimulationDuration *prometheus.HistogramVec
	SimulationSamples  prometheus.Histogram
	SimulationDoses    prometheus.Histogram

	SnapshotRefreshesTotal *prometheus.CounterVec
	SnapshotRunDuration    prometheus.Histogram

	JobsReceivedTotal *prometheus.CounterVec
	ExportsTotal      *prometheus.CounterVec
}

// New creates a Metrics instance backed by its own registry. The Go runtime
// and process collectors are registered alongside.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SimulationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "runs_total",
			Help:      "Total number of concentration simulations by source and outcome",
		}, []string{"source", "outcome"}),
		SimulationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "duration_seconds",
			Help:      "Time spent sampling concentration curves",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"source"}),
		SimulationSamples: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "samples",
			Help:      "Number of sample times per simulation",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
		}),
		SimulationDoses: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "doses",
			Help:      "Number of dose events per simulation",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 7),
		}),

		SnapshotRefreshesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "refreshes_total",
			Help:      "Total number of level snapshot refreshes by outcome",
		}, []string{"outcome"}),
		SnapshotRunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "run_duration_seconds",
			Help:      "Duration of a full snapshot refresh run",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),

		JobsReceivedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_received_total",
			Help:      "Total number of Pub/Sub job messages by type and outcome",
		}, []string{"job_type", "outcome"}),
		ExportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "operations_total",
			Help:      "Total number of encrypted export and import operations",
		}, []string{"operation", "outcome"}),
	}
}

// Registry returns the registry backing m, or nil for a nil m.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveSimulation records one simulation run.
func (m *Metrics) ObserveSimulation(source string, doses, samples int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.SimulationsTotal.WithLabelValues(source, Outcome(err)).Inc()
	if err != nil {
		return
	}
	m.SimulationDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	m.SimulationSamples.Observe(float64(samples))
	m.SimulationDoses.Observe(float64(doses))
}

// ObserveSnapshotRefresh records the outcome of one user's snapshot refresh.
func (m *Metrics) ObserveSnapshotRefresh(outcome string) {
	if m == nil {
		return
	}
	m.SnapshotRefreshesTotal.WithLabelValues(outcome).Inc()
}

// ObserveSnapshotRun records the duration of a refresh run.
func (m *Metrics) ObserveSnapshotRun(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SnapshotRunDuration.Observe(elapsed.Seconds())
}

// ObserveJob records a received worker job message.
func (m *Metrics) ObserveJob(jobType, outcome string) {
	if m == nil {
		return
	}
	m.JobsReceivedTotal.WithLabelValues(jobType, outcome).Inc()
}

// ObserveExport records an export or import operation.
func (m *Metrics) ObserveExport(operation string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.ExportsTotal.WithLabelValues(operation, outcome).Inc()
}

// Outcome classifies err into an outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, pk.ErrUnsupported):
		return OutcomeUnsupported
	case errors.Is(err, pk.ErrInvalidInput):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}
