// Package observability builds the service logger and Prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "climate_risk"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// assessment pipeline and the run-event publisher.
type Metrics struct {
	// Pipeline runs.
	Runs         *prometheus.CounterVec // labels: mode={assess,predict}, outcome={success,transport_error,rejected,validation}
	RunsInFlight prometheus.Gauge
	RunDuration  *prometheus.HistogramVec // labels: mode

	// Model calls.
	ModelCalls        *prometheus.CounterVec   // labels: kind={assess,predict,insights}, outcome={success,error}
	ModelCallDuration *prometheus.HistogramVec // labels: kind
	ParseFallbacks    *prometheus.CounterVec   // labels: kind

	// Run events.
	EventsPublished prometheus.Counter
	EventsFailed    prometheus.Counter
	EventsDropped   prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Runs,
		m.RunsInFlight,
		m.RunDuration,
		m.ModelCalls,
		m.ModelCallDuration,
		m.ParseFallbacks,
		m.EventsPublished,
		m.EventsFailed,
		m.EventsDropped,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		RunsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "1 while a pipeline run is loading, 0 otherwise.",
		}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete run including the insights call.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"mode"}),
		ModelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Calls to the text-generation service by prompt kind and outcome.",
		}, []string{"kind", "outcome"}),
		ModelCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Text-generation call latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}, []string{"kind"}),
		ParseFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_fallbacks_total",
			Help:      "Replies that could not be decoded and were replaced by fallback data.",
		}, []string{"kind"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_events_published_total",
			Help:      "Completed-run events written to the event sink.",
		}),
		EventsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_events_failed_total",
			Help:      "Completed-run events abandoned after exhausting retries.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_events_dropped_total",
			Help:      "Completed-run events dropped because the queue was full.",
		}),
	}
}
