// Package metrics exposes Prometheus collectors for the calculation pipeline.
//
// All recording methods are safe on a nil *Metrics so callers can run with
// metrics disabled without guarding every call.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "topsis"

// Calculation outcomes.
const (
	OutcomeSent     = "sent"
	OutcomeDegraded = "degraded"
	OutcomeRejected = "rejected"
	OutcomeBusy     = "busy"
	OutcomeError    = "error"
)

// Metrics owns a private registry so tests can create independent instances.
type Metrics struct {
	registry *prometheus.Registry

	calculations       *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	deliveries         *prometheus.CounterVec
	duration           *prometheus.HistogramVec
	rows               prometheus.Histogram
	inFlight           prometheus.Gauge
	artifactsSwept     prometheus.Counter
}

// New registers every collector plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		calculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_total",
			Help:      "Calculation requests by outcome.",
		}, []string{"outcome"}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Rejected inputs by validation rule.",
		}, []string{"rule"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "email_deliveries_total",
			Help:      "Result email attempts by result (sent or failure kind).",
		}, []string{"result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "calculation_duration_seconds",
			Help:      "End-to-end calculation latency including delivery.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),
		rows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dataset_rows",
			Help:      "Rows per ranked dataset.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calculations_in_flight",
			Help:      "Calculations currently holding a limiter slot.",
		}),
		artifactsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_swept_total",
			Help:      "Expired result artifacts removed by the janitor.",
		}),
	}

	reg.MustRegister(
		m.calculations,
		m.validationFailures,
		m.deliveries,
		m.duration,
		m.rows,
		m.inFlight,
		m.artifactsSwept,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CalculationFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.calculations.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) ValidationFailed(rule string) {
	if m == nil {
		return
	}
	m.validationFailures.WithLabelValues(rule).Inc()
}

func (m *Metrics) DeliveryAttempted(result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(result).Inc()
}

func (m *Metrics) DatasetRanked(rows int) {
	if m == nil {
		return
	}
	m.rows.Observe(float64(rows))
}

func (m *Metrics) InFlight(delta float64) {
	if m == nil {
		return
	}
	m.inFlight.Add(delta)
}

func (m *Metrics) ArtifactsSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.artifactsSwept.Add(float64(n))
}
