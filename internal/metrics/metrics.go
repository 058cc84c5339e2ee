// Package metrics exposes job and classification counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Classification outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the collectors recorded by the job orchestrator.
type Metrics struct {
	registry *prometheus.Registry

	jobsCreated     prometheus.Counter
	jobsFinished    *prometheus.CounterVec
	jobDuration     prometheus.Histogram
	classifications *prometheus.CounterVec
}

// New creates the collectors on a dedicated registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lesionscan_jobs_created_total",
			Help: "Total analysis jobs accepted",
		}),
		jobsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lesionscan_jobs_finished_total",
				Help: "Total analysis jobs that reached a terminal status",
			},
			[]string{"status"},
		),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lesionscan_job_duration_seconds",
			Help:    "Time from job start to terminal status",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		classifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lesionscan_classifications_total",
				Help: "Classifier invocations by classifier and outcome",
			},
			[]string{"classifier", "outcome"},
		),
	}

	m.registry.MustRegister(
		m.jobsCreated,
		m.jobsFinished,
		m.jobDuration,
		m.classifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) JobCreated() {
	m.jobsCreated.Inc()
}

// JobFinished records a terminal status and how long advancement took.
func (m *Metrics) JobFinished(status string, elapsed time.Duration) {
	m.jobsFinished.WithLabelValues(status).Inc()
	m.jobDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) Classified(classifier, outcome string) {
	m.classifications.WithLabelValues(classifier, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
