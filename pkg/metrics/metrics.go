// Package metrics defines the Prometheus metric collectors used across the
// verification pipeline and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the pipeline. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	JobsDispatchedTotal  *prometheus.CounterVec
	MessagesTotal        *prometheus.CounterVec
	WorkerReconnects     *prometheus.CounterVec
	WorkerState          *prometheus.GaugeVec
	EvaluationsTotal     *prometheus.CounterVec
	EvaluationDuration   *prometheus.HistogramVec
	ReportFailuresTotal  *prometheus.CounterVec
	DuplicateJobsTotal   *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		JobsDispatchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ekyc_jobs_dispatched_total",
				Help: "Verification jobs published to the broker by job type and status.",
			},
			[]string{"job_type", "status"},
		),
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ekyc_worker_messages_total",
				Help: "Messages handled by workers by outcome (ack, nack).",
			},
			[]string{"worker", "outcome"},
		),
		WorkerReconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ekyc_worker_reconnects_total",
				Help: "Broker reconnect attempts after a connectivity error.",
			},
			[]string{"worker"},
		),
		WorkerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ekyc_worker_state",
				Help: "Worker state (0=disconnected, 1=connecting, 2=consuming, 3=stopped).",
			},
			[]string{"worker"},
		),
		EvaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ekyc_evaluations_total",
				Help: "Evaluated jobs by type and outcome (pass, fail, error).",
			},
			[]string{"job_type", "outcome"},
		),
		EvaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ekyc_evaluation_duration_seconds",
				Help:    "Time spent inside capability providers and decision logic.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"job_type"},
		),
		ReportFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ekyc_report_failures_total",
				Help: "Swallowed reporting failures by target (backoffice, media, video).",
			},
			[]string{"target"},
		),
		DuplicateJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ekyc_duplicate_jobs_total",
				Help: "Redelivered jobs skipped because their result was already published.",
			},
			[]string{"job_type"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.JobsDispatchedTotal,
		m.MessagesTotal,
		m.WorkerReconnects,
		m.WorkerState,
		m.EvaluationsTotal,
		m.EvaluationDuration,
		m.ReportFailuresTotal,
		m.DuplicateJobsTotal,
		m.CircuitBreakerState,
	)

	return m
}

func (m *Metrics) JobDispatched(jobType string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.JobsDispatchedTotal.WithLabelValues(jobType, status).Inc()
}

func (m *Metrics) Message(worker, outcome string) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(worker, outcome).Inc()
}

func (m *Metrics) Reconnect(worker string) {
	if m == nil {
		return
	}
	m.WorkerReconnects.WithLabelValues(worker).Inc()
}

func (m *Metrics) SetWorkerState(worker string, state int) {
	if m == nil {
		return
	}
	m.WorkerState.WithLabelValues(worker).Set(float64(state))
}

func (m *Metrics) Evaluation(jobType, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.EvaluationsTotal.WithLabelValues(jobType, outcome).Inc()
	m.EvaluationDuration.WithLabelValues(jobType).Observe(elapsed.Seconds())
}

func (m *Metrics) ReportFailure(target string) {
	if m == nil {
		return
	}
	m.ReportFailuresTotal.WithLabelValues(target).Inc()
}

func (m *Metrics) DuplicateJob(jobType string) {
	if m == nil {
		return
	}
	m.DuplicateJobsTotal.WithLabelValues(jobType).Inc()
}

func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
