package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
)

// RetrainMetrics implements ports.RetrainObserver.
type RetrainMetrics struct {
	registry *prometheus.Registry
	service  string

	submittedTotal *prometheus.CounterVec
	jobsTotal      *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobsInFlight   prometheus.Gauge
	queueDepth     prometheus.Gauge
}

// NewRetrainMetrics registers on registry, or on a private one when nil so
// the worker daemon can expose it alone.
func NewRetrainMetrics(service string, registry *prometheus.Registry) *RetrainMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	submittedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentiment",
			Subsystem: "retrain",
			Name:      "jobs_submitted_total",
			Help:      "Total accepted retrain submissions.",
		},
		[]string{"service"},
	)
	jobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentiment",
			Subsystem: "retrain",
			Name:      "jobs_total",
			Help:      "Total finished retrain jobs by status.",
		},
		[]string{"service", "status"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sentiment",
			Subsystem: "retrain",
			Name:      "job_duration_seconds",
			Help:      "Retrain job duration in seconds by status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"service", "status"},
	)
	jobsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sentiment",
			Subsystem: "retrain",
			Name:      "jobs_in_flight",
			Help:      "Retrain jobs accepted and not yet finished.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueDepth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sentiment",
			Subsystem: "retrain",
			Name:      "queue_depth",
			Help:      "Retrain requests waiting for the worker.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(submittedTotal, jobsTotal, jobDuration, jobsInFlight, queueDepth)

	return &RetrainMetrics{
		registry:       registry,
		service:        service,
		submittedTotal: submittedTotal,
		jobsTotal:      jobsTotal,
		jobDuration:    jobDuration,
		jobsInFlight:   jobsInFlight,
		queueDepth:     queueDepth,
	}
}

func (m *RetrainMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *RetrainMetrics) JobSubmitted() {
	m.submittedTotal.WithLabelValues(m.service).Inc()
	m.jobsInFlight.Inc()
}

func (m *RetrainMetrics) JobFinished(status domain.JobStatus, duration time.Duration) {
	m.jobsInFlight.Dec()
	m.jobsTotal.WithLabelValues(m.service, string(status)).Inc()
	m.jobDuration.WithLabelValues(m.service, string(status)).Observe(duration.Seconds())
}

func (m *RetrainMetrics) QueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}
