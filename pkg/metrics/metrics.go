package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	CasesCreatedTotal   prometheus.Counter
	CaseTransitions     *prometheus.CounterVec
	CASConflicts        *prometheus.CounterVec
	RetryExhaustedTotal prometheus.Counter
	ClaimsTotal         *prometheus.CounterVec
	ReviewsTotal        *prometheus.CounterVec

	InferenceDuration *prometheus.HistogramVec

	AuditEntriesTotal         prometheus.Counter
	AuditBufferDropped        prometheus.Counter
	NotificationsSent         *prometheus.CounterVec
	NotificationBufferDropped prometheus.Counter
}

// NewCollector registers every metric on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func NewCollector(serviceName string, reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	serviceName = strings.NewReplacer("-", "_", ".", "_").Replace(serviceName)

	return &Collector{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code.",
		}, []string{"method", "path", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path", "status"}),

		InFlightGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		CasesCreatedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "cases",
			Name:      "created_total",
			Help:      "Total number of cases submitted.",
		}),

		CaseTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "cases",
			Name:      "transitions_total",
			Help:      "Applied case status transitions.",
		}, []string{"from", "to"}),

		CASConflicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "cases",
			Name:      "cas_conflicts_total",
			Help:      "Conditional updates that lost to a concurrent writer, by operation.",
		}, []string{"operation"}),

		RetryExhaustedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "cases",
			Name:      "retry_exhausted_total",
			Help:      "Cases moved to processing_failed. Alert if increasing.",
		}),

		ClaimsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "cases",
			Name:      "claims_total",
			Help:      "Doctor queue claim attempts by result.",
		}, []string{"result"}),

		ReviewsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "cases",
			Name:      "reviews_total",
			Help:      "Doctor reviews recorded by decision.",
		}, []string{"decision"}),

		InferenceDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: serviceName,
			Subsystem: "inference",
			Name:      "duration_seconds",
			Help:      "AI inference call latency by outcome.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"outcome"}),

		AuditEntriesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "audit",
			Name:      "entries_total",
			Help:      "Total audit log entries written.",
		}),

		AuditBufferDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "audit",
			Name:      "buffer_dropped_total",
			Help:      "Audit entries dropped due to full buffer. Alert if non-zero.",
		}),

		NotificationsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Notifications persisted by kind.",
		}, []string{"kind"}),

		NotificationBufferDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "notifications",
			Name:      "buffer_dropped_total",
			Help:      "Notifications dropped due to full buffer.",
		}),
	}
}

func MetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
