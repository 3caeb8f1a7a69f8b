package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the studyletter service.
// Metrics are organized by subsystem: digest runs, summarization, email
// delivery, the scheduler, and the arXiv source API. All counters and
// histograms are registered via promauto for automatic registration with
// the default Prometheus registry.
type Metrics struct {
	// DigestsStarted counts digest pipeline runs initiated, labeled by trigger (adhoc, scheduled).
	DigestsStarted *prometheus.CounterVec

	// DigestsCompleted counts digest runs that ended with a delivered email, labeled by trigger.
	DigestsCompleted *prometheus.CounterVec

	// DigestsFailed counts digest runs that ended in a failed record, labeled by trigger.
	DigestsFailed *prometheus.CounterVec

	// DigestDuration observes end-to-end digest run duration in seconds.
	DigestDuration prometheus.Histogram

	// PapersPerDigest observes the number of papers included per delivered digest.
	PapersPerDigest prometheus.Histogram

	// SummarizeRequestsTotal counts summarizer API requests, labeled by model.
	SummarizeRequestsTotal *prometheus.CounterVec

	// SummarizeRequestsFailed counts failed summarizer requests, labeled by model and error type.
	SummarizeRequestsFailed *prometheus.CounterVec

	// SummarizeRequestDuration observes summarizer request duration in seconds, labeled by model.
	SummarizeRequestDuration *prometheus.HistogramVec

	// EmailsSent counts successfully delivered digest emails.
	EmailsSent prometheus.Counter

	// EmailsFailed counts digest emails whose delivery failed.
	EmailsFailed prometheus.Counter

	// SchedulerJobsRegistered gauges the current number of registered weekly jobs.
	SchedulerJobsRegistered prometheus.Gauge

	// SchedulerJobsFired counts weekly job firings.
	SchedulerJobsFired prometheus.Counter

	// SourceRequestsTotal counts HTTP requests to the arXiv API, labeled by endpoint.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed arXiv requests, labeled by endpoint and error type.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRequestDuration observes arXiv request duration in seconds, labeled by endpoint.
	SourceRequestDuration *prometheus.HistogramVec

	// SourceRateLimited counts rate-limited responses from the arXiv API.
	SourceRateLimited prometheus.Counter

	// HTTPRequestsTotal counts API requests, labeled by method, route pattern, and status.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration observes API request duration in seconds, labeled by method and route pattern.
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Digest runs
		DigestsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "digests_started_total",
			Help:      "Total number of digest runs started by trigger",
		}, []string{"trigger"}),
		DigestsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "digests_completed_total",
			Help:      "Total number of digest runs that delivered an email by trigger",
		}, []string{"trigger"}),
		DigestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "digests_failed_total",
			Help:      "Total number of digest runs that ended in failure by trigger",
		}, []string{"trigger"}),
		DigestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "digest_duration_seconds",
			Help:      "Duration of digest runs in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		PapersPerDigest: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "papers_per_digest",
			Help:      "Number of papers included per delivered digest",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		}),

		// Summarization
		SummarizeRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summarize_requests_total",
			Help:      "Total number of summarizer requests by model",
		}, []string{"model"}),
		SummarizeRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summarize_requests_failed_total",
			Help:      "Total number of failed summarizer requests by model",
		}, []string{"model", "error_type"}),
		SummarizeRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "summarize_request_duration_seconds",
			Help:      "Duration of summarizer requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"model"}),

		// Email delivery
		EmailsSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_sent_total",
			Help:      "Total number of digest emails delivered",
		}),
		EmailsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_failed_total",
			Help:      "Total number of digest emails that failed to deliver",
		}),

		// Scheduler
		SchedulerJobsRegistered: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_jobs_registered",
			Help:      "Current number of registered weekly jobs",
		}),
		SchedulerJobsFired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_jobs_fired_total",
			Help:      "Total number of weekly job firings",
		}),

		// arXiv source
		SourceRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of requests to the paper source API",
		}, []string{"endpoint"}),
		SourceRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Total number of failed requests to the paper source API",
		}, []string{"endpoint", "error_type"}),
		SourceRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of requests to the paper source API in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		SourceRateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_rate_limited_total",
			Help:      "Total number of rate limit responses from the paper source API",
		}),

		// HTTP API
		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP API requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP API requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
	}
}

// RecordHTTPRequest records a completed HTTP API request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, durationSeconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}

// RecordDigestStarted records that a digest run has started.
func (m *Metrics) RecordDigestStarted(trigger string) {
	m.DigestsStarted.WithLabelValues(trigger).Inc()
}

// RecordDigestCompleted records a digest run that delivered an email.
func (m *Metrics) RecordDigestCompleted(trigger string, paperCount int, durationSeconds float64) {
	m.DigestsCompleted.WithLabelValues(trigger).Inc()
	m.DigestDuration.Observe(durationSeconds)
	m.PapersPerDigest.Observe(float64(paperCount))
}

// RecordDigestFailed records a digest run that ended in failure.
func (m *Metrics) RecordDigestFailed(trigger string, durationSeconds float64) {
	m.DigestsFailed.WithLabelValues(trigger).Inc()
	m.DigestDuration.Observe(durationSeconds)
}

// RecordSummarizeRequest records a summarizer request.
func (m *Metrics) RecordSummarizeRequest(model string, durationSeconds float64) {
	m.SummarizeRequestsTotal.WithLabelValues(model).Inc()
	m.SummarizeRequestDuration.WithLabelValues(model).Observe(durationSeconds)
}

// RecordSummarizeRequestFailed records a failed summarizer request.
func (m *Metrics) RecordSummarizeRequestFailed(model, errorType string) {
	m.SummarizeRequestsFailed.WithLabelValues(model, errorType).Inc()
}

// RecordEmailSent records a delivered digest email.
func (m *Metrics) RecordEmailSent() {
	m.EmailsSent.Inc()
}

// RecordEmailFailed records a digest email that failed to deliver.
func (m *Metrics) RecordEmailFailed() {
	m.EmailsFailed.Inc()
}

// SetSchedulerJobs records the current number of registered weekly jobs.
func (m *Metrics) SetSchedulerJobs(count int) {
	m.SchedulerJobsRegistered.Set(float64(count))
}

// RecordSchedulerJobFired records a weekly job firing.
func (m *Metrics) RecordSchedulerJobFired() {
	m.SchedulerJobsFired.Inc()
}

// RecordSourceRequest records a request to the paper source API.
func (m *Metrics) RecordSourceRequest(endpoint string, durationSeconds float64) {
	m.SourceRequestsTotal.WithLabelValues(endpoint).Inc()
	m.SourceRequestDuration.WithLabelValues(endpoint).Observe(durationSeconds)
}

// RecordSourceRequestFailed records a failed request to the paper source API.
func (m *Metrics) RecordSourceRequestFailed(endpoint, errorType string) {
	m.SourceRequestsFailed.WithLabelValues(endpoint, errorType).Inc()
}

// RecordSourceRateLimited records a rate limit response from the paper source API.
func (m *Metrics) RecordSourceRateLimited() {
	m.SourceRateLimited.Inc()
}
