// Package metrics exposes Prometheus collectors for the sitepdf service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal                  *prometheus.CounterVec
	jobPagesTotal              *prometheus.CounterVec
	stageDurationSeconds       *prometheus.HistogramVec
	documentBytes              prometheus.Histogram
	summaryOutcomesTotal       *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitepdf_jobs_total",
				Help: "Total number of site jobs processed, labeled by status.",
			},
			[]string{"status"},
		)

		jobPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitepdf_job_pages_total",
				Help: "Pages seen by finished jobs, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		stageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitepdf_stage_duration_seconds",
				Help:    "Histogram of pipeline stage latencies, labeled by stage.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"stage"},
		)

		documentBytes = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sitepdf_document_bytes",
				Help:    "Size of merged documents in bytes.",
				Buckets: prometheus.ExponentialBuckets(64<<10, 4, 8),
			},
		)

		summaryOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitepdf_summary_outcomes_total",
				Help: "Summaries produced, labeled by kind (ok, degraded, failed).",
			},
			[]string{"kind"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitepdf_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	jobsTotal.WithLabelValues(status).Inc()
}

// ObservePages records captured and failed page counts for a finished job.
func ObservePages(site string, captured, failed int) {
	sanitized := SanitizeSite(site)
	if captured > 0 {
		jobPagesTotal.WithLabelValues(sanitized, "captured").Add(float64(captured))
	}
	if failed > 0 {
		jobPagesTotal.WithLabelValues(sanitized, "failed").Add(float64(failed))
	}
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, duration time.Duration) {
	stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveDocument records the size of a merged document.
func ObserveDocument(bytes int) {
	documentBytes.Observe(float64(bytes))
}

// ObserveSummary counts a summary outcome.
func ObserveSummary(kind string) {
	summaryOutcomesTotal.WithLabelValues(kind).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
