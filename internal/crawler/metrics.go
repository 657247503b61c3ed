package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CapturesTotal counts pages captured successfully, by mode.
	CapturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitepdf_captures_total",
		Help: "Pages captured successfully.",
	}, []string{"mode"})
	// CaptureErrorsTotal counts URLs abandoned after all attempts failed.
	CaptureErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitepdf_capture_errors_total",
		Help: "URLs whose capture failed.",
	})
	// SkippedTotal counts frontier entries rejected by the visit guard.
	SkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitepdf_frontier_skipped_total",
		Help: "Frontier entries skipped before capture, by reason.",
	}, []string{"reason"})
	// RateLimitHits counts 429 responses.
	RateLimitHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitepdf_rate_limit_hits_total",
		Help: "Captures answered with HTTP 429.",
	})
	// ForbiddenHits counts 403 responses.
	ForbiddenHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitepdf_forbidden_hits_total",
		Help: "Captures answered with HTTP 403.",
	})
)
