package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scanner metrics.
var (
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hvac_scans_total",
		Help: "Vision model scans by operation and outcome.",
	}, []string{"operation", "outcome"})

	ParseFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hvac_parse_failures_total",
		Help: "Model responses with no recoverable JSON object.",
	}, []string{"operation"})

	ScanConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hvac_label_scan_confidence",
		Help:    "Overall confidence of normalized label scans.",
		Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	})

	VisionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hvac_vision_request_duration_seconds",
		Help:    "Latency of vision model calls including retries.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"operation"})

	VisionCostUSD = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hvac_vision_cost_usd_total",
		Help: "Estimated vision model spend in USD.",
	}, []string{"model", "operation"})

	DuplicateScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hvac_duplicate_scans_total",
		Help: "Scans served from the duplicate-submission cache.",
	}, []string{"operation"})

	ReportsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hvac_reports_processed_total",
		Help: "Inspection reports processed by final status.",
	}, []string{"status"})
)

// HTTP metrics.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hvac_http_requests_total",
		Help: "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hvac_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
)

// Breaker state gauge: 0 closed, 1 open, 2 half-open.
var BreakerState = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "hvac_vision_breaker_state",
	Help: "Vision model circuit breaker state (0 closed, 1 open, 2 half-open).",
})
