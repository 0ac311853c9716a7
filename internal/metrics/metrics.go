// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - Upstream media source calls (attempts, errors, retries, latency)
// - Per-source fetch pipeline (items processed/filtered, durations)
// - Response cache efficiency
// - Circuit breaker state
// - HTTP API latency and throughput

var (
	// Upstream Call Metrics
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total number of upstream API call attempts",
		},
		[]string{"source", "operation"},
	)

	UpstreamErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_errors_total",
			Help: "Total number of failed upstream API calls",
		},
		[]string{"source", "operation", "error_kind"}, // "auth", "rate_limit", "transient", "config", "validation"
	)

	UpstreamRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_retries_total",
			Help: "Total number of upstream call retries",
		},
		[]string{"source", "operation"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Duration of individual upstream API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source", "operation"},
	)

	// Fetch Pipeline Metrics
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetch_media_duration_seconds",
			Help:    "End-to-end duration of FetchMedia calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}, // Large catalogs can paginate for a while
		},
		[]string{"source"},
	)

	FetchItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_items_processed_total",
			Help: "Total number of raw upstream items fetched before filtering",
		},
		[]string{"source"},
	)

	FetchItemsFiltered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_items_filtered_total",
			Help: "Total number of items surviving the filter pipeline",
		},
		[]string{"source"},
	)

	FetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_errors_total",
			Help: "Total number of FetchMedia calls that failed",
		},
		[]string{"source"},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"source", "cache_type"}, // "pages", "genres", "providers", "libraries"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"source", "cache_type"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Total number of cache entries evicted by cleanup sweeps",
		},
		[]string{"source", "cache_type"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"source"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"source", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breakers",
		},
		[]string{"source", "result"}, // "success", "failure", "rejected"
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)
)

// RecordAPIRequest records a completed API request with its status and duration.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordUpstreamCall records one upstream call attempt and its outcome.
// errorKind is empty for successful calls.
func RecordUpstreamCall(source, operation, errorKind string, duration time.Duration) {
	UpstreamRequestsTotal.WithLabelValues(source, operation).Inc()
	UpstreamRequestDuration.WithLabelValues(source, operation).Observe(duration.Seconds())
	if errorKind != "" {
		UpstreamErrorsTotal.WithLabelValues(source, operation, errorKind).Inc()
	}
}
