// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

// Package metrics defines the Prometheus instrumentation for Datagate:
// API latency and throughput, access-check outcomes, export progress,
// upstream calls and the circuit breaker state.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datagate_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datagate_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "datagate_api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)

	// Access Resolution Metrics
	AccessChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datagate_access_checks_total",
			Help: "Total number of access checks by resource kind and outcome",
		},
		[]string{"resource", "outcome"}, // resource: "dataset", "app"; outcome: "granted", "denied", "error"
	)

	// Export Metrics
	ExportWindowsEmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "datagate_export_windows_emitted_total",
			Help: "Total number of export time windows emitted",
		},
	)

	ExportWindowsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "datagate_export_windows_failed_total",
			Help: "Total number of export time windows that failed upstream",
		},
	)

	ExportsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "datagate_exports_started_total",
			Help: "Total number of TSV exports started",
		},
	)

	ExportsCanceled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "datagate_exports_canceled_total",
			Help: "Total number of TSV exports canceled by the client",
		},
	)

	// Upstream Time-Series Store Metrics
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datagate_upstream_request_duration_seconds",
			Help:    "Duration of upstream time-series store requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datagate_upstream_errors_total",
			Help: "Total number of upstream request errors by kind",
		},
		[]string{"operation", "kind"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "datagate_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datagate_circuit_breaker_requests_total",
			Help: "Total number of requests through the circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failed", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datagate_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Auth Metrics
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datagate_auth_attempts_total",
			Help: "Total number of token validations by outcome",
		},
		[]string{"outcome"}, // "success", "invalid", "rate_limited"
	)
)

// RecordAPIRequest records one completed API request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	code := strconv.Itoa(statusCode)
	APIRequestsTotal.WithLabelValues(method, endpoint, code).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint, code).Observe(duration.Seconds())
}

// RecordAccessCheck records the outcome of one access check.
func RecordAccessCheck(resource string, granted bool, err error) {
	outcome := "denied"
	switch {
	case err != nil:
		outcome = "error"
	case granted:
		outcome = "granted"
	}
	AccessChecks.WithLabelValues(resource, outcome).Inc()
}

// RecordUpstreamRequest records one upstream call.
func RecordUpstreamRequest(operation string, duration time.Duration, errKind string) {
	UpstreamRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if errKind != "" {
		UpstreamErrors.WithLabelValues(operation, errKind).Inc()
	}
}
