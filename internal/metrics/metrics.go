// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// appStart anchors the uptime gauge to process initialization.
var appStart = time.Now()

// Prometheus Metrics Integration for Production Observability
// This package provides comprehensive instrumentation for:
// - API endpoint latency and throughput
// - Authentication outcomes per credential method
// - Rate limiter rejections per request class
// - Authorization decisions and cache efficiency
// - API key lifecycle and validation
// - Audit trail volume, drops, and evictions

var (
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
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}, // Optimized for API latency
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Authentication Metrics
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		// method: "password", "jwt", "api_key", "none", "unknown"
		// result: "success", "failure", "error"
		[]string{"method", "result"},
	)

	// Rate Limit Metrics
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Total number of requests rejected by a rate limit class",
		},
		[]string{"class"}, // "ip", "general", "auth", "parameter_updates", "critical"
	)

	RateLimitBypasses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_bypasses_total",
			Help: "Total number of requests exempted via the admin bypass permission",
		},
	)

	RateLimitTrackedKeys = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rate_limit_tracked_keys",
			Help: "Current number of client keys tracked per rate limit class",
		},
		[]string{"class"},
	)

	// Authorization Metrics
	AuthzDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Total number of authorization decisions",
		},
		[]string{"result"}, // "allowed", "denied"
	)

	AuthzCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authz_cache_hits_total",
			Help: "Total number of authorization decision cache hits",
		},
	)

	AuthzCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authz_cache_misses_total",
			Help: "Total number of authorization decision cache misses",
		},
	)

	// API Key Metrics
	KeyOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_key_operations_total",
			Help: "Total number of API key management operations",
		},
		[]string{"operation", "success"}, // operation: "create", "revoke", "delete"
	)

	KeyValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_key_validations_total",
			Help: "Total number of API key validation attempts",
		},
		// "success", "invalid_format", "wrong_environment", "not_found",
		// "unavailable", "revoked", "expired", "secret_mismatch",
		// "ip_not_allowed", "origin_not_allowed", "missing_scope", "rate_limited"
		[]string{"result"},
	)

	KeyValidationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "api_key_validation_duration_seconds",
			Help:    "Duration of API key validation including hash comparison",
			Buckets: prometheus.DefBuckets,
		},
	)

	ActiveKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_keys_active",
			Help: "Current number of active (non-revoked, non-expired) API keys",
		},
	)

	// CSRF Metrics
	CSRFValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csrf_validations_total",
			Help: "Total number of CSRF token validations",
		},
		[]string{"result"}, // "success", "missing", "mismatch"
	)

	// Request Validation Metrics
	ValidationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_failures_total",
			Help: "Total number of request payload validation failures",
		},
		[]string{"reason"}, // "parameter_update", "path_param"
	)

	// Audit Trail Metrics
	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_total",
			Help: "Total number of audit events recorded",
		},
		[]string{"event_type"},
	)

	AuditQueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_queue_dropped_total",
			Help: "Total number of audit events dropped because the async queue was full",
		},
	)

	AuditEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_evictions_total",
			Help: "Total number of audit entries discarded by buffer overflow eviction",
		},
	)

	AuditStoreEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audit_store_entries",
			Help: "Current number of entries in the audit trail buffer",
		},
	)

	// NATS Forwarding Metrics
	NATSMessagesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_published_total",
			Help: "Total number of audit events published to NATS",
		},
	)

	NATSPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_publish_errors_total",
			Help: "Total number of failed NATS publish attempts",
		},
	)

	NATSBatchFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nats_batch_flush_duration_seconds",
			Help:    "Duration of batch flush operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	NATSBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nats_batch_size",
			Help:    "Number of events in each batch flush",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	NATSOutboxDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nats_outbox_depth",
			Help: "Current number of audit events waiting in the forwarding outbox",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
		func() float64 { return time.Since(appStart).Seconds() },
	)
)

// SetAppInfo publishes the running version and Go runtime. Called once
// at startup.
func SetAppInfo(version string) {
	AppInfo.WithLabelValues(version, runtime.Version()).Set(1)
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordAuthAttempt records an authentication attempt and its outcome
func RecordAuthAttempt(method, result string) {
	AuthAttemptsTotal.WithLabelValues(method, result).Inc()
}

// RecordRateLimitRejection records a request rejected by a rate limit class
func RecordRateLimitRejection(class string) {
	RateLimitRejections.WithLabelValues(class).Inc()
}

// RecordRateLimitBypass records an admin request exempted from rate limiting
func RecordRateLimitBypass() {
	RateLimitBypasses.Inc()
}

// SetRateLimitTrackedKeys updates the tracked-key gauge for a class
func SetRateLimitTrackedKeys(class string, count int) {
	RateLimitTrackedKeys.WithLabelValues(class).Set(float64(count))
}

// RecordAuthzDecision records an authorization decision
func RecordAuthzDecision(allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	AuthzDecisionsTotal.WithLabelValues(result).Inc()
}

// RecordAuthzCacheLookup records an authorization cache lookup result
func RecordAuthzCacheLookup(hit bool) {
	if hit {
		AuthzCacheHits.Inc()
	} else {
		AuthzCacheMisses.Inc()
	}
}

// RecordKeyOperation records an API key management operation
func RecordKeyOperation(operation string, success bool) {
	successStr := "true"
	if !success {
		successStr = "false"
	}
	KeyOperationsTotal.WithLabelValues(operation, successStr).Inc()
}

// RecordKeyValidation records an API key validation attempt and its duration
func RecordKeyValidation(result string, duration time.Duration) {
	KeyValidationsTotal.WithLabelValues(result).Inc()
	KeyValidationDuration.Observe(duration.Seconds())
}

// SetActiveKeys sets the current count of active API keys
func SetActiveKeys(count int64) {
	ActiveKeys.Set(float64(count))
}

// RecordCSRFValidation records a CSRF token validation result
func RecordCSRFValidation(result string) {
	CSRFValidationsTotal.WithLabelValues(result).Inc()
}

// RecordValidationFailure records a request payload validation failure
func RecordValidationFailure(reason string) {
	ValidationFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordAuditEvent records an audit event by type
func RecordAuditEvent(eventType string) {
	AuditEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordAuditDrop records an audit event dropped at the async queue
func RecordAuditDrop() {
	AuditQueueDropped.Inc()
}

// RecordAuditEviction records entries discarded by buffer overflow eviction
func RecordAuditEviction(discarded int) {
	AuditEvictionsTotal.Add(float64(discarded))
}

// SetAuditStoreEntries updates the audit buffer size gauge
func SetAuditStoreEntries(count int) {
	AuditStoreEntries.Set(float64(count))
}

// RecordNATSFlush records a batch flush to NATS and its outcome
func RecordNATSFlush(batchSize int, duration time.Duration, err error) {
	NATSBatchFlushDuration.Observe(duration.Seconds())
	NATSBatchSize.Observe(float64(batchSize))
	if err != nil {
		NATSPublishErrors.Inc()
		return
	}
	NATSMessagesPublished.Add(float64(batchSize))
}

// UpdateNATSOutboxDepth updates the forwarding outbox depth gauge
func UpdateNATSOutboxDepth(depth int) {
	NATSOutboxDepth.Set(float64(depth))
}

// RecordBreakerTransition records a circuit breaker state transition
func RecordBreakerTransition(name, fromState, toState string) {
	CircuitBreakerTransitions.WithLabelValues(name, fromState, toState).Inc()
}

// SetBreakerState updates the circuit breaker state gauge
// (0=closed, 1=half-open, 2=open)
func SetBreakerState(name string, state float64) {
	CircuitBreakerState.WithLabelValues(name).Set(state)
}

// RecordBreakerRequest records a request passing through a circuit breaker
func RecordBreakerRequest(name, result string) {
	CircuitBreakerRequests.WithLabelValues(name, result).Inc()
}
