// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

/*
Package metrics provides Prometheus metrics collection and export for observability.

This package implements application instrumentation using the Prometheus
client library, exposing metrics for monitoring the security pipeline,
errors, and system health.

# Overview

The package provides metrics for:
  - API request latency and throughput
  - Authentication outcomes per credential method (JWT, API key)
  - Rate limiter rejections per request class and admin bypasses
  - Authorization decisions and decision-cache efficiency
  - API key lifecycle operations and validation results
  - CSRF and payload validation failures
  - Audit trail volume, queue drops, and overflow evictions
  - NATS audit forwarding and circuit breaker state

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:8090/metrics

# Available Metrics

API Metrics:
  - api_requests_total: Total API requests (counter)
    Labels: method, endpoint, status_code
  - api_request_duration_seconds: Request latency (histogram)
    Labels: method, endpoint
  - api_active_requests: Active requests (gauge)

Authentication Metrics:
  - auth_attempts_total: Authentication attempts (counter)
    Labels: method (password, jwt, api_key, none), result (success, failure, error)

Rate Limit Metrics:
  - rate_limit_rejections_total: Requests rejected per class (counter)
    Labels: class (ip, general, auth, parameter_updates, critical)
  - rate_limit_bypasses_total: Admin bypass exemptions (counter)
  - rate_limit_tracked_keys: Client keys tracked per class (gauge)

Authorization Metrics:
  - authz_decisions_total: Authorization decisions (counter)
    Labels: result (allowed, denied)
  - authz_cache_hits_total / authz_cache_misses_total: Decision cache efficiency

API Key Metrics:
  - api_key_operations_total: Key management operations (counter)
    Labels: operation (create, revoke, delete), success
  - api_key_validations_total: Key validation attempts (counter)
    Labels: result (success, invalid_format, not_found, unavailable, revoked,
    expired, secret_mismatch, missing_scope, rate_limited, ...)
  - api_key_validation_duration_seconds: Validation latency incl. hashing (histogram)
  - api_keys_active: Active keys (gauge)

Audit Metrics:
  - audit_events_total: Audit events recorded (counter)
    Labels: event_type
  - audit_queue_dropped_total: Events dropped at the async queue (counter)
  - audit_evictions_total: Entries discarded by overflow eviction (counter)
  - audit_store_entries: Current buffer size (gauge)

NATS Forwarding Metrics:
  - nats_messages_published_total / nats_publish_errors_total: Publish outcomes
  - nats_batch_flush_duration_seconds, nats_batch_size: Flush behavior (histograms)
  - nats_outbox_depth: Events waiting in the forwarding outbox (gauge)

Circuit Breaker Metrics:
  - circuit_breaker_state: Current state (gauge)
    Labels: name
    Values: 0=closed, 1=half-open, 2=open
  - circuit_breaker_requests_total: Requests through breaker (counter)
    Labels: name, result (success, rejected, failure)
  - circuit_breaker_state_transitions_total: State transitions (counter)
    Labels: name, from_state, to_state

System Metrics:
  - app_info: Version and Go runtime of the running binary (gauge)
  - app_uptime_seconds: Time since process start (gauge)

# Usage Example

Basic setup in main.go:

	import (
	    "github.com/Coolhgg/relife-gateway/internal/metrics"
	    "github.com/prometheus/client_golang/prometheus/promhttp"
	)

	func main() {
	    // Register metrics endpoint
	    http.Handle("/metrics", promhttp.Handler())

	    // Record metrics
	    metrics.RecordAPIRequest("PUT", "/api/ai-parameters", "200", 23*time.Millisecond)
	    metrics.RecordAuthAttempt("api_key", "success")
	    metrics.RecordRateLimitRejection("critical")
	}

# Prometheus Configuration

Example prometheus.yml configuration:

	scrape_configs:
	  - job_name: 'relife-gateway'
	    static_configs:
	      - targets: ['localhost:8090']
	    metrics_path: '/metrics'
	    scrape_interval: 15s

Example PromQL queries:

	# Request rate
	rate(api_requests_total[5m])

	# p95 latency
	histogram_quantile(0.95, rate(api_request_duration_seconds_bucket[5m]))

	# Authentication failure rate
	sum(rate(auth_attempts_total{result!="success"}[5m]))
	/
	sum(rate(auth_attempts_total[5m]))

	# Rate limit pressure per class
	rate(rate_limit_rejections_total[5m])

	# Authorization cache hit rate
	sum(rate(authz_cache_hits_total[5m])) / (sum(rate(authz_cache_hits_total[5m])) + sum(rate(authz_cache_misses_total[5m])))

# Thread Safety

All metric recording functions are thread-safe and designed for concurrent use
from multiple goroutines. The Prometheus client library handles synchronization
internally.

# Cardinality Management

To prevent high cardinality issues:

  - Endpoint labels use route patterns, never raw paths with IDs
  - Validation and auth results are limited to predefined constants
  - User and key identifiers are never used as label values

# Alerting Rules

Example Prometheus alerting rules:

	groups:
	  - name: relife-gateway
	    rules:
	      - alert: HighAuthFailureRate
	        expr: |
	          sum(rate(auth_attempts_total{result!="success"}[5m]))
	          /
	          sum(rate(auth_attempts_total[5m]))
	          > 0.25
	        for: 5m
	        annotations:
	          summary: "High authentication failure rate: {{ $value }}%"

	      - alert: AuditQueueDropping
	        expr: rate(audit_queue_dropped_total[5m]) > 0
	        for: 2m
	        annotations:
	          summary: "Audit events are being dropped"

	      - alert: CircuitBreakerOpen
	        expr: circuit_breaker_state > 1
	        for: 2m
	        annotations:
	          summary: "Circuit breaker open for {{ $labels.name }}"

# See Also

  - internal/middleware: HTTP middleware with metrics integration
  - internal/audit: Audit trail metrics recording
  - internal/apikeys: Key validation metrics recording
  - https://prometheus.io/docs/practices/naming/: Metric naming conventions
  - https://prometheus.io/docs/practices/instrumentation/: Instrumentation guide
*/
package metrics
