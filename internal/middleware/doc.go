// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

/*
Package middleware provides infrastructure middleware that runs outside
the security pipeline: request ID tracking, Prometheus instrumentation,
and gzip compression. The security stages themselves live in
internal/auth, internal/authz, and internal/validation.

Key Components:

  - RequestID: UUID request tracking, honored from upstream proxies
  - PrometheusMetrics: request count, latency, and in-flight gauges
  - Compression: gzip for clients that accept it

Middleware Stack:

Every stage shares the same shape, func(http.HandlerFunc)
http.HandlerFunc, so stacks compose by nesting:

	handler := middleware.RequestID(
	    middleware.PrometheusMetrics(
	        middleware.Compression(
	            endpoint,
	        ),
	    ),
	)

RequestID runs outermost so every log line and audit entry downstream
carries the ID. PrometheusMetrics labels endpoints by chi route pattern
rather than raw path, keeping label cardinality bounded when paths
carry user or session IDs.

Usage Example - Request ID:

	http.HandleFunc("/api/v1/ai-parameters",
	    middleware.RequestID(handler),
	)

	func handler(w http.ResponseWriter, r *http.Request) {
	    logging.Ctx(r.Context()).Info().Msg("Processing")
	    // log line carries request_id; response carries X-Request-ID
	}

Thread Safety:

All middleware components are safe for concurrent use:
  - Compression pools gzip writers with sync.Pool
  - Request ID uses context.Context (immutable)
  - Prometheus metrics use atomic operations

See Also:

  - internal/auth: authentication, rate limiting, CSRF, headers
  - internal/api: route composition
  - internal/metrics: Prometheus metric definitions
*/
package middleware
