// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

// Package api assembles the gateway's HTTP surface on a chi router.
//
// Every route group composes the same protection pipeline from
// HandlerFunc-shaped stages, in a fixed order:
//
//	outer IP limiter -> security headers -> authenticate ->
//	class limiter -> authorize -> validate -> CSRF -> handler
//
// The outer limiter is IP-keyed (go-chi/httprate) and sits ahead of
// authentication as flood protection; its ceilings are above the class
// budgets so for any single caller the identity-keyed class limiters
// fire first. Authentication runs before the class limiters so the
// admin bypass_rate_limit exemption can see the resolved identity.
//
// Stages short-circuit by writing the standard error envelope and not
// calling next. Handlers receive an enriched request context: the
// resolved identity, the request ID, the CSP nonce, and for parameter
// updates the validated payload.
//
// Route groups:
//
//	/api/v1/auth           session endpoints (login, logout, me)
//	/api/v1/ai-parameters  the protected parameter surface
//	/api/v1/admin          key management and audit operations
//	/api/v1/health         component health (also /healthz)
//	/metrics               Prometheus exposition
//
// chi-native middleware (CORS, httprate) keeps its func(http.Handler)
// http.Handler shape; gateway stages keep their HandlerFunc shape and
// are bridged with the chiMiddleware adapter.
package api
