// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

// Package apikeys implements the gateway's API key service: issuance,
// validation, revocation and usage accounting for machine callers.
//
// # Key Format
//
// Keys are issued as
//
//	rlk_<env>_<id>_<secret>
//
// where env is "live" or "test", id is the base64url-encoded key UUID
// (fixed 22 characters) and secret is 32 random bytes, base64url. Only
// a display prefix and a hash survive issuance: the secret is run
// through HMAC-SHA256 keyed with the API_KEY_SECRET pepper, then
// bcrypt, before storage, and shown to the caller exactly once.
//
// # Validation
//
// ValidateKey parses the raw key, loads the record by its embedded ID,
// verifies the secret against the stored hash and enforces revocation,
// expiry, IP and origin allowlists, scope requirements and the per-key
// per-minute rate limit. Every lookup runs inside a circuit breaker
// with a bounded timeout; an open breaker or a slow store fails closed
// with ErrUnavailable rather than admitting traffic unchecked.
//
// Last-used timestamps and usage-log records are written by
// fire-and-forget goroutines with their own timeouts so accounting
// never adds latency to the request path.
//
// # Storage
//
// The Store interface has two implementations: a BadgerDB-backed store
// for production (prefix-scanned records, JSON values, TTL'd usage
// entries) and an in-memory store for tests and ephemeral deployments.
package apikeys
