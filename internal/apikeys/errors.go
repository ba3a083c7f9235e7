// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package apikeys

import "errors"

// Validation failures. All of these map to a 401 INVALID_API_KEY at the
// HTTP layer except ErrKeyRateLimited (429) and ErrUnavailable (500).
var (
	// ErrInvalidFormat means the raw key does not parse as
	// rlk_<env>_<id>_<secret>.
	ErrInvalidFormat = errors.New("api key has invalid format")

	// ErrKeyNotFound means no record exists for the embedded key ID, or
	// the secret does not match the stored hash. The two cases are
	// deliberately indistinguishable to callers.
	ErrKeyNotFound = errors.New("api key not found")

	// ErrKeyRevoked means the key was administratively revoked.
	ErrKeyRevoked = errors.New("api key has been revoked")

	// ErrKeyExpired means the key's expiry has passed.
	ErrKeyExpired = errors.New("api key has expired")

	// ErrIPNotAllowed means the client IP is outside the key's
	// allowlist.
	ErrIPNotAllowed = errors.New("api key not valid from this IP")

	// ErrOriginNotAllowed means the Origin header is outside the key's
	// allowlist.
	ErrOriginNotAllowed = errors.New("api key not valid from this origin")

	// ErrScopeMissing means the key lacks a required scope.
	ErrScopeMissing = errors.New("api key missing required scope")

	// ErrKeyRateLimited means the key exceeded its per-minute limit.
	ErrKeyRateLimited = errors.New("api key rate limit exceeded")

	// ErrUnavailable means validation could not complete: the circuit
	// breaker is open or the store timed out. Fails closed.
	ErrUnavailable = errors.New("api key service unavailable")
)
