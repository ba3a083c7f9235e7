// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/Coolhgg/relife-gateway/internal/audit"
	"github.com/Coolhgg/relife-gateway/internal/logging"
	"github.com/Coolhgg/relife-gateway/internal/metrics"
	"github.com/Coolhgg/relife-gateway/internal/response"
)

// csrfTokenLength is the hex prefix length of the derived token.
const csrfTokenLength = 32

// DeriveCSRFToken computes the CSRF token for a session token: the
// first 32 hex characters of HMAC-SHA256 over the bearer token, keyed
// by the CSRF secret. Deterministic, so the login response and the
// verification here agree without server-side state.
func DeriveCSRFToken(secret, sessionToken string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sessionToken))
	return hex.EncodeToString(mac.Sum(nil))[:csrfTokenLength]
}

// CSRF verifies the X-CSRF-Token header on mutating bearer requests.
type CSRF struct {
	secret  string
	trail   *audit.Trail
	seclog  *logging.SecurityLogger
	proxies *TrustedProxies
}

// NewCSRF builds the CSRF stage with the effective secret (CSRF_SECRET
// falling back to JWT_SECRET per config).
func NewCSRF(secret string, trail *audit.Trail, proxies *TrustedProxies) *CSRF {
	return &CSRF{
		secret:  secret,
		trail:   trail,
		seclog:  logging.NewSecurityLogger(),
		proxies: proxies,
	}
}

// mutating reports whether the method changes state and therefore needs
// CSRF proof.
func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// Protect enforces CSRF on the wrapped handler. Only bearer-
// authenticated mutating requests are checked: API-key callers are not
// browsers and carry no ambient credentials a cross-site page could
// ride on.
func (c *CSRF) Protect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !mutating(r.Method) {
			next(w, r)
			return
		}
		identity, ok := IdentityFromContext(r.Context())
		if !ok || identity.Method != MethodJWT {
			next(w, r)
			return
		}
		sessionToken, ok := BearerTokenFromContext(r.Context())
		if !ok {
			next(w, r)
			return
		}

		presented := r.Header.Get("X-CSRF-Token")
		if presented == "" {
			c.reject(r, identity, "csrf_token_missing")
			metrics.RecordCSRFValidation("missing")
			response.Error(w, http.StatusForbidden, response.CodeMissingCSRFToken,
				"CSRF token required")
			return
		}

		expected := DeriveCSRFToken(c.secret, sessionToken)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
			c.reject(r, identity, "csrf_token_mismatch")
			metrics.RecordCSRFValidation("mismatch")
			response.Error(w, http.StatusForbidden, response.CodeInvalidCSRFToken,
				"Invalid CSRF token")
			return
		}

		metrics.RecordCSRFValidation("success")
		next(w, r)
	}
}

func (c *CSRF) reject(r *http.Request, identity *Identity, reason string) {
	ip := c.proxies.ClientIP(r)
	c.seclog.LogCSRFFailure(ip, r.UserAgent(), r.URL.Path)
	c.trail.RecordSecurityError(r, identity.ActorID(), reason, map[string]interface{}{
		"method": r.Method,
	})
}
