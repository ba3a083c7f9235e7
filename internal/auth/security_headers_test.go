// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSecurityHeaders(t *testing.T) {
	var ctxNonce string
	handler := SecurityHeaders(func(w http.ResponseWriter, r *http.Request) {
		ctxNonce, _ = CSPNonceFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest("GET", "/api/v1/ai-parameters/u1", nil))

	h := rec.Header()
	want := map[string]string{
		"X-Frame-Options":              "DENY",
		"X-Content-Type-Options":       "nosniff",
		"Referrer-Policy":              "strict-origin-when-cross-origin",
		"Cross-Origin-Opener-Policy":   "same-origin",
		"Cross-Origin-Embedder-Policy": "require-corp",
		"Cross-Origin-Resource-Policy": "same-origin",
		"Cache-Control":                "no-store, no-cache, must-revalidate, private",
		"Pragma":                       "no-cache",
	}
	for header, value := range want {
		if got := h.Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}

	csp := h.Get("Content-Security-Policy")
	if !strings.Contains(csp, "default-src 'self'") {
		t.Errorf("CSP = %q, want default-src 'self'", csp)
	}
	if !strings.Contains(csp, "frame-ancestors 'none'") {
		t.Errorf("CSP = %q, want frame-ancestors 'none'", csp)
	}
	if ctxNonce == "" {
		t.Fatal("no CSP nonce placed in request context")
	}
	if !strings.Contains(csp, "'nonce-"+ctxNonce+"'") {
		t.Errorf("CSP %q does not allow the context nonce %q", csp, ctxNonce)
	}

	policy := h.Get("Permissions-Policy")
	if got := strings.Count(policy, "=()"); got < 25 {
		t.Errorf("Permissions-Policy disables %d capabilities, want at least 25", got)
	}
}

func TestSecurityHeadersNonceVariesPerRequest(t *testing.T) {
	handler := SecurityHeaders(func(w http.ResponseWriter, r *http.Request) {})

	nonces := make(map[string]bool)
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest("GET", "/", nil))
		csp := rec.Header().Get("Content-Security-Policy")
		start := strings.Index(csp, "'nonce-")
		end := strings.Index(csp[start+7:], "'")
		nonces[csp[start+7:start+7+end]] = true
	}
	if len(nonces) != 10 {
		t.Errorf("got %d distinct nonces in 10 requests, want 10", len(nonces))
	}
}

func TestSecurityHeadersHSTSOnlyOverTLS(t *testing.T) {
	handler := SecurityHeaders(func(w http.ResponseWriter, r *http.Request) {})

	plain := httptest.NewRecorder()
	handler(plain, httptest.NewRequest("GET", "/", nil))
	if got := plain.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS = %q over plaintext, want unset", got)
	}

	forwarded := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	handler(forwarded, req)
	if got := forwarded.Header().Get("Strict-Transport-Security"); !strings.Contains(got, "max-age=31536000") {
		t.Errorf("HSTS = %q behind TLS proxy, want max-age=31536000", got)
	}
}

func TestSecurityHeadersCacheControlOnlyUnderAPI(t *testing.T) {
	handler := SecurityHeaders(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest("GET", "/healthz", nil))
	if got := rec.Header().Get("Cache-Control"); got != "" {
		t.Errorf("Cache-Control = %q outside /api/, want unset", got)
	}
}
