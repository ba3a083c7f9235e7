// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package auth

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
)

const testCSRFSecret = "csrf-secret-key-at-least-32-bytes!"

func TestDeriveCSRFToken(t *testing.T) {
	token := DeriveCSRFToken(testCSRFSecret, "session-token-value")

	if len(token) != 32 {
		t.Errorf("token length = %d, want 32", len(token))
	}
	if !regexp.MustCompile(`^[0-9a-f]{32}$`).MatchString(token) {
		t.Errorf("token = %q, want lowercase hex", token)
	}

	// Deterministic: same inputs, same token.
	if again := DeriveCSRFToken(testCSRFSecret, "session-token-value"); again != token {
		t.Errorf("derivation not deterministic: %q != %q", again, token)
	}
	// Different session token or secret changes the result.
	if other := DeriveCSRFToken(testCSRFSecret, "different-session"); other == token {
		t.Error("different session token produced the same CSRF token")
	}
	if other := DeriveCSRFToken("another-secret-also-32-bytes-long!!", "session-token-value"); other == token {
		t.Error("different secret produced the same CSRF token")
	}
}

func csrfRequest(method, csrfHeader string, identity *Identity, bearer string) *http.Request {
	req := httptest.NewRequest(method, "/api/v1/ai-parameters", nil)
	ctx := req.Context()
	if identity != nil {
		ctx = WithIdentity(ctx, identity)
	}
	if bearer != "" {
		ctx = withBearerToken(ctx, bearer)
	}
	if csrfHeader != "" {
		req.Header.Set("X-CSRF-Token", csrfHeader)
	}
	return req.WithContext(ctx)
}

func TestCSRFProtect(t *testing.T) {
	trail := newTestTrail(t)
	c := NewCSRF(testCSRFSecret, trail, NewTrustedProxies(nil))

	bearer := "some.jwt.token"
	valid := DeriveCSRFToken(testCSRFSecret, bearer)
	user := &Identity{Method: MethodJWT, User: &UserIdentity{ID: "user-1", Role: RoleUser}}
	apiKey := &Identity{Method: MethodAPIKey, APIKey: &APIKeyIdentity{ID: "key-1"}}

	tests := []struct {
		name       string
		method     string
		header     string
		identity   *Identity
		bearer     string
		wantStatus int
		wantCode   string
	}{
		{"GET exempt", "GET", "", user, bearer, http.StatusOK, ""},
		{"HEAD exempt", "HEAD", "", user, bearer, http.StatusOK, ""},
		{"api key exempt", "PUT", "", apiKey, "", http.StatusOK, ""},
		{"unauthenticated passes through", "POST", "", nil, "", http.StatusOK, ""},
		{"missing token", "PUT", "", user, bearer, http.StatusForbidden, "MISSING_CSRF_TOKEN"},
		{"wrong token", "PUT", "00000000000000000000000000000000", user, bearer, http.StatusForbidden, "INVALID_CSRF_TOKEN"},
		{"token for other session", "PUT", DeriveCSRFToken(testCSRFSecret, "other.jwt"), user, bearer, http.StatusForbidden, "INVALID_CSRF_TOKEN"},
		{"valid token", "PUT", valid, user, bearer, http.StatusOK, ""},
		{"valid token delete", "DELETE", valid, user, bearer, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := c.Protect(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})

			rec := httptest.NewRecorder()
			handler(rec, csrfRequest(tt.method, tt.header, tt.identity, tt.bearer))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantCode != "" {
				if called {
					t.Error("handler ran despite CSRF rejection")
				}
				body := decodeEnvelope(t, rec)
				if body["code"] != tt.wantCode {
					t.Errorf("code = %v, want %v", body["code"], tt.wantCode)
				}
			} else if !called {
				t.Error("handler did not run")
			}
		})
	}
}
