// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/Coolhgg/relife-gateway/internal/apikeys"
	"github.com/Coolhgg/relife-gateway/internal/audit"
)

// newTestTrail returns a running audit trail that drains into its
// buffer, stopped on test cleanup.
func newTestTrail(t *testing.T) *audit.Trail {
	t.Helper()
	trail := audit.NewTrail(audit.DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = trail.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("audit trail did not stop")
		}
	})
	return trail
}

// fakeKeyValidator scripts the key service for middleware tests.
type fakeKeyValidator struct {
	validation *apikeys.Validation
	err        error
	lastKey    string
	lastIP     string
	lastOrigin string
}

func (f *fakeKeyValidator) ValidateKey(ctx context.Context, rawKey string, requiredScopes []string, clientIP, origin string) (*apikeys.Validation, error) {
	f.lastKey = rawKey
	f.lastIP = clientIP
	f.lastOrigin = origin
	if f.err != nil {
		return nil, f.err
	}
	return f.validation, nil
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
	}
	return body
}

func newAuthMiddleware(t *testing.T, keys KeyValidator) (*Middleware, *audit.Trail) {
	t.Helper()
	trail := newTestTrail(t)
	return NewMiddleware(testJWTManager(t, time.Hour), keys, trail, NewTrustedProxies(nil)), trail
}

func TestAuthenticateNoAuthMethod(t *testing.T) {
	m, _ := newAuthMiddleware(t, &fakeKeyValidator{})

	handlerCalled := false
	handler := m.Authenticate(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest("GET", "/api/v1/ai-parameters/u1", nil))

	if handlerCalled {
		t.Error("handler ran without credentials")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	if body["code"] != "NO_AUTH_METHOD" {
		t.Errorf("code = %v, want NO_AUTH_METHOD", body["code"])
	}
	if body["success"] != false {
		t.Errorf("success = %v, want false", body["success"])
	}
}

func TestAuthenticateBearer(t *testing.T) {
	m, _ := newAuthMiddleware(t, &fakeKeyValidator{})
	jwtManager := testJWTManager(t, time.Hour)

	valid, err := jwtManager.GenerateToken("user-9", "", RoleUser, []string{"parameters:read"}, "session_1_a")
	if err != nil {
		t.Fatalf("GenerateToken error = %v", err)
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"valid token", "Bearer " + valid, http.StatusOK, ""},
		{"missing scheme", valid, http.StatusUnauthorized, "MISSING_TOKEN"},
		{"empty bearer", "Bearer ", http.StatusUnauthorized, "MISSING_TOKEN"},
		{"garbage token", "Bearer not.a.token", http.StatusUnauthorized, "INVALID_TOKEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotIdentity *Identity
			handler := m.Authenticate(func(w http.ResponseWriter, r *http.Request) {
				gotIdentity, _ = IdentityFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("GET", "/api/v1/ai-parameters/u1", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()
			handler(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantCode != "" {
				body := decodeEnvelope(t, rec)
				if body["code"] != tt.wantCode {
					t.Errorf("code = %v, want %v", body["code"], tt.wantCode)
				}
				return
			}
			if gotIdentity == nil || gotIdentity.Method != MethodJWT {
				t.Fatalf("identity = %+v, want JWT identity", gotIdentity)
			}
			if gotIdentity.User.ID != "user-9" {
				t.Errorf("user ID = %q, want user-9", gotIdentity.User.ID)
			}
		})
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	m, _ := newAuthMiddleware(t, &fakeKeyValidator{})

	// Issue a token that is already expired.
	short := testJWTManager(t, time.Millisecond)
	token, err := short.GenerateToken("user-9", "", RoleUser, nil, "")
	if err != nil {
		t.Fatalf("GenerateToken error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	handler := m.Authenticate(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler ran with expired token")
	})
	req := httptest.NewRequest("GET", "/api/v1/ai-parameters/u1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if body := decodeEnvelope(t, rec); body["code"] != "TOKEN_EXPIRED" {
		t.Errorf("code = %v, want TOKEN_EXPIRED", body["code"])
	}
}

func TestAuthenticateAPIKey(t *testing.T) {
	reset := time.Now().Add(30 * time.Second)
	fake := &fakeKeyValidator{validation: &apikeys.Validation{
		KeyID:              "0b39cbc2-1111-2222-3333-444455556666",
		Name:               "ci key",
		Scopes:             []string{"parameters:read"},
		RateLimitPerMinute: 100,
		Environment:        "test",
		Remaining:          99,
		Reset:              reset,
	}}
	m, _ := newAuthMiddleware(t, fake)

	var gotIdentity *Identity
	handler := m.Authenticate(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/v1/ai-parameters/u1", nil)
	req.Header.Set("X-API-Key", "rlk_test_somekeyvalue")
	req.Header.Set("Origin", "https://app.relife.example")
	req.RemoteAddr = "203.0.113.7:51000"
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if gotIdentity == nil || gotIdentity.Method != MethodAPIKey {
		t.Fatalf("identity = %+v, want API key identity", gotIdentity)
	}
	if gotIdentity.APIKey.ID != "0b39cbc2-1111-2222-3333-444455556666" {
		t.Errorf("key ID = %q, want validation key ID", gotIdentity.APIKey.ID)
	}
	if fake.lastIP != "203.0.113.7" {
		t.Errorf("validator saw IP %q, want 203.0.113.7", fake.lastIP)
	}
	if fake.lastOrigin != "https://app.relife.example" {
		t.Errorf("validator saw origin %q, want request origin", fake.lastOrigin)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "99" {
		t.Errorf("X-RateLimit-Remaining = %q, want 99", got)
	}
	if got := rec.Header().Get("X-RateLimit-Reset"); got == "" {
		t.Error("X-RateLimit-Reset header missing")
	}
}

func TestAuthenticateAPIKeyFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not recognized", apikeys.ErrKeyNotFound, http.StatusUnauthorized, "INVALID_API_KEY"},
		{"revoked", apikeys.ErrKeyRevoked, http.StatusUnauthorized, "INVALID_API_KEY"},
		{"bad format", apikeys.ErrInvalidFormat, http.StatusUnauthorized, "INVALID_API_KEY"},
		{"store down", apikeys.ErrUnavailable, http.StatusInternalServerError, "API_KEY_AUTH_FAILED"},
		{"key rate limited", apikeys.ErrKeyRateLimited, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newAuthMiddleware(t, &fakeKeyValidator{err: tt.err})
			handler := m.Authenticate(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler ran with rejected key")
			})

			req := httptest.NewRequest("GET", "/api/v1/ai-parameters/u1", nil)
			req.Header.Set("X-API-Key", "rlk_test_rejected")
			rec := httptest.NewRecorder()
			handler(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := decodeEnvelope(t, rec)
			if body["code"] != tt.wantCode {
				t.Errorf("code = %v, want %v", body["code"], tt.wantCode)
			}
			if tt.wantCode == "RATE_LIMIT_EXCEEDED" {
				if _, ok := body["retryAfter"]; !ok {
					t.Error("429 body missing retryAfter")
				}
			}
		})
	}
}

func TestAuthenticateEmptyAPIKeyHeader(t *testing.T) {
	m, _ := newAuthMiddleware(t, &fakeKeyValidator{})
	handler := m.Authenticate(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler ran with empty API key")
	})

	req := httptest.NewRequest("GET", "/api/v1/ai-parameters/u1", nil)
	req.Header.Set("X-API-Key", "")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if body := decodeEnvelope(t, rec); body["code"] != "MISSING_API_KEY" {
		t.Errorf("code = %v, want MISSING_API_KEY", body["code"])
	}
}

func TestAuthorizationHeaderWinsOverAPIKey(t *testing.T) {
	fake := &fakeKeyValidator{err: apikeys.ErrKeyNotFound}
	m, _ := newAuthMiddleware(t, fake)
	jwtManager := testJWTManager(t, time.Hour)
	token, err := jwtManager.GenerateToken("user-2", "", RoleUser, nil, "")
	if err != nil {
		t.Fatalf("GenerateToken error = %v", err)
	}

	var gotIdentity *Identity
	handler := m.Authenticate(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity, _ = IdentityFromContext(r.Context())
	})

	req := httptest.NewRequest("GET", "/api/v1/ai-parameters/u1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-API-Key", "rlk_test_shouldnotbeused")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if gotIdentity == nil || gotIdentity.Method != MethodJWT {
		t.Fatalf("identity = %+v, want JWT identity", gotIdentity)
	}
	if fake.lastKey != "" {
		t.Error("key validator was consulted despite Authorization header")
	}
}

func TestAuthenticateRecordsAudit(t *testing.T) {
	m, trail := newAuthMiddleware(t, &fakeKeyValidator{})
	handler := m.Authenticate(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest("GET", "/api/v1/ai-parameters/u1", nil))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries := trail.Recent(5)
		if len(entries) > 0 {
			if entries[0].Event != audit.EventAuthFailure {
				t.Errorf("event = %s, want %s", entries[0].Event, audit.EventAuthFailure)
			}
			if entries[0].ActorID != "unknown" {
				t.Errorf("actor = %s, want unknown", entries[0].ActorID)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("no audit entry recorded for rejected request")
}

func TestAuthenticateRecoversFromPanic(t *testing.T) {
	panicking := &fakeKeyValidator{}
	m, _ := newAuthMiddleware(t, panicking)

	handler := m.Authenticate(func(w http.ResponseWriter, r *http.Request) {
		panic("stage blew up")
	})

	req := httptest.NewRequest("GET", "/api/v1/ai-parameters/u1", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	if body["code"] != "INTERNAL_ERROR" {
		t.Errorf("code = %v, want INTERNAL_ERROR", body["code"])
	}
	if body["error"] != "Internal server error" {
		t.Errorf("error = %v, want opaque message", body["error"])
	}
}

func mustToken(t *testing.T) string {
	t.Helper()
	token, err := testJWTManager(t, time.Hour).GenerateToken("user-1", "", RoleUser, nil, "")
	if err != nil {
		t.Fatalf("GenerateToken error = %v", err)
	}
	return token
}
