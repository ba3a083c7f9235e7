// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Coolhgg/relife-gateway/internal/apikeys"
	"github.com/Coolhgg/relife-gateway/internal/audit"
	"github.com/Coolhgg/relife-gateway/internal/logging"
	"github.com/Coolhgg/relife-gateway/internal/metrics"
	"github.com/Coolhgg/relife-gateway/internal/response"
)

// KeyValidator is the key-service surface the middleware depends on.
// *apikeys.Service satisfies it.
type KeyValidator interface {
	ValidateKey(ctx context.Context, rawKey string, requiredScopes []string, clientIP, origin string) (*apikeys.Validation, error)
}

// Middleware authenticates requests and attaches the resolved Identity
// to the request context.
type Middleware struct {
	jwt     *JWTManager
	keys    KeyValidator
	trail   *audit.Trail
	seclog  *logging.SecurityLogger
	proxies *TrustedProxies
}

// NewMiddleware wires the authentication stage. keys may be nil when no
// key service is configured; API-key requests then fail closed.
func NewMiddleware(jwtManager *JWTManager, keys KeyValidator, trail *audit.Trail, proxies *TrustedProxies) *Middleware {
	return &Middleware{
		jwt:     jwtManager,
		keys:    keys,
		trail:   trail,
		seclog:  logging.NewSecurityLogger(),
		proxies: proxies,
	}
}

// Authenticate resolves the request's credentials. The Authorization
// header wins when both it and X-API-Key are present; requests carrying
// neither are rejected with NO_AUTH_METHOD before any handler runs.
func (m *Middleware) Authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.Ctx(r.Context()).Error().
					Interface("panic", rec).
					Str("path", r.URL.Path).
					Msg("panic during authentication")
				m.trail.RecordAuthError(r, "unknown", errorFromPanic(rec))
				metrics.RecordAuthAttempt("unknown", "error")
				response.Internal(w)
			}
		}()

		authHeader := r.Header.Get("Authorization")
		apiKeyValues := r.Header.Values("X-API-Key")

		switch {
		case authHeader != "":
			m.handleBearer(w, r, next, authHeader)
		case len(apiKeyValues) > 0:
			m.handleAPIKey(w, r, next, strings.TrimSpace(apiKeyValues[0]))
		default:
			m.trail.RecordAuthFailure(r, "none", "no_auth_method")
			metrics.RecordAuthAttempt("none", "failure")
			response.Error(w, http.StatusUnauthorized, response.CodeNoAuthMethod,
				"Authentication required")
		}
	}
}

func errorFromPanic(rec interface{}) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return errors.New("panic during authentication")
}

func (m *Middleware) handleBearer(w http.ResponseWriter, r *http.Request, next http.HandlerFunc, authHeader string) {
	token, ok := extractBearerToken(authHeader)
	if !ok {
		m.trail.RecordAuthFailure(r, string(MethodJWT), "missing_token")
		metrics.RecordAuthAttempt(string(MethodJWT), "failure")
		response.Error(w, http.StatusUnauthorized, response.CodeMissingToken,
			"Authentication token required")
		return
	}

	claims, err := m.jwt.ValidateToken(token)
	if err != nil {
		code := response.CodeInvalidToken
		message := "Invalid authentication token"
		reason := "invalid_token"
		if errors.Is(err, ErrExpiredCredentials) {
			code = response.CodeTokenExpired
			message = "Authentication token expired"
			reason = "token_expired"
		}
		m.trail.RecordAuthFailure(r, string(MethodJWT), reason)
		metrics.RecordAuthAttempt(string(MethodJWT), "failure")
		response.Error(w, http.StatusUnauthorized, code, message)
		return
	}

	identity := &Identity{Method: MethodJWT, User: claims.Identity()}
	m.trail.RecordAuthSuccess(r, identity.ActorID(), string(MethodJWT), identity.SessionID())
	metrics.RecordAuthAttempt(string(MethodJWT), "success")

	ctx := WithIdentity(r.Context(), identity)
	ctx = withBearerToken(ctx, token)
	next(w, r.WithContext(ctx))
}

// extractBearerToken pulls the token out of an Authorization header.
// Anything other than a non-empty "Bearer <token>" is treated as a
// missing token.
func extractBearerToken(authHeader string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return "", false
	}
	token := strings.TrimSpace(authHeader[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

func (m *Middleware) handleAPIKey(w http.ResponseWriter, r *http.Request, next http.HandlerFunc, rawKey string) {
	clientIP := m.proxies.ClientIP(r)

	if rawKey == "" {
		m.trail.RecordAuthFailure(r, string(MethodAPIKey), "missing_api_key")
		metrics.RecordAuthAttempt(string(MethodAPIKey), "failure")
		response.Error(w, http.StatusUnauthorized, response.CodeMissingAPIKey,
			"API key required")
		return
	}
	if m.keys == nil {
		m.trail.RecordAuthError(r, string(MethodAPIKey), errors.New("no key service configured"))
		metrics.RecordAuthAttempt(string(MethodAPIKey), "error")
		response.Error(w, http.StatusInternalServerError, response.CodeAPIKeyAuthFailed,
			"API key validation failed")
		return
	}

	// Scope requirements are enforced later by the authorization
	// stage, so validation runs with an empty scope list.
	validation, err := m.keys.ValidateKey(r.Context(), rawKey, nil, clientIP, r.Header.Get("Origin"))
	if err != nil {
		m.rejectAPIKey(w, r, rawKey, clientIP, err)
		return
	}

	identity := &Identity{
		Method: MethodAPIKey,
		APIKey: &APIKeyIdentity{
			ID:                 validation.KeyID,
			Name:               validation.Name,
			Scopes:             validation.Scopes,
			RateLimitPerMinute: validation.RateLimitPerMinute,
			OwnerUserID:        validation.OwnerUserID,
			Environment:        validation.Environment,
		},
	}

	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(validation.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(validation.Reset.Unix(), 10))

	m.trail.RecordAuthSuccess(r, validation.KeyID, string(MethodAPIKey), "")
	metrics.RecordAuthAttempt(string(MethodAPIKey), "success")

	next(w, r.WithContext(WithIdentity(r.Context(), identity)))
}

// rejectAPIKey maps key-service sentinels to responses. Validation
// failures are deliberately collapsed into one client-visible answer;
// the precise reason goes to the audit trail and security log only.
func (m *Middleware) rejectAPIKey(w http.ResponseWriter, r *http.Request, rawKey, clientIP string, err error) {
	switch {
	case errors.Is(err, apikeys.ErrUnavailable):
		m.trail.RecordAuthError(r, string(MethodAPIKey), err)
		metrics.RecordAuthAttempt(string(MethodAPIKey), "error")
		response.Error(w, http.StatusInternalServerError, response.CodeAPIKeyAuthFailed,
			"API key validation failed")

	case errors.Is(err, apikeys.ErrKeyRateLimited):
		m.trail.RecordAuthFailure(r, string(MethodAPIKey), "key_rate_limited")
		metrics.RecordAuthAttempt(string(MethodAPIKey), "failure")
		w.Header().Set("Retry-After", "60")
		response.RateLimited(w, "API key rate limit exceeded", 60)

	default:
		reason := apiKeyRejectReason(err)
		m.seclog.LogKeyRejected(keyPrefixForLog(rawKey), clientIP, reason)
		m.trail.RecordAuthFailure(r, string(MethodAPIKey), reason)
		metrics.RecordAuthAttempt(string(MethodAPIKey), "failure")
		response.Error(w, http.StatusUnauthorized, response.CodeInvalidAPIKey,
			"Invalid API key")
	}
}

func apiKeyRejectReason(err error) string {
	switch {
	case errors.Is(err, apikeys.ErrInvalidFormat):
		return "invalid_format"
	case errors.Is(err, apikeys.ErrKeyRevoked):
		return "key_revoked"
	case errors.Is(err, apikeys.ErrKeyExpired):
		return "key_expired"
	case errors.Is(err, apikeys.ErrIPNotAllowed):
		return "ip_not_allowed"
	case errors.Is(err, apikeys.ErrOriginNotAllowed):
		return "origin_not_allowed"
	case errors.Is(err, apikeys.ErrScopeMissing):
		return "missing_scope"
	default:
		return "key_not_recognized"
	}
}

// keyPrefixForLog returns the display portion of a raw key for the
// security log. Never the full key.
func keyPrefixForLog(rawKey string) string {
	const max = 12
	if len(rawKey) <= max {
		return rawKey
	}
	return rawKey[:max]
}
