// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package auth

import (
	"context"
	"errors"
)

// Method names how a request was authenticated.
type Method string

const (
	MethodJWT    Method = "jwt"
	MethodAPIKey Method = "api_key"
)

// Roles carried in JWT claims.
const (
	RoleAdmin     = "admin"
	RoleUser      = "user"
	RoleDeveloper = "developer"
)

// PermissionBypassRateLimit lets an admin user skip the class rate
// limiters.
const PermissionBypassRateLimit = "bypass_rate_limit"

// Sentinel errors for credential verification.
var (
	ErrNoCredentials      = errors.New("no credentials presented")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrExpiredCredentials = errors.New("expired credentials")
)

// UserIdentity is the identity resolved from a verified bearer JWT.
type UserIdentity struct {
	ID          string
	Email       string
	Role        string
	Permissions []string
	SessionID   string
}

// APIKeyIdentity is the identity resolved from a validated API key.
type APIKeyIdentity struct {
	ID                 string
	Name               string
	Scopes             []string
	RateLimitPerMinute int
	OwnerUserID        string
	Environment        string
}

// Identity is the single authenticated principal for a request. Exactly
// one of User or APIKey is set, matching Method.
type Identity struct {
	Method Method
	User   *UserIdentity
	APIKey *APIKeyIdentity
}

// ActorID returns the stable identifier used for audit entries and
// rate-limit keys.
func (id *Identity) ActorID() string {
	if id == nil {
		return ""
	}
	switch id.Method {
	case MethodJWT:
		if id.User != nil {
			return id.User.ID
		}
	case MethodAPIKey:
		if id.APIKey != nil {
			return id.APIKey.ID
		}
	}
	return ""
}

// SessionID returns the JWT session identifier, empty for API keys.
func (id *Identity) SessionID() string {
	if id == nil {
		return ""
	}
	if id.Method == MethodJWT && id.User != nil {
		return id.User.SessionID
	}
	return ""
}

// Grants returns the permission set for users or the scope set for API
// keys. The returned slice is the identity's own; callers must not
// mutate it.
func (id *Identity) Grants() []string {
	if id == nil {
		return nil
	}
	switch id.Method {
	case MethodJWT:
		if id.User != nil {
			return id.User.Permissions
		}
	case MethodAPIKey:
		if id.APIKey != nil {
			return id.APIKey.Scopes
		}
	}
	return nil
}

// IsAdmin reports whether the identity is a user with the admin role.
// API keys are never admin regardless of scopes.
func (id *Identity) IsAdmin() bool {
	return id != nil && id.Method == MethodJWT && id.User != nil && id.User.Role == RoleAdmin
}

// HasGrant reports whether the identity holds one permission or scope.
func (id *Identity) HasGrant(grant string) bool {
	for _, g := range id.Grants() {
		if g == grant {
			return true
		}
	}
	return false
}

// MissingGrants returns the required grants the identity does not hold.
// Empty means required is a subset of the held set.
func (id *Identity) MissingGrants(required []string) []string {
	var missing []string
	for _, want := range required {
		if !id.HasGrant(want) {
			missing = append(missing, want)
		}
	}
	return missing
}

type contextKey string

const (
	identityContextKey    contextKey = "auth_identity"
	bearerTokenContextKey contextKey = "auth_bearer_token"
	cspNonceContextKey    contextKey = "csp_nonce"
)

// WithIdentity returns a context carrying the authenticated identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	return id, ok && id != nil
}

// withBearerToken stashes the raw bearer token for the CSRF stage.
func withBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerTokenContextKey, token)
}

// BearerTokenFromContext returns the raw bearer token a JWT identity
// was resolved from.
func BearerTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(bearerTokenContextKey).(string)
	return token, ok && token != ""
}

// WithCSPNonce returns a context carrying the per-request CSP nonce.
func WithCSPNonce(ctx context.Context, nonce string) context.Context {
	return context.WithValue(ctx, cspNonceContextKey, nonce)
}

// CSPNonceFromContext returns the nonce SecurityHeaders generated for
// this request, for handlers that render inline scripts or styles.
func CSPNonceFromContext(ctx context.Context) (string, bool) {
	nonce, ok := ctx.Value(cspNonceContextKey).(string)
	return nonce, ok && nonce != ""
}
