// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package authz

import (
	"net/http"
	"sort"

	"github.com/Coolhgg/relife-gateway/internal/audit"
	"github.com/Coolhgg/relife-gateway/internal/auth"
	"github.com/Coolhgg/relife-gateway/internal/logging"
	"github.com/Coolhgg/relife-gateway/internal/metrics"
	"github.com/Coolhgg/relife-gateway/internal/response"
)

// Middleware decides admit or deny for authenticated identities. Admins
// bypass the permission check entirely; everyone else must hold every
// required permission, either explicitly in their claims or scopes, or
// through their role in the policy.
type Middleware struct {
	enforcer *Enforcer
	trail    *audit.Trail
}

// NewMiddleware creates the authorization stage.
func NewMiddleware(enforcer *Enforcer, trail *audit.Trail) *Middleware {
	return &Middleware{
		enforcer: enforcer,
		trail:    trail,
	}
}

// Require returns a stage admitting identities that hold every listed
// permission. With no permissions listed, any authenticated identity
// passes. Runs after Authenticate; a request with no identity is
// rejected 401.
func (m *Middleware) Require(required ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			identity, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				response.Error(w, http.StatusUnauthorized, response.CodeNoAuthMethod, "Authentication required")
				return
			}

			if identity.IsAdmin() {
				metrics.RecordAuthzDecision(true)
				next(w, r)
				return
			}

			missing := identity.MissingGrants(required)
			if len(missing) > 0 {
				missing = m.roleFills(identity, missing)
			}
			if len(missing) == 0 {
				metrics.RecordAuthzDecision(true)
				next(w, r)
				return
			}

			available := m.effectiveGrants(identity)
			metrics.RecordAuthzDecision(false)
			m.trail.RecordAuthzFailure(r, identity.ActorID(), string(identity.Method), required, available)
			logging.Ctx(r.Context()).Warn().
				Str("actor", identity.ActorID()).
				Strs("required", required).
				Strs("missing", missing).
				Msg("Authorization denied")
			response.AuthzDenied(w, required, available)
		}
	}
}

// roleFills returns the permissions still missing after consulting the
// identity's role in the policy. API keys carry no role and come back
// unchanged.
func (m *Middleware) roleFills(identity *auth.Identity, missing []string) []string {
	role := identityRole(identity)
	if role == "" || m.enforcer == nil {
		return missing
	}

	subject := RoleSubject(role)
	still := missing[:0]
	for _, perm := range missing {
		granted, err := m.enforcer.RoleGrants(subject, perm)
		if err != nil {
			logging.Error().Err(err).Str("role", role).Str("permission", perm).
				Msg("Role grant check failed")
			still = append(still, perm)
			continue
		}
		if !granted {
			still = append(still, perm)
		}
	}
	return still
}

// effectiveGrants is the identity's explicit grants merged with its
// role's policy grants, sorted and deduplicated. This is the set shown
// in the 403 body and the audit entry.
func (m *Middleware) effectiveGrants(identity *auth.Identity) []string {
	merged := append([]string(nil), identity.Grants()...)

	if role := identityRole(identity); role != "" && m.enforcer != nil {
		roleGrants, err := m.enforcer.GrantsForRole(role)
		if err != nil {
			logging.Error().Err(err).Str("role", role).Msg("Role grant enumeration failed")
		} else {
			merged = append(merged, roleGrants...)
		}
	}

	sort.Strings(merged)
	deduped := merged[:0]
	for i, g := range merged {
		if i == 0 || merged[i-1] != g {
			deduped = append(deduped, g)
		}
	}
	return deduped
}

// identityRole returns the JWT role, empty for API keys.
func identityRole(identity *auth.Identity) string {
	if identity.Method == auth.MethodJWT && identity.User != nil {
		return identity.User.Role
	}
	return ""
}
