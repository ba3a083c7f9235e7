// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/Coolhgg/relife-gateway/internal/audit"
	"github.com/Coolhgg/relife-gateway/internal/config"
	"github.com/Coolhgg/relife-gateway/internal/logging"
	"github.com/Coolhgg/relife-gateway/internal/metrics"
	"github.com/Coolhgg/relife-gateway/internal/response"
)

// Handlers serves the session endpoints: login, logout, and identity
// introspection.
type Handlers struct {
	jwt        *JWTManager
	csrfSecret string
	trail      *audit.Trail
	seclog     *logging.SecurityLogger
	proxies    *TrustedProxies

	adminUsername     string
	adminPasswordHash []byte
}

// NewHandlers wires the session endpoints. The admin password is
// bcrypt-hashed once at startup so login requests only pay for a
// compare. When no admin credentials are configured, login always
// rejects.
func NewHandlers(cfg *config.SecurityConfig, jwtManager *JWTManager, trail *audit.Trail, proxies *TrustedProxies) (*Handlers, error) {
	h := &Handlers{
		jwt:        jwtManager,
		csrfSecret: cfg.EffectiveCSRFSecret(),
		trail:      trail,
		seclog:     logging.NewSecurityLogger(),
		proxies:    proxies,
	}

	if cfg.AdminUsername != "" && cfg.AdminPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), 12)
		if err != nil {
			return nil, fmt.Errorf("failed to hash admin password: %w", err)
		}
		h.adminUsername = cfg.AdminUsername
		h.adminPasswordHash = hash
	} else {
		logging.Warn().Msg("no admin credentials configured, password login disabled")
	}

	return h, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login checks the configured admin credentials and issues a bearer
// token plus its derived CSRF token.
// POST /api/v1/auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.CodeBadRequest,
			"Invalid request body")
		return
	}

	ip := h.proxies.ClientIP(r)
	if !h.checkCredentials(req.Username, req.Password) {
		h.seclog.LogLoginFailure("password", ip, r.UserAgent(), "invalid_credentials")
		h.trail.RecordAuthFailure(r, "password", "invalid_credentials")
		metrics.RecordAuthAttempt("password", "failure")
		response.Error(w, http.StatusUnauthorized, response.CodeInvalidCredentials,
			"Invalid username or password")
		return
	}

	sessionID, err := newSessionID()
	if err != nil {
		logging.CtxErr(r.Context(), err).Msg("session ID generation failed")
		response.Internal(w)
		return
	}
	permissions := []string{PermissionBypassRateLimit}
	token, err := h.jwt.GenerateToken(req.Username, "", RoleAdmin, permissions, sessionID)
	if err != nil {
		logging.CtxErr(r.Context(), err).Msg("token issuance failed")
		response.Internal(w)
		return
	}

	h.seclog.LogLoginSuccess(req.Username, "password", ip, r.UserAgent())
	h.trail.RecordAuthSuccess(r, req.Username, "password", sessionID)
	metrics.RecordAuthAttempt("password", "success")

	response.Success(w, map[string]interface{}{
		"token":     token,
		"csrfToken": DeriveCSRFToken(h.csrfSecret, token),
		"expiresIn": int(h.jwt.SessionTimeout().Seconds()),
		"user": map[string]interface{}{
			"id":          req.Username,
			"role":        RoleAdmin,
			"permissions": permissions,
		},
	})
}

// checkCredentials compares both fields in constant time.
func (h *Handlers) checkCredentials(username, password string) bool {
	if len(h.adminPasswordHash) == 0 {
		return false
	}
	usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(h.adminUsername)) == 1
	passwordMatch := bcrypt.CompareHashAndPassword(h.adminPasswordHash, []byte(password)) == nil
	return usernameMatch && passwordMatch
}

// sessionIDAlphabet keeps generated IDs within the sessionId path
// grammar.
const sessionIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newSessionID generates "session_<unix-millis>_<9 random alnum>".
func newSessionID() (string, error) {
	buf := make([]byte, 9)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session ID: %w", err)
	}
	for i, b := range buf {
		buf[i] = sessionIDAlphabet[int(b)%len(sessionIDAlphabet)]
	}
	return fmt.Sprintf("session_%d_%s", time.Now().UnixMilli(), string(buf)), nil
}

// Logout ends the client session. Tokens are stateless, so the
// effective action is telling the browser to forget everything it
// stored for this origin.
// POST /api/v1/auth/logout
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if identity, ok := IdentityFromContext(r.Context()); ok && identity.Method == MethodJWT {
		h.seclog.LogLogout(identity.ActorID(), identity.SessionID(), h.proxies.ClientIP(r))
	}

	w.Header().Set("Clear-Site-Data", `"cache", "cookies", "storage"`)
	response.Success(w, map[string]string{
		"message": "Logged out successfully",
	})
}

// Me returns the authenticated identity.
// GET /api/v1/auth/me
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, response.CodeNoAuthMethod,
			"Authentication required")
		return
	}

	switch identity.Method {
	case MethodAPIKey:
		key := identity.APIKey
		response.Success(w, map[string]interface{}{
			"method":      string(MethodAPIKey),
			"keyId":       key.ID,
			"name":        key.Name,
			"scopes":      key.Scopes,
			"environment": key.Environment,
		})
	default:
		user := identity.User
		body := map[string]interface{}{
			"method":      string(MethodJWT),
			"id":          user.ID,
			"role":        user.Role,
			"permissions": user.Permissions,
			"sessionId":   user.SessionID,
		}
		if user.Email != "" {
			body["email"] = user.Email
		}
		response.Success(w, body)
	}
}
