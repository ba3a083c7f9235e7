// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Coolhgg/relife-gateway/internal/config"
)

// Claims is the gateway's JWT claim set. Field names match what the
// Relife clients already send, so tokens issued elsewhere with the same
// secret keep working.
type Claims struct {
	UserID      string   `json:"userId"`
	Email       string   `json:"email,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	SessionID   string   `json:"sessionId,omitempty"`
	jwt.RegisteredClaims
}

// Identity converts verified claims into a UserIdentity. A missing role
// claim defaults to "user" and missing permissions default to an empty
// set, never nil semantics that differ from empty.
func (c *Claims) Identity() *UserIdentity {
	role := c.Role
	if role == "" {
		role = RoleUser
	}
	permissions := c.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	return &UserIdentity{
		ID:          c.UserID,
		Email:       c.Email,
		Role:        role,
		Permissions: permissions,
		SessionID:   c.SessionID,
	}
}

// JWTManager creates and validates the gateway's bearer tokens using
// HMAC-SHA256 with the configured secret.
type JWTManager struct {
	secret  []byte
	timeout time.Duration
}

// NewJWTManager builds a manager from the security configuration.
// Returns an error when JWT_SECRET is empty; length requirements are
// enforced by config validation at startup.
func NewJWTManager(cfg *config.SecurityConfig) (*JWTManager, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but was empty")
	}
	timeout := cfg.SessionTimeout
	if timeout <= 0 {
		timeout = 24 * time.Hour
	}
	return &JWTManager{
		secret:  []byte(cfg.JWTSecret),
		timeout: timeout,
	}, nil
}

// SessionTimeout returns the lifetime applied to issued tokens.
func (m *JWTManager) SessionTimeout() time.Duration {
	return m.timeout
}

// GenerateToken signs a token for an authenticated user. The token
// expires after the configured session timeout.
func (m *JWTManager) GenerateToken(userID, email, role string, permissions []string, sessionID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:      userID,
		Email:       email,
		Role:        role,
		Permissions: permissions,
		SessionID:   sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.timeout)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies a token string and returns its claims.
//
// The key function rejects any signing method other than HMAC, which
// blocks algorithm confusion (an RS256 or "none" token never reaches
// signature verification with our secret). Expired tokens return
// ErrExpiredCredentials so callers can distinguish TOKEN_EXPIRED from
// INVALID_TOKEN; every other failure wraps ErrInvalidCredentials.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", ErrExpiredCredentials)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", ErrInvalidCredentials)
	}
	return claims, nil
}
