// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package apikeys

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	// keyScheme prefixes every issued key.
	keyScheme = "rlk"

	// encodedIDLen is the base64url length of a 16-byte UUID. Fixed
	// length lets the parser slice the ID out even though base64url's
	// alphabet contains the separator character.
	encodedIDLen = 22

	// secretBytes is the entropy of the key secret.
	secretBytes = 32

	// displayPrefixLen is how much of the encoded ID appears in the
	// stored display prefix.
	displayPrefixLen = 8

	// DefaultBcryptCost matches the cost used for stored key hashes.
	DefaultBcryptCost = 12
)

// Environments a key can be scoped to.
const (
	EnvironmentLive = "live"
	EnvironmentTest = "test"
)

// Key is the stored record for an issued API key. The secret itself is
// never stored; only Hash survives issuance.
type Key struct {
	// ID is the key UUID, embedded base64url-encoded in the raw key.
	ID string `json:"id"`

	// Name is the human label shown in the admin API.
	Name string `json:"name"`

	// Prefix is the non-secret display form, e.g. "rlk_live_Ab12Cd34".
	Prefix string `json:"prefix"`

	// Hash is bcrypt over the peppered HMAC of the secret.
	Hash string `json:"-"`

	// Scopes the key grants, checked by the authorization stage.
	Scopes []string `json:"scopes"`

	// Environment is "live" or "test".
	Environment string `json:"environment"`

	// OwnerUserID ties the key to the user who created it, if any.
	OwnerUserID string `json:"ownerUserId,omitempty"`

	// RateLimitPerMinute caps the key's request rate.
	RateLimitPerMinute int `json:"rateLimitPerMinute"`

	// AllowedIPs restricts callers when non-empty.
	AllowedIPs []string `json:"allowedIps,omitempty"`

	// AllowedOrigins restricts the Origin header when non-empty.
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`

	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	UsageCount int64      `json:"usageCount"`

	Revoked   bool       `json:"revoked"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
	RevokedBy string     `json:"revokedBy,omitempty"`
}

// IsExpired reports whether the key's expiry has passed.
func (k *Key) IsExpired() bool {
	return k.ExpiresAt != nil && time.Now().After(*k.ExpiresAt)
}

// HasScope reports whether the key grants the given scope.
func (k *Key) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// allowsIP reports whether clientIP passes the key's IP allowlist.
// An empty allowlist admits every address.
func (k *Key) allowsIP(clientIP string) bool {
	if len(k.AllowedIPs) == 0 {
		return true
	}
	for _, ip := range k.AllowedIPs {
		if ip == clientIP {
			return true
		}
	}
	return false
}

// allowsOrigin reports whether origin passes the key's origin
// allowlist. An empty allowlist admits every origin; an empty origin
// header is only rejected when an allowlist exists.
func (k *Key) allowsOrigin(origin string) bool {
	if len(k.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range k.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

// UsageRecord is one entry in a key's usage log.
type UsageRecord struct {
	ID        string    `json:"id"`
	KeyID     string    `json:"keyId"`
	Timestamp time.Time `json:"timestamp"`

	// Event is "request" for admitted calls and "security_violation"
	// for rejected ones.
	Event string `json:"event"`

	IP     string `json:"ip,omitempty"`
	Origin string `json:"origin,omitempty"`

	// ResponseTimeMs is the validation latency for admitted calls.
	ResponseTimeMs int64 `json:"responseTimeMs,omitempty"`

	// Detail carries the rejection reason for security violations.
	Detail string `json:"detail,omitempty"`
}

// Usage event values.
const (
	UsageEventRequest           = "request"
	UsageEventSecurityViolation = "security_violation"
)

// GenerateKey mints a new key ID and secret, returning the raw key for
// one-time display alongside its parts.
func GenerateKey(environment string) (id, rawKey, secret string, err error) {
	keyID := uuid.New()
	encID := base64.RawURLEncoding.EncodeToString(keyID[:])

	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("generate key secret: %w", err)
	}
	secret = base64.RawURLEncoding.EncodeToString(buf)

	rawKey = fmt.Sprintf("%s_%s_%s_%s", keyScheme, environment, encID, secret)
	return keyID.String(), rawKey, secret, nil
}

// DisplayPrefix returns the non-secret prefix stored with the key.
func DisplayPrefix(environment, keyID string) string {
	parsed, err := uuid.Parse(keyID)
	if err != nil {
		return fmt.Sprintf("%s_%s_", keyScheme, environment)
	}
	encID := base64.RawURLEncoding.EncodeToString(parsed[:])
	return fmt.Sprintf("%s_%s_%s", keyScheme, environment, encID[:displayPrefixLen])
}

// ParseKey splits a raw key into its environment, key ID and secret.
// The encoded ID has a fixed length, so the parse is unambiguous even
// though base64url values may themselves contain underscores.
func ParseKey(raw string) (environment, keyID, secret string, err error) {
	if !strings.HasPrefix(raw, keyScheme+"_") {
		return "", "", "", ErrInvalidFormat
	}
	rest := raw[len(keyScheme)+1:]

	sep := strings.IndexByte(rest, '_')
	if sep <= 0 {
		return "", "", "", ErrInvalidFormat
	}
	environment = rest[:sep]
	if environment != EnvironmentLive && environment != EnvironmentTest {
		return "", "", "", ErrInvalidFormat
	}

	tail := rest[sep+1:]
	if len(tail) < encodedIDLen+2 || tail[encodedIDLen] != '_' {
		return "", "", "", ErrInvalidFormat
	}
	encID := tail[:encodedIDLen]
	secret = tail[encodedIDLen+1:]

	idBytes, decodeErr := base64.RawURLEncoding.DecodeString(encID)
	if decodeErr != nil || len(idBytes) != 16 {
		return "", "", "", ErrInvalidFormat
	}
	parsed, uuidErr := uuid.FromBytes(idBytes)
	if uuidErr != nil {
		return "", "", "", ErrInvalidFormat
	}

	return environment, parsed.String(), secret, nil
}

// HashSecret derives the stored hash: HMAC-SHA256 keyed with the
// server-side pepper first, so bcrypt's 72-byte input limit never
// truncates, then bcrypt at the given cost.
func HashSecret(secret, pepper string, cost int) (string, error) {
	if cost <= 0 {
		cost = DefaultBcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword(pepperSecret(secret, pepper), cost)
	if err != nil {
		return "", fmt.Errorf("hash key secret: %w", err)
	}
	return string(hash), nil
}

// VerifySecret checks a presented secret against the stored hash. The
// pepper must match the one used at issuance.
func VerifySecret(hash, secret, pepper string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), pepperSecret(secret, pepper)) == nil
}

func pepperSecret(secret, pepper string) []byte {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(secret))
	return mac.Sum(nil)
}
