// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks that required configuration is present and valid.
// The gateway refuses to start on any validation failure so that a
// misconfigured deployment never serves traffic with weakened security.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateAPI(); err != nil {
		return err
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	if err := c.validateRateLimits(); err != nil {
		return err
	}

	if err := c.validateAPIKeys(); err != nil {
		return err
	}

	if err := c.validateAudit(); err != nil {
		return err
	}

	if err := c.validateNATS(); err != nil {
		return err
	}

	return c.validateLogging()
}

// validateServer validates server configuration
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.Timeout < time.Second || c.Server.Timeout > 5*time.Minute {
		return fmt.Errorf("HTTP_TIMEOUT must be between 1s and 5m")
	}
	return nil
}

// validateAPI validates pagination configuration
func (c *Config) validateAPI() error {
	if c.API.DefaultPageSize < 1 {
		return fmt.Errorf("API_DEFAULT_PAGE_SIZE must be at least 1")
	}
	if c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("API_MAX_PAGE_SIZE must be >= API_DEFAULT_PAGE_SIZE")
	}
	return nil
}

// validateSecurity validates the secrets, session, and origin configuration
func (c *Config) validateSecurity() error {
	if err := c.validateJWTSecret(); err != nil {
		return err
	}
	if err := c.validateAPIKeySecret(); err != nil {
		return err
	}
	if err := c.validateSessionTimeout(); err != nil {
		return err
	}
	if err := c.validateOrigins(); err != nil {
		return err
	}
	return c.validateAdminCredentials()
}

// minSecretLength is the minimum length for HMAC secrets. Shorter secrets
// weaken both session tokens and CSRF derivation.
const minSecretLength = 32

// validateJWTSecret validates the session token signing secret
func (c *Config) validateJWTSecret() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.Security.JWTSecret) < minSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters for security", minSecretLength)
	}
	if containsPlaceholder(c.Security.JWTSecret) {
		return fmt.Errorf("JWT_SECRET contains a placeholder value - generate a secure secret with: openssl rand -base64 32")
	}
	return nil
}

// validateAPIKeySecret validates the API key hashing pepper
func (c *Config) validateAPIKeySecret() error {
	if c.Security.APIKeySecret == "" {
		return fmt.Errorf("API_KEY_SECRET is required")
	}
	if len(c.Security.APIKeySecret) < minSecretLength {
		return fmt.Errorf("API_KEY_SECRET must be at least %d characters for security", minSecretLength)
	}
	if containsPlaceholder(c.Security.APIKeySecret) {
		return fmt.Errorf("API_KEY_SECRET contains a placeholder value - generate a secure secret with: openssl rand -base64 32")
	}
	if c.Security.APIKeySecret == c.Security.JWTSecret {
		return fmt.Errorf("API_KEY_SECRET must differ from JWT_SECRET so a leak of one does not compromise the other")
	}
	return nil
}

// validateSessionTimeout validates the session token lifetime
func (c *Config) validateSessionTimeout() error {
	if c.Security.SessionTimeout < time.Minute || c.Security.SessionTimeout > 7*24*time.Hour {
		return fmt.Errorf("SESSION_TIMEOUT must be between 1m and 168h")
	}
	return nil
}

// validateOrigins validates CORS configuration.
// In production, wildcard origins are rejected: wildcard CORS combined with
// credentialed requests lets any site replay stolen credentials.
func (c *Config) validateOrigins() error {
	if len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_ORIGINS must not be empty")
	}
	if c.hasWildcardOrigin() && c.IsProduction() {
		return fmt.Errorf("ALLOWED_ORIGINS=* (wildcard) is not allowed in production. " +
			"Set specific origins: ALLOWED_ORIGINS=https://app.relife.app,https://admin.relife.app " +
			"or use ENVIRONMENT=development for testing purposes")
	}
	return nil
}

// hasWildcardOrigin checks if CORS is configured with wildcard origins
func (c *Config) hasWildcardOrigin() bool {
	for _, origin := range c.Security.AllowedOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// ShouldWarnAboutOrigins returns true if CORS configuration has security
// concerns that should be logged at startup
func (c *Config) ShouldWarnAboutOrigins() bool {
	return c.hasWildcardOrigin()
}

// validateAdminCredentials validates the optional admin bootstrap credentials.
// Both must be set together; the login endpoint is disabled when absent.
func (c *Config) validateAdminCredentials() error {
	if c.Security.AdminUsername == "" && c.Security.AdminPassword == "" {
		return nil
	}
	if c.Security.AdminUsername == "" {
		return fmt.Errorf("ADMIN_USERNAME is required when ADMIN_PASSWORD is set")
	}
	if c.Security.AdminPassword == "" {
		return fmt.Errorf("ADMIN_PASSWORD is required when ADMIN_USERNAME is set")
	}
	if containsPlaceholder(c.Security.AdminPassword) {
		return fmt.Errorf("ADMIN_PASSWORD contains a placeholder value - set a secure password")
	}
	policy := DefaultPasswordPolicy()
	if err := policy.ValidateWithError(c.Security.AdminPassword, c.Security.AdminUsername); err != nil {
		return fmt.Errorf("ADMIN_PASSWORD: %w", err)
	}
	return nil
}

// Rate limit bounds
const (
	minWindowRequests = 1
	maxWindowRequests = 100000
	minWindow         = time.Second
	maxWindow         = 24 * time.Hour
)

// validateRateLimits validates the four request-class windows.
// Ensures values are within sensible ranges to prevent misconfiguration
// that could lead to DoS or ineffective protection.
func (c *Config) validateRateLimits() error {
	if c.RateLimit.Disabled {
		return nil
	}

	classes := []struct {
		name string
		cfg  WindowConfig
	}{
		{"RATE_LIMIT_GENERAL", c.RateLimit.General},
		{"RATE_LIMIT_AUTH", c.RateLimit.Auth},
		{"RATE_LIMIT_PARAM", c.RateLimit.ParameterUpdates},
		{"RATE_LIMIT_CRITICAL", c.RateLimit.Critical},
	}

	for _, class := range classes {
		if class.cfg.MaxRequests < minWindowRequests || class.cfg.MaxRequests > maxWindowRequests {
			return fmt.Errorf("%s_MAX must be between %d and %d", class.name, minWindowRequests, maxWindowRequests)
		}
		if class.cfg.Window < minWindow || class.cfg.Window > maxWindow {
			return fmt.Errorf("%s_WINDOW must be between %v and %v", class.name, minWindow, maxWindow)
		}
	}

	if c.RateLimit.CleanupInterval < time.Second || c.RateLimit.CleanupInterval > time.Hour {
		return fmt.Errorf("RATE_LIMIT_CLEANUP_INTERVAL must be between 1s and 1h")
	}
	return nil
}

// validKeyStores defines the allowed API key storage backends
var validKeyStores = map[string]bool{
	"memory": true,
	"badger": true,
}

// bcrypt cost bounds (mirror golang.org/x/crypto/bcrypt)
const (
	minBcryptCost = 4
	maxBcryptCost = 31
)

// validateAPIKeys validates the API key service configuration
func (c *Config) validateAPIKeys() error {
	if !validKeyStores[c.APIKeys.Store] {
		return fmt.Errorf("API_KEYS_STORE must be one of: memory, badger")
	}
	if c.APIKeys.Store == "badger" && c.APIKeys.StorePath == "" {
		return fmt.Errorf("API_KEYS_STORE_PATH is required when API_KEYS_STORE=badger")
	}
	if c.APIKeys.ValidationTimeout < 100*time.Millisecond || c.APIKeys.ValidationTimeout > 30*time.Second {
		return fmt.Errorf("API_KEY_VALIDATION_TIMEOUT must be between 100ms and 30s")
	}
	if c.APIKeys.DefaultRateLimit < 1 {
		return fmt.Errorf("API_KEY_DEFAULT_RATE_LIMIT must be at least 1")
	}
	if c.APIKeys.BcryptCost < minBcryptCost || c.APIKeys.BcryptCost > maxBcryptCost {
		return fmt.Errorf("API_KEY_BCRYPT_COST must be between %d and %d", minBcryptCost, maxBcryptCost)
	}
	if c.APIKeys.BreakerMaxFailures < 1 {
		return fmt.Errorf("API_KEY_BREAKER_MAX_FAILURES must be at least 1")
	}
	if c.APIKeys.BreakerTimeout < time.Second || c.APIKeys.BreakerTimeout > 10*time.Minute {
		return fmt.Errorf("API_KEY_BREAKER_TIMEOUT must be between 1s and 10m")
	}

	if c.APIKeys.KeyEnvironment != "" {
		if c.APIKeys.KeyEnvironment != "live" && c.APIKeys.KeyEnvironment != "test" {
			return fmt.Errorf("API_KEY_ENVIRONMENT must be one of: live, test")
		}
	}
	return nil
}

// validateAudit validates the audit trail configuration
func (c *Config) validateAudit() error {
	if c.Audit.BufferCap < 1 {
		return fmt.Errorf("AUDIT_BUFFER_CAP must be at least 1")
	}
	if c.Audit.RetainOnEvict < 0 {
		return fmt.Errorf("AUDIT_RETAIN_ON_EVICT must be non-negative")
	}
	if c.Audit.RetainOnEvict >= c.Audit.BufferCap {
		return fmt.Errorf("AUDIT_RETAIN_ON_EVICT must be less than AUDIT_BUFFER_CAP")
	}
	if c.Audit.QueueSize < 1 {
		return fmt.Errorf("AUDIT_QUEUE_SIZE must be at least 1")
	}
	return nil
}

// validateNATS validates audit forwarding configuration (only if enabled)
func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}

	if err := validateNATSURL(c.NATS.URL); err != nil {
		return fmt.Errorf("NATS_URL is invalid: %w", err)
	}
	if c.NATS.Subject == "" {
		return fmt.Errorf("NATS_SUBJECT is required when NATS_ENABLED=true")
	}
	if c.NATS.ForwardInterval < 100*time.Millisecond || c.NATS.ForwardInterval > time.Hour {
		return fmt.Errorf("NATS_FORWARD_INTERVAL must be between 100ms and 1h")
	}
	if c.NATS.BatchSize < 1 || c.NATS.BatchSize > 10000 {
		return fmt.Errorf("NATS_BATCH_SIZE must be between 1 and 10000")
	}
	return nil
}

// validLogLevels defines the allowed log levels
var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats defines the allowed log formats
var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

// validateLogging validates logging configuration
func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format == "" {
		return nil
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// placeholderPatterns defines common placeholder patterns that indicate
// the user forgot to set a real value. This prevents accidental deployment
// with insecure default credentials.
var placeholderPatterns = []string{
	"REPLACE",
	"CHANGEME",
	"CHANGE_ME",
	"YOUR_SECRET",
	"YOUR_PASSWORD",
	"PLACEHOLDER",
	"EXAMPLE",
}

// containsPlaceholder checks if a value contains common placeholder patterns
// that indicate the user forgot to set a real value.
func containsPlaceholder(value string) bool {
	upperValue := strings.ToUpper(value)
	for _, pattern := range placeholderPatterns {
		if strings.Contains(upperValue, pattern) {
			return true
		}
	}
	return false
}
