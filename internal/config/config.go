// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package config

import (
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables and config files.
// Provides centralized configuration management for the gateway: HTTP server, security
// pipeline (secrets, CORS, CSRF), rate limiting, API key service, audit trail, and logging.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (config.yaml) for persistent settings
//  3. Environment Variables: Override any setting via environment variables
//
// Configuration Categories:
//
//  1. Server & API:
//     - Server: HTTP server configuration (port, host, timeout, environment)
//     - API: Pagination limits for audit and key-management endpoints
//
//  2. Security Pipeline:
//     - Security: Secrets, session lifetime, admin bootstrap, CORS, proxies
//     - RateLimit: The four request classes enforced per authenticated identity
//     - APIKeys: Key store backend, hashing cost, validation circuit breaker
//
//  3. Audit & Events:
//     - Audit: Bounded in-memory audit trail and async queue sizing
//     - NATS: Optional audit event forwarding to NATS JetStream
//
//  4. Observability:
//     - Logging: Log levels and output formats
//
// Example - Load configuration from environment:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal("Failed to load config:", err)
//	}
//	// cfg.Security.JWTSecret, cfg.RateLimit.Auth, etc. are now populated
//
// Validation:
// The Load() function validates all required fields and returns an error if:
//   - Required secrets are missing or too short (JWT_SECRET, API_KEY_SECRET)
//   - Values are malformed (invalid NATS URL, out-of-range limits)
//   - Production mode is combined with insecure settings (wildcard origins)
//
// Thread Safety:
// Config is immutable after Load() and safe for concurrent read access from multiple goroutines.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	API       APIConfig       `koanf:"api"`
	Security  SecurityConfig  `koanf:"security"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	APIKeys   APIKeysConfig   `koanf:"api_keys"`
	Audit     AuditConfig     `koanf:"audit"`
	NATS      NATSConfig      `koanf:"nats"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
//
// Environment Variables:
//   - HTTP_PORT: Listen port (default: 8090)
//   - HTTP_HOST: Listen host (default: 0.0.0.0)
//   - HTTP_TIMEOUT: Read/write timeout (default: 30s)
//   - ENVIRONMENT: "development", "test", "staging", "production" (default: development)
//   - NODE_ENV: Accepted as an alias for ENVIRONMENT for parity with the
//     TypeScript services that sit in front of this gateway
type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// APIConfig holds pagination limits for the audit and key-management endpoints.
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// SecurityConfig holds authentication, session, and origin settings.
//
// Environment Variables:
//   - JWT_SECRET: HMAC signing secret for session tokens (required, 32+ chars)
//   - API_KEY_SECRET: Pepper mixed into API key hashing (required, 32+ chars)
//   - CSRF_SECRET: HMAC secret for CSRF token derivation (optional; falls back
//     to JWT_SECRET when empty so single-secret deployments keep working)
//   - SESSION_TIMEOUT: Session token lifetime (default: 24h)
//   - ADMIN_USERNAME / ADMIN_PASSWORD: Bootstrap admin credentials for the
//     login endpoint (optional; login is disabled when unset)
//   - ALLOWED_ORIGINS: Comma-separated CORS origins (default: *)
//   - TRUSTED_PROXIES: Comma-separated proxy CIDRs whose X-Forwarded-For is trusted
type SecurityConfig struct {
	JWTSecret      string        `koanf:"jwt_secret"`
	APIKeySecret   string        `koanf:"api_key_secret"`
	CSRFSecret     string        `koanf:"csrf_secret"`
	SessionTimeout time.Duration `koanf:"session_timeout"`
	AdminUsername  string        `koanf:"admin_username"`
	AdminPassword  string        `koanf:"admin_password"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	TrustedProxies []string      `koanf:"trusted_proxies"`
}

// EffectiveCSRFSecret returns the secret used for CSRF token derivation.
// Falls back to the JWT secret when no dedicated CSRF secret is configured.
func (s *SecurityConfig) EffectiveCSRFSecret() string {
	if s.CSRFSecret != "" {
		return s.CSRFSecret
	}
	return s.JWTSecret
}

// WindowConfig describes one fixed rate-limit window class: at most
// MaxRequests are admitted per client key within each Window.
type WindowConfig struct {
	Window      time.Duration `koanf:"window"`
	MaxRequests int           `koanf:"max_requests"`
}

// RateLimitConfig holds the four request classes enforced after authentication,
// keyed by authenticated identity (client IP for anonymous requests).
//
// Environment Variables:
//   - RATE_LIMIT_DISABLED: Disable all class limiters (default: false)
//   - RATE_LIMIT_GENERAL_WINDOW / RATE_LIMIT_GENERAL_MAX (default: 15m / 100)
//   - RATE_LIMIT_AUTH_WINDOW / RATE_LIMIT_AUTH_MAX (default: 15m / 10)
//   - RATE_LIMIT_PARAM_WINDOW / RATE_LIMIT_PARAM_MAX (default: 5m / 50)
//   - RATE_LIMIT_CRITICAL_WINDOW / RATE_LIMIT_CRITICAL_MAX (default: 60m / 10)
//   - RATE_LIMIT_CLEANUP_INTERVAL: Expired-window sweep interval (default: 5m)
type RateLimitConfig struct {
	Disabled         bool          `koanf:"disabled"`
	General          WindowConfig  `koanf:"general"`
	Auth             WindowConfig  `koanf:"auth"`
	ParameterUpdates WindowConfig  `koanf:"parameter_updates"`
	Critical         WindowConfig  `koanf:"critical"`
	CleanupInterval  time.Duration `koanf:"cleanup_interval"`
}

// APIKeysConfig holds the API key service settings: storage backend, key
// hashing, and the circuit breaker wrapped around validation.
//
// Environment Variables:
//   - API_KEYS_STORE: Storage backend: "memory" (default) or "badger"
//   - API_KEYS_STORE_PATH: BadgerDB directory (required when store=badger)
//   - API_KEY_ENVIRONMENT: Environment segment embedded in generated keys
//     ("live", "test"); empty derives it from ENVIRONMENT
//   - API_KEY_VALIDATION_TIMEOUT: Per-request validation deadline (default: 5s)
//   - API_KEY_DEFAULT_RATE_LIMIT: Default per-key requests/minute (default: 100)
//   - API_KEY_BCRYPT_COST: bcrypt cost for key secret hashing (default: 12)
//   - API_KEY_BREAKER_MAX_FAILURES: Consecutive failures before the breaker opens (default: 5)
//   - API_KEY_BREAKER_TIMEOUT: Open-state duration before a probe (default: 30s)
type APIKeysConfig struct {
	Store              string        `koanf:"store"`
	StorePath          string        `koanf:"store_path"`
	KeyEnvironment     string        `koanf:"key_environment"`
	ValidationTimeout  time.Duration `koanf:"validation_timeout"`
	DefaultRateLimit   int           `koanf:"default_rate_limit"`
	BcryptCost         int           `koanf:"bcrypt_cost"`
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
}

// AuditConfig holds the bounded in-memory audit trail settings.
//
// The buffer holds at most BufferCap entries. When an append would exceed the
// cap, the store keeps only the most recent RetainOnEvict entries before
// appending, so the trail stays bounded under sustained load while always
// holding the newest events.
//
// Environment Variables:
//   - AUDIT_BUFFER_CAP: Maximum retained entries (default: 1000)
//   - AUDIT_RETAIN_ON_EVICT: Entries kept when the cap is exceeded (default: 500)
//   - AUDIT_QUEUE_SIZE: Async logging queue size; events are dropped, never
//     blocked on, when the queue is full (default: 1024)
//   - AUDIT_LOG_EVENTS: Also emit each audit entry to the process log (default: true)
type AuditConfig struct {
	BufferCap     int  `koanf:"buffer_cap"`
	RetainOnEvict int  `koanf:"retain_on_evict"`
	QueueSize     int  `koanf:"queue_size"`
	LogEvents     bool `koanf:"log_events"`
}

// NATSConfig holds optional audit event forwarding to NATS JetStream.
// When enabled, audit entries are buffered in an outbox and forwarded in
// batches so a broker outage never blocks request handling.
//
// Environment Variables:
//   - NATS_ENABLED: Enable audit event forwarding (default: false)
//   - NATS_URL: NATS server connection URL (default: nats://127.0.0.1:4222)
//   - NATS_SUBJECT: Subject for audit events (default: relife.audit.events)
//   - NATS_FORWARD_INTERVAL: Outbox flush interval (default: 5s)
//   - NATS_BATCH_SIZE: Maximum events per flush (default: 100)
type NATSConfig struct {
	Enabled         bool          `koanf:"enabled"`
	URL             string        `koanf:"url"`
	Subject         string        `koanf:"subject"`
	ForwardInterval time.Duration `koanf:"forward_interval"`
	BatchSize       int           `koanf:"batch_size"`
}

// LoggingConfig holds logging settings for zerolog.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false - include caller file:line (default: false)
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is the output format: json or console.
	// JSON is recommended for production (structured, machine-parseable).
	// Console is human-readable for development.
	// Default: json
	Format string `koanf:"format"`

	// Caller includes caller file and line number in logs.
	// Adds slight performance overhead.
	// Default: false
	Caller bool `koanf:"caller"`
}

// Load reads configuration from environment variables and optional config file.
// Configuration is loaded in the following order (later sources override earlier ones):
//  1. Built-in defaults
//  2. Config file (config.yaml if exists, or path specified in CONFIG_PATH env var)
//  3. Environment variables
//
// See LoadWithKoanf() for the underlying implementation.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// IsProduction returns true if the gateway is running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Server.Environment)
	return env == "production" || env == "prod"
}

// IsDevelopment returns true if the gateway is running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Server.Environment)
	return env == "" || env == "development" || env == "dev"
}

// KeyEnvironment returns the environment segment for generated API keys.
// Explicit configuration wins; otherwise production maps to "live" and
// everything else to "test".
func (c *Config) KeyEnvironment() string {
	if c.APIKeys.KeyEnvironment != "" {
		return c.APIKeys.KeyEnvironment
	}
	if c.IsProduction() {
		return "live"
	}
	return "test"
}
