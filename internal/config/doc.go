// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

/*
Package config provides centralized configuration management for the gateway.

This package handles loading, validation, and parsing of configuration for all
gateway components. Configuration is layered via Koanf v2 (defaults, optional
YAML file, environment variables) and validated before the gateway starts, so
a misconfigured deployment fails fast instead of serving traffic with weakened
security.

# Configuration Sources

The package reads configuration from, in ascending priority:
  - Built-in defaults
  - YAML config file (config.yaml, or CONFIG_PATH)
  - Environment variables

# Configuration Structure

Configuration is organized into logical groups:

  - ServerConfig: HTTP server settings (host, port, timeout, environment)
  - APIConfig: Pagination limits for audit and key-management endpoints
  - SecurityConfig: Secrets, session lifetime, CORS origins, trusted proxies
  - RateLimitConfig: The four request classes enforced per identity
  - APIKeysConfig: Key store backend, hashing cost, validation breaker
  - AuditConfig: Bounded audit trail and async queue sizing
  - NATSConfig: Optional audit event forwarding to NATS JetStream
  - LoggingConfig: Log level and output format

# Required Settings

Two secrets must always be present, each at least 32 characters:

  - JWT_SECRET: HMAC signing secret for session tokens
  - API_KEY_SECRET: Pepper mixed into API key hashing

Everything else has working defaults for development. Production deployments
additionally require explicit ALLOWED_ORIGINS (wildcard is rejected when
ENVIRONMENT=production).

# Example

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal("Failed to load config:", err)
	}
	fmt.Println(cfg.Server.Port, cfg.RateLimit.Auth.MaxRequests)
*/
package config
