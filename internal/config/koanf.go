// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/relife-gateway/config.yaml",
	"/etc/relife-gateway/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8090,
			Host:        "0.0.0.0",
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		API: APIConfig{
			DefaultPageSize: 50,
			MaxPageSize:     500,
		},
		Security: SecurityConfig{
			JWTSecret:      "",
			APIKeySecret:   "",
			CSRFSecret:     "",
			SessionTimeout: 24 * time.Hour,
			AdminUsername:  "",
			AdminPassword:  "",
			AllowedOrigins: []string{"*"},
			TrustedProxies: []string{},
		},
		RateLimit: RateLimitConfig{
			Disabled: false,
			General: WindowConfig{
				Window:      15 * time.Minute,
				MaxRequests: 100,
			},
			Auth: WindowConfig{
				Window:      15 * time.Minute,
				MaxRequests: 10,
			},
			ParameterUpdates: WindowConfig{
				Window:      5 * time.Minute,
				MaxRequests: 50,
			},
			Critical: WindowConfig{
				Window:      60 * time.Minute,
				MaxRequests: 10,
			},
			CleanupInterval: 5 * time.Minute,
		},
		APIKeys: APIKeysConfig{
			Store:              "memory",
			StorePath:          "/data/keys",
			KeyEnvironment:     "", // derived from server.environment
			ValidationTimeout:  5 * time.Second,
			DefaultRateLimit:   100,
			BcryptCost:         12,
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
		},
		Audit: AuditConfig{
			BufferCap:     1000,
			RetainOnEvict: 500,
			QueueSize:     1024,
			LogEvents:     true,
		},
		NATS: NATSConfig{
			Enabled:         false,
			URL:             "nats://127.0.0.1:4222",
			Subject:         "relife.audit.events",
			ForwardInterval: 5 * time.Second,
			BatchSize:       100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// This function is the preferred way to load configuration and provides:
//   - Type-safe configuration unmarshaling
//   - Clear precedence: ENV > File > Defaults
//   - Support for nested configuration via koanf struct tags
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// Transform environment variable names to koanf paths:
	// JWT_SECRET -> security.jwt_secret
	// RATE_LIMIT_AUTH_MAX -> rate_limit.auth.max_requests
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	// Unmarshal into Config struct
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	// Check environment variable first
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	// Search default paths
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"security.allowed_origins",
	"security.trusted_proxies",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// This is necessary because env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// If it's already a slice (from YAML file), skip
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		// If it's a string, split by comma
		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - JWT_SECRET -> security.jwt_secret
//   - ALLOWED_ORIGINS -> security.allowed_origins
//   - RATE_LIMIT_AUTH_MAX -> rate_limit.auth.max_requests
//   - NODE_ENV -> server.environment
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_port":    "server.port",
		"http_host":    "server.host",
		"http_timeout": "server.timeout",
		"environment":  "server.environment",
		// NODE_ENV is honored for parity with the TypeScript services that
		// front this gateway; it maps to the same setting as ENVIRONMENT.
		"node_env": "server.environment",

		// API mappings
		"api_default_page_size": "api.default_page_size",
		"api_max_page_size":     "api.max_page_size",

		// Security mappings
		"jwt_secret":      "security.jwt_secret",
		"api_key_secret":  "security.api_key_secret",
		"csrf_secret":     "security.csrf_secret",
		"session_timeout": "security.session_timeout",
		"admin_username":  "security.admin_username",
		"admin_password":  "security.admin_password",
		"allowed_origins": "security.allowed_origins",
		"trusted_proxies": "security.trusted_proxies",

		// Rate limit mappings (four request classes)
		"rate_limit_disabled":         "rate_limit.disabled",
		"rate_limit_general_window":   "rate_limit.general.window",
		"rate_limit_general_max":      "rate_limit.general.max_requests",
		"rate_limit_auth_window":      "rate_limit.auth.window",
		"rate_limit_auth_max":         "rate_limit.auth.max_requests",
		"rate_limit_param_window":     "rate_limit.parameter_updates.window",
		"rate_limit_param_max":        "rate_limit.parameter_updates.max_requests",
		"rate_limit_critical_window":  "rate_limit.critical.window",
		"rate_limit_critical_max":     "rate_limit.critical.max_requests",
		"rate_limit_cleanup_interval": "rate_limit.cleanup_interval",

		// API key service mappings
		"api_keys_store":               "api_keys.store",
		"api_keys_store_path":          "api_keys.store_path",
		"api_key_environment":          "api_keys.key_environment",
		"api_key_validation_timeout":   "api_keys.validation_timeout",
		"api_key_default_rate_limit":   "api_keys.default_rate_limit",
		"api_key_bcrypt_cost":          "api_keys.bcrypt_cost",
		"api_key_breaker_max_failures": "api_keys.breaker_max_failures",
		"api_key_breaker_timeout":      "api_keys.breaker_timeout",

		// Audit mappings
		"audit_buffer_cap":      "audit.buffer_cap",
		"audit_retain_on_evict": "audit.retain_on_evict",
		"audit_queue_size":      "audit.queue_size",
		"audit_log_events":      "audit.log_events",

		// NATS mappings (audit event forwarding)
		"nats_enabled":          "nats.enabled",
		"nats_url":              "nats.url",
		"nats_subject":          "nats.subject",
		"nats_forward_interval": "nats.forward_interval",
		"nats_batch_size":       "nats.batch_size",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// For unmapped keys, return empty string to skip them
	// This prevents random environment variables from polluting config
	return ""
}

// WatchConfigFile sets up a file watcher for hot-reload capability.
// Note: The caller is responsible for mutex protection when accessing
// configuration during reloads.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)

	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
