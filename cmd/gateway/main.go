// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

// Package main is the entry point for the Relife Gateway server.
//
// The gateway sits in front of the Relife AI Parameters API and applies a
// staged security pipeline to every request: authentication (JWT session
// tokens and hashed API keys), role-based authorization via Casbin,
// per-identity rate limiting across four request classes, payload
// validation, CSRF protection for session-authenticated writes, and a
// bounded in-memory audit trail with optional forwarding to NATS JetStream.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Load settings from environment variables and config files (Koanf v2)
//  2. Audit trail: Bounded in-memory buffer drained by an async writer
//  3. API key service: Memory or BadgerDB store behind a validation circuit breaker
//  4. Authentication: JWT session manager, trusted-proxy resolution, rate limiters
//  5. Authorization: Casbin enforcer loaded from the embedded RBAC model and policy
//  6. NATS (optional): Audit event forwarding to JetStream via Watermill
//  7. HTTP server: chi router carrying the staged middleware pipeline
//
// All long-running components run as services under a suture supervisor
// tree, so a crashed service restarts independently without taking the
// process down.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables (see .env.example)
//   - Config file (config.yaml)
//   - Built-in defaults
//
// Required secrets:
//   - JWT_SECRET: 32+ character secret for session token signing
//   - API_KEY_SECRET: 32+ character pepper mixed into API key hashing
//
// For the password login endpoint (optional; disabled when unset):
//   - ADMIN_USERNAME: Admin username
//   - ADMIN_PASSWORD: Admin password (12+ characters)
//
// # Persistent API Keys
//
// By default API keys live in memory and are lost on restart. For
// persistent keys across restarts:
//
//	export API_KEYS_STORE=badger
//	export API_KEYS_STORE_PATH=/data/keys
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests to complete (10s timeout)
//   - Flushes queued audit entries and the NATS outbox
//   - Closes the key store and authorization enforcer
//
// # Example Usage
//
// Development with in-memory keys:
//
//	export JWT_SECRET=$(openssl rand -base64 32)
//	export API_KEY_SECRET=$(openssl rand -base64 32)
//	export ADMIN_USERNAME=admin
//	export ADMIN_PASSWORD=super-secure-password
//	./relife-gateway
//
// Production with persistent keys and audit forwarding:
//
//	export ENVIRONMENT=production
//	export JWT_SECRET=$(openssl rand -base64 32)
//	export API_KEY_SECRET=$(openssl rand -base64 32)
//	export ALLOWED_ORIGINS=https://app.relife.app
//	export API_KEYS_STORE=badger
//	export API_KEYS_STORE_PATH=/data/keys
//	export NATS_ENABLED=true
//	export NATS_URL=nats://nats:4222
//	./relife-gateway
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Coolhgg/relife-gateway/internal/api"
	"github.com/Coolhgg/relife-gateway/internal/apikeys"
	"github.com/Coolhgg/relife-gateway/internal/audit"
	"github.com/Coolhgg/relife-gateway/internal/auth"
	"github.com/Coolhgg/relife-gateway/internal/authz"
	"github.com/Coolhgg/relife-gateway/internal/config"
	"github.com/Coolhgg/relife-gateway/internal/logging"
	"github.com/Coolhgg/relife-gateway/internal/metrics"
	"github.com/Coolhgg/relife-gateway/internal/supervisor"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog with configuration
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Str("version", api.Version).Msg("Starting Relife Gateway with supervisor tree")
	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("key_store", cfg.APIKeys.Store).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Msg("Configuration loaded")
	metrics.SetAppInfo(api.Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === AUDIT TRAIL ===
	// Created before everything else so every component can record into it.
	trail := audit.NewTrail(audit.Config{
		BufferCap:     cfg.Audit.BufferCap,
		RetainOnEvict: cfg.Audit.RetainOnEvict,
		QueueSize:     cfg.Audit.QueueSize,
		LogEvents:     cfg.Audit.LogEvents,
	})

	// === API KEY SERVICE ===
	var keyStore apikeys.Store
	switch cfg.APIKeys.Store {
	case "badger":
		badgerStore, err := apikeys.NewBadgerStore(cfg.APIKeys.StorePath)
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.APIKeys.StorePath).Msg("Failed to open BadgerDB key store")
		}
		keyStore = badgerStore
		logging.Info().Str("path", cfg.APIKeys.StorePath).Msg("BadgerDB key store opened")
	default:
		keyStore = apikeys.NewMemoryStore()
		if !cfg.IsDevelopment() {
			logging.Warn().Msg("============================================================")
			logging.Warn().Msg("  NOTICE: API key store is set to 'memory' (API_KEYS_STORE=memory)")
			logging.Warn().Msg("  ")
			logging.Warn().Msg("  Issued API keys will be lost when the server restarts!")
			logging.Warn().Msg("  This is fine for development, but for production consider:")
			logging.Warn().Msg("    API_KEYS_STORE=badger")
			logging.Warn().Msg("    API_KEYS_STORE_PATH=/data/keys")
			logging.Warn().Msg("============================================================")
		}
	}

	keyService := apikeys.NewService(cfg.APIKeys, cfg.KeyEnvironment(), cfg.Security.APIKeySecret, keyStore)
	defer func() {
		if err := keyService.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close key store")
		}
	}()
	logging.Info().
		Str("environment", cfg.KeyEnvironment()).
		Int("bcrypt_cost", cfg.APIKeys.BcryptCost).
		Msg("API key service initialized")

	// === AUTHENTICATION ===
	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
	}
	logging.Info().Msg("JWT session authentication enabled")

	proxies := auth.NewTrustedProxies(cfg.Security.TrustedProxies)
	limiters := auth.NewLimiters(cfg.RateLimit, proxies)

	if cfg.RateLimit.Disabled {
		logging.Warn().Msg("Rate limiting is DISABLED (RATE_LIMIT_DISABLED=true)")
		logging.Warn().Msg("This should only be used for load testing in isolated environments!")
	}

	if cfg.ShouldWarnAboutOrigins() {
		logging.Warn().Msg("============================================================")
		logging.Warn().Msg("  SECURITY WARNING: CORS is configured with wildcard origin (ALLOWED_ORIGINS=*)")
		logging.Warn().Msg("  ")
		logging.Warn().Msg("  This allows ANY website to make cross-origin requests to the gateway.")
		logging.Warn().Msg("  With authentication enabled, this creates a security vulnerability:")
		logging.Warn().Msg("  attackers can steal credentials via malicious websites.")
		logging.Warn().Msg("  ")
		logging.Warn().Msg("  RECOMMENDED: Set specific origins in production:")
		logging.Warn().Msg("    ALLOWED_ORIGINS=https://app.relife.app,https://admin.relife.app")
		logging.Warn().Msg("============================================================")
	}

	// === AUTHORIZATION ===
	enforcer, err := authz.NewEnforcer(nil)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authorization enforcer")
	}
	defer enforcer.Close()
	logging.Info().Msg("Casbin enforcer loaded from embedded model and policy")

	// === HTTP SERVER ===
	router, err := api.NewRouter(api.Deps{
		Config:   cfg,
		JWT:      jwtManager,
		Keys:     keyService,
		Enforcer: enforcer,
		Trail:    trail,
		Proxies:  proxies,
		Limiters: limiters,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build router")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// === SUPERVISOR TREE SETUP ===
	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// Audit layer services
	tree.AddAuditService(trail)
	if cfg.NATS.Enabled {
		publisher, err := audit.NewNATSPublisher(cfg.NATS.URL)
		if err != nil {
			logging.Warn().Err(err).Msg("Failed to create NATS publisher, audit forwarding disabled")
		} else {
			forwarder, err := audit.NewForwarder(audit.ForwarderConfig{
				Subject:       cfg.NATS.Subject,
				FlushInterval: cfg.NATS.ForwardInterval,
				BatchSize:     cfg.NATS.BatchSize,
			}, publisher)
			if err != nil {
				logging.Warn().Err(err).Msg("Failed to create audit forwarder, audit forwarding disabled")
			} else {
				trail.AttachForwarder(forwarder)
				tree.AddAuditService(forwarder)
				logging.Info().
					Str("url", cfg.NATS.URL).
					Str("subject", cfg.NATS.Subject).
					Msg("Audit event forwarding to NATS enabled")
			}
		}
	}

	// Housekeeping layer services
	tree.AddHousekeepingService(auth.NewJanitor(limiters, cfg.RateLimit.CleanupInterval))
	tree.AddHousekeepingService(apikeys.NewMaintenance(keyService, 0))
	logging.Info().Msg("Rate limit janitor and key maintenance added to supervisor tree")

	// API layer services
	tree.AddAPIService(supervisor.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// === START SUPERVISOR TREE ===

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Gateway stopped gracefully")
}
