// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package apikeys

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/Coolhgg/relife-gateway/internal/config"
	"github.com/Coolhgg/relife-gateway/internal/logging"
	"github.com/Coolhgg/relife-gateway/internal/metrics"
)

const (
	// breakerName identifies the key-store breaker in metrics and logs.
	breakerName = "apikey_store"

	// accountingTimeout bounds the fire-and-forget usage writes.
	accountingTimeout = 5 * time.Second

	// defaultValidationTimeout bounds a single store lookup.
	defaultValidationTimeout = 5 * time.Second

	// limiterIdleTTL is how long an unused per-key limiter survives
	// before the maintenance sweep drops it.
	limiterIdleTTL = time.Hour
)

// Validation is the successful outcome of validating a raw API key. It
// carries everything the authentication layer needs to build an
// identity plus the key's current rate-limit budget.
type Validation struct {
	KeyID              string
	Name               string
	Scopes             []string
	Environment        string
	OwnerUserID        string
	RateLimitPerMinute int

	// Remaining and Reset describe the per-key limiter state at
	// admission time, surfaced as X-RateLimit headers.
	Remaining int
	Reset     time.Time
}

// CreateKeyRequest carries the admin-supplied attributes for a new key.
type CreateKeyRequest struct {
	Name               string        `json:"name"`
	Scopes             []string      `json:"scopes"`
	Environment        string        `json:"environment,omitempty"`
	OwnerUserID        string        `json:"ownerUserId,omitempty"`
	RateLimitPerMinute int           `json:"rateLimitPerMinute,omitempty"`
	AllowedIPs         []string      `json:"allowedIps,omitempty"`
	AllowedOrigins     []string      `json:"allowedOrigins,omitempty"`
	ExpiresIn          time.Duration `json:"expiresIn,omitempty"`
}

// keyLimiter pairs a token bucket with its last use so idle entries can
// be swept.
type keyLimiter struct {
	limiter    *rate.Limiter
	perMinute  int
	lastAccess time.Time
}

// Service validates raw API keys against the store and manages their
// lifecycle. Store access runs behind a circuit breaker with a deadline
// so a slow or failing backend rejects quickly instead of stalling the
// request path.
type Service struct {
	cfg     config.APIKeysConfig
	env     string
	pepper  string
	store   Store
	breaker *gobreaker.CircuitBreaker[*Key]

	mu       sync.Mutex
	limiters map[string]*keyLimiter
}

// NewService wires a key service around the given store. env is the
// environment segment accepted in presented keys ("live" or "test");
// pepper keys the secret hash and must be stable across restarts or
// every issued key stops verifying.
func NewService(cfg config.APIKeysConfig, env, pepper string, store Store) *Service {
	s := &Service{
		cfg:      cfg,
		env:      env,
		pepper:   pepper,
		store:    store,
		limiters: make(map[string]*keyLimiter),
	}

	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	s.breaker = gobreaker.NewCircuitBreaker[*Key](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// A missing key is an answer from the store, not a
			// store failure. Only infrastructure errors trip.
			return err == nil || errors.Is(err, ErrKeyNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordBreakerTransition(name, from.String(), to.String())
			metrics.SetBreakerState(name, breakerStateValue(to))
			logging.WithComponent("apikeys").Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("key store circuit breaker state changed")
		},
	})
	metrics.SetBreakerState(breakerName, breakerStateValue(gobreaker.StateClosed))

	return s
}

func breakerStateValue(st gobreaker.State) float64 {
	switch st {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// breakerResult classifies an Execute outcome the way the breaker
// counts it: a missing key is still a successful lookup.
func breakerResult(err error) string {
	switch {
	case err == nil, errors.Is(err, ErrKeyNotFound):
		return "success"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "rejected"
	default:
		return "failure"
	}
}

// ValidateKey checks a presented raw key and returns its Validation.
// Failures map to the package sentinels; store trouble (breaker open,
// lookup timeout) returns ErrUnavailable so callers fail closed.
func (s *Service) ValidateKey(ctx context.Context, rawKey string, requiredScopes []string, clientIP, origin string) (*Validation, error) {
	start := time.Now()

	env, keyID, secret, err := ParseKey(rawKey)
	if err != nil {
		metrics.RecordKeyValidation("invalid_format", time.Since(start))
		return nil, err
	}
	if env != s.env {
		metrics.RecordKeyValidation("wrong_environment", time.Since(start))
		return nil, ErrKeyNotFound
	}

	key, err := s.fetchKey(ctx, keyID)
	if err != nil {
		result := "not_found"
		if errors.Is(err, ErrUnavailable) {
			result = "unavailable"
		}
		metrics.RecordKeyValidation(result, time.Since(start))
		return nil, err
	}

	if key.Revoked {
		s.recordViolation(key.ID, clientIP, origin, "revoked")
		metrics.RecordKeyValidation("revoked", time.Since(start))
		return nil, ErrKeyRevoked
	}
	if key.IsExpired() {
		s.recordViolation(key.ID, clientIP, origin, "expired")
		metrics.RecordKeyValidation("expired", time.Since(start))
		return nil, ErrKeyExpired
	}
	if !VerifySecret(key.Hash, secret, s.pepper) {
		s.recordViolation(key.ID, clientIP, origin, "secret_mismatch")
		metrics.RecordKeyValidation("secret_mismatch", time.Since(start))
		// Indistinguishable from an unknown key on purpose.
		return nil, ErrKeyNotFound
	}
	if !key.allowsIP(clientIP) {
		s.recordViolation(key.ID, clientIP, origin, "ip_not_allowed")
		metrics.RecordKeyValidation("ip_not_allowed", time.Since(start))
		return nil, ErrIPNotAllowed
	}
	if !key.allowsOrigin(origin) {
		s.recordViolation(key.ID, clientIP, origin, "origin_not_allowed")
		metrics.RecordKeyValidation("origin_not_allowed", time.Since(start))
		return nil, ErrOriginNotAllowed
	}
	if missing := missingScopes(key, requiredScopes); len(missing) > 0 {
		s.recordViolation(key.ID, clientIP, origin, "missing_scopes: "+strings.Join(missing, ","))
		metrics.RecordKeyValidation("missing_scope", time.Since(start))
		return nil, ErrScopeMissing
	}

	allowed, remaining, reset := s.allowKeyRequest(key)
	if !allowed {
		s.recordViolation(key.ID, clientIP, origin, "rate_limited")
		metrics.RecordKeyValidation("rate_limited", time.Since(start))
		return nil, ErrKeyRateLimited
	}

	elapsed := time.Since(start)
	metrics.RecordKeyValidation("success", elapsed)
	s.recordUse(key.ID, clientIP, origin, elapsed)

	return &Validation{
		KeyID:              key.ID,
		Name:               key.Name,
		Scopes:             append([]string(nil), key.Scopes...),
		Environment:        key.Environment,
		OwnerUserID:        key.OwnerUserID,
		RateLimitPerMinute: s.effectiveRate(key),
		Remaining:          remaining,
		Reset:              reset,
	}, nil
}

// fetchKey loads the key record through the breaker under the
// validation deadline.
func (s *Service) fetchKey(ctx context.Context, keyID string) (*Key, error) {
	timeout := s.cfg.ValidationTimeout
	if timeout <= 0 {
		timeout = defaultValidationTimeout
	}

	key, err := s.breaker.Execute(func() (*Key, error) {
		lookupCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return s.store.Get(lookupCtx, keyID)
	})
	metrics.RecordBreakerRequest(breakerName, breakerResult(err))
	if err == nil {
		return key, nil
	}

	switch {
	case errors.Is(err, ErrKeyNotFound):
		return nil, ErrKeyNotFound
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, ErrUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return nil, ErrUnavailable
	default:
		logging.WithComponent("apikeys").Error().
			Err(err).
			Str("key_id", keyID).
			Msg("key store lookup failed")
		return nil, ErrUnavailable
	}
}

func missingScopes(key *Key, required []string) []string {
	var missing []string
	for _, scope := range required {
		if !key.HasScope(scope) {
			missing = append(missing, scope)
		}
	}
	return missing
}

func (s *Service) effectiveRate(key *Key) int {
	if key.RateLimitPerMinute > 0 {
		return key.RateLimitPerMinute
	}
	if s.cfg.DefaultRateLimit > 0 {
		return s.cfg.DefaultRateLimit
	}
	return 100
}

// allowKeyRequest consumes one token from the key's bucket and reports
// the remaining budget plus when the next token becomes available.
func (s *Service) allowKeyRequest(key *Key) (allowed bool, remaining int, reset time.Time) {
	perMinute := s.effectiveRate(key)
	now := time.Now()

	s.mu.Lock()
	kl, ok := s.limiters[key.ID]
	if !ok || kl.perMinute != perMinute {
		kl = &keyLimiter{
			limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
			perMinute: perMinute,
		}
		s.limiters[key.ID] = kl
	}
	kl.lastAccess = now
	s.mu.Unlock()

	allowed = kl.limiter.Allow()
	remaining = int(kl.limiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}
	if remaining > 0 {
		reset = now
	} else {
		reset = now.Add(time.Minute / time.Duration(perMinute))
	}
	return allowed, remaining, reset
}

// sweepLimiters drops buckets idle past limiterIdleTTL and returns the
// number still tracked.
func (s *Service) sweepLimiters(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, kl := range s.limiters {
		if now.Sub(kl.lastAccess) > limiterIdleTTL {
			delete(s.limiters, id)
		}
	}
	return len(s.limiters)
}

// recordUse updates usage accounting off the request path.
func (s *Service) recordUse(keyID, clientIP, origin string, elapsed time.Duration) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), accountingTimeout)
		defer cancel()

		now := time.Now().UTC()
		if err := s.store.Touch(ctx, keyID, now); err != nil {
			logging.WithComponent("apikeys").Debug().
				Err(err).
				Str("key_id", keyID).
				Msg("key touch failed")
		}
		rec := &UsageRecord{
			ID:             uuid.NewString(),
			KeyID:          keyID,
			Timestamp:      now,
			Event:          UsageEventRequest,
			IP:             clientIP,
			Origin:         origin,
			ResponseTimeMs: elapsed.Milliseconds(),
		}
		if err := s.store.AppendUsage(ctx, rec); err != nil {
			logging.WithComponent("apikeys").Debug().
				Err(err).
				Str("key_id", keyID).
				Msg("usage record write failed")
		}
	}()
}

// recordViolation logs a rejected use off the request path.
func (s *Service) recordViolation(keyID, clientIP, origin, detail string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), accountingTimeout)
		defer cancel()

		rec := &UsageRecord{
			ID:        uuid.NewString(),
			KeyID:     keyID,
			Timestamp: time.Now().UTC(),
			Event:     UsageEventSecurityViolation,
			IP:        clientIP,
			Origin:    origin,
			Detail:    detail,
		}
		if err := s.store.AppendUsage(ctx, rec); err != nil {
			logging.WithComponent("apikeys").Debug().
				Err(err).
				Str("key_id", keyID).
				Msg("violation record write failed")
		}
	}()
}

// CreateKey mints a new key and stores its record. The returned rawKey
// is shown exactly once; only its hash is persisted.
func (s *Service) CreateKey(ctx context.Context, req CreateKeyRequest) (*Key, string, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, "", fmt.Errorf("key name is required")
	}

	env := req.Environment
	if env == "" {
		env = s.env
	}
	if env != EnvironmentLive && env != EnvironmentTest {
		return nil, "", fmt.Errorf("invalid key environment %q", env)
	}

	id, rawKey, secret, err := GenerateKey(env)
	if err != nil {
		metrics.RecordKeyOperation("create", false)
		return nil, "", err
	}
	hash, err := HashSecret(secret, s.pepper, s.cfg.BcryptCost)
	if err != nil {
		metrics.RecordKeyOperation("create", false)
		return nil, "", err
	}

	now := time.Now().UTC()
	key := &Key{
		ID:                 id,
		Name:               name,
		Prefix:             DisplayPrefix(env, id),
		Hash:               hash,
		Scopes:             append([]string(nil), req.Scopes...),
		Environment:        env,
		OwnerUserID:        req.OwnerUserID,
		RateLimitPerMinute: req.RateLimitPerMinute,
		AllowedIPs:         append([]string(nil), req.AllowedIPs...),
		AllowedOrigins:     append([]string(nil), req.AllowedOrigins...),
		CreatedAt:          now,
	}
	if req.ExpiresIn > 0 {
		exp := now.Add(req.ExpiresIn)
		key.ExpiresAt = &exp
	}

	if err := s.store.Put(ctx, key); err != nil {
		metrics.RecordKeyOperation("create", false)
		return nil, "", fmt.Errorf("store new key: %w", err)
	}
	metrics.RecordKeyOperation("create", true)

	logging.WithComponent("apikeys").Info().
		Str("key_id", key.ID).
		Str("name", key.Name).
		Str("environment", key.Environment).
		Msg("API key created")

	return key, rawKey, nil
}

// GetKey returns one key record.
func (s *Service) GetKey(ctx context.Context, id string) (*Key, error) {
	return s.store.Get(ctx, id)
}

// ListKeys returns all key records, newest first.
func (s *Service) ListKeys(ctx context.Context) ([]*Key, error) {
	return s.store.List(ctx)
}

// RevokeKey marks a key revoked. Revocation is permanent; revoking an
// already-revoked key is a no-op.
func (s *Service) RevokeKey(ctx context.Context, id, revokedBy string) (*Key, error) {
	key, err := s.store.Get(ctx, id)
	if err != nil {
		metrics.RecordKeyOperation("revoke", false)
		return nil, err
	}
	if key.Revoked {
		return key, nil
	}

	now := time.Now().UTC()
	key.Revoked = true
	key.RevokedAt = &now
	key.RevokedBy = revokedBy
	if err := s.store.Put(ctx, key); err != nil {
		metrics.RecordKeyOperation("revoke", false)
		return nil, fmt.Errorf("store revoked key: %w", err)
	}
	metrics.RecordKeyOperation("revoke", true)

	logging.WithComponent("apikeys").Info().
		Str("key_id", key.ID).
		Str("revoked_by", revokedBy).
		Msg("API key revoked")

	return key, nil
}

// DeleteKey removes a key record and its usage log.
func (s *Service) DeleteKey(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		metrics.RecordKeyOperation("delete", false)
		return err
	}
	metrics.RecordKeyOperation("delete", true)

	s.mu.Lock()
	delete(s.limiters, id)
	s.mu.Unlock()

	logging.WithComponent("apikeys").Info().
		Str("key_id", id).
		Msg("API key deleted")
	return nil
}

// Usage returns the newest usage records for a key.
func (s *Service) Usage(ctx context.Context, keyID string, limit int) ([]*UsageRecord, error) {
	if _, err := s.store.Get(ctx, keyID); err != nil {
		return nil, err
	}
	return s.store.Usage(ctx, keyID, limit)
}

// ActiveKeyCount counts keys that are neither revoked nor expired.
func (s *Service) ActiveKeyCount(ctx context.Context) (int64, error) {
	keys, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, key := range keys {
		if !key.Revoked && !key.IsExpired() {
			n++
		}
	}
	return n, nil
}

// BreakerState reports the current breaker state for health output.
func (s *Service) BreakerState() string {
	return s.breaker.State().String()
}

// Close releases the underlying store.
func (s *Service) Close() error {
	return s.store.Close()
}
