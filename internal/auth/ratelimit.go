// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package auth

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Coolhgg/relife-gateway/internal/config"
	"github.com/Coolhgg/relife-gateway/internal/logging"
	"github.com/Coolhgg/relife-gateway/internal/metrics"
	"github.com/Coolhgg/relife-gateway/internal/response"
)

// Class names one rate-limit window class.
type Class string

const (
	ClassGeneral          Class = "general"
	ClassAuth             Class = "auth"
	ClassParameterUpdates Class = "parameter_updates"
	ClassCritical         Class = "critical"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Remaining int
	Reset     time.Time

	// RetryAfter is the whole seconds until the window expires,
	// populated on denials. Never less than 1.
	RetryAfter int
}

// window tracks one client's count within the current fixed window.
type window struct {
	count int
	start time.Time
}

// WindowLimiter admits up to max requests per client key within each
// fixed window. Windows are created lazily and restart once the elapsed
// time exceeds the window length.
type WindowLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string]*window
}

// NewWindowLimiter builds a limiter for one class.
func NewWindowLimiter(cfg config.WindowConfig) *WindowLimiter {
	return &WindowLimiter{
		window:  cfg.Window,
		max:     cfg.MaxRequests,
		entries: make(map[string]*window),
	}
}

// Allow consumes one slot for key.
func (l *WindowLimiter) Allow(key string) Decision {
	return l.allowAt(key, time.Now())
}

func (l *WindowLimiter) allowAt(key string, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || now.Sub(e.start) > l.window {
		e = &window{start: now}
		l.entries[key] = e
	}

	reset := e.start.Add(l.window)
	if e.count >= l.max {
		retry := int(math.Ceil(reset.Sub(now).Seconds()))
		if retry < 1 {
			retry = 1
		}
		return Decision{Allowed: false, Remaining: 0, Reset: reset, RetryAfter: retry}
	}

	e.count++
	return Decision{Allowed: true, Remaining: l.max - e.count, Reset: reset}
}

// sweep drops windows that have expired and returns the number still
// tracked.
func (l *WindowLimiter) sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.entries {
		if now.Sub(e.start) > l.window {
			delete(l.entries, key)
		}
	}
	return len(l.entries)
}

// Limiters bundles the four class limiters behind one middleware
// factory.
type Limiters struct {
	general          *WindowLimiter
	auth             *WindowLimiter
	parameterUpdates *WindowLimiter
	critical         *WindowLimiter

	disabled bool
	proxies  *TrustedProxies
	seclog   *logging.SecurityLogger
}

// NewLimiters builds the class limiters from configuration.
func NewLimiters(cfg config.RateLimitConfig, proxies *TrustedProxies) *Limiters {
	return &Limiters{
		general:          NewWindowLimiter(cfg.General),
		auth:             NewWindowLimiter(cfg.Auth),
		parameterUpdates: NewWindowLimiter(cfg.ParameterUpdates),
		critical:         NewWindowLimiter(cfg.Critical),
		disabled:         cfg.Disabled,
		proxies:          proxies,
		seclog:           logging.NewSecurityLogger(),
	}
}

func (l *Limiters) byClass(class Class) *WindowLimiter {
	switch class {
	case ClassAuth:
		return l.auth
	case ClassParameterUpdates:
		return l.parameterUpdates
	case ClassCritical:
		return l.critical
	default:
		return l.general
	}
}

func classMessage(class Class) string {
	switch class {
	case ClassAuth:
		return "Too many authentication attempts, please try again later"
	case ClassParameterUpdates:
		return "Too many parameter update requests, please slow down"
	case ClassCritical:
		return "Rate limit exceeded for critical operations"
	default:
		return "Too many requests, please try again later"
	}
}

// Limit enforces one class on the wrapped handler. Windows are keyed by
// the authenticated actor when an identity is present, else by client
// IP. Admin users holding bypass_rate_limit skip the counters.
func (l *Limiters) Limit(class Class, next http.HandlerFunc) http.HandlerFunc {
	if l.disabled {
		return next
	}
	limiter := l.byClass(class)

	return func(w http.ResponseWriter, r *http.Request) {
		clientKey := l.proxies.ClientIP(r)
		if identity, ok := IdentityFromContext(r.Context()); ok {
			if identity.IsAdmin() && identity.HasGrant(PermissionBypassRateLimit) {
				metrics.RecordRateLimitBypass()
				next(w, r)
				return
			}
			if actor := identity.ActorID(); actor != "" {
				clientKey = actor
			}
		}

		d := limiter.Allow(clientKey)
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
		if !d.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter))
			metrics.RecordRateLimitRejection(string(class))
			l.seclog.LogRateLimited(string(class), clientKey, l.proxies.ClientIP(r), r.URL.Path)
			response.RateLimited(w, classMessage(class), d.RetryAfter)
			return
		}
		next(w, r)
	}
}

// Sweep expires idle windows across all classes and updates the
// tracked-key gauges.
func (l *Limiters) Sweep(now time.Time) {
	for class, limiter := range map[Class]*WindowLimiter{
		ClassGeneral:          l.general,
		ClassAuth:             l.auth,
		ClassParameterUpdates: l.parameterUpdates,
		ClassCritical:         l.critical,
	} {
		metrics.SetRateLimitTrackedKeys(string(class), limiter.sweep(now))
	}
}

// defaultSweepInterval spaces janitor passes when the config leaves the
// interval unset.
const defaultSweepInterval = 5 * time.Minute

// Janitor periodically sweeps expired windows. It runs under the
// supervision tree.
type Janitor struct {
	limiters *Limiters
	interval time.Duration
}

// NewJanitor builds the sweep service. interval <= 0 uses the default.
func NewJanitor(limiters *Limiters, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Janitor{limiters: limiters, interval: interval}
}

// Serve sweeps until the context is cancelled. It satisfies
// suture.Service.
func (j *Janitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			j.limiters.Sweep(now)
		}
	}
}

// String names the service in supervisor logs.
func (j *Janitor) String() string { return "auth.RateLimitJanitor" }
