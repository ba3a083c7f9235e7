// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Coolhgg/relife-gateway/internal/apikeys"
	"github.com/Coolhgg/relife-gateway/internal/audit"
	"github.com/Coolhgg/relife-gateway/internal/auth"
	"github.com/Coolhgg/relife-gateway/internal/authz"
	"github.com/Coolhgg/relife-gateway/internal/config"
	"github.com/Coolhgg/relife-gateway/internal/logging"
	"github.com/Coolhgg/relife-gateway/internal/metrics"
	"github.com/Coolhgg/relife-gateway/internal/middleware"
	"github.com/Coolhgg/relife-gateway/internal/response"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// outerRate is one IP-keyed route-group ceiling.
type outerRate struct {
	requests int
	window   time.Duration
}

// Route-group ceilings for the outer limiter. These sit above the class
// budgets so for any single caller the identity-aware class limiters
// fire first; the outer tier only absorbs floods.
var (
	outerAuthRate   = outerRate{requests: 30, window: time.Minute}
	outerAPIRate    = outerRate{requests: 300, window: time.Minute}
	outerHealthRate = outerRate{requests: 1000, window: time.Minute}
)

// Deps carries the long-lived services the router composes into the
// HTTP surface. All fields except Keys are required.
type Deps struct {
	Config   *config.Config
	JWT      *auth.JWTManager
	Keys     *apikeys.Service
	Enforcer *authz.Enforcer
	Trail    *audit.Trail
	Proxies  *auth.TrustedProxies
	Limiters *auth.Limiters
}

// Router wires the per-stage middleware and route handlers.
type Router struct {
	cfg *config.Config

	authn     *auth.Middleware
	session   *auth.Handlers
	csrf      *auth.CSRF
	limiters  *auth.Limiters
	authorize *authz.Middleware
	access    *AccessLog

	params     *ParameterHandlers
	keys       *KeyHandlers
	auditAdmin *AuditHandlers
	health     *HealthHandlers
}

// NewRouter builds the router from its dependencies.
func NewRouter(deps Deps) (*Router, error) {
	session, err := auth.NewHandlers(&deps.Config.Security, deps.JWT, deps.Trail, deps.Proxies)
	if err != nil {
		return nil, fmt.Errorf("build session handlers: %w", err)
	}

	// A typed-nil *apikeys.Service must become a nil interface so the
	// authentication middleware's nil check holds.
	var keyValidator auth.KeyValidator
	if deps.Keys != nil {
		keyValidator = deps.Keys
	}

	return &Router{
		cfg:        deps.Config,
		authn:      auth.NewMiddleware(deps.JWT, keyValidator, deps.Trail, deps.Proxies),
		session:    session,
		csrf:       auth.NewCSRF(deps.Config.Security.EffectiveCSRFSecret(), deps.Trail, deps.Proxies),
		limiters:   deps.Limiters,
		authorize:  authz.NewMiddleware(deps.Enforcer, deps.Trail),
		access:     NewAccessLog(deps.Trail),
		params:     NewParameterHandlers(NewParameterStore(), deps.Trail),
		keys:       NewKeyHandlers(deps.Keys, deps.Config.API),
		auditAdmin: NewAuditHandlers(deps.Trail.Buffer(), deps.Config.API),
		health:     NewHealthHandlers(deps.Keys, deps.Trail.Buffer(), deps.Config.Server.Environment),
	}, nil
}

// Setup assembles the full route tree and returns the root handler.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, order matters: the request ID must exist
	// before anything logs, the recoverer must wrap everything that can
	// panic, and CORS must answer OPTIONS preflight for every group.
	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(recoverer)
	r.Use(router.corsHandler())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, response.CodeNotFound, "Resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, response.CodeBadRequest, "Method not allowed")
	})

	router.registerAuthRoutes(r)
	router.registerParameterRoutes(r)
	router.registerAdminRoutes(r)
	router.registerOpsRoutes(r)

	return r
}

// registerAuthRoutes mounts the session endpoints. Login carries both
// the outer IP limiter and the auth class limiter: the outer tier caps
// floods before any work happens, the class limiter enforces the
// brute-force budget per client.
func (router *Router) registerAuthRoutes(r chi.Router) {
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(outerLimit(outerAuthRate))
		r.Use(chiMiddleware(auth.SecurityHeaders))
		r.Use(chiMiddleware(middleware.PrometheusMetrics))

		r.Post("/login", router.limiters.Limit(auth.ClassAuth, router.session.Login))

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware(router.authn.Authenticate))
			r.Post("/logout", router.limiters.Limit(auth.ClassGeneral,
				router.csrf.Protect(router.session.Logout)))
			r.Get("/me", router.limiters.Limit(auth.ClassGeneral, router.session.Me))
		})
	})
}

// registerParameterRoutes mounts the protected parameter surface.
func (router *Router) registerParameterRoutes(r chi.Router) {
	// Deployment-category updates also need parameters:deploy and draw
	// from the critical window. The category is known only after
	// validation, so the stricter chain hangs off the validated payload.
	update := router.csrf.Protect(router.params.Update)
	deployUpdate := router.authorize.Require(authz.PermParametersDeploy)(
		router.limiters.Limit(auth.ClassCritical, update))

	r.Route("/api/v1/ai-parameters", func(r chi.Router) {
		r.Use(outerLimit(outerAPIRate))
		r.Use(chiMiddleware(auth.SecurityHeaders))
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(chiMiddleware(middleware.Compression))
		r.Use(chiMiddleware(router.authn.Authenticate))
		r.Use(chiMiddleware(router.access.Record))

		r.Put("/", router.limiters.Limit(auth.ClassParameterUpdates,
			router.authorize.Require(authz.PermParametersWrite)(
				router.params.ValidateUpdate(
					routeByCategory(deployUpdate, update)))))

		r.Get("/{userId}", router.limiters.Limit(auth.ClassGeneral,
			router.authorize.Require(authz.PermParametersRead)(router.params.GetUser)))

		r.Get("/sessions/{sessionId}", router.limiters.Limit(auth.ClassGeneral,
			router.authorize.Require(authz.PermParametersRead)(router.params.GetSession)))
	})
}

// registerAdminRoutes mounts key management and audit operations.
// Key issuance and revocation draw from the critical window.
func (router *Router) registerAdminRoutes(r chi.Router) {
	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(outerLimit(outerAPIRate))
		r.Use(chiMiddleware(auth.SecurityHeaders))
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(chiMiddleware(router.authn.Authenticate))
		r.Use(chiMiddleware(router.access.Record))

		r.Route("/api-keys", func(r chi.Router) {
			requireKeys := router.authorize.Require(authz.PermAdminKeys)

			r.Post("/", router.limiters.Limit(auth.ClassCritical,
				requireKeys(router.csrf.Protect(router.keys.Create))))
			r.Get("/", router.limiters.Limit(auth.ClassGeneral,
				requireKeys(router.keys.List)))
			r.Delete("/{id}", router.limiters.Limit(auth.ClassCritical,
				requireKeys(router.csrf.Protect(router.keys.Revoke))))
			r.Get("/{id}/usage", router.limiters.Limit(auth.ClassGeneral,
				requireKeys(router.keys.Usage)))
		})

		r.Route("/audit", func(r chi.Router) {
			requireAudit := router.authorize.Require(authz.PermAdminAudit)

			r.Use(chiMiddleware(middleware.Compression))
			r.Get("/events", router.limiters.Limit(auth.ClassGeneral,
				requireAudit(router.auditAdmin.ListEvents)))
			r.Get("/stats", router.limiters.Limit(auth.ClassGeneral,
				requireAudit(router.auditAdmin.Stats)))
			r.Get("/export", router.limiters.Limit(auth.ClassGeneral,
				requireAudit(router.auditAdmin.Export)))
		})
	})
}

// registerOpsRoutes mounts the unauthenticated operational endpoints.
func (router *Router) registerOpsRoutes(r chi.Router) {
	// One limiter instance shared by both health paths: the budget
	// covers the probe surface, not each alias separately.
	healthLimit := outerLimit(outerHealthRate)

	r.Group(func(r chi.Router) {
		r.Use(healthLimit)
		r.Use(chiMiddleware(auth.SecurityHeaders))
		r.Use(chiMiddleware(middleware.PrometheusMetrics))

		r.Get("/api/v1/health", router.health.Status)
		r.Get("/healthz", router.health.Status)
	})

	// promhttp negotiates its own content encoding and bypasses the
	// envelope; mounted bare like every other exposition endpoint.
	r.Handle("/metrics", promhttp.Handler())
}

// corsHandler builds the global CORS middleware from ALLOWED_ORIGINS.
func (router *Router) corsHandler() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: router.cfg.Security.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key", "X-CSRF-Token", "X-Request-ID"},
		ExposedHeaders: []string{"X-RateLimit-Remaining", "X-RateLimit-Reset", "X-Request-ID", "Retry-After"},
		MaxAge:         86400,
	})
}

// chiMiddleware adapts HandlerFunc-shaped pipeline stages to chi's
// func(http.Handler) http.Handler middleware form.
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// outerLimit builds the IP-keyed route-group limiter that runs ahead of
// authentication. Keys come from the socket peer, not forwarded
// headers, so the tier cannot be widened by spoofing.
func outerLimit(rate outerRate) func(http.Handler) http.Handler {
	return httprate.Limit(rate.requests, rate.window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(http.HandlerFunc(outerLimitExceeded)),
	)
}

// outerLimitExceeded writes the standard rate-limit envelope when the
// outer tier trips. httprate sets Retry-After before invoking it.
func outerLimitExceeded(w http.ResponseWriter, r *http.Request) {
	retry := 60
	if v := w.Header().Get("Retry-After"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			retry = n
		}
	}
	metrics.RecordRateLimitRejection("ip")
	logging.Ctx(r.Context()).Warn().
		Str("path", r.URL.Path).
		Str("remote_addr", r.RemoteAddr).
		Msg("outer rate limit exceeded")
	response.RateLimited(w, "Too many requests, please try again later", retry)
}

// recoverer converts handler panics into the standard error envelope so
// a stack trace never reaches the client.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logging.Ctx(r.Context()).Error().
					Interface("panic", rec).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("panic recovered in handler")
				response.Internal(w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// routeByCategory sends deployment-category updates through the
// stricter chain once the validated payload is in context.
func routeByCategory(deployment, standard http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if upd, ok := UpdateFromContext(r.Context()); ok && upd.Category == CategoryDeployment {
			deployment(w, r)
			return
		}
		standard(w, r)
	}
}

// pathParam reads a route parameter, preferring the chi route context
// and falling back to the request's own path values so handlers stay
// testable without a router.
func pathParam(r *http.Request, name string) string {
	if v := chi.URLParam(r, name); v != "" {
		return v
	}
	return r.PathValue(name)
}
