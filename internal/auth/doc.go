// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

// Package auth implements the gateway's request protection stages:
// authentication, class-based rate limiting, CSRF verification, and the
// browser security headers.
//
// # Authentication
//
// Two credential paths are supported. A bearer JWT in the Authorization
// header yields a UserIdentity; an X-API-Key header is delegated to the
// key service and yields an APIKeyIdentity. When both headers are
// present the Authorization header wins. Requests with neither are
// rejected with NO_AUTH_METHOD before any other work happens.
//
// The resolved Identity travels in the request context as an immutable
// value. Later stages (authorization, rate limiting, CSRF) read it from
// there; nothing downstream re-parses credentials.
//
// # Rate limiting
//
// Four fixed-window classes protect route groups with different blast
// radii: general, auth, parameter_updates, and critical. Windows are
// keyed by the authenticated actor and fall back to the client IP for
// anonymous routes. Admin users holding the bypass_rate_limit
// permission skip the counters entirely. A supervised janitor sweeps
// idle windows.
//
// # CSRF
//
// Mutating bearer-authenticated requests must carry an X-CSRF-Token
// header whose value is derived from the session token by HMAC, so the
// token is useless without the matching JWT. API-key requests are
// exempt: they carry no browser-originated session.
//
// Middleware here keeps the func(http.HandlerFunc) http.HandlerFunc
// shape so stages compose directly and wrap cleanly into chi route
// groups.
package auth
