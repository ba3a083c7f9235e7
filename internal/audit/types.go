// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package audit

import (
	"net"
	"net/http"
	"strings"
	"time"
)

// EventType classifies an audit trail entry.
type EventType string

// Event types recorded by the gateway pipeline.
const (
	// EventAuthSuccess records a successful bearer or API-key authentication.
	EventAuthSuccess EventType = "auth_success"

	// EventAuthFailure records a rejected credential (bad token, bad key).
	EventAuthFailure EventType = "auth_failure"

	// EventAuthError records an unexpected internal failure during
	// authentication, as opposed to a rejected credential.
	EventAuthError EventType = "auth_error"

	// EventAuthzFailure records a permission or scope check that denied
	// an authenticated caller.
	EventAuthzFailure EventType = "authorization_failure"

	// EventValidationFailure records a request payload or path parameter
	// that failed validation.
	EventValidationFailure EventType = "validation_failure"

	// EventAPIRequest records a request entering the protected pipeline.
	EventAPIRequest EventType = "api_request"

	// EventAPIResponse records the response status and handler duration
	// for a completed request.
	EventAPIResponse EventType = "api_response"

	// EventSecurityError records suspicious activity that is neither a
	// plain auth failure nor an authz denial (CSRF mismatch, revoked key
	// replay, malformed key format).
	EventSecurityError EventType = "security_error"
)

// Valid reports whether t is one of the recognized event types.
func (t EventType) Valid() bool {
	switch t {
	case EventAuthSuccess, EventAuthFailure, EventAuthError,
		EventAuthzFailure, EventValidationFailure,
		EventAPIRequest, EventAPIResponse, EventSecurityError:
		return true
	}
	return false
}

// Entry is a single audit trail record. Entries are immutable once
// appended to the buffer.
type Entry struct {
	// ID uniquely identifies the entry (UUID).
	ID string `json:"id"`

	// Timestamp is when the entry was recorded (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Event classifies the entry.
	Event EventType `json:"event"`

	// ActorID identifies the authenticated caller: user ID for bearer
	// requests, key ID for API-key requests, "unknown" before
	// authentication completes.
	ActorID string `json:"actorId"`

	// IP is the resolved client address.
	IP string `json:"ip"`

	// UserAgent is the caller's User-Agent header, possibly truncated.
	UserAgent string `json:"userAgent"`

	// Endpoint is the request path.
	Endpoint string `json:"endpoint"`

	// Method is the HTTP method.
	Method string `json:"method,omitempty"`

	// Details carries event-specific structured fields: failure reasons,
	// required/available permission sets, response status and duration.
	Details map[string]interface{} `json:"details,omitempty"`

	// SessionID ties bearer-authenticated entries to a login session.
	SessionID string `json:"sessionId,omitempty"`

	// RequestID correlates the entry with request-scoped log lines.
	RequestID string `json:"requestId,omitempty"`
}

// QueryFilter narrows a buffer query. Zero values mean "no constraint".
type QueryFilter struct {
	// Types restricts results to the given event types.
	Types []EventType

	// ActorID restricts results to a single actor.
	ActorID string

	// Endpoint restricts results to entries whose endpoint contains the
	// given substring.
	Endpoint string

	// Since and Until bound the timestamp range (inclusive).
	Since time.Time
	Until time.Time

	// Limit caps the number of returned entries. Zero applies
	// DefaultQueryLimit.
	Limit int

	// Offset skips the first N matches (recent-first ordering).
	Offset int
}

// DefaultQueryLimit bounds unfiltered queries.
const DefaultQueryLimit = 100

// MaxUserAgentLength truncates absurd User-Agent headers before they
// enter the buffer.
const MaxUserAgentLength = 256

// unknownActor is recorded for entries emitted before authentication
// resolves an identity.
const unknownActor = "unknown"

// NewEntry builds an entry from a request, filling IP, User-Agent,
// endpoint and method. The caller supplies the event type and actor.
func NewEntry(event EventType, r *http.Request, actorID string) Entry {
	if actorID == "" {
		actorID = unknownActor
	}
	ua := r.UserAgent()
	if len(ua) > MaxUserAgentLength {
		ua = ua[:MaxUserAgentLength]
	}
	return Entry{
		Timestamp: time.Now().UTC(),
		Event:     event,
		ActorID:   actorID,
		IP:        ClientIP(r),
		UserAgent: ua,
		Endpoint:  r.URL.Path,
		Method:    r.Method,
	}
}

// ClientIP resolves the originating client address from proxy headers,
// falling back to the socket peer. Only the first X-Forwarded-For hop is
// considered.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		if net.ParseIP(rip) != nil {
			return rip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
