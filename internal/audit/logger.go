// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Coolhgg/relife-gateway/internal/logging"
	"github.com/Coolhgg/relife-gateway/internal/metrics"
)

// Config holds configuration for the audit trail service.
type Config struct {
	// BufferCap is the maximum number of buffered entries.
	BufferCap int

	// RetainOnEvict is how many recent entries survive an eviction.
	RetainOnEvict int

	// QueueSize bounds the async intake queue. Records offered while the
	// queue is full are dropped, never blocked on.
	QueueSize int

	// LogEvents mirrors each entry to the structured log.
	LogEvents bool
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BufferCap:     DefaultBufferCap,
		RetainOnEvict: DefaultRetainOnEvict,
		QueueSize:     1024,
		LogEvents:     false,
	}
}

// Trail records pipeline events into a bounded buffer through an async
// writer goroutine. Record never blocks the request path: when the
// intake queue is full the entry is dropped and counted.
//
// Trail implements suture.Service via Serve; the supervisor owns the
// writer goroutine's lifecycle. Entries recorded before Serve starts
// wait in the queue.
type Trail struct {
	cfg       Config
	buffer    *Buffer
	queue     chan Entry
	forwarder *Forwarder
}

// NewTrail creates the audit service with its backing buffer.
func NewTrail(cfg Config) *Trail {
	if cfg.BufferCap <= 0 {
		cfg.BufferCap = DefaultBufferCap
	}
	if cfg.RetainOnEvict <= 0 || cfg.RetainOnEvict >= cfg.BufferCap {
		cfg.RetainOnEvict = cfg.BufferCap / 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	return &Trail{
		cfg:    cfg,
		buffer: NewBuffer(cfg.BufferCap, cfg.RetainOnEvict),
		queue:  make(chan Entry, cfg.QueueSize),
	}
}

// AttachForwarder tees written entries to a NATS forwarder. Must be
// called before Serve.
func (t *Trail) AttachForwarder(f *Forwarder) {
	t.forwarder = f
}

// Buffer exposes the backing store for the admin query API.
func (t *Trail) Buffer() *Buffer {
	return t.buffer
}

// Serve drains the intake queue into the buffer until ctx is canceled,
// then flushes whatever is still queued.
func (t *Trail) Serve(ctx context.Context) error {
	for {
		select {
		case e := <-t.queue:
			t.write(e)
		case <-ctx.Done():
			t.flush()
			return ctx.Err()
		}
	}
}

func (t *Trail) String() string { return "audit.Trail" }

// flush writes all currently queued entries without blocking for more.
func (t *Trail) flush() {
	for {
		select {
		case e := <-t.queue:
			t.write(e)
		default:
			return
		}
	}
}

func (t *Trail) write(e Entry) {
	t.buffer.Append(e)
	metrics.RecordAuditEvent(string(e.Event))

	if t.forwarder != nil {
		t.forwarder.Offer(e)
	}

	if t.cfg.LogEvents {
		logging.Info().
			Str("audit_event", string(e.Event)).
			Str("actor", e.ActorID).
			Str("ip", e.IP).
			Str("endpoint", e.Endpoint).
			Msg("Audit event")
	}
}

// Record enqueues an entry for the writer. Assigns ID and timestamp if
// unset. Drops silently (counting the drop) when the queue is full.
func (t *Trail) Record(e Entry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	select {
	case t.queue <- e:
	default:
		metrics.RecordAuditDrop()
	}
}

// Recent returns the most recent n entries, newest first.
func (t *Trail) Recent(n int) []Entry {
	return t.buffer.Recent(n)
}

// RecordAuthSuccess records a successful authentication. Method is
// "jwt" or "api_key".
func (t *Trail) RecordAuthSuccess(r *http.Request, actorID, method, sessionID string) {
	e := NewEntry(EventAuthSuccess, r, actorID)
	e.SessionID = sessionID
	e.RequestID = logging.RequestIDFromContext(r.Context())
	e.Details = map[string]interface{}{"authMethod": method}
	t.Record(e)
}

// RecordAuthFailure records a rejected credential with the rejection
// reason (an error code, never the credential itself).
func (t *Trail) RecordAuthFailure(r *http.Request, method, reason string) {
	e := NewEntry(EventAuthFailure, r, "")
	e.RequestID = logging.RequestIDFromContext(r.Context())
	e.Details = map[string]interface{}{
		"authMethod": method,
		"reason":     reason,
	}
	t.Record(e)
}

// RecordAuthError records an unexpected internal authentication
// failure. The error text stays server-side.
func (t *Trail) RecordAuthError(r *http.Request, method string, err error) {
	e := NewEntry(EventAuthError, r, "")
	e.RequestID = logging.RequestIDFromContext(r.Context())
	details := map[string]interface{}{"authMethod": method}
	if err != nil {
		details["error"] = logging.SanitizeError(err.Error())
	}
	e.Details = details
	t.Record(e)
}

// RecordAuthzFailure records a denied authorization decision with the
// required and available sets.
func (t *Trail) RecordAuthzFailure(r *http.Request, actorID, method string, required, available []string) {
	e := NewEntry(EventAuthzFailure, r, actorID)
	e.RequestID = logging.RequestIDFromContext(r.Context())
	e.Details = map[string]interface{}{
		"authMethod": method,
		"required":   required,
		"available":  available,
	}
	t.Record(e)
}

// RecordValidationFailure records a payload or path-parameter rejection
// with the collected field violations.
func (t *Trail) RecordValidationFailure(r *http.Request, actorID string, violations interface{}) {
	e := NewEntry(EventValidationFailure, r, actorID)
	e.RequestID = logging.RequestIDFromContext(r.Context())
	e.Details = map[string]interface{}{"violations": violations}
	t.Record(e)
}

// RecordRequest records a request entering the protected pipeline.
func (t *Trail) RecordRequest(r *http.Request, actorID, sessionID string) {
	e := NewEntry(EventAPIRequest, r, actorID)
	e.SessionID = sessionID
	e.RequestID = logging.RequestIDFromContext(r.Context())
	t.Record(e)
}

// RecordResponse records the final status and handler duration for a
// completed request.
func (t *Trail) RecordResponse(r *http.Request, actorID, sessionID string, status int, duration time.Duration) {
	e := NewEntry(EventAPIResponse, r, actorID)
	e.SessionID = sessionID
	e.RequestID = logging.RequestIDFromContext(r.Context())
	e.Details = map[string]interface{}{
		"status":     status,
		"durationMs": duration.Milliseconds(),
	}
	t.Record(e)
}

// RecordSecurityError records suspicious activity such as CSRF token
// mismatches or revoked-key replays.
func (t *Trail) RecordSecurityError(r *http.Request, actorID, description string, details map[string]interface{}) {
	e := NewEntry(EventSecurityError, r, actorID)
	e.RequestID = logging.RequestIDFromContext(r.Context())
	if details == nil {
		details = make(map[string]interface{}, 1)
	}
	details["description"] = description
	e.Details = details
	t.Record(e)
}
