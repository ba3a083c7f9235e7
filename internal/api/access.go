// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package api

import (
	"net/http"
	"time"

	"github.com/Coolhgg/relife-gateway/internal/audit"
	"github.com/Coolhgg/relife-gateway/internal/auth"
)

// AccessLog records paired api_request and api_response audit entries
// around the protected handlers.
type AccessLog struct {
	trail *audit.Trail
}

// NewAccessLog builds the stage around the audit trail.
func NewAccessLog(trail *audit.Trail) *AccessLog {
	return &AccessLog{trail: trail}
}

// Record emits api_request on entry and api_response with the final
// status and handler duration after the wrapped handler returns. It is
// mounted after authentication so both entries carry the resolved
// actor.
func (a *AccessLog) Record(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var actorID, sessionID string
		if identity, ok := auth.IdentityFromContext(r.Context()); ok {
			actorID = identity.ActorID()
			sessionID = identity.SessionID()
		}
		a.trail.RecordRequest(r, actorID, sessionID)

		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(ww, r)
		a.trail.RecordResponse(r, actorID, sessionID, ww.status, time.Since(start))
	}
}

// statusWriter captures the response status for the api_response entry.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
