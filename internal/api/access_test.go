// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Coolhgg/relife-gateway/internal/audit"
	"github.com/Coolhgg/relife-gateway/internal/auth"
)

func TestAccessLogRecordsRequestResponsePair(t *testing.T) {
	trail := newTestTrail(t)
	access := NewAccessLog(trail)

	handler := access.Record(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	identity := &auth.Identity{Method: auth.MethodJWT, User: &auth.UserIdentity{
		ID:        "admin",
		Role:      "admin",
		SessionID: "session_1_abc",
	}}
	req := httptest.NewRequest("PUT", "/api/v1/ai-parameters", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), identity))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	// The trail writer is async; wait for both entries to land.
	deadline := time.Now().Add(2 * time.Second)
	for trail.Buffer().Len() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("buffered entries = %d, want 2", trail.Buffer().Len())
		}
		time.Sleep(5 * time.Millisecond)
	}

	requests := trail.Buffer().Query(audit.QueryFilter{Types: []audit.EventType{audit.EventAPIRequest}})
	if len(requests) != 1 {
		t.Fatalf("api_request entries = %d, want 1", len(requests))
	}
	if requests[0].ActorID != "admin" {
		t.Errorf("request actor = %q, want admin", requests[0].ActorID)
	}
	if requests[0].SessionID != "session_1_abc" {
		t.Errorf("request session = %q, want session_1_abc", requests[0].SessionID)
	}

	responses := trail.Buffer().Query(audit.QueryFilter{Types: []audit.EventType{audit.EventAPIResponse}})
	if len(responses) != 1 {
		t.Fatalf("api_response entries = %d, want 1", len(responses))
	}
	if status, _ := responses[0].Details["status"].(int); status != http.StatusCreated {
		t.Errorf("response status detail = %v, want 201", responses[0].Details["status"])
	}
}

func TestAccessLogDefaultStatus(t *testing.T) {
	trail := newTestTrail(t)
	access := NewAccessLog(trail)

	// A handler that never calls WriteHeader reports 200.
	handler := access.Record(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	req := httptest.NewRequest("GET", "/api/v1/ai-parameters/u1", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	deadline := time.Now().Add(2 * time.Second)
	for trail.Buffer().Len() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("buffered entries = %d, want 2", trail.Buffer().Len())
		}
		time.Sleep(5 * time.Millisecond)
	}

	responses := trail.Buffer().Query(audit.QueryFilter{Types: []audit.EventType{audit.EventAPIResponse}})
	if len(responses) != 1 {
		t.Fatalf("api_response entries = %d, want 1", len(responses))
	}
	if status, _ := responses[0].Details["status"].(int); status != http.StatusOK {
		t.Errorf("response status detail = %v, want 200", responses[0].Details["status"])
	}
}
