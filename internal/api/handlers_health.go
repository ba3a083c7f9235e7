// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/Coolhgg/relife-gateway/internal/apikeys"
	"github.com/Coolhgg/relife-gateway/internal/audit"
	"github.com/Coolhgg/relife-gateway/internal/response"
)

// HealthHandlers serves the component health endpoint.
type HealthHandlers struct {
	keys    *apikeys.Service
	buffer  *audit.Buffer
	env     string
	started time.Time
}

// NewHealthHandlers builds the health endpoint over the gateway's
// stateful components.
func NewHealthHandlers(keys *apikeys.Service, buffer *audit.Buffer, env string) *HealthHandlers {
	return &HealthHandlers{
		keys:    keys,
		buffer:  buffer,
		env:     env,
		started: time.Now(),
	}
}

// Status reports overall and per-component health. The response is
// always 200; degradation shows in the status field so probes keep a
// single success path and alerting reads the body.
// GET /api/v1/health, GET /healthz
func (h *HealthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	keyStore := map[string]interface{}{"status": "not_configured"}
	if h.keys != nil {
		storeStatus := "ok"
		var activeKeys int64
		if n, err := h.keys.ActiveKeyCount(r.Context()); err != nil {
			storeStatus = "error"
			status = "degraded"
		} else {
			activeKeys = n
		}

		breaker := strings.ToLower(h.keys.BreakerState())
		if breaker == "open" {
			status = "degraded"
		}
		keyStore = map[string]interface{}{
			"status":     storeStatus,
			"breaker":    breaker,
			"activeKeys": activeKeys,
		}
	}

	auditStats := h.buffer.Stats()

	response.Success(w, map[string]interface{}{
		"status":      status,
		"version":     Version,
		"environment": h.env,
		"uptime":      time.Since(h.started).Seconds(),
		"components": map[string]interface{}{
			"keyStore": keyStore,
			"audit": map[string]interface{}{
				"entries":   auditStats.Entries,
				"capacity":  auditStats.Capacity,
				"discarded": auditStats.Discarded,
			},
		},
	})
}
