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

	"github.com/Coolhgg/relife-gateway/internal/audit"
	"github.com/Coolhgg/relife-gateway/internal/config"
	"github.com/Coolhgg/relife-gateway/internal/logging"
	"github.com/Coolhgg/relife-gateway/internal/response"
)

// exportQueryLimit bounds one export download.
const exportQueryLimit = 10000

// AuditHandlers serves the admin audit routes over the bounded buffer.
type AuditHandlers struct {
	buffer *audit.Buffer
	api    config.APIConfig
}

// NewAuditHandlers builds the handlers around the audit buffer.
func NewAuditHandlers(buffer *audit.Buffer, api config.APIConfig) *AuditHandlers {
	return &AuditHandlers{buffer: buffer, api: api}
}

// ListEvents returns buffered audit entries, recent first, narrowed by
// the query parameters: type (repeatable), actor_id, endpoint, since,
// until, limit, offset.
// GET /api/v1/admin/audit/events
func (h *AuditHandlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}

	entries := h.buffer.Query(filter)
	response.Success(w, map[string]interface{}{
		"events": entries,
		"count":  len(entries),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// Stats returns aggregate counts over the buffered entries.
// GET /api/v1/admin/audit/stats
func (h *AuditHandlers) Stats(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, h.buffer.Stats())
}

// Export downloads buffered entries as JSON or CEF.
// GET /api/v1/admin/audit/export?format=json|cef
func (h *AuditHandlers) Export(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}
	filter.Limit = exportQueryLimit
	filter.Offset = 0

	var exporter audit.Exporter
	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		exporter = &audit.JSONExporter{}
	case "cef":
		exporter = audit.NewCEFExporter()
	default:
		response.Error(w, http.StatusBadRequest, response.CodeBadRequest,
			fmt.Sprintf("unsupported export format %q", format))
		return
	}

	entries := h.buffer.Query(filter)
	data, err := exporter.Export(entries)
	if err != nil {
		logging.CtxErr(r.Context(), err).Msg("audit export failed")
		response.Internal(w)
		return
	}

	w.Header().Set("Content-Type", exporter.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "audit-events."+exporter.FileExtension()))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logging.CtxErr(r.Context(), err).Msg("audit export write failed")
	}
}

// parseFilter builds a buffer query from the request parameters.
func (h *AuditHandlers) parseFilter(r *http.Request) (audit.QueryFilter, error) {
	q := r.URL.Query()
	filter := audit.QueryFilter{
		ActorID:  q.Get("actor_id"),
		Endpoint: q.Get("endpoint"),
		Limit:    pageLimit(r, h.api),
	}

	for _, t := range q["type"] {
		eventType := audit.EventType(t)
		if !eventType.Valid() {
			return filter, fmt.Errorf("unknown event type %q", t)
		}
		filter.Types = append(filter.Types, eventType)
	}

	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("since must be RFC 3339: %v", err)
		}
		filter.Since = ts
	}
	if v := q.Get("until"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("until must be RFC 3339: %v", err)
		}
		filter.Until = ts
	}

	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	return filter, nil
}
