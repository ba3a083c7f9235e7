// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package audit

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/Coolhgg/relife-gateway/internal/metrics"
)

// DefaultBufferCap is the maximum number of entries the buffer holds.
const DefaultBufferCap = 1000

// DefaultRetainOnEvict is how many recent entries survive an eviction.
const DefaultRetainOnEvict = 500

// Buffer is the bounded in-memory audit trail. An append that would
// exceed the cap discards all but the most recent retain entries, then
// appends. With the defaults, appending entry 1001 leaves 501 entries.
//
// The buffer is safe for concurrent use. It is intentionally not a
// system of record: entries not yet drained by a forwarder are lost on
// restart.
type Buffer struct {
	mu      sync.RWMutex
	entries []Entry
	cap     int
	retain  int

	appended  uint64
	evictions uint64
	discarded uint64
}

// NewBuffer creates a buffer with the given capacity and retention.
// Non-positive or inconsistent values fall back to the defaults.
func NewBuffer(capacity, retain int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCap
	}
	if retain <= 0 || retain >= capacity {
		retain = capacity / 2
	}
	return &Buffer{
		entries: make([]Entry, 0, capacity),
		cap:     capacity,
		retain:  retain,
	}
}

// Append adds an entry, evicting old entries first when the buffer is
// full. Never fails and never blocks on anything but the mutex.
func (b *Buffer) Append(e Entry) {
	b.mu.Lock()
	if len(b.entries) >= b.cap {
		discard := len(b.entries) - b.retain
		kept := make([]Entry, b.retain, b.cap)
		copy(kept, b.entries[discard:])
		b.entries = kept
		b.evictions++
		b.discarded += uint64(discard)
		metrics.RecordAuditEviction(discard)
	}
	b.entries = append(b.entries, e)
	b.appended++
	size := len(b.entries)
	b.mu.Unlock()

	metrics.SetAuditStoreEntries(size)
}

// Recent returns up to n entries, newest first. n <= 0 applies
// DefaultQueryLimit.
func (b *Buffer) Recent(n int) []Entry {
	if n <= 0 {
		n = DefaultQueryLimit
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n > len(b.entries) {
		n = len(b.entries)
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = b.entries[len(b.entries)-1-i]
	}
	return out
}

// Query returns entries matching the filter, newest first.
func (b *Buffer) Query(filter QueryFilter) []Entry {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Entry, 0, limit)
	skipped := 0
	for i := len(b.entries) - 1; i >= 0; i-- {
		e := b.entries[i]
		if !matchesFilter(e, filter) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, e)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Len returns the current number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Clear removes all entries. Intended for tests.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.entries = b.entries[:0]
	b.mu.Unlock()
	metrics.SetAuditStoreEntries(0)
}

func matchesFilter(e Entry, filter QueryFilter) bool {
	if len(filter.Types) > 0 {
		found := false
		for _, t := range filter.Types {
			if e.Event == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.ActorID != "" && e.ActorID != filter.ActorID {
		return false
	}
	if filter.Endpoint != "" && !strings.Contains(e.Endpoint, filter.Endpoint) {
		return false
	}
	if !filter.Since.IsZero() && e.Timestamp.Before(filter.Since) {
		return false
	}
	if !filter.Until.IsZero() && e.Timestamp.After(filter.Until) {
		return false
	}
	return true
}

// Stats summarizes the buffer state for the admin API and health checks.
type Stats struct {
	Entries    int                  `json:"entries"`
	Capacity   int                  `json:"capacity"`
	Appended   uint64               `json:"appended"`
	Evictions  uint64               `json:"evictions"`
	Discarded  uint64               `json:"discarded"`
	ByEvent    map[EventType]uint64 `json:"byEvent"`
	OldestTime *time.Time           `json:"oldest,omitempty"`
	NewestTime *time.Time           `json:"newest,omitempty"`
}

// Stats computes aggregate counts over the buffered entries.
func (b *Buffer) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Stats{
		Entries:   len(b.entries),
		Capacity:  b.cap,
		Appended:  b.appended,
		Evictions: b.evictions,
		Discarded: b.discarded,
		ByEvent:   make(map[EventType]uint64),
	}
	for i := range b.entries {
		s.ByEvent[b.entries[i].Event]++
	}
	if len(b.entries) > 0 {
		oldest := b.entries[0].Timestamp
		newest := b.entries[len(b.entries)-1].Timestamp
		s.OldestTime = &oldest
		s.NewestTime = &newest
	}
	return s
}

// Exporter serializes audit entries for download.
type Exporter interface {
	// Export serializes the entries.
	Export(entries []Entry) ([]byte, error)

	// ContentType returns the MIME type of the exported data.
	ContentType() string

	// FileExtension returns the suggested file extension.
	FileExtension() string
}

// JSONExporter exports entries as an indented JSON array.
type JSONExporter struct{}

// Export implements Exporter.
func (e *JSONExporter) Export(entries []Entry) ([]byte, error) {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal audit entries: %w", err)
	}
	return data, nil
}

// ContentType implements Exporter.
func (e *JSONExporter) ContentType() string { return "application/json" }

// FileExtension implements Exporter.
func (e *JSONExporter) FileExtension() string { return "json" }

// CEFExporter exports entries in ArcSight Common Event Format, one
// event per line, for SIEM ingestion.
type CEFExporter struct {
	// Vendor, Product and Version populate the CEF header.
	Vendor  string
	Product string
	Version string
}

// NewCEFExporter returns a CEF exporter with gateway identity fields.
func NewCEFExporter() *CEFExporter {
	return &CEFExporter{
		Vendor:  "Coolhgg",
		Product: "Relife Gateway",
		Version: "1.0",
	}
}

// Export implements Exporter.
func (e *CEFExporter) Export(entries []Entry) ([]byte, error) {
	var sb strings.Builder
	for i := range entries {
		sb.WriteString(e.formatEntry(&entries[i]))
		sb.WriteByte('\n')
	}
	return []byte(sb.String()), nil
}

// ContentType implements Exporter.
func (e *CEFExporter) ContentType() string { return "text/plain" }

// FileExtension implements Exporter.
func (e *CEFExporter) FileExtension() string { return "cef" }

// formatEntry renders one CEF event:
// CEF:0|Vendor|Product|Version|SignatureID|Name|Severity|Extension
func (e *CEFExporter) formatEntry(entry *Entry) string {
	return fmt.Sprintf("CEF:0|%s|%s|%s|%s|%s|%d|%s",
		cefEscapeHeader(e.Vendor),
		cefEscapeHeader(e.Product),
		cefEscapeHeader(e.Version),
		cefEscapeHeader(string(entry.Event)),
		cefEscapeHeader(eventName(entry.Event)),
		cefSeverity(entry.Event),
		buildCEFExtension(entry),
	)
}

// eventName maps event types to human-readable CEF event names.
func eventName(t EventType) string {
	switch t {
	case EventAuthSuccess:
		return "Authentication Succeeded"
	case EventAuthFailure:
		return "Authentication Failed"
	case EventAuthError:
		return "Authentication Error"
	case EventAuthzFailure:
		return "Authorization Denied"
	case EventValidationFailure:
		return "Request Validation Failed"
	case EventAPIRequest:
		return "API Request"
	case EventAPIResponse:
		return "API Response"
	case EventSecurityError:
		return "Security Violation"
	default:
		return string(t)
	}
}

// cefSeverity maps event types to the CEF 0-10 scale.
func cefSeverity(t EventType) int {
	switch t {
	case EventSecurityError:
		return 9
	case EventAuthzFailure:
		return 7
	case EventAuthFailure, EventAuthError:
		return 6
	case EventValidationFailure:
		return 4
	case EventAuthSuccess:
		return 2
	default:
		return 1
	}
}

func buildCEFExtension(entry *Entry) string {
	var sb strings.Builder

	appendExt := func(key, value string) {
		if value == "" {
			return
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(key)
		sb.WriteByte('=')
		sb.WriteString(cefEscapeExtension(value))
	}

	appendExt("rt", fmt.Sprintf("%d", entry.Timestamp.UnixMilli()))
	appendExt("suser", entry.ActorID)
	appendExt("src", entry.IP)
	appendExt("request", entry.Endpoint)
	appendExt("requestMethod", entry.Method)
	appendExt("requestClientApplication", entry.UserAgent)
	if entry.SessionID != "" {
		appendExt("cs1Label", "sessionId")
		appendExt("cs1", entry.SessionID)
	}
	appendExt("externalId", entry.ID)

	if len(entry.Details) > 0 {
		if data, err := json.Marshal(entry.Details); err == nil {
			appendExt("msg", string(data))
		}
	}
	return sb.String()
}

// cefEscapeHeader escapes pipe and backslash in CEF header fields.
func cefEscapeHeader(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `|`, `\|`)
	return s
}

// cefEscapeExtension escapes equals, backslash and newlines in CEF
// extension values.
func cefEscapeExtension(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `=`, `\=`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\r", `\r`)
	return s
}
