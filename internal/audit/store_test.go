// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package audit

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func testEntry(i int, event EventType) Entry {
	return Entry{
		ID:        fmt.Sprintf("entry-%d", i),
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Second),
		Event:     event,
		ActorID:   "user-1",
		IP:        "192.0.2.10",
		Endpoint:  "/api/v1/ai-parameters",
		Method:    "PUT",
	}
}

func TestBufferRetention(t *testing.T) {
	b := NewBuffer(1000, 500)

	for i := 0; i < 1000; i++ {
		b.Append(testEntry(i, EventAPIRequest))
	}
	if got := b.Len(); got != 1000 {
		t.Fatalf("Len() after 1000 appends = %d, want 1000", got)
	}

	// The append that would exceed the cap keeps only the most recent
	// 500 entries, then appends.
	b.Append(testEntry(1000, EventAPIRequest))

	if got := b.Len(); got != 501 {
		t.Errorf("Len() after 1001 appends = %d, want 501", got)
	}

	recent := b.Recent(1)
	if len(recent) != 1 || recent[0].ID != "entry-1000" {
		t.Errorf("newest entry = %+v, want entry-1000", recent)
	}

	// Oldest surviving entry is #500: entries 0-499 were discarded.
	all := b.Recent(501)
	if len(all) != 501 {
		t.Fatalf("Recent(501) returned %d entries, want 501", len(all))
	}
	if oldest := all[len(all)-1]; oldest.ID != "entry-500" {
		t.Errorf("oldest surviving entry = %s, want entry-500", oldest.ID)
	}
}

func TestBufferRetentionRepeats(t *testing.T) {
	b := NewBuffer(10, 5)

	for i := 0; i < 25; i++ {
		b.Append(testEntry(i, EventAPIRequest))
	}

	// Each eviction drops to 6 entries (5 kept + 1 appended); length
	// never exceeds the cap.
	if got := b.Len(); got > 10 {
		t.Errorf("Len() = %d, want <= 10", got)
	}
	if newest := b.Recent(1)[0]; newest.ID != "entry-24" {
		t.Errorf("newest entry = %s, want entry-24", newest.ID)
	}
}

func TestBufferRecentOrdering(t *testing.T) {
	b := NewBuffer(100, 50)
	for i := 0; i < 10; i++ {
		b.Append(testEntry(i, EventAPIRequest))
	}

	recent := b.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("Recent(3) returned %d entries, want 3", len(recent))
	}
	for i, want := range []string{"entry-9", "entry-8", "entry-7"} {
		if recent[i].ID != want {
			t.Errorf("Recent(3)[%d].ID = %s, want %s", i, recent[i].ID, want)
		}
	}

	if got := b.Recent(100); len(got) != 10 {
		t.Errorf("Recent(100) returned %d entries, want 10", len(got))
	}
}

func TestBufferQuery(t *testing.T) {
	b := NewBuffer(100, 50)
	b.Append(testEntry(0, EventAuthSuccess))
	b.Append(testEntry(1, EventAuthFailure))
	b.Append(testEntry(2, EventAuthFailure))
	b.Append(testEntry(3, EventAPIRequest))

	other := testEntry(4, EventAuthFailure)
	other.ActorID = "user-2"
	b.Append(other)

	tests := []struct {
		name    string
		filter  QueryFilter
		wantIDs []string
	}{
		{
			name:    "by type",
			filter:  QueryFilter{Types: []EventType{EventAuthFailure}},
			wantIDs: []string{"entry-4", "entry-2", "entry-1"},
		},
		{
			name:    "by type and actor",
			filter:  QueryFilter{Types: []EventType{EventAuthFailure}, ActorID: "user-1"},
			wantIDs: []string{"entry-2", "entry-1"},
		},
		{
			name:    "limit",
			filter:  QueryFilter{Limit: 2},
			wantIDs: []string{"entry-4", "entry-3"},
		},
		{
			name:    "offset",
			filter:  QueryFilter{Limit: 2, Offset: 2},
			wantIDs: []string{"entry-2", "entry-1"},
		},
		{
			name: "time range",
			filter: QueryFilter{
				Since: time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
				Until: time.Date(2026, 1, 1, 0, 0, 2, 0, time.UTC),
			},
			wantIDs: []string{"entry-2", "entry-1"},
		},
		{
			name:    "endpoint substring",
			filter:  QueryFilter{Endpoint: "ai-parameters"},
			wantIDs: []string{"entry-4", "entry-3", "entry-2", "entry-1", "entry-0"},
		},
		{
			name:    "no match",
			filter:  QueryFilter{ActorID: "nobody"},
			wantIDs: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.Query(tt.filter)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("Query() returned %d entries, want %d", len(got), len(tt.wantIDs))
			}
			for i, want := range tt.wantIDs {
				if got[i].ID != want {
					t.Errorf("Query()[%d].ID = %s, want %s", i, got[i].ID, want)
				}
			}
		})
	}
}

func TestBufferStats(t *testing.T) {
	b := NewBuffer(4, 2)
	b.Append(testEntry(0, EventAuthSuccess))
	b.Append(testEntry(1, EventAuthFailure))
	b.Append(testEntry(2, EventAuthFailure))
	b.Append(testEntry(3, EventAPIRequest))
	b.Append(testEntry(4, EventAPIRequest)) // evicts down to 2, then appends

	s := b.Stats()
	if s.Entries != 3 {
		t.Errorf("Stats.Entries = %d, want 3", s.Entries)
	}
	if s.Appended != 5 {
		t.Errorf("Stats.Appended = %d, want 5", s.Appended)
	}
	if s.Evictions != 1 {
		t.Errorf("Stats.Evictions = %d, want 1", s.Evictions)
	}
	if s.Discarded != 2 {
		t.Errorf("Stats.Discarded = %d, want 2", s.Discarded)
	}
	if s.ByEvent[EventAPIRequest] != 2 {
		t.Errorf("Stats.ByEvent[api_request] = %d, want 2", s.ByEvent[EventAPIRequest])
	}
	if s.OldestTime == nil || s.NewestTime == nil {
		t.Fatal("Stats times not set")
	}
	if !s.NewestTime.After(*s.OldestTime) {
		t.Errorf("NewestTime %v not after OldestTime %v", s.NewestTime, s.OldestTime)
	}
}

func TestNewBufferDefaults(t *testing.T) {
	b := NewBuffer(0, 0)
	if b.cap != DefaultBufferCap {
		t.Errorf("cap = %d, want %d", b.cap, DefaultBufferCap)
	}
	if b.retain != DefaultBufferCap/2 {
		t.Errorf("retain = %d, want %d", b.retain, DefaultBufferCap/2)
	}

	// Retain >= cap is inconsistent and falls back to cap/2.
	b = NewBuffer(100, 100)
	if b.retain != 50 {
		t.Errorf("retain = %d, want 50", b.retain)
	}
}

func TestJSONExporter(t *testing.T) {
	e := &JSONExporter{}
	entries := []Entry{testEntry(0, EventAuthSuccess)}

	data, err := e.Export(entries)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.Contains(string(data), `"auth_success"`) {
		t.Errorf("export missing event type: %s", data)
	}
	if e.ContentType() != "application/json" {
		t.Errorf("ContentType() = %s", e.ContentType())
	}
}

func TestCEFExporter(t *testing.T) {
	e := NewCEFExporter()
	entry := testEntry(0, EventSecurityError)
	entry.UserAgent = "curl/8.0"
	entry.SessionID = "session_1700000000000_abc123"

	data, err := e.Export([]Entry{entry})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	line := strings.TrimSpace(string(data))

	if !strings.HasPrefix(line, "CEF:0|Coolhgg|Relife Gateway|1.0|security_error|Security Violation|9|") {
		t.Errorf("CEF header = %s", line)
	}
	for _, want := range []string{"suser=user-1", "src=192.0.2.10", "request=/api/v1/ai-parameters", "externalId=entry-0"} {
		if !strings.Contains(line, want) {
			t.Errorf("CEF extension missing %q in %s", want, line)
		}
	}
}

func TestCEFEscaping(t *testing.T) {
	e := NewCEFExporter()
	entry := testEntry(0, EventAuthFailure)
	entry.ActorID = "user=with\\chars"
	entry.Endpoint = "/path|with|pipes"

	data, err := e.Export([]Entry{entry})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	line := string(data)

	if !strings.Contains(line, `suser=user\=with\\chars`) {
		t.Errorf("extension equals/backslash not escaped: %s", line)
	}
}

func TestCEFSeverity(t *testing.T) {
	tests := []struct {
		event EventType
		want  int
	}{
		{EventSecurityError, 9},
		{EventAuthzFailure, 7},
		{EventAuthFailure, 6},
		{EventAuthError, 6},
		{EventValidationFailure, 4},
		{EventAuthSuccess, 2},
		{EventAPIRequest, 1},
	}
	for _, tt := range tests {
		if got := cefSeverity(tt.event); got != tt.want {
			t.Errorf("cefSeverity(%s) = %d, want %d", tt.event, got, tt.want)
		}
	}
}
