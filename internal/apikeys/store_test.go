// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package apikeys

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

// storeUnderTest runs the same conformance checks against every Store
// implementation.
func storeUnderTest(t *testing.T, name string, open func(t *testing.T) Store) {
	t.Helper()
	t.Run(name, func(t *testing.T) {
		store := open(t)
		t.Cleanup(func() {
			if err := store.Close(); err != nil {
				t.Errorf("Close error = %v", err)
			}
		})
		testStoreConformance(t, store)
	})
}

func TestStores(t *testing.T) {
	storeUnderTest(t, "memory", func(t *testing.T) Store {
		return NewMemoryStore()
	})
	storeUnderTest(t, "badger", func(t *testing.T) Store {
		store, err := NewBadgerStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewBadgerStore error = %v", err)
		}
		return store
	})
}

func storedKey(t *testing.T, createdAt time.Time) *Key {
	t.Helper()
	return &Key{
		ID:          uuid.NewString(),
		Name:        "test key",
		Prefix:      "rlk_test_Ab12Cd34",
		Hash:        "$2a$04$notarealhashnotarealhashnotarealhash",
		Scopes:      []string{"parameters:read"},
		Environment: EnvironmentTest,
		CreatedAt:   createdAt,
	}
}

func testStoreConformance(t *testing.T, store Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := store.Get(ctx, uuid.NewString()); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrKeyNotFound", err)
	}

	older := storedKey(t, base)
	newer := storedKey(t, base.Add(time.Hour))
	for _, key := range []*Key{older, newer} {
		if err := store.Put(ctx, key); err != nil {
			t.Fatalf("Put error = %v", err)
		}
	}

	got, err := store.Get(ctx, older.ID)
	if err != nil {
		t.Fatalf("Get error = %v", err)
	}
	if got.Name != older.Name || got.Environment != older.Environment {
		t.Errorf("Get = %+v, want %+v", got, older)
	}
	if len(got.Scopes) != 1 || got.Scopes[0] != "parameters:read" {
		t.Errorf("Get scopes = %v, want [parameters:read]", got.Scopes)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List returned %d keys, want 2", len(list))
	}
	if list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Errorf("List order = [%s, %s], want newest first [%s, %s]",
			list[0].ID, list[1].ID, newer.ID, older.ID)
	}

	touchAt := base.Add(2 * time.Hour)
	if err := store.Touch(ctx, older.ID, touchAt); err != nil {
		t.Fatalf("Touch error = %v", err)
	}
	if err := store.Touch(ctx, older.ID, touchAt.Add(time.Minute)); err != nil {
		t.Fatalf("Touch error = %v", err)
	}
	got, err = store.Get(ctx, older.ID)
	if err != nil {
		t.Fatalf("Get after Touch error = %v", err)
	}
	if got.UsageCount != 2 {
		t.Errorf("UsageCount = %d, want 2", got.UsageCount)
	}
	if got.LastUsedAt == nil || !got.LastUsedAt.Equal(touchAt.Add(time.Minute)) {
		t.Errorf("LastUsedAt = %v, want %v", got.LastUsedAt, touchAt.Add(time.Minute))
	}
	if err := store.Touch(ctx, uuid.NewString(), touchAt); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Touch(unknown) error = %v, want ErrKeyNotFound", err)
	}

	for i := 0; i < 5; i++ {
		rec := &UsageRecord{
			ID:        uuid.NewString(),
			KeyID:     older.ID,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Event:     UsageEventRequest,
			IP:        fmt.Sprintf("10.0.0.%d", i),
		}
		if err := store.AppendUsage(ctx, rec); err != nil {
			t.Fatalf("AppendUsage error = %v", err)
		}
	}

	usage, err := store.Usage(ctx, older.ID, 3)
	if err != nil {
		t.Fatalf("Usage error = %v", err)
	}
	if len(usage) != 3 {
		t.Fatalf("Usage returned %d records, want 3", len(usage))
	}
	if usage[0].IP != "10.0.0.4" || usage[2].IP != "10.0.0.2" {
		t.Errorf("Usage order = [%s .. %s], want newest first [10.0.0.4 .. 10.0.0.2]",
			usage[0].IP, usage[2].IP)
	}

	all, err := store.Usage(ctx, older.ID, 0)
	if err != nil {
		t.Fatalf("Usage(limit=0) error = %v", err)
	}
	if len(all) != 5 {
		t.Errorf("Usage(limit=0) returned %d records, want 5", len(all))
	}

	if err := store.Delete(ctx, older.ID); err != nil {
		t.Fatalf("Delete error = %v", err)
	}
	if _, err := store.Get(ctx, older.ID); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get after Delete error = %v, want ErrKeyNotFound", err)
	}
	usage, err = store.Usage(ctx, older.ID, 0)
	if err != nil {
		t.Fatalf("Usage after Delete error = %v", err)
	}
	if len(usage) != 0 {
		t.Errorf("Usage after Delete returned %d records, want 0", len(usage))
	}
	if err := store.Delete(ctx, older.ID); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Delete(deleted) error = %v, want ErrKeyNotFound", err)
	}
}

func TestMemoryStoreUsageTrim(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	keyID := uuid.NewString()

	for i := 0; i < maxUsagePerKey+10; i++ {
		rec := &UsageRecord{
			ID:        uuid.NewString(),
			KeyID:     keyID,
			Timestamp: time.Now(),
			Event:     UsageEventRequest,
			Detail:    fmt.Sprintf("n=%d", i),
		}
		if err := store.AppendUsage(ctx, rec); err != nil {
			t.Fatalf("AppendUsage error = %v", err)
		}
	}

	usage, err := store.Usage(ctx, keyID, 0)
	if err != nil {
		t.Fatalf("Usage error = %v", err)
	}
	if len(usage) != maxUsagePerKey {
		t.Errorf("retained %d records, want %d", len(usage), maxUsagePerKey)
	}
	if usage[0].Detail != fmt.Sprintf("n=%d", maxUsagePerKey+9) {
		t.Errorf("newest record = %q, want n=%d", usage[0].Detail, maxUsagePerKey+9)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	key := storedKey(t, time.Now())
	if err := store.Put(ctx, key); err != nil {
		t.Fatalf("Put error = %v", err)
	}

	got, err := store.Get(ctx, key.ID)
	if err != nil {
		t.Fatalf("Get error = %v", err)
	}
	got.Name = "mutated"

	again, err := store.Get(ctx, key.ID)
	if err != nil {
		t.Fatalf("Get error = %v", err)
	}
	if again.Name != "test key" {
		t.Errorf("stored key mutated through returned copy: Name = %q", again.Name)
	}
}

func TestBadgerStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewBadgerStore(dir)
	if err != nil {
		t.Fatalf("NewBadgerStore error = %v", err)
	}
	key := storedKey(t, time.Now().UTC())
	if err := store.Put(ctx, key); err != nil {
		t.Fatalf("Put error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close error = %v", err)
	}

	reopened, err := NewBadgerStore(dir)
	if err != nil {
		t.Fatalf("NewBadgerStore(reopen) error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, key.ID)
	if err != nil {
		t.Fatalf("Get after reopen error = %v", err)
	}
	if got.Name != key.Name {
		t.Errorf("Name after reopen = %q, want %q", got.Name, key.Name)
	}
}
