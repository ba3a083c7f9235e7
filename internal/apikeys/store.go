// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package apikeys

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists API keys and their usage log.
type Store interface {
	// Put creates or replaces a key record.
	Put(ctx context.Context, key *Key) error

	// Get fetches a key by ID, returning ErrKeyNotFound when absent.
	Get(ctx context.Context, id string) (*Key, error)

	// Delete removes a key and its usage records.
	Delete(ctx context.Context, id string) error

	// List returns all keys sorted by creation time, newest first.
	List(ctx context.Context) ([]*Key, error)

	// Touch updates LastUsedAt and increments UsageCount.
	Touch(ctx context.Context, id string, at time.Time) error

	// AppendUsage appends one usage record for a key.
	AppendUsage(ctx context.Context, rec *UsageRecord) error

	// Usage returns up to limit usage records for a key, newest first.
	Usage(ctx context.Context, keyID string, limit int) ([]*UsageRecord, error)

	// Close releases the store's resources.
	Close() error
}

// maxUsagePerKey bounds the in-memory usage log per key.
const maxUsagePerKey = 1000

// MemoryStore keeps keys in process memory. It backs tests and the
// "memory" store setting; production deployments use the Badger store.
type MemoryStore struct {
	mu    sync.RWMutex
	keys  map[string]*Key
	usage map[string][]*UsageRecord
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys:  make(map[string]*Key),
		usage: make(map[string][]*UsageRecord),
	}
}

// Put stores a copy of the key.
func (s *MemoryStore) Put(ctx context.Context, key *Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *key
	s.keys[key.ID] = &cp
	return nil
}

// Get returns a copy of the key, or ErrKeyNotFound.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[id]
	if !ok {
		return nil, ErrKeyNotFound
	}
	cp := *key
	return &cp, nil
}

// Delete removes the key and its usage log.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[id]; !ok {
		return ErrKeyNotFound
	}
	delete(s.keys, id)
	delete(s.usage, id)
	return nil
}

// List returns copies of all keys, newest first.
func (s *MemoryStore) List(ctx context.Context) ([]*Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Key, 0, len(s.keys))
	for _, key := range s.keys {
		cp := *key
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Touch records a successful use of the key.
func (s *MemoryStore) Touch(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[id]
	if !ok {
		return ErrKeyNotFound
	}
	t := at
	key.LastUsedAt = &t
	key.UsageCount++
	return nil
}

// AppendUsage appends a usage record, trimming the per-key log.
func (s *MemoryStore) AppendUsage(ctx context.Context, rec *UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	log := append(s.usage[rec.KeyID], &cp)
	if len(log) > maxUsagePerKey {
		log = log[len(log)-maxUsagePerKey:]
	}
	s.usage[rec.KeyID] = log
	return nil
}

// Usage returns up to limit records for the key, newest first.
func (s *MemoryStore) Usage(ctx context.Context, keyID string, limit int) ([]*UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.usage[keyID]
	if limit <= 0 || limit > len(log) {
		limit = len(log)
	}
	out := make([]*UsageRecord, 0, limit)
	for i := len(log) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *log[i]
		out = append(out, &cp)
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
