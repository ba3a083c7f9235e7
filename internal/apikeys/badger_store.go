// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package apikeys

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/Coolhgg/relife-gateway/internal/logging"
)

const (
	keyRecordPrefix = "key:"
	usagePrefix     = "usage:"

	// usageTTL expires usage records out of the store automatically.
	usageTTL = 30 * 24 * time.Hour
)

// BadgerStore persists keys in an embedded Badger database. Key records
// live under "key:<id>"; usage records live under
// "usage:<keyID>:<tsnano>:<uuid>" with a TTL so the log self-prunes.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) the key database at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.ValueLogFileSize = 16 << 20
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open key store at %s: %w", path, err)
	}

	logging.WithComponent("apikeys").Debug().
		Str("path", path).
		Msg("API key store opened")

	return &BadgerStore{db: db}, nil
}

func keyRecordKey(id string) []byte {
	return []byte(keyRecordPrefix + id)
}

func usageRecordKey(rec *UsageRecord) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", usagePrefix, rec.KeyID, rec.Timestamp.UnixNano(), rec.ID))
}

// Put creates or replaces a key record.
func (s *BadgerStore) Put(ctx context.Context, key *Key) error {
	data, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("marshal key %s: %w", key.ID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyRecordKey(key.ID), data)
	})
	if err != nil {
		return fmt.Errorf("store key %s: %w", key.ID, err)
	}
	return nil
}

// Get fetches a key by ID.
func (s *BadgerStore) Get(ctx context.Context, id string) (*Key, error) {
	var key Key
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyRecordKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &key)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load key %s: %w", id, err)
	}
	return &key, nil
}

// Delete removes a key and its usage records in one transaction.
func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyRecordKey(id)); err != nil {
			return err
		}
		if err := txn.Delete(keyRecordKey(id)); err != nil {
			return err
		}

		prefix := []byte(usagePrefix + id + ":")
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("delete key %s: %w", id, err)
	}
	return nil
}

// List returns all keys, newest first.
func (s *BadgerStore) List(ctx context.Context) ([]*Key, error) {
	var out []*Key
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(keyRecordPrefix)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var key Key
				if err := json.Unmarshal(val, &key); err != nil {
					return err
				}
				out = append(out, &key)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Touch updates LastUsedAt and UsageCount with a read-modify-write.
func (s *BadgerStore) Touch(ctx context.Context, id string, at time.Time) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(keyRecordKey(id))
		if err != nil {
			return err
		}
		var key Key
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &key)
		}); err != nil {
			return err
		}
		t := at
		key.LastUsedAt = &t
		key.UsageCount++
		data, err := json.Marshal(&key)
		if err != nil {
			return err
		}
		return txn.Set(keyRecordKey(id), data)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("touch key %s: %w", id, err)
	}
	return nil
}

// AppendUsage writes one usage record with the retention TTL.
func (s *BadgerStore) AppendUsage(ctx context.Context, rec *UsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal usage record: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(usageRecordKey(rec), data).WithTTL(usageTTL)
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("store usage record for key %s: %w", rec.KeyID, err)
	}
	return nil
}

// Usage returns up to limit records for the key, newest first. Records
// sort oldest first on disk, so the scan collects everything and trims
// from the tail.
func (s *BadgerStore) Usage(ctx context.Context, keyID string, limit int) ([]*UsageRecord, error) {
	var all []*UsageRecord
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(usagePrefix + keyID + ":")
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec UsageRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				all = append(all, &rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load usage for key %s: %w", keyID, err)
	}
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]*UsageRecord, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// RunGC triggers one value-log garbage collection pass. Badger returns
// ErrNoRewrite when there was nothing to collect, which is not an
// error for callers.
func (s *BadgerStore) RunGC() error {
	err := s.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

// Close flushes and closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
