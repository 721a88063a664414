// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

// Package journal keeps a short-lived, append-only record of every webhook
// delivery and its processing outcome in an embedded BadgerDB.
//
// The journal is diagnostic, not authoritative: entities live in the JSON
// collection store, and journal entries expire via Badger's native TTL.
// Losing the journal loses history, never data.
package journal

import (
	"context"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/dkurguzov/b24sync/internal/config"
	"github.com/dkurguzov/b24sync/internal/logging"
)

// keyPrefix namespaces journal entries so future key families can share the
// database. Keys embed a zero-padded nanosecond timestamp so lexicographic
// key order is delivery order.
const keyPrefix = "delivery:"

// gcDiscardRatio is Badger's value-log rewrite threshold.
const gcDiscardRatio = 0.5

// Entry is one recorded webhook delivery.
type Entry struct {
	ID         string    `json:"id"`
	Event      string    `json:"event"`
	EntityType string    `json:"entity_type"`
	Action     string    `json:"action"`
	EntityID   string    `json:"entity_id"`
	Outcome    string    `json:"outcome"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Journal is the badger-backed delivery log. A nil *Journal is valid and
// ignores all operations, which is how a disabled journal is represented.
type Journal struct {
	db         *badger.DB
	ttl        time.Duration
	gcInterval time.Duration
}

// Open opens (or creates) the journal database. Returns (nil, nil) when
// the journal is disabled in configuration.
func Open(cfg *config.JournalConfig) (*Journal, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Dur("ttl", cfg.TTL).
		Msg("Webhook journal opened")

	return &Journal{
		db:         db,
		ttl:        cfg.TTL,
		gcInterval: cfg.GCInterval,
	}, nil
}

// Record appends a delivery entry with the configured TTL.
func (j *Journal) Record(entry Entry) error {
	if j == nil {
		return nil
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	key := fmt.Sprintf("%s%020d:%s", keyPrefix, entry.ReceivedAt.UnixNano(), entry.ID)
	err = j.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), data)
		if j.ttl > 0 {
			e = e.WithTTL(j.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first. A nil journal returns an
// empty slice.
func (j *Journal) List(limit int) ([]Entry, error) {
	entries := []Entry{}
	if j == nil || limit <= 0 {
		return entries, nil
	}

	prefix := []byte(keyPrefix)
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts just past the last key of the prefix.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(entries) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var e Entry
				if err := json.Unmarshal(val, &e); err != nil {
					logging.Warn().Err(err).Msg("Skipping corrupt journal entry")
					return nil
				}
				entries = append(entries, e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	return entries, nil
}

// Serve runs the value-log garbage collector until the context is
// canceled. Implements suture.Service.
func (j *Journal) Serve(ctx context.Context) error {
	if j == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(j.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// Loop until there is nothing left to rewrite.
			for {
				if err := j.db.RunValueLogGC(gcDiscardRatio); err != nil {
					break
				}
			}
		}
	}
}

// String names the service in supervisor logs.
func (j *Journal) String() string {
	return "journal-gc"
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.db.Close()
}
