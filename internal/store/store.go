// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

// Package store persists synced records as one JSON file per collection.
//
// The format is deliberately simple: each collection is a single
// pretty-printed JSON object keyed by the record's stable identifier, and
// every write rewrites the whole file. There is no file locking and no
// atomic rename; concurrent writers are last-writer-wins. Reads swallow
// errors: a missing or malformed file is treated as an empty collection so
// a corrupted file degrades to "start over", never to a crash loop.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/dkurguzov/b24sync/internal/config"
	"github.com/dkurguzov/b24sync/internal/logging"
	"github.com/dkurguzov/b24sync/internal/metrics"
)

// Collection file basenames (".json" is appended).
const (
	CollectionContacts  = "contacts"
	CollectionCompanies = "companies"
	CollectionDeals     = "deals"
	CollectionProjects  = "projects"
	CollectionManagers  = "managers"
)

const collectionFilePerm = 0o644

// Store reads and writes the JSON collection files under a single data
// directory.
type Store struct {
	dir string
}

// New creates a Store, creating the data directory if needed.
func New(cfg *config.StorageConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}
	return &Store{dir: cfg.DataDir}, nil
}

func (s *Store) path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

// readCollection loads a collection file into a map. Missing and malformed
// files both yield an empty map.
func readCollection[T any](s *Store, collection string) map[string]T {
	out := make(map[string]T)

	data, err := os.ReadFile(s.path(collection))
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn().Err(err).Str("collection", collection).Msg("Failed to read collection file")
		}
		return out
	}

	if err := json.Unmarshal(data, &out); err != nil {
		logging.Warn().Err(err).Str("collection", collection).Msg("Malformed collection file, treating as empty")
		return make(map[string]T)
	}
	return out
}

// writeCollection rewrites a collection file in full.
func writeCollection[T any](s *Store, collection string, items map[string]T) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		metrics.StoreWrites.WithLabelValues(collection, "error").Inc()
		return fmt.Errorf("encode collection %s: %w", collection, err)
	}

	if err := os.WriteFile(s.path(collection), data, collectionFilePerm); err != nil {
		metrics.StoreWrites.WithLabelValues(collection, "error").Inc()
		return fmt.Errorf("write collection %s: %w", collection, err)
	}

	metrics.StoreWrites.WithLabelValues(collection, "ok").Inc()
	return nil
}

// Counts reports the number of records per collection, for the stats
// endpoint.
func (s *Store) Counts() map[string]int {
	counts := make(map[string]int, 5)
	for _, collection := range []string{
		CollectionContacts,
		CollectionCompanies,
		CollectionDeals,
		CollectionProjects,
		CollectionManagers,
	} {
		counts[collection] = len(readCollection[json.RawMessage](s, collection))
	}
	return counts
}
