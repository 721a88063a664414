// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

package store

import "github.com/dkurguzov/b24sync/internal/models"

// Deals returns the full deal collection keyed by CRM ID.
func (s *Store) Deals() map[string]models.Deal {
	return readCollection[models.Deal](s, CollectionDeals)
}

// GetDeal looks up a deal by its CRM identifier.
func (s *Store) GetDeal(id string) (models.Deal, bool) {
	d, ok := s.Deals()[id]
	return d, ok
}

// UpsertDeal writes a deal keyed by CRM ID, preserving created_at on
// overwrite. Create and update events share this path: a deal update for
// an ID the store has never seen simply creates it.
func (s *Store) UpsertDeal(d models.Deal) error {
	deals := readCollection[models.Deal](s, CollectionDeals)
	if prev, ok := deals[d.ID]; ok {
		d.CreatedAt = prev.CreatedAt
	}
	deals[d.ID] = d
	return writeCollection(s, CollectionDeals, deals)
}
