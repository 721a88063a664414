// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

package store

import "github.com/dkurguzov/b24sync/internal/models"

// Companies returns the full company collection keyed by CRM ID.
func (s *Store) Companies() map[string]models.Company {
	return readCollection[models.Company](s, CollectionCompanies)
}

// GetCompany looks up a company by its CRM identifier.
func (s *Store) GetCompany(id string) (models.Company, bool) {
	c, ok := s.Companies()[id]
	return c, ok
}

// UpsertCompany writes a company keyed by CRM ID, preserving created_at on
// overwrite.
func (s *Store) UpsertCompany(c models.Company) error {
	companies := readCollection[models.Company](s, CollectionCompanies)
	if prev, ok := companies[c.ID]; ok {
		c.CreatedAt = prev.CreatedAt
	}
	companies[c.ID] = c
	return writeCollection(s, CollectionCompanies, companies)
}
