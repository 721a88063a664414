// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

package store

import "github.com/dkurguzov/b24sync/internal/models"

// Managers returns the full manager directory keyed by bitrix_id.
func (s *Store) Managers() map[string]models.Manager {
	return readCollection[models.Manager](s, CollectionManagers)
}

// ReplaceManagers overwrites the whole manager directory. The directory is
// reference data refreshed from the CRM user list, so a full replace is
// simpler and safer than per-record merging.
func (s *Store) ReplaceManagers(managers map[string]models.Manager) error {
	return writeCollection(s, CollectionManagers, managers)
}
