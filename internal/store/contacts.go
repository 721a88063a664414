// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

package store

import "github.com/dkurguzov/b24sync/internal/models"

// Contacts returns the full contact collection keyed by bitrix_id.
func (s *Store) Contacts() map[string]models.Contact {
	return readCollection[models.Contact](s, CollectionContacts)
}

// GetContact looks up a contact by its CRM identifier.
func (s *Store) GetContact(bitrixID string) (models.Contact, bool) {
	c, ok := s.Contacts()[bitrixID]
	return c, ok
}

// UpsertContact writes a contact keyed by bitrix_id. When a record already
// exists, its personal-account ID and created_at survive the overwrite;
// everything else is replaced with the incoming state.
func (s *Store) UpsertContact(c models.Contact) (models.Contact, error) {
	contacts := readCollection[models.Contact](s, CollectionContacts)
	if prev, ok := contacts[c.BitrixID]; ok {
		c.ID = prev.ID
		c.CreatedAt = prev.CreatedAt
	}
	contacts[c.BitrixID] = c
	return c, writeCollection(s, CollectionContacts, contacts)
}

// MostRecentlyUpdated returns the contact with the latest updated_at, or
// false when the collection is empty. Linear scan; contact counts here are
// in the hundreds, not millions.
func (s *Store) MostRecentlyUpdated() (models.Contact, bool) {
	var latest models.Contact
	found := false
	for _, c := range s.Contacts() {
		if !found || c.UpdatedAt.After(latest.UpdatedAt) {
			latest = c
			found = true
		}
	}
	return latest, found
}
