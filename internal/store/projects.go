// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

package store

import "github.com/dkurguzov/b24sync/internal/models"

// Projects returns the full project collection keyed by bitrix_id.
func (s *Store) Projects() map[string]models.Project {
	return readCollection[models.Project](s, CollectionProjects)
}

// GetProject looks up a project by its CRM identifier.
func (s *Store) GetProject(bitrixID string) (models.Project, bool) {
	p, ok := s.Projects()[bitrixID]
	return p, ok
}

// UpsertProject writes a project keyed by bitrix_id, preserving created_at
// on overwrite.
func (s *Store) UpsertProject(p models.Project) error {
	projects := readCollection[models.Project](s, CollectionProjects)
	if prev, ok := projects[p.BitrixID]; ok {
		p.CreatedAt = prev.CreatedAt
	}
	projects[p.BitrixID] = p
	return writeCollection(s, CollectionProjects, projects)
}

// DeleteProject removes a project. Returns false without writing when the
// ID is absent.
func (s *Store) DeleteProject(bitrixID string) (bool, error) {
	projects := readCollection[models.Project](s, CollectionProjects)
	if _, ok := projects[bitrixID]; !ok {
		return false, nil
	}
	delete(projects, bitrixID)
	return true, writeCollection(s, CollectionProjects, projects)
}
