// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

package dispatcher

import (
	"context"
	"fmt"

	"github.com/dkurguzov/b24sync/internal/logging"
	"github.com/dkurguzov/b24sync/internal/models"
)

// SyncManagers refreshes the manager directory from the CRM user list.
// The directory is reference data with no webhook events of its own, so
// it is replaced wholesale: run at startup and on demand from the admin
// API. Returns the number of managers stored.
func (d *Dispatcher) SyncManagers(ctx context.Context) (int, error) {
	users, err := d.client.ListUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list crm users: %w", err)
	}

	managers := make(map[string]models.Manager, len(users))
	for _, raw := range users {
		m := d.mapper.MapManager(raw)
		if m.BitrixID == "" {
			continue
		}
		managers[m.BitrixID] = m
	}

	if err := d.store.ReplaceManagers(managers); err != nil {
		return 0, fmt.Errorf("store managers: %w", err)
	}

	logging.Info().Int("managers", len(managers)).Msg("Manager directory synced")
	return len(managers), nil
}
