// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

package bitrix

import "strings"

// EntityType identifies the CRM entity class an event refers to.
type EntityType string

// Entity types recognized in event names.
const (
	EntityContact EntityType = "contact"
	EntityCompany EntityType = "company"
	EntityDeal    EntityType = "deal"
	EntityProject EntityType = "project" // smart-process dynamic item
	EntityUnknown EntityType = ""
)

// Action identifies what happened to the entity.
type Action string

// Actions recognized in event names.
const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionUnknown Action = "unknown"
)

// entityPrefixes maps event-name prefixes to entity types. Order matters
// for overlapping prefixes; the current vocabulary has none, but first
// match wins regardless.
var entityPrefixes = []struct {
	prefix string
	entity EntityType
}{
	{"ONCRMCONTACT", EntityContact},
	{"ONCRMCOMPANY", EntityCompany},
	{"ONCRMDEAL", EntityDeal},
	{"ONCRM_DYNAMIC_ITEM", EntityProject},
}

// actionSuffixes maps event-name suffixes to actions, first match wins.
var actionSuffixes = []struct {
	suffix string
	action Action
}{
	{"ADD", ActionCreate},
	{"UPDATE", ActionUpdate},
	{"DELETE", ActionDelete},
}

// EntityTypeFor resolves the entity type from a CRM event name by prefix.
// Unrecognized names yield EntityUnknown; callers treat that as a no-op,
// not an error ("ignore what we don't understand").
func EntityTypeFor(event string) EntityType {
	upper := strings.ToUpper(event)
	for _, p := range entityPrefixes {
		if strings.HasPrefix(upper, p.prefix) {
			return p.entity
		}
	}
	return EntityUnknown
}

// ActionFor resolves the action from a CRM event name by suffix.
// Unrecognized suffixes yield ActionUnknown.
func ActionFor(event string) Action {
	upper := strings.ToUpper(event)
	for _, s := range actionSuffixes {
		if strings.HasSuffix(upper, s.suffix) {
			return s.action
		}
	}
	return ActionUnknown
}
