// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

// Package models defines the local personal-account (LK) schema and the raw
// CRM payload types shared across the service.
//
// All local records are keyed by the CRM-assigned identifier rendered as a
// string; bitrix_id is the stable join key across syncs. Foreign keys
// (company, client_id, manager_id) are NOT validated at write time — they
// may reference entities that were never synced, and consumers treat
// absence as "unknown", not as an error.
package models

import "time"

// Contact is the local personal-account record. There is no separate "LK"
// entity: the contact record doubles as the personal account, with ID
// generated as LK-{timestamp}-{bitrix_id} on first creation.
type Contact struct {
	ID        string `json:"id"`
	BitrixID  string `json:"bitrix_id"`
	Name      string `json:"name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Company   string `json:"company"`
	ManagerID string `json:"manager_id"`
	Status    string `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Company is a synced CRM company.
type Company struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Industry  string `json:"industry"`
	Employees string `json:"employees"`
	Revenue   string `json:"revenue"`
	Address   string `json:"address"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Deal is a synced CRM deal.
type Deal struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Stage       string `json:"stage"`
	Opportunity string `json:"opportunity"`
	Currency    string `json:"currency"`
	ContactID   string `json:"contact_id"`
	CompanyID   string `json:"company_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Project is a synced smart-process item.
//
// CompanyID is derived, not stored on the CRM item: it is resolved at
// mapping time by following ClientID to the local contact and copying that
// contact's company. When the contact is absent the field stays empty.
type Project struct {
	BitrixID             string   `json:"bitrix_id"`
	OrganizationName     string   `json:"organization_name"`
	ObjectName           string   `json:"object_name"`
	SystemTypes          []string `json:"system_types"`
	Location             string   `json:"location"`
	ImplementationDate   string   `json:"implementation_date"`
	Status               string   `json:"status"`
	ClientID             string   `json:"client_id"`
	CompanyID            string   `json:"company_id,omitempty"`
	ManagerID            string   `json:"manager_id"`
	EquipmentList        []string `json:"equipment_list"`
	RequestType          string   `json:"request_type"`
	TechnicalDescription string   `json:"technical_description"`
	Competitors          string   `json:"competitors"`
	MarketingDiscount    bool     `json:"marketing_discount"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Manager is read-only reference data for a CRM user.
type Manager struct {
	BitrixID string `json:"bitrix_id"`
	Name     string `json:"name"`
	LastName string `json:"last_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Position string `json:"position"`
	Photo    string `json:"photo"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultProjectStatus is the status applied when a smart-process item
// carries no status field.
const DefaultProjectStatus = "NEW"
