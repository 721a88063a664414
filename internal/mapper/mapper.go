// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

// Package mapper converts raw CRM payloads into local personal-account
// records.
//
// All field access indirects through the configured mapping tables because
// Bitrix24 custom-field codes are tenant-specific. Mapping is total: absent
// or unusable fields degrade to zero values ("", empty list, false) rather
// than failing, so a sparse CRM record still produces a valid local record.
package mapper

import (
	"fmt"
	"slices"
	"time"

	"github.com/dkurguzov/b24sync/internal/config"
	"github.com/dkurguzov/b24sync/internal/models"
)

// Mapper holds the tenant field-mapping tables and the clock used for
// personal-account ID generation.
type Mapper struct {
	fields *config.FieldMapConfig
	now    func() time.Time
}

// New creates a Mapper from the configured field tables.
func New(fields *config.FieldMapConfig) *Mapper {
	return &Mapper{
		fields: fields,
		now:    time.Now,
	}
}

// NewLKID generates a personal-account identifier for a contact. The
// format is LK-{unix-seconds}-{bitrix-id}; uniqueness comes from the CRM
// ID, the timestamp records when the account was first created.
func (m *Mapper) NewLKID(bitrixID string) string {
	return fmt.Sprintf("LK-%d-%s", m.now().Unix(), bitrixID)
}

// OptedIn reports whether a raw contact passes the opt-in gate. The gate
// is the configured opt_in field checked against the allow-list; a value
// that is absent or outside the list fails. When no opt_in field is
// configured the gate is disabled and every contact passes.
func (m *Mapper) OptedIn(raw models.Document) bool {
	code, ok := m.fields.Contact["opt_in"]
	if !ok || code == "" {
		return true
	}

	flex, ok := raw.Flex(code)
	if !ok {
		return false
	}
	value, ok := flex.First()
	if !ok {
		return false
	}
	return slices.Contains(m.fields.OptInAllowedValues, value)
}

// MapContact builds a local contact from a raw CRM contact. The returned
// record carries a freshly generated LK ID and created_at; the store
// replaces both with the stored values when the contact already exists.
func (m *Mapper) MapContact(raw models.Document) models.Contact {
	bitrixID := entityID(raw)
	now := m.now().UTC()

	return models.Contact{
		ID:        m.NewLKID(bitrixID),
		BitrixID:  bitrixID,
		Name:      m.contactField(raw, "name"),
		LastName:  m.contactField(raw, "last_name"),
		Email:     m.contactFlexFirst(raw, "email"),
		Phone:     m.contactFlexFirst(raw, "phone"),
		Company:   m.contactField(raw, "company"),
		ManagerID: m.contactField(raw, "manager_id"),
		Status:    m.contactField(raw, "status"),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MapCompany builds a local company from a raw CRM company.
func (m *Mapper) MapCompany(raw models.Document) models.Company {
	now := m.now().UTC()

	return models.Company{
		ID:        entityID(raw),
		Title:     m.companyField(raw, "title"),
		Email:     flexFirst(raw, m.fields.Company["email"]),
		Phone:     flexFirst(raw, m.fields.Company["phone"]),
		Industry:  m.companyField(raw, "industry"),
		Employees: m.companyField(raw, "employees"),
		Revenue:   m.companyField(raw, "revenue"),
		Address:   m.companyField(raw, "address"),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MapDeal builds a local deal from a raw CRM deal. Deals use the standard
// CRM schema, not tenant custom fields, so the codes are fixed.
func (m *Mapper) MapDeal(raw models.Document) models.Deal {
	now := m.now().UTC()

	return models.Deal{
		ID:          entityID(raw),
		Title:       raw.StringOr("TITLE", ""),
		Stage:       raw.StringOr("STAGE_ID", ""),
		Opportunity: raw.StringOr("OPPORTUNITY", ""),
		Currency:    raw.StringOr("CURRENCY_ID", ""),
		ContactID:   raw.StringOr("CONTACT_ID", ""),
		CompanyID:   raw.StringOr("COMPANY_ID", ""),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ContactLookup resolves a CRM contact ID to the locally stored contact.
type ContactLookup func(bitrixID string) (models.Contact, bool)

// MapProject builds a local project from a raw smart-process item.
//
// company_id is not stored on the CRM item; it is derived by following the
// item's client_id to the local contact and copying that contact's
// company. A missing contact (not yet synced, or filtered by the opt-in
// gate) leaves company_id empty.
func (m *Mapper) MapProject(raw models.Document, lookup ContactLookup) models.Project {
	now := m.now().UTC()

	p := models.Project{
		BitrixID:             entityID(raw),
		OrganizationName:     m.projectField(raw, "organization_name"),
		ObjectName:           m.projectField(raw, "object_name"),
		SystemTypes:          flexList(raw, m.fields.Project["system_types"]),
		Location:             m.projectField(raw, "location"),
		ImplementationDate:   m.projectField(raw, "implementation_date"),
		Status:               models.DefaultProjectStatus,
		ClientID:             m.projectField(raw, "client_id"),
		ManagerID:            m.projectField(raw, "manager_id"),
		EquipmentList:        flexList(raw, m.fields.Project["equipment_list"]),
		RequestType:          m.projectField(raw, "request_type"),
		TechnicalDescription: m.projectField(raw, "technical_description"),
		Competitors:          m.projectField(raw, "competitors"),
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if status := m.projectField(raw, "status"); status != "" {
		p.Status = status
	}
	if code := m.fields.Project["marketing_discount"]; code != "" {
		if b, ok := raw.Bool(code); ok {
			p.MarketingDiscount = b
		}
	}
	if p.ClientID != "" && lookup != nil {
		if contact, ok := lookup(p.ClientID); ok {
			p.CompanyID = contact.Company
		}
	}
	return p
}

// MapManager builds a manager directory record from a raw CRM user.
func (m *Mapper) MapManager(raw models.Document) models.Manager {
	phone := raw.StringOr("PERSONAL_MOBILE", "")
	if phone == "" {
		phone = raw.StringOr("WORK_PHONE", "")
	}

	return models.Manager{
		BitrixID:  entityID(raw),
		Name:      raw.StringOr("NAME", ""),
		LastName:  raw.StringOr("LAST_NAME", ""),
		Email:     raw.StringOr("EMAIL", ""),
		Phone:     phone,
		Position:  raw.StringOr("WORK_POSITION", ""),
		Photo:     raw.StringOr("PERSONAL_PHOTO", ""),
		UpdatedAt: m.now().UTC(),
	}
}

// entityID extracts the CRM identifier. Classic entities use "ID",
// smart-process items use "id".
func entityID(raw models.Document) string {
	if s, ok := raw.String("ID"); ok {
		return s
	}
	return raw.StringOr("id", "")
}

func (m *Mapper) contactField(raw models.Document, logical string) string {
	return raw.StringOr(m.fields.Contact[logical], "")
}

func (m *Mapper) companyField(raw models.Document, logical string) string {
	return raw.StringOr(m.fields.Company[logical], "")
}

func (m *Mapper) projectField(raw models.Document, logical string) string {
	return raw.StringOr(m.fields.Project[logical], "")
}

// contactFlexFirst reads a multi-valued contact field and keeps only the
// first value. Additional emails and phones are discarded.
func (m *Mapper) contactFlexFirst(raw models.Document, logical string) string {
	return flexFirst(raw, m.fields.Contact[logical])
}

func flexFirst(raw models.Document, code string) string {
	flex, ok := raw.Flex(code)
	if !ok {
		return ""
	}
	s, _ := flex.First()
	return s
}

func flexList(raw models.Document, code string) []string {
	flex, ok := raw.Flex(code)
	if !ok {
		return []string{}
	}
	return flex.List()
}
