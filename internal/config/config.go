// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

// Package config loads and validates the service configuration.
//
// Configuration is layered via Koanf v2 (highest priority wins):
//
//  1. Environment variables
//  2. Optional YAML config file
//  3. Built-in defaults
//
// The resulting Config is an immutable value constructed once at startup and
// passed into each component constructor; no component reads the environment
// or any global configuration state on its own.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration object.
type Config struct {
	Bitrix   BitrixConfig   `koanf:"bitrix"`
	Server   ServerConfig   `koanf:"server"`
	Storage  StorageConfig  `koanf:"storage"`
	Journal  JournalConfig  `koanf:"journal"`
	Retry    RetryConfig    `koanf:"retry"`
	FieldMap FieldMapConfig `koanf:"fieldmap"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// BitrixConfig holds the outbound Bitrix24 REST connection and the inbound
// webhook acceptance settings.
type BitrixConfig struct {
	// WebhookBaseURL is the inbound-webhook REST base, including the
	// secret path segment, e.g. https://tenant.bitrix24.ru/rest/1/abc123.
	// Methods are invoked as POST {WebhookBaseURL}/{method}.json.
	WebhookBaseURL string `koanf:"webhook_base_url" validate:"required,url"`

	// ApplicationToken, when non-empty, is compared against the
	// auth.application_token field of inbound webhook envelopes. Equality
	// comparison only; there is no cryptographic verification of webhook
	// authenticity (known gap inherited from the webhook contract).
	ApplicationToken string `koanf:"application_token"`

	// EnabledEvents restricts processing to the listed event names.
	// Empty means all recognized events are processed.
	EnabledEvents []string `koanf:"enabled_events"`

	// SmartProcessEntityTypeID is the tenant-specific entityTypeId used
	// for crm.item.get calls on Project smart-process items.
	SmartProcessEntityTypeID int `koanf:"smart_process_entity_type_id" validate:"gte=0"`

	// Timeout bounds every outbound REST call.
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// RequestsPerSecond throttles outbound calls. Bitrix24 enforces
	// 2 requests per second per webhook; exceeding it yields
	// QUERY_LIMIT_EXCEEDED errors.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gt=0"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"gt=0,lte=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// StorageConfig holds the JSON collection store settings.
type StorageConfig struct {
	// DataDir is the directory holding one JSON file per collection
	// (contacts.json, companies.json, deals.json, projects.json,
	// managers.json).
	DataDir string `koanf:"data_dir" validate:"required"`
}

// JournalConfig holds the badger-backed webhook delivery journal settings.
type JournalConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
	// TTL is how long journal entries are retained before badger expires them.
	TTL time.Duration `koanf:"ttl" validate:"gt=0"`
	// GCInterval is how often the value-log garbage collector runs.
	GCInterval time.Duration `koanf:"gc_interval" validate:"gt=0"`
}

// RetryConfig holds the dispatcher retry schedule.
type RetryConfig struct {
	// MaxAttempts is the total number of processing attempts, including
	// the first one.
	MaxAttempts int `koanf:"max_attempts" validate:"gte=1"`

	// Delays is the per-attempt wait schedule. Attempt N waits
	// Delays[N-1] before retrying; attempts past the end of the schedule
	// reuse the last entry.
	Delays []time.Duration `koanf:"delays" validate:"min=1"`
}

// FieldMapConfig carries the tenant-specific field mapping tables.
//
// Bitrix24 custom-field codes (e.g. ufCrm7_1768130049371) are opaque and
// differ per tenant, so every mapper lookup indirects through these tables;
// no UF code is ever hard-coded.
type FieldMapConfig struct {
	// Contact maps logical contact field names to CRM field codes.
	// Recognized logical names: name, last_name, email, phone, company,
	// manager_id, status, opt_in.
	Contact map[string]string `koanf:"contact"`

	// Company maps logical company field names to CRM field codes.
	// Recognized logical names: title, email, phone, industry, employees,
	// revenue, address.
	Company map[string]string `koanf:"company"`

	// Project maps logical smart-process field names to CRM field codes.
	// Recognized logical names: organization_name, object_name,
	// system_types, location, implementation_date, status, client_id,
	// manager_id, equipment_list, request_type, technical_description,
	// competitors, marketing_discount.
	Project map[string]string `koanf:"project"`

	// OptInAllowedValues is the allow-list for the contact opt-in field.
	// A contact whose opt-in value is absent or outside this list never
	// produces a local personal-account record.
	OptInAllowedValues []string `koanf:"opt_in_allowed_values"`
}

// SecurityConfig holds dashboard API authentication settings.
type SecurityConfig struct {
	// AuthMode selects dashboard auth: "jwt" or "none".
	// The webhook endpoint is always open (Bitrix24 cannot authenticate).
	AuthMode string `koanf:"auth_mode" validate:"oneof=jwt none"`

	// JWTSecret signs dashboard session tokens. Required for jwt mode.
	JWTSecret string `koanf:"jwt_secret"`

	AdminUsername string `koanf:"admin_username"`
	// AdminPassword is the plaintext admin password; it is bcrypt-hashed
	// at startup and never kept beyond manager construction.
	AdminPassword string `koanf:"admin_password"`

	SessionTimeout time.Duration `koanf:"session_timeout" validate:"gt=0"`

	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gt=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
	// File, when set, duplicates log output into a size-rotated file.
	File      string `koanf:"file"`
	MaxSizeMB int    `koanf:"max_size_mb" validate:"gte=0"`
}

// Validate checks the configuration for internal consistency.
// It combines struct-tag validation with cross-field rules that tags
// cannot express.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if ok := isValidationErrors(err, &verrs); ok && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("invalid configuration: field %s failed rule %q", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if strings.Contains(c.Bitrix.WebhookBaseURL, " ") {
		return fmt.Errorf("bitrix.webhook_base_url must not contain spaces")
	}

	if c.Security.AuthMode == "jwt" {
		if len(c.Security.JWTSecret) < 32 {
			return fmt.Errorf("security.jwt_secret must be at least 32 characters in jwt mode")
		}
		if c.Security.AdminUsername == "" || c.Security.AdminPassword == "" {
			return fmt.Errorf("security.admin_username and security.admin_password are required in jwt mode")
		}
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when the journal is enabled")
	}

	for _, d := range c.Retry.Delays {
		if d < 0 {
			return fmt.Errorf("retry.delays must not contain negative durations")
		}
	}

	return nil
}

// isValidationErrors is a typed errors.As wrapper kept separate so Validate
// reads linearly.
func isValidationErrors(err error, target *validator.ValidationErrors) bool {
	if verrs, ok := err.(validator.ValidationErrors); ok { //nolint:errorlint // validator returns the concrete type
		*target = verrs
		return true
	}
	return false
}

// EventEnabled reports whether the given event name passes the
// EnabledEvents filter. An empty filter enables everything.
func (c *BitrixConfig) EventEnabled(event string) bool {
	if len(c.EnabledEvents) == 0 {
		return true
	}
	for _, e := range c.EnabledEvents {
		if strings.EqualFold(e, event) {
			return true
		}
	}
	return false
}
