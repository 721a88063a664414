// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

package config

import (
	"strings"
	"testing"
	"time"
)

// validBase returns a configuration that passes Validate, for tests to
// mutate one field at a time.
func validBase() *Config {
	cfg := defaultConfig()
	cfg.Bitrix.WebhookBaseURL = "https://tenant.bitrix24.ru/rest/1/secret"
	cfg.Security.JWTSecret = strings.Repeat("s", 32)
	cfg.Security.AdminUsername = "admin"
	cfg.Security.AdminPassword = "correct-horse-battery"
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	t.Parallel()

	if err := validBase().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing webhook url", func(c *Config) { c.Bitrix.WebhookBaseURL = "" }},
		{"non-url webhook base", func(c *Config) { c.Bitrix.WebhookBaseURL = "not a url" }},
		{"zero timeout", func(c *Config) { c.Bitrix.Timeout = 0 }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"short jwt secret", func(c *Config) { c.Security.JWTSecret = "short" }},
		{"jwt without admin", func(c *Config) { c.Security.AdminUsername = "" }},
		{"zero retry attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"empty retry schedule", func(c *Config) { c.Retry.Delays = nil }},
		{"negative retry delay", func(c *Config) { c.Retry.Delays = []time.Duration{-time.Second} }},
		{"journal without path", func(c *Config) { c.Journal.Enabled = true; c.Journal.Path = "" }},
		{"unknown auth mode", func(c *Config) { c.Security.AuthMode = "basic" }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validBase()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error for %q, got nil", tt.name)
			}
		})
	}
}

func TestValidateAuthModeNoneNeedsNoCredentials(t *testing.T) {
	t.Parallel()

	cfg := validBase()
	cfg.Security.AuthMode = "none"
	cfg.Security.JWTSecret = ""
	cfg.Security.AdminUsername = ""
	cfg.Security.AdminPassword = ""

	if err := cfg.Validate(); err != nil {
		t.Fatalf("auth_mode=none should not require credentials: %v", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	t.Parallel()

	tests := []struct {
		env  string
		want string
	}{
		{"BITRIX_WEBHOOK_BASE_URL", "bitrix.webhook_base_url"},
		{"RETRY_DELAYS", "retry.delays"},
		{"LOG_LEVEL", "logging.level"},
		{"HTTP_PORT", "server.port"},
		{"OPTIN_ALLOWED_VALUES", "fieldmap.opt_in_allowed_values"},
		{"PATH", ""},
		{"HOME", ""},
	}

	for _, tt := range tests {
		tt := tt
		if got := envTransformFunc(tt.env); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("BITRIX_WEBHOOK_BASE_URL", "https://tenant.bitrix24.ru/rest/7/token")
	t.Setenv("AUTH_MODE", "none")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("RETRY_DELAYS", "2s, 10s,30s")
	t.Setenv("OPTIN_ALLOWED_VALUES", "yes,approved")
	t.Setenv("JOURNAL_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Bitrix.WebhookBaseURL != "https://tenant.bitrix24.ru/rest/7/token" {
		t.Errorf("unexpected webhook base url %q", cfg.Bitrix.WebhookBaseURL)
	}
	wantDelays := []time.Duration{2 * time.Second, 10 * time.Second, 30 * time.Second}
	if len(cfg.Retry.Delays) != len(wantDelays) {
		t.Fatalf("delays = %v, want %v", cfg.Retry.Delays, wantDelays)
	}
	for i, d := range wantDelays {
		if cfg.Retry.Delays[i] != d {
			t.Errorf("delays[%d] = %v, want %v", i, cfg.Retry.Delays[i], d)
		}
	}
	if len(cfg.FieldMap.OptInAllowedValues) != 2 || cfg.FieldMap.OptInAllowedValues[1] != "approved" {
		t.Errorf("opt-in allow list = %v", cfg.FieldMap.OptInAllowedValues)
	}
	if cfg.Journal.Enabled {
		t.Error("expected journal disabled via env")
	}
}

func TestEventEnabled(t *testing.T) {
	t.Parallel()

	open := BitrixConfig{}
	if !open.EventEnabled("ONCRMCONTACTADD") {
		t.Error("empty filter should enable all events")
	}

	filtered := BitrixConfig{EnabledEvents: []string{"ONCRMCONTACTADD", "oncrmdealupdate"}}
	if !filtered.EventEnabled("ONCRMCONTACTADD") {
		t.Error("listed event should be enabled")
	}
	if !filtered.EventEnabled("ONCRMDEALUPDATE") {
		t.Error("event filter should be case-insensitive")
	}
	if filtered.EventEnabled("ONCRMCOMPANYUPDATE") {
		t.Error("unlisted event should be disabled")
	}
}
