// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where a config file is searched, in
// order. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/b24sync/config.yaml",
	"/etc/b24sync/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with built-in defaults. These are applied
// first, then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Bitrix: BitrixConfig{
			WebhookBaseURL:           "",
			ApplicationToken:         "",
			EnabledEvents:            nil, // empty = all recognized events
			SmartProcessEntityTypeID: 0,
			Timeout:                  30 * time.Second,
			RequestsPerSecond:        2, // Bitrix24 webhook rate cap
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8480,
			Timeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			DataDir: "/data/lk",
		},
		Journal: JournalConfig{
			Enabled:    true,
			Path:       "/data/journal",
			TTL:        14 * 24 * time.Hour,
			GCInterval: time.Hour,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			Delays:      []time.Duration{time.Second, 5 * time.Second, 15 * time.Second},
		},
		FieldMap: FieldMapConfig{
			Contact: map[string]string{
				"name":       "NAME",
				"last_name":  "LAST_NAME",
				"email":      "EMAIL",
				"phone":      "PHONE",
				"company":    "COMPANY_ID",
				"manager_id": "ASSIGNED_BY_ID",
				"status":     "STATUS_ID",
				// opt_in has no standard field; tenants must configure
				// the UF code, e.g. "UF_CRM_LK_OPTIN".
			},
			Company: map[string]string{
				"title":     "TITLE",
				"email":     "EMAIL",
				"phone":     "PHONE",
				"industry":  "INDUSTRY",
				"employees": "EMPLOYEES",
				"revenue":   "REVENUE",
				"address":   "ADDRESS",
			},
			Project:            map[string]string{},
			OptInAllowedValues: nil,
		},
		Security: SecurityConfig{
			AuthMode:          "jwt",
			JWTSecret:         "",
			AdminUsername:     "",
			AdminPassword:     "",
			SessionTimeout:    24 * time.Hour,
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
			CORSOrigins:       []string{},
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "json",
			Caller:    false,
			File:      "",
			MaxSizeMB: 10,
		},
	}
}

// Load loads configuration with layered sources:
//
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if present)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices when
// they arrive as plain strings from environment variables.
var sliceConfigPaths = []string{
	"bitrix.enabled_events",
	"fieldmap.opt_in_allowed_values",
	"security.cors_origins",
	"retry.delays",
}

// processSliceFields converts comma-separated env strings to slices for the
// known slice fields. YAML-sourced values are already slices and are left
// untouched.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unknown variables are dropped (empty return) so unrelated environment
// noise never leaks into the configuration.
//
// Examples:
//   - BITRIX_WEBHOOK_BASE_URL -> bitrix.webhook_base_url
//   - RETRY_MAX_ATTEMPTS      -> retry.max_attempts
//   - LOG_LEVEL               -> logging.level
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"bitrix_webhook_base_url":             "bitrix.webhook_base_url",
		"bitrix_application_token":            "bitrix.application_token",
		"bitrix_enabled_events":               "bitrix.enabled_events",
		"bitrix_smart_process_entity_type_id": "bitrix.smart_process_entity_type_id",
		"bitrix_timeout":                      "bitrix.timeout",
		"bitrix_requests_per_second":          "bitrix.requests_per_second",

		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",

		"data_dir": "storage.data_dir",

		"journal_enabled":     "journal.enabled",
		"journal_path":        "journal.path",
		"journal_ttl":         "journal.ttl",
		"journal_gc_interval": "journal.gc_interval",

		"retry_max_attempts": "retry.max_attempts",
		"retry_delays":       "retry.delays",

		"optin_allowed_values": "fieldmap.opt_in_allowed_values",

		"auth_mode":           "security.auth_mode",
		"jwt_secret":          "security.jwt_secret",
		"admin_username":      "security.admin_username",
		"admin_password":      "security.admin_password",
		"session_timeout":     "security.session_timeout",
		"rate_limit_requests": "security.rate_limit_requests",
		"rate_limit_window":   "security.rate_limit_window",
		"cors_origins":        "security.cors_origins",

		"log_level":       "logging.level",
		"log_format":      "logging.format",
		"log_caller":      "logging.caller",
		"log_file":        "logging.file",
		"log_max_size_mb": "logging.max_size_mb",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return "" // drop unknown variables
}
