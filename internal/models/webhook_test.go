// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

package models

import "testing"

func TestParseWebhookJSON(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"event": "ONCRMCONTACTUPDATE",
		"data": {"FIELDS": {"ID": "42"}},
		"ts": "1768130049",
		"auth": {"application_token": "tok-1"}
	}`)

	env, err := ParseWebhookJSON(body)
	if err != nil {
		t.Fatalf("ParseWebhookJSON: %v", err)
	}

	if env.Event != "ONCRMCONTACTUPDATE" {
		t.Errorf("event = %q", env.Event)
	}
	if id, ok := env.EntityID(); !ok || id != "42" {
		t.Errorf("EntityID = %q, %v", id, ok)
	}
	if env.ApplicationToken != "tok-1" {
		t.Errorf("application token = %q", env.ApplicationToken)
	}
	if env.TS != "1768130049" {
		t.Errorf("ts = %q", env.TS)
	}
}

func TestParseWebhookJSONTopLevelID(t *testing.T) {
	t.Parallel()

	env, err := ParseWebhookJSON([]byte(`{"event":"ONCRMDEALADD","data":{"ID":7}}`))
	if err != nil {
		t.Fatalf("ParseWebhookJSON: %v", err)
	}
	if id, ok := env.EntityID(); !ok || id != "7" {
		t.Errorf("EntityID = %q, %v, want 7 via data.ID fallback", id, ok)
	}
}

func TestParseWebhookJSONInvalid(t *testing.T) {
	t.Parallel()

	if _, err := ParseWebhookJSON([]byte(`{"event": truncated`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestParseWebhookForm(t *testing.T) {
	t.Parallel()

	body := []byte("event=ONCRMCONTACTADD&data%5BFIELDS%5D%5BID%5D=42&ts=1768130049&auth%5Bapplication_token%5D=tok-2")

	env, err := ParseWebhookForm(body)
	if err != nil {
		t.Fatalf("ParseWebhookForm: %v", err)
	}

	if env.Event != "ONCRMCONTACTADD" {
		t.Errorf("event = %q", env.Event)
	}
	if id, ok := env.EntityID(); !ok || id != "42" {
		t.Errorf("EntityID = %q, %v", id, ok)
	}
	if env.ApplicationToken != "tok-2" {
		t.Errorf("application token = %q", env.ApplicationToken)
	}
}

func TestEntityIDMissing(t *testing.T) {
	t.Parallel()

	env, err := ParseWebhookJSON([]byte(`{"event":"ONCRMCONTACTADD","data":{}}`))
	if err != nil {
		t.Fatalf("ParseWebhookJSON: %v", err)
	}
	if _, ok := env.EntityID(); ok {
		t.Error("expected missing entity ID")
	}
}

func TestSplitFormKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key  string
		want []string
	}{
		{"event", []string{"event"}},
		{"data[FIELDS][ID]", []string{"data", "FIELDS", "ID"}},
		{"auth[application_token]", []string{"auth", "application_token"}},
	}

	for _, tt := range tests {
		got := splitFormKey(tt.key)
		if len(got) != len(tt.want) {
			t.Errorf("splitFormKey(%q) = %v, want %v", tt.key, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitFormKey(%q)[%d] = %q, want %q", tt.key, i, got[i], tt.want[i])
			}
		}
	}
}
