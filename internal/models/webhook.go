// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

package models

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
)

// WebhookEnvelope is the parsed inbound Bitrix24 webhook payload.
//
// Bitrix24's webhook engine delivers form-encoded bodies
// (event=...&data[FIELDS][ID]=42&auth[application_token]=...), while test
// harnesses and some integrations POST the equivalent structure as raw
// JSON. Both encodings are accepted and normalized into this envelope.
type WebhookEnvelope struct {
	// Event is the CRM event name, e.g. ONCRMCONTACTUPDATE.
	Event string

	// Data is the raw data object of the envelope, untouched beyond
	// decoding. Entity IDs live at data.FIELDS.ID or data.ID.
	Data Document

	// ApplicationToken is auth.application_token when present.
	ApplicationToken string

	// TS is the delivery timestamp as sent (unix seconds, string form).
	TS string
}

// EntityID returns the entity identifier from data.FIELDS.ID, falling back
// to data.ID. Smart-process events nest the ID one level deeper than
// classic CRM events.
func (e *WebhookEnvelope) EntityID() (string, bool) {
	if fields, ok := e.Data.Get("FIELDS"); ok {
		if m, ok := fields.(map[string]interface{}); ok {
			if id, ok := Document(m).String("ID"); ok && id != "" {
				return id, true
			}
		}
	}
	if id, ok := e.Data.String("ID"); ok && id != "" {
		return id, true
	}
	return "", false
}

// ParseWebhookJSON decodes a raw JSON webhook body into an envelope.
// The body is only required to be valid JSON with a top-level object; no
// further schema validation is applied here.
func ParseWebhookJSON(body []byte) (*WebhookEnvelope, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("webhook body is not valid JSON: %w", err)
	}
	return envelopeFromDocument(Document(raw)), nil
}

// ParseWebhookForm decodes a form-encoded webhook body. Bracketed keys
// (data[FIELDS][ID]) are unflattened into the nested document structure the
// JSON encoding would produce.
func ParseWebhookForm(body []byte) (*WebhookEnvelope, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("webhook body is not valid form data: %w", err)
	}

	raw := Document{}
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		setNested(raw, splitFormKey(key), vals[0])
	}
	return envelopeFromDocument(raw), nil
}

// envelopeFromDocument lifts the well-known fields out of the decoded body.
func envelopeFromDocument(raw Document) *WebhookEnvelope {
	env := &WebhookEnvelope{
		Event: raw.StringOr("event", ""),
		TS:    raw.StringOr("ts", ""),
		Data:  Document{},
	}

	if data, ok := raw.Get("data"); ok {
		if m, ok := data.(map[string]interface{}); ok {
			env.Data = Document(m)
		}
	}
	if auth, ok := raw.Get("auth"); ok {
		if m, ok := auth.(map[string]interface{}); ok {
			env.ApplicationToken = Document(m).StringOr("application_token", "")
		}
	}
	return env
}

// splitFormKey splits a PHP-style bracketed key into path segments:
// "data[FIELDS][ID]" -> ["data", "FIELDS", "ID"].
func splitFormKey(key string) []string {
	open := strings.IndexByte(key, '[')
	if open < 0 {
		return []string{key}
	}

	segments := []string{key[:open]}
	rest := key[open:]
	for len(rest) > 0 {
		if rest[0] != '[' {
			break
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			break
		}
		segments = append(segments, rest[1:end])
		rest = rest[end+1:]
	}
	return segments
}

// setNested writes value at the given path, creating intermediate maps.
func setNested(doc Document, path []string, value string) {
	if len(path) == 0 {
		return
	}
	current := doc
	for _, seg := range path[:len(path)-1] {
		next, ok := current[seg].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			current[seg] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}
