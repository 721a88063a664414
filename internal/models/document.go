// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

package models

import (
	"fmt"
	"strconv"
)

// Document is a raw CRM payload: an untyped key-value record as returned by
// the Bitrix24 REST API. All access goes through fallible accessors instead
// of direct map indexing, so missing or oddly-typed fields surface as
// explicit (value, ok) results rather than nil-dereference surprises.
type Document map[string]interface{}

// Get returns the raw value for key.
func (d Document) Get(key string) (interface{}, bool) {
	if key == "" {
		return nil, false
	}
	v, ok := d[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// String returns the value for key coerced to a string. Numeric values are
// formatted; bools and other shapes report !ok.
func (d Document) String(key string) (string, bool) {
	v, ok := d.Get(key)
	if !ok {
		return "", false
	}
	return coerceString(v)
}

// StringOr returns the string value for key, or fallback when the field is
// absent or not string-like.
func (d Document) StringOr(key, fallback string) string {
	if s, ok := d.String(key); ok {
		return s
	}
	return fallback
}

// Bool interprets the value for key as a boolean. Bitrix24 encodes booleans
// as "Y"/"N" on classic entities and as true/false or "1"/"0" on
// smart-process items; all shapes are accepted.
func (d Document) Bool(key string) (bool, bool) {
	v, ok := d.Get(key)
	if !ok {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch t {
		case "Y", "y", "1", "true", "TRUE":
			return true, true
		case "N", "n", "0", "false", "FALSE", "":
			return false, true
		}
		return false, false
	case float64:
		return t != 0, true
	default:
		return false, false
	}
}

// Flex returns the value for key as a FlexValue, accepting both the bare
// scalar and the list-of-objects shapes Bitrix24 uses for multi-valued
// fields (EMAIL, PHONE, enum lists, file lists).
func (d Document) Flex(key string) (FlexValue, bool) {
	v, ok := d.Get(key)
	if !ok {
		return FlexValue{}, false
	}
	return flexFromRaw(v), true
}

// coerceString converts the scalar JSON shapes to a string.
func coerceString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		// JSON numbers decode to float64; IDs arrive as integers.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10), true
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

// FlexValue is the tagged-union representation of a CRM field that arrives
// either as a bare scalar or as a list. List elements may themselves be
// scalars or objects carrying VALUE / value / id / ID / name keys, depending
// on the field type (communication channels, enum bindings, file refs).
//
// Normalizing at the parse boundary keeps the mappers free of repeated
// is-it-a-list checks.
type FlexValue struct {
	scalar string
	isList bool
	items  []string
}

// flexFromRaw classifies a raw JSON value.
func flexFromRaw(v interface{}) FlexValue {
	switch t := v.(type) {
	case []interface{}:
		items := make([]string, 0, len(t))
		for _, el := range t {
			if s, ok := flexElementString(el); ok {
				items = append(items, s)
			}
		}
		return FlexValue{isList: true, items: items}
	default:
		if s, ok := coerceString(v); ok {
			return FlexValue{scalar: s}
		}
		if m, ok := v.(map[string]interface{}); ok {
			// A single object is treated as a one-element list.
			if s, ok := flexElementString(m); ok {
				return FlexValue{isList: true, items: []string{s}}
			}
		}
		return FlexValue{}
	}
}

// flexElementString extracts the string payload of one list element.
// Object elements are probed for VALUE, value, id, ID and name, in that
// order, matching the shapes Bitrix24 emits for communication channels,
// enum values and file references.
func flexElementString(el interface{}) (string, bool) {
	if s, ok := coerceString(el); ok {
		return s, true
	}
	m, ok := el.(map[string]interface{})
	if !ok {
		return "", false
	}
	for _, probe := range []string{"VALUE", "value", "id", "ID", "name"} {
		if raw, present := m[probe]; present {
			if s, ok := coerceString(raw); ok {
				return s, true
			}
		}
	}
	return "", false
}

// First returns the single scalar, or the first list element. Subsequent
// list elements are discarded; this lossy first-element contract is the
// documented behavior for email and phone fields.
func (f FlexValue) First() (string, bool) {
	if f.isList {
		if len(f.items) == 0 {
			return "", false
		}
		return f.items[0], true
	}
	if f.scalar == "" {
		return "", false
	}
	return f.scalar, true
}

// List returns the value normalized to a list. A bare scalar becomes a
// one-element list; an empty value becomes an empty list, never nil.
func (f FlexValue) List() []string {
	if f.isList {
		if f.items == nil {
			return []string{}
		}
		return f.items
	}
	if f.scalar == "" {
		return []string{}
	}
	return []string{f.scalar}
}

// String implements fmt.Stringer for log output.
func (f FlexValue) String() string {
	if f.isList {
		return fmt.Sprintf("list(%d)", len(f.items))
	}
	return f.scalar
}
