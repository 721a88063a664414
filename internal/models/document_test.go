// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

package models

import (
	"testing"

	"github.com/goccy/go-json"
)

func docFromJSON(t *testing.T, raw string) Document {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("test payload: %v", err)
	}
	return Document(m)
}

func TestDocumentString(t *testing.T) {
	t.Parallel()

	doc := docFromJSON(t, `{"NAME":"Ivan","ID":42,"REVENUE":10.5,"NOTHING":null}`)

	if s, ok := doc.String("NAME"); !ok || s != "Ivan" {
		t.Errorf("String(NAME) = %q, %v", s, ok)
	}
	if s, ok := doc.String("ID"); !ok || s != "42" {
		t.Errorf("integer ID should coerce to %q, got %q, %v", "42", s, ok)
	}
	if s, ok := doc.String("REVENUE"); !ok || s != "10.5" {
		t.Errorf("float should coerce, got %q, %v", s, ok)
	}
	if _, ok := doc.String("NOTHING"); ok {
		t.Error("null value should report !ok")
	}
	if _, ok := doc.String("MISSING"); ok {
		t.Error("missing key should report !ok")
	}
	if got := doc.StringOr("MISSING", "fallback"); got != "fallback" {
		t.Errorf("StringOr fallback = %q", got)
	}
}

func TestDocumentBool(t *testing.T) {
	t.Parallel()

	doc := docFromJSON(t, `{"Y":"Y","N":"N","T":true,"ONE":"1","NUM":1,"BAD":"maybe"}`)

	for _, key := range []string{"Y", "T", "ONE", "NUM"} {
		if b, ok := doc.Bool(key); !ok || !b {
			t.Errorf("Bool(%s) = %v, %v, want true", key, b, ok)
		}
	}
	if b, ok := doc.Bool("N"); !ok || b {
		t.Errorf("Bool(N) = %v, %v, want false", b, ok)
	}
	if _, ok := doc.Bool("BAD"); ok {
		t.Error("unparseable bool should report !ok")
	}
}

func TestFlexValueFirst(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    string
		wantOK  bool
		listLen int
	}{
		{"value list", `{"F":[{"VALUE":"a@x.com"},{"VALUE":"b@x.com"}]}`, "a@x.com", true, 2},
		{"bare scalar", `{"F":"a@x.com"}`, "a@x.com", true, 1},
		{"scalar list", `{"F":["one","two","three"]}`, "one", true, 3},
		{"numeric scalar", `{"F":77}`, "77", true, 1},
		{"empty list", `{"F":[]}`, "", false, 0},
		{"empty string", `{"F":""}`, "", false, 0},
		{"object with id", `{"F":[{"id":12,"name":"ventilation"}]}`, "12", true, 1},
		{"object with name only", `{"F":[{"name":"heating"}]}`, "heating", true, 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc := docFromJSON(t, tt.raw)
			flex, ok := doc.Flex("F")
			if !ok {
				t.Fatal("Flex(F) reported missing")
			}

			got, gotOK := flex.First()
			if got != tt.want || gotOK != tt.wantOK {
				t.Errorf("First() = %q, %v, want %q, %v", got, gotOK, tt.want, tt.wantOK)
			}
			if l := flex.List(); len(l) != tt.listLen {
				t.Errorf("List() length = %d, want %d", len(l), tt.listLen)
			}
		})
	}
}

func TestFlexListNeverNil(t *testing.T) {
	t.Parallel()

	doc := docFromJSON(t, `{"F":[]}`)
	flex, _ := doc.Flex("F")
	if flex.List() == nil {
		t.Error("List() must return an empty slice, not nil")
	}
}
