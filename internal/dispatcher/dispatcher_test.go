// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkurguzov/b24sync/internal/bitrix"
	"github.com/dkurguzov/b24sync/internal/config"
	"github.com/dkurguzov/b24sync/internal/mapper"
	"github.com/dkurguzov/b24sync/internal/models"
	"github.com/dkurguzov/b24sync/internal/store"
)

// mockClient counts fetches and serves a canned document, optionally
// failing the first N calls.
type mockClient struct {
	fetches  int
	doc      models.Document
	failures int
}

var errUpstream = errors.New("upstream down")

func (m *mockClient) FetchEntity(ctx context.Context, entityType bitrix.EntityType, id string) (models.Document, error) {
	m.fetches++
	if m.fetches <= m.failures {
		return nil, errUpstream
	}
	return m.doc, nil
}

func (m *mockClient) Ping(ctx context.Context) error { return nil }
func (m *mockClient) GetContact(ctx context.Context, id string) (models.Document, error) {
	return m.FetchEntity(ctx, bitrix.EntityContact, id)
}
func (m *mockClient) GetCompany(ctx context.Context, id string) (models.Document, error) {
	return m.FetchEntity(ctx, bitrix.EntityCompany, id)
}
func (m *mockClient) GetDeal(ctx context.Context, id string) (models.Document, error) {
	return m.FetchEntity(ctx, bitrix.EntityDeal, id)
}
func (m *mockClient) GetItem(ctx context.Context, id string) (models.Document, error) {
	return m.FetchEntity(ctx, bitrix.EntityProject, id)
}
func (m *mockClient) GetUser(ctx context.Context, id string) (models.Document, error) {
	return m.doc, nil
}
func (m *mockClient) ListUsers(ctx context.Context) ([]models.Document, error) {
	return []models.Document{m.doc}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Bitrix: config.BitrixConfig{},
		Retry: config.RetryConfig{
			MaxAttempts: 3,
			Delays:      []time.Duration{time.Millisecond, 5 * time.Millisecond},
		},
		FieldMap: config.FieldMapConfig{
			Contact: map[string]string{
				"name":    "NAME",
				"email":   "EMAIL",
				"company": "COMPANY_ID",
				"opt_in":  "UF_CRM_OPTIN",
			},
			Company:            map[string]string{"title": "TITLE"},
			Project:            map[string]string{"client_id": "ufCrm7_100", "object_name": "ufCrm7_200"},
			OptInAllowedValues: []string{"139"},
		},
	}
}

func newTestDispatcher(t *testing.T, client *mockClient, cfg *config.Config) (*Dispatcher, *store.Store, *[]time.Duration) {
	t.Helper()

	st, err := store.New(&config.StorageConfig{DataDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}

	d := New(client, st, mapper.New(&cfg.FieldMap), cfg)
	waits := &[]time.Duration{}
	d.wait = func(ctx context.Context, delay time.Duration) error {
		*waits = append(*waits, delay)
		return nil
	}
	return d, st, waits
}

func envelope(event, entityID string) *models.WebhookEnvelope {
	return &models.WebhookEnvelope{
		Event: event,
		Data: models.Document{
			"FIELDS": map[string]interface{}{"ID": entityID},
		},
	}
}

func TestUnknownEventIgnoredWithoutCRMCall(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	d, _, _ := newTestDispatcher(t, client, testConfig())

	res := d.ProcessWithRetry(context.Background(), envelope("ONTASKADD", "1"))
	if res.Outcome != OutcomeIgnored {
		t.Errorf("outcome = %q", res.Outcome)
	}
	if !res.Success() {
		t.Error("unknown event must still be a success")
	}
	if client.fetches != 0 {
		t.Errorf("CRM called %d times for unknown event", client.fetches)
	}
}

func TestDisabledEventIgnored(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Bitrix.EnabledEvents = []string{"ONCRMCONTACTADD"}
	client := &mockClient{}
	d, _, _ := newTestDispatcher(t, client, cfg)

	res := d.ProcessWithRetry(context.Background(), envelope("ONCRMDEALUPDATE", "1"))
	if res.Outcome != OutcomeIgnored || client.fetches != 0 {
		t.Errorf("outcome = %q, fetches = %d", res.Outcome, client.fetches)
	}
}

func TestMissingEntityIDFailsFast(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	d, _, _ := newTestDispatcher(t, client, testConfig())

	res := d.ProcessWithRetry(context.Background(), &models.WebhookEnvelope{
		Event: "ONCRMCONTACTADD",
		Data:  models.Document{},
	})
	if res.Outcome != OutcomeFailed {
		t.Errorf("outcome = %q", res.Outcome)
	}
	if !errors.Is(res.Err, ErrBadEnvelope) {
		t.Errorf("err = %v, want ErrBadEnvelope", res.Err)
	}
	if res.Attempts != 0 {
		t.Errorf("attempts = %d, structural errors must not consume the retry budget", res.Attempts)
	}
	if client.fetches != 0 {
		t.Error("CRM called despite missing entity ID")
	}
}

func TestTokenMismatchFails(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Bitrix.ApplicationToken = "expected-token"
	client := &mockClient{}
	d, _, _ := newTestDispatcher(t, client, cfg)

	env := envelope("ONCRMCONTACTADD", "1")
	env.ApplicationToken = "wrong"
	res := d.ProcessWithRetry(context.Background(), env)
	if !errors.Is(res.Err, ErrTokenMismatch) {
		t.Errorf("err = %v", res.Err)
	}
	if client.fetches != 0 {
		t.Error("CRM called despite token mismatch")
	}
}

func TestContactCreateOptedIn(t *testing.T) {
	t.Parallel()

	client := &mockClient{doc: models.Document{
		"ID":           "42",
		"NAME":         "Ivan",
		"UF_CRM_OPTIN": "139",
	}}
	d, st, _ := newTestDispatcher(t, client, testConfig())

	res := d.ProcessWithRetry(context.Background(), envelope("ONCRMCONTACTADD", "42"))
	if res.Outcome != OutcomeSynced {
		t.Fatalf("outcome = %q, err = %v", res.Outcome, res.Err)
	}

	c, ok := st.GetContact("42")
	if !ok {
		t.Fatal("contact not stored")
	}
	if c.BitrixID != "42" || c.Name != "Ivan" {
		t.Errorf("stored contact = %+v", c)
	}
}

func TestContactNotOptedInSkipped(t *testing.T) {
	t.Parallel()

	// Opt-in field absent entirely.
	client := &mockClient{doc: models.Document{"ID": "42", "NAME": "Ivan"}}
	d, st, _ := newTestDispatcher(t, client, testConfig())

	res := d.ProcessWithRetry(context.Background(), envelope("ONCRMCONTACTUPDATE", "42"))
	if res.Outcome != OutcomeSkipped {
		t.Errorf("outcome = %q", res.Outcome)
	}
	if !res.Success() {
		t.Error("skip must acknowledge with success")
	}
	if _, ok := st.GetContact("42"); ok {
		t.Error("contact stored despite failing the opt-in gate")
	}
}

func TestContactUpdateIdempotent(t *testing.T) {
	t.Parallel()

	client := &mockClient{doc: models.Document{
		"ID":           "42",
		"NAME":         "Ivan",
		"UF_CRM_OPTIN": "139",
	}}
	d, st, _ := newTestDispatcher(t, client, testConfig())

	env := envelope("ONCRMCONTACTUPDATE", "42")
	if res := d.ProcessWithRetry(context.Background(), env); res.Outcome != OutcomeSynced {
		t.Fatalf("first: %q %v", res.Outcome, res.Err)
	}
	first, _ := st.GetContact("42")

	if res := d.ProcessWithRetry(context.Background(), env); res.Outcome != OutcomeSynced {
		t.Fatalf("second: %q %v", res.Outcome, res.Err)
	}
	second, _ := st.GetContact("42")

	// Identical in content except updated_at.
	second.UpdatedAt = first.UpdatedAt
	if first != second {
		t.Errorf("records differ beyond updated_at:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestCompanyCreateIsAcknowledgedWithoutWrite(t *testing.T) {
	t.Parallel()

	client := &mockClient{doc: models.Document{"ID": "15", "TITLE": "OOO Klimat"}}
	d, st, _ := newTestDispatcher(t, client, testConfig())

	res := d.ProcessWithRetry(context.Background(), envelope("ONCRMCOMPANYADD", "15"))
	if res.Outcome != OutcomeIgnored {
		t.Errorf("outcome = %q", res.Outcome)
	}
	if len(st.Companies()) != 0 {
		t.Error("company create must not write storage")
	}
}

func TestCompanyUpdateOverwrites(t *testing.T) {
	t.Parallel()

	client := &mockClient{doc: models.Document{"ID": "15", "TITLE": "OOO Klimat"}}
	d, st, _ := newTestDispatcher(t, client, testConfig())

	res := d.ProcessWithRetry(context.Background(), envelope("ONCRMCOMPANYUPDATE", "15"))
	if res.Outcome != OutcomeSynced {
		t.Fatalf("outcome = %q, err = %v", res.Outcome, res.Err)
	}
	c, ok := st.GetCompany("15")
	if !ok || c.Title != "OOO Klimat" {
		t.Errorf("company = %+v, ok = %v", c, ok)
	}
}

func TestDealUpdateLastWriteWins(t *testing.T) {
	t.Parallel()

	client := &mockClient{doc: models.Document{
		"ID":          "88",
		"OPPORTUNITY": "100000",
	}}
	d, st, _ := newTestDispatcher(t, client, testConfig())

	env := envelope("ONCRMDEALUPDATE", "88")
	if res := d.ProcessWithRetry(context.Background(), env); res.Outcome != OutcomeSynced {
		t.Fatalf("first: %q %v", res.Outcome, res.Err)
	}

	client.doc = models.Document{"ID": "88", "OPPORTUNITY": "150000"}
	if res := d.ProcessWithRetry(context.Background(), env); res.Outcome != OutcomeSynced {
		t.Fatalf("second: %q %v", res.Outcome, res.Err)
	}

	deal, _ := st.GetDeal("88")
	if deal.Opportunity != "150000" {
		t.Errorf("Opportunity = %q, want latest write", deal.Opportunity)
	}
}

func TestProjectCreateDerivesCompany(t *testing.T) {
	t.Parallel()

	client := &mockClient{doc: models.Document{
		"id":         float64(301),
		"ufCrm7_100": "3",
		"ufCrm7_200": "Warehouse vents",
	}}
	d, st, _ := newTestDispatcher(t, client, testConfig())

	// Pre-synced contact "3" linked to company "9".
	if _, err := st.UpsertContact(models.Contact{ID: "LK-1-3", BitrixID: "3", Company: "9"}); err != nil {
		t.Fatal(err)
	}

	res := d.ProcessWithRetry(context.Background(), envelope("ONCRM_DYNAMIC_ITEM_ADD", "301"))
	if res.Outcome != OutcomeSynced {
		t.Fatalf("outcome = %q, err = %v", res.Outcome, res.Err)
	}

	p, ok := st.GetProject("301")
	if !ok {
		t.Fatal("project not stored")
	}
	if p.CompanyID != "9" {
		t.Errorf("CompanyID = %q, want derived 9", p.CompanyID)
	}
}

func TestProjectUpdateAcknowledgedNoOp(t *testing.T) {
	t.Parallel()

	client := &mockClient{doc: models.Document{"id": float64(301)}}
	d, st, _ := newTestDispatcher(t, client, testConfig())

	res := d.ProcessWithRetry(context.Background(), envelope("ONCRM_DYNAMIC_ITEM_UPDATE", "301"))
	if res.Outcome != OutcomeIgnored {
		t.Errorf("outcome = %q", res.Outcome)
	}
	if len(st.Projects()) != 0 {
		t.Error("project update must not write storage")
	}
}

func TestDeleteEventSkipsFetch(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	d, st, _ := newTestDispatcher(t, client, testConfig())

	if _, err := st.UpsertContact(models.Contact{ID: "LK-1-42", BitrixID: "42"}); err != nil {
		t.Fatal(err)
	}

	res := d.ProcessWithRetry(context.Background(), envelope("ONCRMCONTACTDELETE", "42"))
	if res.Outcome != OutcomeIgnored {
		t.Errorf("outcome = %q", res.Outcome)
	}
	if client.fetches != 0 {
		t.Error("delete event fetched from CRM")
	}
	if _, ok := st.GetContact("42"); !ok {
		t.Error("delete event removed the local record; it must be retained")
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	client := &mockClient{
		failures: 2,
		doc:      models.Document{"ID": "42", "UF_CRM_OPTIN": "139"},
	}
	d, _, waits := newTestDispatcher(t, client, testConfig())

	res := d.ProcessWithRetry(context.Background(), envelope("ONCRMCONTACTADD", "42"))
	if res.Outcome != OutcomeSynced {
		t.Fatalf("outcome = %q, err = %v", res.Outcome, res.Err)
	}
	if res.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", res.Attempts)
	}
	// Delay schedule is [1ms, 5ms]; two waits before the third attempt.
	want := []time.Duration{time.Millisecond, 5 * time.Millisecond}
	if len(*waits) != 2 || (*waits)[0] != want[0] || (*waits)[1] != want[1] {
		t.Errorf("waits = %v, want %v", *waits, want)
	}
}

func TestRetryExhaustionFails(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Retry.MaxAttempts = 4
	client := &mockClient{failures: 10}
	d, _, waits := newTestDispatcher(t, client, cfg)

	res := d.ProcessWithRetry(context.Background(), envelope("ONCRMCONTACTADD", "42"))
	if res.Outcome != OutcomeFailed {
		t.Errorf("outcome = %q", res.Outcome)
	}
	if !errors.Is(res.Err, errUpstream) {
		t.Errorf("err = %v", res.Err)
	}
	if res.Attempts != 4 {
		t.Errorf("attempts = %d", res.Attempts)
	}
	// Schedule clamps at the last configured delay.
	want := []time.Duration{time.Millisecond, 5 * time.Millisecond, 5 * time.Millisecond}
	if len(*waits) != 3 || (*waits)[2] != want[2] {
		t.Errorf("waits = %v, want %v", *waits, want)
	}
}

func TestRetryWaitCanceled(t *testing.T) {
	t.Parallel()

	client := &mockClient{failures: 10}
	d, _, _ := newTestDispatcher(t, client, testConfig())
	d.wait = func(ctx context.Context, delay time.Duration) error {
		return context.Canceled
	}

	res := d.ProcessWithRetry(context.Background(), envelope("ONCRMCONTACTADD", "42"))
	if res.Outcome != OutcomeFailed {
		t.Errorf("outcome = %q", res.Outcome)
	}
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, cancellation must stop the loop", res.Attempts)
	}
}
