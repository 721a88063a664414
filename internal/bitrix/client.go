// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

// Package bitrix implements the Bitrix24 inbound-webhook REST client and
// the event-name router.
//
// Every call is POST {webhook_base_url}/{method}.json with a JSON body and
// a JSON envelope response carrying either "result" or
// "error"/"error_description". The base URL embeds the webhook secret, so
// it must never be logged verbatim.
package bitrix

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/dkurguzov/b24sync/internal/config"
	"github.com/dkurguzov/b24sync/internal/metrics"
	"github.com/dkurguzov/b24sync/internal/models"
)

// maxErrorBodySize bounds how much of an error response body is read back
// for diagnostics.
const maxErrorBodySize = 64 * 1024

// ErrNotFound is returned when the CRM reports that the requested entity
// does not exist.
var ErrNotFound = errors.New("bitrix: entity not found")

// APIError is a Bitrix24-reported error (the envelope carried "error"
// instead of "result").
type APIError struct {
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bitrix api error %s: %s", e.Code, e.Description)
}

// ClientInterface is the surface the dispatcher depends on. Implemented by
// Client for production and by mocks in tests.
//
// All methods accept a context for cancellation and return the raw entity
// as a models.Document; field interpretation is the mapper's job.
type ClientInterface interface {
	Ping(ctx context.Context) error
	FetchEntity(ctx context.Context, entityType EntityType, id string) (models.Document, error)
	GetContact(ctx context.Context, id string) (models.Document, error)
	GetCompany(ctx context.Context, id string) (models.Document, error)
	GetDeal(ctx context.Context, id string) (models.Document, error)
	GetItem(ctx context.Context, id string) (models.Document, error)
	GetUser(ctx context.Context, id string) (models.Document, error)
	ListUsers(ctx context.Context) ([]models.Document, error)
}

// Client is the production Bitrix24 REST client.
//
// Outbound calls are throttled with a token-bucket limiter because Bitrix24
// enforces a per-webhook request rate (2 req/s by default); exceeding it
// produces QUERY_LIMIT_EXCEEDED API errors that would otherwise burn the
// dispatcher's retry budget.
//
// Thread safety: safe for concurrent use.
type Client struct {
	baseURL      string
	entityTypeID int
	client       *http.Client
	limiter      *rate.Limiter
}

// NewClient creates a Bitrix24 REST client from configuration.
func NewClient(cfg *config.BitrixConfig) *Client {
	return &Client{
		baseURL:      strings.TrimRight(cfg.WebhookBaseURL, "/"),
		entityTypeID: cfg.SmartProcessEntityTypeID,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

// envelope is the REST response wrapper.
type envelope struct {
	Result           json.RawMessage `json:"result"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// call invokes one REST method and decodes the "result" member into out.
func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait for %s: %w", method, err)
	}

	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode %s params: %w", method, err)
	}

	reqURL := fmt.Sprintf("%s/%s.json", c.baseURL, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.BitrixRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BitrixRequestErrors.WithLabelValues(method, "transport").Inc()
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.BitrixRequestErrors.WithLabelValues(method, "http_status").Inc()
		snippet := readBodyForError(resp.Body)
		return fmt.Errorf("%s returned status %d: %s", method, resp.StatusCode, string(snippet))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		metrics.BitrixRequestErrors.WithLabelValues(method, "decode").Inc()
		return fmt.Errorf("decode %s response: %w", method, err)
	}

	if env.Error != "" {
		metrics.BitrixRequestErrors.WithLabelValues(method, "api_error").Inc()
		if isNotFoundError(env.Error) {
			return fmt.Errorf("%s: %w", method, ErrNotFound)
		}
		return fmt.Errorf("%s: %w", method, &APIError{Code: env.Error, Description: env.ErrorDescription})
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		metrics.BitrixRequestErrors.WithLabelValues(method, "decode").Inc()
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// isNotFoundError matches the error codes Bitrix24 uses for missing
// entities across the classic and item APIs.
func isNotFoundError(code string) bool {
	switch code {
	case "NOT_FOUND", "ERROR_NOT_FOUND", "OWNER_NOT_FOUND":
		return true
	}
	return false
}

// readBodyForError reads at most maxErrorBodySize of a response body for
// diagnostics.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	return body
}

// Ping verifies connectivity and credentials with a cheap profile call.
func (c *Client) Ping(ctx context.Context) error {
	var out models.Document
	if err := c.call(ctx, "profile", nil, &out); err != nil {
		return fmt.Errorf("bitrix ping: %w", err)
	}
	return nil
}

// FetchEntity fetches the current authoritative state of an entity by type
// and ID. This is the dispatcher's single entry point: webhook payloads are
// never trusted as entity state, only as change notifications.
func (c *Client) FetchEntity(ctx context.Context, entityType EntityType, id string) (models.Document, error) {
	switch entityType {
	case EntityContact:
		return c.GetContact(ctx, id)
	case EntityCompany:
		return c.GetCompany(ctx, id)
	case EntityDeal:
		return c.GetDeal(ctx, id)
	case EntityProject:
		return c.GetItem(ctx, id)
	default:
		return nil, fmt.Errorf("fetch entity: unsupported entity type %q", entityType)
	}
}

// GetContact fetches a contact via crm.contact.get.
func (c *Client) GetContact(ctx context.Context, id string) (models.Document, error) {
	var out models.Document
	if err := c.call(ctx, "crm.contact.get", map[string]string{"id": id}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCompany fetches a company via crm.company.get.
func (c *Client) GetCompany(ctx context.Context, id string) (models.Document, error) {
	var out models.Document
	if err := c.call(ctx, "crm.company.get", map[string]string{"id": id}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetDeal fetches a deal via crm.deal.get.
func (c *Client) GetDeal(ctx context.Context, id string) (models.Document, error) {
	var out models.Document
	if err := c.call(ctx, "crm.deal.get", map[string]string{"id": id}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetItem fetches a smart-process item via crm.item.get. The item API
// wraps the entity one level deeper than the classic API.
func (c *Client) GetItem(ctx context.Context, id string) (models.Document, error) {
	params := map[string]interface{}{
		"entityTypeId": c.entityTypeID,
		"id":           id,
	}
	var out struct {
		Item models.Document `json:"item"`
	}
	if err := c.call(ctx, "crm.item.get", params, &out); err != nil {
		return nil, err
	}
	return out.Item, nil
}

// GetUser fetches a CRM user via user.get. The user API returns a list
// even for a single-ID filter.
func (c *Client) GetUser(ctx context.Context, id string) (models.Document, error) {
	var out []models.Document
	if err := c.call(ctx, "user.get", map[string]string{"ID": id}, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("user.get %s: %w", id, ErrNotFound)
	}
	return out[0], nil
}

// ListUsers fetches all active CRM users for the manager directory.
func (c *Client) ListUsers(ctx context.Context) ([]models.Document, error) {
	var out []models.Document
	if err := c.call(ctx, "user.get", map[string]interface{}{"ACTIVE": true}, &out); err != nil {
		return nil, err
	}
	return out, nil
}
