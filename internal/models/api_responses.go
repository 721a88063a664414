// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

package models

import "time"

// APIResponse is the standardized response wrapper used by every HTTP
// endpoint, including the webhook acknowledgement.
//
// Status is "success" or "error"; Error is populated only on "error".
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data,omitempty"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response metadata for observability.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	ElapsedMS int64     `json:"elapsed_ms,omitempty"`
}

// APIError is a structured error payload.
//
// Common codes: VALIDATION_ERROR, METHOD_NOT_ALLOWED, INVALID_PAYLOAD,
// PROCESSING_FAILED, UNAUTHORIZED, NOT_FOUND.
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// SyncEvent is the notification broadcast to dashboard websocket clients
// after a webhook has been processed.
type SyncEvent struct {
	Event      string    `json:"event"`
	EntityType string    `json:"entity_type"`
	Action     string    `json:"action"`
	EntityID   string    `json:"entity_id"`
	Outcome    string    `json:"outcome"`
	Timestamp  time.Time `json:"timestamp"`
}
