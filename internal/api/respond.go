// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/dkurguzov/b24sync/internal/logging"
	"github.com/dkurguzov/b24sync/internal/models"
)

// respondJSON writes a response envelope. Bodies are pretty-printed UTF-8
// JSON; the CRM's webhook delivery log shows them verbatim, so readability
// is part of the interface.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	data, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondSuccess wraps data in a success envelope.
func respondSuccess(w http.ResponseWriter, status int, data interface{}) {
	respondJSON(w, status, &models.APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
	})
}

// respondError writes an error envelope and logs the underlying cause.
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().
			Str("code", code).
			Str("error", logging.SanitizeValue(err.Error())).
			Msg("API error")
	}

	respondJSON(w, status, &models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
		Error: &models.APIError{
			Code:    code,
			Message: message,
		},
	})
}
