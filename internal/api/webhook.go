// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dkurguzov/b24sync/internal/dispatcher"
	"github.com/dkurguzov/b24sync/internal/journal"
	"github.com/dkurguzov/b24sync/internal/logging"
	"github.com/dkurguzov/b24sync/internal/metrics"
	"github.com/dkurguzov/b24sync/internal/models"
)

// maxWebhookBodySize bounds the inbound payload; CRM deliveries are a few
// kilobytes.
const maxWebhookBodySize = 1 << 20

// handleWebhook is the single inbound integration point for Bitrix24.
//
// The retry loop runs synchronously inside this request: a slow CRM holds
// the delivery open for up to (attempts x max delay). Bitrix24 tolerates
// this and re-delivers on timeout, which the always-re-fetch design makes
// safe to replay.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "failed to read request body", err)
		return
	}
	if len(body) == 0 {
		metrics.WebhookRejections.WithLabelValues("body").Inc()
		respondError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "empty request body", nil)
		return
	}

	env, err := dispatcher.ValidateWebhook(r.Header, body)
	if err != nil {
		logging.Warn().
			Str("error", logging.SanitizeValue(err.Error())).
			Str("remote", r.RemoteAddr).
			Msg("Webhook rejected")
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "webhook validation failed", err)
		return
	}

	metrics.WebhooksReceived.WithLabelValues(logging.SanitizeValue(env.Event)).Inc()

	res := s.dispatcher.ProcessWithRetry(r.Context(), env)
	s.record(env, res)

	switch {
	case errors.Is(res.Err, dispatcher.ErrTokenMismatch):
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "application token mismatch", res.Err)
	case errors.Is(res.Err, dispatcher.ErrBadEnvelope):
		respondError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "webhook envelope is incomplete", res.Err)
	case !res.Success():
		respondError(w, http.StatusInternalServerError, "PROCESSING_FAILED", "webhook processing failed", res.Err)
	default:
		respondSuccess(w, http.StatusOK, map[string]string{
			"event":   env.Event,
			"outcome": string(res.Outcome),
		})
	}
}

// record writes the delivery to the journal and notifies live dashboard
// clients. Both are best-effort side channels; failures never affect the
// webhook response.
func (s *Server) record(env *models.WebhookEnvelope, res dispatcher.Result) {
	var errText string
	if res.Err != nil {
		errText = res.Err.Error()
	}

	if err := s.journal.Record(journal.Entry{
		Event:      env.Event,
		EntityType: string(res.EntityType),
		Action:     string(res.Action),
		EntityID:   res.EntityID,
		Outcome:    string(res.Outcome),
		Attempts:   res.Attempts,
		Error:      errText,
	}); err != nil {
		logging.Warn().Err(err).Msg("Failed to journal webhook delivery")
	}

	s.hub.BroadcastSyncEvent(models.SyncEvent{
		Event:      env.Event,
		EntityType: string(res.EntityType),
		Action:     string(res.Action),
		EntityID:   res.EntityID,
		Outcome:    string(res.Outcome),
		Timestamp:  time.Now().UTC(),
	})
}
