// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

// Package dispatcher turns validated webhook envelopes into storage
// mutations.
//
// The pipeline is: resolve entity type and action from the event name,
// fetch the current entity state from the CRM (webhook payloads are change
// notifications, never trusted as state), map it, and apply the per-entity
// branch. Transient failures are retried on a configured delay schedule;
// structural problems in the envelope fail immediately. Panics are not
// recovered here; the HTTP layer's recoverer turns them into a 500 without
// consuming the retry budget.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkurguzov/b24sync/internal/bitrix"
	"github.com/dkurguzov/b24sync/internal/config"
	"github.com/dkurguzov/b24sync/internal/logging"
	"github.com/dkurguzov/b24sync/internal/mapper"
	"github.com/dkurguzov/b24sync/internal/metrics"
	"github.com/dkurguzov/b24sync/internal/models"
	"github.com/dkurguzov/b24sync/internal/store"
)

// Sentinel failures that bypass the retry loop.
var (
	// ErrBadEnvelope marks a structural data error (missing event name or
	// entity ID). Non-transient; mapped to HTTP 400.
	ErrBadEnvelope = errors.New("structural envelope error")

	// ErrTokenMismatch marks a failed application_token comparison.
	ErrTokenMismatch = errors.New("application token mismatch")
)

// Outcome classifies what processing did with a webhook.
type Outcome string

const (
	// OutcomeSynced means a local record was written.
	OutcomeSynced Outcome = "synced"
	// OutcomeSkipped means the entity was examined and deliberately not
	// written (opt-in gate).
	OutcomeSkipped Outcome = "skipped"
	// OutcomeIgnored means the event required no storage action (unknown
	// or disabled event, log-only branch). Still a success.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeFailed means every attempt failed.
	OutcomeFailed Outcome = "failed"
)

// Result is the summary of one processed webhook.
type Result struct {
	Outcome    Outcome
	EntityType bitrix.EntityType
	Action     bitrix.Action
	EntityID   string
	Attempts   int
	Err        error
}

// Success reports whether the webhook should be acknowledged with HTTP 200.
func (r Result) Success() bool {
	return r.Outcome != OutcomeFailed
}

// Dispatcher executes the fetch-map-store pipeline with bounded retry.
type Dispatcher struct {
	client bitrix.ClientInterface
	store  *store.Store
	mapper *mapper.Mapper
	cfg    *config.Config

	// wait blocks for a retry delay; injectable so tests do not sleep.
	wait func(ctx context.Context, d time.Duration) error
}

// New creates a Dispatcher.
func New(client bitrix.ClientInterface, st *store.Store, m *mapper.Mapper, cfg *config.Config) *Dispatcher {
	return &Dispatcher{
		client: client,
		store:  st,
		mapper: m,
		cfg:    cfg,
		wait:   waitContext,
	}
}

func waitContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// delayFor returns the wait before retrying after the given 1-based
// attempt. Attempts past the end of the schedule reuse the last entry.
func (d *Dispatcher) delayFor(attempt int) time.Duration {
	delays := d.cfg.Retry.Delays
	if len(delays) == 0 {
		return 0
	}
	if attempt > len(delays) {
		attempt = len(delays)
	}
	return delays[attempt-1]
}

// ProcessWithRetry runs the full pipeline for one envelope.
//
// Unknown and disabled events resolve to OutcomeIgnored without a CRM
// call. A missing entity ID fails immediately; only the fetch-map-store
// attempt itself is retried.
func (d *Dispatcher) ProcessWithRetry(ctx context.Context, env *models.WebhookEnvelope) Result {
	start := time.Now()

	if token := d.cfg.Bitrix.ApplicationToken; token != "" && env.ApplicationToken != token {
		metrics.WebhookRejections.WithLabelValues("token").Inc()
		return Result{Outcome: OutcomeFailed, Err: ErrTokenMismatch}
	}

	if env.Event == "" {
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("%w: missing event name", ErrBadEnvelope)}
	}

	entityType := bitrix.EntityTypeFor(env.Event)
	action := bitrix.ActionFor(env.Event)
	res := Result{EntityType: entityType, Action: action}

	if !d.cfg.Bitrix.EventEnabled(env.Event) {
		logging.Info().Str("event", env.Event).Msg("Event not in enabled list, ignoring")
		res.Outcome = OutcomeIgnored
		return d.finish(env, res, start)
	}
	if entityType == bitrix.EntityUnknown || action == bitrix.ActionUnknown {
		logging.Warn().Str("event", env.Event).Msg("Unrecognized event, ignoring")
		res.Outcome = OutcomeIgnored
		return d.finish(env, res, start)
	}

	entityID, ok := env.EntityID()
	if !ok {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("%w: missing entity ID", ErrBadEnvelope)
		return d.finish(env, res, start)
	}
	res.EntityID = entityID

	for attempt := 1; attempt <= d.cfg.Retry.MaxAttempts; attempt++ {
		res.Attempts = attempt
		if attempt > 1 {
			metrics.RetryAttempts.Inc()
		}

		outcome, err := d.processOnce(ctx, entityType, action, entityID)
		if err == nil {
			res.Outcome = outcome
			res.Err = nil
			return d.finish(env, res, start)
		}
		res.Err = err

		logging.Warn().
			Err(err).
			Str("event", env.Event).
			Str("entity_id", entityID).
			Int("attempt", attempt).
			Msg("Webhook processing attempt failed")

		if attempt == d.cfg.Retry.MaxAttempts {
			break
		}
		if werr := d.wait(ctx, d.delayFor(attempt)); werr != nil {
			res.Err = fmt.Errorf("retry wait canceled: %w", werr)
			break
		}
	}

	res.Outcome = OutcomeFailed
	return d.finish(env, res, start)
}

// finish records metrics and the structured processing log line.
func (d *Dispatcher) finish(env *models.WebhookEnvelope, res Result, start time.Time) Result {
	elapsed := time.Since(start)
	metrics.WebhooksProcessed.WithLabelValues(string(res.EntityType), string(res.Action), string(res.Outcome)).Inc()
	if res.EntityType != bitrix.EntityUnknown {
		metrics.ProcessingDuration.WithLabelValues(string(res.EntityType)).Observe(elapsed.Seconds())
	}

	evt := logging.Info()
	if res.Outcome == OutcomeFailed {
		evt = logging.Error().Err(res.Err)
	}
	evt.
		Str("event", env.Event).
		Str("entity_type", string(res.EntityType)).
		Str("action", string(res.Action)).
		Str("entity_id", res.EntityID).
		Str("outcome", string(res.Outcome)).
		Int("attempts", res.Attempts).
		Dur("elapsed", elapsed).
		Msg("Webhook processed")
	return res
}

// processOnce performs a single fetch-map-store attempt.
func (d *Dispatcher) processOnce(ctx context.Context, entityType bitrix.EntityType, action bitrix.Action, entityID string) (Outcome, error) {
	// Delete branches consume no entity data, and the entity is typically
	// already gone from the CRM; fetching first would doom every delete to
	// retry exhaustion.
	if action == bitrix.ActionDelete {
		logging.Info().
			Str("entity_type", string(entityType)).
			Str("entity_id", entityID).
			Msg("Delete event acknowledged, local record retained")
		return OutcomeIgnored, nil
	}

	raw, err := d.client.FetchEntity(ctx, entityType, entityID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("fetch %s %s: %w", entityType, entityID, err)
	}

	switch entityType {
	case bitrix.EntityContact:
		return d.applyContact(raw)
	case bitrix.EntityCompany:
		return d.applyCompany(raw, action)
	case bitrix.EntityDeal:
		return d.applyDeal(raw)
	case bitrix.EntityProject:
		return d.applyProject(raw, action)
	default:
		return OutcomeFailed, fmt.Errorf("unsupported entity type %q", entityType)
	}
}

// applyContact handles contact create and update. Both reduce to the same
// rule: write only when the opt-in gate passes. The store preserves the
// personal-account ID and created_at of an existing record, which is the
// only behavioral difference between create and update.
func (d *Dispatcher) applyContact(raw models.Document) (Outcome, error) {
	if !d.mapper.OptedIn(raw) {
		logging.Info().
			Str("entity_id", entityIDForLog(raw)).
			Msg("Contact not opted in, skipping")
		return OutcomeSkipped, nil
	}

	contact := d.mapper.MapContact(raw)
	if _, err := d.store.UpsertContact(contact); err != nil {
		return OutcomeFailed, fmt.Errorf("store contact %s: %w", contact.BitrixID, err)
	}
	return OutcomeSynced, nil
}

// applyCompany overwrites the company on update. Create events are
// acknowledged without a storage write; the subsequent update event
// carries the fully populated record.
func (d *Dispatcher) applyCompany(raw models.Document, action bitrix.Action) (Outcome, error) {
	if action == bitrix.ActionCreate {
		logging.Info().Str("entity_id", entityIDForLog(raw)).Msg("Company create acknowledged")
		return OutcomeIgnored, nil
	}

	company := d.mapper.MapCompany(raw)
	if err := d.store.UpsertCompany(company); err != nil {
		return OutcomeFailed, fmt.Errorf("store company %s: %w", company.ID, err)
	}
	return OutcomeSynced, nil
}

// applyDeal upserts on both create and update; an update for an unseen
// deal creates it.
func (d *Dispatcher) applyDeal(raw models.Document) (Outcome, error) {
	deal := d.mapper.MapDeal(raw)
	if err := d.store.UpsertDeal(deal); err != nil {
		return OutcomeFailed, fmt.Errorf("store deal %s: %w", deal.ID, err)
	}
	return OutcomeSynced, nil
}

// applyProject stores the mapped item on create, deriving company_id
// through the locally synced contact. Updates are acknowledged without a
// write.
func (d *Dispatcher) applyProject(raw models.Document, action bitrix.Action) (Outcome, error) {
	if action == bitrix.ActionUpdate {
		logging.Info().Str("entity_id", entityIDForLog(raw)).Msg("Project update acknowledged")
		return OutcomeIgnored, nil
	}

	project := d.mapper.MapProject(raw, d.store.GetContact)
	if err := d.store.UpsertProject(project); err != nil {
		return OutcomeFailed, fmt.Errorf("store project %s: %w", project.BitrixID, err)
	}
	return OutcomeSynced, nil
}

func entityIDForLog(raw models.Document) string {
	if s, ok := raw.String("ID"); ok {
		return s
	}
	return raw.StringOr("id", "")
}
