// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

package bitrix

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/dkurguzov/b24sync/internal/config"
	"github.com/dkurguzov/b24sync/internal/logging"
	"github.com/dkurguzov/b24sync/internal/metrics"
	"github.com/dkurguzov/b24sync/internal/models"
)

// BreakerClient wraps Client with a circuit breaker so a down or degraded
// Bitrix24 portal fails fast instead of holding every webhook request open
// for its full timeout and retry budget.
//
// The breaker uses real time for its interval and timeout calculations;
// unit tests should exercise the wrapped client directly.
type BreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[interface{}]
}

// NewBreakerClient creates a Bitrix24 client guarded by a circuit breaker.
// The circuit opens after a 60% failure rate over at least 10 requests,
// stays open for 2 minutes, then admits up to 3 probe requests.
func NewBreakerClient(cfg *config.BitrixConfig) *BreakerClient {
	const cbName = "bitrix-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // closed

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &BreakerClient{
		client: NewClient(cfg),
		cb:     cb,
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

// execute runs fn through the breaker, preserving its typed result.
func execute[T any](b *BreakerClient, fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// Ping implements ClientInterface.
func (b *BreakerClient) Ping(ctx context.Context) error {
	_, err := execute(b, func() (struct{}, error) {
		return struct{}{}, b.client.Ping(ctx)
	})
	return err
}

// FetchEntity implements ClientInterface.
func (b *BreakerClient) FetchEntity(ctx context.Context, entityType EntityType, id string) (models.Document, error) {
	return execute(b, func() (models.Document, error) {
		return b.client.FetchEntity(ctx, entityType, id)
	})
}

// GetContact implements ClientInterface.
func (b *BreakerClient) GetContact(ctx context.Context, id string) (models.Document, error) {
	return execute(b, func() (models.Document, error) {
		return b.client.GetContact(ctx, id)
	})
}

// GetCompany implements ClientInterface.
func (b *BreakerClient) GetCompany(ctx context.Context, id string) (models.Document, error) {
	return execute(b, func() (models.Document, error) {
		return b.client.GetCompany(ctx, id)
	})
}

// GetDeal implements ClientInterface.
func (b *BreakerClient) GetDeal(ctx context.Context, id string) (models.Document, error) {
	return execute(b, func() (models.Document, error) {
		return b.client.GetDeal(ctx, id)
	})
}

// GetItem implements ClientInterface.
func (b *BreakerClient) GetItem(ctx context.Context, id string) (models.Document, error) {
	return execute(b, func() (models.Document, error) {
		return b.client.GetItem(ctx, id)
	})
}

// GetUser implements ClientInterface.
func (b *BreakerClient) GetUser(ctx context.Context, id string) (models.Document, error) {
	return execute(b, func() (models.Document, error) {
		return b.client.GetUser(ctx, id)
	})
}

// ListUsers implements ClientInterface.
func (b *BreakerClient) ListUsers(ctx context.Context) ([]models.Document, error) {
	return execute(b, func() ([]models.Document, error) {
		return b.client.ListUsers(ctx)
	})
}
