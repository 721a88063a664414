// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

// Package metrics provides Prometheus instrumentation, exposed at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook metrics

	WebhooksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "b24sync_webhooks_received_total",
			Help: "Total inbound webhook deliveries by event name",
		},
		[]string{"event"},
	)

	WebhooksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "b24sync_webhooks_processed_total",
			Help: "Processed webhooks by entity type, action and outcome",
		},
		[]string{"entity_type", "action", "outcome"}, // outcome: synced, skipped, ignored, failed
	)

	WebhookRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "b24sync_webhook_rejections_total",
			Help: "Webhook envelopes rejected before dispatch",
		},
		[]string{"reason"}, // user_agent, content_type, body, token, method
	)

	// Dispatcher metrics

	RetryAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "b24sync_retry_attempts_total",
			Help: "Dispatcher retry attempts beyond the first try",
		},
	)

	ProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "b24sync_processing_duration_seconds",
			Help:    "End-to-end webhook processing duration, retries included",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"entity_type"},
	)

	// Bitrix REST client metrics

	BitrixRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "b24sync_bitrix_request_duration_seconds",
			Help:    "Outbound Bitrix24 REST call duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	BitrixRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "b24sync_bitrix_request_errors_total",
			Help: "Outbound Bitrix24 REST call failures",
		},
		[]string{"method", "error_type"}, // error_type: transport, http_status, api_error, decode
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "b24sync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	// Store metrics

	StoreWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "b24sync_store_writes_total",
			Help: "Collection file writes by collection and result",
		},
		[]string{"collection", "result"},
	)

	// API metrics

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "b24sync_api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "b24sync_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)
