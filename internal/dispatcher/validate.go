// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

package dispatcher

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dkurguzov/b24sync/internal/metrics"
	"github.com/dkurguzov/b24sync/internal/models"
)

// expectedUserAgent is the product-name substring required in the
// User-Agent header of webhook deliveries.
const expectedUserAgent = "Bitrix24"

// ErrRejected marks a webhook request that failed pre-processing
// validation. Rejections are sentinel values, not panics; the handler maps
// them to HTTP 400.
var ErrRejected = errors.New("webhook rejected")

// ValidateWebhook checks the delivery headers and decodes the body into an
// envelope.
//
// The check is intentionally permissive: a User-Agent substring match and
// a parseable body. There is no signature or shared-secret verification
// here; a correctly-shaped body with a spoofed User-Agent passes. The only
// further gate is the optional application_token comparison in the
// dispatcher.
func ValidateWebhook(header http.Header, body []byte) (*models.WebhookEnvelope, error) {
	ua := header.Get("User-Agent")
	if !strings.Contains(ua, expectedUserAgent) {
		metrics.WebhookRejections.WithLabelValues("user_agent").Inc()
		return nil, fmt.Errorf("%w: unexpected user agent %q", ErrRejected, ua)
	}

	contentType := header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "application/json"):
		env, err := models.ParseWebhookJSON(body)
		if err != nil {
			metrics.WebhookRejections.WithLabelValues("body").Inc()
			return nil, fmt.Errorf("%w: %v", ErrRejected, err)
		}
		return env, nil

	case strings.Contains(contentType, "application/x-www-form-urlencoded"):
		env, err := models.ParseWebhookForm(body)
		if err != nil {
			metrics.WebhookRejections.WithLabelValues("body").Inc()
			return nil, fmt.Errorf("%w: %v", ErrRejected, err)
		}
		return env, nil

	default:
		metrics.WebhookRejections.WithLabelValues("content_type").Inc()
		return nil, fmt.Errorf("%w: unsupported content type %q", ErrRejected, contentType)
	}
}
