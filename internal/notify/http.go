// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/nuntius/internal/logging"
	"github.com/tomtom215/nuntius/internal/metrics"
)

const defaultSendTimeout = 10 * time.Second

// HTTPConfig configures the HTTP push provider client.
type HTTPConfig struct {
	// URL is the provider's send endpoint.
	URL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Timeout bounds a single send call. Default: 10s.
	Timeout time.Duration

	// BreakerFailureThreshold is the number of consecutive provider
	// failures before the circuit opens. Default: 5.
	BreakerFailureThreshold uint32

	// BreakerOpenTimeout is how long the circuit stays open before
	// allowing a probe request. Default: 30s.
	BreakerOpenTimeout time.Duration
}

// sendResult carries the provider's definitive answer through the breaker.
// An invalid token is a successful provider call with a definite outcome,
// so it must not count toward tripping the circuit.
type sendResult struct {
	tokenInvalid bool
}

// HTTPNotifier sends notifications through an HTTP push provider. Calls are
// wrapped in a circuit breaker so a dead provider degrades to fast local
// failures instead of piling up slow requests.
type HTTPNotifier struct {
	url     string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[sendResult]
}

// compile-time interface check
var _ Notifier = (*HTTPNotifier)(nil)

// NewHTTPNotifier creates a provider client from config.
func NewHTTPNotifier(cfg HTTPConfig) *HTTPNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSendTimeout
	}
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 5
	}
	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    "push-notifier",
		Timeout: cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("push notifier circuit state changed")
		},
	}

	return &HTTPNotifier{
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker[sendResult](settings),
	}
}

// pushRequest is the provider wire format.
type pushRequest struct {
	To        string `json:"to"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Send delivers one notification. Returns ErrTokenInvalid when the provider
// reports the token dead (HTTP 404/410), or a wrapped error for anything
// else. No retries at this layer.
func (n *HTTPNotifier) Send(ctx context.Context, token string, payload Payload) error {
	result, err := n.breaker.Execute(func() (sendResult, error) {
		return n.post(ctx, token, payload)
	})
	if err != nil {
		metrics.PushNotifications.WithLabelValues("error").Inc()
		return fmt.Errorf("push send: %w", err)
	}

	if result.tokenInvalid {
		metrics.PushNotifications.WithLabelValues("token_invalid").Inc()
		return ErrTokenInvalid
	}

	metrics.PushNotifications.WithLabelValues("sent").Inc()
	return nil
}

func (n *HTTPNotifier) post(ctx context.Context, token string, payload Payload) (sendResult, error) {
	body, err := json.Marshal(pushRequest{
		To:        token,
		Title:     payload.SenderName,
		Body:      payload.Body,
		AvatarURL: payload.SenderAvatar,
	})
	if err != nil {
		return sendResult{}, fmt.Errorf("marshal push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return sendResult{}, fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.apiKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return sendResult{}, fmt.Errorf("call push provider: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return sendResult{}, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// The provider's way of saying the token is permanently dead.
		return sendResult{tokenInvalid: true}, nil
	default:
		return sendResult{}, fmt.Errorf("push provider status %d", resp.StatusCode)
	}
}
