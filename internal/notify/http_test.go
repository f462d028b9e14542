// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/nuntius/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

func TestSendSuccess(t *testing.T) {
	var got pushRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewHTTPNotifier(HTTPConfig{URL: server.URL, APIKey: "secret"})
	err := n.Send(context.Background(), "tok-1", Payload{
		SenderName:   "Alice",
		SenderAvatar: "https://example.com/a.png",
		Body:         "hi",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if got.To != "tok-1" || got.Title != "Alice" || got.Body != "hi" {
		t.Errorf("unexpected request payload: %+v", got)
	}
}

func TestSendTokenInvalid(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusGone} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			defer server.Close()

			n := NewHTTPNotifier(HTTPConfig{URL: server.URL})
			err := n.Send(context.Background(), "dead-token", Payload{Body: "x"})
			if !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("expected ErrTokenInvalid, got %v", err)
			}
		})
	}
}

func TestSendProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := NewHTTPNotifier(HTTPConfig{URL: server.URL})
	err := n.Send(context.Background(), "tok", Payload{Body: "x"})
	if err == nil {
		t.Fatal("expected error for provider 500")
	}
	if errors.Is(err, ErrTokenInvalid) {
		t.Error("provider error must not be reported as invalid token")
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewHTTPNotifier(HTTPConfig{
		URL:                     server.URL,
		BreakerFailureThreshold: 3,
		BreakerOpenTimeout:      time.Minute,
	})

	for i := 0; i < 5; i++ {
		_ = n.Send(context.Background(), "tok", Payload{Body: "x"})
	}

	// After the third consecutive failure the circuit is open and no
	// further provider calls are made.
	if got := calls.Load(); got != 3 {
		t.Errorf("provider called %d times, want 3", got)
	}
}

func TestTokenInvalidDoesNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	n := NewHTTPNotifier(HTTPConfig{
		URL:                     server.URL,
		BreakerFailureThreshold: 2,
		BreakerOpenTimeout:      time.Minute,
	})

	for i := 0; i < 4; i++ {
		if err := n.Send(context.Background(), "dead", Payload{Body: "x"}); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	if got := calls.Load(); got != 4 {
		t.Errorf("provider called %d times, want 4 (invalid tokens must not open the circuit)", got)
	}
}

func TestNopNotifier(t *testing.T) {
	if err := (Nop{}).Send(context.Background(), "any", Payload{Body: "x"}); err != nil {
		t.Errorf("nop notifier returned %v", err)
	}
}
