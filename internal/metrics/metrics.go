// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

// Package metrics provides Prometheus instrumentation for the relay:
// message persistence and delivery paths, social graph mutations, push
// notification outcomes, live connection counts, and API request metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Message relay metrics

	MessagesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_messages_persisted_total",
			Help: "Total number of messages durably persisted",
		},
	)

	MessageDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_message_deliveries_total",
			Help: "Total message deliveries by path",
		},
		[]string{"path"}, // "live", "push", "none"
	)

	SendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_send_failures_total",
			Help: "Total failed send requests by reason",
		},
		[]string{"reason"},
	)

	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_send_duration_seconds",
			Help:    "End-to-end duration of the send pipeline",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	// Social graph metrics

	FollowOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_follow_operations_total",
			Help: "Total follow/unfollow operations by result",
		},
		[]string{"operation", "result"}, // operation: "follow"|"unfollow"
	)

	// Push notification metrics

	PushNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_push_notifications_total",
			Help: "Total push notification attempts by outcome",
		},
		[]string{"outcome"}, // "sent", "token_invalid", "error"
	)

	PushTokensCleared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_push_tokens_cleared_total",
			Help: "Total push tokens cleared after the provider reported them invalid",
		},
	)

	// WebSocket metrics

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_websocket_connections",
			Help: "Current number of open WebSocket connections",
		},
	)

	PresenceEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_presence_entries",
			Help: "Current number of identities with a live presence entry",
		},
	)

	// API endpoint metrics

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)
)

// RecordAPIRequest records one completed API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(active bool) {
	if active {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordSendOutcome records a completed send pipeline run.
func RecordSendOutcome(path string, duration time.Duration) {
	MessagesPersisted.Inc()
	MessageDeliveries.WithLabelValues(path).Inc()
	SendDuration.Observe(duration.Seconds())
}

// RecordSendFailure records a failed send by reason code.
func RecordSendFailure(reason string) {
	SendFailures.WithLabelValues(reason).Inc()
}

// RecordFollowOperation records a follow or unfollow by terminal result.
func RecordFollowOperation(operation, result string) {
	FollowOperations.WithLabelValues(operation, result).Inc()
}

// StatusCodeLabel converts a numeric status code to its label form.
func StatusCodeLabel(code int) string {
	return strconv.Itoa(code)
}
