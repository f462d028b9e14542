// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

// Package notify integrates the external push-notification provider. The
// provider is opaque: the relay only needs Send(token, payload) and one
// observable failure mode, "token no longer valid".
package notify

import (
	"context"
	"errors"
)

// ErrTokenInvalid indicates the provider reported the device token as
// permanently invalid. The relay reacts by clearing the token from the
// recipient's profile; the error is never surfaced to clients.
var ErrTokenInvalid = errors.New("push token is no longer valid")

// Payload is the structured notification content delivered to a device.
type Payload struct {
	SenderName   string `json:"sender_name"`
	SenderAvatar string `json:"sender_avatar,omitempty"`
	Body         string `json:"body"`
}

// Notifier delivers a best-effort asynchronous notification to a device
// token. Implementations return ErrTokenInvalid for dead tokens and any
// other error for transient provider failures; neither is retried.
type Notifier interface {
	Send(ctx context.Context, token string, payload Payload) error
}

// Nop is a Notifier that silently drops every notification. Used when push
// delivery is disabled.
type Nop struct{}

// Send implements Notifier.
func (Nop) Send(ctx context.Context, token string, payload Payload) error {
	return nil
}
