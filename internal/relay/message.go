// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

// Package relay implements the presence-aware fan-out core: the message
// relay (resolve → persist → deliver → acknowledge) and the social graph
// relay (validate → mutate edge → mutate counters → notify).
//
// The relay provides no ordering guarantees across requests, even between
// the same two identities: two concurrent sends may persist and deliver in
// either order. Persistence is the durability boundary; delivery past it is
// best effort and never retried.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/tomtom215/nuntius/internal/logging"
	"github.com/tomtom215/nuntius/internal/metrics"
	"github.com/tomtom215/nuntius/internal/models"
	"github.com/tomtom215/nuntius/internal/notify"
	"github.com/tomtom215/nuntius/internal/presence"
	"github.com/tomtom215/nuntius/internal/store"
)

// DefaultMaxTextRunes bounds message bodies to keep storage growth sane.
const DefaultMaxTextRunes = 2000

// EventNewMessage is the event pushed to a live recipient connection.
const EventNewMessage = "newMessage"

// DeliveryPath identifies how a persisted message reached (or failed to
// reach) its recipient.
type DeliveryPath string

const (
	// DeliveryLive means the message was pushed over the recipient's
	// live connection.
	DeliveryLive DeliveryPath = "live"

	// DeliveryPush means the recipient was offline and a push
	// notification was handed to the provider.
	DeliveryPush DeliveryPath = "push"

	// DeliveryNone means the message was persisted but no delivery
	// channel was available (or the push attempt failed). The send still
	// succeeds: persistence is the durability boundary.
	DeliveryNone DeliveryPath = "none"
)

// SendOutcome is the terminal state of a successful send pipeline.
type SendOutcome struct {
	// Message is the persisted record with store-assigned ID and timestamp.
	Message *models.Message

	// Path is the delivery path taken for the recipient.
	Path DeliveryPath
}

// MessageRelay validates, persists, and fans out chat messages.
//
// Delivery policy: push notifications are sent only when the recipient has
// no live presence entry. Some historical deployments pushed unconditionally;
// offline-only is the documented choice here to avoid duplicate notification
// of a recipient who already saw the message live.
type MessageRelay struct {
	store        store.ObjectStore
	presence     *presence.Directory
	notifier     notify.Notifier
	maxTextRunes int
}

// NewMessageRelay wires a message relay. A nil notifier disables push.
func NewMessageRelay(st store.ObjectStore, dir *presence.Directory, notifier notify.Notifier) *MessageRelay {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &MessageRelay{
		store:        st,
		presence:     dir,
		notifier:     notifier,
		maxTextRunes: DefaultMaxTextRunes,
	}
}

// SetMaxTextRunes overrides the message body length cap.
func (r *MessageRelay) SetMaxTextRunes(n int) {
	if n > 0 {
		r.maxTextRunes = n
	}
}

// Send runs the pipeline for one message: received → recipient-resolved →
// persisted → delivered. The returned outcome feeds the sender's
// acknowledgment; errors feed the sender's structured error event. The
// recipient is never informed of a failure aimed at them.
func (r *MessageRelay) Send(ctx context.Context, senderID, receiverID, text string) (*SendOutcome, error) {
	start := time.Now()

	if err := r.validate(senderID, receiverID, text); err != nil {
		metrics.RecordSendFailure("invalid_argument")
		return nil, err
	}

	// Stage 1: resolve the recipient. Failure here is pre-durability, so
	// no message record is created.
	recipient, err := r.store.GetProfile(ctx, receiverID)
	if errors.Is(err, store.ErrNotFound) {
		metrics.RecordSendFailure("recipient_not_found")
		return nil, fmt.Errorf("%w: %s", ErrRecipientNotFound, receiverID)
	}
	if err != nil {
		metrics.RecordSendFailure("store_error")
		return nil, fmt.Errorf("resolve recipient: %w", err)
	}

	// Stage 2: persist. Past this point the message is sent, whatever
	// happens to delivery.
	saved, err := r.store.SaveMessage(ctx, &models.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
	})
	if err != nil {
		metrics.RecordSendFailure("store_error")
		return nil, fmt.Errorf("persist message: %w", err)
	}

	// Stage 3: deliver, best effort.
	path := r.deliver(ctx, saved, recipient)

	metrics.RecordSendOutcome(string(path), time.Since(start))
	logging.Ctx(ctx).Debug().
		Str("message_id", saved.ID).
		Str("sender", senderID).
		Str("receiver", receiverID).
		Str("path", string(path)).
		Msg("message relayed")

	return &SendOutcome{Message: saved, Path: path}, nil
}

func (r *MessageRelay) validate(senderID, receiverID, text string) error {
	if senderID == "" {
		return fmt.Errorf("%w: sender identity is required", ErrInvalidArgument)
	}
	if receiverID == "" {
		return fmt.Errorf("%w: receiver identity is required", ErrInvalidArgument)
	}
	if text == "" {
		return fmt.Errorf("%w: message text is required", ErrInvalidArgument)
	}
	if utf8.RuneCountInString(text) > r.maxTextRunes {
		return fmt.Errorf("%w: message text exceeds %d characters", ErrInvalidArgument, r.maxTextRunes)
	}
	return nil
}

// deliver picks at most one delivery path: the live connection when the
// recipient is present, otherwise a push notification when the profile
// carries a token. Both paths are fire and forget.
func (r *MessageRelay) deliver(ctx context.Context, msg *models.Message, recipient *models.Profile) DeliveryPath {
	if conn, ok := r.presence.Resolve(msg.ReceiverID); ok {
		if conn.Send(EventNewMessage, msg) {
			return DeliveryLive
		}
		// The connection's queue was full or closing; fall through to the
		// asynchronous path as if the recipient were offline.
		logging.Warn().Str("receiver", msg.ReceiverID).Msg("live delivery dropped, falling back to push")
	}

	if !recipient.HasPushToken() {
		return DeliveryNone
	}

	payload := notify.Payload{
		SenderName: msg.SenderID,
		Body:       msg.Text,
	}
	if sender, err := r.store.GetProfile(ctx, msg.SenderID); err == nil {
		if sender.DisplayName != "" {
			payload.SenderName = sender.DisplayName
		}
		payload.SenderAvatar = sender.AvatarURL
	}

	err := r.notifier.Send(ctx, recipient.PushToken, payload)
	if errors.Is(err, notify.ErrTokenInvalid) {
		// Self-healing: drop the dead token so future sends skip the
		// provider entirely. Never surfaced to any client.
		if clearErr := r.store.ClearPushToken(ctx, msg.ReceiverID); clearErr != nil {
			logging.Error().Err(clearErr).Str("receiver", msg.ReceiverID).Msg("failed to clear invalid push token")
		} else {
			metrics.PushTokensCleared.Inc()
		}
		return DeliveryNone
	}
	if err != nil {
		logging.Warn().Err(err).Str("receiver", msg.ReceiverID).Msg("push notification failed")
		return DeliveryNone
	}

	return DeliveryPush
}
