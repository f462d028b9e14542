// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

package models

import "time"

// Message is an immutable chat message record. The store assigns ID and
// CreatedAt when the message is persisted; once persisted the message is
// considered sent regardless of downstream delivery outcome.
type Message struct {
	ID         string    `json:"objectId"`
	SenderID   string    `json:"senderId" validate:"required"`
	ReceiverID string    `json:"receiverId" validate:"required"`
	Text       string    `json:"text" validate:"required"`
	CreatedAt  time.Time `json:"createdAt"`
}

// FollowEdge is a directed follow relationship. At most one edge exists per
// ordered (From, To) pair; follow creates it, unfollow destroys it.
type FollowEdge struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	CreatedAt time.Time `json:"created_at"`
}
