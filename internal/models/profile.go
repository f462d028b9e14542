// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

// Package models defines the persistent records and wire payloads shared
// across the relay: profiles, messages, follow edges, and the API envelope.
package models

import "time"

// Profile is the durable record for one user identity.
//
// Identity is an opaque token issued by an external identity provider and is
// immutable once assigned. PushToken is optional and is cleared automatically
// when the push provider reports it permanently invalid.
//
// FollowersCount and FollowingCount are denormalized from follow edges and
// must never go negative; all decrements clamp at zero.
type Profile struct {
	Identity       string    `json:"identity" validate:"required"`
	DisplayName    string    `json:"display_name"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	PushToken      string    `json:"push_token,omitempty"`
	FollowersCount int64     `json:"followers_count"`
	FollowingCount int64     `json:"following_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasPushToken reports whether the profile can receive push notifications.
func (p *Profile) HasPushToken() bool {
	return p != nil && p.PushToken != ""
}
