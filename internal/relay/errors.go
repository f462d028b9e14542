// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

package relay

import "errors"

// Relay error taxonomy. These are the failures surfaced to the initiating
// client as structured error events; none of them terminate a connection or
// the process. AlreadyFollowing and NotFollowing are deliberately NOT errors:
// they are recognized terminal outcomes carried on FollowOutcome.
var (
	// ErrInvalidArgument indicates a malformed request (empty identity,
	// empty or oversized text).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrRecipientNotFound indicates the message recipient has no profile.
	// Reported to the sender only; the recipient is never informed.
	ErrRecipientNotFound = errors.New("recipient not found")

	// ErrSelfFollow indicates an identity attempted to follow itself.
	ErrSelfFollow = errors.New("cannot follow yourself")

	// ErrProfileNotFound indicates a follow/unfollow endpoint has no profile.
	ErrProfileNotFound = errors.New("profile not found")
)
