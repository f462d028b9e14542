// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

// Package store defines the object-database abstraction the relay persists
// through, plus the default BadgerDB-backed implementation.
//
// The relay treats the store as an opaque external collaborator: it only
// performs equality lookups, record writes, and atomic edge+counter
// mutations. Anything beyond that (schema declarations, permissions,
// indexes) is out of scope.
package store

import (
	"context"
	"errors"

	"github.com/tomtom215/nuntius/internal/models"
)

// Sentinel errors returned by ObjectStore implementations.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrEdgeExists indicates a follow edge already exists for the ordered pair.
	ErrEdgeExists = errors.New("follow edge already exists")
)

// ObjectStore is the persistence boundary for profiles, messages, and the
// social graph. All blocking operations take a context.
//
// CreateEdge and DeleteEdge mutate the edge and both denormalized profile
// counters as one atomic unit; implementations must guarantee that either
// both apply or neither does. Counter decrements clamp at zero.
type ObjectStore interface {
	// GetProfile returns the profile for an identity, or ErrNotFound.
	GetProfile(ctx context.Context, identity string) (*models.Profile, error)

	// SaveProfile creates or replaces a profile record.
	SaveProfile(ctx context.Context, profile *models.Profile) error

	// ListProfiles returns all profiles. Intended for provisioning and
	// administrative surfaces, not the hot path.
	ListProfiles(ctx context.Context) ([]models.Profile, error)

	// ClearPushToken removes the push token from a profile, if present.
	// Clearing an absent profile or token is a no-op.
	ClearPushToken(ctx context.Context, identity string) error

	// SaveMessage persists a message, assigning its ID and CreatedAt.
	// The returned record carries the assigned fields.
	SaveMessage(ctx context.Context, msg *models.Message) (*models.Message, error)

	// ListConversation returns up to limit messages exchanged between the two
	// identities, newest first.
	ListConversation(ctx context.Context, a, b string, limit int) ([]models.Message, error)

	// GetEdge returns the follow edge for the ordered pair, or ErrNotFound.
	GetEdge(ctx context.Context, from, to string) (*models.FollowEdge, error)

	// CreateEdge creates the edge and increments followingCount(from) and
	// followersCount(to) atomically. Returns ErrEdgeExists if present and
	// ErrNotFound if either profile is missing.
	CreateEdge(ctx context.Context, from, to string) (*models.FollowEdge, error)

	// DeleteEdge removes the edge and decrements both counters atomically,
	// clamping at zero. Returns ErrNotFound if the edge does not exist.
	DeleteEdge(ctx context.Context, from, to string) error

	// ListFollowing returns identities that from follows, up to limit.
	ListFollowing(ctx context.Context, from string, limit int) ([]string, error)

	// ListFollowers returns identities following to, up to limit.
	ListFollowers(ctx context.Context, to string, limit int) ([]string, error)

	// Close releases store resources.
	Close() error
}
