// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/nuntius/internal/logging"
	"github.com/tomtom215/nuntius/internal/metrics"
	"github.com/tomtom215/nuntius/internal/models"
	"github.com/tomtom215/nuntius/internal/presence"
	"github.com/tomtom215/nuntius/internal/store"
)

// EventFollowUpdate is pushed to a live target connection when its follower
// counters change.
const EventFollowUpdate = "followUpdate"

// FollowStatus is the terminal state of a follow/unfollow pipeline.
type FollowStatus string

const (
	// StatusFollowed means a new edge was created and counters adjusted.
	StatusFollowed FollowStatus = "followed"

	// StatusAlreadyFollowing means the edge already existed; nothing was
	// mutated. A recognized terminal state, not an error.
	StatusAlreadyFollowing FollowStatus = "already_following"

	// StatusUnfollowed means the edge was destroyed and counters adjusted.
	StatusUnfollowed FollowStatus = "unfollowed"

	// StatusNotFollowing means there was no edge to destroy. A recognized
	// terminal state, not an error.
	StatusNotFollowing FollowStatus = "not_following"
)

// FollowOutcome carries the terminal status plus both profiles with fresh
// counter values for acknowledgments and broadcasts.
type FollowOutcome struct {
	Status FollowStatus
	Source *models.Profile
	Target *models.Profile
}

// FollowUpdate is the payload pushed to the target's live connection.
type FollowUpdate struct {
	Type           string `json:"type"` // "follow" or "unfollow"
	FromID         string `json:"fromId"`
	FromName       string `json:"fromName,omitempty"`
	FollowersCount int64  `json:"followersCount"`
	FollowingCount int64  `json:"followingCount"`
}

// SocialRelay validates and persists follow edges, maintains the
// denormalized counters, and notifies affected live connections.
type SocialRelay struct {
	store    store.ObjectStore
	presence *presence.Directory
}

// NewSocialRelay wires a social graph relay.
func NewSocialRelay(st store.ObjectStore, dir *presence.Directory) *SocialRelay {
	return &SocialRelay{store: st, presence: dir}
}

// Follow runs the pipeline for one follow request: received → validated →
// edge-mutated → counters-mutated → notified. The edge and both counters
// mutate in one store transaction, so they cannot diverge.
func (r *SocialRelay) Follow(ctx context.Context, fromID, toID string) (*FollowOutcome, error) {
	if err := validatePair(fromID, toID); err != nil {
		metrics.RecordFollowOperation("follow", "invalid")
		return nil, err
	}

	source, target, err := r.resolvePair(ctx, fromID, toID)
	if err != nil {
		metrics.RecordFollowOperation("follow", "profile_not_found")
		return nil, err
	}

	// Idempotent short-circuit: an existing edge is a terminal state,
	// not a failure, and must leave all counters untouched.
	if _, err := r.store.GetEdge(ctx, fromID, toID); err == nil {
		metrics.RecordFollowOperation("follow", "already_following")
		return &FollowOutcome{Status: StatusAlreadyFollowing, Source: source, Target: target}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check edge: %w", err)
	}

	if _, err := r.store.CreateEdge(ctx, fromID, toID); err != nil {
		// A concurrent follow can win the race between check and create.
		if errors.Is(err, store.ErrEdgeExists) {
			metrics.RecordFollowOperation("follow", "already_following")
			return &FollowOutcome{Status: StatusAlreadyFollowing, Source: source, Target: target}, nil
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w", ErrProfileNotFound)
		}
		metrics.RecordFollowOperation("follow", "store_error")
		return nil, fmt.Errorf("create edge: %w", err)
	}

	outcome, err := r.freshOutcome(ctx, StatusFollowed, fromID, toID)
	if err != nil {
		return nil, err
	}

	r.notifyTarget(outcome, "follow")
	metrics.RecordFollowOperation("follow", "ok")
	logging.Ctx(ctx).Debug().Str("from", fromID).Str("to", toID).Msg("follow edge created")

	return outcome, nil
}

// Unfollow is the inverse pipeline. Counter decrements clamp at zero inside
// the store transaction, so the ≥0 invariant holds at every observable point.
func (r *SocialRelay) Unfollow(ctx context.Context, fromID, toID string) (*FollowOutcome, error) {
	if err := validatePair(fromID, toID); err != nil {
		metrics.RecordFollowOperation("unfollow", "invalid")
		return nil, err
	}

	source, target, err := r.resolvePair(ctx, fromID, toID)
	if err != nil {
		metrics.RecordFollowOperation("unfollow", "profile_not_found")
		return nil, err
	}

	err = r.store.DeleteEdge(ctx, fromID, toID)
	if errors.Is(err, store.ErrNotFound) {
		metrics.RecordFollowOperation("unfollow", "not_following")
		return &FollowOutcome{Status: StatusNotFollowing, Source: source, Target: target}, nil
	}
	if err != nil {
		metrics.RecordFollowOperation("unfollow", "store_error")
		return nil, fmt.Errorf("delete edge: %w", err)
	}

	outcome, err := r.freshOutcome(ctx, StatusUnfollowed, fromID, toID)
	if err != nil {
		return nil, err
	}

	r.notifyTarget(outcome, "unfollow")
	metrics.RecordFollowOperation("unfollow", "ok")
	logging.Ctx(ctx).Debug().Str("from", fromID).Str("to", toID).Msg("follow edge destroyed")

	return outcome, nil
}

func validatePair(fromID, toID string) error {
	if fromID == "" || toID == "" {
		return fmt.Errorf("%w: both identities are required", ErrInvalidArgument)
	}
	if fromID == toID {
		return fmt.Errorf("%w: %s", ErrSelfFollow, fromID)
	}
	return nil
}

// resolvePair loads both profiles, mapping store absence to the relay's
// ProfileNotFound taxonomy.
func (r *SocialRelay) resolvePair(ctx context.Context, fromID, toID string) (*models.Profile, *models.Profile, error) {
	source, err := r.store.GetProfile(ctx, fromID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrProfileNotFound, fromID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("resolve source profile: %w", err)
	}

	target, err := r.store.GetProfile(ctx, toID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrProfileNotFound, toID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("resolve target profile: %w", err)
	}

	return source, target, nil
}

// freshOutcome re-reads both profiles so the outcome carries post-mutation
// counter values.
func (r *SocialRelay) freshOutcome(ctx context.Context, status FollowStatus, fromID, toID string) (*FollowOutcome, error) {
	source, target, err := r.resolvePair(ctx, fromID, toID)
	if err != nil {
		return nil, err
	}
	return &FollowOutcome{Status: status, Source: source, Target: target}, nil
}

// notifyTarget pushes a counter-update signal to the target's live
// connection, if one exists. Fire and forget.
func (r *SocialRelay) notifyTarget(outcome *FollowOutcome, updateType string) {
	conn, ok := r.presence.Resolve(outcome.Target.Identity)
	if !ok {
		return
	}

	conn.Send(EventFollowUpdate, FollowUpdate{
		Type:           updateType,
		FromID:         outcome.Source.Identity,
		FromName:       outcome.Source.DisplayName,
		FollowersCount: outcome.Target.FollowersCount,
		FollowingCount: outcome.Target.FollowingCount,
	})
}
