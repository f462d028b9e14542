// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

// Package provision reconciles stored state at startup.
//
// Follower and following counts are denormalized onto profiles for cheap
// reads; the edges themselves are the source of truth. A crash between an
// edge write and a counter write, or a bug in an earlier release, can leave
// the counters drifted. Reconcile recounts every profile's edges and
// rewrites any counter that disagrees, so the server always boots into a
// consistent directory. The pass is idempotent.
package provision

import (
	"context"
	"fmt"

	"github.com/tomtom215/nuntius/internal/logging"
	"github.com/tomtom215/nuntius/internal/models"
)

// edgeScanLimit bounds a single profile's edge listing. Identities with more
// edges than this are counted at the cap, which still converges toward the
// true value on subsequent boots as edges churn.
const edgeScanLimit = 1 << 20

// Store is the subset of the object store that reconciliation needs.
type Store interface {
	ListProfiles(ctx context.Context) ([]models.Profile, error)
	ListFollowers(ctx context.Context, to string, limit int) ([]string, error)
	ListFollowing(ctx context.Context, from string, limit int) ([]string, error)
	SaveProfile(ctx context.Context, profile *models.Profile) error
}

// Stats summarizes a reconciliation pass.
type Stats struct {
	ProfilesScanned int
	ProfilesFixed   int
}

// Reconcile recounts follow edges for every profile and repairs any
// denormalized counter that has drifted, including negative values.
func Reconcile(ctx context.Context, st Store) (Stats, error) {
	var stats Stats

	profiles, err := st.ListProfiles(ctx)
	if err != nil {
		return stats, fmt.Errorf("list profiles: %w", err)
	}

	for i := range profiles {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		profile := profiles[i]
		stats.ProfilesScanned++

		followers, err := st.ListFollowers(ctx, profile.Identity, edgeScanLimit)
		if err != nil {
			return stats, fmt.Errorf("list followers for %s: %w", profile.Identity, err)
		}
		following, err := st.ListFollowing(ctx, profile.Identity, edgeScanLimit)
		if err != nil {
			return stats, fmt.Errorf("list following for %s: %w", profile.Identity, err)
		}

		wantFollowers := int64(len(followers))
		wantFollowing := int64(len(following))
		if profile.FollowersCount == wantFollowers && profile.FollowingCount == wantFollowing {
			continue
		}

		logging.Warn().
			Str("identity", profile.Identity).
			Int64("stored_followers", profile.FollowersCount).
			Int64("actual_followers", wantFollowers).
			Int64("stored_following", profile.FollowingCount).
			Int64("actual_following", wantFollowing).
			Msg("repairing drifted follow counters")

		profile.FollowersCount = wantFollowers
		profile.FollowingCount = wantFollowing
		if err := st.SaveProfile(ctx, &profile); err != nil {
			return stats, fmt.Errorf("save profile %s: %w", profile.Identity, err)
		}
		stats.ProfilesFixed++
	}

	logging.Info().
		Int("scanned", stats.ProfilesScanned).
		Int("fixed", stats.ProfilesFixed).
		Msg("profile counter reconciliation complete")

	return stats, nil
}
