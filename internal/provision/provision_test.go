// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

package provision

import (
	"context"
	"io"
	"testing"

	"github.com/tomtom215/nuntius/internal/logging"
	"github.com/tomtom215/nuntius/internal/models"
	"github.com/tomtom215/nuntius/internal/store"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

func openStore(t *testing.T) *store.BadgerStore {
	t.Helper()
	st, err := store.OpenBadger(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seed(t *testing.T, st *store.BadgerStore, identity string, followers, following int64) {
	t.Helper()
	if err := st.SaveProfile(context.Background(), &models.Profile{
		Identity:       identity,
		FollowersCount: followers,
		FollowingCount: following,
	}); err != nil {
		t.Fatalf("seed %s: %v", identity, err)
	}
}

func TestReconcileRepairsDrift(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	// bob shows phantom followers; alice's following count is negative.
	seed(t, st, "alice", 0, -3)
	seed(t, st, "bob", 7, 0)
	if _, err := st.CreateEdge(ctx, "alice", "bob"); err != nil {
		t.Fatalf("create edge: %v", err)
	}

	// CreateEdge bumped the counters on top of the seeded garbage, so both
	// profiles now disagree with the single real edge.
	stats, err := Reconcile(ctx, st)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if stats.ProfilesScanned != 2 {
		t.Errorf("scanned = %d, want 2", stats.ProfilesScanned)
	}
	if stats.ProfilesFixed != 2 {
		t.Errorf("fixed = %d, want 2", stats.ProfilesFixed)
	}

	alice, err := st.GetProfile(ctx, "alice")
	if err != nil {
		t.Fatalf("get alice: %v", err)
	}
	if alice.FollowersCount != 0 || alice.FollowingCount != 1 {
		t.Errorf("alice counters = %d/%d, want 0/1", alice.FollowersCount, alice.FollowingCount)
	}

	bob, err := st.GetProfile(ctx, "bob")
	if err != nil {
		t.Fatalf("get bob: %v", err)
	}
	if bob.FollowersCount != 1 || bob.FollowingCount != 0 {
		t.Errorf("bob counters = %d/%d, want 1/0", bob.FollowersCount, bob.FollowingCount)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	seed(t, st, "alice", 0, 0)
	seed(t, st, "bob", 0, 0)
	if _, err := st.CreateEdge(ctx, "alice", "bob"); err != nil {
		t.Fatalf("create edge: %v", err)
	}

	if _, err := Reconcile(ctx, st); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	stats, err := Reconcile(ctx, st)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if stats.ProfilesFixed != 0 {
		t.Errorf("fixed = %d on clean store, want 0", stats.ProfilesFixed)
	}
}

func TestReconcileEmptyStore(t *testing.T) {
	st := openStore(t)

	stats, err := Reconcile(context.Background(), st)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if stats.ProfilesScanned != 0 || stats.ProfilesFixed != 0 {
		t.Errorf("stats = %+v, want zero", stats)
	}
}

func TestReconcileHonorsContext(t *testing.T) {
	st := openStore(t)
	seed(t, st, "alice", 5, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Reconcile(ctx, st); err == nil {
		t.Error("reconcile with canceled context should fail")
	}
}
