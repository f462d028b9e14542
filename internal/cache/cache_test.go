// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

package cache

import (
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	c := New(time.Minute)

	c.Set("profile:alice", "alice-data")
	got, ok := c.Get("profile:alice")
	if !ok {
		t.Fatal("expected hit")
	}
	if got != "alice-data" {
		t.Errorf("got %v", got)
	}
}

func TestCacheMiss(t *testing.T) {
	c := New(time.Minute)

	if _, ok := c.Get("absent"); ok {
		t.Error("expected miss")
	}
	stats := c.GetStats()
	if stats.Misses != 1 {
		t.Errorf("misses = %d, want 1", stats.Misses)
	}
}

func TestCacheExpiration(t *testing.T) {
	c := New(time.Minute)

	c.SetWithTTL("short", "value", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("short"); ok {
		t.Error("expired entry must miss")
	}
	stats := c.GetStats()
	if stats.Evictions != 1 {
		t.Errorf("evictions = %d, want 1", stats.Evictions)
	}
}

func TestCacheDelete(t *testing.T) {
	c := New(time.Minute)

	c.Set("k", "v")
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("deleted entry must miss")
	}

	// Deleting an absent key is a no-op.
	c.Delete("absent")
}

func TestCacheClear(t *testing.T) {
	c := New(time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()

	if _, ok := c.Get("a"); ok {
		t.Error("cleared entry must miss")
	}
	if got := c.GetStats().TotalKeys; got != 0 {
		t.Errorf("total keys = %d, want 0", got)
	}
}

func TestCacheHitRate(t *testing.T) {
	c := New(time.Minute)

	if rate := c.HitRate(); rate != 0.0 {
		t.Errorf("empty cache hit rate = %f, want 0", rate)
	}

	c.Set("k", "v")
	c.Get("k")
	c.Get("absent")

	if rate := c.HitRate(); rate != 50.0 {
		t.Errorf("hit rate = %f, want 50", rate)
	}
}

func TestGenerateKey(t *testing.T) {
	k1 := GenerateKey("profile", map[string]string{"identity": "alice"})
	k2 := GenerateKey("profile", map[string]string{"identity": "alice"})
	k3 := GenerateKey("profile", map[string]string{"identity": "bob"})

	if k1 != k2 {
		t.Error("identical params must generate identical keys")
	}
	if k1 == k3 {
		t.Error("different params must generate different keys")
	}
}

func TestCacheCleanup(t *testing.T) {
	c := New(time.Minute)

	c.SetWithTTL("stale", "v", -time.Second)
	c.Set("fresh", "v")
	c.cleanup()

	if _, ok := c.entries["stale"]; ok {
		t.Error("cleanup must remove expired entries")
	}
	if _, ok := c.entries["fresh"]; !ok {
		t.Error("cleanup must keep unexpired entries")
	}
}
