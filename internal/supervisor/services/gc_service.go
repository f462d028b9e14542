// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

package services

import (
	"context"
	"time"

	"github.com/tomtom215/nuntius/internal/logging"
)

// GarbageCollector matches the store's value-log GC method.
type GarbageCollector interface {
	RunGC() error
}

// StoreGCService periodically runs store garbage collection. Badger's
// value log grows until GC reclaims space from deleted and rewritten
// entries, so long-running deployments need this loop.
//
//	tree.AddDataService(services.NewStoreGCService(st, cfg.Store.GCInterval))
type StoreGCService struct {
	store    GarbageCollector
	interval time.Duration
	name     string
}

// NewStoreGCService creates a store GC service wrapper.
func NewStoreGCService(store GarbageCollector, interval time.Duration) *StoreGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &StoreGCService{
		store:    store,
		interval: interval,
		name:     "store-gc",
	}
}

// Serve implements suture.Service. GC failures are logged but do not crash
// the service; space reclamation can always be retried on the next tick.
func (s *StoreGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.store.RunGC(); err != nil {
				logging.Warn().Err(err).Msg("store gc failed")
			}
		}
	}
}

// String implements fmt.Stringer; suture uses it to identify the service.
func (s *StoreGCService) String() string {
	return s.name
}
