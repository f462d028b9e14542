// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

package services

import (
	"context"
)

// ContextHub matches *ws.Hub's RunWithContext method without importing the
// ws package, avoiding a circular dependency.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// HubService wraps the websocket hub as a supervised service. The hub's
// RunWithContext already follows the suture.Service pattern, so this wrapper
// only delegates and names the service for logging.
//
//	tree.AddMessagingService(services.NewHubService(hub))
type HubService struct {
	hub  ContextHub
	name string
}

// NewHubService creates a hub service wrapper.
func NewHubService(hub ContextHub) *HubService {
	return &HubService{
		hub:  hub,
		name: "websocket-hub",
	}
}

// Serve implements suture.Service. RunWithContext processes client
// registration and unregistration, returns when the context is canceled,
// and closes all clients on shutdown.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer; suture uses it to identify the service.
func (s *HubService) String() string {
	return s.name
}
