// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

package ws

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/nuntius/internal/logging"
	"github.com/tomtom215/nuntius/internal/metrics"
	"github.com/tomtom215/nuntius/internal/presence"
	"github.com/tomtom215/nuntius/internal/relay"
	"github.com/tomtom215/nuntius/internal/store"
)

// ShutdownReason identifies why the hub is shutting down, for log filtering.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful path (SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Hub owns the lifecycle of every live connection. Register and Unregister
// are driven by the per-connection pumps; shutdown closes every client so a
// supervisor restart never leaves orphaned connections.
//
// The hub deliberately has no broadcast path: every delivery in the system
// is addressed to one identity through the presence directory.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	Register   chan *Client
	Unregister chan *Client

	// done is closed when the run loop exits so pumps blocked on the
	// lifecycle channels can bail out instead of hanging forever.
	done   chan struct{}
	doneMu sync.Mutex

	presence *presence.Directory
	store    store.ObjectStore
	messages *relay.MessageRelay
	social   *relay.SocialRelay
}

// NewHub creates a hub wired to the relay core.
func NewHub(dir *presence.Directory, st store.ObjectStore, messages *relay.MessageRelay, social *relay.SocialRelay) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		presence:   dir,
		store:      st,
		messages:   messages,
		social:     social,
	}
}

// RunWithContext runs the hub loop until the context is canceled. Designed
// for suture supervision: on cancellation every client is closed and the
// context error is returned.
//
// Selection is priority ordered: shutdown first, then lifecycle events.
// Go's select picks randomly among ready channels, so the explicit
// non-blocking checks keep behavior predictable when several are ready.
func (h *Hub) RunWithContext(ctx context.Context) error {
	h.doneMu.Lock()
	h.done = make(chan struct{})
	done := h.done
	h.doneMu.Unlock()
	defer close(done)

	for {
		// Priority 1: shutdown (non-blocking check).
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: lifecycle events (blocking wait).
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.register(client)

		case client := <-h.Unregister:
			h.unregister(client)
		}
	}
}

// notifyUnregister hands the client to the run loop, or returns
// immediately if the loop has already exited. A stopped hub has already
// closed every client, so dropping the notification is safe.
func (h *Hub) notifyUnregister(client *Client) {
	h.doneMu.Lock()
	done := h.done
	h.doneMu.Unlock()

	select {
	case h.Unregister <- client:
	case <-done:
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.ActiveConnections.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

// unregister drops the client, its presence entry, and its send channel.
// Safe to call twice for the same client: a superseded connection is
// unregistered by the join path and again when its read pump exits.
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	_, known := h.clients[client]
	if known {
		delete(h.clients, client)
		client.closeSend()
	}
	total := len(h.clients)
	h.mu.Unlock()

	if !known {
		return
	}

	// The directory only honors the removal if this client still owns its
	// identity, so a stale disconnect cannot evict a fresh entry.
	if identity, ok := h.presence.Remove(client); ok {
		logging.Debug().Str("identity", identity).Msg("presence entry removed")
	}
	metrics.ActiveConnections.Set(float64(total))
	metrics.PresenceEntries.Set(float64(h.presence.Count()))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

// logGracefulShutdown closes all clients and logs structured shutdown info.
// ctx.Err() is not logged as an error: cancellation is expected behavior.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.Canceled:
		return ShutdownReasonContextCanceled
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// closeAllClients closes every connected client in ID order for a
// consistent shutdown sequence.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		client.closeSend()
		delete(h.clients, client)
		h.presence.Remove(client)
	}

	metrics.ActiveConnections.Set(0)
	metrics.PresenceEntries.Set(float64(h.presence.Count()))
	logging.Info().Msg("closed all websocket clients during shutdown")
}

// GetClientCount returns the number of connected clients, joined or not.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
