// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

// Package api provides the HTTP surface: health probes, the WebSocket
// upgrade endpoint, Prometheus metrics, and REST bookkeeping routes for
// profiles, the social graph, and conversation history.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/nuntius/internal/cache"
	"github.com/tomtom215/nuntius/internal/config"
	"github.com/tomtom215/nuntius/internal/logging"
	"github.com/tomtom215/nuntius/internal/presence"
	"github.com/tomtom215/nuntius/internal/relay"
	"github.com/tomtom215/nuntius/internal/store"
	"github.com/tomtom215/nuntius/internal/ws"
)

// Handler bundles the collaborators the HTTP surface needs.
type Handler struct {
	cfg       *config.Config
	store     store.ObjectStore
	cache     *cache.Cache
	presence  *presence.Directory
	hub       *ws.Hub
	social    *relay.SocialRelay
	startTime time.Time
}

// NewHandler wires an HTTP handler set.
func NewHandler(cfg *config.Config, st store.ObjectStore, c *cache.Cache, dir *presence.Directory, hub *ws.Hub, social *relay.SocialRelay) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     st,
		cache:     c,
		presence:  dir,
		hub:       hub,
		social:    social,
		startTime: time.Now(),
	}
}

// HealthLive reports process liveness, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	}, false)
}

// HealthReady reports readiness: the store must answer a read before the
// instance takes traffic.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.ListProfiles(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY", "object store unavailable", err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"ready":    true,
		"presence": h.presence.Count(),
		"clients":  h.hub.GetClientCount(),
	}, false)
}

// WebSocket upgrades the connection and hands it to the hub. The client is
// anonymous until it sends a join event.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "realtime service unavailable", nil)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := ws.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
}

// getUpgrader builds an upgrader enforcing the configured origins. A "*"
// entry allows any origin.
func (h *Handler) getUpgrader() websocket.Upgrader {
	origins := h.cfg.Security.CORSOrigins
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range origins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
}
