// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/nuntius/internal/middleware"
)

// NewRouter builds the full HTTP routing tree.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.Security.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health probes stay unthrottled so orchestrators can poll freely.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})

	r.Handle("/metrics", promhttp.Handler())

	// The websocket upgrade sits outside the rate-limited group: one
	// long-lived request per client, with its own per-frame limiter.
	r.Get("/api/v1/ws", h.WebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		if !h.cfg.Security.RateLimitDisabled {
			r.Use(httprate.LimitByIP(h.cfg.Security.RateLimitReqs, h.cfg.Security.RateLimitWindow))
		}
		r.Use(middleware.PrometheusMetrics)

		r.Route("/profiles/{identity}", func(r chi.Router) {
			r.Get("/", h.GetProfile)
			r.Put("/", h.PutProfile)
			r.Get("/followers", h.ListFollowers)
			r.Get("/following", h.ListFollowing)
			r.Post("/follow", h.Follow)
			r.Post("/unfollow", h.Unfollow)
		})

		r.Get("/conversations/{identity}/{peer}", h.GetConversation)
	})

	return r
}
