// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/nuntius/internal/cache"
	"github.com/tomtom215/nuntius/internal/models"
	"github.com/tomtom215/nuntius/internal/store"
)

// profileView is the public projection of a profile. The push token never
// leaves the server.
type profileView struct {
	Identity       string `json:"identity"`
	DisplayName    string `json:"displayName,omitempty"`
	AvatarURL      string `json:"avatarUrl,omitempty"`
	FollowersCount int64  `json:"followersCount"`
	FollowingCount int64  `json:"followingCount"`
	Online         bool   `json:"online"`
}

// profileUpdateRequest carries the mutable profile fields.
type profileUpdateRequest struct {
	DisplayName string `json:"displayName" validate:"omitempty,max=256"`
	AvatarURL   string `json:"avatarUrl" validate:"omitempty,url,max=2048"`
	PushToken   string `json:"pushToken" validate:"omitempty,max=4096"`
}

func profileCacheKey(identity string) string {
	return cache.GenerateKey("profile", identity)
}

func (h *Handler) profileView(p *models.Profile) profileView {
	_, online := h.presence.Resolve(p.Identity)
	return profileView{
		Identity:       p.Identity,
		DisplayName:    p.DisplayName,
		AvatarURL:      p.AvatarURL,
		FollowersCount: p.FollowersCount,
		FollowingCount: p.FollowingCount,
		Online:         online,
	}
}

// GetProfile returns one profile, cache-fronted. Presence (online) is
// computed per request, never cached.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	if identity == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "identity is required", nil)
		return
	}

	key := profileCacheKey(identity)
	if cached, ok := h.cache.Get(key); ok {
		if profile, ok := cached.(*models.Profile); ok {
			respondSuccess(w, http.StatusOK, h.profileView(profile), true)
			return
		}
	}

	profile, err := h.store.GetProfile(r.Context(), identity)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "PROFILE_NOT_FOUND", "profile not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to load profile", err)
		return
	}

	h.cache.SetWithTTL(key, profile, h.cfg.Relay.CacheTTL)
	respondSuccess(w, http.StatusOK, h.profileView(profile), false)
}

// PutProfile creates or updates a profile's mutable fields.
func (h *Handler) PutProfile(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	if identity == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "identity is required", nil)
		return
	}

	var req profileUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	profile, err := h.store.GetProfile(r.Context(), identity)
	if errors.Is(err, store.ErrNotFound) {
		profile = &models.Profile{Identity: identity}
	} else if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to load profile", err)
		return
	}

	if req.DisplayName != "" {
		profile.DisplayName = req.DisplayName
	}
	if req.AvatarURL != "" {
		profile.AvatarURL = req.AvatarURL
	}
	if req.PushToken != "" {
		profile.PushToken = req.PushToken
	}

	if err := h.store.SaveProfile(r.Context(), profile); err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to save profile", err)
		return
	}

	h.cache.Delete(profileCacheKey(identity))
	respondSuccess(w, http.StatusOK, h.profileView(profile), false)
}

// ListFollowers returns identities following the given one.
func (h *Handler) ListFollowers(w http.ResponseWriter, r *http.Request) {
	h.listEdgeIdentities(w, r, "followers")
}

// ListFollowing returns identities the given one follows.
func (h *Handler) ListFollowing(w http.ResponseWriter, r *http.Request) {
	h.listEdgeIdentities(w, r, "following")
}

func (h *Handler) listEdgeIdentities(w http.ResponseWriter, r *http.Request, direction string) {
	identity := chi.URLParam(r, "identity")
	if identity == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "identity is required", nil)
		return
	}

	limit := clampLimit(getIntParam(r, "limit", 100), 1000)

	var (
		identities []string
		err        error
	)
	if direction == "followers" {
		identities, err = h.store.ListFollowers(r.Context(), identity, limit)
	} else {
		identities, err = h.store.ListFollowing(r.Context(), identity, limit)
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to list "+direction, err)
		return
	}
	if identities == nil {
		identities = []string{}
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"identity":  identity,
		direction:   identities,
		"count":     len(identities),
		"truncated": len(identities) == limit,
	}, false)
}
