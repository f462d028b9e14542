// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/nuntius/internal/relay"
)

// followRequest names the target of a REST follow/unfollow.
type followRequest struct {
	Target string `json:"target" validate:"required,max=128"`
}

// followResponse mirrors the realtime followSuccess/unfollowSuccess acks.
type followResponse struct {
	Status         string `json:"status"`
	Source         string `json:"source"`
	Target         string `json:"target"`
	FollowersCount int64  `json:"followersCount"`
	FollowingCount int64  `json:"followingCount"`
}

// Follow creates a follow edge from the path identity to the body target.
// An existing edge is a success with status already_following.
func (h *Handler) Follow(w http.ResponseWriter, r *http.Request) {
	h.mutateFollow(w, r, true)
}

// Unfollow destroys the edge. A missing edge is a success with status
// not_following.
func (h *Handler) Unfollow(w http.ResponseWriter, r *http.Request) {
	h.mutateFollow(w, r, false)
}

func (h *Handler) mutateFollow(w http.ResponseWriter, r *http.Request, follow bool) {
	identity := chi.URLParam(r, "identity")
	if identity == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "identity is required", nil)
		return
	}

	var req followRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	var (
		outcome *relay.FollowOutcome
		err     error
	)
	if follow {
		outcome, err = h.social.Follow(r.Context(), identity, req.Target)
	} else {
		outcome, err = h.social.Unfollow(r.Context(), identity, req.Target)
	}
	if err != nil {
		status, code := followErrorStatus(err)
		respondError(w, status, code, err.Error(), nil)
		return
	}

	// Counters changed; both cached profiles are stale.
	h.cache.Delete(profileCacheKey(identity))
	h.cache.Delete(profileCacheKey(req.Target))

	respondSuccess(w, http.StatusOK, followResponse{
		Status:         string(outcome.Status),
		Source:         outcome.Source.Identity,
		Target:         outcome.Target.Identity,
		FollowersCount: outcome.Source.FollowersCount,
		FollowingCount: outcome.Source.FollowingCount,
	}, false)
}

// followErrorStatus maps relay follow errors onto HTTP status and code.
func followErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, relay.ErrInvalidArgument):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, relay.ErrSelfFollow):
		return http.StatusBadRequest, "SELF_FOLLOW"
	case errors.Is(err, relay.ErrProfileNotFound):
		return http.StatusNotFound, "PROFILE_NOT_FOUND"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
