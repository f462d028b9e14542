// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/nuntius/internal/models"
)

// GetConversation returns the messages exchanged between two identities,
// newest first, bounded by the configured page size.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	a := chi.URLParam(r, "identity")
	b := chi.URLParam(r, "peer")
	if a == "" || b == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "both identities are required", nil)
		return
	}

	limit := clampLimit(getIntParam(r, "limit", h.cfg.Relay.ConversationPageSize), h.cfg.Relay.ConversationPageSize)

	messages, err := h.store.ListConversation(r.Context(), a, b, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to load conversation", err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"participants": []string{a, b},
		"messages":     messages,
		"count":        len(messages),
	}, false)
}
