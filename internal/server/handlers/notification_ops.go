package handlers

import (
	"net/http"

	"github.com/nmxmxh/peerdesk/internal/service/review"
)

// listNotifications is the polling backstop for clients whose stream is down.
func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request, actor review.Actor) {
	page, err := h.notifications.List(r.Context(), actor.UserID, queryInt(r, "page"), queryInt(r, "page_size"))
	h.respondWith(w, http.StatusOK, page, err)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request, actor review.Actor) {
	e, err := h.notifications.MarkRead(r.Context(), actor.UserID, r.PathValue("id"))
	h.respondWith(w, http.StatusOK, e, err)
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request, actor review.Actor) {
	n, err := h.notifications.MarkAllRead(r.Context(), actor.UserID)
	h.respondWith(w, http.StatusOK, map[string]int{"updated": n}, err)
}
