package handlers

import (
	"net/http"

	"github.com/nmxmxh/peerdesk/internal/server/httputil"
	"github.com/nmxmxh/peerdesk/internal/service/review"
)

type createDocumentRequest struct {
	Title            string `json:"title"`
	SpecializationID string `json:"specialization_id"`
}

type verificationRequest struct {
	Passed bool `json:"passed"`
}

type approvalRequest struct {
	Approve bool `json:"approve"`
}

func (h *Handler) createDocument(w http.ResponseWriter, r *http.Request, actor review.Actor) {
	var req createDocumentRequest
	if !httputil.DecodeJSON(w, r, h.log, &req) {
		return
	}
	doc, err := h.reviews.CreateDocument(r.Context(), actor, req.Title, req.SpecializationID)
	h.respondWith(w, http.StatusCreated, doc, err)
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request, actor review.Actor) {
	doc, err := h.reviews.GetDocument(r.Context(), actor, r.PathValue("id"))
	h.respondWith(w, http.StatusOK, doc, err)
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request, actor review.Actor) {
	doc, err := h.reviews.DeleteDocument(r.Context(), actor, r.PathValue("id"))
	h.respondWith(w, http.StatusOK, doc, err)
}

func (h *Handler) completeVerification(w http.ResponseWriter, r *http.Request, actor review.Actor) {
	var req verificationRequest
	if !httputil.DecodeJSON(w, r, h.log, &req) {
		return
	}
	doc, err := h.reviews.CompleteVerification(r.Context(), actor, r.PathValue("id"), req.Passed)
	h.respondWith(w, http.StatusOK, doc, err)
}

func (h *Handler) decideApproval(w http.ResponseWriter, r *http.Request, actor review.Actor) {
	var req approvalRequest
	if !httputil.DecodeJSON(w, r, h.log, &req) {
		return
	}
	doc, err := h.reviews.DecideApproval(r.Context(), actor, r.PathValue("id"), req.Approve)
	h.respondWith(w, http.StatusOK, doc, err)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request, actor review.Actor) {
	doc, err := h.reviews.Deactivate(r.Context(), actor, r.PathValue("id"))
	h.respondWith(w, http.StatusOK, doc, err)
}

func (h *Handler) reactivate(w http.ResponseWriter, r *http.Request, actor review.Actor) {
	doc, err := h.reviews.Reactivate(r.Context(), actor, r.PathValue("id"))
	h.respondWith(w, http.StatusOK, doc, err)
}

type memberRequest struct {
	Roles           []string `json:"roles"`
	Specializations []string `json:"specializations"`
}

func (h *Handler) putMember(w http.ResponseWriter, r *http.Request, actor review.Actor) {
	var req memberRequest
	if !httputil.DecodeJSON(w, r, h.log, &req) {
		return
	}
	m := &review.Member{UserID: r.PathValue("userID"), Roles: req.Roles, Specializations: req.Specializations}
	err := h.reviews.PutMember(r.Context(), actor, m)
	h.respondWith(w, http.StatusOK, m, err)
}
