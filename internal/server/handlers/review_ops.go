package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nmxmxh/peerdesk/internal/server/httputil"
	"github.com/nmxmxh/peerdesk/internal/service/review"
)

type createReviewRequest struct {
	ReviewerID string `json:"reviewer_id"`
	Note       string `json:"note"`
}

type respondRequest struct {
	Action review.Action `json:"action"`
}

type submitRequest struct {
	Decision  review.Decision `json:"decision"`
	ReportRef string          `json:"report_ref"`
}

type reportURLResponse struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) createReviewRequest(w http.ResponseWriter, r *http.Request, actor review.Actor) {
	var req createReviewRequest
	if !httputil.DecodeJSON(w, r, h.log, &req) {
		return
	}
	out, err := h.reviews.CreateReviewRequest(r.Context(), actor, r.PathValue("id"), req.ReviewerID, req.Note)
	h.respondWith(w, http.StatusCreated, out, err)
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request, actor review.Actor) {
	out, err := h.reviews.ListRequests(r.Context(), actor, r.PathValue("id"))
	h.respondWith(w, http.StatusOK, map[string]interface{}{"items": out}, err)
}

func (h *Handler) listReviewerRequests(w http.ResponseWriter, r *http.Request, actor review.Actor) {
	var statuses []review.RequestStatus
	for _, s := range splitList(r.URL.Query().Get("status")) {
		statuses = append(statuses, review.RequestStatus(s))
	}
	out, err := h.reviews.ListReviewerRequests(r.Context(), actor, statuses)
	if out == nil {
		out = []*review.Request{}
	}
	h.respondWith(w, http.StatusOK, map[string]interface{}{"items": out}, err)
}

func (h *Handler) getRequest(w http.ResponseWriter, r *http.Request, actor review.Actor) {
	out, err := h.reviews.GetRequest(r.Context(), actor, r.PathValue("id"))
	h.respondWith(w, http.StatusOK, out, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, actor review.Actor) {
	var req respondRequest
	if !httputil.DecodeJSON(w, r, h.log, &req) {
		return
	}
	out, err := h.reviews.Respond(r.Context(), actor, r.PathValue("id"), req.Action)
	h.respondWith(w, http.StatusOK, out, err)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, actor review.Actor) {
	var req submitRequest
	if !httputil.DecodeJSON(w, r, h.log, &req) {
		return
	}
	out, err := h.reviews.Submit(r.Context(), actor, r.PathValue("id"), req.Decision, req.ReportRef)
	h.respondWith(w, http.StatusOK, out, err)
}

func (h *Handler) reportURL(w http.ResponseWriter, r *http.Request, actor review.Actor) {
	if h.reports == nil {
		httputil.WriteJSONError(w, h.log, http.StatusNotImplemented, "NOT_IMPLEMENTED", "report storage is not configured")
		return
	}
	req, err := h.reviews.AuthorizeReportUpload(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	key := h.reportKey(req.ID)
	url, expires, err := h.reports.PresignUpload(key)
	if err != nil {
		h.log.Error("Failed to presign report upload", zap.String("request_id", req.ID), zap.Error(err))
		httputil.WriteJSONError(w, h.log, http.StatusInternalServerError, "INTERNAL", "internal server error")
		return
	}
	httputil.WriteJSONResponse(w, h.log, http.StatusOK, reportURLResponse{Key: key, URL: url, ExpiresAt: expires})
}
