// Package handlers exposes the review workflow and notification history over
// JSON HTTP.
package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nmxmxh/peerdesk/internal/server/httputil"
	"github.com/nmxmxh/peerdesk/internal/service/notification"
	"github.com/nmxmxh/peerdesk/internal/service/review"
	"github.com/nmxmxh/peerdesk/pkg/auth"
)

// ReportSigner issues upload URLs for review report artifacts.
type ReportSigner interface {
	PresignUpload(key string) (string, time.Time, error)
}

type Handler struct {
	log           *zap.Logger
	reviews       *review.Service
	notifications *notification.Dispatcher
	reports       ReportSigner
	reportKey     func(requestID string) string
}

type Option func(*Handler)

// WithReports enables POST /api/reviews/{id}/report-url.
func WithReports(signer ReportSigner, key func(requestID string) string) Option {
	return func(h *Handler) {
		h.reports = signer
		h.reportKey = key
	}
}

func New(log *zap.Logger, reviews *review.Service, notifications *notification.Dispatcher, opts ...Option) *Handler {
	h := &Handler{
		log:           log.With(zap.String("module", "http")),
		reviews:       reviews,
		notifications: notifications,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts every API route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	var (
		assigners = []string{review.RoleAdmin, review.RoleOrganization}
		admins    = []string{review.RoleAdmin}
		verifiers = []string{review.RoleSystem, review.RoleAdmin}
	)
	routes := []struct {
		pattern string
		fn      func(http.ResponseWriter, *http.Request, review.Actor)
		roles   []string
	}{
		{"POST /api/documents", h.createDocument, nil},
		{"GET /api/documents/{id}", h.getDocument, nil},
		{"DELETE /api/documents/{id}", h.deleteDocument, nil},
		{"POST /api/documents/{id}/verification", h.completeVerification, verifiers},
		{"POST /api/documents/{id}/approval", h.decideApproval, assigners},
		{"POST /api/documents/{id}/deactivate", h.deactivate, admins},
		{"POST /api/documents/{id}/reactivate", h.reactivate, admins},
		{"GET /api/documents/{id}/reviews", h.listRequests, nil},
		{"POST /api/documents/{id}/reviews", h.createReviewRequest, assigners},
		{"GET /api/reviews", h.listReviewerRequests, nil},
		{"GET /api/reviews/{id}", h.getRequest, nil},
		{"POST /api/reviews/{id}/respond", h.respond, nil},
		{"POST /api/reviews/{id}/submit", h.submit, nil},
		{"POST /api/reviews/{id}/report-url", h.reportURL, nil},
		{"PUT /api/directory/{userID}", h.putMember, admins},
		{"GET /api/notifications", h.listNotifications, nil},
		{"POST /api/notifications/read-all", h.markAllRead, nil},
		{"POST /api/notifications/{id}/read", h.markRead, nil},
	}
	for _, rt := range routes {
		mux.Handle(rt.pattern, httputil.RequestLogger(h.log, rt.pattern, h.authenticated(rt.fn, rt.roles...)))
	}
}

// authenticated turns the request's auth context into an Actor and rejects
// guests with 401. When roles are given, callers holding none of them get a
// 403 before the handler runs.
func (h *Handler) authenticated(fn func(http.ResponseWriter, *http.Request, review.Actor), roles ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac := auth.FromContext(r.Context())
		if !ac.Authenticated() {
			httputil.WriteJSONError(w, h.log, http.StatusUnauthorized, httputil.CodeUnauthenticated, "authentication required")
			return
		}
		if len(roles) > 0 && !httputil.HasRole(ac.Roles, roles...) {
			httputil.WriteJSONError(w, h.log, http.StatusForbidden, httputil.CodeForbidden,
				"this action requires one of the roles: "+strings.Join(roles, ", "))
			return
		}
		fn(w, r, review.Actor{UserID: ac.UserID, Roles: ac.Roles})
	})
}

func (h *Handler) respondWith(w http.ResponseWriter, status int, v interface{}, err error) {
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSONResponse(w, h.log, status, v)
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
