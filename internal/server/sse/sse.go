// Package sse serves a user's notification stream as server-sent events.
package sse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nmxmxh/peerdesk/internal/server/httputil"
	"github.com/nmxmxh/peerdesk/internal/service/notification"
	"github.com/nmxmxh/peerdesk/pkg/auth"
	"github.com/nmxmxh/peerdesk/pkg/json"
	"github.com/nmxmxh/peerdesk/pkg/metrics"
)

const transport = "sse"

// Subscriber opens live subscriptions. *notification.Dispatcher implements it.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string) (*notification.Subscription, error)
}

type Handler struct {
	log       *zap.Logger
	subs      Subscriber
	heartbeat time.Duration
}

func NewHandler(log *zap.Logger, subs Subscriber, heartbeat time.Duration) *Handler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &Handler{
		log:       log.With(zap.String("module", "sse")),
		subs:      subs,
		heartbeat: heartbeat,
	}
}

// WriteFrame writes one event frame.
func WriteFrame(w io.Writer, m notification.Message) error {
	data, err := json.MarshalString(m.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", m.Name, data)
	return err
}

// WriteHeartbeat writes a comment line that clients ignore.
func WriteHeartbeat(w io.Writer) error {
	_, err := io.WriteString(w, ": heartbeat\n\n")
	return err
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ac := auth.FromContext(r.Context())
	if !ac.Authenticated() {
		httputil.WriteJSONError(w, h.log, http.StatusUnauthorized, httputil.CodeUnauthenticated, "authentication required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteJSONError(w, h.log, http.StatusInternalServerError, "INTERNAL", "streaming unsupported")
		return
	}

	ctx := r.Context()
	sub, err := h.subs.Subscribe(ctx, ac.UserID)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	defer sub.Close()

	metrics.StreamConnections.WithLabelValues(transport).Inc()
	defer metrics.StreamConnections.WithLabelValues(transport).Dec()

	log := h.log.With(zap.String("user_id", ac.UserID), zap.String("subscription_id", sub.ID))
	log.Info("Stream opened")

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Stream closed by client")
			return
		case <-sub.Done():
			log.Info("Stream subscription released")
			return
		case m := <-sub.C():
			if err := WriteFrame(w, m); err != nil {
				log.Warn("Stream write failed", zap.Error(err))
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if err := WriteHeartbeat(w); err != nil {
				log.Warn("Stream heartbeat failed", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}
