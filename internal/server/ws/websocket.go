// Package ws serves the notification stream over WebSocket for clients that
// prefer it to server-sent events.
package ws

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nmxmxh/peerdesk/internal/server/httputil"
	"github.com/nmxmxh/peerdesk/internal/server/sse"
	"github.com/nmxmxh/peerdesk/internal/service/notification"
	"github.com/nmxmxh/peerdesk/pkg/auth"
	"github.com/nmxmxh/peerdesk/pkg/json"
	"github.com/nmxmxh/peerdesk/pkg/metrics"
)

const (
	transport = "ws"
	writeWait = 10 * time.Second
	readLimit = 4096
)

// Frame is the JSON text message sent for every stream message.
type Frame struct {
	Event notification.MessageName `json:"event"`
	Data  json.RawMessage          `json:"data"`
}

type Handler struct {
	log       *zap.Logger
	subs      sse.Subscriber
	heartbeat time.Duration
	upgrader  websocket.Upgrader
}

// NewHandler builds the WebSocket handler. allowedOrigins holds host names;
// "*" admits every origin.
func NewHandler(log *zap.Logger, subs sse.Subscriber, heartbeat time.Duration, allowedOrigins []string) *Handler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	h := &Handler{
		log:       log.With(zap.String("module", "ws")),
		subs:      subs,
		heartbeat: heartbeat,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, o := range allowed {
			o = strings.TrimSpace(o)
			if o == "*" || strings.EqualFold(o, u.Hostname()) || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

func encode(m notification.Message) ([]byte, error) {
	data, err := json.Marshal(m.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: m.Name, Data: data})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ac := auth.FromContext(r.Context())
	if !ac.Authenticated() {
		httputil.WriteJSONError(w, h.log, http.StatusUnauthorized, httputil.CodeUnauthenticated, "authentication required")
		return
	}
	sub, err := h.subs.Subscribe(r.Context(), ac.UserID)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.StreamConnections.WithLabelValues(transport).Inc()
	defer metrics.StreamConnections.WithLabelValues(transport).Dec()

	log := h.log.With(zap.String("user_id", ac.UserID), zap.String("subscription_id", sub.ID))
	log.Info("WebSocket stream opened")

	closed := make(chan struct{})
	go h.readPump(conn, closed, log)
	h.writePump(conn, sub, closed, log)
}

// readPump discards client messages and watches for the close handshake. The
// read deadline is pushed forward by every pong.
func (h *Handler) readPump(conn *websocket.Conn, closed chan<- struct{}, log *zap.Logger) {
	defer close(closed)
	pongWait := 2 * h.heartbeat
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("WebSocket read failed", zap.Error(err))
			}
			return
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, sub *notification.Subscription, closed <-chan struct{}, log *zap.Logger) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			log.Info("WebSocket stream closed by client")
			return
		case <-sub.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "reconnect"),
				time.Now().Add(writeWait))
			log.Info("WebSocket subscription released")
			return
		case m := <-sub.C():
			payload, err := encode(m)
			if err != nil {
				log.Error("Failed to encode stream message", zap.Error(err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Warn("WebSocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn("WebSocket ping failed", zap.Error(err))
				return
			}
		}
	}
}
