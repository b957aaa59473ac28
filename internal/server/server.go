package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nmxmxh/peerdesk/internal/server/handlers"
	"github.com/nmxmxh/peerdesk/internal/server/httputil"
	"github.com/nmxmxh/peerdesk/internal/server/sse"
	"github.com/nmxmxh/peerdesk/internal/server/ws"
	"github.com/nmxmxh/peerdesk/internal/service/notification"
	"github.com/nmxmxh/peerdesk/pkg/auth"
	"github.com/nmxmxh/peerdesk/pkg/health"
)

const shutdownTimeout = 10 * time.Second

type Config struct {
	Addr             string
	JWTSecret        string
	StreamHeartbeat  time.Duration
	WSAllowedOrigins []string
}

// Server is the public HTTP surface: the JSON API, both stream transports
// and the health endpoint.
type Server struct {
	log        *zap.Logger
	HTTPServer *http.Server
}

func New(log *zap.Logger, cfg Config, api *handlers.Handler, dispatcher *notification.Dispatcher, checks *health.HealthChecker) *Server {
	mux := http.NewServeMux()
	api.Register(mux)
	mux.Handle("GET /api/notifications/stream", httputil.RequestLogger(log, "stream",
		sse.NewHandler(log, dispatcher, cfg.StreamHeartbeat)))
	mux.Handle("GET /api/notifications/ws", httputil.RequestLogger(log, "ws",
		ws.NewHandler(log, dispatcher, cfg.StreamHeartbeat, cfg.WSAllowedOrigins)))
	mux.Handle("GET /healthz", checks.Handler(log))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           auth.JWTMiddleware(cfg.JWTSecret, mux),
		ReadHeaderTimeout: 10 * time.Second, // Mitigate Slowloris
	}
	// Shutdown does not cancel request contexts; releasing the subscriptions
	// ends the long-lived streams so it can finish.
	srv.RegisterOnShutdown(dispatcher.Hub().CloseAll)
	return &Server{log: log, HTTPServer: srv}
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting HTTP server", zap.String("address", s.HTTPServer.Addr))
		if err := s.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.log.Info("Shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.HTTPServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}
	s.log.Info("HTTP server shut down gracefully")
	return nil
}
