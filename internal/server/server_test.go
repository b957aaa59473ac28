package server

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nmxmxh/peerdesk/internal/server/handlers"
	"github.com/nmxmxh/peerdesk/internal/service/notification"
	"github.com/nmxmxh/peerdesk/internal/service/review"
	"github.com/nmxmxh/peerdesk/pkg/auth"
	"github.com/nmxmxh/peerdesk/pkg/health"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestServerShutsDownWithOpenStream(t *testing.T) {
	log := zaptest.NewLogger(t)
	dispatcher := notification.NewDispatcher(log, notification.NewMemoryRepository(), notification.NewHub(log, 8))
	svc := review.NewService(log, review.NewMemoryStore(), review.NewMemoryDirectory(), dispatcher, review.Config{})
	addr := freeAddr(t)
	srv := New(log, Config{Addr: addr, JWTSecret: "s", StreamHeartbeat: time.Hour},
		handlers.New(log, svc, dispatcher), dispatcher, health.NewHealthChecker())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	token, err := auth.IssueToken("s", "alice", []string{auth.RoleReader}, time.Hour)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodGet, "http://"+addr+"/api/notifications/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: unread-count\n", line)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
