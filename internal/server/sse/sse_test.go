package sse

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nmxmxh/peerdesk/internal/service/notification"
	"github.com/nmxmxh/peerdesk/pkg/auth"
)

type frame struct {
	event string
	data  string
}

func withUser(userID string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac := &auth.Context{UserID: userID, Roles: []string{auth.RoleReader}}
		next.ServeHTTP(w, r.WithContext(auth.NewContext(r.Context(), ac)))
	})
}

func open(t *testing.T, srv *httptest.Server) (*http.Response, *bufio.Reader, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		resp.Body.Close()
	})
	return resp, bufio.NewReader(resp.Body), cancel
}

// next reads lines until a blank line ends a frame. Comment frames come back
// with event ":".
func next(t *testing.T, r *bufio.Reader) frame {
	t.Helper()
	var f frame
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			return f
		case strings.HasPrefix(line, ":"):
			f.event = ":"
		case strings.HasPrefix(line, "event: "):
			f.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			f.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func newDispatcher(t *testing.T) *notification.Dispatcher {
	log := zaptest.NewLogger(t)
	return notification.NewDispatcher(log, notification.NewMemoryRepository(), notification.NewHub(log, 8))
}

func TestStreamDeliversCountThenEvents(t *testing.T) {
	d := newDispatcher(t)
	srv := httptest.NewServer(withUser("alice", NewHandler(zaptest.NewLogger(t), d, time.Hour)))
	defer srv.Close()

	resp, r, _ := open(t, srv)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	f := next(t, r)
	assert.Equal(t, "unread-count", f.event)
	assert.JSONEq(t, `{"count":0}`, f.data)

	require.NoError(t, d.Publish(context.Background(), &notification.Event{
		Type:            notification.TypeReviewRequest,
		RecipientUserID: "alice",
		Payload:         map[string]interface{}{"document_id": "doc-1"},
	}))
	f = next(t, r)
	assert.Equal(t, "notification", f.event)
	assert.Contains(t, f.data, `"document_id":"doc-1"`)
	f = next(t, r)
	assert.Equal(t, "unread-count", f.event)
	assert.JSONEq(t, `{"count":1}`, f.data)
}

func TestStreamHeartbeat(t *testing.T) {
	d := newDispatcher(t)
	srv := httptest.NewServer(withUser("alice", NewHandler(zaptest.NewLogger(t), d, 20*time.Millisecond)))
	defer srv.Close()

	_, r, _ := open(t, srv)
	assert.Equal(t, "unread-count", next(t, r).event)
	assert.Equal(t, ":", next(t, r).event)
}

func TestStreamTeardownOnDisconnect(t *testing.T) {
	d := newDispatcher(t)
	srv := httptest.NewServer(withUser("alice", NewHandler(zaptest.NewLogger(t), d, time.Hour)))
	defer srv.Close()

	_, r, cancel := open(t, srv)
	next(t, r)
	require.Equal(t, 1, d.Hub().Count("alice"))

	cancel()
	assert.Eventually(t, func() bool { return d.Hub().Count("alice") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStreamEndsWhenSubscriptionReleased(t *testing.T) {
	d := newDispatcher(t)
	srv := httptest.NewServer(withUser("alice", NewHandler(zaptest.NewLogger(t), d, time.Hour)))
	defer srv.Close()

	_, r, _ := open(t, srv)
	next(t, r)
	d.Hub().CloseAll()

	done := make(chan error, 1)
	go func() {
		_, err := r.ReadString('\n')
		done <- err
	}()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream stayed open after release")
	}
}

func TestStreamRequiresAuth(t *testing.T) {
	d := newDispatcher(t)
	rec := httptest.NewRecorder()
	NewHandler(zaptest.NewLogger(t), d, time.Hour).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, notification.Message{Name: notification.MessageUnreadCount, Data: notification.UnreadCount{Count: 3}}))
	assert.Equal(t, "event: unread-count\ndata: {\"count\":3}\n\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteHeartbeat(&buf))
	assert.Equal(t, ": heartbeat\n\n", buf.String())
}
