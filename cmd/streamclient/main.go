// Command streamclient follows a user's notification stream from the command
// line. It reconnects with backoff, re-reads history after every reconnect and
// falls back to polling once the stream gives up.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nmxmxh/peerdesk/pkg/auth"
	"github.com/nmxmxh/peerdesk/pkg/json"
	"github.com/nmxmxh/peerdesk/pkg/logger"
	"github.com/nmxmxh/peerdesk/pkg/stream"
)

type historyPage struct {
	Items []struct {
		ID        string     `json:"id"`
		Type      string     `json:"type"`
		CreatedAt time.Time  `json:"created_at"`
		ReadAt    *time.Time `json:"read_at,omitempty"`
	} `json:"items"`
	Total  int `json:"total"`
	Unread int `json:"unread"`
}

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:8090", "service base URL")
		token       = flag.String("token", os.Getenv("PEERDESK_TOKEN"), "bearer token")
		secret      = flag.String("secret", "", "JWT secret used to mint a token when -token is empty")
		userID      = flag.String("user", "", "user to mint a token for")
		roles       = flag.String("roles", "", "comma separated roles for a minted token")
		baseDelay   = flag.Duration("base-delay", time.Second, "first reconnect delay")
		maxAttempts = flag.Int("max-attempts", 5, "consecutive reconnect attempts before giving up")
		jitter      = flag.Float64("jitter", 0.2, "backoff randomization factor")
		poll        = flag.Duration("poll", 30*time.Second, "history poll interval after the stream fails")
		logLevel    = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	log := logger.New(logger.Config{
		Environment: "development",
		LogLevel:    *logLevel,
		ServiceName: "streamclient",
	})
	defer func() {
		_ = log.Sync()
	}()

	if *token == "" {
		if *secret == "" || *userID == "" {
			log.Fatal("Either -token or both -secret and -user are required")
		}
		var rs []string
		if *roles != "" {
			rs = strings.Split(*roles, ",")
		}
		t, err := auth.IssueToken(*secret, *userID, rs, 24*time.Hour)
		if err != nil {
			log.Fatal("Failed to mint token", zap.Error(err))
		}
		*token = t
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := &apiClient{base: strings.TrimRight(*baseURL, "/"), token: *token, http: &http.Client{Timeout: 10 * time.Second}}
	client := stream.New(log, &stream.HTTPDialer{
		URL:   api.base + "/api/notifications/stream",
		Token: *token,
	}, stream.Config{
		BaseDelay:   *baseDelay,
		MaxAttempts: *maxAttempts,
		Jitter:      *jitter,
	})
	client.Start()
	defer client.Disable()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-client.Events():
			fmt.Printf("%s %s\n", ev.Name, ev.Data)
		case st := <-client.States():
			log.Info("Stream state changed", zap.String("state", string(st)), zap.Int("attempts", client.Attempts()))
			switch st {
			case stream.StateOpen:
				// Anything sent while disconnected is only in history.
				api.printHistory(ctx, log)
			case stream.StateFailed:
				log.Warn("Stream gave up, polling history", zap.Duration("interval", *poll))
				api.pollHistory(ctx, log, *poll)
				return
			}
		}
	}
}

type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func (a *apiClient) history(ctx context.Context) (*historyPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.base+"/api/notifications?page=1&page_size=20", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history request failed: %s", resp.Status)
	}
	var page historyPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (a *apiClient) printHistory(ctx context.Context, log *zap.Logger) {
	page, err := a.history(ctx)
	if err != nil {
		log.Warn("Failed to fetch notification history", zap.Error(err))
		return
	}
	fmt.Printf("history total=%d unread=%d\n", page.Total, page.Unread)
	for _, it := range page.Items {
		mark := "*"
		if it.ReadAt != nil {
			mark = " "
		}
		fmt.Printf("%s %s %s %s\n", mark, it.CreatedAt.Format(time.RFC3339), it.Type, it.ID)
	}
}

func (a *apiClient) pollHistory(ctx context.Context, log *zap.Logger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		a.printHistory(ctx, log)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
