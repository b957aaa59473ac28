package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPDialer opens a server-sent events stream over HTTP with a bearer
// token.
type HTTPDialer struct {
	URL    string
	Token  string
	Client *http.Client
}

func (d *HTTPDialer) Dial(ctx context.Context) (Conn, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if d.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.Token)
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream handshake failed: %s", resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected content type %q", ct)
	}
	return NewReader(resp.Body), nil
}

// Reader parses an event stream. Comment lines are skipped and multi-line
// data fields are joined with newlines.
type Reader struct {
	body io.ReadCloser
	r    *bufio.Reader
}

func NewReader(body io.ReadCloser) *Reader {
	return &Reader{body: body, r: bufio.NewReader(body)}
}

func (s *Reader) Next() (Event, error) {
	var (
		name string
		data []string
	)
	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			// A frame cut off by the end of the stream is discarded.
			return Event{}, fmt.Errorf("stream ended: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if name == "" && data == nil {
				continue
			}
			if name == "" {
				name = "message"
			}
			return Event{Name: name, Data: []byte(strings.Join(data, "\n"))}, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			data = append(data, value)
		}
	}
}

func (s *Reader) Close() error {
	return s.body.Close()
}
