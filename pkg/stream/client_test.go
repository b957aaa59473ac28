package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap/zaptest"
)

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped atomic.Bool
}

func (t *fakeTimer) Stop() bool { return !t.stopped.Swap(true) }

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, 0, len(c.timers))
	for _, t := range c.timers {
		out = append(out, t.d)
	}
	return out
}

// fire runs the most recently scheduled timer as if it had elapsed.
func (c *fakeClock) fire(t *testing.T) {
	t.Helper()
	c.mu.Lock()
	require.NotEmpty(t, c.timers)
	last := c.timers[len(c.timers)-1]
	c.mu.Unlock()
	last.f()
}

type fakeConn struct {
	events chan Event
	fail   chan error
	closed atomic.Bool
	done   chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan Event, 8), fail: make(chan error, 1), done: make(chan struct{})}
}

func (c *fakeConn) Next() (Event, error) {
	select {
	case ev := <-c.events:
		return ev, nil
	case err := <-c.fail:
		return Event{}, err
	case <-c.done:
		return Event{}, errors.New("closed")
	}
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	c.once.Do(func() { close(c.done) })
	return nil
}

// fakeDialer hands out queued results in order and counts dials.
type fakeDialer struct {
	mu      sync.Mutex
	results []interface{}
	dials   atomic.Int32
}

func (d *fakeDialer) push(v ...interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, v...)
}

func (d *fakeDialer) Dial(context.Context) (Conn, error) {
	d.dials.Inc()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.results) == 0 {
		return nil, errors.New("connection refused")
	}
	v := d.results[0]
	d.results = d.results[1:]
	if c, ok := v.(*fakeConn); ok {
		return c, nil
	}
	return nil, v.(error)
}

func expectStates(t *testing.T, c *Client, want ...State) {
	t.Helper()
	for _, w := range want {
		select {
		case got := <-c.States():
			require.Equal(t, w, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for state %s (current %s)", w, c.State())
		}
	}
}

func newTestClient(t *testing.T, d Dialer, cfg Config) (*Client, *fakeClock) {
	clock := &fakeClock{}
	return New(zaptest.NewLogger(t), d, cfg, WithClock(clock)), clock
}

func TestBackoffScheduleThenFailed(t *testing.T) {
	d := &fakeDialer{}
	c, clock := newTestClient(t, d, Config{BaseDelay: time.Second, MaxAttempts: 5})
	c.Start()

	expectStates(t, c, StateConnecting, StateReconnectWait)
	for i := 0; i < 5; i++ {
		clock.fire(t)
		if i < 4 {
			expectStates(t, c, StateConnecting, StateReconnectWait)
		}
	}
	expectStates(t, c, StateConnecting, StateFailed)

	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
	}, clock.delays())
	assert.Equal(t, int32(6), d.dials.Load())
	assert.Equal(t, 5, c.Attempts())
	assert.True(t, c.State().Terminal())
}

func TestMessageReceiptResetsAttempts(t *testing.T) {
	d := &fakeDialer{}
	first, second := newFakeConn(), newFakeConn()
	d.push(errors.New("refused"), errors.New("refused"), first)
	c, clock := newTestClient(t, d, Config{BaseDelay: time.Second, MaxAttempts: 5})
	c.Start()

	expectStates(t, c, StateConnecting, StateReconnectWait)
	clock.fire(t)
	expectStates(t, c, StateConnecting, StateReconnectWait)
	clock.fire(t)
	expectStates(t, c, StateConnecting, StateOpen)
	assert.Equal(t, 2, c.Attempts(), "opening alone does not reset the counter")

	first.events <- Event{Name: "unread-count", Data: []byte(`{"count":2}`)}
	select {
	case ev := <-c.Events():
		assert.Equal(t, "unread-count", ev.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}

	assert.Equal(t, 0, c.Attempts())

	first.fail <- errors.New("eof")
	expectStates(t, c, StateReconnectWait)
	assert.True(t, first.closed.Load(), "dead handle closed before scheduling")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, time.Second}, clock.delays())

	d.push(second)
	clock.fire(t)
	expectStates(t, c, StateConnecting, StateOpen)
}

// A server that accepts and hangs up before sending anything must not keep
// the client retrying at the base delay forever.
func TestMessagelessConnectionsEndFailed(t *testing.T) {
	d := &fakeDialer{}
	for i := 0; i < 6; i++ {
		conn := newFakeConn()
		conn.fail <- errors.New("eof")
		d.push(conn)
	}
	c, clock := newTestClient(t, d, Config{BaseDelay: time.Second, MaxAttempts: 5})
	c.Start()

	expectStates(t, c, StateConnecting, StateOpen, StateReconnectWait)
	for i := 0; i < 4; i++ {
		clock.fire(t)
		expectStates(t, c, StateConnecting, StateOpen, StateReconnectWait)
	}
	clock.fire(t)
	expectStates(t, c, StateConnecting, StateOpen, StateFailed)

	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
	}, clock.delays())
	assert.Equal(t, int32(6), d.dials.Load())
	assert.Equal(t, 5, c.Attempts())
	assert.Equal(t, StateFailed, c.State())
}

func TestDisableDuringReconnectWait(t *testing.T) {
	d := &fakeDialer{}
	c, clock := newTestClient(t, d, Config{})
	c.Start()
	expectStates(t, c, StateConnecting, StateReconnectWait)

	c.Disable()
	expectStates(t, c, StateClosed)
	assert.True(t, clock.timers[0].stopped.Load())

	clock.fire(t)
	assert.Equal(t, int32(1), d.dials.Load(), "no attempt after disable")
	assert.Equal(t, StateClosed, c.State())

	c.Start()
	assert.Equal(t, StateClosed, c.State())
}

func TestDisableClosesOpenConnection(t *testing.T) {
	d := &fakeDialer{}
	conn := newFakeConn()
	d.push(conn)
	c, clock := newTestClient(t, d, Config{})
	c.Start()
	expectStates(t, c, StateConnecting, StateOpen)

	c.Disable()
	assert.True(t, conn.closed.Load())
	expectStates(t, c, StateClosed)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, clock.delays(), "closing on disable does not schedule a reconnect")
}

func TestUnknownEventsDropped(t *testing.T) {
	d := &fakeDialer{}
	conn := newFakeConn()
	d.push(conn)
	c, _ := newTestClient(t, d, Config{})
	c.Start()
	expectStates(t, c, StateConnecting, StateOpen)

	conn.events <- Event{Name: "mystery"}
	conn.events <- Event{Name: "notification", Data: []byte(`{}`)}
	select {
	case ev := <-c.Events():
		assert.Equal(t, "notification", ev.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}
	c.Disable()
}

func TestPassThrough(t *testing.T) {
	d := &fakeDialer{}
	conn := newFakeConn()
	d.push(conn)
	c, _ := newTestClient(t, d, Config{PassThrough: true})
	c.Start()
	expectStates(t, c, StateConnecting, StateOpen)

	conn.events <- Event{Name: "mystery"}
	select {
	case ev := <-c.Events():
		assert.Equal(t, "mystery", ev.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}
	c.Disable()
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Jitter: 3}.withDefaults()
	assert.Equal(t, time.Second, cfg.BaseDelay)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Zero(t, cfg.Jitter)
	assert.Equal(t, DefaultEvents, cfg.Events)
}
