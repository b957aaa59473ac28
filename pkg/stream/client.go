// Package stream is the client side of the notification stream. It keeps a
// connection open, reconnecting with exponential backoff, and hands decoded
// events to the caller.
package stream

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

type State string

const (
	StateConnecting    State = "CONNECTING"
	StateOpen          State = "OPEN"
	StateReconnectWait State = "RECONNECT_WAIT"
	StateClosed        State = "CLOSED"
	StateFailed        State = "FAILED"
)

// Terminal reports whether no further attempt will be made from s.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// Event is one message received from the server.
type Event struct {
	Name string
	Data []byte
}

// Conn is an open stream. Next blocks until an event arrives or the stream
// ends.
type Conn interface {
	Next() (Event, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DefaultEvents are the event names the server emits.
var DefaultEvents = []string{"notification", "unread-count", "updated"}

type Config struct {
	BaseDelay   time.Duration
	MaxAttempts int
	// Jitter is the backoff randomization factor in [0, 1).
	Jitter float64
	// Events lists the accepted event names; others are dropped unless
	// PassThrough is set.
	Events      []string
	PassThrough bool
	Buffer      int
}

func (c Config) withDefaults() Config {
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		c.Jitter = 0
	}
	if c.Events == nil {
		c.Events = DefaultEvents
	}
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
	return c
}

// Client drives one logical stream through its states:
//
//	CONNECTING -> OPEN -> RECONNECT_WAIT -> CONNECTING ...
//
// ending in CLOSED after Disable or FAILED once the attempts run out.
type Client struct {
	log    *zap.Logger
	dialer Dialer
	clock  Clock
	cfg    Config
	known  map[string]struct{}

	events chan Event
	states chan State

	mu       sync.Mutex
	state    State
	started  bool
	gen      uint64
	attempts int
	policy   backoff.BackOff
	conn     Conn
	cancel   context.CancelFunc
	timer    Timer
}

type Option func(*Client)

func WithClock(c Clock) Option {
	return func(cl *Client) { cl.clock = c }
}

func New(log *zap.Logger, dialer Dialer, cfg Config, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		log:    log.With(zap.String("module", "stream_client")),
		dialer: dialer,
		clock:  realClock{},
		cfg:    cfg,
		known:  make(map[string]struct{}, len(cfg.Events)),
		events: make(chan Event, cfg.Buffer),
		states: make(chan State, 64),
		state:  StateClosed,
	}
	for _, name := range cfg.Events {
		c.known[name] = struct{}{}
	}
	for _, opt := range opts {
		opt(c)
	}
	c.policy = c.newPolicy()
	return c
}

// newPolicy yields BaseDelay * 2^(k-1) before reconnect attempt k and stops
// after MaxAttempts.
func (c *Client) newPolicy() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.cfg.BaseDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = c.cfg.Jitter
	exp.MaxInterval = time.Duration(math.MaxInt64)
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithMaxRetries(exp, uint64(c.cfg.MaxAttempts))
}

func (c *Client) Events() <-chan Event { return c.events }

// States reports every state change in order.
func (c *Client) States() <-chan State { return c.states }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the reconnect attempts made since a message was last
// received.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Start opens the stream. Calling it again has no effect.
func (c *Client) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.connectLocked()
}

// Disable closes the active connection and cancels any pending reconnect.
// No attempt fires afterwards.
func (c *Client) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.dropConnLocked()
	if c.state != StateClosed {
		c.setStateLocked(StateClosed)
	}
}

func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.log.Debug("Stream state", zap.String("from", string(c.state)), zap.String("to", string(s)))
	c.state = s
	select {
	case c.states <- s:
	default:
		c.log.Warn("State listener is behind, dropping state", zap.String("state", string(s)))
	}
}

func (c *Client) dropConnLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.log.Debug("Closing stream connection failed", zap.Error(err))
		}
		c.conn = nil
	}
}

func (c *Client) connectLocked() {
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.setStateLocked(StateConnecting)
	go c.dial(ctx, gen)
}

func (c *Client) dial(ctx context.Context, gen uint64) {
	conn, err := c.dialer.Dial(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.log.Warn("Stream connect failed", zap.Error(err), zap.Int("attempt", c.attempts))
		c.scheduleLocked()
		return
	}
	c.log.Info("Stream open", zap.Int("attempt", c.attempts))
	c.conn = conn
	c.setStateLocked(StateOpen)
	go c.read(ctx, conn, gen)
}

func (c *Client) read(ctx context.Context, conn Conn, gen uint64) {
	received := false
	for {
		ev, err := conn.Next()
		if err != nil {
			c.mu.Lock()
			if gen == c.gen {
				c.log.Warn("Stream dropped", zap.Error(err), zap.Bool("received", received))
				c.scheduleLocked()
			}
			c.mu.Unlock()
			return
		}
		if !received {
			received = true
			c.resetAttempts(gen)
		}

		if _, ok := c.known[ev.Name]; !ok && !c.cfg.PassThrough {
			continue
		}
		select {
		case c.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// resetAttempts restarts the backoff schedule once the connection of gen
// has delivered a message. A connection that opens and drops without one
// keeps counting toward MaxAttempts.
func (c *Client) resetAttempts(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.attempts = 0
	c.policy.Reset()
}

// scheduleLocked closes the dead connection and arms the timer for the next
// attempt, or gives up.
func (c *Client) scheduleLocked() {
	c.dropConnLocked()
	c.gen++
	delay := c.policy.NextBackOff()
	if delay == backoff.Stop {
		c.log.Error("Stream reconnect attempts exhausted", zap.Int("attempts", c.attempts))
		c.setStateLocked(StateFailed)
		return
	}
	c.attempts++
	gen := c.gen
	c.log.Info("Stream reconnect scheduled", zap.Duration("delay", delay), zap.Int("attempt", c.attempts))
	c.timer = c.clock.AfterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.gen || c.state != StateReconnectWait {
			return
		}
		c.timer = nil
		c.connectLocked()
	})
	c.setStateLocked(StateReconnectWait)
}
