package notification

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/nmxmxh/peerdesk/pkg/metrics"
)

// Subscription is one live connection's view of a user's messages. Messages
// arrive on C in publish order. Done is closed when the subscription is
// released, either by Close or because the connection fell behind.
type Subscription struct {
	ID     string
	UserID string

	ch     chan Message
	done   chan struct{}
	closed atomic.Bool
	hub    *Hub
}

func (s *Subscription) C() <-chan Message { return s.ch }

func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close releases the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

func (s *Subscription) release() bool {
	if s.closed.CompareAndSwap(false, true) {
		close(s.done)
		return true
	}
	return false
}

// offer queues m without blocking. It reports false when the queue is full.
func (s *Subscription) offer(m Message) bool {
	select {
	case s.ch <- m:
		return true
	default:
		return false
	}
}

// Hub is the process-local registry of live connections keyed by user id.
// A user may hold any number of connections (tabs, devices).
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[string]*Subscription // userID -> subscriptionID -> sub
	buffer int
	log    *zap.Logger
}

func NewHub(log *zap.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:   make(map[string]map[string]*Subscription),
		buffer: buffer,
		log:    log.With(zap.String("module", "notification_hub")),
	}
}

// Add registers a new connection for userID.
func (h *Hub) Add(userID string) *Subscription {
	s := &Subscription{
		ID:     uuid.NewString(),
		UserID: userID,
		ch:     make(chan Message, h.buffer),
		done:   make(chan struct{}),
		hub:    h,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[string]*Subscription)
	}
	h.subs[userID][s.ID] = s
	return s
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s *Subscription) {
	if users, ok := h.subs[s.UserID]; ok {
		delete(users, s.ID)
		if len(users) == 0 {
			delete(h.subs, s.UserID)
		}
	}
	s.release()
}

// Send delivers m to every connection of userID and returns how many
// accepted it. A connection whose queue is full is released so that its
// client reconnects and replays from history; it never delays the others.
func (h *Hub) Send(userID string, m Message) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for _, s := range h.subs[userID] {
		if s.offer(m) {
			delivered++
			continue
		}
		h.log.Warn("Dropping slow connection",
			zap.String("user_id", userID),
			zap.String("subscription_id", s.ID),
			zap.String("message", string(m.Name)))
		metrics.NotificationPushDropped.WithLabelValues("slow_consumer").Inc()
		h.removeLocked(s)
	}
	return delivered
}

// Connected reports whether userID has at least one live connection here.
func (h *Hub) Connected(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID]) > 0
}

// Count returns the number of live connections for userID.
func (h *Hub) Count(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

// CloseAll releases every subscription, e.g. on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, users := range h.subs {
		for _, s := range users {
			s.release()
		}
	}
	h.subs = make(map[string]map[string]*Subscription)
}
