package notification

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	errs "github.com/nmxmxh/peerdesk/pkg/errors"
	"github.com/nmxmxh/peerdesk/pkg/json"
	"github.com/nmxmxh/peerdesk/pkg/metrics"
)

const userLockStripes = 64

// DeadLetterFunc receives an event whose persistence failed after all
// retries.
type DeadLetterFunc func(ctx context.Context, payload []byte, cause error)

// Dispatcher persists notification events and pushes them to the live
// connections of their recipients. History is the system of record: an event
// is stored before any push is attempted and push failures never surface to
// the producer.
type Dispatcher struct {
	log    *zap.Logger
	repo   Repository
	hub    *Hub
	broker Broker
	now    func() time.Time

	maxRetries   uint64
	retryBackoff time.Duration
	deadLetter   DeadLetterFunc

	locks [userLockStripes]sync.Mutex
}

type Option func(*Dispatcher)

// WithBroker routes pushes through b so that connections held by other
// replicas receive them.
func WithBroker(b Broker) Option {
	return func(d *Dispatcher) { d.broker = b }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithRetry bounds the persistence retry loop.
func WithRetry(maxRetries uint64, initial time.Duration) Option {
	return func(d *Dispatcher) {
		d.maxRetries = maxRetries
		d.retryBackoff = initial
	}
}

func WithDeadLetter(fn DeadLetterFunc) Option {
	return func(d *Dispatcher) { d.deadLetter = fn }
}

func NewDispatcher(log *zap.Logger, repo Repository, hub *Hub, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		log:          log.With(zap.String("module", "notification_dispatcher")),
		repo:         repo,
		hub:          hub,
		now:          time.Now,
		maxRetries:   3,
		retryBackoff: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.broker == nil {
		d.broker = NewLocalBroker(d.Deliver)
	}
	return d
}

// Hub returns the process-local connection registry.
func (d *Dispatcher) Hub() *Hub { return d.hub }

// Publish stores e and pushes it to the recipient's connections. ID and
// CreatedAt are filled in when empty. The event reports a change that has
// already committed, so cancelling ctx does not abandon it; values such as
// the trace span still flow through.
func (d *Dispatcher) Publish(ctx context.Context, e *Event) error {
	const op = "notification.Publish"
	ctx = context.WithoutCancel(ctx)
	if e == nil || e.RecipientUserID == "" {
		return errs.Validation(op, "recipient is required")
	}
	if !e.Type.Valid() {
		return errs.Validation(op, "unknown event type %q", e.Type)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = d.now().UTC()
	}
	if e.Payload == nil {
		e.Payload = map[string]interface{}{}
	}

	if err := d.persist(ctx, e); err != nil {
		d.log.Error("Failed to persist notification",
			zap.Error(err),
			zap.String("event_id", e.ID),
			zap.String("type", string(e.Type)),
			zap.String("recipient", e.RecipientUserID))
		if d.deadLetter != nil {
			if payload, mErr := json.Marshal(e); mErr == nil {
				d.deadLetter(ctx, payload, err)
			}
		}
		return errs.Internal(op, err)
	}
	metrics.NotificationsPublished.WithLabelValues(string(e.Type)).Inc()

	d.push(ctx, Envelope{Name: MessageNotification, UserID: e.RecipientUserID, Event: e.Clone()})
	return nil
}

func (d *Dispatcher) persist(ctx context.Context, e *Event) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = d.retryBackoff
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, d.maxRetries), ctx)

	return backoff.Retry(func() error {
		err := d.repo.Create(ctx, e)
		if err == nil {
			return nil
		}
		// Business errors will not get better on retry.
		if k := errs.KindOf(err); k != errs.KindInternal {
			return backoff.Permanent(err)
		}
		d.log.Warn("Retrying notification insert", zap.Error(err), zap.String("event_id", e.ID))
		return err
	}, policy)
}

func (d *Dispatcher) push(ctx context.Context, env Envelope) {
	if err := d.broker.Publish(ctx, env); err != nil {
		metrics.NotificationPushDropped.WithLabelValues("broker").Inc()
		d.log.Warn("Broker publish failed, delivering locally",
			zap.Error(err),
			zap.String("user_id", env.UserID),
			zap.String("message", string(env.Name)))
		d.Deliver(ctx, env)
	}
}

// Deliver hands env to the local connections of its user, followed by a
// fresh unread count. Brokers call it for every envelope they receive.
func (d *Dispatcher) Deliver(ctx context.Context, env Envelope) {
	if !d.hub.Connected(env.UserID) {
		return
	}
	mu := d.userLock(env.UserID)
	mu.Lock()
	defer mu.Unlock()

	if env.Event != nil && env.Name != MessageUnreadCount {
		d.hub.Send(env.UserID, Message{Name: env.Name, Data: env.Event})
	}
	n, err := d.repo.CountUnread(ctx, env.UserID)
	if err != nil {
		d.log.Warn("Failed to count unread notifications", zap.Error(err), zap.String("user_id", env.UserID))
		return
	}
	d.hub.Send(env.UserID, Message{Name: MessageUnreadCount, Data: UnreadCount{Count: n}})
}

// Subscribe registers a live connection for userID. The first message on the
// subscription is the current unread count.
func (d *Dispatcher) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	if userID == "" {
		return nil, errs.Validation("notification.Subscribe", "user is required")
	}
	mu := d.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	sub := d.hub.Add(userID)
	n, err := d.repo.CountUnread(ctx, userID)
	if err != nil {
		sub.Close()
		return nil, errs.Internal("notification.Subscribe", err)
	}
	sub.offer(Message{Name: MessageUnreadCount, Data: UnreadCount{Count: n}})
	d.log.Debug("Subscription opened",
		zap.String("user_id", userID),
		zap.String("subscription_id", sub.ID),
		zap.Int("connections", d.hub.Count(userID)))
	return sub, nil
}

// MarkRead marks one of actorID's events as read.
func (d *Dispatcher) MarkRead(ctx context.Context, actorID, eventID string) (*Event, error) {
	const op = "notification.MarkRead"
	e, err := d.repo.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if e.RecipientUserID != actorID {
		return nil, errs.Forbidden(op, "notification belongs to another user")
	}
	if !e.Unread() {
		return e, nil
	}
	updated, err := d.repo.MarkRead(ctx, eventID, d.now().UTC())
	if err != nil {
		return nil, err
	}
	d.push(ctx, Envelope{Name: MessageUpdated, UserID: actorID, Event: updated.Clone()})
	return updated, nil
}

// MarkAllRead marks every unread event of actorID and returns how many
// changed.
func (d *Dispatcher) MarkAllRead(ctx context.Context, actorID string) (int, error) {
	n, err := d.repo.MarkAllRead(ctx, actorID, d.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		d.push(ctx, Envelope{Name: MessageUnreadCount, UserID: actorID})
	}
	return n, nil
}

// List returns one page of userID's history, newest first. page is 1-based.
func (d *Dispatcher) List(ctx context.Context, userID string, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	items, total, err := d.repo.ListByUser(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	unread, err := d.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Total: total, Unread: unread, Page: page, PageSize: pageSize}, nil
}

// Run drives the broker's receive loop until ctx is done. It returns nil on
// cancellation.
func (d *Dispatcher) Run(ctx context.Context) error {
	return d.broker.Run(ctx, d.Deliver)
}

func (d *Dispatcher) userLock(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &d.locks[h.Sum32()%userLockStripes]
}
