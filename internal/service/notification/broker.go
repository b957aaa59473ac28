package notification

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/nmxmxh/peerdesk/pkg/json"
	"github.com/nmxmxh/peerdesk/pkg/logger"
	"github.com/nmxmxh/peerdesk/pkg/metrics"
	"github.com/nmxmxh/peerdesk/pkg/redis"
)

// Envelope is what travels between replicas: the frame name, the user whose
// connections should receive it and, except for unread-count, the event.
type Envelope struct {
	Name   MessageName `json:"name"`
	UserID string      `json:"user_id"`
	Event  *Event      `json:"event,omitempty"`
}

// DeliverFunc hands an envelope to the local connections of its user.
type DeliverFunc func(ctx context.Context, env Envelope)

// Broker carries envelopes to every replica, including the publishing one.
type Broker interface {
	Publish(ctx context.Context, env Envelope) error
	// Run receives envelopes and calls deliver for each until ctx is done.
	Run(ctx context.Context, deliver DeliverFunc) error
}

// LocalBroker delivers synchronously within the process. It serves single
// replica deployments and tests.
type LocalBroker struct {
	deliver DeliverFunc
}

func NewLocalBroker(deliver DeliverFunc) *LocalBroker {
	return &LocalBroker{deliver: deliver}
}

func (b *LocalBroker) Publish(ctx context.Context, env Envelope) error {
	b.deliver(ctx, env)
	return nil
}

func (b *LocalBroker) Run(ctx context.Context, _ DeliverFunc) error {
	<-ctx.Done()
	return nil
}

// RedisBroker fans envelopes out over a Redis pub/sub channel. Every replica
// subscribes, so a transition committed on one replica reaches connections
// held by any other. Publishing goes through a circuit breaker; while it is
// open the push is skipped and clients catch up from history.
type RedisBroker struct {
	client  goredis.UniversalClient
	channel string
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

func NewRedisBroker(client goredis.UniversalClient, log *zap.Logger) *RedisBroker {
	kb := redis.NewKeyBuilder(redis.NamespaceQueue, redis.ContextNotification)
	b := &RedisBroker{
		client:  client,
		channel: kb.Channel("user"),
		log:     log.With(zap.String("module", "notification_broker")),
	}
	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notification-redis-publish",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.log.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return b
}

// Channel returns the pub/sub channel name.
func (b *RedisBroker) Channel() string { return b.channel }

func (b *RedisBroker) Publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = b.breaker.Execute(func() (interface{}, error) {
		return nil, b.client.Publish(ctx, b.channel, payload).Err()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.NotificationPushDropped.WithLabelValues("breaker_open").Inc()
		return nil
	}
	return err
}

func (b *RedisBroker) Run(ctx context.Context, deliver DeliverFunc) error {
	log := logger.FromContext(ctx, b.log)
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	log.Info("Subscribed to notification channel", zap.String("channel", b.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Warn("Dropping malformed envelope", zap.Error(err))
				continue
			}
			deliver(ctx, env)
		}
	}
}
