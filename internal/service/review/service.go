package review

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nmxmxh/peerdesk/internal/service/notification"
	errs "github.com/nmxmxh/peerdesk/pkg/errors"
	"github.com/nmxmxh/peerdesk/pkg/metrics"
	"github.com/nmxmxh/peerdesk/pkg/tracing"
)

// Notifier receives the domain events produced by workflow transitions.
type Notifier interface {
	Publish(ctx context.Context, e *notification.Event) error
}

// ArtifactVerifier confirms that a submitted report artifact exists.
type ArtifactVerifier interface {
	Exists(ctx context.Context, ref string) (bool, error)
}

type Config struct {
	RespondWindow  time.Duration
	SubmitWindow   time.Duration
	SweepBatchSize int
}

func (c Config) withDefaults() Config {
	if c.RespondWindow <= 0 {
		c.RespondWindow = 72 * time.Hour
	}
	if c.SubmitWindow <= 0 {
		c.SubmitWindow = 14 * 24 * time.Hour
	}
	if c.SweepBatchSize <= 0 {
		c.SweepBatchSize = 100
	}
	return c
}

// Service runs the review workflow: assignment, reviewer decisions, approval
// and expiry. Each operation is a single conditional write against the Store;
// events are published only after that write commits.
type Service struct {
	log       *zap.Logger
	store     Store
	directory Directory
	policy    ReviewerPolicy
	notifier  Notifier
	verifier  ArtifactVerifier
	cfg       Config
	now       func() time.Time
}

type Option func(*Service)

func WithPolicy(p ReviewerPolicy) Option {
	return func(s *Service) { s.policy = p }
}

func WithArtifactVerifier(v ArtifactVerifier) Option {
	return func(s *Service) { s.verifier = v }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(log *zap.Logger, store Store, directory Directory, notifier Notifier, cfg Config, opts ...Option) *Service {
	s := &Service{
		log:       log.With(zap.String("module", "review")),
		store:     store,
		directory: directory,
		notifier:  notifier,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.policy == nil {
		s.policy = SpecializationPolicy{Directory: directory}
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func (s *Service) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracing.Start(ctx, "review", op, attrs...)
}

// finish closes the span and records the outcome of op.
func (s *Service) finish(span trace.Span, op string, err error) {
	if err != nil {
		kind := errs.KindOf(err)
		metrics.ReviewRejected.WithLabelValues(op, string(kind)).Inc()
		if kind == errs.KindInternal {
			s.log.Error("Workflow operation failed", zap.String("operation", op), zap.Error(err))
		}
	}
	tracing.End(span, err)
}

func transitioned(op string, to string) {
	metrics.ReviewTransitions.WithLabelValues(op, to).Inc()
}
