package review

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/nmxmxh/peerdesk/internal/service/notification"
	errs "github.com/nmxmxh/peerdesk/pkg/errors"
	"github.com/nmxmxh/peerdesk/pkg/logger"
	"github.com/nmxmxh/peerdesk/pkg/metrics"
)

// Sweep expires every active request whose deadline has passed. Each row is
// expired with its own conditional write, so concurrent sweeps on several
// replicas and a racing Submit are safe: whoever loses the write skips the
// row.
func (s *Service) Sweep(ctx context.Context) (res SweepResult, err error) {
	const op = "Sweep"
	ctx, span := s.startSpan(ctx, op)
	start := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
		span.SetAttributes(
			attribute.Int("scanned", res.Scanned),
			attribute.Int("expired", res.Expired),
			attribute.Int("skipped", res.Skipped))
		s.finish(span, op, err)
	}()

	now := s.clock()
	for {
		batch, err := s.store.ListOverdue(ctx, now, s.cfg.SweepBatchSize)
		if err != nil {
			return res, err
		}
		expired := 0
		for _, r := range batch {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Scanned++
			switch err := s.expire(ctx, r, now); {
			case err == nil:
				res.Expired++
				expired++
			case errs.Is(err, errs.ErrInvalidState):
				res.Skipped++
				metrics.SweepSkipped.Inc()
			default:
				res.Failed++
				_ = errs.LogWithError(ctx, s.log, "Failed to expire review request", err, zap.String("request_id", r.ID))
			}
		}
		// A short batch is the last one. A batch with no progress would come
		// back unchanged.
		if len(batch) < s.cfg.SweepBatchSize || expired == 0 {
			break
		}
	}
	if res.Expired > 0 || res.Failed > 0 {
		s.log.Info("Sweep finished",
			zap.Int("scanned", res.Scanned),
			zap.Int("expired", res.Expired),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed))
	}
	return res, nil
}

func (s *Service) expire(ctx context.Context, r *Request, now time.Time) error {
	req, doc, err := s.store.Transition(ctx, Transition{
		RequestID:    r.ID,
		From:         r.Status,
		To:           RequestExpired,
		Guard:        GuardLapsed,
		At:           now,
		DocumentFrom: DocumentReviewing,
		DocumentTo:   DocumentPendingReview,
	})
	if err != nil {
		return err
	}
	metrics.SweepExpired.Inc()
	transitioned("Sweep", string(RequestExpired))

	payload := requestPayload(doc, req)
	payload["expired_from"] = string(r.Status)
	recipients := append([]string{docOwner(doc)}, s.admins(ctx)...)
	s.emit(ctx, notification.TypeReviewExpired, payload, recipients...)
	return nil
}

// Sweeper runs Sweep on a cron schedule. A run that is still going when the
// next one is due causes that one to be skipped.
type Sweeper struct {
	svc      *Service
	log      *zap.Logger
	schedule string
	cron     *cron.Cron
}

func NewSweeper(log *zap.Logger, svc *Service, schedule string) (*Sweeper, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, errs.Validation("review.NewSweeper", "invalid sweep schedule %q: %v", schedule, err)
	}
	log = log.With(zap.String("module", "review_sweeper"))
	cl := cronLogger{log.Sugar()}
	return &Sweeper{
		svc:      svc,
		log:      log,
		schedule: schedule,
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
	}, nil
}

// Run schedules the sweep and blocks until ctx is done. It waits for an
// in-flight sweep to return before it does.
func (sw *Sweeper) Run(ctx context.Context) error {
	log := logger.FromContext(ctx, sw.log)
	if _, err := sw.cron.AddFunc(sw.schedule, func() {
		if _, err := sw.svc.Sweep(ctx); err != nil && ctx.Err() == nil {
			_ = errs.LogWithError(ctx, log, "Sweep failed", err, zap.String("schedule", sw.schedule))
		}
	}); err != nil {
		return err
	}
	log.Info("Starting expiry sweeper", zap.String("schedule", sw.schedule))
	sw.cron.Start()
	<-ctx.Done()
	<-sw.cron.Stop().Done()
	return nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
