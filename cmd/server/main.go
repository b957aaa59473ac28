// Package main is the entry point for the review workflow service. It wires
// storage, the notification dispatcher, the sweeper and the HTTP surface and
// runs them until interrupted.
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nmxmxh/peerdesk/database/connect"
	"github.com/nmxmxh/peerdesk/internal/config"
	"github.com/nmxmxh/peerdesk/internal/repository"
	notificationrepo "github.com/nmxmxh/peerdesk/internal/repository/notification"
	reviewrepo "github.com/nmxmxh/peerdesk/internal/repository/review"
	"github.com/nmxmxh/peerdesk/internal/server"
	"github.com/nmxmxh/peerdesk/internal/server/handlers"
	"github.com/nmxmxh/peerdesk/internal/service/notification"
	"github.com/nmxmxh/peerdesk/internal/service/review"
	artifacts "github.com/nmxmxh/peerdesk/internal/storage/s3"
	"github.com/nmxmxh/peerdesk/pkg/health"
	"github.com/nmxmxh/peerdesk/pkg/logger"
	"github.com/nmxmxh/peerdesk/pkg/metrics"
	pkgredis "github.com/nmxmxh/peerdesk/pkg/redis"
	"github.com/nmxmxh/peerdesk/pkg/tracing"
)

const serviceVersion = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger depends on config; fall back to a bare one.
		zap.NewExample().Fatal("Failed to load config", zap.Error(err))
	}

	log := logger.New(logger.Config{
		Environment: cfg.AppEnv,
		LogLevel:    cfg.LogLevel,
		ServiceName: cfg.AppName,
	})
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Service exited with error", zap.Error(err))
		stop()
		os.Exit(1)
	}
	log.Info("Service stopped")
}

type storage struct {
	store     review.Store
	directory review.Directory
	events    notification.Repository
	db        *sql.DB
}

func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (*storage, error) {
	if cfg.Store == config.StoreMemory {
		log.Warn("Using in-memory storage; state is lost on restart")
		return &storage{
			store:     review.NewMemoryStore(),
			directory: review.NewMemoryDirectory(),
			events:    notification.NewMemoryRepository(),
		}, nil
	}
	db, err := connect.ConnectPostgres(ctx, log, cfg)
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(ctx, db, log); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &storage{
		store:     reviewrepo.New(db, log),
		directory: reviewrepo.NewDirectory(db, log),
		events:    notificationrepo.NewNotificationRepository(db, log),
		db:        db,
	}, nil
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	_, shutdownTracing, err := tracing.Init(tracing.Config{
		ServiceName:    cfg.AppName,
		ServiceVersion: serviceVersion,
		Environment:    cfg.AppEnv,
		Endpoint:       cfg.OTLPEndpoint,
	})
	if err != nil {
		log.Warn("Failed to initialize tracing, continuing without it", zap.Error(err))
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("Tracing shutdown failed", zap.Error(err))
		}
	}()

	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	checks := health.NewHealthChecker()
	if st.db != nil {
		defer st.db.Close()
		checks.Register(health.NewDatabaseHealthCheck("postgres", st.db))
	}

	var dispatchOpts []notification.Option
	if cfg.RedisEnabled() {
		rc, err := pkgredis.NewClient(ctx, pkgredis.Config{
			Host:         cfg.RedisHost,
			Port:         cfg.RedisPort,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			PoolSize:     cfg.RedisPoolSize,
			MinIdleConns: cfg.RedisMinIdleConns,
			MaxRetries:   cfg.RedisMaxRetries,
		}, log)
		if err != nil {
			return err
		}
		defer rc.Close()
		checks.Register(health.NewRedisHealthCheck("redis", rc.Client))
		dispatchOpts = append(dispatchOpts,
			notification.WithBroker(notification.NewRedisBroker(rc.Client, log)),
			notification.WithDeadLetter(func(ctx context.Context, payload []byte, cause error) {
				_ = pkgredis.EmitToDLQ(ctx, rc.Client, log, "notification", payload, cause)
			}))
	} else {
		log.Info("Redis not configured; notifications fan out in-process only")
	}
	dispatcher := notification.NewDispatcher(log, st.events, notification.NewHub(log, cfg.StreamBuffer), dispatchOpts...)

	var (
		reviewOpts  []review.Option
		handlerOpts []handlers.Option
	)
	if cfg.ArtifactStoreEnabled() {
		reports, err := artifacts.New(artifacts.Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
		}, log)
		if err != nil {
			return err
		}
		reviewOpts = append(reviewOpts, review.WithArtifactVerifier(reports))
		handlerOpts = append(handlerOpts, handlers.WithReports(reports, artifacts.ReportKey))
	}

	svc := review.NewService(log, st.store, st.directory, dispatcher, review.Config{
		RespondWindow:  cfg.RespondWindow,
		SubmitWindow:   cfg.SubmitWindow,
		SweepBatchSize: cfg.SweepBatchSize,
	}, reviewOpts...)
	sweeper, err := review.NewSweeper(log, svc, cfg.SweepSchedule)
	if err != nil {
		return err
	}

	srv := server.New(log, server.Config{
		Addr:             cfg.AppPort,
		JWTSecret:        cfg.JWTSecret,
		StreamHeartbeat:  cfg.StreamHeartbeat,
		WSAllowedOrigins: cfg.WSAllowedOrigins,
	}, handlers.New(log, svc, dispatcher, handlerOpts...), dispatcher, checks)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return metrics.Serve(gctx, cfg.MetricsPort, log) })
	g.Go(func() error { return dispatcher.Run(logger.WithContext(gctx, "broker")) })
	g.Go(func() error { return sweeper.Run(logger.WithContext(gctx, "sweeper")) })
	return g.Wait()
}
