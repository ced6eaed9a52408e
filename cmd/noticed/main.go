package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/notice-ingest/internal/async"
	"github.com/joseph-ayodele/notice-ingest/internal/common"
	"github.com/joseph-ayodele/notice-ingest/internal/ingest"
	svc "github.com/joseph-ayodele/notice-ingest/internal/server"
)

func main() {
	if err := common.LoadDotEnv(); err != nil {
		svc.NewLogger(os.Stderr, "info").Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg := common.LoadConfig()
	logger := svc.NewLogger(os.Stdout, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("noticed stopped with error", "error", err)
		os.Exit(1)
	}
}

// run owns every resource of the daemon so its deferred closes execute before
// main decides the exit code.
func run(ctx context.Context, cfg *common.Config, logger *slog.Logger) error {
	store, err := svc.OpenStore(ctx, cfg.Database, false, logger)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer store.Close(logger)

	publisher := svc.NewPublisher(cfg.Events, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("failed to close event publisher", "error", err)
		}
	}()

	processor, err := svc.NewProcessor(cfg, store.Jobs, publisher, logger)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	queue := async.NewProcessorQueue(processor, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithProcessTimeout(cfg.Queue.JobTimeout),
	)
	defer func() {
		logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		queue.Shutdown(shutdownCtx)
		logger.Info("stopped.")
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	var pinger svc.Pinger
	if store.DB != nil {
		pinger = store.DB
	}
	health := svc.NewHealthServer(pinger, 15*time.Second, logger)
	g.Go(func() error { return health.ListenAndServe(gctx, cfg.Server.GRPCAddr) })

	if cfg.Queue.RedisAddr != "" {
		streams, err := async.NewStreamsQueue(gctx, async.StreamsConfig{
			Addr:        cfg.Queue.RedisAddr,
			Password:    cfg.Queue.RedisPassword,
			DB:          cfg.Queue.RedisDB,
			Stream:      cfg.Queue.Stream,
			Group:       cfg.Queue.Group,
			Consumer:    cfg.Queue.Consumer,
			MaxAttempts: cfg.Queue.MaxAttempts,
		}, logger)
		if err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer func() { _ = streams.Close() }()

		g.Go(func() error {
			return streams.Consume(gctx, func(ctx context.Context, job async.Job) error {
				return async.RunJob(ctx, processor, job, cfg.Queue.JobTimeout, logger)
			})
		})
	}

	if cfg.Queue.InboxDir != "" {
		files, errs, err := ingest.StartWatcher(gctx, ingest.WatchConfig{
			Roots:       []string{cfg.Queue.InboxDir},
			InitialScan: true,
			Debounce:    500 * time.Millisecond,
			Logger:      logger,
		})
		if err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("watch inbox %s: %w", cfg.Queue.InboxDir, err)
		}
		g.Go(func() error { return submitInbox(gctx, queue, files, errs, logger) })
	}

	logger.Info("noticed started",
		"grpc_addr", cfg.Server.GRPCAddr,
		"workers", cfg.Queue.Workers,
		"redis", cfg.Queue.RedisAddr != "",
		"inbox", cfg.Queue.InboxDir,
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// submitInbox turns every dropped file into an asynchronous job with a fresh id.
func submitInbox(ctx context.Context, q async.Queue, files <-chan ingest.InboxFile, errs <-chan error, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("inbox watcher error", "error", err)
		case f, ok := <-files:
			if !ok {
				return nil
			}
			job := async.Job{
				JobID:       uuid.NewString(),
				LocalPath:   f.Path,
				MimeType:    f.MimeType,
				SubmittedAt: time.Now().UTC(),
			}
			if err := q.Enqueue(ctx, job); err != nil {
				if errors.Is(err, async.ErrQueueClosed) || ctx.Err() != nil {
					return nil
				}
				logger.Error("failed to enqueue inbox file", "path", f.Path, "error", err)
				continue
			}
			logger.Info("inbox file submitted", "path", f.Path, "job_id", job.JobID)
		}
	}
}
