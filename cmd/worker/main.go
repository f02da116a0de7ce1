package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/hugh/funnel-builder/internal/access"
	"github.com/hugh/funnel-builder/internal/database"
	"github.com/hugh/funnel-builder/internal/domains"
	"github.com/hugh/funnel-builder/internal/integrations"
	"github.com/hugh/funnel-builder/internal/metrics"
	"github.com/hugh/funnel-builder/internal/notify"
	"github.com/hugh/funnel-builder/internal/tasks"
	"github.com/hugh/funnel-builder/internal/workspace"
	"github.com/hugh/funnel-builder/pkg/config"
	"github.com/hugh/funnel-builder/pkg/crypto"
	"github.com/hugh/funnel-builder/pkg/queue"
	"github.com/hugh/funnel-builder/pkg/util"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting funnel builder worker", "concurrency", cfg.Worker.Concurrency)

	sweepEvery, err := util.CronInterval(cfg.Worker.DomainSweepCron, time.Now())
	if err != nil {
		logger.Error("invalid domain sweep schedule", "error", err)
		os.Exit(1)
	}

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		logger.Error("failed to create encryptor", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	resolver := access.NewResolver(workspace.NewAccessStore(db), logger, m)

	var provider domains.HostnameProvider
	if cfg.Cloudflare.Enabled() {
		cf, err := domains.NewCloudflareClient(cfg.Cloudflare, logger)
		if err != nil {
			logger.Error("failed to create Cloudflare client", "error", err)
			os.Exit(1)
		}
		provider = cf
	} else {
		logger.Warn("Cloudflare not configured, domain checks will be skipped")
	}

	handler := tasks.NewHandler(tasks.Deps{
		Domains: domains.NewService(db, resolver, provider, logger, domains.Options{
			Metrics:     m,
			MaxChecks:   cfg.Worker.DomainVerifyAttempts,
			CNAMETarget: cfg.Cloudflare.CNAMETarget,
		}),
		Invitations:   notify.NewInvitations(db, notify.NewMailer(cfg.SMTP, logger), cfg.Server.PublicURL, logger),
		Registrations: integrations.NewService(db, resolver, encryptor, integrations.NewCircleClient(cfg.Circle.BaseURL, logger), logger),
		Metrics:       m,
	}, logger)

	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	srv := queue.NewServer(&cfg.Redis, cfg.Worker.Concurrency, tasks.ErrorHandler(logger), tasks.RetryDelay)

	scheduler := queue.NewScheduler(&cfg.Redis)
	entryID, err := scheduler.Register(cfg.Worker.DomainSweepCron, tasks.NewDomainSweepTask(),
		asynq.Queue(queue.QueueLow),
		asynq.MaxRetry(0),
		asynq.Unique(sweepEvery),
	)
	if err != nil {
		logger.Error("failed to register domain sweep", "error", err)
		os.Exit(1)
	}
	logger.Info("scheduled domain sweep", "cron", cfg.Worker.DomainSweepCron, "entry_id", entryID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(mux); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		srv.Shutdown()
		os.Exit(1)
	}

	logger.Info("worker started, waiting for tasks...")
	<-ctx.Done()
	logger.Info("shutting down worker...")

	// Both stop calls block until in-flight work is done.
	var g errgroup.Group
	g.Go(func() error {
		scheduler.Shutdown()
		return nil
	})
	g.Go(func() error {
		srv.Shutdown()
		return nil
	})
	_ = g.Wait()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	logger.Info("worker stopped")
}
