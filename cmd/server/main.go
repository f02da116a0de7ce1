package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/hugh/funnel-builder/internal/access"
	"github.com/hugh/funnel-builder/internal/api"
	"github.com/hugh/funnel-builder/internal/api/middleware"
	"github.com/hugh/funnel-builder/internal/auth"
	"github.com/hugh/funnel-builder/internal/billing"
	"github.com/hugh/funnel-builder/internal/cache"
	"github.com/hugh/funnel-builder/internal/database"
	"github.com/hugh/funnel-builder/internal/domains"
	"github.com/hugh/funnel-builder/internal/funnels"
	"github.com/hugh/funnel-builder/internal/images"
	"github.com/hugh/funnel-builder/internal/integrations"
	"github.com/hugh/funnel-builder/internal/metrics"
	"github.com/hugh/funnel-builder/internal/tasks"
	"github.com/hugh/funnel-builder/internal/workspace"
	"github.com/hugh/funnel-builder/pkg/config"
	"github.com/hugh/funnel-builder/pkg/crypto"
	"github.com/hugh/funnel-builder/pkg/queue"
	"github.com/hugh/funnel-builder/pkg/util"
)

const (
	// Register and login get a much tighter budget than the rest of the API.
	authRequests      = 10
	authWindowSeconds = 60
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

	logger.Info("starting funnel builder server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := database.AutoMigrate(db); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	// Redis backs the entitlement cache, the rate limiter and the task
	// queue. Without it the API still serves, with local rate limiting and
	// no background work.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis", "error", err)
		_ = redisClient.Close()
		redisClient = nil
	}

	var enqueuer *tasks.Enqueuer
	var closeQueue func() error
	if redisClient != nil {
		client := queue.NewClient(&cfg.Redis)
		closeQueue = client.Close
		enqueuer = tasks.NewEnqueuer(client, cfg.Worker.DomainVerifyAttempts, logger)
	}

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		logger.Error("failed to create encryptor", "error", err)
		os.Exit(1)
	}
	if cfg.Encryption.Key == "" {
		logger.Warn("ENCRYPTION_KEY not set, using generated key - integration tokens will be unreadable after restart")
	}

	m := metrics.New()
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	resolver := access.NewResolver(workspace.NewAccessStore(db), logger, m)

	bill := billing.NewService(db, resolver, logger, billing.Options{
		Cache:   cache.New(redisClient, "funnels:", logger),
		TTL:     cfg.Cache.EntitlementsTTL(),
		Metrics: m,
	})

	integ := integrations.NewService(db, resolver, encryptor, integrations.NewCircleClient(cfg.Circle.BaseURL, logger), logger)
	bill.SetPurchaseRecorder(integ)

	workspaceOpts := workspace.Options{Metrics: m}
	domainOpts := domains.Options{
		Metrics:     m,
		MaxChecks:   cfg.Worker.DomainVerifyAttempts,
		CNAMETarget: cfg.Cloudflare.CNAMETarget,
	}
	if enqueuer != nil {
		integ.SetScheduler(enqueuer)
		workspaceOpts.Notifier = enqueuer
		domainOpts.Scheduler = enqueuer
	}

	var provider domains.HostnameProvider
	if cfg.Cloudflare.Enabled() {
		cf, err := domains.NewCloudflareClient(cfg.Cloudflare, logger)
		if err != nil {
			logger.Error("failed to create Cloudflare client", "error", err)
			os.Exit(1)
		}
		provider = cf
	} else {
		logger.Warn("Cloudflare not configured, custom domains are disabled")
	}

	var store images.BlobStore
	if cfg.Storage.Enabled() {
		store, err = images.NewBlobStore(context.Background(), cfg.Storage, logger)
		if err != nil {
			logger.Error("failed to create image storage", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("image storage not configured, uploads are disabled")
	}

	services := api.Services{
		Auth:         auth.NewService(db, jwtService),
		Workspaces:   workspace.NewService(db, resolver, bill, logger, workspaceOpts),
		Funnels:      funnels.NewService(db, resolver, bill, m, logger),
		Domains:      domains.NewService(db, resolver, provider, logger, domainOpts),
		Images:       images.NewService(db, resolver, store, cfg.Storage.MaxUploadBytes(), logger),
		Billing:      bill,
		Integrations: integ,
	}

	var limiter middleware.Limiter
	if redisClient != nil {
		limiter = middleware.NewRedisLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.WindowSeconds, "ratelimit")
	} else {
		limiter = middleware.NewLocalLimiter(cfg.RateLimit.Requests, cfg.RateLimit.WindowSeconds)
	}

	if cfg.Webhook.PaymentSecret == "" {
		logger.Warn("WEBHOOK_PAYMENT_SECRET not set, payment webhooks will be rejected")
	}

	router := api.NewRouter(api.RouterConfig{
		DB:             db,
		Redis:          redisClient,
		Logger:         logger,
		JWTService:     jwtService,
		Metrics:        m,
		Services:       services,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimiter:    limiter,
		AuthLimiter:    middleware.NewLocalLimiter(authRequests, authWindowSeconds),
		WebhookSecret:  cfg.Webhook.PaymentSecret,
		SecureCookies:  !cfg.Server.IsDevelopment(),
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if closeQueue != nil {
		_ = closeQueue()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	logger.Info("server stopped")
}
