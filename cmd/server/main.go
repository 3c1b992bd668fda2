package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hugh/go-roster/internal/api"
	"github.com/hugh/go-roster/internal/avatars"
	"github.com/hugh/go-roster/internal/database"
	"github.com/hugh/go-roster/internal/identity"
	"github.com/hugh/go-roster/internal/notify"
	"github.com/hugh/go-roster/internal/observability/tracing"
	"github.com/hugh/go-roster/internal/quota"
	"github.com/hugh/go-roster/internal/tasks"
	"github.com/hugh/go-roster/pkg/config"
	"github.com/hugh/go-roster/pkg/crypto"
	"github.com/hugh/go-roster/pkg/queue"
	"github.com/hugh/go-roster/pkg/util"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env, "server")
	slog.SetDefault(logger)

	logger.Info("starting roster server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	ctx := context.Background()

	shutdownTracing, err := tracing.Init(ctx, logger, cfg.Tracing.ServiceName, cfg.Server.Env)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if cfg.Server.IsDevelopment() {
		if err := database.AutoMigrate(db); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}
	if err := database.SeedTiers(ctx, db); err != nil {
		logger.Error("failed to seed tiers", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("failed to connect to Redis", "error", err)
		redisClient = nil
	}

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		logger.Error("failed to create encryptor", "error", err)
		os.Exit(1)
	}

	// Notifications go through the worker when Redis is up. Without it they
	// are logged only.
	var sender notify.Sender = notify.NewLogSender(logger)
	var locker quota.Locker
	if redisClient != nil {
		if cfg.Encryption.Key == "" {
			logger.Warn("ENCRYPTION_KEY not set, the worker will not be able to open queued emails")
		}
		asynqClient := queue.NewClient(&cfg.Redis)
		defer asynqClient.Close()
		sender = tasks.NewQueueSender(asynqClient, encryptor)

		if cfg.Quota.StrictLocking {
			locker = quota.NewRedisLocker(redisClient, cfg.Quota.LockTTL())
		}
	} else if cfg.Quota.StrictLocking {
		logger.Warn("strict quota locking requested but Redis is unavailable; relying on reconciliation")
	}

	routerCfg := api.RouterConfig{
		DB:             db,
		Redis:          redisClient,
		Logger:         logger,
		Identity:       identity.NewService(identity.NewLocalProvider(db), identity.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())),
		Sender:         sender,
		Locker:         locker,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimitReqs:  cfg.RateLimit.Requests,
		RateLimitSecs:  cfg.RateLimit.WindowSeconds,
		SecureCookies:  !cfg.Server.IsDevelopment(),
		SessionTTL:     cfg.JWT.Expiry(),
	}
	if cfg.Storage.Enabled() {
		objects, err := avatars.NewS3Store(ctx, cfg.Storage)
		if err != nil {
			logger.Error("failed to configure avatar storage", "error", err)
			os.Exit(1)
		}
		routerCfg.ObjectStore = objects
	}

	router := api.NewRouter(routerCfg)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", "error", err)
	}

	if redisClient != nil {
		redisClient.Close()
	}

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}
