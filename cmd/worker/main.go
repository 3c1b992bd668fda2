package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/go-roster/internal/database"
	"github.com/hugh/go-roster/internal/notify"
	"github.com/hugh/go-roster/internal/quota"
	"github.com/hugh/go-roster/internal/store"
	"github.com/hugh/go-roster/internal/tasks"
	"github.com/hugh/go-roster/pkg/config"
	"github.com/hugh/go-roster/pkg/crypto"
	"github.com/hugh/go-roster/pkg/queue"
	"github.com/hugh/go-roster/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env, "worker")
	slog.SetDefault(logger)

	logger.Info("starting roster worker")

	if err := util.ValidateCronExpr(cfg.Quota.ReconcileCron); err != nil {
		logger.Error("invalid QUOTA_RECONCILE_CRON", "cron", cfg.Quota.ReconcileCron, "error", err)
		os.Exit(1)
	}
	if cfg.Encryption.Key == "" {
		logger.Error("ENCRYPTION_KEY is required to open queued emails")
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

	var mailer notify.Sender = notify.NewLogSender(logger)
	if cfg.Email.Enabled() {
		mailer = notify.NewSMTPMailer(cfg.Email)
	} else {
		logger.Warn("SMTP_HOST not set, emails will only be logged")
	}

	st := store.New(db)
	reconciler := quota.NewReconciler(st, quota.NewEvaluator(st, logger), logger)
	handler := tasks.NewHandler(logger, encryptor, mailer, reconciler)

	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	srv := queue.NewServer(&cfg.Redis, 10, logger)

	scheduler := queue.NewScheduler(&cfg.Redis)
	entryID, err := scheduler.Register(cfg.Quota.ReconcileCron, tasks.NewQuotaReconcileTask(), asynq.Queue(queue.QueueMaintenance))
	if err != nil {
		logger.Error("failed to schedule quota reconciliation", "error", err)
		os.Exit(1)
	}
	next, _ := util.NextCronTime(cfg.Quota.ReconcileCron, time.Now())
	logger.Info("quota reconciliation scheduled", "cron", cfg.Quota.ReconcileCron, "entry_id", entryID, "next_run", next)

	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		scheduler.Shutdown()
		srv.Shutdown()
		cancel()
	}()

	logger.Info("worker started, waiting for tasks...")

	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
	}

	<-ctx.Done()

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}
