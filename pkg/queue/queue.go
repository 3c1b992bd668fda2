package queue

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/hugh/go-roster/pkg/config"
)

// Queue names. Notifications are user-facing and go first; reconciliation is
// housekeeping.
const (
	QueueNotifications = "notifications"
	QueueDefault       = "default"
	QueueMaintenance   = "maintenance"
)

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
	}
}

func NewClient(cfg *config.RedisConfig) *asynq.Client {
	return asynq.NewClient(redisOpt(cfg))
}

func NewServer(cfg *config.RedisConfig, concurrency int, logger *slog.Logger) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 10
	}

	return asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueueNotifications: 6,
				QueueDefault:       3,
				QueueMaintenance:   1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)
}

// NewScheduler returns a scheduler for periodic tasks such as quota reconciliation.
func NewScheduler(cfg *config.RedisConfig) *asynq.Scheduler {
	return asynq.NewScheduler(redisOpt(cfg), &asynq.SchedulerOpts{})
}
