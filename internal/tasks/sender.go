package tasks

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/hugh/go-roster/internal/notify"
	"github.com/hugh/go-roster/pkg/crypto"
	"github.com/hugh/go-roster/pkg/queue"
)

// Enqueuer is the part of *asynq.Client the sender needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueSender hands notifications to the worker instead of sending them
// inline, so a slow mail relay never holds up a request.
type QueueSender struct {
	client Enqueuer
	enc    *crypto.Encryptor
}

func NewQueueSender(client Enqueuer, enc *crypto.Encryptor) *QueueSender {
	return &QueueSender{client: client, enc: enc}
}

var _ notify.Sender = (*QueueSender)(nil)

func (s *QueueSender) SendInvite(ctx context.Context, msg notify.InviteMessage) error {
	task, err := NewInviteEmailTask(s.enc, msg)
	if err != nil {
		return fmt.Errorf("building invite email task: %w", err)
	}
	return s.enqueue(ctx, task)
}

func (s *QueueSender) SendRemoval(ctx context.Context, msg notify.RemovalMessage) error {
	task, err := NewRemovalEmailTask(s.enc, msg)
	if err != nil {
		return fmt.Errorf("building removal email task: %w", err)
	}
	return s.enqueue(ctx, task)
}

func (s *QueueSender) enqueue(ctx context.Context, task *asynq.Task) error {
	_, err := s.client.EnqueueContext(ctx, task,
		asynq.Queue(queue.QueueNotifications),
		asynq.MaxRetry(5),
	)
	if err != nil {
		return fmt.Errorf("enqueueing %s: %w", task.Type(), err)
	}
	return nil
}
