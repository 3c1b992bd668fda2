package tasks

import (
	"github.com/hibiken/asynq"
	"github.com/hugh/go-roster/internal/notify"
	"github.com/hugh/go-roster/pkg/crypto"
)

// Task type names
const (
	TypeInviteEmail    = "email:invite"
	TypeRemovalEmail   = "email:removal"
	TypeQuotaReconcile = "quota:reconcile"
)

// Email payloads carry addresses, so they are sealed with the service's age
// key before they are written to Redis.

func NewInviteEmailTask(enc *crypto.Encryptor, msg notify.InviteMessage) (*asynq.Task, error) {
	data, err := enc.SealJSON(msg)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeInviteEmail, data), nil
}

func NewRemovalEmailTask(enc *crypto.Encryptor, msg notify.RemovalMessage) (*asynq.Task, error) {
	data, err := enc.SealJSON(msg)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRemovalEmail, data), nil
}

// QuotaReconcilePayload is empty - the job checks all organizations
type QuotaReconcilePayload struct{}

func NewQuotaReconcileTask() *asynq.Task {
	return asynq.NewTask(TypeQuotaReconcile, nil)
}
