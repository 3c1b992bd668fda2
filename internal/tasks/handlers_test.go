package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/go-roster/internal/database/models"
	"github.com/hugh/go-roster/internal/notify"
	"github.com/hugh/go-roster/internal/quota"
	"github.com/hugh/go-roster/internal/store"
	"github.com/hugh/go-roster/internal/testutil"
	"github.com/hugh/go-roster/pkg/crypto"
	"github.com/hugh/go-roster/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (c *captureEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{ID: uuid.NewString(), Type: task.Type(), Queue: queue.QueueNotifications}, nil
}

func newEncryptor(t *testing.T) *crypto.Encryptor {
	t.Helper()
	enc, err := crypto.NewEncryptor("")
	require.NoError(t, err)
	return enc
}

func TestQueueSender_RoundTrip(t *testing.T) {
	enc := newEncryptor(t)
	enqueuer := &captureEnqueuer{}
	sender := NewQueueSender(enqueuer, enc)
	mailer := &testutil.RecordingSender{}
	handler := NewHandler(testutil.TestLogger(), enc, mailer, nil)
	ctx := context.Background()

	invite := notify.InviteMessage{
		InviteID:         uuid.New(),
		Email:            "invitee@example.com",
		OrganizationName: "Acme",
		Role:             "member",
	}
	removal := notify.RemovalMessage{Email: "gone@example.com", OrganizationName: "Acme"}

	require.NoError(t, sender.SendInvite(ctx, invite))
	require.NoError(t, sender.SendRemoval(ctx, removal))
	require.Len(t, enqueuer.tasks, 2)
	assert.Equal(t, TypeInviteEmail, enqueuer.tasks[0].Type())
	assert.NotContains(t, string(enqueuer.tasks[0].Payload()), "invitee@example.com", "payload is sealed")

	require.NoError(t, handler.HandleInviteEmail(ctx, enqueuer.tasks[0]))
	require.NoError(t, handler.HandleRemovalEmail(ctx, enqueuer.tasks[1]))

	require.Len(t, mailer.Invites, 1)
	assert.Equal(t, invite, mailer.Invites[0])
	require.Len(t, mailer.Removals, 1)
	assert.Equal(t, removal, mailer.Removals[0])
}

func TestQueueSender_EnqueueFailure(t *testing.T) {
	sender := NewQueueSender(&captureEnqueuer{err: errors.New("redis down")}, newEncryptor(t))

	err := sender.SendInvite(context.Background(), notify.InviteMessage{Email: "x@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), TypeInviteEmail)
}

func TestHandleEmail_Failures(t *testing.T) {
	enc := newEncryptor(t)
	other := newEncryptor(t)

	sealedForOther, err := NewInviteEmailTask(other, notify.InviteMessage{Email: "x@example.com"})
	require.NoError(t, err)
	sealed, err := NewRemovalEmailTask(enc, notify.RemovalMessage{Email: "x@example.com"})
	require.NoError(t, err)

	tests := []struct {
		name      string
		run       func(h *Handler) error
		mailerErr error
		skipRetry bool
	}{
		{
			name: "garbage payload",
			run: func(h *Handler) error {
				return h.HandleInviteEmail(context.Background(), asynq.NewTask(TypeInviteEmail, []byte("junk")))
			},
			skipRetry: true,
		},
		{
			name:      "sealed for another key",
			run:       func(h *Handler) error { return h.HandleInviteEmail(context.Background(), sealedForOther) },
			skipRetry: true,
		},
		{
			name:      "mailer failure is retried",
			run:       func(h *Handler) error { return h.HandleRemovalEmail(context.Background(), sealed) },
			mailerErr: errors.New("smtp down"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(testutil.TestLogger(), enc, &testutil.RecordingSender{Err: tt.mailerErr}, nil)
			err := tt.run(h)
			require.Error(t, err)
			assert.Equal(t, tt.skipRetry, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestHandleQuotaReconcile(t *testing.T) {
	tc := testutil.NewTestContextWithTier(t, &models.Tier{Name: "small", MaxMembers: 2, MaxTeams: 5})
	st := store.New(tc.DB)
	logger := testutil.TestLogger()
	reconciler := quota.NewReconciler(st, quota.NewEvaluator(st, logger), logger)
	h := NewHandler(logger, newEncryptor(t), &testutil.RecordingSender{}, reconciler)

	assert.NoError(t, h.HandleQuotaReconcile(testutil.TestContext(t), NewQuotaReconcileTask()))
}

func TestRegisterHandlers(t *testing.T) {
	mux := asynq.NewServeMux()
	h := NewHandler(testutil.TestLogger(), newEncryptor(t), &testutil.RecordingSender{}, nil)
	h.RegisterHandlers(mux)

	for _, typ := range []string{TypeInviteEmail, TypeRemovalEmail, TypeQuotaReconcile} {
		_, pattern := mux.Handler(asynq.NewTask(typ, nil))
		assert.Equal(t, typ, pattern)
	}
}
