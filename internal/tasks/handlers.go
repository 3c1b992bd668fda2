package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/hugh/go-roster/internal/notify"
	"github.com/hugh/go-roster/internal/quota"
	"github.com/hugh/go-roster/pkg/crypto"
)

type Handler struct {
	logger     *slog.Logger
	enc        *crypto.Encryptor
	mailer     notify.Sender
	reconciler *quota.Reconciler
}

func NewHandler(logger *slog.Logger, enc *crypto.Encryptor, mailer notify.Sender, reconciler *quota.Reconciler) *Handler {
	return &Handler{
		logger:     logger,
		enc:        enc,
		mailer:     mailer,
		reconciler: reconciler,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeInviteEmail, h.HandleInviteEmail)
	mux.HandleFunc(TypeRemovalEmail, h.HandleRemovalEmail)
	mux.HandleFunc(TypeQuotaReconcile, h.HandleQuotaReconcile)
}

func (h *Handler) HandleInviteEmail(ctx context.Context, t *asynq.Task) error {
	var msg notify.InviteMessage
	if err := h.enc.OpenJSON(t.Payload(), &msg); err != nil {
		// A payload sealed for another key will never open; retrying is pointless.
		return fmt.Errorf("open payload: %v: %w", err, asynq.SkipRetry)
	}

	h.logger.Info("delivering invite email", "invite_id", msg.InviteID)
	if err := h.mailer.SendInvite(ctx, msg); err != nil {
		return fmt.Errorf("send invite email: %w", err)
	}
	return nil
}

func (h *Handler) HandleRemovalEmail(ctx context.Context, t *asynq.Task) error {
	var msg notify.RemovalMessage
	if err := h.enc.OpenJSON(t.Payload(), &msg); err != nil {
		return fmt.Errorf("open payload: %v: %w", err, asynq.SkipRetry)
	}

	h.logger.Info("delivering removal email", "organization", msg.OrganizationName)
	if err := h.mailer.SendRemoval(ctx, msg); err != nil {
		return fmt.Errorf("send removal email: %w", err)
	}
	return nil
}

func (h *Handler) HandleQuotaReconcile(ctx context.Context, t *asynq.Task) error {
	report, err := h.reconciler.Run(ctx)
	if err != nil {
		return fmt.Errorf("reconcile quotas: %w", err)
	}
	h.logger.Info("quota reconciliation finished",
		"organizations", report.Checked,
		"over_quota", len(report.OverQuota),
	)
	return nil
}
