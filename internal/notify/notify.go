// Package notify delivers invite and removal emails. Delivery is best-effort:
// callers log a failed send and carry on.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type InviteMessage struct {
	InviteID         uuid.UUID `json:"invite_id"`
	Email            string    `json:"email"`
	OrganizationName string    `json:"organization_name"`
	Role             string    `json:"role"`
	TeamName         string    `json:"team_name,omitempty"`
	InviterName      string    `json:"inviter_name,omitempty"`
}

type RemovalMessage struct {
	Email            string `json:"email"`
	DisplayName      string `json:"display_name"`
	OrganizationName string `json:"organization_name"`
}

type Sender interface {
	SendInvite(ctx context.Context, msg InviteMessage) error
	SendRemoval(ctx context.Context, msg RemovalMessage) error
}

// LogSender writes notifications to the log instead of sending them.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendInvite(ctx context.Context, msg InviteMessage) error {
	s.logger.Info("invite email",
		"invite_id", msg.InviteID,
		"email", msg.Email,
		"organization", msg.OrganizationName,
		"role", msg.Role,
	)
	return nil
}

func (s *LogSender) SendRemoval(ctx context.Context, msg RemovalMessage) error {
	s.logger.Info("removal email",
		"email", msg.Email,
		"organization", msg.OrganizationName,
	)
	return nil
}

var (
	_ Sender = (*LogSender)(nil)
	_ Sender = (*SMTPMailer)(nil)
)
