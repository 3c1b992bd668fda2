package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"

	"github.com/hugh/go-roster/pkg/config"
)

var (
	inviteTemplate = template.Must(template.New("invite").Parse(
		`You have been invited to join {{.Msg.OrganizationName}} as {{.Msg.Role}}{{if .Msg.TeamName}} in team {{.Msg.TeamName}}{{end}}.

Accept the invitation: {{.URL}}
`))

	removalTemplate = template.Must(template.New("removal").Parse(
		`Hello {{.DisplayName}},

Your account in {{.OrganizationName}} has been removed.
`))
)

// SMTPMailer sends plain-text mail through an SMTP relay.
type SMTPMailer struct {
	cfg  config.EmailConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg config.EmailConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

// AcceptURL is the link the invitee follows to sign up.
func (m *SMTPMailer) AcceptURL(msg InviteMessage) string {
	return strings.TrimRight(m.cfg.AppBaseURL, "/") + "/invites/" + msg.InviteID.String()
}

func (m *SMTPMailer) SendInvite(ctx context.Context, msg InviteMessage) error {
	var body bytes.Buffer
	err := inviteTemplate.Execute(&body, struct {
		Msg InviteMessage
		URL string
	}{msg, m.AcceptURL(msg)})
	if err != nil {
		return fmt.Errorf("rendering invite email: %w", err)
	}
	subject := fmt.Sprintf("You're invited to %s", msg.OrganizationName)
	return m.deliver(ctx, msg.Email, subject, body.String())
}

func (m *SMTPMailer) SendRemoval(ctx context.Context, msg RemovalMessage) error {
	var body bytes.Buffer
	if err := removalTemplate.Execute(&body, msg); err != nil {
		return fmt.Errorf("rendering removal email: %w", err)
	}
	subject := fmt.Sprintf("Your %s account was removed", msg.OrganizationName)
	return m.deliver(ctx, msg.Email, subject, body.String())
}

func (m *SMTPMailer) deliver(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	from := m.cfg.FromAddress
	header := fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n",
		m.cfg.FromName, from, to, subject)

	var auth smtp.Auth
	if m.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", m.cfg.SMTPUser, m.cfg.SMTPPass, m.cfg.SMTPHost)
	}
	if err := m.send(m.cfg.Addr(), auth, from, []string{to}, []byte(header+body)); err != nil {
		return fmt.Errorf("sending mail to %s: %w", to, err)
	}
	return nil
}
