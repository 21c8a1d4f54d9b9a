package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogSender logs emails instead of sending them. Used in ENV=local.
type LogSender struct {
	logger *slog.Logger
}

func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	s.logger.InfoContext(ctx, "offboarding email (local dev)", "to", to, "subject", subject, "body_bytes", len(body))
	s.logger.DebugContext(ctx, "offboarding email body", "body", body)
	return nil
}

// ResendSender sends emails via the Resend API. Used in staging/production.
type ResendSender struct {
	client *resend.Client
	from   string
}

func (s *ResendSender) Send(ctx context.Context, to, subject, body string) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    body,
		Tags:    []resend.Tag{{Name: "category", Value: "offboarding"}},
	}
	if _, err := s.client.Emails.SendWithContext(ctx, params); err != nil {
		// Resend's message is what ends up in the step result.
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

// NewSender returns a LogSender for ENV=local, ResendSender otherwise.
func NewSender(env, apiKey, from string, logger *slog.Logger) Sender {
	if env == "local" {
		return &LogSender{logger: logger.With("component", "email")}
	}
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}
