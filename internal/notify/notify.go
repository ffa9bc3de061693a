// Package notify sends the three shard lifecycle emails through Mailgun.
// Nightly runs never email; succeeded emails are deduplicated so callback
// retries cannot double-send.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mailgun/mailgun-go/v4"
)

// Kind selects the email template.
type Kind string

const (
	KindSubmitted Kind = "submitted"
	KindSucceeded Kind = "succeeded"
	KindFailed    Kind = "failed"
)

var subjects = map[Kind]string{
	KindSubmitted: "Your prompt tracking job was submitted",
	KindSucceeded: "Your prompt tracking results are ready",
	KindFailed:    "Your prompt tracking job failed",
}

// Notifier sends one email of the given kind.
type Notifier interface {
	Send(ctx context.Context, kind Kind, to string, vars map[string]string) error
}

// Config selects the Mailgun domain and per-kind templates.
type Config struct {
	APIKey    string
	Domain    string
	Sender    string
	Templates map[Kind]string
}

// MailgunNotifier implements Notifier on the Mailgun API.
type MailgunNotifier struct {
	mg        mailgun.Mailgun
	sender    string
	templates map[Kind]string
	logger    *slog.Logger
}

func NewMailgunNotifier(cfg Config, logger *slog.Logger) *MailgunNotifier {
	return &MailgunNotifier{
		mg:        mailgun.NewMailgun(cfg.Domain, cfg.APIKey),
		sender:    cfg.Sender,
		templates: cfg.Templates,
		logger:    logger,
	}
}

func (n *MailgunNotifier) Send(ctx context.Context, kind Kind, to string, vars map[string]string) error {
	subject, ok := subjects[kind]
	if !ok {
		return fmt.Errorf("unknown notification kind %q", kind)
	}
	template, ok := n.templates[kind]
	if !ok || template == "" {
		return fmt.Errorf("no template configured for %q", kind)
	}

	msg := n.mg.NewMessage(n.sender, subject, "", to)
	msg.SetTemplate(template)
	for k, v := range vars {
		if err := msg.AddTemplateVariable(k, v); err != nil {
			return fmt.Errorf("set template variable %s: %w", k, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	_, id, err := n.mg.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("send %s email: %w", kind, err)
	}
	n.logger.Info("notification sent", "kind", kind, "to", to, "message_id", id)
	return nil
}

var _ Notifier = (*MailgunNotifier)(nil)
