package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/hugh/funnel-builder/pkg/config"
)

const senderName = "Funnel Builder"

// Message is a multipart mail with a plain text body and an HTML
// alternative.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NewMailer returns an SMTP mailer, or a mailer that only logs when no SMTP
// host is configured.
func NewMailer(cfg config.SMTPConfig, logger *slog.Logger) Mailer {
	if !cfg.Enabled() {
		logger.Warn("SMTP not configured, outgoing mail will only be logged")
		return &LogMailer{logger: logger}
	}
	return &SMTPMailer{cfg: cfg, logger: logger}
}

// SMTPMailer dials once per message.
type SMTPMailer struct {
	cfg    config.SMTPConfig
	logger *slog.Logger
}

func (s *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("send mail: no recipient")
	}

	m := mail.NewMsg()
	if err := m.FromFormat(senderName, s.cfg.From); err != nil {
		return fmt.Errorf("send mail: set from: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("send mail: set to: %w", err)
	}
	m.Subject(sanitizeHeader(msg.Subject))
	m.SetBodyString(mail.TypeTextPlain, msg.TextBody)
	if msg.HTMLBody != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTMLBody)
	}

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}

	c, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("send mail: create client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	s.logger.Debug("mail sent", "to", msg.To, "subject", msg.Subject)
	return nil
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	logger *slog.Logger
}

func (l *LogMailer) Send(_ context.Context, msg Message) error {
	l.logger.Info("mail not sent (SMTP disabled)", "to", msg.To, "subject", msg.Subject, "body", msg.TextBody)
	return nil
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
