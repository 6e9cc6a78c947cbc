package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"

	mail "github.com/go-mail/mail"
	"github.com/google/uuid"

	"github.com/utafrali/bullseye/pkg/logger"
)

// SMTPConfig holds outbound SMTP settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	// TLSMode is "starttls" (default), "ssl" or "none".
	TLSMode            string
	InsecureSkipVerify bool
}

type dialer interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTPSender sends multipart (text + html) mail through an SMTP relay.
type SMTPSender struct {
	from   string
	domain string
	dialer dialer
	logger *slog.Logger
}

func NewSMTPSender(cfg SMTPConfig, l *slog.Logger) *SMTPSender {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, InsecureSkipVerify: cfg.InsecureSkipVerify} // #nosec G402 -- opt-in for local relays
	if cfg.TLSMode == "ssl" {
		d.SSL = true
	}
	return newSMTPSender(cfg.From, d, l)
}

func newSMTPSender(from string, d dialer, l *slog.Logger) *SMTPSender {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 {
		domain = strings.TrimRight(from[at+1:], "> ")
	}
	return &SMTPSender{from: from, domain: domain, dialer: d, logger: l}
}

// Send delivers msg. The returned id is the Message-ID header set on it.
func (s *SMTPSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.domain)

	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", id)

	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.Text != "":
		m.SetBody("text/plain", msg.Text)
	default:
		m.SetBody("text/html", msg.HTML)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		s.logger.ErrorContext(ctx, "smtp send failed",
			slog.String("to", logger.MaskEmail(msg.To)),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("smtp send: %w", err)
	}

	s.logger.InfoContext(ctx, "email sent",
		slog.String("to", logger.MaskEmail(msg.To)),
		slog.String("message_id", id),
	)
	return id, nil
}
