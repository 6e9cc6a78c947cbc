package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/bullseye/internal/domain"
	"github.com/utafrali/bullseye/internal/event"
	"github.com/utafrali/bullseye/internal/mailer"
)

// Dispatcher delivers OTP codes to users.
type Dispatcher interface {
	SendOTP(ctx context.Context, email, username, code string, typ domain.OTPType) error
}

// EmailPublisher is implemented by *event.Producer.
type EmailPublisher interface {
	PublishEmailRequested(ctx context.Context, data event.EmailRequestedData) error
}

// QueueDispatcher renders the email in the request and hands it to the
// delivery worker through Kafka. A nil error means the email was queued.
type QueueDispatcher struct {
	renderer  *Renderer
	publisher EmailPublisher
}

func NewQueueDispatcher(r *Renderer, p EmailPublisher) *QueueDispatcher {
	return &QueueDispatcher{renderer: r, publisher: p}
}

func (d *QueueDispatcher) SendOTP(ctx context.Context, email, username, code string, typ domain.OTPType) error {
	msg, err := d.renderer.RenderOTP(typ, email, username, code)
	if err != nil {
		return err
	}
	return d.publisher.PublishEmailRequested(ctx, event.EmailRequestedData{
		To:       msg.To,
		Subject:  msg.Subject,
		HTML:     msg.HTML,
		Text:     msg.Text,
		Template: string(typ),
	})
}

// DirectDispatcher sends synchronously. Used when no broker is configured.
type DirectDispatcher struct {
	renderer *Renderer
	sender   mailer.Sender
	logger   *slog.Logger
}

func NewDirectDispatcher(r *Renderer, s mailer.Sender, logger *slog.Logger) *DirectDispatcher {
	return &DirectDispatcher{renderer: r, sender: s, logger: logger}
}

func (d *DirectDispatcher) SendOTP(ctx context.Context, email, username, code string, typ domain.OTPType) error {
	msg, err := d.renderer.RenderOTP(typ, email, username, code)
	if err != nil {
		return err
	}
	id, err := d.sender.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("send %s email: %w", typ, err)
	}
	d.logger.DebugContext(ctx, "otp email sent", slog.String("message_id", id), slog.String("template", string(typ)))
	return nil
}
