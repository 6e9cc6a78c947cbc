package mailer

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/utafrali/bullseye/pkg/logger"
)

// LogSender writes messages to the log instead of delivering them. Used in
// development so OTP codes can be read from the console.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(l *slog.Logger) *LogSender {
	return &LogSender{logger: l}
}

func (s *LogSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.validate(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	s.logger.InfoContext(ctx, "email captured",
		slog.String("message_id", id),
		slog.String("to", logger.MaskEmail(msg.To)),
		slog.String("subject", msg.Subject),
		slog.String("text", msg.Text),
	)
	return id, nil
}
