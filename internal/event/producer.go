package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pkgkafka "github.com/utafrali/bullseye/pkg/kafka"
	"github.com/utafrali/bullseye/pkg/logger"
)

// TopicEmailRequested carries rendered emails waiting for delivery.
var TopicEmailRequested = pkgkafka.Topic("auth", "email_requested")

// EventEmailRequested is the envelope event_type on TopicEmailRequested.
const EventEmailRequested = "auth.email_requested"

// SourceAuthService identifies events published by this service.
const SourceAuthService = "bullseye-auth"

// EmailRequestedData is the payload of an auth.email_requested event.
type EmailRequestedData struct {
	To          string    `json:"to"`
	Subject     string    `json:"subject"`
	HTML        string    `json:"html,omitempty"`
	Text        string    `json:"text,omitempty"`
	Template    string    `json:"template"`
	RequestedAt time.Time `json:"requested_at"`
}

// Publisher is implemented by *pkgkafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes auth events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

// PublishEmailRequested enqueues an email for the delivery worker. Events
// are keyed by recipient so mail to one address is delivered in order.
func (p *Producer) PublishEmailRequested(ctx context.Context, data EmailRequestedData) error {
	if data.RequestedAt.IsZero() {
		data.RequestedAt = time.Now().UTC()
	}

	ev, err := pkgkafka.NewEvent(EventEmailRequested, data.To, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", EventEmailRequested, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		ev.WithCorrelationID(id)
	}
	ev.WithMetadata("template", data.Template)

	if err := p.kafka.Publish(ctx, TopicEmailRequested, ev); err != nil {
		return fmt.Errorf("publish %s event: %w", EventEmailRequested, err)
	}

	p.logger.DebugContext(ctx, "published email request",
		slog.String("event_id", ev.EventID),
		slog.String("template", data.Template),
		slog.String("to", logger.MaskEmail(data.To)),
	)
	return nil
}
