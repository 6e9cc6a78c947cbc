package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/utafrali/bullseye/internal/event"
	"github.com/utafrali/bullseye/internal/mailer"
	pkgkafka "github.com/utafrali/bullseye/pkg/kafka"
	"github.com/utafrali/bullseye/pkg/logger"
)

// errMalformed marks payloads that can never be delivered.
var errMalformed = errors.New("malformed email request")

var emailsDelivered = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "emails_delivered_total",
		Help: "Email delivery attempts by template and result.",
	},
	[]string{"template", "result"},
)

func init() {
	prometheus.MustRegister(emailsDelivered)
}

// Worker delivers queued email requests.
type Worker struct {
	sender mailer.Sender
	logger *slog.Logger
}

func NewWorker(sender mailer.Sender, logger *slog.Logger) *Worker {
	return &Worker{sender: sender, logger: logger}
}

// Handle is a pkgkafka.Handler for TopicEmailRequested.
func (w *Worker) Handle(ctx context.Context, ev *pkgkafka.Event) error {
	if ev.EventType != event.EventEmailRequested {
		w.logger.DebugContext(ctx, "ignoring event", slog.String("event_type", ev.EventType))
		return nil
	}

	var data event.EmailRequestedData
	if err := ev.UnmarshalData(&data); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if data.To == "" {
		return fmt.Errorf("%w: missing recipient", errMalformed)
	}

	if ev.CorrelationID != "" {
		ctx = logger.WithCorrelationID(ctx, ev.CorrelationID)
	}

	id, err := w.sender.Send(ctx, mailer.Message{
		To:      data.To,
		Subject: data.Subject,
		HTML:    data.HTML,
		Text:    data.Text,
	})
	if err != nil {
		emailsDelivered.WithLabelValues(data.Template, "failed").Inc()
		return err
	}

	emailsDelivered.WithLabelValues(data.Template, "sent").Inc()
	w.logger.InfoContext(ctx, "queued email delivered",
		slog.String("event_id", ev.EventID),
		slog.String("message_id", id),
		slog.String("template", data.Template),
		slog.Duration("queue_latency", time.Since(data.RequestedAt)),
	)
	return nil
}

// ConsumerOptions wires a Worker to Kafka.
type ConsumerOptions struct {
	Brokers     []string
	GroupID     string
	MaxRetries  int
	RetryWait   time.Duration
	Idempotency pkgkafka.IdempotencyStore
	DeadLetter  pkgkafka.DeadLetterPublisher
}

// NewConsumer builds the email-request consumer: dedup by event id, retry,
// then dead-letter.
func (w *Worker) NewConsumer(opts ConsumerOptions) *pkgkafka.Consumer {
	return w.consumer(nil, opts)
}

func (w *Worker) consumer(reader pkgkafka.MessageReader, opts ConsumerOptions) *pkgkafka.Consumer {
	var handler pkgkafka.Handler = w.Handle
	if opts.Idempotency != nil {
		handler = pkgkafka.IdempotentHandler(opts.Idempotency, handler, w.logger)
	}
	cfg := pkgkafka.ConsumerConfig{
		Brokers:    opts.Brokers,
		GroupID:    opts.GroupID,
		Topic:      event.TopicEmailRequested,
		MinBytes:   1,
		MaxBytes:   10e6,
		MaxRetries: opts.MaxRetries,
		RetryWait:  opts.RetryWait,
	}

	var c *pkgkafka.Consumer
	if reader != nil {
		c = pkgkafka.NewConsumerWithReader(reader, cfg, handler, w.logger)
	} else {
		c = pkgkafka.NewConsumer(cfg, handler, w.logger)
	}
	if opts.DeadLetter != nil {
		c.WithDeadLetter(opts.DeadLetter)
	}
	return c
}
