package amqp

import (
	"context"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/dispatcher/internal/service/models/event"
	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultConfirmTimeout bounds the wait for a publisher confirm.
const DefaultConfirmTimeout = 5 * time.Second

// publisher publishes a message and waits for the broker confirm.
type publisher interface {
	PublishConfirmed(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) (bool, error)
}

// Sender delivers payloads by publishing them to an exchange, using the
// recipient address as the routing key.
type Sender struct {
	publisher      publisher
	exchange       string
	contentType    string
	confirmTimeout time.Duration
}

// NewSender creates a new Sender.
func NewSender(publisher publisher, exchange string, confirmTimeout time.Duration) *Sender {
	if confirmTimeout <= 0 {
		confirmTimeout = DefaultConfirmTimeout
	}

	return &Sender{
		publisher:      publisher,
		exchange:       exchange,
		contentType:    "application/octet-stream",
		confirmTimeout: confirmTimeout,
	}
}

// Send publishes the payload for one recipient. Any publish error, nack,
// unroutable message or confirm timeout is reported as Rejected.
func (s *Sender) Send(ctx context.Context, recipient event.Address, payload event.Payload) event.DeliveryResult {
	ctx, span := otel.Tracer("sender").Start(ctx, "Sender.Send")
	defer span.End()

	span.SetAttributes(attribute.String("recipient", string(recipient)))

	ctx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	acked, err := s.publisher.PublishConfirmed(ctx, s.exchange, string(recipient), amqp.Publishing{
		ContentType:  s.contentType,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	})
	if err != nil {
		slog.Error("Failed to publish delivery", "recipient", recipient, "error", err)

		return event.Rejected
	}
	if !acked {
		slog.Warn("Delivery not confirmed by broker", "recipient", recipient)

		return event.Rejected
	}

	return event.Accepted
}
