package amqp

import (
	"context"
	"io"
	"log/slog"
	"strconv"

	"github.com/corray333/backend-labs/dispatcher/internal/rabbitmq"
	"github.com/corray333/backend-labs/dispatcher/internal/service/models/event"
	"github.com/corray333/backend-labs/dispatcher/internal/transport/source"
	"github.com/spf13/viper"
	"github.com/streadway/amqp"
)

// Source reads events from a RabbitMQ queue.
type Source struct {
	deliveries <-chan amqp.Delivery
}

// NewSource creates a Source over an existing delivery channel.
func NewSource(deliveries <-chan amqp.Delivery) *Source {
	return &Source{deliveries: deliveries}
}

// MustNewSource declares the configured queue and starts consuming it.
func MustNewSource(client *rabbitmq.Client) *Source {
	queueName := viper.GetString("rabbitmq.queue")
	if queueName == "" {
		panic("rabbitmq.queue is not set in config")
	}

	queue, err := client.DeclareQueue(rabbitmq.DeclareQueueConfig{
		Name:    queueName,
		Durable: true,
	})
	if err != nil {
		panic(err)
	}

	consumerTag := viper.GetString("rabbitmq.consumer_tag")
	if consumerTag == "" {
		consumerTag = "dispatcher"
	}

	deliveries, err := client.Consume(rabbitmq.ConsumeConfig{
		Queue:    queue.Name,
		Consumer: consumerTag,
		Prefetch: viper.GetInt("rabbitmq.prefetch"),
	})
	if err != nil {
		panic(err)
	}

	slog.Info("AMQP event source started", "queue", queue.Name, "consumer_tag", consumerTag)

	return NewSource(deliveries)
}

// ReadEvent blocks until the next well-formed event arrives.
// Malformed messages are rejected without requeue and skipped.
// It returns io.EOF once the delivery channel is closed.
func (s *Source) ReadEvent(ctx context.Context) (event.Event, error) {
	for {
		select {
		case <-ctx.Done():
			return event.Event{}, ctx.Err()
		case d, ok := <-s.deliveries:
			if !ok {
				return event.Event{}, io.EOF
			}

			fallbackID := d.MessageId
			if fallbackID == "" {
				fallbackID = strconv.FormatUint(d.DeliveryTag, 10)
			}

			ev, err := source.Decode(d.Body, fallbackID)
			if err != nil {
				slog.Error("Failed to decode event", "error", err, "delivery_tag", d.DeliveryTag)
				if err := d.Nack(false, false); err != nil {
					slog.Error("Failed to nack message", "error", err)
				}

				continue
			}

			if err := d.Ack(false); err != nil {
				slog.Error("Failed to ack message", "error", err, "delivery_tag", d.DeliveryTag)
			}

			return ev, nil
		}
	}
}
