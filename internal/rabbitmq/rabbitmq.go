package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/streadway/amqp"
)

// Client represents a RabbitMQ client.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel

	// publishMu serializes publishes so confirms arrive in publish order.
	publishMu sync.Mutex
	published uint64
	confirms  chan amqp.Confirmation
	returns   chan amqp.Return
}

// Channel returns the underlying AMQP channel.
func (r *Client) Channel() *amqp.Channel {
	return r.channel
}

// Connection returns the underlying AMQP connection.
func (r *Client) Connection() *amqp.Connection {
	return r.conn
}

// Close closes the channel and connection for graceful shutdown.
func (r *Client) Close() error {
	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			return err
		}
	}
	if r.conn != nil {
		return r.conn.Close()
	}

	return nil
}

// MustNewClient creates a new RabbitMQ client.
func MustNewClient() *Client {
	host := viper.GetString("rabbitmq.host")
	port := viper.GetInt("rabbitmq.port")
	user := viper.GetString("rabbitmq.user")
	password := viper.GetString("rabbitmq.password")

	if host == "" {
		host = "rabbitmq"
	}
	if port == 0 {
		port = 5672
	}

	connStr := fmt.Sprintf(
		"amqp://%s:%s@%s:%d/",
		user,
		password,
		host,
		port,
	)

	conn, err := amqp.Dial(connStr)
	if err != nil {
		panic(fmt.Sprintf("Failed to connect to RabbitMQ: %v", err))
	}

	channel, err := conn.Channel()
	if err != nil {
		err := conn.Close()
		if err != nil {
			panic(fmt.Sprintf("Failed to close a connection: %v", err))
		}
		panic(fmt.Sprintf("Failed to open a channel: %v", err))
	}

	slog.Info("RabbitMQ connected", "host", host, "port", port)

	return &Client{
		conn:    conn,
		channel: channel,
	}
}

type DeclareQueueConfig struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	NoWait     bool
	Args       amqp.Table
}

// DeclareQueue declares a queue with the given configuration.
func (r *Client) DeclareQueue(cfg DeclareQueueConfig) (amqp.Queue, error) {
	return r.channel.QueueDeclare(
		cfg.Name,
		cfg.Durable,
		cfg.AutoDelete,
		cfg.Exclusive,
		cfg.NoWait,
		cfg.Args,
	)
}

type DeclareExchangeConfig struct {
	Name    string
	Kind    string
	Durable bool
	NoWait  bool
	Args    amqp.Table
}

// DeclareExchange declares an exchange with the given configuration.
func (r *Client) DeclareExchange(cfg DeclareExchangeConfig) error {
	kind := cfg.Kind
	if kind == "" {
		kind = amqp.ExchangeDirect
	}

	return r.channel.ExchangeDeclare(
		cfg.Name,
		kind,
		cfg.Durable,
		false,
		false,
		cfg.NoWait,
		cfg.Args,
	)
}

type ConsumeConfig struct {
	Queue     string
	Consumer  string
	AutoAck   bool
	Exclusive bool
	NoLocal   bool
	NoWait    bool
	Prefetch  int
	Args      amqp.Table
}

// Consume starts consuming messages from the queue.
func (r *Client) Consume(cfg ConsumeConfig) (<-chan amqp.Delivery, error) {
	if cfg.Prefetch > 0 {
		if err := r.channel.Qos(cfg.Prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("failed to set prefetch: %w", err)
		}
	}

	return r.channel.Consume(
		cfg.Queue,
		cfg.Consumer,
		cfg.AutoAck,
		cfg.Exclusive,
		cfg.NoLocal,
		cfg.NoWait,
		cfg.Args,
	)
}

// EnableConfirms puts the channel into publisher confirm mode.
func (r *Client) EnableConfirms() error {
	if err := r.channel.Confirm(false); err != nil {
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	r.confirms = r.channel.NotifyPublish(make(chan amqp.Confirmation, 64))
	r.returns = r.channel.NotifyReturn(make(chan amqp.Return, 64))

	return nil
}

// PublishConfirmed publishes a mandatory message and waits for the broker to
// confirm it. It returns false if the broker nacked the message or could not
// route it. EnableConfirms must be called first.
// An empty MessageId is filled in, it is used to match returns to the publish.
func (r *Client) PublishConfirmed(
	ctx context.Context,
	exchange, routingKey string,
	msg amqp.Publishing,
) (bool, error) {
	if r.confirms == nil {
		return false, errors.New("publisher confirms are not enabled")
	}

	if msg.MessageId == "" {
		msg.MessageId = uuid.NewString()
	}

	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	if err := r.channel.Publish(exchange, routingKey, true, false, msg); err != nil {
		return false, fmt.Errorf("failed to publish message: %w", err)
	}
	r.published++

	return awaitConfirm(ctx, r.published, msg.MessageId, r.confirms, r.returns)
}

// awaitConfirm waits for the confirm with the given delivery tag. Confirms
// and returns left over from earlier publishes that timed out are skipped.
func awaitConfirm(
	ctx context.Context,
	tag uint64,
	messageID string,
	confirms <-chan amqp.Confirmation,
	returns <-chan amqp.Return,
) (bool, error) {
	returned := false
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case ret := <-returns:
			if ret.MessageId == messageID {
				returned = true
			}
		case conf, ok := <-confirms:
			if !ok {
				return false, errors.New("confirm channel closed")
			}
			if conf.DeliveryTag < tag {
				continue
			}

			// The broker sends a return before the ack of the same message,
			// but the two channels are read independently.
			for pending := true; pending; {
				select {
				case ret := <-returns:
					if ret.MessageId == messageID {
						returned = true
					}
				default:
					pending = false
				}
			}

			return conf.Ack && !returned, nil
		}
	}
}
