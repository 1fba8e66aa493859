package amqp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/corray333/backend-labs/dispatcher/internal/service/models/event"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
)

type fakePublisher struct {
	acked bool
	err   error
	block bool

	exchange   string
	routingKey string
	msg        amqp.Publishing
}

func (p *fakePublisher) PublishConfirmed(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) (bool, error) {
	p.exchange, p.routingKey, p.msg = exchange, routingKey, msg
	if p.block {
		<-ctx.Done()
		return false, ctx.Err()
	}

	return p.acked, p.err
}

func TestSenderSend(t *testing.T) {
	testCases := []struct {
		desc      string
		publisher *fakePublisher
		expected  event.DeliveryResult
	}{
		{desc: "acked", publisher: &fakePublisher{acked: true}, expected: event.Accepted},
		{desc: "nacked", publisher: &fakePublisher{acked: false}, expected: event.Rejected},
		{desc: "publish error", publisher: &fakePublisher{err: errors.New("channel closed")}, expected: event.Rejected},
		{desc: "confirm timeout", publisher: &fakePublisher{block: true}, expected: event.Rejected},
	}

	for _, test := range testCases {
		t.Run(test.desc, func(t *testing.T) {
			s := NewSender(test.publisher, "deliveries", 10*time.Millisecond)

			got := s.Send(context.Background(), "user-42", event.Payload("hello"))

			assert.Equal(t, test.expected, got)
			assert.Equal(t, "deliveries", test.publisher.exchange)
			assert.Equal(t, "user-42", test.publisher.routingKey)
			assert.Equal(t, []byte("hello"), test.publisher.msg.Body)
		})
	}
}
