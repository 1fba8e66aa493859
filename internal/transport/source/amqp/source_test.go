package amqp

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/corray333/backend-labs/dispatcher/internal/service/models/event"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAcknowledger struct {
	acked  []uint64
	nacked []uint64
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, _ bool) error {
	a.nacked = append(a.nacked, tag)
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, _ bool) error {
	a.nacked = append(a.nacked, tag)
	return nil
}

func TestReadEventSkipsMalformed(t *testing.T) {
	ack := &fakeAcknowledger{}
	deliveries := make(chan amqp.Delivery, 3)
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte("garbage")}
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte(`{"recipients":["a"],"payload":"x"}`)}
	close(deliveries)

	s := NewSource(deliveries)

	ev, err := s.ReadEvent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2", ev.ID)
	assert.Equal(t, []event.Address{"a"}, ev.Recipients)
	assert.Equal(t, []uint64{1}, ack.nacked)
	assert.Equal(t, []uint64{2}, ack.acked)

	_, err = s.ReadEvent(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadEventUsesMessageID(t *testing.T) {
	deliveries := make(chan amqp.Delivery, 1)
	deliveries <- amqp.Delivery{
		Acknowledger: &fakeAcknowledger{},
		MessageId:    "msg-9",
		Body:         []byte(`{"recipients":["a"],"payload":1}`),
	}

	ev, err := NewSource(deliveries).ReadEvent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "msg-9", ev.ID)
}

func TestReadEventHonorsContext(t *testing.T) {
	s := NewSource(make(chan amqp.Delivery))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.ReadEvent(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
