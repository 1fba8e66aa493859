package client

import (
	"context"

	"github.com/corray333/backend-labs/dispatcher/internal/service/models/event"
)

type eventSource interface {
	ReadEvent(ctx context.Context) (event.Event, error)
}

type sender interface {
	Send(ctx context.Context, recipient event.Address, payload event.Payload) event.DeliveryResult
}

// Client pairs an event source with a delivery sink.
type Client struct {
	source eventSource
	sender sender
}

// NewClient creates a new Client.
func NewClient(source eventSource, sender sender) *Client {
	return &Client{
		source: source,
		sender: sender,
	}
}

// ReadEvent pulls the next event from the source.
func (c *Client) ReadEvent(ctx context.Context) (event.Event, error) {
	return c.source.ReadEvent(ctx)
}

// Send delivers a payload to one recipient.
func (c *Client) Send(ctx context.Context, recipient event.Address, payload event.Payload) event.DeliveryResult {
	return c.sender.Send(ctx, recipient, payload)
}
