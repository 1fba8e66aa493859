package dispatchsvc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/dispatcher/internal/service/models/event"
	"github.com/corray333/backend-labs/dispatcher/internal/service/models/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultRetryInterval is the delay before a rejected delivery becomes due.
const DefaultRetryInterval = 500 * time.Millisecond

// client is the upstream source together with the delivery sink.
type client interface {
	// ReadEvent blocks until an event is available. It returns io.EOF once the
	// source is exhausted.
	ReadEvent(ctx context.Context) (event.Event, error)
	Send(ctx context.Context, recipient event.Address, payload event.Payload) event.DeliveryResult
}

// retryBacklog is the retry backlog as seen by the dispatcher.
type retryBacklog interface {
	Push(entry retry.Entry)
	Accepting() bool
	Reopened() <-chan struct{}
}

// StopReason tells why Dispatch returned without an error.
type StopReason int

const (
	// GateClosed means the backlog stopped admitting new events.
	GateClosed StopReason = iota + 1
	// SourceExhausted means the upstream source has no more events.
	SourceExhausted
)

func (r StopReason) String() string {
	switch r {
	case GateClosed:
		return "gate_closed"
	case SourceExhausted:
		return "source_exhausted"
	default:
		return "unknown"
	}
}

// DispatchService pulls events and fans them out to their recipients.
type DispatchService struct {
	client        client
	backlog       retryBacklog
	retryInterval time.Duration
	now           func() time.Time
}

// option is a function that configures the DispatchService.
type option func(*DispatchService)

// MustNewDispatchService creates a new DispatchService.
func MustNewDispatchService(opts ...option) *DispatchService {
	s := &DispatchService{
		retryInterval: DefaultRetryInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		panic("dispatch service: client is not set")
	}
	if s.backlog == nil {
		panic("dispatch service: backlog is not set")
	}

	return s
}

// WithClient sets the event source and delivery sink.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithClient(c client) option {
	return func(s *DispatchService) {
		s.client = c
	}
}

// WithBacklog sets the retry backlog.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithBacklog(b retryBacklog) option {
	return func(s *DispatchService) {
		s.backlog = b
	}
}

// WithRetryInterval sets the delay before a rejected delivery is due.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithRetryInterval(d time.Duration) option {
	return func(s *DispatchService) {
		if d > 0 {
			s.retryInterval = d
		}
	}
}

// WithClock overrides the time source.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithClock(now func() time.Time) option {
	return func(s *DispatchService) {
		s.now = now
	}
}

// Dispatch pulls and fans out events while the backlog admits them.
// It returns GateClosed or SourceExhausted on a regular stop, and an error
// if the context is done or the source fails.
func (s *DispatchService) Dispatch(ctx context.Context) (StopReason, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		if !s.backlog.Accepting() {
			return GateClosed, nil
		}

		ev, err := s.client.ReadEvent(ctx)
		if errors.Is(err, io.EOF) {
			return SourceExhausted, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read event: %w", err)
		}

		s.fanOut(ctx, ev)
	}
}

// Run dispatches until the source is exhausted or ctx is done, pausing while
// the backlog gate is closed.
func (s *DispatchService) Run(ctx context.Context) error {
	for {
		reopened := s.backlog.Reopened()

		reason, err := s.Dispatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return err
		}

		if reason == SourceExhausted {
			slog.Info("Event source exhausted, dispatcher stopped")

			return nil
		}

		slog.Warn("Retry backlog is full, pausing dispatch")

		select {
		case <-ctx.Done():
			return nil
		case <-reopened:
			slog.Info("Retry backlog drained, resuming dispatch")
		}
	}
}

// fanOut sends the payload to every recipient and queues rejected deliveries.
// It returns the number of rejections.
func (s *DispatchService) fanOut(ctx context.Context, ev event.Event) int {
	ctx, span := otel.Tracer("service").Start(ctx, "Service.FanOut")
	defer span.End()

	span.SetAttributes(
		attribute.String("event.id", ev.ID),
		attribute.Int("event.recipients", len(ev.Recipients)),
	)

	rejected := 0
	for _, recipient := range ev.Recipients {
		if s.client.Send(ctx, recipient, ev.Payload) == event.Accepted {
			continue
		}

		entry := retry.NewEntry(recipient, ev.Payload, s.now().Add(s.retryInterval))
		s.backlog.Push(entry)
		rejected++

		slog.Warn("Delivery rejected, queued for retry",
			"event_id", ev.ID,
			"recipient", recipient,
			"entry_id", entry.ID,
			"not_before", entry.NotBefore,
		)
	}

	span.SetAttributes(attribute.Int("event.rejected", rejected))

	return rejected
}
