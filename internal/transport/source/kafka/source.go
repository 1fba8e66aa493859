package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/dispatcher/internal/service/models/event"
	"github.com/corray333/backend-labs/dispatcher/internal/transport/source"
	kgo "github.com/segmentio/kafka-go"
)

const commitTimeout = 3 * time.Second

// reader is the part of *kgo.Reader the source needs.
type reader interface {
	FetchMessage(ctx context.Context) (kgo.Message, error)
	CommitMessages(ctx context.Context, msgs ...kgo.Message) error
}

// Source reads events from a Kafka topic.
type Source struct {
	reader reader
}

// NewSource creates a new Source.
func NewSource(r reader) *Source {
	return &Source{reader: r}
}

// ReadEvent blocks until the next well-formed event arrives and commits it.
// Malformed messages are committed and skipped so they are not read again.
// It returns io.EOF once the reader is closed.
func (s *Source) ReadEvent(ctx context.Context) (event.Event, error) {
	for {
		m, err := s.reader.FetchMessage(ctx)
		if errors.Is(err, io.EOF) {
			return event.Event{}, io.EOF
		}
		if err != nil {
			return event.Event{}, fmt.Errorf("failed to fetch kafka message: %w", err)
		}

		fallbackID := fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset)
		ev, decodeErr := source.Decode(m.Value, fallbackID)

		if err := s.commit(ctx, m); err != nil {
			slog.Error("Failed to commit kafka message", "error", err, "offset", m.Offset)
		}

		if decodeErr != nil {
			slog.Error("Failed to decode event", "error", decodeErr, "offset", m.Offset)

			continue
		}

		return ev, nil
	}
}

func (s *Source) commit(ctx context.Context, m kgo.Message) error {
	ctx, cancel := context.WithTimeout(ctx, commitTimeout)
	defer cancel()

	return s.reader.CommitMessages(ctx, m)
}
