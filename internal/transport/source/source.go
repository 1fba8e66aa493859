package source

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/corray333/backend-labs/dispatcher/internal/service/models/event"
)

var (
	// ErrNoRecipients is returned for envelopes without a single recipient.
	ErrNoRecipients = errors.New("event has no recipients")
	// ErrAmbiguousPayload is returned when both payload forms are set.
	ErrAmbiguousPayload = errors.New("event has both payload and payload_base64")
)

// envelope is the wire form of an event on every source.
// Payload carries a JSON document as is; binary bodies go in PayloadBase64,
// which encoding/json decodes from standard base64.
type envelope struct {
	ID            string          `json:"id"`
	Recipients    []string        `json:"recipients"`
	Payload       json.RawMessage `json:"payload"`
	PayloadBase64 []byte          `json:"payload_base64"`
}

// Decode parses an event envelope. fallbackID is used when the envelope
// carries no id of its own.
func Decode(data []byte, fallbackID string) (event.Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return event.Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if len(env.Recipients) == 0 {
		return event.Event{}, ErrNoRecipients
	}

	payload := event.Payload(env.Payload)
	if env.PayloadBase64 != nil {
		if len(env.Payload) > 0 {
			return event.Event{}, ErrAmbiguousPayload
		}
		payload = event.Payload(env.PayloadBase64)
	}

	id := env.ID
	if id == "" {
		id = fallbackID
	}

	recipients := make([]event.Address, 0, len(env.Recipients))
	for _, r := range env.Recipients {
		recipients = append(recipients, event.Address(r))
	}

	return event.Event{
		ID:         id,
		Payload:    payload,
		Recipients: recipients,
	}, nil
}
