package retry

import (
	"time"

	"github.com/corray333/backend-labs/dispatcher/internal/service/models/event"
	"github.com/google/uuid"
)

// Entry represents a rejected delivery waiting for a resend.
type Entry struct {
	ID        uuid.UUID
	Recipient event.Address
	Payload   event.Payload
	NotBefore time.Time
	Attempts  int
}

// NewEntry creates an entry that becomes due at notBefore.
func NewEntry(recipient event.Address, payload event.Payload, notBefore time.Time) Entry {
	return Entry{
		ID:        uuid.New(),
		Recipient: recipient,
		Payload:   payload,
		NotBefore: notBefore,
	}
}

// Due reports whether the entry may be resent at now.
func (e Entry) Due(now time.Time) bool {
	return !now.Before(e.NotBefore)
}

// Attempted returns a copy of the entry with one more resend recorded.
// NotBefore is kept as is, so a failed entry is due again on the next cycle.
func (e Entry) Attempted() Entry {
	e.Attempts++
	return e
}
