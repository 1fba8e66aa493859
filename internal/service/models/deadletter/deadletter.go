package deadletter

import (
	"time"

	"github.com/google/uuid"
)

// DeadLetter represents a delivery that exhausted its resend attempts.
type DeadLetter struct {
	EntryID   uuid.UUID
	Recipient string
	Payload   []byte
	Attempts  int
	NotBefore time.Time
	CreatedAt time.Time
}
