package ideadletterrepo

import (
	"context"

	"github.com/corray333/backend-labs/dispatcher/internal/service/models/deadletter"
)

// IDeadLetterRepository defines the interface for dead letter storage.
type IDeadLetterRepository interface {
	// Save stores a delivery that ran out of resend attempts
	Save(ctx context.Context, dl deadletter.DeadLetter) error
}
