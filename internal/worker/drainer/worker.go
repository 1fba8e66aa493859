package drainer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/corray333/backend-labs/dispatcher/internal/dal/interfaces/ideadletterrepo"
	"github.com/corray333/backend-labs/dispatcher/internal/service/models/deadletter"
	"github.com/corray333/backend-labs/dispatcher/internal/service/models/event"
	"github.com/corray333/backend-labs/dispatcher/internal/service/models/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// sender delivers a payload to one recipient.
type sender interface {
	Send(ctx context.Context, recipient event.Address, payload event.Payload) event.DeliveryResult
}

// retryBacklog is the retry backlog as seen by the drainer.
type retryBacklog interface {
	Recompute() bool
	Len() int
	DrainAll() []retry.Entry
	PushAll(entries []retry.Entry)
}

// cycleStats summarizes one drain cycle.
type cycleStats struct {
	Resolved     int
	Requeued     int
	DeadLettered int
}

// Worker drains the retry backlog on a fixed cadence.
type Worker struct {
	backlog       retryBacklog
	sender        sender
	deadLetters   ideadletterrepo.IDeadLetterRepository
	retryInterval time.Duration
	maxAttempts   int
	now           func() time.Time
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// NewWorker creates a new retry worker.
// maxAttempts <= 0 retries every entry until it is accepted. deadLetters may
// be nil, in which case entries over the limit are logged and dropped.
func NewWorker(
	backlog retryBacklog,
	sender sender,
	retryInterval time.Duration,
	maxAttempts int,
	deadLetters ideadletterrepo.IDeadLetterRepository,
) *Worker {
	return &Worker{
		backlog:       backlog,
		sender:        sender,
		deadLetters:   deadLetters,
		retryInterval: retryInterval,
		maxAttempts:   maxAttempts,
		now:           time.Now,
		stopCh:        make(chan struct{}),
	}
}

// Start runs drain cycles until ctx is done or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.retryInterval)
	defer ticker.Stop()

	slog.Info("Retry worker started", "retry_interval", w.retryInterval, "max_attempts", w.maxAttempts)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Retry worker shutting down", "backlog_size", w.backlog.Len())

			return
		case <-w.stopCh:
			slog.Info("Retry worker stopped", "backlog_size", w.backlog.Len())

			return
		case <-ticker.C:
			w.processBacklog(ctx)
		}
	}
}

// Stop stops the worker. It is safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// processBacklog runs one drain cycle: publish the gate, then resend every
// due entry and put back the rest.
func (w *Worker) processBacklog(ctx context.Context) cycleStats {
	var stats cycleStats

	accepting := w.backlog.Recompute()

	if w.backlog.Len() == 0 {
		return stats
	}

	ctx, span := otel.Tracer("worker").Start(ctx, "RetryWorker.processBacklog")
	defer span.End()

	entries := w.backlog.DrainAll()
	requeue := make([]retry.Entry, 0, len(entries))

	for _, entry := range entries {
		if ctx.Err() != nil || !entry.Due(w.now()) {
			requeue = append(requeue, entry)

			continue
		}

		if w.sender.Send(ctx, entry.Recipient, entry.Payload) == event.Accepted {
			stats.Resolved++
			slog.Info("Retried delivery accepted",
				"entry_id", entry.ID,
				"recipient", entry.Recipient,
				"attempts", entry.Attempts+1,
			)

			continue
		}

		attempted := entry.Attempted()
		if w.maxAttempts > 0 && attempted.Attempts >= w.maxAttempts && w.deadLetter(ctx, attempted) {
			stats.DeadLettered++

			continue
		}

		requeue = append(requeue, attempted)
	}

	w.backlog.PushAll(requeue)
	stats.Requeued = len(requeue)

	span.SetAttributes(
		attribute.Bool("backlog.accepting", accepting),
		attribute.Int("backlog.drained", len(entries)),
		attribute.Int("backlog.resolved", stats.Resolved),
		attribute.Int("backlog.requeued", stats.Requeued),
	)

	if stats.Resolved > 0 || stats.DeadLettered > 0 {
		slog.Info("Retry cycle finished",
			"resolved", stats.Resolved,
			"requeued", stats.Requeued,
			"dead_lettered", stats.DeadLettered,
		)
	}

	return stats
}

// deadLetter hands an exhausted entry to the dead letter repository.
// It returns false if the entry has to stay in the backlog.
func (w *Worker) deadLetter(ctx context.Context, entry retry.Entry) bool {
	if w.deadLetters == nil {
		slog.Warn("Max attempts reached, dropping delivery",
			"entry_id", entry.ID,
			"recipient", entry.Recipient,
			"attempts", entry.Attempts,
		)

		return true
	}

	err := w.deadLetters.Save(ctx, deadletter.DeadLetter{
		EntryID:   entry.ID,
		Recipient: string(entry.Recipient),
		Payload:   entry.Payload,
		Attempts:  entry.Attempts,
		NotBefore: entry.NotBefore,
		CreatedAt: w.now(),
	})
	if err != nil {
		slog.Error("Failed to save dead letter, keeping entry in backlog",
			"entry_id", entry.ID,
			"error", err,
		)

		return false
	}

	slog.Warn("Max attempts reached, delivery moved to dead letters",
		"entry_id", entry.ID,
		"recipient", entry.Recipient,
		"attempts", entry.Attempts,
	)

	return true
}
