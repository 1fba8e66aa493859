package backlog

import (
	"sync"
	"sync/atomic"

	"github.com/corray333/backend-labs/dispatcher/internal/service/models/retry"
)

// Backlog holds rejected deliveries awaiting a resend and publishes an
// admission gate derived from its size.
// It is safe for concurrent use.
type Backlog struct {
	mu       sync.Mutex
	entries  []retry.Entry
	reopened chan struct{}

	maxSize   int
	accepting atomic.Bool
}

// New creates an empty backlog with an open gate.
// A non-positive maxSize makes the backlog unbounded.
func New(maxSize int) *Backlog {
	b := &Backlog{
		entries:  make([]retry.Entry, 0),
		reopened: make(chan struct{}),
		maxSize:  maxSize,
	}
	b.accepting.Store(true)

	return b
}

// Push inserts an entry. Reaching the size limit closes the gate right away;
// only Recompute opens it again.
func (b *Backlog) Push(entry retry.Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, entry)
	if b.full() {
		b.accepting.Store(false)
	}
}

// PushAll inserts entries in one critical section.
func (b *Backlog) PushAll(entries []retry.Entry) {
	if len(entries) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, entries...)
	if b.full() {
		b.accepting.Store(false)
	}
}

// DrainAll removes and returns every queued entry.
func (b *Backlog) DrainAll() []retry.Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	drained := b.entries
	b.entries = make([]retry.Entry, 0, len(drained))

	return drained
}

// Len returns the number of queued entries.
func (b *Backlog) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.entries)
}

// MaxSize returns the size at which the gate closes.
func (b *Backlog) MaxSize() int {
	return b.maxSize
}

// Accepting reports the last published gate value.
func (b *Backlog) Accepting() bool {
	return b.accepting.Load()
}

// Recompute publishes the gate from the current size and returns it.
// Waiters on Reopened are released when the gate goes from closed to open.
func (b *Backlog) Recompute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	open := !b.full()
	if wasOpen := b.accepting.Swap(open); open && !wasOpen {
		close(b.reopened)
		b.reopened = make(chan struct{})
	}

	return open
}

// Reopened returns a channel closed on the next closed-to-open transition.
// Callers must fetch the channel before checking Accepting to not miss it.
func (b *Backlog) Reopened() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.reopened
}

// full must be called with mu held.
func (b *Backlog) full() bool {
	return b.maxSize > 0 && len(b.entries) >= b.maxSize
}
