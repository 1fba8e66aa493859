package dispatchsvc

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/corray333/backend-labs/dispatcher/internal/dal/backlog"
	"github.com/corray333/backend-labs/dispatcher/internal/service/models/event"
	"github.com/corray333/backend-labs/dispatcher/internal/service/models/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient serves queued events and answers sends from a per-recipient table.
type fakeClient struct {
	mu       sync.Mutex
	events   []event.Event
	reads    int
	readErr  error
	results  map[event.Address]event.DeliveryResult
	sent     []event.Address
	blockEOF bool
}

func (c *fakeClient) ReadEvent(ctx context.Context) (event.Event, error) {
	c.mu.Lock()
	if c.readErr != nil {
		c.mu.Unlock()
		return event.Event{}, c.readErr
	}
	if len(c.events) == 0 {
		block := c.blockEOF
		c.mu.Unlock()
		if block {
			<-ctx.Done()
			return event.Event{}, ctx.Err()
		}
		return event.Event{}, io.EOF
	}
	ev := c.events[0]
	c.events = c.events[1:]
	c.reads++
	c.mu.Unlock()

	return ev, nil
}

func (c *fakeClient) Send(_ context.Context, recipient event.Address, _ event.Payload) event.DeliveryResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sent = append(c.sent, recipient)
	if r, ok := c.results[recipient]; ok {
		return r
	}

	return event.Accepted
}

func (c *fakeClient) readCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func newEvent(id string, recipients ...event.Address) event.Event {
	return event.Event{ID: id, Payload: event.Payload("payload-" + id), Recipients: recipients}
}

func newRejectedEntry() retry.Entry {
	return retry.NewEntry("x", event.Payload("old"), time.Now())
}

func TestDispatchQueuesOneEntryPerRejection(t *testing.T) {
	testCases := []struct {
		desc     string
		events   []event.Event
		rejected []event.Address
		expected int
	}{
		{
			desc:     "all accepted",
			events:   []event.Event{newEvent("1", "a", "b")},
			expected: 0,
		},
		{
			desc:     "one of two rejected",
			events:   []event.Event{newEvent("1", "a", "b")},
			rejected: []event.Address{"b"},
			expected: 1,
		},
		{
			desc: "mixed across events",
			events: []event.Event{
				newEvent("1", "a", "b", "c"),
				newEvent("2", "c"),
				newEvent("3", "a"),
			},
			rejected: []event.Address{"a", "c"},
			expected: 4,
		},
		{
			desc:     "event without recipients",
			events:   []event.Event{newEvent("1")},
			expected: 0,
		},
	}

	for _, test := range testCases {
		t.Run(test.desc, func(t *testing.T) {
			c := &fakeClient{events: test.events, results: map[event.Address]event.DeliveryResult{}}
			for _, r := range test.rejected {
				c.results[r] = event.Rejected
			}
			b := backlog.New(0)

			s := MustNewDispatchService(WithClient(c), WithBacklog(b))

			reason, err := s.Dispatch(context.Background())
			require.NoError(t, err)
			assert.Equal(t, SourceExhausted, reason)
			assert.Equal(t, test.expected, b.Len())
		})
	}
}

func TestDispatchSetsNotBefore(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := &fakeClient{
		events:  []event.Event{newEvent("1", "a")},
		results: map[event.Address]event.DeliveryResult{"a": event.Rejected},
	}
	b := backlog.New(0)

	s := MustNewDispatchService(
		WithClient(c),
		WithBacklog(b),
		WithRetryInterval(time.Second),
		WithClock(func() time.Time { return now }),
	)

	_, err := s.Dispatch(context.Background())
	require.NoError(t, err)

	entries := b.DrainAll()
	require.Len(t, entries, 1)
	assert.Equal(t, event.Address("a"), entries[0].Recipient)
	assert.Equal(t, event.Payload("payload-1"), entries[0].Payload)
	assert.Equal(t, now.Add(time.Second), entries[0].NotBefore)
	assert.Equal(t, 0, entries[0].Attempts)
}

func TestDispatchStopsWhenGateCloses(t *testing.T) {
	c := &fakeClient{
		events: []event.Event{
			newEvent("1", "a", "b"),
			newEvent("2", "c"),
		},
		results: map[event.Address]event.DeliveryResult{"a": event.Rejected, "b": event.Rejected},
	}
	b := backlog.New(1)

	s := MustNewDispatchService(WithClient(c), WithBacklog(b))

	reason, err := s.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, GateClosed, reason)
	assert.Equal(t, 2, b.Len(), "both recipients of the first event are queued")
	assert.Equal(t, 1, c.readCount(), "second event must not be pulled")
	assert.False(t, b.Accepting())
}

func TestDispatchDoesNotPullWhenGateClosed(t *testing.T) {
	c := &fakeClient{events: []event.Event{newEvent("1", "a")}}
	b := backlog.New(1)
	b.Push(newRejectedEntry())

	s := MustNewDispatchService(WithClient(c), WithBacklog(b))

	reason, err := s.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, GateClosed, reason)
	assert.Zero(t, c.readCount())
}

func TestDispatchReturnsReadError(t *testing.T) {
	readErr := errors.New("connection reset")
	c := &fakeClient{readErr: readErr}
	s := MustNewDispatchService(WithClient(c), WithBacklog(backlog.New(0)))

	_, err := s.Dispatch(context.Background())
	assert.ErrorIs(t, err, readErr)
}

func TestRunResumesAfterGateReopens(t *testing.T) {
	c := &fakeClient{
		events: []event.Event{
			newEvent("1", "a"),
			newEvent("2", "b"),
		},
		results: map[event.Address]event.DeliveryResult{"a": event.Rejected},
	}
	b := backlog.New(1)
	s := MustNewDispatchService(WithClient(c), WithBacklog(b))

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	require.Eventually(t, func() bool { return !b.Accepting() }, time.Second, time.Millisecond)
	assert.Equal(t, 1, c.readCount())

	b.DrainAll()
	b.Recompute()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not resume")
	}
	assert.Equal(t, 2, c.readCount())
}

func TestRunStopsOnCancel(t *testing.T) {
	c := &fakeClient{blockEOF: true}
	s := MustNewDispatchService(WithClient(c), WithBacklog(backlog.New(0)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher ignored cancellation")
	}
}

func TestMustNewDispatchServicePanicsWithoutDeps(t *testing.T) {
	assert.Panics(t, func() { MustNewDispatchService(WithBacklog(backlog.New(1))) })
	assert.Panics(t, func() { MustNewDispatchService(WithClient(&fakeClient{})) })
}

func TestBacklogImplementsRetryBacklog(t *testing.T) {
	var b retryBacklog = backlog.New(1)

	assert.True(t, b.Accepting())
	b.Push(newRejectedEntry())
	assert.False(t, b.Accepting())
}
