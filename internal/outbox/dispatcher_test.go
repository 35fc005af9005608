package outbox

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	events     []Event
	dispatched map[uuid.UUID]bool
	pendingErr error
	markErr    error
}

func newFakeStore(events ...Event) *fakeStore {
	return &fakeStore{events: events, dispatched: make(map[uuid.UUID]bool)}
}

func (s *fakeStore) Pending(ctx context.Context, limit int) ([]Event, error) {
	if s.pendingErr != nil {
		return nil, s.pendingErr
	}
	var pending []Event
	for _, ev := range s.events {
		if !s.dispatched[ev.ID] {
			pending = append(pending, ev)
		}
		if len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (s *fakeStore) MarkDispatched(ctx context.Context, id uuid.UUID) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.dispatched[id] = true
	return nil
}

type fakeSink struct {
	published []Event
	failTypes map[string]bool
}

func (s *fakeSink) Publish(ctx context.Context, ev Event) (string, error) {
	if s.failTypes[ev.Type] {
		return "", errors.New("stream unavailable")
	}
	s.published = append(s.published, ev)
	return fmt.Sprintf("msg-%d", len(s.published)), nil
}

func testEvent(t *testing.T, eventType string) Event {
	t.Helper()
	ev, err := NewEvent(eventType, "clinic-a", uuid.New(), map[string]any{"k": "v"})
	require.NoError(t, err)
	return *ev
}

func TestDispatcherRun(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes and acknowledges pending events", func(t *testing.T) {
		store := newFakeStore(
			testEvent(t, EventAppointmentCreated),
			testEvent(t, EventAppointmentConfirmed),
		)
		sink := &fakeSink{}
		d := NewDispatcher(store, sink, 10, nil, zerolog.Nop())

		n, err := d.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Len(t, sink.published, 2)

		// Nothing left on the second run.
		n, err = d.Run(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("failed publish stays pending, later events still go out", func(t *testing.T) {
		poisoned := testEvent(t, EventAppointmentCreated)
		healthy := testEvent(t, EventAppointmentCancelled)
		store := newFakeStore(poisoned, healthy)
		sink := &fakeSink{failTypes: map[string]bool{EventAppointmentCreated: true}}
		d := NewDispatcher(store, sink, 10, nil, zerolog.Nop())

		n, err := d.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		require.Len(t, sink.published, 1)
		assert.Equal(t, healthy.ID, sink.published[0].ID)

		// The poisoned event is retried once the sink recovers.
		sink.failTypes = nil
		n, err = d.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("lost ack republishes the event", func(t *testing.T) {
		store := newFakeStore(testEvent(t, EventAppointmentCreated))
		store.markErr = errors.New("connection reset")
		sink := &fakeSink{}
		d := NewDispatcher(store, sink, 10, nil, zerolog.Nop())

		n, err := d.Run(ctx)
		require.NoError(t, err)
		assert.Zero(t, n, "unacknowledged events do not count as dispatched")
		assert.Len(t, sink.published, 1)

		store.markErr = nil
		n, err = d.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Len(t, sink.published, 2, "at-least-once delivery duplicates on lost ack")
	})

	t.Run("store failure aborts the run", func(t *testing.T) {
		store := newFakeStore()
		store.pendingErr = errors.New("db down")
		d := NewDispatcher(store, &fakeSink{}, 10, nil, zerolog.Nop())

		_, err := d.Run(ctx)
		require.Error(t, err)
	})

	t.Run("respects batch size", func(t *testing.T) {
		store := newFakeStore(
			testEvent(t, EventAppointmentCreated),
			testEvent(t, EventAppointmentCreated),
			testEvent(t, EventAppointmentCreated),
		)
		d := NewDispatcher(store, &fakeSink{}, 2, nil, zerolog.Nop())

		n, err := d.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = d.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}
