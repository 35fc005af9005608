package outbox

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Dispatcher drains the staging table into a sink. It is intended to run on
// a ticker in its own process; Run handles one batch.
type Dispatcher struct {
	store      Store
	sink       Sink
	batchSize  int
	dispatched prometheus.Counter // may be nil
	log        zerolog.Logger
}

func NewDispatcher(store Store, sink Sink, batchSize int, dispatched prometheus.Counter, log zerolog.Logger) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Dispatcher{store: store, sink: sink, batchSize: batchSize, dispatched: dispatched, log: log}
}

// Run publishes one batch of pending events. A failed publish leaves the
// event pending for the next run; later events in the batch are still
// attempted so one poisoned payload cannot wedge the queue.
func (d *Dispatcher) Run(ctx context.Context) (int, error) {
	pending, err := d.store.Pending(ctx, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("load pending events: %w", err)
	}

	count := 0
	for _, ev := range pending {
		msgID, err := d.sink.Publish(ctx, ev)
		if err != nil {
			d.log.Error().Err(err).
				Str("event_id", ev.ID.String()).
				Str("event_type", ev.Type).
				Msg("publish failed, event stays pending")
			continue
		}

		if err := d.store.MarkDispatched(ctx, ev.ID); err != nil {
			// The event was published; a lost ack means a duplicate on the
			// next run, which consumers must tolerate anyway.
			d.log.Error().Err(err).
				Str("event_id", ev.ID.String()).
				Msg("failed to mark event dispatched")
			continue
		}

		d.log.Debug().
			Str("event_id", ev.ID.String()).
			Str("event_type", ev.Type).
			Str("message_id", msgID).
			Msg("event dispatched")
		if d.dispatched != nil {
			d.dispatched.Inc()
		}
		count++
	}

	return count, nil
}
