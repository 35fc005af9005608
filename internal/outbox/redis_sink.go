package outbox

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSink publishes events to a Redis stream. Downstream consumers
// (notifications, analytics) read the stream with consumer groups and do
// their own recovery; the engine only guarantees the append.
type RedisSink struct {
	client *redis.Client
	stream string
}

func NewRedisSink(client *redis.Client, stream string) *RedisSink {
	return &RedisSink{client: client, stream: stream}
}

func (s *RedisSink) Publish(ctx context.Context, ev Event) (string, error) {
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"event_id":       ev.ID.String(),
			"event_type":     ev.Type,
			"tenant_id":      ev.TenantID,
			"appointment_id": ev.AppointmentID.String(),
			"payload":        string(ev.Payload),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return id, nil
}
