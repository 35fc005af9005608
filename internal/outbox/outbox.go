// Package outbox stages lifecycle events in the database transaction that
// commits the state they describe, and delivers them asynchronously. A slow
// or failing event sink can therefore never block or fail a booking.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventAppointmentCreated   = "AppointmentCreated"
	EventAppointmentConfirmed = "AppointmentConfirmed"
	EventAppointmentStarted   = "AppointmentStarted"
	EventAppointmentCompleted = "AppointmentCompleted"
	EventAppointmentCancelled = "AppointmentCancelled"
	EventAppointmentNoShow    = "AppointmentNoShow"
)

// Event is one staged lifecycle notification. Payload is the JSON document
// handed to the sink verbatim.
type Event struct {
	ID            uuid.UUID
	Type          string
	TenantID      string
	AppointmentID uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
	DispatchedAt  *time.Time
}

// NewEvent marshals the payload and stamps the envelope.
func NewEvent(eventType, tenantID string, appointmentID uuid.UUID, payload map[string]any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return &Event{
		ID:            uuid.New(),
		Type:          eventType,
		TenantID:      tenantID,
		AppointmentID: appointmentID,
		Payload:       data,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// Store is the dispatcher's view of the staging table. Writes happen inside
// the appointment repository's transactions; the dispatcher only reads and
// acknowledges.
type Store interface {
	Pending(ctx context.Context, limit int) ([]Event, error)
	MarkDispatched(ctx context.Context, id uuid.UUID) error
}

// Sink delivers one event to the outside world. Delivery is at-least-once:
// an event whose MarkDispatched is lost will be published again.
type Sink interface {
	Publish(ctx context.Context, ev Event) (string, error)
}
