package appointment

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-scheduling/internal/outbox"
)

// Repository is the persistence contract the scheduling engine depends on.
// Every call is scoped to exactly one tenant; an id that exists under a
// different tenant behaves identically to an absent one.
//
// Create carries a hard requirement: the insert must be atomic with respect
// to the conflict check for the same (tenant, practitioner). Conflict
// detection is check-then-act — two concurrent creates for overlapping
// ranges can both pass their pre-write checks — so a conforming
// implementation must serialize the re-check + insert (a transaction holding
// a per-practitioner lock, an exclusion constraint on the range, or
// equivalent) and fail with ErrConflictOnWrite when it loses the race.
//
// When ev is non-nil, Create and Update stage it in the same transaction
// that commits the appointment, so an event exists iff its state change
// was committed.
type Repository interface {
	Create(ctx context.Context, a *Appointment, ev *outbox.Event) error
	GetByID(ctx context.Context, tenant TenantID, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment, ev *outbox.Event) error

	// FindActiveForPractitioner returns the practitioner's appointments with
	// status scheduled, confirmed or in_progress, minus excludeID
	// (uuid.Nil excludes nothing). Overlap filtering is the caller's job.
	FindActiveForPractitioner(ctx context.Context, tenant TenantID, practitionerID, excludeID uuid.UUID) ([]*Appointment, error)

	ListByPatient(ctx context.Context, tenant TenantID, patientID uuid.UUID, limit, offset int) ([]*Appointment, error)
	ListByPractitioner(ctx context.Context, tenant TenantID, practitionerID uuid.UUID, limit, offset int) ([]*Appointment, error)
}
