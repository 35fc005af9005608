package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// FilterConflicts returns the appointments from existing that would conflict
// with the candidate range: active status and overlapping schedule. The
// appointment with excludeID is never its own conflict, which keeps in-place
// reschedule checks safe; pass uuid.Nil to exclude nothing.
//
// Storage backends only need equality/range filters; the overlap math lives
// here so every backend shares one tested predicate.
func FilterConflicts(candidate TimeRange, existing []*Appointment, excludeID uuid.UUID) []*Appointment {
	var conflicts []*Appointment
	for _, a := range existing {
		if a.ID == excludeID {
			continue
		}
		if !a.Status.IsActive() {
			continue
		}
		if a.Schedule.OverlapsWith(candidate) {
			conflicts = append(conflicts, a)
		}
	}
	return conflicts
}

// ConflictDetector answers "is this practitioner free" against the
// repository. It is used on every create and exposed as a standalone
// availability query.
type ConflictDetector struct {
	repo Repository
}

func NewConflictDetector(repo Repository) *ConflictDetector {
	return &ConflictDetector{repo: repo}
}

// FindConflicts loads the practitioner's active appointments within the
// tenant and filters them against the candidate range.
func (d *ConflictDetector) FindConflicts(ctx context.Context, tenant TenantID, practitionerID uuid.UUID, candidate TimeRange, excludeID uuid.UUID) ([]*Appointment, error) {
	existing, err := d.repo.FindActiveForPractitioner(ctx, tenant, practitionerID, excludeID)
	if err != nil {
		return nil, fmt.Errorf("load active appointments: %w", err)
	}
	return FilterConflicts(candidate, existing, excludeID), nil
}
