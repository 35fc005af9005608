package appointment

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when an appointment does not exist within the
	// caller's tenant. A lookup for an id that belongs to a different tenant
	// returns the same error, so tenants cannot probe each other's data.
	ErrNotFound = errors.New("appointment not found")

	// ErrConflictOnWrite is returned by Repository.Create when a conflicting
	// appointment was committed concurrently, after the caller's own conflict
	// check had already passed.
	ErrConflictOnWrite = errors.New("conflicting appointment committed concurrently")
)

// ValidationError reports malformed input on a named field. It is always
// caller-fixable and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidRangeError reports a time range whose start is not strictly before
// its end.
type InvalidRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid time range: start %s must be before end %s",
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// RuleViolationError reports an attempted operation that the appointment's
// state machine or invariants forbid. Status is empty when the violation is
// not tied to the current status.
type RuleViolationError struct {
	Action string
	Status Status
	Reason string
}

func (e *RuleViolationError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("cannot %s appointment with status %s", e.Action, e.Status)
}

// ConflictError reports a scheduling conflict detected either before the
// write or at commit time; callers see the same error family for both.
type ConflictError struct {
	PractitionerID uuid.UUID
	ConflictingIDs []uuid.UUID
}

func (e *ConflictError) Error() string {
	ids := make([]string, len(e.ConflictingIDs))
	for i, id := range e.ConflictingIDs {
		ids[i] = id.String()
	}
	return fmt.Sprintf("practitioner %s has %d conflicting appointment(s): %s",
		e.PractitionerID, len(e.ConflictingIDs), strings.Join(ids, ", "))
}
