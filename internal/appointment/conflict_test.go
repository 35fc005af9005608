package appointment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appointmentAt(t *testing.T, start time.Time, minutes int, status Status) *Appointment {
	t.Helper()
	appt := newTestAppointment(t)
	appt.Schedule = mustRange(t, start, start.Add(time.Duration(minutes)*time.Minute))
	appt.Status = status
	return appt
}

func TestFilterConflicts(t *testing.T) {
	base := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	candidate := mustRange(t, base, base.Add(time.Hour))

	t.Run("overlapping active appointment conflicts", func(t *testing.T) {
		existing := []*Appointment{
			appointmentAt(t, base.Add(30*time.Minute), 60, StatusScheduled),
		}
		conflicts := FilterConflicts(candidate, existing, uuid.Nil)
		require.Len(t, conflicts, 1)
		assert.Equal(t, existing[0].ID, conflicts[0].ID)
	})

	t.Run("containment conflicts both ways", func(t *testing.T) {
		inner := appointmentAt(t, base.Add(15*time.Minute), 15, StatusConfirmed)
		outer := appointmentAt(t, base.Add(-time.Hour), 240, StatusInProgress)
		conflicts := FilterConflicts(candidate, []*Appointment{inner, outer}, uuid.Nil)
		assert.Len(t, conflicts, 2)
	})

	t.Run("adjacent appointments do not conflict", func(t *testing.T) {
		before := appointmentAt(t, base.Add(-time.Hour), 60, StatusScheduled)
		after := appointmentAt(t, base.Add(time.Hour), 60, StatusScheduled)
		conflicts := FilterConflicts(candidate, []*Appointment{before, after}, uuid.Nil)
		assert.Empty(t, conflicts)
	})

	t.Run("inactive statuses never conflict", func(t *testing.T) {
		existing := []*Appointment{
			appointmentAt(t, base, 60, StatusCancelled),
			appointmentAt(t, base, 60, StatusCompleted),
			appointmentAt(t, base, 60, StatusNoShow),
		}
		conflicts := FilterConflicts(candidate, existing, uuid.Nil)
		assert.Empty(t, conflicts)
	})

	t.Run("excluded id is skipped", func(t *testing.T) {
		self := appointmentAt(t, base, 60, StatusScheduled)
		other := appointmentAt(t, base.Add(30*time.Minute), 60, StatusScheduled)
		conflicts := FilterConflicts(candidate, []*Appointment{self, other}, self.ID)
		require.Len(t, conflicts, 1)
		assert.Equal(t, other.ID, conflicts[0].ID)
	})

	t.Run("no existing appointments", func(t *testing.T) {
		assert.Empty(t, FilterConflicts(candidate, nil, uuid.Nil))
	})
}
