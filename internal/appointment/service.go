package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinic-scheduling/internal/metrics"
	"github.com/clinicore/clinic-scheduling/internal/outbox"
	redisclient "github.com/clinicore/clinic-scheduling/internal/redis"
)

// ErrPractitionerBusy means another booking for the same practitioner holds
// the create lock right now. The caller should retry shortly.
var ErrPractitionerBusy = errors.New("practitioner is being booked concurrently, please retry")

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Service orchestrates the scheduling use cases: validate, detect conflicts,
// mutate state, persist, stage the event. It owns all business mutation of
// appointments; the repository only persists.
type Service struct {
	repo     Repository
	detector *ConflictDetector
	locker   redisclient.Locker
	mets     *metrics.Collector
	log      zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, mets *metrics.Collector, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		detector: NewConflictDetector(repo),
		locker:   locker,
		mets:     mets,
		log:      log,
	}
}

// CreateParams carries one booking request.
type CreateParams struct {
	Tenant         TenantID
	PatientID      uuid.UUID
	PractitionerID uuid.UUID
	Start          time.Time
	End            time.Time
	Type           Type
	Reason         string
}

// Create books an appointment if the practitioner is free. The conflict
// check and the insert run under a per-practitioner lock, and the repository
// re-checks inside its own transaction, so two overlapping requests can
// never both commit. All validation failures surface before any persistence
// attempt.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Appointment, error) {
	schedule, err := NewTimeRange(p.Start, p.End)
	if err != nil {
		return nil, err
	}

	// Constructing the entity up front runs the past-start and field checks
	// before we touch the lock or the repository.
	appt, err := New(p.Tenant, p.PatientID, p.PractitionerID, schedule, p.Type, p.Reason)
	if err != nil {
		return nil, err
	}

	err = s.locker.WithPractitionerLock(ctx, p.Tenant.String(), p.PractitionerID, func(lockCtx context.Context) error {
		conflicts, err := s.detector.FindConflicts(lockCtx, p.Tenant, p.PractitionerID, schedule, uuid.Nil)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return conflictError(p.PractitionerID, conflicts)
		}

		ev, err := createdEvent(appt)
		if err != nil {
			return err
		}
		if err := s.repo.Create(lockCtx, appt, ev); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrPractitionerBusy
		}
		// A write-side race loses here; callers see the same conflict error
		// family as a pre-write conflict.
		if errors.Is(err, ErrConflictOnWrite) {
			s.mets.ConflictsRejected.Inc()
			return nil, &ConflictError{PractitionerID: p.PractitionerID}
		}
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			s.mets.ConflictsRejected.Inc()
		}
		return nil, err
	}

	s.mets.AppointmentsCreated.Inc()
	s.log.Info().
		Str("tenant_id", appt.Tenant.String()).
		Str("appointment_id", appt.ID.String()).
		Str("practitioner_id", appt.PractitionerID.String()).
		Time("start", schedule.Start()).
		Msg("appointment created")

	return appt, nil
}

// Confirm moves an appointment to confirmed and stages the event.
func (s *Service) Confirm(ctx context.Context, tenant TenantID, id uuid.UUID) (*Appointment, error) {
	return s.applyTransition(ctx, tenant, id, outbox.EventAppointmentConfirmed, func(a *Appointment) error {
		return a.Confirm()
	})
}

// Start moves an appointment to in_progress.
func (s *Service) Start(ctx context.Context, tenant TenantID, id uuid.UUID) (*Appointment, error) {
	return s.applyTransition(ctx, tenant, id, outbox.EventAppointmentStarted, func(a *Appointment) error {
		return a.Start()
	})
}

// Complete finishes an in-progress appointment, optionally attaching notes.
func (s *Service) Complete(ctx context.Context, tenant TenantID, id uuid.UUID, notes string) (*Appointment, error) {
	return s.applyTransition(ctx, tenant, id, outbox.EventAppointmentCompleted, func(a *Appointment) error {
		return a.Complete(notes)
	})
}

// Cancel cancels a scheduled or confirmed appointment.
func (s *Service) Cancel(ctx context.Context, tenant TenantID, id uuid.UUID) (*Appointment, error) {
	return s.applyTransition(ctx, tenant, id, outbox.EventAppointmentCancelled, func(a *Appointment) error {
		return a.Cancel()
	})
}

// MarkNoShow records that the patient did not arrive.
func (s *Service) MarkNoShow(ctx context.Context, tenant TenantID, id uuid.UUID) (*Appointment, error) {
	return s.applyTransition(ctx, tenant, id, outbox.EventAppointmentNoShow, func(a *Appointment) error {
		return a.MarkNoShow()
	})
}

// SetVideoRoom attaches a video room URL to a video-call appointment. No
// lifecycle event is emitted; room provisioning is a side channel.
func (s *Service) SetVideoRoom(ctx context.Context, tenant TenantID, id uuid.UUID, url string) (*Appointment, error) {
	if url == "" {
		return nil, &ValidationError{Field: "video_room_url", Reason: "must not be empty"}
	}

	appt, err := s.repo.GetByID(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if err := appt.SetVideoRoom(url); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, appt, nil); err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	return appt, nil
}

// CheckAvailability reports whether the practitioner has no active
// overlapping appointment in the given window. It mutates nothing.
func (s *Service) CheckAvailability(ctx context.Context, tenant TenantID, practitionerID uuid.UUID, start, end time.Time) (bool, error) {
	candidate, err := NewTimeRange(start, end)
	if err != nil {
		return false, err
	}

	conflicts, err := s.detector.FindConflicts(ctx, tenant, practitionerID, candidate, uuid.Nil)
	if err != nil {
		return false, err
	}
	return len(conflicts) == 0, nil
}

// Get loads one appointment within the caller's tenant.
func (s *Service) Get(ctx context.Context, tenant TenantID, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, tenant, id)
}

// ListByPatient returns a patient's appointments, newest first.
func (s *Service) ListByPatient(ctx context.Context, tenant TenantID, patientID uuid.UUID, limit, offset int) ([]*Appointment, error) {
	limit, offset = clampPage(limit, offset)
	return s.repo.ListByPatient(ctx, tenant, patientID, limit, offset)
}

// ListByPractitioner returns a practitioner's appointments, newest first.
func (s *Service) ListByPractitioner(ctx context.Context, tenant TenantID, practitionerID uuid.UUID, limit, offset int) ([]*Appointment, error) {
	limit, offset = clampPage(limit, offset)
	return s.repo.ListByPractitioner(ctx, tenant, practitionerID, limit, offset)
}

func (s *Service) applyTransition(ctx context.Context, tenant TenantID, id uuid.UUID, eventType string, mutate func(*Appointment) error) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, tenant, id)
	if err != nil {
		return nil, err
	}

	if err := mutate(appt); err != nil {
		return nil, err
	}

	ev, err := transitionEvent(eventType, appt)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, appt, ev); err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	s.mets.Transitions.WithLabelValues(string(appt.Status)).Inc()
	s.log.Info().
		Str("tenant_id", tenant.String()).
		Str("appointment_id", id.String()).
		Str("status", string(appt.Status)).
		Msg("appointment transitioned")

	return appt, nil
}

func conflictError(practitionerID uuid.UUID, conflicts []*Appointment) *ConflictError {
	ids := make([]uuid.UUID, len(conflicts))
	for i, c := range conflicts {
		ids[i] = c.ID
	}
	return &ConflictError{PractitionerID: practitionerID, ConflictingIDs: ids}
}

func createdEvent(a *Appointment) (*outbox.Event, error) {
	return outbox.NewEvent(outbox.EventAppointmentCreated, a.Tenant.String(), a.ID, map[string]any{
		"appointment_id":   a.ID.String(),
		"tenant_id":        a.Tenant.String(),
		"patient_id":       a.PatientID.String(),
		"practitioner_id":  a.PractitionerID.String(),
		"start_time":       a.Schedule.Start().Format(time.RFC3339),
		"end_time":         a.Schedule.End().Format(time.RFC3339),
		"appointment_type": string(a.Type),
	})
}

func transitionEvent(eventType string, a *Appointment) (*outbox.Event, error) {
	return outbox.NewEvent(eventType, a.Tenant.String(), a.ID, map[string]any{
		"appointment_id":  a.ID.String(),
		"tenant_id":       a.Tenant.String(),
		"patient_id":      a.PatientID.String(),
		"practitioner_id": a.PractitionerID.String(),
		"start_time":      a.Schedule.Start().Format(time.RFC3339),
	})
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
