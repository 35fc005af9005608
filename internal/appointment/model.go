package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeInPerson  Type = "in_person"
	TypeVideoCall Type = "video_call"
	TypePhoneCall Type = "phone_call"
)

func (t Type) IsValid() bool {
	switch t {
	case TypeInPerson, TypeVideoCall, TypePhoneCall:
		return true
	}
	return false
}

// Status lifecycle:
//
//	scheduled → confirmed → in_progress → completed
//	scheduled → cancelled | no_show
//	confirmed → cancelled | no_show
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// IsActive reports whether the status counts toward scheduling conflicts.
func (s Status) IsActive() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// transitionRules is the single source of truth for the state machine: every
// mutator dispatches through it, so adding a state means touching this table
// and nothing else.
var transitionRules = map[string]struct {
	from map[Status]bool
	to   Status
}{
	"confirm":      {from: map[Status]bool{StatusScheduled: true}, to: StatusConfirmed},
	"start":        {from: map[Status]bool{StatusScheduled: true, StatusConfirmed: true}, to: StatusInProgress},
	"complete":     {from: map[Status]bool{StatusInProgress: true}, to: StatusCompleted},
	"cancel":       {from: map[Status]bool{StatusScheduled: true, StatusConfirmed: true}, to: StatusCancelled},
	"mark no-show": {from: map[Status]bool{StatusScheduled: true, StatusConfirmed: true}, to: StatusNoShow},
}

// Appointment is a bookable visit between a patient and a practitioner,
// scoped to one tenant. Status and timestamps change only through the
// state-machine methods below; nothing else mutates a persisted appointment.
type Appointment struct {
	ID             uuid.UUID
	Tenant         TenantID
	PatientID      uuid.UUID
	PractitionerID uuid.UUID
	Schedule       TimeRange
	Type           Type
	Status         Status
	Reason         string
	Notes          string
	VideoRoomURL   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// New builds a Scheduled appointment with a fresh id. The schedule must not
// start in the past; this is checked once, here, and never re-validated on
// reads.
func New(tenant TenantID, patientID, practitionerID uuid.UUID, schedule TimeRange, typ Type, reason string) (*Appointment, error) {
	if tenant.IsZero() {
		return nil, &ValidationError{Field: "tenant_id", Reason: "must not be empty"}
	}
	if patientID == uuid.Nil {
		return nil, &ValidationError{Field: "patient_id", Reason: "must not be empty"}
	}
	if practitionerID == uuid.Nil {
		return nil, &ValidationError{Field: "practitioner_id", Reason: "must not be empty"}
	}
	if !typ.IsValid() {
		return nil, &ValidationError{Field: "type", Reason: "must be in_person, video_call or phone_call"}
	}
	now := time.Now().UTC()
	if schedule.Start().Before(now) {
		return nil, &RuleViolationError{Action: "create", Reason: "cannot create appointment in the past"}
	}

	return &Appointment{
		ID:             uuid.New(),
		Tenant:         tenant,
		PatientID:      patientID,
		PractitionerID: practitionerID,
		Schedule:       schedule,
		Type:           typ,
		Status:         StatusScheduled,
		Reason:         reason,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (a *Appointment) transition(action string) error {
	rule, ok := transitionRules[action]
	if !ok || !rule.from[a.Status] {
		return &RuleViolationError{Action: action, Status: a.Status}
	}
	a.Status = rule.to
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// Confirm moves a scheduled appointment to confirmed.
func (a *Appointment) Confirm() error { return a.transition("confirm") }

// Start moves a scheduled or confirmed appointment to in_progress.
func (a *Appointment) Start() error { return a.transition("start") }

// Complete finishes an in-progress appointment, optionally attaching
// consultation notes.
func (a *Appointment) Complete(notes string) error {
	if err := a.transition("complete"); err != nil {
		return err
	}
	if notes != "" {
		a.Notes = notes
	}
	return nil
}

// Cancel is the terminal soft end-state; only scheduled and confirmed
// appointments can be cancelled.
func (a *Appointment) Cancel() error { return a.transition("cancel") }

// MarkNoShow records that the patient did not arrive.
func (a *Appointment) MarkNoShow() error { return a.transition("mark no-show") }

// SetVideoRoom attaches a video room URL. Only video-call appointments may
// carry one, and only while the appointment is still live.
func (a *Appointment) SetVideoRoom(url string) error {
	if a.Type != TypeVideoCall {
		return &RuleViolationError{Action: "set video room", Reason: "can only set video room for video call appointments"}
	}
	if a.Status.IsTerminal() {
		return &RuleViolationError{Action: "set video room", Status: a.Status}
	}
	a.VideoRoomURL = url
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (a *Appointment) DurationMinutes() int {
	return a.Schedule.DurationMinutes()
}

// IsUpcoming reports whether the appointment is still ahead and not yet
// started, cancelled or missed.
func (a *Appointment) IsUpcoming() bool {
	if !a.Schedule.Start().After(time.Now().UTC()) {
		return false
	}
	return a.Status == StatusScheduled || a.Status == StatusConfirmed
}

// CanBeModified reports whether rescheduling-style changes are still allowed.
func (a *Appointment) CanBeModified() bool {
	return a.Status == StatusScheduled || a.Status == StatusConfirmed
}
