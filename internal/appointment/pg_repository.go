package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinic-scheduling/internal/outbox"
)

// PgRepository persists appointments in Postgres. Create serializes against
// concurrent bookings for the same (tenant, practitioner) with an advisory
// transaction lock and re-checks for overlap before inserting; the partial
// exclusion constraint on the table is the backstop if anything bypasses
// this path.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// exclusionViolation is the Postgres error code raised by the overlap
// exclusion constraint.
const exclusionViolation = "23P01"

// appointmentRow is the persisted shape of an Appointment. Optional text
// fields are pointers so empty values round-trip as NULL.
type appointmentRow struct {
	TenantID       string
	ID             uuid.UUID
	PatientID      uuid.UUID
	PractitionerID uuid.UUID
	StartTime      time.Time
	EndTime        time.Time
	Type           string
	Status         string
	Reason         *string
	Notes          *string
	VideoRoomURL   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func rowFromAppointment(a *Appointment) appointmentRow {
	return appointmentRow{
		TenantID:       a.Tenant.String(),
		ID:             a.ID,
		PatientID:      a.PatientID,
		PractitionerID: a.PractitionerID,
		StartTime:      a.Schedule.Start(),
		EndTime:        a.Schedule.End(),
		Type:           string(a.Type),
		Status:         string(a.Status),
		Reason:         nullableText(a.Reason),
		Notes:          nullableText(a.Notes),
		VideoRoomURL:   nullableText(a.VideoRoomURL),
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func (r appointmentRow) toAppointment() (*Appointment, error) {
	tenant, err := NewTenantID(r.TenantID)
	if err != nil {
		return nil, fmt.Errorf("stored appointment %s: %w", r.ID, err)
	}
	schedule, err := NewTimeRange(r.StartTime, r.EndTime)
	if err != nil {
		return nil, fmt.Errorf("stored appointment %s: %w", r.ID, err)
	}
	return &Appointment{
		ID:             r.ID,
		Tenant:         tenant,
		PatientID:      r.PatientID,
		PractitionerID: r.PractitionerID,
		Schedule:       schedule,
		Type:           Type(r.Type),
		Status:         Status(r.Status),
		Reason:         textValue(r.Reason),
		Notes:          textValue(r.Notes),
		VideoRoomURL:   textValue(r.VideoRoomURL),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}, nil
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func textValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

const appointmentColumns = `tenant_id, id, patient_id, practitioner_id, start_time, end_time,
	type, status, reason, notes, video_room_url, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var r appointmentRow
	err := row.Scan(
		&r.TenantID,
		&r.ID,
		&r.PatientID,
		&r.PractitionerID,
		&r.StartTime,
		&r.EndTime,
		&r.Type,
		&r.Status,
		&r.Reason,
		&r.Notes,
		&r.VideoRoomURL,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r.toAppointment()
}

func (p *PgRepository) Create(ctx context.Context, a *Appointment, ev *outbox.Event) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serialize concurrent creates for the same practitioner within the
	// tenant; released automatically at commit/rollback.
	lockKey := a.Tenant.String() + ":" + a.PractitionerID.String()
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		return fmt.Errorf("acquire practitioner tx lock: %w", err)
	}

	// Re-check under the lock: a conflicting appointment may have committed
	// between the caller's conflict check and this transaction.
	var conflictID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id
		FROM appointments
		WHERE tenant_id = $1
		  AND practitioner_id = $2
		  AND status IN ('scheduled', 'confirmed', 'in_progress')
		  AND start_time < $4
		  AND end_time > $3
		LIMIT 1
	`, a.Tenant.String(), a.PractitionerID, a.Schedule.Start(), a.Schedule.End()).Scan(&conflictID)
	if err == nil {
		return ErrConflictOnWrite
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("recheck conflicts: %w", err)
	}

	r := rowFromAppointment(a)
	_, err = tx.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, r.TenantID, r.ID, r.PatientID, r.PractitionerID, r.StartTime, r.EndTime,
		r.Type, r.Status, r.Reason, r.Notes, r.VideoRoomURL, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
			return ErrConflictOnWrite
		}
		return fmt.Errorf("insert appointment: %w", err)
	}

	if ev != nil {
		if err := insertEvent(ctx, tx, ev); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create tx: %w", err)
	}
	return nil
}

func (p *PgRepository) GetByID(ctx context.Context, tenant TenantID, id uuid.UUID) (*Appointment, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1 AND id = $2
	`, tenant.String(), id)
	return scanAppointment(row)
}

func (p *PgRepository) Update(ctx context.Context, a *Appointment, ev *outbox.Event) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update tx: %w", err)
	}
	defer tx.Rollback(ctx)

	r := rowFromAppointment(a)
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $3,
		    notes = $4,
		    video_room_url = $5,
		    updated_at = $6
		WHERE tenant_id = $1 AND id = $2
	`, r.TenantID, r.ID, r.Status, r.Notes, r.VideoRoomURL, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if ev != nil {
		if err := insertEvent(ctx, tx, ev); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update tx: %w", err)
	}
	return nil
}

func (p *PgRepository) FindActiveForPractitioner(ctx context.Context, tenant TenantID, practitionerID, excludeID uuid.UUID) ([]*Appointment, error) {
	// excludeID may be uuid.Nil: no stored row carries the zero uuid, so the
	// inequality then filters nothing.
	rows, err := p.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1
		  AND practitioner_id = $2
		  AND status IN ('scheduled', 'confirmed', 'in_progress')
		  AND id <> $3
		ORDER BY start_time
	`, tenant.String(), practitionerID, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (p *PgRepository) ListByPatient(ctx context.Context, tenant TenantID, patientID uuid.UUID, limit, offset int) ([]*Appointment, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1 AND patient_id = $2
		ORDER BY start_time DESC
		LIMIT $3 OFFSET $4
	`, tenant.String(), patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (p *PgRepository) ListByPractitioner(ctx context.Context, tenant TenantID, practitionerID uuid.UUID, limit, offset int) ([]*Appointment, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1 AND practitioner_id = $2
		ORDER BY start_time DESC
		LIMIT $3 OFFSET $4
	`, tenant.String(), practitionerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]*Appointment, error) {
	var result []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, ev *outbox.Event) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (id, event_type, tenant_id, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ev.ID, ev.Type, ev.TenantID, ev.AppointmentID, ev.Payload, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}
