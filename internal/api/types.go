package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-scheduling/internal/appointment"
)

type CreateAppointmentRequest struct {
	PatientID      string    `json:"patient_id"`
	PractitionerID string    `json:"practitioner_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Type           string    `json:"type"`
	Reason         string    `json:"reason,omitempty"`
}

type CompleteAppointmentRequest struct {
	Notes string `json:"notes,omitempty"`
}

type SetVideoRoomRequest struct {
	VideoRoomURL string `json:"video_room_url"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	TenantID        string    `json:"tenant_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	PractitionerID  uuid.UUID `json:"practitioner_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Type            string    `json:"type"`
	Status          string    `json:"status"`
	Reason          string    `json:"reason,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	VideoRoomURL    string    `json:"video_room_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		TenantID:        a.Tenant.String(),
		PatientID:       a.PatientID,
		PractitionerID:  a.PractitionerID,
		StartTime:       a.Schedule.Start(),
		EndTime:         a.Schedule.End(),
		DurationMinutes: a.DurationMinutes(),
		Type:            string(a.Type),
		Status:          string(a.Status),
		Reason:          a.Reason,
		Notes:           a.Notes,
		VideoRoomURL:    a.VideoRoomURL,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

type AppointmentListResponse struct {
	Items  []AppointmentResponse `json:"items"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type AvailabilityResponse struct {
	PractitionerID uuid.UUID `json:"practitioner_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Available      bool      `json:"available"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
