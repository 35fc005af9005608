package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicore/clinic-scheduling/internal/appointment"
)

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := tenantFrom(w, r)
		if !ok {
			return
		}

		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		practitionerID, err := uuid.Parse(req.PractitionerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}

		appt, err := svc.Create(r.Context(), appointment.CreateParams{
			Tenant:         tenant,
			PatientID:      patientID,
			PractitionerID: practitionerID,
			Start:          req.StartTime,
			End:            req.EndTime,
			Type:           appointment.Type(req.Type),
			Reason:         req.Reason,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := tenantFrom(w, r)
		if !ok {
			return
		}
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), tenant, id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := tenantFrom(w, r)
		if !ok {
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		var (
			appts []*appointment.Appointment
			err   error
		)
		switch {
		case r.URL.Query().Get("patient_id") != "":
			patientID, perr := uuid.Parse(r.URL.Query().Get("patient_id"))
			if perr != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			appts, err = svc.ListByPatient(r.Context(), tenant, patientID, limit, offset)
		case r.URL.Query().Get("practitioner_id") != "":
			practitionerID, perr := uuid.Parse(r.URL.Query().Get("practitioner_id"))
			if perr != nil {
				writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
				return
			}
			appts, err = svc.ListByPractitioner(r.Context(), tenant, practitionerID, limit, offset)
		default:
			writeError(w, http.StatusBadRequest, "missing_filter", "patient_id or practitioner_id query parameter is required")
			return
		}
		if err != nil {
			handleServiceError(w, err)
			return
		}

		items := make([]AppointmentResponse, 0, len(appts))
		for _, a := range appts {
			items = append(items, toAppointmentResponse(a))
		}
		writeJSON(w, http.StatusOK, AppointmentListResponse{Items: items, Limit: limit, Offset: offset})
	}
}

func transitionHandler(apply func(*http.Request, appointment.TenantID, uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := tenantFrom(w, r)
		if !ok {
			return
		}
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := apply(r, tenant, id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func completeAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return transitionHandler(func(r *http.Request, tenant appointment.TenantID, id uuid.UUID) (*appointment.Appointment, error) {
		var req CompleteAppointmentRequest
		if r.Body != nil && r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				return nil, &appointment.ValidationError{Field: "body", Reason: "could not parse JSON"}
			}
		}
		return svc.Complete(r.Context(), tenant, id, req.Notes)
	})
}

func setVideoRoomHandler(svc *appointment.Service) http.HandlerFunc {
	return transitionHandler(func(r *http.Request, tenant appointment.TenantID, id uuid.UUID) (*appointment.Appointment, error) {
		var req SetVideoRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, &appointment.ValidationError{Field: "body", Reason: "could not parse JSON"}
		}
		return svc.SetVideoRoom(r.Context(), tenant, id, req.VideoRoomURL)
	})
}

func checkAvailabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := tenantFrom(w, r)
		if !ok {
			return
		}

		practitionerID, err := uuid.Parse(r.URL.Query().Get("practitioner_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}

		start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start_time"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be RFC 3339")
			return
		}
		end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end_time"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_time", "end_time must be RFC 3339")
			return
		}

		available, err := svc.CheckAvailability(r.Context(), tenant, practitionerID, start, end)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			PractitionerID: practitionerID,
			StartTime:      start,
			EndTime:        end,
			Available:      available,
		})
	}
}

func tenantFrom(w http.ResponseWriter, r *http.Request) (appointment.TenantID, bool) {
	tenant, err := appointment.NewTenantID(rawTenant(r.Context()))
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_tenant", TenantHeader+" header is required")
		return appointment.TenantID{}, false
	}
	return tenant, true
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleServiceError(w http.ResponseWriter, err error) {
	var (
		validation *appointment.ValidationError
		badRange   *appointment.InvalidRangeError
		rule       *appointment.RuleViolationError
		conflict   *appointment.ConflictError
	)
	switch {
	case errors.As(err, &badRange):
		writeError(w, http.StatusBadRequest, "invalid_time_range", err.Error())
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, appointment.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, "appointment_conflict", err.Error())
	case errors.Is(err, appointment.ErrPractitionerBusy):
		writeError(w, http.StatusConflict, "practitioner_busy", err.Error())
	case errors.As(err, &rule):
		writeError(w, http.StatusConflict, "business_rule_violation", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
