package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/clinic-scheduling/internal/appointment"
	"github.com/clinicore/clinic-scheduling/internal/metrics"
	"github.com/clinicore/clinic-scheduling/internal/outbox"
)

// stubRepository keeps appointments in a map so handler tests run without
// Postgres.
type stubRepository struct {
	appointments map[string]*appointment.Appointment
}

func newStubRepository() *stubRepository {
	return &stubRepository{appointments: make(map[string]*appointment.Appointment)}
}

func (s *stubRepository) key(tenant appointment.TenantID, id uuid.UUID) string {
	return tenant.String() + "/" + id.String()
}

func (s *stubRepository) Create(ctx context.Context, a *appointment.Appointment, ev *outbox.Event) error {
	clone := *a
	s.appointments[s.key(a.Tenant, a.ID)] = &clone
	return nil
}

func (s *stubRepository) GetByID(ctx context.Context, tenant appointment.TenantID, id uuid.UUID) (*appointment.Appointment, error) {
	a, ok := s.appointments[s.key(tenant, id)]
	if !ok {
		return nil, appointment.ErrNotFound
	}
	clone := *a
	return &clone, nil
}

func (s *stubRepository) Update(ctx context.Context, a *appointment.Appointment, ev *outbox.Event) error {
	k := s.key(a.Tenant, a.ID)
	if _, ok := s.appointments[k]; !ok {
		return appointment.ErrNotFound
	}
	clone := *a
	s.appointments[k] = &clone
	return nil
}

func (s *stubRepository) FindActiveForPractitioner(ctx context.Context, tenant appointment.TenantID, practitionerID, excludeID uuid.UUID) ([]*appointment.Appointment, error) {
	var result []*appointment.Appointment
	for _, a := range s.appointments {
		if a.Tenant != tenant || a.PractitionerID != practitionerID {
			continue
		}
		if !a.Status.IsActive() || a.ID == excludeID {
			continue
		}
		clone := *a
		result = append(result, &clone)
	}
	return result, nil
}

func (s *stubRepository) ListByPatient(ctx context.Context, tenant appointment.TenantID, patientID uuid.UUID, limit, offset int) ([]*appointment.Appointment, error) {
	var result []*appointment.Appointment
	for _, a := range s.appointments {
		if a.Tenant == tenant && a.PatientID == patientID {
			clone := *a
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (s *stubRepository) ListByPractitioner(ctx context.Context, tenant appointment.TenantID, practitionerID uuid.UUID, limit, offset int) ([]*appointment.Appointment, error) {
	var result []*appointment.Appointment
	for _, a := range s.appointments {
		if a.Tenant == tenant && a.PractitionerID == practitionerID {
			clone := *a
			result = append(result, &clone)
		}
	}
	return result, nil
}

type inlineLocker struct{}

func (inlineLocker) WithPractitionerLock(ctx context.Context, tenant string, practitionerID uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mets := metrics.NewCollector(prometheus.NewRegistry())
	svc := appointment.NewService(newStubRepository(), inlineLocker{}, mets, zerolog.Nop())

	router := NewRouter(RouterConfig{
		Service: svc,
		Logger:  zerolog.Nop(),
		Env:     "test",
		Version: "test",
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, method, url, tenant string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if tenant != "" {
		req.Header.Set(TenantHeader, tenant)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func createRequest(practitionerID uuid.UUID, start time.Time) CreateAppointmentRequest {
	return CreateAppointmentRequest{
		PatientID:      uuid.NewString(),
		PractitionerID: practitionerID.String(),
		StartTime:      start,
		EndTime:        start.Add(30 * time.Minute),
		Type:           "in_person",
		Reason:         "Annual checkup",
	}
}

func TestCreateAppointmentEndpoint(t *testing.T) {
	srv := newTestServer(t)
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Minute)
	practitionerID := uuid.New()

	t.Run("creates and returns 201", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodPost, srv.URL+"/appointments", "clinic-a", createRequest(practitionerID, start))
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

		var got AppointmentResponse
		require.NoError(t, json.Unmarshal(body, &got))
		assert.NotEqual(t, uuid.Nil, got.ID)
		assert.Equal(t, "clinic-a", got.TenantID)
		assert.Equal(t, "scheduled", got.Status)
		assert.Equal(t, 30, got.DurationMinutes)
	})

	t.Run("overlap returns 409", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodPost, srv.URL+"/appointments", "clinic-a",
			createRequest(practitionerID, start.Add(15*time.Minute)))
		require.Equal(t, http.StatusConflict, resp.StatusCode)

		var errResp ErrorResponse
		require.NoError(t, json.Unmarshal(body, &errResp))
		assert.Equal(t, "appointment_conflict", errResp.Error)
	})

	t.Run("same window for another tenant succeeds", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodPost, srv.URL+"/appointments", "clinic-b", createRequest(practitionerID, start))
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	})

	t.Run("missing tenant header returns 400", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodPost, srv.URL+"/appointments", "", createRequest(uuid.New(), start))
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var errResp ErrorResponse
		require.NoError(t, json.Unmarshal(body, &errResp))
		assert.Equal(t, "missing_tenant", errResp.Error)
	})

	t.Run("inverted range returns 400", func(t *testing.T) {
		req := createRequest(uuid.New(), start)
		req.EndTime = req.StartTime
		resp, body := doRequest(t, http.MethodPost, srv.URL+"/appointments", "clinic-a", req)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var errResp ErrorResponse
		require.NoError(t, json.Unmarshal(body, &errResp))
		assert.Equal(t, "invalid_time_range", errResp.Error)
	})

	t.Run("past start returns 409", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodPost, srv.URL+"/appointments", "clinic-a",
			createRequest(uuid.New(), time.Now().UTC().Add(-2*time.Hour)))
		require.Equal(t, http.StatusConflict, resp.StatusCode)

		var errResp ErrorResponse
		require.NoError(t, json.Unmarshal(body, &errResp))
		assert.Equal(t, "business_rule_violation", errResp.Error)
	})

	t.Run("malformed uuid returns 400", func(t *testing.T) {
		req := createRequest(uuid.New(), start)
		req.PatientID = "not-a-uuid"
		resp, _ := doRequest(t, http.MethodPost, srv.URL+"/appointments", "clinic-a", req)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestTransitionEndpoints(t *testing.T) {
	srv := newTestServer(t)
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Minute)

	create := func(t *testing.T) AppointmentResponse {
		t.Helper()
		resp, body := doRequest(t, http.MethodPost, srv.URL+"/appointments", "clinic-a", createRequest(uuid.New(), start))
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
		var got AppointmentResponse
		require.NoError(t, json.Unmarshal(body, &got))
		return got
	}

	t.Run("confirm then complete lifecycle", func(t *testing.T) {
		appt := create(t)
		base := fmt.Sprintf("%s/appointments/%s", srv.URL, appt.ID)

		resp, body := doRequest(t, http.MethodPost, base+"/confirm", "clinic-a", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

		resp, _ = doRequest(t, http.MethodPost, base+"/start", "clinic-a", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body = doRequest(t, http.MethodPost, base+"/complete", "clinic-a",
			CompleteAppointmentRequest{Notes: "All clear"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got AppointmentResponse
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "completed", got.Status)
		assert.Equal(t, "All clear", got.Notes)
	})

	t.Run("illegal transition returns 409", func(t *testing.T) {
		appt := create(t)
		base := fmt.Sprintf("%s/appointments/%s", srv.URL, appt.ID)

		resp, _ := doRequest(t, http.MethodPost, base+"/cancel", "clinic-a", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body := doRequest(t, http.MethodPost, base+"/confirm", "clinic-a", nil)
		require.Equal(t, http.StatusConflict, resp.StatusCode)

		var errResp ErrorResponse
		require.NoError(t, json.Unmarshal(body, &errResp))
		assert.Equal(t, "business_rule_violation", errResp.Error)
	})

	t.Run("unknown id returns 404", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodPost,
			fmt.Sprintf("%s/appointments/%s/confirm", srv.URL, uuid.New()), "clinic-a", nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("cross-tenant access returns 404", func(t *testing.T) {
		appt := create(t)
		resp, _ := doRequest(t, http.MethodGet,
			fmt.Sprintf("%s/appointments/%s", srv.URL, appt.ID), "clinic-b", nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestAvailabilityEndpoint(t *testing.T) {
	srv := newTestServer(t)
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Minute)
	practitionerID := uuid.New()

	resp, body := doRequest(t, http.MethodPost, srv.URL+"/appointments", "clinic-a", createRequest(practitionerID, start))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	query := func(s, e time.Time) AvailabilityResponse {
		t.Helper()
		url := fmt.Sprintf("%s/availability?practitioner_id=%s&start_time=%s&end_time=%s",
			srv.URL, practitionerID,
			s.Format(time.RFC3339), e.Format(time.RFC3339))
		resp, body := doRequest(t, http.MethodGet, url, "clinic-a", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
		var got AvailabilityResponse
		require.NoError(t, json.Unmarshal(body, &got))
		return got
	}

	assert.False(t, query(start, start.Add(30*time.Minute)).Available)
	assert.True(t, query(start.Add(30*time.Minute), start.Add(time.Hour)).Available)

	t.Run("missing window returns 400", func(t *testing.T) {
		url := fmt.Sprintf("%s/availability?practitioner_id=%s", srv.URL, practitionerID)
		resp, _ := doRequest(t, http.MethodGet, url, "clinic-a", nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestListEndpoint(t *testing.T) {
	srv := newTestServer(t)
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Minute)
	practitionerID := uuid.New()

	for i := 0; i < 3; i++ {
		resp, body := doRequest(t, http.MethodPost, srv.URL+"/appointments", "clinic-a",
			createRequest(practitionerID, start.Add(time.Duration(i)*time.Hour)))
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	}

	t.Run("by practitioner", func(t *testing.T) {
		url := fmt.Sprintf("%s/appointments?practitioner_id=%s", srv.URL, practitionerID)
		resp, body := doRequest(t, http.MethodGet, url, "clinic-a", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got AppointmentListResponse
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Len(t, got.Items, 3)
	})

	t.Run("other tenant sees nothing", func(t *testing.T) {
		url := fmt.Sprintf("%s/appointments?practitioner_id=%s", srv.URL, practitionerID)
		resp, body := doRequest(t, http.MethodGet, url, "clinic-b", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got AppointmentListResponse
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Empty(t, got.Items)
	})

	t.Run("no filter returns 400", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodGet, srv.URL+"/appointments", "clinic-a", nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestSetVideoRoomEndpoint(t *testing.T) {
	srv := newTestServer(t)
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Minute)

	req := createRequest(uuid.New(), start)
	req.Type = "video_call"
	resp, body := doRequest(t, http.MethodPost, srv.URL+"/appointments", "clinic-a", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var appt AppointmentResponse
	require.NoError(t, json.Unmarshal(body, &appt))

	url := fmt.Sprintf("%s/appointments/%s/video-room", srv.URL, appt.ID)
	resp, body = doRequest(t, http.MethodPut, url, "clinic-a",
		SetVideoRoomRequest{VideoRoomURL: "https://meet.example.com/r/abc"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var got AppointmentResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "https://meet.example.com/r/abc", got.VideoRoomURL)

	t.Run("rejected for in-person appointment", func(t *testing.T) {
		inPerson := createRequest(uuid.New(), start)
		resp, body := doRequest(t, http.MethodPost, srv.URL+"/appointments", "clinic-a", inPerson)
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
		var created AppointmentResponse
		require.NoError(t, json.Unmarshal(body, &created))

		url := fmt.Sprintf("%s/appointments/%s/video-room", srv.URL, created.ID)
		resp, _ = doRequest(t, http.MethodPut, url, "clinic-a",
			SetVideoRoomRequest{VideoRoomURL: "https://meet.example.com/r/xyz"})
		require.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}
