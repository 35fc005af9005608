package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinic-scheduling/internal/appointment"
)

type RouterConfig struct {
	Service  *appointment.Service
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Registry *prometheus.Registry
	Logger   zerolog.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health and metrics stay outside the tenant requirement.
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)

		r.Post("/appointments", createAppointmentHandler(cfg.Service))
		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))

		r.Post("/appointments/{id}/confirm", transitionHandler(func(req *http.Request, tenant appointment.TenantID, id uuid.UUID) (*appointment.Appointment, error) {
			return cfg.Service.Confirm(req.Context(), tenant, id)
		}))
		r.Post("/appointments/{id}/start", transitionHandler(func(req *http.Request, tenant appointment.TenantID, id uuid.UUID) (*appointment.Appointment, error) {
			return cfg.Service.Start(req.Context(), tenant, id)
		}))
		r.Post("/appointments/{id}/cancel", transitionHandler(func(req *http.Request, tenant appointment.TenantID, id uuid.UUID) (*appointment.Appointment, error) {
			return cfg.Service.Cancel(req.Context(), tenant, id)
		}))
		r.Post("/appointments/{id}/no-show", transitionHandler(func(req *http.Request, tenant appointment.TenantID, id uuid.UUID) (*appointment.Appointment, error) {
			return cfg.Service.MarkNoShow(req.Context(), tenant, id)
		}))
		r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Service))
		r.Put("/appointments/{id}/video-room", setVideoRoomHandler(cfg.Service))

		r.Get("/availability", checkAvailabilityHandler(cfg.Service))
	})

	return r
}
