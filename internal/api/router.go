package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/carewellhq/hospital-scheduling/internal/appointment"
	"github.com/carewellhq/hospital-scheduling/internal/request"
	"github.com/carewellhq/hospital-scheduling/internal/resolution"
	"github.com/carewellhq/hospital-scheduling/internal/schedule"
)

type RouterConfig struct {
	Grid     *schedule.Grid
	Ledger   *request.Ledger
	Repo     appointment.Repository
	Resolver *resolution.Service
	Log      *logrus.Logger
	Metrics  *Metrics
	DataDir  string
	PgPool   *pgxpool.Pool // nil for the CSV backend
	Redis    *redis.Client // nil for in-process locking
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(MetricsMiddleware(cfg.Metrics))

	health := NewHealthHandler(cfg.DataDir, cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	// Appointment requests
	r.Post("/requests", submitRequestHandler(cfg.Ledger, cfg.Grid))
	r.Get("/requests/{id}", getRequestHandler(cfg.Ledger))
	r.Post("/requests/{id}/accept", acceptRequestHandler(cfg.Resolver))
	r.Post("/requests/{id}/decline", declineRequestHandler(cfg.Resolver))

	// Doctor schedule grid
	r.Get("/doctors/{doctorID}/requests", listPendingRequestsHandler(cfg.Ledger))
	r.Get("/doctors/{doctorID}/schedule", availableSlotsHandler(cfg.Grid))
	r.Get("/doctors/{doctorID}/schedule/upcoming", upcomingSlotsHandler(cfg.Grid))
	r.Post("/doctors/{doctorID}/schedule/slots", addSlotHandler(cfg.Grid))
	r.Post("/doctors/{doctorID}/schedule/block", blockSlotHandler(cfg.Grid))
	r.Post("/doctors/{doctorID}/schedule/unblock", unblockSlotHandler(cfg.Grid))

	// Appointment records
	r.Get("/appointments", listAppointmentsHandler(cfg.Repo))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Repo))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Resolver))
	r.Post("/appointments/{id}/outcome", recordOutcomeHandler(cfg.Resolver))

	// Admin
	r.Post("/admin/sweep", sweepRequestsHandler(cfg.Resolver))

	return r
}
