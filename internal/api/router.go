package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/telehealth-booking/internal/appointment"
	"github.com/hackgods/telehealth-booking/internal/auth"
	"github.com/hackgods/telehealth-booking/internal/availability"
	"github.com/hackgods/telehealth-booking/internal/metrics"
	"github.com/hackgods/telehealth-booking/internal/status"
)

type AppointmentService interface {
	CreateForPatient(ctx context.Context, actor auth.Actor, in appointment.CreateAppointmentInput) (*appointment.Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, actor auth.Actor, in appointment.UpdateStatusInput) (*appointment.Appointment, error)
	CancelAppointment(ctx context.Context, id uuid.UUID, actor auth.Actor, reason string) (*appointment.CancelResult, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID, actor auth.Actor) error
	EraseAppointment(ctx context.Context, id uuid.UUID, actor auth.Actor) error

	GetOne(ctx context.Context, id uuid.UUID, actor auth.Actor) (*appointment.AppointmentDetail, error)
	GetUpcoming(ctx context.Context, actor auth.Actor, limit int) ([]appointment.AppointmentDetail, error)
	GetPast(ctx context.Context, actor auth.Actor, limit int) ([]appointment.AppointmentDetail, error)
	GetCancelled(ctx context.Context, actor auth.Actor, limit int) ([]appointment.AppointmentDetail, error)
	GetAll(ctx context.Context, actor auth.Actor, page, limit int, order string) (*appointment.Page, error)
	GetByDateRange(ctx context.Context, actor auth.Actor, from, to time.Time) ([]appointment.AppointmentDetail, error)
	List(ctx context.Context, actor auth.Actor, f appointment.ListFilter) ([]appointment.AppointmentDetail, error)

	AddNote(ctx context.Context, appointmentID uuid.UUID, actor auth.Actor, content string) (*appointment.Note, error)
	ListNotes(ctx context.Context, appointmentID uuid.UUID, actor auth.Actor) ([]appointment.Note, error)
	DeleteNote(ctx context.Context, appointmentID, noteID uuid.UUID, actor auth.Actor) error
}

type AvailabilityService interface {
	CreateSlot(ctx context.Context, actor auth.Actor, in availability.CreateSlotInput) (*availability.Slot, error)
	ListSlots(ctx context.Context, doctorID uuid.UUID, from, to *time.Time) ([]availability.Slot, error)
	DeleteSlot(ctx context.Context, actor auth.Actor, slotID uuid.UUID) error
}

type StatusCatalog interface {
	All(ctx context.Context) ([]status.Status, error)
}

type RouterConfig struct {
	Appointments AppointmentService
	Availability AvailabilityService
	Statuses     StatusCatalog
	Verifier     TokenVerifier
	Health       *HealthHandler
	Metrics      *metrics.Collector
	// MetricsHandler serves /metrics; nil disables the endpoint.
	MetricsHandler http.Handler
	Log            *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	log := cfg.Log

	r.Use(RequestIDMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(log))
	r.Use(MetricsMiddleware(cfg.Metrics))

	// Health endpoints
	r.Get("/health/live", cfg.Health.Liveness)
	r.Get("/health/ready", cfg.Health.Readiness)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Verifier))

		r.Get("/appointment-statuses", listStatusesHandler(cfg.Statuses, log))

		r.Route("/appointments", func(r chi.Router) {
			svc := cfg.Appointments

			r.Post("/", createAppointmentHandler(svc, log))
			r.Get("/", listAppointmentsHandler(svc, log))
			r.Get("/upcoming", limitedListHandler(svc, log, "upcoming"))
			r.Get("/past", limitedListHandler(svc, log, "past"))
			r.Get("/cancelled", limitedListHandler(svc, log, "cancelled"))
			r.Get("/all", allAppointmentsHandler(svc, log))
			r.Get("/range", rangeAppointmentsHandler(svc, log))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", getAppointmentHandler(svc, log))
				r.Patch("/status", updateStatusHandler(svc, log))
				r.Patch("/cancel", cancelAppointmentHandler(svc, log))
				r.Delete("/", deleteAppointmentHandler(svc, log))
				r.Delete("/erase", eraseAppointmentHandler(svc, log))

				r.Post("/notes", addNoteHandler(svc, log))
				r.Get("/notes", listNotesHandler(svc, log))
				r.Delete("/notes/{noteId}", deleteNoteHandler(svc, log))
			})
		})

		r.Post("/doctors/me/availability", createSlotHandler(cfg.Availability, log))
		r.Get("/doctors/{id}/availability", listSlotsHandler(cfg.Availability, log))
		r.Delete("/availability/{slotId}", deleteSlotHandler(cfg.Availability, log))
	})

	return r
}
