package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/carebridge/telehealth-scheduling/internal/availability"
	"github.com/carebridge/telehealth-scheduling/internal/booking"
	"github.com/carebridge/telehealth-scheduling/internal/schedule"
)

// AvailabilityReader is the cached read path for calendar browsing.
type AvailabilityReader interface {
	Get(ctx context.Context, providerID uuid.UUID, from, to time.Time, slotMinutes int) ([]availability.DaySlots, error)
}

// ConflictChecker always reads fresh store data; it backs the booking
// commit path and must never be served from the cache.
type ConflictChecker interface {
	CheckConflict(ctx context.Context, providerID uuid.UUID, start time.Time, durationMinutes int, opts availability.CheckOptions) (*availability.ConflictCheckResult, error)
}

type CacheControl interface {
	Invalidate(providerID uuid.UUID)
	InvalidateAll()
}

type RouterConfig struct {
	Availability AvailabilityReader
	Detector     ConflictChecker
	Booking      *booking.Service
	Schedules    schedule.ScheduleRepository
	Cache        CacheControl

	DefaultSlotMinutes int

	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Availability
	r.Get("/providers/{id}/availability", getAvailabilityHandler(cfg.Availability, cfg.DefaultSlotMinutes))
	r.Post("/providers/{id}/conflict-check", conflictCheckHandler(cfg.Detector))

	// Schedule management
	r.Get("/providers/{id}/schedule", getScheduleHandler(cfg.Schedules))
	r.Put("/providers/{id}/schedule", replaceScheduleHandler(cfg.Booking, cfg.Schedules))
	r.Put("/providers/{id}/schedule/exceptions", upsertExceptionHandler(cfg.Booking, cfg.Schedules))
	r.Delete("/providers/{id}/schedule/exceptions/{exceptionID}", deleteExceptionHandler(cfg.Booking))
	r.Put("/providers/{id}/schedule/breaks", upsertBreakHandler(cfg.Booking, cfg.Schedules))
	r.Delete("/providers/{id}/schedule/breaks/{breakID}", deleteBreakHandler(cfg.Booking))

	// Appointments
	r.Post("/appointments", bookAppointmentHandler(cfg.Booking))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Booking))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Booking))
	r.Post("/appointments/{id}/status", transitionAppointmentHandler(cfg.Booking))

	// Cache administration
	r.Post("/internal/cache/invalidate/{id}", invalidateCacheHandler(cfg.Cache))
	r.Post("/internal/cache/flush", flushCacheHandler(cfg.Cache))

	return r
}
