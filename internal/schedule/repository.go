package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrScheduleNotFound    = errors.New("no active schedule for provider")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrScheduleConflict    = errors.New("provider already has a default active schedule")
	ErrAppointmentOverlap  = errors.New("appointment overlaps an existing booking")
)

// ScheduleRepository is the source of truth for schedules and their
// weekly entries, breaks and exceptions. No caching at this layer.
type ScheduleRepository interface {
	// GetActiveSchedule returns the provider's default active schedule
	// with all nested collections loaded.
	GetActiveSchedule(ctx context.Context, providerID uuid.UUID) (*Schedule, error)
	GetSchedule(ctx context.Context, id uuid.UUID) (*Schedule, error)

	// CreateSchedule and UpdateSchedule enforce the one default-active
	// schedule per provider invariant and fail with ErrScheduleConflict.
	CreateSchedule(ctx context.Context, s *Schedule) error
	UpdateSchedule(ctx context.Context, s *Schedule) error
	DeleteSchedule(ctx context.Context, id uuid.UUID) error

	UpsertException(ctx context.Context, ex *ScheduleException) error
	DeleteException(ctx context.Context, id uuid.UUID) error
	UpsertBreak(ctx context.Context, b *BreakPeriod) error
	DeleteBreak(ctx context.Context, id uuid.UUID) error
}

// AppointmentRepository gives the engine read access to bookings and the
// booking orchestrator its atomic commit primitive.
type AppointmentRepository interface {
	// ListForProvider returns non-cancelled appointments whose interval
	// intersects [from, to), ascending by start time. An appointment
	// starting before from but ending inside the window is included.
	ListForProvider(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CreateIfNoOverlap inserts the appointment only if no non-cancelled
	// appointment for the same provider overlaps its interval. The check
	// and insert happen in one transaction with the provider's rows in
	// the window locked, so two concurrent calls cannot both succeed.
	CreateIfNoOverlap(ctx context.Context, a *Appointment) error

	// UpdateStatus transitions id from one status to another, failing
	// with ErrAppointmentNotFound if the row is absent or not in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	// FindStalePast returns blocking appointments whose end time passed
	// before the cutoff, for the autoclose worker.
	FindStalePast(ctx context.Context, cutoff time.Time) ([]Appointment, error)
}
