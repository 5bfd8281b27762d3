package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/telehealth-scheduling/internal/availability"
	redisclient "github.com/carebridge/telehealth-scheduling/internal/redis"
	"github.com/carebridge/telehealth-scheduling/internal/schedule"
)

var (
	ErrProviderBusy            = errors.New("provider is being booked, please retry")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// ConflictError carries the full verdict so callers can surface the
// conflicts and suggested alternatives.
type ConflictError struct {
	Result *availability.ConflictCheckResult
}

func (e *ConflictError) Error() string {
	return "proposed time conflicts with the provider's schedule"
}

// Invalidator is the slice of the availability cache the orchestrator
// needs after a committed write.
type Invalidator interface {
	Invalidate(providerID uuid.UUID)
}

// Notifier is called strictly downstream of a successful commit.
// Delivery (email, push) lives elsewhere; failures never undo bookings.
type Notifier interface {
	AppointmentBooked(ctx context.Context, appt schedule.Appointment)
	AppointmentCancelled(ctx context.Context, appt schedule.Appointment)
}

// NopInvalidator is for processes that never serve availability reads,
// such as the autoclose worker.
type NopInvalidator struct{}

func (NopInvalidator) Invalidate(uuid.UUID) {}

type NopNotifier struct{}

func (NopNotifier) AppointmentBooked(context.Context, schedule.Appointment)    {}
func (NopNotifier) AppointmentCancelled(context.Context, schedule.Appointment) {}

var allowedTransitions = map[schedule.AppointmentStatus][]schedule.AppointmentStatus{
	schedule.StatusScheduled:  {schedule.StatusConfirmed, schedule.StatusInProgress, schedule.StatusCancelled},
	schedule.StatusConfirmed:  {schedule.StatusInProgress, schedule.StatusCompleted, schedule.StatusCancelled},
	schedule.StatusInProgress: {schedule.StatusCompleted},
}

func transitionAllowed(from, to schedule.AppointmentStatus) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Service is the booking orchestrator: the one component that writes
// appointments. The conflict check is advisory UX; the per-provider
// lock plus the conditional insert inside one transaction is what
// actually prevents double booking.
type Service struct {
	appointments schedule.AppointmentRepository
	schedules    schedule.ScheduleRepository
	detector     *availability.Detector
	locker       redisclient.Locker
	cache        Invalidator
	notifier     Notifier
}

func NewService(
	appointments schedule.AppointmentRepository,
	schedules schedule.ScheduleRepository,
	detector *availability.Detector,
	locker redisclient.Locker,
	cache Invalidator,
	notifier Notifier,
) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		appointments: appointments,
		schedules:    schedules,
		detector:     detector,
		locker:       locker,
		cache:        cache,
		notifier:     notifier,
	}
}

// Book validates the proposed interval and commits the appointment.
func (s *Service) Book(ctx context.Context, providerID, patientID uuid.UUID, start time.Time, durationMinutes int, title *string) (*schedule.Appointment, error) {
	verdict, err := s.detector.CheckConflict(ctx, providerID, start, durationMinutes, availability.CheckOptions{
		PatientID: &patientID,
	})
	if err != nil {
		return nil, err
	}
	if !verdict.Valid {
		return nil, &ConflictError{Result: verdict}
	}

	appt := &schedule.Appointment{
		ProviderID:      providerID,
		PatientID:       patientID,
		StartTime:       start,
		DurationMinutes: durationMinutes,
		Status:          schedule.StatusScheduled,
		Title:           title,
	}

	err = s.locker.WithProviderLock(ctx, providerID, func(lockCtx context.Context) error {
		return s.appointments.CreateIfNoOverlap(lockCtx, appt)
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrProviderBusy
		}
		return nil, err
	}

	s.cache.Invalidate(providerID)
	s.notifier.AppointmentBooked(ctx, *appt)

	return appt, nil
}

// Cancel moves an appointment to cancelled and frees its window.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*schedule.Appointment, error) {
	current, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !transitionAllowed(current.Status, schedule.StatusCancelled) {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.appointments.UpdateStatus(ctx, id, current.Status, schedule.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.cache.Invalidate(updated.ProviderID)
	s.notifier.AppointmentCancelled(ctx, *updated)

	return updated, nil
}

// Transition applies a lifecycle status change. Appointments are never
// deleted; the full history stays in the table.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to schedule.AppointmentStatus) (*schedule.Appointment, error) {
	current, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !transitionAllowed(current.Status, to) {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.appointments.UpdateStatus(ctx, id, current.Status, to)
	if err != nil {
		return nil, fmt.Errorf("transition appointment: %w", err)
	}

	// Only a cancellation opens up the window, but invalidating on
	// every transition keeps the cache rule simple.
	s.cache.Invalidate(updated.ProviderID)

	return updated, nil
}

// ReplaceSchedule saves a provider's schedule and drops their cached
// availability. Schedule edits go through here so the cache can never
// serve slots computed from the old schedule.
func (s *Service) ReplaceSchedule(ctx context.Context, sched *schedule.Schedule) error {
	var err error
	if sched.ID == uuid.Nil {
		err = s.schedules.CreateSchedule(ctx, sched)
	} else {
		err = s.schedules.UpdateSchedule(ctx, sched)
		if errors.Is(err, schedule.ErrScheduleNotFound) {
			err = s.schedules.CreateSchedule(ctx, sched)
		}
	}
	if err != nil {
		return err
	}

	s.cache.Invalidate(sched.ProviderID)
	return nil
}

// SaveException upserts a date override and invalidates the provider.
func (s *Service) SaveException(ctx context.Context, providerID uuid.UUID, ex *schedule.ScheduleException) error {
	if err := s.schedules.UpsertException(ctx, ex); err != nil {
		return err
	}
	s.cache.Invalidate(providerID)
	return nil
}

// SaveBreak upserts a break period and invalidates the provider.
func (s *Service) SaveBreak(ctx context.Context, providerID uuid.UUID, b *schedule.BreakPeriod) error {
	if err := s.schedules.UpsertBreak(ctx, b); err != nil {
		return err
	}
	s.cache.Invalidate(providerID)
	return nil
}

// RemoveException deletes a date override and invalidates the provider.
func (s *Service) RemoveException(ctx context.Context, providerID, exceptionID uuid.UUID) error {
	if err := s.schedules.DeleteException(ctx, exceptionID); err != nil {
		return err
	}
	s.cache.Invalidate(providerID)
	return nil
}

// RemoveBreak deletes a break period and invalidates the provider.
func (s *Service) RemoveBreak(ctx context.Context, providerID, breakID uuid.UUID) error {
	if err := s.schedules.DeleteBreak(ctx, breakID); err != nil {
		return err
	}
	s.cache.Invalidate(providerID)
	return nil
}

// AutoclosePastAppointments marks blocking appointments whose end time
// passed before the cutoff as completed. Called periodically by the
// autoclose worker.
func (s *Service) AutoclosePastAppointments(ctx context.Context, cutoff time.Time) error {
	stale, err := s.appointments.FindStalePast(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("find stale appointments: %w", err)
	}

	for _, appt := range stale {
		_, err := s.appointments.UpdateStatus(ctx, appt.ID, appt.Status, schedule.StatusCompleted)
		if err != nil && !errors.Is(err, schedule.ErrAppointmentNotFound) {
			log.Printf("failed to autoclose appointment %s: %v", appt.ID, err)
		}
	}

	return nil
}

// GetAppointment retrieves an appointment by id.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*schedule.Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}
