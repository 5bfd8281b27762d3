package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/telehealth-scheduling/internal/schedule"
)

// Service produces availability read models straight from the store.
// The cache layer sits in front of GetAvailability for browsing reads;
// conflict checks always come here for fresh data.
type Service struct {
	schedules    schedule.ScheduleRepository
	appointments schedule.AppointmentRepository
	clock        Clock
}

func NewService(schedules schedule.ScheduleRepository, appointments schedule.AppointmentRepository, clock Clock) *Service {
	return &Service{
		schedules:    schedules,
		appointments: appointments,
		clock:        clock,
	}
}

// GetAvailability generates the slot list for every date in [from, to].
func (s *Service) GetAvailability(ctx context.Context, providerID uuid.UUID, from, to time.Time, slotMinutes int) ([]DaySlots, error) {
	if slotMinutes <= 0 {
		return nil, ErrInvalidRange
	}

	sched, err := s.schedules.GetActiveSchedule(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load active schedule: %w", err)
	}

	loc, err := sched.Location()
	if err != nil {
		// Generate degrades to empty days for an unknown timezone; the
		// appointment window falls back to UTC so the call still works.
		loc = time.UTC
	}

	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	windowFrom := time.Date(fy, fm, fd, 0, 0, 0, 0, loc)
	windowTo := time.Date(ty, tm, td, 0, 0, 0, 0, loc).AddDate(0, 0, 1)

	appointments, err := s.appointments.ListForProvider(ctx, providerID, windowFrom, windowTo)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}

	return Generate(sched, appointments, from, to, slotMinutes, s.clock.Now())
}
