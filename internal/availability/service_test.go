package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/telehealth-scheduling/internal/schedule"
)

func TestServiceGetAvailability(t *testing.T) {
	sched := testSchedule("UTC")
	existing := schedule.Appointment{
		ID:              uuid.New(),
		ProviderID:      sched.ProviderID,
		StartTime:       time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
		Status:          schedule.StatusScheduled,
	}
	svc := NewService(
		&stubScheduleRepo{sched: sched},
		&stubAppointmentRepo{appointments: []schedule.Appointment{existing}},
		FixedClock(farPast),
	)

	from := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	days, err := svc.GetAvailability(context.Background(), sched.ProviderID, from, from.AddDate(0, 0, 2), 30)
	if err != nil {
		t.Fatalf("GetAvailability: %v", err)
	}
	if len(days) != 3 {
		t.Fatalf("got %d days, want 3", len(days))
	}
	if days[0].Slots[0].Reason != ReasonBooked {
		t.Errorf("09:00 slot reason = %q, want booked", days[0].Slots[0].Reason)
	}
}

func TestServiceGetAvailabilityNoSchedule(t *testing.T) {
	svc := NewService(&stubScheduleRepo{}, &stubAppointmentRepo{}, FixedClock(farPast))

	from := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	_, err := svc.GetAvailability(context.Background(), uuid.New(), from, from, 30)
	if !errors.Is(err, schedule.ErrScheduleNotFound) {
		t.Errorf("err = %v, want ErrScheduleNotFound", err)
	}
}

func TestServiceGetAvailabilityInvalidSlotMinutes(t *testing.T) {
	sched := testSchedule("UTC")
	svc := NewService(&stubScheduleRepo{sched: sched}, &stubAppointmentRepo{}, FixedClock(farPast))

	from := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	_, err := svc.GetAvailability(context.Background(), sched.ProviderID, from, from, 0)
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("err = %v, want ErrInvalidRange", err)
	}
}
