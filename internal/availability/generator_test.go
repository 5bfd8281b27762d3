package availability

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/telehealth-scheduling/internal/schedule"
)

func testSchedule(tz string) *schedule.Schedule {
	s := &schedule.Schedule{
		ID:         uuid.New(),
		ProviderID: uuid.New(),
		Timezone:   tz,
		IsDefault:  true,
		IsActive:   true,
	}
	for day := time.Monday; day <= time.Friday; day++ {
		s.Weekly = append(s.Weekly, schedule.WeeklyAvailability{
			ID:          uuid.New(),
			DayOfWeek:   day,
			IsAvailable: true,
			StartTime:   "09:00",
			EndTime:     "17:00",
		})
		s.Breaks = append(s.Breaks, schedule.BreakPeriod{
			ID:          uuid.New(),
			DayOfWeek:   day,
			IsRecurring: true,
			StartTime:   "12:00",
			EndTime:     "13:00",
		})
	}
	return s
}

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

// dayFor returns the generated slots for one date out of a single-day range.
func dayFor(t *testing.T, sched *schedule.Schedule, appointments []schedule.Appointment, date time.Time, slotMinutes int, now time.Time) DaySlots {
	t.Helper()
	days, err := Generate(sched, appointments, date, date, slotMinutes, now)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("expected 1 day, got %d", len(days))
	}
	return days[0]
}

var farPast = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func TestGenerateWeekday(t *testing.T) {
	sched := testSchedule("America/New_York")
	loc := mustLoc(t, "America/New_York")

	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	day := dayFor(t, sched, nil, monday, 30, farPast)

	if day.Date != "2025-06-02" {
		t.Fatalf("date = %s, want 2025-06-02", day.Date)
	}
	// 09:00-17:00 in 30 minute steps is 16 slots.
	if len(day.Slots) != 16 {
		t.Fatalf("got %d slots, want 16", len(day.Slots))
	}

	first := day.Slots[0]
	wantStart := time.Date(2025, 6, 2, 9, 0, 0, 0, loc)
	if !first.Start.Equal(wantStart) {
		t.Errorf("first slot starts %s, want %s", first.Start, wantStart)
	}

	last := day.Slots[len(day.Slots)-1]
	wantEnd := time.Date(2025, 6, 2, 17, 0, 0, 0, loc)
	if !last.End.Equal(wantEnd) {
		t.Errorf("last slot ends %s, want %s", last.End, wantEnd)
	}

	// Lunch break 12:00-13:00 blocks exactly two slots.
	var breakCount int
	for _, slot := range day.Slots {
		if slot.Reason == ReasonBreak {
			breakCount++
			if slot.Available {
				t.Errorf("break slot %s marked available", slot.Start)
			}
		}
	}
	if breakCount != 2 {
		t.Errorf("got %d break slots, want 2", breakCount)
	}
}

func TestGenerateWeekend(t *testing.T) {
	sched := testSchedule("America/New_York")
	sunday := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	day := dayFor(t, sched, nil, sunday, 30, farPast)
	if len(day.Slots) != 0 {
		t.Errorf("sunday has %d slots, want 0", len(day.Slots))
	}
}

func TestGenerateBookedSlots(t *testing.T) {
	sched := testSchedule("America/New_York")
	loc := mustLoc(t, "America/New_York")
	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	appointments := []schedule.Appointment{
		{
			ID:              uuid.New(),
			StartTime:       time.Date(2025, 6, 2, 10, 0, 0, 0, loc),
			DurationMinutes: 60,
			Status:          schedule.StatusScheduled,
		},
		{
			// Cancelled bookings never block.
			ID:              uuid.New(),
			StartTime:       time.Date(2025, 6, 2, 15, 0, 0, 0, loc),
			DurationMinutes: 30,
			Status:          schedule.StatusCancelled,
		},
	}

	day := dayFor(t, sched, appointments, monday, 30, farPast)

	for _, slot := range day.Slots {
		local := slot.Start.In(loc)
		h, m := local.Hour(), local.Minute()
		booked := (h == 10 && m == 0) || (h == 10 && m == 30)
		if booked && slot.Reason != ReasonBooked {
			t.Errorf("slot %02d:%02d reason = %q, want booked", h, m, slot.Reason)
		}
		if h == 15 && m == 0 && !slot.Available {
			t.Errorf("slot 15:00 should be open, cancelled appointment must not block")
		}
	}
}

func TestGenerateTouchingAppointmentDoesNotBlock(t *testing.T) {
	sched := testSchedule("America/New_York")
	loc := mustLoc(t, "America/New_York")
	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	// Ends exactly at 11:00; the 11:00 slot must stay open.
	appointments := []schedule.Appointment{
		{
			ID:              uuid.New(),
			StartTime:       time.Date(2025, 6, 2, 10, 0, 0, 0, loc),
			DurationMinutes: 60,
			Status:          schedule.StatusConfirmed,
		},
	}

	day := dayFor(t, sched, appointments, monday, 30, farPast)
	for _, slot := range day.Slots {
		local := slot.Start.In(loc)
		if local.Hour() == 11 && local.Minute() == 0 {
			if !slot.Available {
				t.Errorf("11:00 slot blocked by appointment ending at 11:00")
			}
			return
		}
	}
	t.Fatal("11:00 slot not found")
}

func TestGeneratePastSlots(t *testing.T) {
	sched := testSchedule("America/New_York")
	loc := mustLoc(t, "America/New_York")
	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	now := time.Date(2025, 6, 2, 12, 15, 0, 0, loc)
	day := dayFor(t, sched, nil, monday, 30, now)

	for _, slot := range day.Slots {
		past := slot.Start.Before(now)
		switch {
		case slot.Reason == ReasonBreak:
			// Break wins over past.
		case past && slot.Available:
			t.Errorf("past slot %s marked available", slot.Start.In(loc))
		case past && slot.Reason != ReasonPast:
			t.Errorf("past slot %s reason = %q", slot.Start.In(loc), slot.Reason)
		case !past && !slot.Available:
			t.Errorf("future slot %s marked unavailable (%s)", slot.Start.In(loc), slot.Reason)
		}
	}
}

func TestGenerateDayOffException(t *testing.T) {
	sched := testSchedule("America/New_York")
	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	sched.Exceptions = append(sched.Exceptions, schedule.ScheduleException{
		ID:   uuid.New(),
		Date: monday,
		Type: schedule.ExceptionDayOff,
	})

	day := dayFor(t, sched, nil, monday, 30, farPast)
	if len(day.Slots) != 0 {
		t.Errorf("day off yields %d slots, want 0", len(day.Slots))
	}
}

func TestGenerateModifiedHoursException(t *testing.T) {
	sched := testSchedule("America/New_York")
	loc := mustLoc(t, "America/New_York")
	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	sched.Exceptions = append(sched.Exceptions, schedule.ScheduleException{
		ID:        uuid.New(),
		Date:      monday,
		Type:      schedule.ExceptionModifiedHours,
		StartTime: "10:00",
		EndTime:   "14:00",
	})

	day := dayFor(t, sched, nil, monday, 60, farPast)
	if len(day.Slots) != 4 {
		t.Fatalf("modified hours yield %d slots, want 4", len(day.Slots))
	}
	wantStart := time.Date(2025, 6, 2, 10, 0, 0, 0, loc)
	if !day.Slots[0].Start.Equal(wantStart) {
		t.Errorf("first slot starts %s, want %s", day.Slots[0].Start, wantStart)
	}
}

func TestGenerateExtraAvailabilityOnWeekend(t *testing.T) {
	sched := testSchedule("America/New_York")
	sunday := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	sched.Exceptions = append(sched.Exceptions, schedule.ScheduleException{
		ID:        uuid.New(),
		Date:      sunday,
		Type:      schedule.ExceptionExtraAvailability,
		StartTime: "10:00",
		EndTime:   "12:00",
	})

	day := dayFor(t, sched, nil, sunday, 30, farPast)
	if len(day.Slots) != 4 {
		t.Errorf("extra availability yields %d slots, want 4", len(day.Slots))
	}
}

func TestGenerateDSTSpringForward(t *testing.T) {
	sched := testSchedule("America/New_York")
	loc := mustLoc(t, "America/New_York")

	// US spring forward: 2025-03-09 02:00 local does not exist. Open
	// the weekend around the transition and confirm wall-clock
	// alignment survives on both sides.
	saturday := time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)
	for d := saturday; !d.After(saturday.AddDate(0, 0, 1)); d = d.AddDate(0, 0, 1) {
		sched.Exceptions = append(sched.Exceptions, schedule.ScheduleException{
			ID:        uuid.New(),
			Date:      d,
			Type:      schedule.ExceptionExtraAvailability,
			StartTime: "09:00",
			EndTime:   "17:00",
		})
	}

	days, err := Generate(sched, nil, saturday, saturday.AddDate(0, 0, 1), 30, farPast)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("got %d days, want 2", len(days))
	}

	for _, day := range days {
		if len(day.Slots) != 16 {
			t.Errorf("%s has %d slots, want 16 regardless of DST", day.Date, len(day.Slots))
		}
		for _, slot := range day.Slots {
			local := slot.Start.In(loc)
			if local.Hour() < 9 || local.Hour() >= 17 {
				t.Errorf("%s slot at local %02d:%02d outside working hours", day.Date, local.Hour(), local.Minute())
			}
		}
	}

	// Saturday 09:00 EST to Sunday 09:00 EDT is only 23 real hours.
	gap := days[1].Slots[0].Start.Sub(days[0].Slots[0].Start)
	if gap != 23*time.Hour {
		t.Errorf("expected 23h between 09:00 starts across spring forward, got %s", gap)
	}
}

func TestGenerateInvalidInput(t *testing.T) {
	sched := testSchedule("UTC")
	from := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	if _, err := Generate(sched, nil, from, from.AddDate(0, 0, -1), 30, farPast); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("reversed range: err = %v, want ErrInvalidRange", err)
	}
	if _, err := Generate(sched, nil, from, from, 0, farPast); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("zero slot minutes: err = %v, want ErrInvalidRange", err)
	}
	if _, err := Generate(sched, nil, from, from, -15, farPast); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("negative slot minutes: err = %v, want ErrInvalidRange", err)
	}
}

func TestGenerateBadTimezoneDegrades(t *testing.T) {
	sched := testSchedule("Mars/Olympus_Mons")
	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	days, err := Generate(sched, nil, monday, monday.AddDate(0, 0, 2), 30, farPast)
	if err != nil {
		t.Fatalf("bad timezone should degrade, got error: %v", err)
	}
	if len(days) != 3 {
		t.Fatalf("got %d days, want 3", len(days))
	}
	for _, day := range days {
		if len(day.Slots) != 0 {
			t.Errorf("%s has %d slots, want 0 with unresolvable timezone", day.Date, len(day.Slots))
		}
	}
}

func TestGenerateMalformedWallClockDegrades(t *testing.T) {
	sched := testSchedule("UTC")
	for i := range sched.Weekly {
		sched.Weekly[i].StartTime = "not-a-time"
	}
	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	day := dayFor(t, sched, nil, monday, 30, farPast)
	if len(day.Slots) != 0 {
		t.Errorf("malformed wall clock yields %d slots, want 0", len(day.Slots))
	}
}

func TestGenerateDeterministic(t *testing.T) {
	sched := testSchedule("Europe/London")
	loc := mustLoc(t, "Europe/London")
	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	appointments := []schedule.Appointment{
		{
			ID:              uuid.New(),
			StartTime:       time.Date(2025, 6, 2, 9, 30, 0, 0, loc),
			DurationMinutes: 30,
			Status:          schedule.StatusScheduled,
		},
	}

	a, err := Generate(sched, appointments, monday, monday.AddDate(0, 0, 6), 30, farPast)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := Generate(sched, appointments, monday, monday.AddDate(0, 0, 6), 30, farPast)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("identical inputs produced different output")
	}
}
