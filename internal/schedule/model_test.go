package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParseWallClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:00", 540, false},
		{"09:30", 570, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"", 0, true},
		{"nine", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseWallClock(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseWallClock(%q): expected error, got %d", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseWallClock(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseWallClock(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestAppointmentOverlaps(t *testing.T) {
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	appt := Appointment{StartTime: base, DurationMinutes: 30}

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  bool
	}{
		{"identical interval", base, base.Add(30 * time.Minute), true},
		{"contained", base.Add(10 * time.Minute), base.Add(20 * time.Minute), true},
		{"partial front", base.Add(-10 * time.Minute), base.Add(10 * time.Minute), true},
		{"partial back", base.Add(20 * time.Minute), base.Add(40 * time.Minute), true},
		{"touching before", base.Add(-30 * time.Minute), base, false},
		{"touching after", base.Add(30 * time.Minute), base.Add(60 * time.Minute), false},
		{"well before", base.Add(-2 * time.Hour), base.Add(-time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := appt.Overlaps(tt.start, tt.end); got != tt.want {
				t.Errorf("Overlaps(%s, %s) = %v, want %v", tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestStatusBlocking(t *testing.T) {
	blocking := []AppointmentStatus{StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted}
	for _, s := range blocking {
		if !s.Blocking() {
			t.Errorf("%s should block", s)
		}
	}
	if StatusCancelled.Blocking() {
		t.Error("cancelled should not block")
	}
}

func TestWeeklyFor(t *testing.T) {
	s := Schedule{
		Weekly: []WeeklyAvailability{
			{DayOfWeek: time.Monday, IsAvailable: true, StartTime: "09:00", EndTime: "17:00"},
			{DayOfWeek: time.Tuesday, IsAvailable: false},
		},
	}

	if w := s.WeeklyFor(time.Monday); w == nil || w.StartTime != "09:00" {
		t.Errorf("WeeklyFor(Monday) = %+v, want 09:00 entry", w)
	}
	if w := s.WeeklyFor(time.Wednesday); w != nil {
		t.Errorf("WeeklyFor(Wednesday) = %+v, want nil", w)
	}
}

func TestExceptionFor(t *testing.T) {
	day := time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)
	s := Schedule{
		Exceptions: []ScheduleException{
			{ID: uuid.New(), Date: day, Type: ExceptionDayOff},
		},
	}

	// Match is by calendar day regardless of time component.
	if ex := s.ExceptionFor(day.Add(14 * time.Hour)); ex == nil || ex.Type != ExceptionDayOff {
		t.Errorf("ExceptionFor(same day, afternoon) = %+v, want day_off", ex)
	}
	if ex := s.ExceptionFor(day.AddDate(0, 0, 1)); ex != nil {
		t.Errorf("ExceptionFor(next day) = %+v, want nil", ex)
	}
}
