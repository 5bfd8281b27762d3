package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
)

// Blocking reports whether an appointment in this status occupies its
// time window for conflict purposes. Cancelled rows are kept for audit
// but never block.
func (s AppointmentStatus) Blocking() bool {
	return s != StatusCancelled
}

type ExceptionType string

const (
	ExceptionDayOff            ExceptionType = "day_off"
	ExceptionModifiedHours     ExceptionType = "modified_hours"
	ExceptionExtraAvailability ExceptionType = "extra_availability"
)

type WeeklyAvailability struct {
	ID          uuid.UUID
	ScheduleID  uuid.UUID
	DayOfWeek   time.Weekday
	IsAvailable bool
	StartTime   string // "HH:MM" wall clock in the schedule's timezone
	EndTime     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type BreakPeriod struct {
	ID          uuid.UUID
	ScheduleID  uuid.UUID
	DayOfWeek   time.Weekday
	IsRecurring bool
	StartTime   string
	EndTime     string
	Title       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ScheduleException struct {
	ID         uuid.UUID
	ScheduleID uuid.UUID
	Date       time.Time // date only, midnight UTC
	Type       ExceptionType
	StartTime  string // used by modified_hours and extra_availability
	EndTime    string
	Title      *string
	Notes      *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Schedule struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	Timezone   string // IANA identifier, e.g. "America/New_York"
	IsDefault  bool
	IsActive   bool
	Weekly     []WeeklyAvailability
	Breaks     []BreakPeriod
	Exceptions []ScheduleException
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Location resolves the schedule's IANA timezone.
func (s *Schedule) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load schedule timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// WeeklyFor returns the weekly entry for a weekday, or nil if none exists.
func (s *Schedule) WeeklyFor(day time.Weekday) *WeeklyAvailability {
	for i := range s.Weekly {
		if s.Weekly[i].DayOfWeek == day {
			return &s.Weekly[i]
		}
	}
	return nil
}

// ExceptionFor returns the exception for a calendar date, or nil.
// Comparison is by calendar day, ignoring the time component.
func (s *Schedule) ExceptionFor(date time.Time) *ScheduleException {
	y, m, d := date.Date()
	for i := range s.Exceptions {
		ey, em, ed := s.Exceptions[i].Date.Date()
		if ey == y && em == m && ed == d {
			return &s.Exceptions[i]
		}
	}
	return nil
}

type Appointment struct {
	ID              uuid.UUID
	ProviderID      uuid.UUID
	PatientID       uuid.UUID
	StartTime       time.Time
	DurationMinutes int
	Status          AppointmentStatus
	Title           *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a *Appointment) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Overlaps reports half-open interval intersection with [start, end).
// Touching endpoints do not overlap.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return start.Before(a.EndTime()) && a.StartTime.Before(end)
}

// ParseWallClock parses an "HH:MM" string into minutes since midnight.
func ParseWallClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse wall clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("wall clock %q out of range", s)
	}
	return h*60 + m, nil
}
