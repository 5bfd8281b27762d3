package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/telehealth-scheduling/internal/schedule"
)

type ConflictType string

const (
	ConflictOutsideHours ConflictType = "outside_hours"
	ConflictBreak        ConflictType = "break"
	ConflictAppointment  ConflictType = "appointment"
	ConflictBuffer       ConflictType = "buffer_violation"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

type ConflictDetail struct {
	Type             ConflictType
	Severity         Severity
	Message          string
	ConflictingID    *uuid.UUID
	ConflictingTitle *string
	ConflictingStart *time.Time
	ConflictingEnd   *time.Time
}

// ConflictCheckResult is a verdict, not an error: hard conflicts set
// Valid=false, warnings alone leave it true. Callers must check Valid
// before committing a booking.
type ConflictCheckResult struct {
	Valid       bool
	Conflicts   []ConflictDetail
	Warnings    []ConflictDetail
	Suggestions []TimeSlot
}

type CheckOptions struct {
	PatientID            *uuid.UUID
	ExcludeAppointmentID *uuid.UUID
}

// BufferPolicy is the minimum required gap between consecutive
// appointments. Zero minutes disables the rule. When Mandatory is set a
// violation is a hard conflict instead of a warning.
type BufferPolicy struct {
	Minutes   int
	Mandatory bool
}

const suggestionWindowDays = 3

// Detector evaluates proposed bookings against fresh store data. It is
// read-only and safe for concurrent use; the transactional insert in
// the booking path is the actual double-booking guarantee.
type Detector struct {
	schedules    schedule.ScheduleRepository
	appointments schedule.AppointmentRepository
	clock        Clock
	buffer       BufferPolicy
}

func NewDetector(schedules schedule.ScheduleRepository, appointments schedule.AppointmentRepository, clock Clock, buffer BufferPolicy) *Detector {
	return &Detector{
		schedules:    schedules,
		appointments: appointments,
		clock:        clock,
		buffer:       buffer,
	}
}

func (d *Detector) CheckConflict(ctx context.Context, providerID uuid.UUID, start time.Time, durationMinutes int, opts CheckOptions) (*ConflictCheckResult, error) {
	if durationMinutes <= 0 {
		return nil, ErrInvalidRange
	}

	sched, err := d.schedules.GetActiveSchedule(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load active schedule: %w", err)
	}

	loc, err := sched.Location()
	if err != nil {
		return nil, err
	}

	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	localStart := start.In(loc)
	date := localStart

	// One fetch covers the proposed day, buffer neighbors and the
	// suggestion window.
	y, m, dd := date.Date()
	windowFrom := time.Date(y, m, dd, 0, 0, 0, 0, loc).AddDate(0, 0, -suggestionWindowDays)
	windowTo := time.Date(y, m, dd, 0, 0, 0, 0, loc).AddDate(0, 0, suggestionWindowDays+1)
	appointments, err := d.appointments.ListForProvider(ctx, providerID, windowFrom, windowTo)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}

	result := &ConflictCheckResult{}

	d.checkWorkingHours(result, sched, date, loc, start, end)
	d.checkBreaks(result, sched, date, loc, start, end)
	d.checkAppointments(result, appointments, opts, start, end)
	d.checkBuffer(result, appointments, opts, start, end)
	d.checkSamePatientDay(result, appointments, opts, loc, localStart)

	result.Valid = len(result.Conflicts) == 0
	if !result.Valid {
		result.Suggestions = d.suggest(sched, appointments, date, start, durationMinutes)
	}

	return result, nil
}

func (d *Detector) checkWorkingHours(result *ConflictCheckResult, sched *schedule.Schedule, date time.Time, loc *time.Location, start, end time.Time) {
	startMin, endMin, ok := effectiveWindow(sched, date.In(loc))
	if !ok {
		result.Conflicts = append(result.Conflicts, ConflictDetail{
			Type:     ConflictOutsideHours,
			Severity: SeverityError,
			Message:  "provider is not available on this date",
		})
		return
	}

	y, m, dd := date.In(loc).Date()
	dayStart := time.Date(y, m, dd, startMin/60, startMin%60, 0, 0, loc)
	dayEnd := time.Date(y, m, dd, endMin/60, endMin%60, 0, 0, loc)

	if start.Before(dayStart) || end.After(dayEnd) {
		result.Conflicts = append(result.Conflicts, ConflictDetail{
			Type:     ConflictOutsideHours,
			Severity: SeverityError,
			Message: fmt.Sprintf("requested time is outside working hours (%s-%s)",
				dayStart.Format("15:04"), dayEnd.Format("15:04")),
		})
	}
}

func (d *Detector) checkBreaks(result *ConflictCheckResult, sched *schedule.Schedule, date time.Time, loc *time.Location, start, end time.Time) {
	for _, iv := range dayBreaks(sched, date.In(loc), loc) {
		if start.Before(iv.end) && iv.start.Before(end) {
			result.Conflicts = append(result.Conflicts, ConflictDetail{
				Type:     ConflictBreak,
				Severity: SeverityError,
				Message: fmt.Sprintf("requested time overlaps a break (%s-%s)",
					iv.start.Format("15:04"), iv.end.Format("15:04")),
			})
			return
		}
	}
}

func (d *Detector) checkAppointments(result *ConflictCheckResult, appointments []schedule.Appointment, opts CheckOptions, start, end time.Time) {
	for i := range appointments {
		a := &appointments[i]
		if excluded(a, opts) || !a.Status.Blocking() {
			continue
		}
		if a.Overlaps(start, end) {
			id := a.ID
			apptStart := a.StartTime
			apptEnd := a.EndTime()
			result.Conflicts = append(result.Conflicts, ConflictDetail{
				Type:             ConflictAppointment,
				Severity:         SeverityError,
				Message:          "requested time overlaps an existing appointment",
				ConflictingID:    &id,
				ConflictingTitle: a.Title,
				ConflictingStart: &apptStart,
				ConflictingEnd:   &apptEnd,
			})
		}
	}
}

func (d *Detector) checkBuffer(result *ConflictCheckResult, appointments []schedule.Appointment, opts CheckOptions, start, end time.Time) {
	if d.buffer.Minutes <= 0 {
		return
	}
	required := time.Duration(d.buffer.Minutes) * time.Minute

	for i := range appointments {
		a := &appointments[i]
		if excluded(a, opts) || !a.Status.Blocking() || a.Overlaps(start, end) {
			continue
		}

		var gap time.Duration
		switch {
		case !a.EndTime().After(start):
			gap = start.Sub(a.EndTime())
		case !end.After(a.StartTime):
			gap = a.StartTime.Sub(end)
		default:
			continue
		}
		if gap >= required {
			continue
		}

		severity := SeverityWarning
		if d.buffer.Mandatory {
			severity = SeverityError
		}
		id := a.ID
		detail := ConflictDetail{
			Type:     ConflictBuffer,
			Severity: severity,
			Message: fmt.Sprintf("only %d minutes to the neighboring appointment, %d required",
				int(gap.Minutes()), d.buffer.Minutes),
			ConflictingID: &id,
		}
		if d.buffer.Mandatory {
			result.Conflicts = append(result.Conflicts, detail)
		} else {
			result.Warnings = append(result.Warnings, detail)
		}
	}
}

// Same-patient same-day double booking is a soft warning: a patient may
// legitimately have two different consultation types in one day.
func (d *Detector) checkSamePatientDay(result *ConflictCheckResult, appointments []schedule.Appointment, opts CheckOptions, loc *time.Location, localStart time.Time) {
	if opts.PatientID == nil {
		return
	}
	y, m, dd := localStart.Date()

	for i := range appointments {
		a := &appointments[i]
		if excluded(a, opts) || !a.Status.Blocking() || a.PatientID != *opts.PatientID {
			continue
		}
		ay, am, ad := a.StartTime.In(loc).Date()
		if ay == y && am == m && ad == dd {
			id := a.ID
			apptStart := a.StartTime
			result.Warnings = append(result.Warnings, ConflictDetail{
				Type:             ConflictAppointment,
				Severity:         SeverityWarning,
				Message:          "patient already has an appointment with this provider on the same day",
				ConflictingID:    &id,
				ConflictingStart: &apptStart,
			})
			return
		}
	}
}

// suggest re-runs slot generation over a window around the proposed
// date and returns up to 3 open same-duration slots, nearest first by
// absolute distance, earlier slot winning ties.
func (d *Detector) suggest(sched *schedule.Schedule, appointments []schedule.Appointment, date, proposed time.Time, durationMinutes int) []TimeSlot {
	from := date.AddDate(0, 0, -suggestionWindowDays)
	to := date.AddDate(0, 0, suggestionWindowDays)

	days, err := Generate(sched, appointments, from, to, durationMinutes, d.clock.Now())
	if err != nil {
		return nil
	}

	var open []TimeSlot
	for _, day := range days {
		for _, slot := range day.Slots {
			if slot.Available {
				open = append(open, slot)
			}
		}
	}

	sort.SliceStable(open, func(i, j int) bool {
		di := absDuration(open[i].Start.Sub(proposed))
		dj := absDuration(open[j].Start.Sub(proposed))
		if di != dj {
			return di < dj
		}
		return open[i].Start.Before(open[j].Start)
	})

	if len(open) > 3 {
		open = open[:3]
	}
	return open
}

func excluded(a *schedule.Appointment, opts CheckOptions) bool {
	return opts.ExcludeAppointmentID != nil && a.ID == *opts.ExcludeAppointmentID
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
