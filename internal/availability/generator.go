package availability

import (
	"errors"
	"time"

	"github.com/carebridge/telehealth-scheduling/internal/schedule"
)

var ErrInvalidRange = errors.New("invalid date range or slot duration")

const dateLayout = "2006-01-02"

// Generate computes the bookable slots for every calendar date in
// [from, to] (inclusive, civil dates in the schedule's timezone). It is
// pure: identical inputs produce identical output, and nothing is
// written anywhere.
//
// Days that resolve to "not available" (weekday marked unavailable, day
// off exception, no weekly entry, malformed wall-clock data) yield an
// empty slot list for that day, not an error.
func Generate(sched *schedule.Schedule, appointments []schedule.Appointment, from, to time.Time, slotMinutes int, now time.Time) ([]DaySlots, error) {
	if slotMinutes <= 0 {
		return nil, ErrInvalidRange
	}

	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	first := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	last := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	if first.After(last) {
		return nil, ErrInvalidRange
	}

	loc, locErr := sched.Location()

	step := time.Duration(slotMinutes) * time.Minute
	var result []DaySlots

	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		day := DaySlots{Date: d.Format(dateLayout)}

		// An unresolvable timezone poisons every day's wall-clock
		// conversion; degrade to empty days instead of failing the call.
		if locErr == nil {
			day.Slots = generateDay(sched, appointments, d, loc, step, now)
		}
		result = append(result, day)
	}

	return result, nil
}

func generateDay(sched *schedule.Schedule, appointments []schedule.Appointment, date time.Time, loc *time.Location, step time.Duration, now time.Time) []TimeSlot {
	startMin, endMin, ok := effectiveWindow(sched, date)
	if !ok {
		return nil
	}

	y, m, d := date.Date()
	dayStart := time.Date(y, m, d, startMin/60, startMin%60, 0, 0, loc)
	dayEnd := time.Date(y, m, d, endMin/60, endMin%60, 0, 0, loc)

	breaks := dayBreaks(sched, date, loc)

	var slots []TimeSlot
	for s := dayStart; !s.Add(step).After(dayEnd); s = s.Add(step) {
		e := s.Add(step)
		slot := TimeSlot{Start: s, End: e, Available: true}

		switch {
		case overlapsAny(breaks, s, e):
			slot.Available = false
			slot.Reason = ReasonBreak
		case overlapsAppointment(appointments, s, e):
			slot.Available = false
			slot.Reason = ReasonBooked
		case s.Before(now):
			slot.Available = false
			slot.Reason = ReasonPast
		}

		slots = append(slots, slot)
	}

	return slots
}

// effectiveWindow resolves the working interval for a date as minutes
// since midnight. Exceptions take precedence over the weekly pattern.
func effectiveWindow(sched *schedule.Schedule, date time.Time) (startMin, endMin int, ok bool) {
	if ex := sched.ExceptionFor(date); ex != nil {
		if ex.Type == schedule.ExceptionDayOff {
			return 0, 0, false
		}
		return parseWindow(ex.StartTime, ex.EndTime)
	}

	w := sched.WeeklyFor(date.Weekday())
	if w == nil || !w.IsAvailable {
		return 0, 0, false
	}
	return parseWindow(w.StartTime, w.EndTime)
}

func parseWindow(start, end string) (int, int, bool) {
	s, err := schedule.ParseWallClock(start)
	if err != nil {
		return 0, 0, false
	}
	e, err := schedule.ParseWallClock(end)
	if err != nil {
		return 0, 0, false
	}
	if e <= s {
		return 0, 0, false
	}
	return s, e, true
}

type interval struct {
	start, end time.Time
}

// dayBreaks converts the recurring breaks applicable to a date into
// instants. Breaks outside working hours are inert anyway because no
// slot is generated there.
func dayBreaks(sched *schedule.Schedule, date time.Time, loc *time.Location) []interval {
	y, m, d := date.Date()
	var out []interval
	for i := range sched.Breaks {
		b := &sched.Breaks[i]
		if !b.IsRecurring || b.DayOfWeek != date.Weekday() {
			continue
		}
		s, e, ok := parseWindow(b.StartTime, b.EndTime)
		if !ok {
			continue
		}
		out = append(out, interval{
			start: time.Date(y, m, d, s/60, s%60, 0, 0, loc),
			end:   time.Date(y, m, d, e/60, e%60, 0, 0, loc),
		})
	}
	return out
}

// overlapsAny uses half-open intersection: touching endpoints do not
// conflict.
func overlapsAny(intervals []interval, start, end time.Time) bool {
	for _, iv := range intervals {
		if start.Before(iv.end) && iv.start.Before(end) {
			return true
		}
	}
	return false
}

func overlapsAppointment(appointments []schedule.Appointment, start, end time.Time) bool {
	for i := range appointments {
		a := &appointments[i]
		if !a.Status.Blocking() {
			continue
		}
		if a.Overlaps(start, end) {
			return true
		}
	}
	return false
}
