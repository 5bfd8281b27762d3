package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/carebridge/telehealth-scheduling/internal/availability"
	"github.com/carebridge/telehealth-scheduling/internal/booking"
	"github.com/carebridge/telehealth-scheduling/internal/cache"
	redisclient "github.com/carebridge/telehealth-scheduling/internal/redis"
	"github.com/carebridge/telehealth-scheduling/internal/schedule"
)

const dateLayout = "2006-01-02"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func parseProviderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func getAvailabilityHandler(reader AvailabilityReader, defaultSlotMinutes int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseProviderID(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()
		from, err := time.Parse(dateLayout, q.Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
			return
		}
		to, err := time.Parse(dateLayout, q.Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
			return
		}

		slotMinutes := defaultSlotMinutes
		if v := q.Get("slot_minutes"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_slot_minutes", "slot_minutes must be an integer")
				return
			}
			slotMinutes = n
		}

		days, err := reader.Get(r.Context(), providerID, from, to, slotMinutes)
		if err != nil {
			handleAvailabilityError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toDaySlotsResponse(days))
	}
}

func conflictCheckHandler(detector ConflictChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseProviderID(w, r)
		if !ok {
			return
		}

		var req ConflictCheckRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		opts := availability.CheckOptions{}
		if req.PatientID != nil {
			pid, err := uuid.Parse(*req.PatientID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			opts.PatientID = &pid
		}
		if req.ExcludeAppointmentID != nil {
			aid, err := uuid.Parse(*req.ExcludeAppointmentID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_exclude_appointment_id", "exclude_appointment_id must be a valid UUID")
				return
			}
			opts.ExcludeAppointmentID = &aid
		}

		verdict, err := detector.CheckConflict(r.Context(), providerID, req.Start, req.DurationMinutes, opts)
		if err != nil {
			handleAvailabilityError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toConflictCheckResponse(verdict))
	}
}

func bookAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		appt, err := svc.Book(r.Context(), providerID, patientID, req.Start, req.DurationMinutes, req.Title)
		if err != nil {
			handleBookError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			if errors.Is(err, schedule.ErrAppointmentNotFound) {
				writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Cancel(r.Context(), id)
		if err != nil {
			handleTransitionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func transitionAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req StatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.Transition(r.Context(), id, schedule.AppointmentStatus(req.Status))
		if err != nil {
			handleTransitionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getScheduleHandler(schedules schedule.ScheduleRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseProviderID(w, r)
		if !ok {
			return
		}

		sched, err := schedules.GetActiveSchedule(r.Context(), providerID)
		if err != nil {
			if errors.Is(err, schedule.ErrScheduleNotFound) {
				writeError(w, http.StatusNotFound, "schedule_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, sched)
	}
}

func replaceScheduleHandler(svc *booking.Service, schedules schedule.ScheduleRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseProviderID(w, r)
		if !ok {
			return
		}

		var req ReplaceScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		sched, err := scheduleFromRequest(providerID, &req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_schedule", err.Error())
			return
		}

		// Replace the provider's current active schedule if one exists.
		if existing, err := schedules.GetActiveSchedule(r.Context(), providerID); err == nil {
			sched.ID = existing.ID
		}

		if err := svc.ReplaceSchedule(r.Context(), sched); err != nil {
			if errors.Is(err, schedule.ErrScheduleConflict) {
				writeError(w, http.StatusConflict, "schedule_conflict", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, sched)
	}
}

func upsertExceptionHandler(svc *booking.Service, schedules schedule.ScheduleRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseProviderID(w, r)
		if !ok {
			return
		}

		var req ExceptionEntryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		sched, err := schedules.GetActiveSchedule(r.Context(), providerID)
		if err != nil {
			writeError(w, http.StatusNotFound, "schedule_not_found", err.Error())
			return
		}

		ex := &schedule.ScheduleException{
			ScheduleID: sched.ID,
			Date:       date,
			Type:       schedule.ExceptionType(req.Type),
			StartTime:  req.StartTime,
			EndTime:    req.EndTime,
			Title:      req.Title,
			Notes:      req.Notes,
		}
		if err := svc.SaveException(r.Context(), providerID, ex); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, ex)
	}
}

func upsertBreakHandler(svc *booking.Service, schedules schedule.ScheduleRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseProviderID(w, r)
		if !ok {
			return
		}

		var req BreakEntryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		sched, err := schedules.GetActiveSchedule(r.Context(), providerID)
		if err != nil {
			writeError(w, http.StatusNotFound, "schedule_not_found", err.Error())
			return
		}

		b := &schedule.BreakPeriod{
			ScheduleID:  sched.ID,
			DayOfWeek:   time.Weekday(req.DayOfWeek),
			IsRecurring: req.IsRecurring,
			StartTime:   req.StartTime,
			EndTime:     req.EndTime,
			Title:       req.Title,
		}
		if err := svc.SaveBreak(r.Context(), providerID, b); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, b)
	}
}

func deleteExceptionHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseProviderID(w, r)
		if !ok {
			return
		}
		exceptionID, err := uuid.Parse(chi.URLParam(r, "exceptionID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_exception_id", "exceptionID must be a valid UUID")
			return
		}

		if err := svc.RemoveException(r.Context(), providerID, exceptionID); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteBreakHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseProviderID(w, r)
		if !ok {
			return
		}
		breakID, err := uuid.Parse(chi.URLParam(r, "breakID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_break_id", "breakID must be a valid UUID")
			return
		}

		if err := svc.RemoveBreak(r.Context(), providerID, breakID); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func invalidateCacheHandler(cc CacheControl) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseProviderID(w, r)
		if !ok {
			return
		}
		cc.Invalidate(providerID)
		w.WriteHeader(http.StatusNoContent)
	}
}

func flushCacheHandler(cc CacheControl) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cc.InvalidateAll()
		w.WriteHeader(http.StatusNoContent)
	}
}

func scheduleFromRequest(providerID uuid.UUID, req *ReplaceScheduleRequest) (*schedule.Schedule, error) {
	sched := &schedule.Schedule{
		ProviderID: providerID,
		Timezone:   req.Timezone,
		IsDefault:  req.IsDefault,
		IsActive:   req.IsActive,
	}
	seen := make(map[int]bool)
	for _, w := range req.Weekly {
		if w.DayOfWeek < 0 || w.DayOfWeek > 6 {
			return nil, fmt.Errorf("day_of_week %d out of range", w.DayOfWeek)
		}
		if seen[w.DayOfWeek] {
			return nil, fmt.Errorf("duplicate weekly entry for day_of_week %d", w.DayOfWeek)
		}
		seen[w.DayOfWeek] = true
		if w.IsAvailable {
			if _, err := schedule.ParseWallClock(w.StartTime); err != nil {
				return nil, err
			}
			if _, err := schedule.ParseWallClock(w.EndTime); err != nil {
				return nil, err
			}
		}
		sched.Weekly = append(sched.Weekly, schedule.WeeklyAvailability{
			DayOfWeek:   time.Weekday(w.DayOfWeek),
			IsAvailable: w.IsAvailable,
			StartTime:   w.StartTime,
			EndTime:     w.EndTime,
		})
	}
	for _, b := range req.Breaks {
		sched.Breaks = append(sched.Breaks, schedule.BreakPeriod{
			DayOfWeek:   time.Weekday(b.DayOfWeek),
			IsRecurring: b.IsRecurring,
			StartTime:   b.StartTime,
			EndTime:     b.EndTime,
			Title:       b.Title,
		})
	}
	for _, e := range req.Exceptions {
		date, err := time.Parse(dateLayout, e.Date)
		if err != nil {
			return nil, err
		}
		sched.Exceptions = append(sched.Exceptions, schedule.ScheduleException{
			Date:      date,
			Type:      schedule.ExceptionType(e.Type),
			StartTime: e.StartTime,
			EndTime:   e.EndTime,
			Title:     e.Title,
			Notes:     e.Notes,
		})
	}
	return sched, nil
}

func handleAvailabilityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, availability.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "invalid_range", err.Error())
	case errors.Is(err, schedule.ErrScheduleNotFound):
		writeError(w, http.StatusNotFound, "provider_not_bookable", err.Error())
	case errors.Is(err, cache.ErrAvailabilityUnavailable):
		writeError(w, http.StatusServiceUnavailable, "availability_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleBookError(w http.ResponseWriter, err error) {
	var conflict *booking.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "booking_conflict",
			Details: conflict.Error(),
			Verdict: toConflictCheckResponse(conflict.Result),
		})
	case errors.Is(err, schedule.ErrAppointmentOverlap):
		writeError(w, http.StatusConflict, "appointment_overlap", err.Error())
	case errors.Is(err, booking.ErrProviderBusy),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "provider_busy", "provider is being booked, please retry shortly")
	case errors.Is(err, schedule.ErrScheduleNotFound):
		writeError(w, http.StatusNotFound, "provider_not_bookable", err.Error())
	case errors.Is(err, availability.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "invalid_range", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
