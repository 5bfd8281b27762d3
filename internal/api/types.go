package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/telehealth-scheduling/internal/availability"
	"github.com/carebridge/telehealth-scheduling/internal/schedule"
)

type SlotResponse struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
	Reason    string    `json:"reason,omitempty"`
}

type DaySlotsResponse struct {
	Date  string         `json:"date"`
	Slots []SlotResponse `json:"slots"`
}

func toDaySlotsResponse(days []availability.DaySlots) []DaySlotsResponse {
	out := make([]DaySlotsResponse, 0, len(days))
	for _, d := range days {
		day := DaySlotsResponse{Date: d.Date, Slots: make([]SlotResponse, 0, len(d.Slots))}
		for _, s := range d.Slots {
			day.Slots = append(day.Slots, toSlotResponse(s))
		}
		out = append(out, day)
	}
	return out
}

func toSlotResponse(s availability.TimeSlot) SlotResponse {
	return SlotResponse{
		Start:     s.Start,
		End:       s.End,
		Available: s.Available,
		Reason:    string(s.Reason),
	}
}

type ConflictCheckRequest struct {
	Start                time.Time `json:"start"`
	DurationMinutes      int       `json:"duration_minutes"`
	PatientID            *string   `json:"patient_id,omitempty"`
	ExcludeAppointmentID *string   `json:"exclude_appointment_id,omitempty"`
}

type ConflictDetailResponse struct {
	Type             string     `json:"type"`
	Severity         string     `json:"severity"`
	Message          string     `json:"message"`
	ConflictingID    *uuid.UUID `json:"conflicting_id,omitempty"`
	ConflictingTitle *string    `json:"conflicting_title,omitempty"`
	ConflictingStart *time.Time `json:"conflicting_start,omitempty"`
	ConflictingEnd   *time.Time `json:"conflicting_end,omitempty"`
}

type ConflictCheckResponse struct {
	Valid       bool                     `json:"valid"`
	Conflicts   []ConflictDetailResponse `json:"conflicts"`
	Warnings    []ConflictDetailResponse `json:"warnings"`
	Suggestions []SlotResponse           `json:"suggestions"`
}

func toConflictCheckResponse(r *availability.ConflictCheckResult) ConflictCheckResponse {
	resp := ConflictCheckResponse{
		Valid:       r.Valid,
		Conflicts:   make([]ConflictDetailResponse, 0, len(r.Conflicts)),
		Warnings:    make([]ConflictDetailResponse, 0, len(r.Warnings)),
		Suggestions: make([]SlotResponse, 0, len(r.Suggestions)),
	}
	for _, c := range r.Conflicts {
		resp.Conflicts = append(resp.Conflicts, toConflictDetailResponse(c))
	}
	for _, w := range r.Warnings {
		resp.Warnings = append(resp.Warnings, toConflictDetailResponse(w))
	}
	for _, s := range r.Suggestions {
		resp.Suggestions = append(resp.Suggestions, toSlotResponse(s))
	}
	return resp
}

func toConflictDetailResponse(d availability.ConflictDetail) ConflictDetailResponse {
	return ConflictDetailResponse{
		Type:             string(d.Type),
		Severity:         string(d.Severity),
		Message:          d.Message,
		ConflictingID:    d.ConflictingID,
		ConflictingTitle: d.ConflictingTitle,
		ConflictingStart: d.ConflictingStart,
		ConflictingEnd:   d.ConflictingEnd,
	}
}

type BookAppointmentRequest struct {
	ProviderID      string    `json:"provider_id"`
	PatientID       string    `json:"patient_id"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	Title           *string   `json:"title,omitempty"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	ProviderID      uuid.UUID `json:"provider_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
	Title           *string   `json:"title,omitempty"`
}

func toAppointmentResponse(a *schedule.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		ProviderID:      a.ProviderID,
		PatientID:       a.PatientID,
		Start:           a.StartTime,
		End:             a.EndTime(),
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		Title:           a.Title,
	}
}

type StatusRequest struct {
	Status string `json:"status"`
}

type WeeklyEntryRequest struct {
	DayOfWeek   int    `json:"day_of_week"` // 0=Sunday .. 6=Saturday
	IsAvailable bool   `json:"is_available"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

type BreakEntryRequest struct {
	DayOfWeek   int     `json:"day_of_week"`
	IsRecurring bool    `json:"is_recurring"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	Title       *string `json:"title,omitempty"`
}

type ExceptionEntryRequest struct {
	Date      string  `json:"date"` // "YYYY-MM-DD"
	Type      string  `json:"type"`
	StartTime string  `json:"start_time,omitempty"`
	EndTime   string  `json:"end_time,omitempty"`
	Title     *string `json:"title,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

type ReplaceScheduleRequest struct {
	Timezone   string                  `json:"timezone"`
	IsDefault  bool                    `json:"is_default"`
	IsActive   bool                    `json:"is_active"`
	Weekly     []WeeklyEntryRequest    `json:"weekly"`
	Breaks     []BreakEntryRequest     `json:"breaks"`
	Exceptions []ExceptionEntryRequest `json:"exceptions"`
}

type ErrorResponse struct {
	Error   string      `json:"error"`
	Details string      `json:"details,omitempty"`
	Verdict interface{} `json:"verdict,omitempty"`
}
