package availability

import "time"

type SlotReason string

const (
	ReasonNone   SlotReason = ""
	ReasonBreak  SlotReason = "break"
	ReasonBooked SlotReason = "booked"
	ReasonPast   SlotReason = "past"
)

// TimeSlot is a derived read model, computed per request and never
// persisted.
type TimeSlot struct {
	Start     time.Time
	End       time.Time
	Available bool
	Reason    SlotReason
}

// DaySlots groups the slots of one calendar date in the schedule's
// timezone. Date is "YYYY-MM-DD".
type DaySlots struct {
	Date  string
	Slots []TimeSlot
}
