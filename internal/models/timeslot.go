package models

import (
	"time"

	"github.com/google/uuid"
)

// TimeSlot is a contiguous interval within a day. Start and end are minutes from
// midnight, local wall clock.
type TimeSlot struct {
	ID              uuid.UUID
	DayID           uuid.UUID
	Name            string
	StartMinutes    int
	EndMinutes      int
	DurationMinutes int
}

// Day is an ordered, non-overlapping sequence of slots sharing a date.
type Day struct {
	ID   uuid.UUID
	Date time.Time

	// SlotIDs is ordered by slot start time.
	SlotIDs []uuid.UUID
}

// TotalMinutes sums slot durations for the day given the slot lookup.
func (d *Day) TotalMinutes(slots map[uuid.UUID]*TimeSlot) int {
	total := 0
	for _, id := range d.SlotIDs {
		if slot, ok := slots[id]; ok {
			total += slot.DurationMinutes
		}
	}
	return total
}
