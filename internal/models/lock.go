package models

import "github.com/google/uuid"

// Lock pins an exam to a slot, room set and/or invigilator set. Locks are immutable
// during a solve; nil or empty fields leave that dimension free.
type Lock struct {
	ExamID         uuid.UUID
	TimeSlotID     *uuid.UUID
	RoomIDs        []uuid.UUID
	InvigilatorIDs []uuid.UUID
}

// PinsSlot reports whether the lock fixes the start slot.
func (l *Lock) PinsSlot() bool {
	return l.TimeSlotID != nil
}

// PinsRooms reports whether the lock fixes the room set.
func (l *Lock) PinsRooms() bool {
	return len(l.RoomIDs) > 0
}

// PinsInvigilators reports whether the lock fixes the invigilator set.
func (l *Lock) PinsInvigilators() bool {
	return len(l.InvigilatorIDs) > 0
}
