package models

import "github.com/google/uuid"

// Room is a physical exam venue. ExamCapacity is the spaced seating capacity used
// during exams and never exceeds Capacity.
type Room struct {
	ID           uuid.UUID
	Code         string
	Capacity     int
	ExamCapacity int

	HasComputers bool
	HasProjector bool
	Overbookable bool

	// MaxInvPerRoom caps invigilators assignable to the room in one sitting.
	MaxInvPerRoom int

	// AdjacentSeatPairs lists seat index pairs that share a desk edge.
	AdjacentSeatPairs [][2]int
}

// Fits reports whether the room satisfies the exam's equipment requirements.
func (r *Room) Fits(exam *Exam) bool {
	if exam.RequiresComputers && !r.HasComputers {
		return false
	}
	if exam.RequiresProjector && !r.HasProjector {
		return false
	}
	return true
}

// MinInvigilators returns the invigilator floor for a sitting in this room.
func (r *Room) MinInvigilators() int {
	return 1
}
