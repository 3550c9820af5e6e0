package models

import "github.com/google/uuid"

// RegistrationType distinguishes first-sit registrations from carryovers.
type RegistrationType string

const (
	RegistrationNormal    RegistrationType = "normal"
	RegistrationCarryover RegistrationType = "carryover"
)

// Exam is the atomic unit of assignment: one sitting of a course.
type Exam struct {
	ID               uuid.UUID
	CourseID         uuid.UUID
	CourseCode       string
	DurationMinutes  int
	ExpectedStudents int
	IsPractical      bool
	MorningOnly      bool

	// Students maps registered student ids to their registration type.
	Students map[uuid.UUID]RegistrationType

	InstructorIDs map[uuid.UUID]struct{}
	DepartmentIDs []uuid.UUID
	FacultyIDs    []uuid.UUID

	// Prerequisites lists exams that must end before this exam starts.
	Prerequisites map[uuid.UUID]struct{}

	RequiresProjector bool
	RequiresComputers bool
	IsCommon          bool
}

// HasStudent reports whether the student is registered for the exam.
func (e *Exam) HasStudent(studentID uuid.UUID) bool {
	_, ok := e.Students[studentID]
	return ok
}

// HasCarryoverStudents reports whether any registration is a carryover.
func (e *Exam) HasCarryoverStudents() bool {
	for _, typ := range e.Students {
		if typ == RegistrationCarryover {
			return true
		}
	}
	return false
}

// StudentIDs returns registered student ids in deterministic order.
func (e *Exam) StudentIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(e.Students))
	for id := range e.Students {
		ids = append(ids, id)
	}
	SortUUIDs(ids)
	return ids
}
