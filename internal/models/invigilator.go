package models

import "github.com/google/uuid"

// UnavailableKey identifies a (date, period name) window an invigilator cannot serve.
type UnavailableKey struct {
	Date   string
	Period string
}

// Invigilator is derived from staff and instructor records; staff wins on collision.
type Invigilator struct {
	ID         uuid.UUID
	Name       string
	Department string

	CanInvigilate          bool
	MaxConcurrentExams     int
	MaxStudentsPerExam     int
	MaxDailySessions       int
	MaxConsecutiveSessions int

	Unavailable map[UnavailableKey]struct{}
}

// IsAvailable reports whether the invigilator can serve the given date and period.
func (i *Invigilator) IsAvailable(date, period string) bool {
	if !i.CanInvigilate {
		return false
	}
	_, blocked := i.Unavailable[UnavailableKey{Date: date, Period: period}]
	return !blocked
}
