package models

import "github.com/google/uuid"

// Student carries identity and an optional department. Registered courses are a
// derived view kept on the problem model, not on the student.
type Student struct {
	ID         uuid.UUID
	Department string
}
