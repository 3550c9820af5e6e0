package models

import (
	"time"

	"github.com/google/uuid"
)

// SolveStatus is the terminal state of a solve.
type SolveStatus string

const (
	StatusOptimal    SolveStatus = "Optimal"
	StatusFeasible   SolveStatus = "Feasible"
	StatusInfeasible SolveStatus = "Infeasible"
	StatusTimedOut   SolveStatus = "TimedOut"
	StatusError      SolveStatus = "Error"
)

// AssignmentStatus marks whether an exam received a placement.
type AssignmentStatus string

const (
	AssignmentAssigned   AssignmentStatus = "assigned"
	AssignmentUnassigned AssignmentStatus = "unassigned"
)

// ExamAssignment is one exam's placement in the timetable.
type ExamAssignment struct {
	ExamID      uuid.UUID
	Date        time.Time
	StartSlotID uuid.UUID

	// RoomIDs is ordered by (exam_capacity desc, room id asc); the first entry is
	// the display-primary room.
	RoomIDs []uuid.UUID

	// RoomAllocations maps room id to the number of students seated there.
	RoomAllocations map[uuid.UUID]int

	InvigilatorIDs []uuid.UUID
	Status         AssignmentStatus
}

// AllocatedStudents sums the per-room allocations.
func (a *ExamAssignment) AllocatedStudents() int {
	total := 0
	for _, n := range a.RoomAllocations {
		total += n
	}
	return total
}

// SolverStatistics summarises the search effort.
type SolverStatistics struct {
	Branches      int64
	Conflicts     int64
	Propagations  int64
	BestObjective float64
	Gap           float64
	WallTime      time.Duration
	CPUTime       time.Duration

	// FilterMode records how the variable domain was reduced: "ga", "fallback" or "full".
	FilterMode string
}

// Solution is the timetable produced by a solve. It is owned by the extractor and
// references model entities by id only.
type Solution struct {
	SessionID uuid.UUID
	SolveID   uuid.UUID
	Status    SolveStatus

	Assignments map[uuid.UUID]*ExamAssignment
	Statistics  SolverStatistics

	// ObjectiveBreakdown maps constraint code to its weighted contribution.
	ObjectiveBreakdown map[string]float64
}

// NewSolution builds an empty solution with every exam marked unassigned.
func NewSolution(problem *Problem, solveID uuid.UUID) *Solution {
	assignments := make(map[uuid.UUID]*ExamAssignment, len(problem.Exams))
	for _, examID := range problem.ExamIDs() {
		assignments[examID] = &ExamAssignment{ExamID: examID, Status: AssignmentUnassigned}
	}
	return &Solution{
		SessionID:          problem.SessionID,
		SolveID:            solveID,
		Assignments:        assignments,
		ObjectiveBreakdown: make(map[string]float64),
	}
}

// AssignedExamIDs returns ids of placed exams in deterministic order.
func (s *Solution) AssignedExamIDs() []uuid.UUID {
	var ids []uuid.UUID
	for id, a := range s.Assignments {
		if a.Status == AssignmentAssigned {
			ids = append(ids, id)
		}
	}
	SortUUIDs(ids)
	return ids
}

// UnassignedExamIDs returns ids of unplaced exams in deterministic order.
func (s *Solution) UnassignedExamIDs() []uuid.UUID {
	var ids []uuid.UUID
	for id, a := range s.Assignments {
		if a.Status != AssignmentAssigned {
			ids = append(ids, id)
		}
	}
	SortUUIDs(ids)
	return ids
}

// CompletionPercentage reports the share of exams that received a placement.
func (s *Solution) CompletionPercentage() float64 {
	if len(s.Assignments) == 0 {
		return 0
	}
	return float64(len(s.AssignedExamIDs())) / float64(len(s.Assignments)) * 100
}
