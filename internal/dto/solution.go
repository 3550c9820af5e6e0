package dto

// SolutionDocument is the serialized output of a solve.
type SolutionDocument struct {
	SessionID   string               `json:"session_id"`
	Status      string               `json:"status"`
	Statistics  StatisticsDocument   `json:"statistics"`
	Assignments []AssignmentDocument `json:"assignments"`
	Unassigned  []string             `json:"unassigned"`
	Diagnostics []string             `json:"diagnostics,omitempty"`
}

// AssignmentDocument is one exam placement.
type AssignmentDocument struct {
	ExamID          string                   `json:"exam_id"`
	Date            string                   `json:"date"`
	StartSlotID     string                   `json:"start_slot_id"`
	RoomAllocations []RoomAllocationDocument `json:"room_allocations"`
	InvigilatorIDs  []string                 `json:"invigilator_ids"`
}

// RoomAllocationDocument records students seated in one room.
type RoomAllocationDocument struct {
	RoomID   string `json:"room_id"`
	Students int    `json:"students"`
}

// StatisticsDocument summarises solver effort.
type StatisticsDocument struct {
	Branches        int64              `json:"branches"`
	Conflicts       int64              `json:"conflicts"`
	Propagations    int64              `json:"propagations"`
	BestObjective   float64            `json:"best_objective"`
	Gap             float64            `json:"gap"`
	WallTimeSeconds float64            `json:"wall_time_seconds"`
	CPUTimeSeconds  float64            `json:"cpu_time_seconds"`
	Filter          string             `json:"filter"`
	Objective       map[string]float64 `json:"objective_breakdown,omitempty"`
	Completion      float64            `json:"completion_percentage"`
}
