package models

// ConstraintType marks a rule as hard (must hold) or soft (weighted penalty).
type ConstraintType string

const (
	ConstraintHard ConstraintType = "hard"
	ConstraintSoft ConstraintType = "soft"
)

// Constraint codes. The codes are part of the external contract and must not change.
const (
	CodeUnifiedStudentConflict  = "UNIFIED_STUDENT_CONFLICT"
	CodeRoomCapacityHard        = "ROOM_CAPACITY_HARD"
	CodeRoomSequentialUse       = "ROOM_SEQUENTIAL_USE"
	CodePrerequisiteOrder       = "PREREQUISITE_ORDER"
	CodeLockCompliance          = "LOCK_COMPLIANCE"
	CodeMaxExamsPerStudentDay   = "MAX_EXAMS_PER_STUDENT_PER_DAY"
	CodeMinimumGap              = "MINIMUM_GAP"
	CodeInvigilatorLoadBalance  = "INVIGILATOR_LOAD_BALANCE"
	CodeInstructorConflict      = "INSTRUCTOR_CONFLICT"
	CodeCarryoverConflict       = "CARRYOVER_STUDENT_CONFLICT"
	CodePreferenceSlots         = "PREFERENCE_SLOTS"
	CodeDailyWorkloadBalance    = "DAILY_WORKLOAD_BALANCE"
	CodeOverbookingPenalty      = "OVERBOOKING_PENALTY"
	CodeRoomDurationHomogeneity = "ROOM_DURATION_HOMOGENEITY"
	CodeRoomFitPenalty          = "ROOM_FIT_PENALTY"
)

// ConstraintDeclaration describes a rule known to the registry.
type ConstraintDeclaration struct {
	Code          string
	Name          string
	Type          ConstraintType
	Category      string
	DefaultWeight float64

	// ParameterDefaults double as the parameter schema: unknown keys are rejected,
	// missing keys fall back to these values.
	ParameterDefaults map[string]float64

	// FlexibleOnly rules only activate in flexible-slot mode.
	FlexibleOnly bool
}

// ActiveConstraint is a declaration selected by configuration with resolved
// weight and parameters.
type ActiveConstraint struct {
	Declaration ConstraintDeclaration
	Weight      float64
	Parameters  map[string]float64
}

// Param returns a resolved parameter, falling back to the declared default.
func (a ActiveConstraint) Param(key string) float64 {
	if v, ok := a.Parameters[key]; ok {
		return v
	}
	return a.Declaration.ParameterDefaults[key]
}
