package dto

// Dataset is the raw input payload. Identifier fields accept canonical UUID strings;
// normalization happens in the data-preparation service, not here.
type Dataset struct {
	SessionID          string             `json:"session_id" validate:"required"`
	ExamPeriodStart    string             `json:"exam_period_start" validate:"required"`
	ExamPeriodEnd      string             `json:"exam_period_end" validate:"required"`
	SlotGenerationMode string             `json:"slot_generation_mode" validate:"omitempty,oneof=fixed flexible"`
	ExamDays           []ExamDay          `json:"exam_days" validate:"required,dive"`
	Exams              []ExamRecord       `json:"exams" validate:"required"`
	Rooms              []RoomRecord       `json:"rooms" validate:"required"`
	Students           []StudentRecord    `json:"students"`
	Invigilators       []StaffRecord      `json:"invigilators"`
	Staff              []StaffRecord      `json:"staff"`
	CourseRegistrations []CourseRegistration `json:"course_registrations"`

	// StudentExamMappings is the untyped student->exams relation; registrations found
	// only here are merged in with registration_type=normal.
	StudentExamMappings map[string][]string `json:"student_exam_mappings,omitempty"`

	Locks       []LockRecord     `json:"locks"`
	Constraints ConstraintConfig `json:"constraints"`
}

// ExamDay groups the slots of one exam date.
type ExamDay struct {
	ID    string       `json:"id" validate:"required"`
	Date  string       `json:"date" validate:"required"`
	Slots []SlotRecord `json:"slots" validate:"required,dive"`
}

// SlotRecord is a raw timeslot.
type SlotRecord struct {
	ID              string `json:"id" validate:"required"`
	Name            string `json:"name"`
	StartTime       string `json:"start_time" validate:"required"`
	EndTime         string `json:"end_time" validate:"required"`
	DurationMinutes int    `json:"duration_minutes"`
}

// ExamRecord is a raw exam row.
type ExamRecord struct {
	ID               string            `json:"id" validate:"required"`
	CourseID         string            `json:"course_id"`
	CourseCode       string            `json:"course_code"`
	DurationMinutes  int               `json:"duration_minutes" validate:"required,gte=1,lte=540"`
	ExpectedStudents int               `json:"expected_students" validate:"gte=0"`
	IsPractical      bool              `json:"is_practical"`
	MorningOnly      bool              `json:"morning_only"`
	Students         map[string]string `json:"students,omitempty"`
	InstructorIDs    []string          `json:"instructor_ids,omitempty"`
	DepartmentIDs    []string          `json:"department_ids,omitempty"`
	FacultyIDs       []string          `json:"faculty_ids,omitempty"`
	PrerequisiteExams []string         `json:"prerequisite_exams,omitempty"`
	RequiresProjector bool             `json:"requires_projector"`
	RequiresComputers bool             `json:"requires_computers"`
	IsCommon         bool              `json:"is_common"`
}

// RoomRecord is a raw room row.
type RoomRecord struct {
	ID                string   `json:"id" validate:"required"`
	Code              string   `json:"code"`
	Capacity          int      `json:"capacity" validate:"required,gt=0"`
	ExamCapacity      int      `json:"exam_capacity" validate:"gte=0"`
	HasComputers      bool     `json:"has_computers"`
	HasProjector      bool     `json:"has_projector"`
	Overbookable      bool     `json:"overbookable"`
	MaxInvPerRoom     int      `json:"max_inv_per_room"`
	AdjacentSeatPairs [][2]int `json:"adjacent_seat_pairs,omitempty"`
}

// StudentRecord is a raw student row.
type StudentRecord struct {
	ID         string `json:"id" validate:"required"`
	Department string `json:"department,omitempty"`
}

// StaffRecord covers both staff and instructor sources for invigilator derivation.
type StaffRecord struct {
	ID                     string   `json:"id" validate:"required"`
	Name                   string   `json:"name"`
	Department             string   `json:"department,omitempty"`
	CanInvigilate          *bool    `json:"can_invigilate,omitempty"`
	MaxConcurrentExams     int      `json:"max_concurrent_exams"`
	MaxStudentsPerExam     int      `json:"max_students_per_exam"`
	MaxDailySessions       int      `json:"max_daily_sessions"`
	MaxConsecutiveSessions int      `json:"max_consecutive_sessions"`
	Unavailability         []UnavailableWindow `json:"unavailability,omitempty"`
}

// UnavailableWindow is a (date, period name) pair an invigilator cannot serve.
type UnavailableWindow struct {
	Date   string `json:"date"`
	Period string `json:"period"`
}

// CourseRegistration links a student to a course.
type CourseRegistration struct {
	StudentID        string `json:"student_id" validate:"required"`
	CourseID         string `json:"course_id" validate:"required"`
	RegistrationType string `json:"registration_type,omitempty"`
}

// LockRecord pins an exam to specific assignment fields.
type LockRecord struct {
	ExamID         string   `json:"exam_id" validate:"required"`
	TimeSlotID     string   `json:"time_slot_id,omitempty"`
	RoomIDs        []string `json:"room_ids,omitempty"`
	InvigilatorIDs []string `json:"invigilator_ids,omitempty"`
}

// ConstraintConfig selects and tunes the active rule set.
type ConstraintConfig struct {
	Rules []ConstraintRule `json:"rules"`
}

// ConstraintRule enables one constraint code with overrides. Type may downgrade a
// hard declaration to soft (or promote a soft one) for this run.
type ConstraintRule struct {
	Code       string             `json:"code" validate:"required"`
	Enabled    bool               `json:"enabled"`
	Type       string             `json:"type,omitempty" validate:"omitempty,oneof=hard soft"`
	Weight     *float64           `json:"weight,omitempty"`
	Parameters map[string]float64 `json:"parameters,omitempty"`
}
