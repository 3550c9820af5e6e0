package dataprep

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-exam-scheduler/internal/dto"
	"github.com/noah-isme/uni-exam-scheduler/internal/models"
	appErrors "github.com/noah-isme/uni-exam-scheduler/pkg/errors"
)

const defaultMaxStudentsPerInvigilator = 50

// Diagnostics records non-fatal findings from dataset preparation.
type Diagnostics struct {
	Warnings       []string
	DroppedRecords int
	PhantomExams   []uuid.UUID
	AdjustedExams  []uuid.UUID
}

// constraintResolver narrows the registry dependency to what preparation needs.
type constraintResolver interface {
	Resolve(cfg dto.ConstraintConfig, mode models.SlotMode) []models.ActiveConstraint
}

// Service lifts a raw dataset into a validated problem model.
type Service struct {
	registry  constraintResolver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewService wires preparation dependencies.
func NewService(registry constraintResolver, validate *validator.Validate, logger *zap.Logger) *Service {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{registry: registry, validator: validate, logger: logger}
}

// Prepare validates and maps the dataset. Per-record failures are logged and the
// record dropped; structural failures abort with a typed error.
func (s *Service) Prepare(dataset dto.Dataset) (*models.Problem, *Diagnostics, error) {
	if err := s.validator.Struct(dataset); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid dataset payload")
	}

	sessionID, err := parseUUID(dataset.SessionID)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid session_id: %v", err))
	}

	diags := &Diagnostics{}

	days, slots, err := s.mapDays(dataset.ExamDays, diags)
	if err != nil {
		return nil, nil, err
	}

	rooms := s.mapRooms(dataset.Rooms, diags)
	students := s.mapStudents(dataset.Students, diags)
	invigilators := s.deriveInvigilators(dataset.Staff, dataset.Invigilators, diags)

	exams, courseExams := s.mapExams(dataset.Exams, diags)

	s.mergeRegistrations(exams, courseExams, students, dataset.CourseRegistrations, dataset.StudentExamMappings, diags)
	s.filterPhantoms(exams, diags)
	if len(exams) == 0 {
		return nil, nil, appErrors.Clone(appErrors.ErrNoSchedulableExams, "")
	}
	s.adjustExpectedStudents(exams, diags)

	locks, err := s.mapLocks(dataset.Locks, exams, slots, rooms, invigilators)
	if err != nil {
		return nil, nil, err
	}

	mode := models.SlotMode(dataset.SlotGenerationMode)
	if mode == "" {
		mode = models.SlotModeFixed
	}

	var active []models.ActiveConstraint
	if s.registry != nil {
		active = s.registry.Resolve(dataset.Constraints, mode)
	}

	problem, err := models.NewProblem(models.ProblemInput{
		SessionID:    sessionID,
		SlotMode:     mode,
		Exams:        exams,
		Rooms:        rooms,
		Days:         days,
		Slots:        slots,
		Students:     students,
		Invigilators: invigilators,
		Locks:        locks,
		Constraints:  active,
	})
	if err != nil {
		return nil, nil, err
	}
	diags.Warnings = append(diags.Warnings, problem.Warnings()...)

	s.logger.Info("dataset prepared",
		zap.Int("exams", len(exams)),
		zap.Int("rooms", len(rooms)),
		zap.Int("slots", len(slots)),
		zap.Int("students", len(students)),
		zap.Int("invigilators", len(invigilators)),
		zap.Int("dropped_records", diags.DroppedRecords),
	)
	return problem, diags, nil
}

func (s *Service) mapDays(raw []dto.ExamDay, diags *Diagnostics) (map[uuid.UUID]*models.Day, map[uuid.UUID]*models.TimeSlot, error) {
	days := make(map[uuid.UUID]*models.Day, len(raw))
	slots := make(map[uuid.UUID]*models.TimeSlot)

	for _, rawDay := range raw {
		dayID, err := parseUUID(rawDay.ID)
		if err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid day id %q", rawDay.ID))
		}
		date, err := time.Parse("2006-01-02", rawDay.Date)
		if err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid date %q for day %s", rawDay.Date, rawDay.ID))
		}
		day := &models.Day{ID: dayID, Date: date}
		for _, rawSlot := range rawDay.Slots {
			slotID, err := parseUUID(rawSlot.ID)
			if err != nil {
				return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid slot id %q", rawSlot.ID))
			}
			start, err := parseClock(rawSlot.StartTime)
			if err != nil {
				return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid start_time %q for slot %s", rawSlot.StartTime, rawSlot.ID))
			}
			end, err := parseClock(rawSlot.EndTime)
			if err != nil {
				return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid end_time %q for slot %s", rawSlot.EndTime, rawSlot.ID))
			}
			duration := rawSlot.DurationMinutes
			if duration <= 0 {
				duration = end - start
			}
			slots[slotID] = &models.TimeSlot{
				ID:              slotID,
				DayID:           dayID,
				Name:            rawSlot.Name,
				StartMinutes:    start,
				EndMinutes:      end,
				DurationMinutes: duration,
			}
			day.SlotIDs = append(day.SlotIDs, slotID)
		}
		days[dayID] = day
	}
	return days, slots, nil
}

func (s *Service) mapRooms(raw []dto.RoomRecord, diags *Diagnostics) map[uuid.UUID]*models.Room {
	rooms := make(map[uuid.UUID]*models.Room, len(raw))
	for _, record := range raw {
		id, err := parseUUID(record.ID)
		if err != nil {
			s.dropRecord(diags, "room", record.ID, err)
			continue
		}
		examCapacity := record.ExamCapacity
		if examCapacity <= 0 || examCapacity > record.Capacity {
			examCapacity = record.Capacity
		}
		maxInv := record.MaxInvPerRoom
		if maxInv < 1 {
			maxInv = 1
		}
		rooms[id] = &models.Room{
			ID:                id,
			Code:              record.Code,
			Capacity:          record.Capacity,
			ExamCapacity:      examCapacity,
			HasComputers:      record.HasComputers,
			HasProjector:      record.HasProjector,
			Overbookable:      record.Overbookable,
			MaxInvPerRoom:     maxInv,
			AdjacentSeatPairs: record.AdjacentSeatPairs,
		}
	}
	return rooms
}

func (s *Service) mapStudents(raw []dto.StudentRecord, diags *Diagnostics) map[uuid.UUID]*models.Student {
	students := make(map[uuid.UUID]*models.Student, len(raw))
	for _, record := range raw {
		id, err := parseUUID(record.ID)
		if err != nil {
			s.dropRecord(diags, "student", record.ID, err)
			continue
		}
		students[id] = &models.Student{ID: id, Department: record.Department}
	}
	return students
}

// deriveInvigilators unions staff with can_invigilate=true and instructor-source
// records not already present. Staff wins on id collision.
func (s *Service) deriveInvigilators(staff, instructors []dto.StaffRecord, diags *Diagnostics) map[uuid.UUID]*models.Invigilator {
	result := make(map[uuid.UUID]*models.Invigilator)

	for _, record := range staff {
		inv, err := s.mapStaffRecord(record)
		if err != nil {
			s.dropRecord(diags, "staff", record.ID, err)
			continue
		}
		if !inv.CanInvigilate {
			continue
		}
		result[inv.ID] = inv
	}

	for _, record := range instructors {
		inv, err := s.mapStaffRecord(record)
		if err != nil {
			s.dropRecord(diags, "invigilator", record.ID, err)
			continue
		}
		if _, exists := result[inv.ID]; exists {
			continue
		}
		if !inv.CanInvigilate {
			continue
		}
		result[inv.ID] = inv
	}
	return result
}

func (s *Service) mapStaffRecord(record dto.StaffRecord) (*models.Invigilator, error) {
	id, err := parseUUID(record.ID)
	if err != nil {
		return nil, err
	}
	canInvigilate := true
	if record.CanInvigilate != nil {
		canInvigilate = *record.CanInvigilate
	}
	maxConcurrent := record.MaxConcurrentExams
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	maxStudents := record.MaxStudentsPerExam
	if maxStudents < 1 {
		maxStudents = defaultMaxStudentsPerInvigilator
	}
	unavailable := make(map[models.UnavailableKey]struct{}, len(record.Unavailability))
	for _, window := range record.Unavailability {
		unavailable[models.UnavailableKey{Date: window.Date, Period: window.Period}] = struct{}{}
	}
	return &models.Invigilator{
		ID:                     id,
		Name:                   record.Name,
		Department:             record.Department,
		CanInvigilate:          canInvigilate,
		MaxConcurrentExams:     maxConcurrent,
		MaxStudentsPerExam:     maxStudents,
		MaxDailySessions:       record.MaxDailySessions,
		MaxConsecutiveSessions: record.MaxConsecutiveSessions,
		Unavailable:            unavailable,
	}, nil
}

// mapExams maps raw exam rows. When the same exam id appears twice the later record
// wins and a warning is recorded.
func (s *Service) mapExams(raw []dto.ExamRecord, diags *Diagnostics) (map[uuid.UUID]*models.Exam, map[uuid.UUID][]uuid.UUID) {
	exams := make(map[uuid.UUID]*models.Exam, len(raw))
	courseExams := make(map[uuid.UUID][]uuid.UUID)

	for _, record := range raw {
		id, err := parseUUID(record.ID)
		if err != nil {
			s.dropRecord(diags, "exam", record.ID, err)
			continue
		}
		if _, exists := exams[id]; exists {
			diags.Warnings = append(diags.Warnings, fmt.Sprintf("exam %s provided more than once; keeping the later record", id))
		}

		exam := &models.Exam{
			ID:                id,
			CourseCode:        record.CourseCode,
			DurationMinutes:   record.DurationMinutes,
			ExpectedStudents:  record.ExpectedStudents,
			IsPractical:       record.IsPractical,
			MorningOnly:       record.MorningOnly,
			Students:          make(map[uuid.UUID]models.RegistrationType),
			InstructorIDs:     make(map[uuid.UUID]struct{}),
			Prerequisites:     make(map[uuid.UUID]struct{}),
			RequiresProjector: record.RequiresProjector,
			RequiresComputers: record.RequiresComputers,
			IsCommon:          record.IsCommon,
		}
		if record.CourseID != "" {
			courseID, err := parseUUID(record.CourseID)
			if err != nil {
				s.dropRecord(diags, "exam", record.ID, fmt.Errorf("invalid course_id: %w", err))
				continue
			}
			exam.CourseID = courseID
		}
		for rawStudent, rawType := range record.Students {
			studentID, err := parseUUID(rawStudent)
			if err != nil {
				s.logger.Warn("dropping malformed student registration",
					zap.String("exam", record.ID), zap.String("student", rawStudent))
				diags.DroppedRecords++
				continue
			}
			exam.Students[studentID] = registrationType(rawType)
		}
		for _, rawInstructor := range record.InstructorIDs {
			instructorID, err := parseUUID(rawInstructor)
			if err != nil {
				continue
			}
			exam.InstructorIDs[instructorID] = struct{}{}
		}
		for _, rawDept := range record.DepartmentIDs {
			if deptID, err := parseUUID(rawDept); err == nil {
				exam.DepartmentIDs = append(exam.DepartmentIDs, deptID)
			}
		}
		for _, rawFaculty := range record.FacultyIDs {
			if facultyID, err := parseUUID(rawFaculty); err == nil {
				exam.FacultyIDs = append(exam.FacultyIDs, facultyID)
			}
		}
		for _, rawPrereq := range record.PrerequisiteExams {
			prereqID, err := parseUUID(rawPrereq)
			if err != nil {
				continue
			}
			exam.Prerequisites[prereqID] = struct{}{}
		}

		exams[id] = exam
		if exam.CourseID != uuid.Nil {
			courseExams[exam.CourseID] = append(courseExams[exam.CourseID], id)
		}
	}
	return exams, courseExams
}

// mergeRegistrations reconciles the typed course registrations and the untyped
// student_exam_mappings into exam-local student maps. Typed sources win; untyped
// registrations default to normal. Duplicates across sources are idempotent.
func (s *Service) mergeRegistrations(
	exams map[uuid.UUID]*models.Exam,
	courseExams map[uuid.UUID][]uuid.UUID,
	students map[uuid.UUID]*models.Student,
	registrations []dto.CourseRegistration,
	untypedMappings map[string][]string,
	diags *Diagnostics,
) {
	for _, reg := range registrations {
		studentID, err := parseUUID(reg.StudentID)
		if err != nil {
			s.dropRecord(diags, "course_registration", reg.StudentID, err)
			continue
		}
		courseID, err := parseUUID(reg.CourseID)
		if err != nil {
			s.dropRecord(diags, "course_registration", reg.CourseID, err)
			continue
		}
		s.ensureStudent(students, studentID, diags)
		for _, examID := range courseExams[courseID] {
			exams[examID].Students[studentID] = registrationType(reg.RegistrationType)
		}
	}

	for rawStudent, rawExamIDs := range untypedMappings {
		studentID, err := parseUUID(rawStudent)
		if err != nil {
			s.dropRecord(diags, "student_exam_mapping", rawStudent, err)
			continue
		}
		s.ensureStudent(students, studentID, diags)
		for _, rawExamID := range rawExamIDs {
			examID, err := parseUUID(rawExamID)
			if err != nil {
				s.dropRecord(diags, "student_exam_mapping", rawExamID, err)
				continue
			}
			exam, ok := exams[examID]
			if !ok {
				diags.Warnings = append(diags.Warnings, fmt.Sprintf("student_exam_mappings references unknown exam %s", examID))
				continue
			}
			if _, typed := exam.Students[studentID]; typed {
				continue
			}
			exam.Students[studentID] = models.RegistrationNormal
		}
	}
}

func (s *Service) ensureStudent(students map[uuid.UUID]*models.Student, id uuid.UUID, diags *Diagnostics) {
	if _, ok := students[id]; ok {
		return
	}
	students[id] = &models.Student{ID: id}
	diags.Warnings = append(diags.Warnings, fmt.Sprintf("student %s appears in relations but not in the student collection", id))
}

// filterPhantoms removes exams with no registered students after relation merge.
func (s *Service) filterPhantoms(exams map[uuid.UUID]*models.Exam, diags *Diagnostics) {
	var phantoms []uuid.UUID
	for id, exam := range exams {
		if len(exam.Students) == 0 {
			phantoms = append(phantoms, id)
		}
	}
	models.SortUUIDs(phantoms)
	for _, id := range phantoms {
		delete(exams, id)
		diags.PhantomExams = append(diags.PhantomExams, id)
		s.logger.Warn("filtered phantom exam with no registered students", zap.String("exam", id.String()))
	}
}

// adjustExpectedStudents raises expected_students to the registration count when the
// dataset undercounts, recording a diagnostic.
func (s *Service) adjustExpectedStudents(exams map[uuid.UUID]*models.Exam, diags *Diagnostics) {
	var adjusted []uuid.UUID
	for id, exam := range exams {
		if exam.ExpectedStudents < len(exam.Students) {
			exam.ExpectedStudents = len(exam.Students)
			adjusted = append(adjusted, id)
		}
	}
	models.SortUUIDs(adjusted)
	for _, id := range adjusted {
		diags.AdjustedExams = append(diags.AdjustedExams, id)
		diags.Warnings = append(diags.Warnings, fmt.Sprintf("expected_students for exam %s raised to its registration count", id))
	}
}

func (s *Service) mapLocks(
	raw []dto.LockRecord,
	exams map[uuid.UUID]*models.Exam,
	slots map[uuid.UUID]*models.TimeSlot,
	rooms map[uuid.UUID]*models.Room,
	invigilators map[uuid.UUID]*models.Invigilator,
) ([]models.Lock, error) {
	locks := make([]models.Lock, 0, len(raw))
	for _, record := range raw {
		examID, err := parseUUID(record.ExamID)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("lock has invalid exam_id %q", record.ExamID))
		}
		if _, ok := exams[examID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("lock references unknown exam %s", examID))
		}
		lock := models.Lock{ExamID: examID}
		if record.TimeSlotID != "" {
			slotID, err := parseUUID(record.TimeSlotID)
			if err != nil {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("lock on exam %s has invalid time_slot_id", examID))
			}
			if _, ok := slots[slotID]; !ok {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("lock on exam %s references unknown slot %s", examID, slotID))
			}
			lock.TimeSlotID = &slotID
		}
		for _, rawRoom := range record.RoomIDs {
			roomID, err := parseUUID(rawRoom)
			if err != nil {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("lock on exam %s has invalid room id %q", examID, rawRoom))
			}
			if _, ok := rooms[roomID]; !ok {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("lock on exam %s references unknown room %s", examID, roomID))
			}
			lock.RoomIDs = append(lock.RoomIDs, roomID)
		}
		for _, rawInv := range record.InvigilatorIDs {
			invID, err := parseUUID(rawInv)
			if err != nil {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("lock on exam %s has invalid invigilator id %q", examID, rawInv))
			}
			if _, ok := invigilators[invID]; !ok {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("lock on exam %s references unknown invigilator %s", examID, invID))
			}
			lock.InvigilatorIDs = append(lock.InvigilatorIDs, invID)
		}
		locks = append(locks, lock)
	}
	return locks, nil
}

func (s *Service) dropRecord(diags *Diagnostics, kind, id string, err error) {
	diags.DroppedRecords++
	s.logger.Warn("dropping malformed record",
		zap.String("kind", kind), zap.String("id", id), zap.Error(err))
}

func registrationType(raw string) models.RegistrationType {
	if strings.EqualFold(strings.TrimSpace(raw), string(models.RegistrationCarryover)) {
		return models.RegistrationCarryover
	}
	return models.RegistrationNormal
}

func parseUUID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// parseClock converts "HH:MM" (seconds tolerated) to minutes from midnight.
func parseClock(raw string) (int, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("malformed clock value %q", raw)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("malformed hour in %q", raw)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("malformed minute in %q", raw)
	}
	return hours*60 + minutes, nil
}
