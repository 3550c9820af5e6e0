package models

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	appErrors "github.com/noah-isme/uni-exam-scheduler/pkg/errors"
)

// SlotMode selects whether exams start only at slot boundaries or may start
// between them.
type SlotMode string

const (
	SlotModeFixed    SlotMode = "fixed"
	SlotModeFlexible SlotMode = "flexible"
)

// ProblemInput is the validated material a Problem is built from.
type ProblemInput struct {
	SessionID    uuid.UUID
	SlotMode     SlotMode
	Exams        map[uuid.UUID]*Exam
	Rooms        map[uuid.UUID]*Room
	Days         map[uuid.UUID]*Day
	Slots        map[uuid.UUID]*TimeSlot
	Students     map[uuid.UUID]*Student
	Invigilators map[uuid.UUID]*Invigilator
	Locks        []Lock
	Constraints  []ActiveConstraint
}

// Problem is the immutable in-memory scheduling problem. It is built once per solve,
// validated on construction, and safe to share across goroutines afterwards.
type Problem struct {
	SessionID    uuid.UUID
	SlotMode     SlotMode
	Exams        map[uuid.UUID]*Exam
	Rooms        map[uuid.UUID]*Room
	Days         map[uuid.UUID]*Day
	Slots        map[uuid.UUID]*TimeSlot
	Students     map[uuid.UUID]*Student
	Invigilators map[uuid.UUID]*Invigilator
	Locks        []Lock
	Constraints  []ActiveConstraint

	examOrder []uuid.UUID
	roomOrder []uuid.UUID
	dayOrder  []uuid.UUID
	slotOrder []uuid.UUID
	invOrder  []uuid.UUID

	dayOfSlot     map[uuid.UUID]uuid.UUID
	slotIndex     map[uuid.UUID]int
	studentExams  map[uuid.UUID][]uuid.UUID
	startFeasible map[uuid.UUID]map[uuid.UUID]bool
	lockByExam    map[uuid.UUID]*Lock

	warnings []string
}

// NewProblem builds derived indices and validates integrity. Validation failures
// return ErrModelConsistency with the offending ids.
func NewProblem(in ProblemInput) (*Problem, error) {
	p := &Problem{
		SessionID:    in.SessionID,
		SlotMode:     in.SlotMode,
		Exams:        in.Exams,
		Rooms:        in.Rooms,
		Days:         in.Days,
		Slots:        in.Slots,
		Students:     in.Students,
		Invigilators: in.Invigilators,
		Locks:        in.Locks,
		Constraints:  in.Constraints,
	}
	if p.SlotMode == "" {
		p.SlotMode = SlotModeFixed
	}

	if err := p.buildIndices(); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	p.buildStartFeasibility()
	p.collectWarnings()
	return p, nil
}

// ExamIDs returns exam ids in deterministic order.
func (p *Problem) ExamIDs() []uuid.UUID { return p.examOrder }

// RoomIDs returns room ids in deterministic order.
func (p *Problem) RoomIDs() []uuid.UUID { return p.roomOrder }

// DayIDs returns day ids ordered by date.
func (p *Problem) DayIDs() []uuid.UUID { return p.dayOrder }

// SlotIDs returns slot ids ordered by (day date asc, start time asc).
func (p *Problem) SlotIDs() []uuid.UUID { return p.slotOrder }

// InvigilatorIDs returns invigilator ids in deterministic order.
func (p *Problem) InvigilatorIDs() []uuid.UUID { return p.invOrder }

// StudentsForExam returns the registered students of an exam.
func (p *Problem) StudentsForExam(examID uuid.UUID) []uuid.UUID {
	exam, ok := p.Exams[examID]
	if !ok {
		return nil
	}
	return exam.StudentIDs()
}

// ExamsForStudent returns the exams a student is registered for.
func (p *Problem) ExamsForStudent(studentID uuid.UUID) []uuid.UUID {
	return p.studentExams[studentID]
}

// DayOf returns the day owning a slot.
func (p *Problem) DayOf(slotID uuid.UUID) (*Day, bool) {
	dayID, ok := p.dayOfSlot[slotID]
	if !ok {
		return nil, false
	}
	day, ok := p.Days[dayID]
	return day, ok
}

// SlotIndexInDay returns the position of the slot within its day's ordering.
func (p *Problem) SlotIndexInDay(slotID uuid.UUID) int {
	idx, ok := p.slotIndex[slotID]
	if !ok {
		return -1
	}
	return idx
}

// DayIndex returns the position of a day in the date ordering, or -1.
func (p *Problem) DayIndex(dayID uuid.UUID) int {
	for i, id := range p.dayOrder {
		if id == dayID {
			return i
		}
	}
	return -1
}

// IsStartFeasible reports whether the contiguous slots of the slot's day, starting at
// the slot, cover the exam's duration. Computed once per (exam, slot) on construction.
func (p *Problem) IsStartFeasible(examID, slotID uuid.UUID) bool {
	return p.startFeasible[examID][slotID]
}

// HasFeasibleStart reports whether any slot is a feasible start for the exam.
func (p *Problem) HasFeasibleStart(examID uuid.UUID) bool {
	for _, ok := range p.startFeasible[examID] {
		if ok {
			return true
		}
	}
	return false
}

// SlotsCovering returns the slot ids occupied by an exam starting at startSlotID,
// in day order. Empty when the start is infeasible.
func (p *Problem) SlotsCovering(examID, startSlotID uuid.UUID) []uuid.UUID {
	exam, ok := p.Exams[examID]
	if !ok {
		return nil
	}
	day, ok := p.DayOf(startSlotID)
	if !ok {
		return nil
	}
	start := p.SlotIndexInDay(startSlotID)
	if start < 0 {
		return nil
	}
	remaining := exam.DurationMinutes
	var covered []uuid.UUID
	for i := start; i < len(day.SlotIDs) && remaining > 0; i++ {
		slot := p.Slots[day.SlotIDs[i]]
		covered = append(covered, slot.ID)
		remaining -= slot.DurationMinutes
	}
	if remaining > 0 {
		return nil
	}
	return covered
}

// LockFor returns the lock pinning an exam, if any.
func (p *Problem) LockFor(examID uuid.UUID) (*Lock, bool) {
	lock, ok := p.lockByExam[examID]
	return lock, ok
}

// ActiveConstraint returns the active constraint with the given code.
func (p *Problem) ActiveConstraint(code string) (ActiveConstraint, bool) {
	for _, ac := range p.Constraints {
		if ac.Declaration.Code == code {
			return ac, true
		}
	}
	return ActiveConstraint{}, false
}

// Warnings returns non-fatal issues recorded during construction.
func (p *Problem) Warnings() []string { return p.warnings }

func (p *Problem) buildIndices() error {
	p.examOrder = make([]uuid.UUID, 0, len(p.Exams))
	for id := range p.Exams {
		p.examOrder = append(p.examOrder, id)
	}
	SortUUIDs(p.examOrder)

	p.roomOrder = make([]uuid.UUID, 0, len(p.Rooms))
	for id := range p.Rooms {
		p.roomOrder = append(p.roomOrder, id)
	}
	SortUUIDs(p.roomOrder)

	p.invOrder = make([]uuid.UUID, 0, len(p.Invigilators))
	for id := range p.Invigilators {
		p.invOrder = append(p.invOrder, id)
	}
	SortUUIDs(p.invOrder)

	p.dayOrder = make([]uuid.UUID, 0, len(p.Days))
	for id := range p.Days {
		p.dayOrder = append(p.dayOrder, id)
	}
	sort.Slice(p.dayOrder, func(i, j int) bool {
		di, dj := p.Days[p.dayOrder[i]], p.Days[p.dayOrder[j]]
		if di.Date.Equal(dj.Date) {
			return LessUUID(di.ID, dj.ID)
		}
		return di.Date.Before(dj.Date)
	})

	p.dayOfSlot = make(map[uuid.UUID]uuid.UUID, len(p.Slots))
	p.slotIndex = make(map[uuid.UUID]int, len(p.Slots))
	p.slotOrder = make([]uuid.UUID, 0, len(p.Slots))
	for _, dayID := range p.dayOrder {
		day := p.Days[dayID]
		ordered := make([]uuid.UUID, len(day.SlotIDs))
		copy(ordered, day.SlotIDs)
		sort.Slice(ordered, func(i, j int) bool {
			si, sj := p.Slots[ordered[i]], p.Slots[ordered[j]]
			if si == nil || sj == nil {
				return si != nil
			}
			if si.StartMinutes == sj.StartMinutes {
				return LessUUID(si.ID, sj.ID)
			}
			return si.StartMinutes < sj.StartMinutes
		})
		day.SlotIDs = ordered
		for idx, slotID := range ordered {
			if _, exists := p.slotIndex[slotID]; exists {
				return appErrors.Clone(appErrors.ErrModelConsistency, fmt.Sprintf("slot %s belongs to more than one day", slotID))
			}
			p.dayOfSlot[slotID] = dayID
			p.slotIndex[slotID] = idx
			p.slotOrder = append(p.slotOrder, slotID)
		}
	}

	p.studentExams = make(map[uuid.UUID][]uuid.UUID)
	for _, examID := range p.examOrder {
		for studentID := range p.Exams[examID].Students {
			p.studentExams[studentID] = append(p.studentExams[studentID], examID)
		}
	}
	for studentID := range p.studentExams {
		SortUUIDs(p.studentExams[studentID])
	}

	p.lockByExam = make(map[uuid.UUID]*Lock, len(p.Locks))
	for i := range p.Locks {
		p.lockByExam[p.Locks[i].ExamID] = &p.Locks[i]
	}
	return nil
}

func (p *Problem) validate() error {
	if len(p.Exams) == 0 {
		return appErrors.Clone(appErrors.ErrModelConsistency, "exam collection is empty")
	}
	if len(p.Rooms) == 0 {
		return appErrors.Clone(appErrors.ErrModelConsistency, "room collection is empty")
	}
	if len(p.Days) == 0 || len(p.Slots) == 0 {
		return appErrors.Clone(appErrors.ErrModelConsistency, "no exam days or timeslots defined")
	}
	if len(p.Invigilators) == 0 {
		return appErrors.Clone(appErrors.ErrModelConsistency, "invigilator collection is empty")
	}

	for _, invID := range p.invOrder {
		inv := p.Invigilators[invID]
		if inv.MaxStudentsPerExam <= 0 {
			return appErrors.Clone(appErrors.ErrModelConsistency,
				fmt.Sprintf("invigilator %s has non-positive max_students_per_exam", invID))
		}
	}

	longestDay := 0
	for _, dayID := range p.dayOrder {
		day := p.Days[dayID]
		prevEnd := -1
		for _, slotID := range day.SlotIDs {
			slot, ok := p.Slots[slotID]
			if !ok {
				return appErrors.Clone(appErrors.ErrModelConsistency,
					fmt.Sprintf("day %s references unknown slot %s", dayID, slotID))
			}
			if slot.StartMinutes < prevEnd {
				return appErrors.Clone(appErrors.ErrModelConsistency,
					fmt.Sprintf("day %s has overlapping slots at %s", dayID, slotID))
			}
			if slot.EndMinutes <= slot.StartMinutes {
				return appErrors.Clone(appErrors.ErrModelConsistency,
					fmt.Sprintf("slot %s ends before it starts", slotID))
			}
			prevEnd = slot.EndMinutes
		}
		if total := day.TotalMinutes(p.Slots); total > longestDay {
			longestDay = total
		}
	}

	for _, examID := range p.examOrder {
		exam := p.Exams[examID]
		if exam.DurationMinutes <= 0 {
			return appErrors.Clone(appErrors.ErrModelConsistency,
				fmt.Sprintf("exam %s has non-positive duration", examID))
		}
		// Durations that exceed every day surface through the analyzer and an
		// Infeasible solve rather than aborting construction.
		if exam.DurationMinutes > longestDay {
			p.warnings = append(p.warnings, fmt.Sprintf(
				"exam %s duration %d min exceeds the longest day (%d min)", examID, exam.DurationMinutes, longestDay))
		}
	}

	for _, lock := range p.Locks {
		if _, ok := p.Exams[lock.ExamID]; !ok {
			return appErrors.Clone(appErrors.ErrModelConsistency,
				fmt.Sprintf("lock references unknown exam %s", lock.ExamID))
		}
		if lock.TimeSlotID != nil {
			if _, ok := p.Slots[*lock.TimeSlotID]; !ok {
				return appErrors.Clone(appErrors.ErrModelConsistency,
					fmt.Sprintf("lock on exam %s references unknown slot %s", lock.ExamID, *lock.TimeSlotID))
			}
		}
		for _, roomID := range lock.RoomIDs {
			if _, ok := p.Rooms[roomID]; !ok {
				return appErrors.Clone(appErrors.ErrModelConsistency,
					fmt.Sprintf("lock on exam %s references unknown room %s", lock.ExamID, roomID))
			}
		}
		for _, invID := range lock.InvigilatorIDs {
			if _, ok := p.Invigilators[invID]; !ok {
				return appErrors.Clone(appErrors.ErrModelConsistency,
					fmt.Sprintf("lock on exam %s references unknown invigilator %s", lock.ExamID, invID))
			}
		}
	}
	return nil
}

func (p *Problem) buildStartFeasibility() {
	p.startFeasible = make(map[uuid.UUID]map[uuid.UUID]bool, len(p.Exams))
	for _, examID := range p.examOrder {
		exam := p.Exams[examID]
		bySlot := make(map[uuid.UUID]bool, len(p.Slots))
		for _, slotID := range p.slotOrder {
			bySlot[slotID] = p.coversDuration(exam, slotID)
		}
		p.startFeasible[examID] = bySlot
	}
}

func (p *Problem) coversDuration(exam *Exam, startSlotID uuid.UUID) bool {
	day, ok := p.DayOf(startSlotID)
	if !ok {
		return false
	}
	if exam.MorningOnly && p.SlotIndexInDay(startSlotID) != 0 {
		return false
	}
	start := p.SlotIndexInDay(startSlotID)
	remaining := exam.DurationMinutes
	for i := start; i < len(day.SlotIDs) && remaining > 0; i++ {
		remaining -= p.Slots[day.SlotIDs[i]].DurationMinutes
	}
	return remaining <= 0
}

func (p *Problem) collectWarnings() {
	totalExpected := 0
	for _, examID := range p.examOrder {
		totalExpected += p.Exams[examID].ExpectedStudents
	}

	invCapacity := 0
	for _, invID := range p.invOrder {
		inv := p.Invigilators[invID]
		if inv.CanInvigilate {
			invCapacity += inv.MaxStudentsPerExam * maxInt(inv.MaxConcurrentExams, 1)
		}
	}
	if invCapacity < totalExpected {
		p.warnings = append(p.warnings, fmt.Sprintf(
			"total invigilator student capacity (%d) is below total expected students (%d)", invCapacity, totalExpected))
	}

	largestRoom := 0
	for _, roomID := range p.roomOrder {
		if c := p.Rooms[roomID].ExamCapacity; c > largestRoom {
			largestRoom = c
		}
	}
	for _, examID := range p.examOrder {
		exam := p.Exams[examID]
		if exam.ExpectedStudents > largestRoom && exam.IsPractical {
			p.warnings = append(p.warnings, fmt.Sprintf(
				"exam %s expects %d students but the largest room seats %d and practical exams are not split",
				examID, exam.ExpectedStudents, largestRoom))
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
