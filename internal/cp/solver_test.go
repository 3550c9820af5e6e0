package cp_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-exam-scheduler/internal/constraints"
	"github.com/noah-isme/uni-exam-scheduler/internal/cp"
	"github.com/noah-isme/uni-exam-scheduler/internal/dto"
	"github.com/noah-isme/uni-exam-scheduler/internal/models"
)

func uid(n int) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n))
}

// problemFixture assembles a small problem. Defaults: one day with two 60-minute
// slots, one room seating two, two unconstrained invigilators.
type problemFixture struct {
	days        int
	slotsPerDay int
	slotMinutes int
	exams       map[uuid.UUID]*models.Exam
	rooms       map[uuid.UUID]*models.Room
	invs        map[uuid.UUID]*models.Invigilator
	locks       []models.Lock
	rules       []dto.ConstraintRule
	mode        models.SlotMode
}

func newFixture() *problemFixture {
	return &problemFixture{
		days:        1,
		slotsPerDay: 2,
		slotMinutes: 60,
		exams:       map[uuid.UUID]*models.Exam{},
		rooms:       map[uuid.UUID]*models.Room{},
		invs:        map[uuid.UUID]*models.Invigilator{},
		mode:        models.SlotModeFixed,
	}
}

func (f *problemFixture) addExam(n, duration, expected int, students map[uuid.UUID]models.RegistrationType) *models.Exam {
	exam := &models.Exam{
		ID:               uid(n),
		CourseCode:       fmt.Sprintf("CRS-%d", n),
		DurationMinutes:  duration,
		ExpectedStudents: expected,
		Students:         students,
		InstructorIDs:    map[uuid.UUID]struct{}{},
		Prerequisites:    map[uuid.UUID]struct{}{},
	}
	f.exams[exam.ID] = exam
	return exam
}

func (f *problemFixture) addRoom(n, capacity int) *models.Room {
	room := &models.Room{
		ID:            uid(n),
		Code:          fmt.Sprintf("R-%d", n),
		Capacity:      capacity,
		ExamCapacity:  capacity,
		MaxInvPerRoom: 2,
	}
	f.rooms[room.ID] = room
	return room
}

func (f *problemFixture) addInvigilator(n int) *models.Invigilator {
	inv := &models.Invigilator{
		ID:                 uid(n),
		Name:               fmt.Sprintf("inv-%d", n),
		CanInvigilate:      true,
		MaxConcurrentExams: 4,
		MaxStudentsPerExam: 100,
		Unavailable:        map[models.UnavailableKey]struct{}{},
	}
	f.invs[inv.ID] = inv
	return inv
}

func slotUID(day, slot int) uuid.UUID { return uid(9000 + day*100 + slot) }
func dayUID(day int) uuid.UUID        { return uid(8000 + day) }

func (f *problemFixture) build(t *testing.T) *models.Problem {
	t.Helper()

	days := map[uuid.UUID]*models.Day{}
	slots := map[uuid.UUID]*models.TimeSlot{}
	for d := 0; d < f.days; d++ {
		day := &models.Day{
			ID:   dayUID(d),
			Date: time.Date(2026, 3, 2+d, 0, 0, 0, 0, time.UTC),
		}
		for s := 0; s < f.slotsPerDay; s++ {
			start := 9*60 + s*f.slotMinutes
			slot := &models.TimeSlot{
				ID:              slotUID(d, s),
				DayID:           day.ID,
				Name:            fmt.Sprintf("P%d", s+1),
				StartMinutes:    start,
				EndMinutes:      start + f.slotMinutes,
				DurationMinutes: f.slotMinutes,
			}
			slots[slot.ID] = slot
			day.SlotIDs = append(day.SlotIDs, slot.ID)
		}
		days[day.ID] = day
	}

	if len(f.invs) == 0 {
		f.addInvigilator(700)
		f.addInvigilator(701)
	}

	students := map[uuid.UUID]*models.Student{}
	for _, exam := range f.exams {
		for studentID := range exam.Students {
			students[studentID] = &models.Student{ID: studentID}
		}
	}

	registry := constraints.NewRegistry(nil)
	active := registry.Resolve(dto.ConstraintConfig{Rules: f.rules}, f.mode)

	problem, err := models.NewProblem(models.ProblemInput{
		SessionID:    uid(1),
		SlotMode:     f.mode,
		Exams:        f.exams,
		Rooms:        f.rooms,
		Days:         days,
		Slots:        slots,
		Students:     students,
		Invigilators: f.invs,
		Locks:        f.locks,
		Constraints:  active,
	})
	require.NoError(t, err)
	return problem
}

func solve(t *testing.T, problem *models.Problem, seed int64) *cp.Result {
	t.Helper()
	model := cp.NewModel(problem, cp.FullDomain(problem))
	constraints.Post(model, problem.Constraints, nil)
	return cp.NewSolver(nil).Solve(context.Background(), model, cp.Options{
		Seed:      seed,
		TimeLimit: 30 * time.Second,
	})
}

func hardRule(code string) dto.ConstraintRule {
	return dto.ConstraintRule{Code: code, Enabled: true}
}

func TestSolveMinimalFeasible(t *testing.T) {
	f := newFixture()
	f.addExam(100, 60, 1, map[uuid.UUID]models.RegistrationType{uid(500): models.RegistrationNormal})
	f.addExam(101, 60, 1, map[uuid.UUID]models.RegistrationType{uid(501): models.RegistrationNormal})
	f.addRoom(300, 2)
	problem := f.build(t)

	result := solve(t, problem, 7)
	require.Equal(t, models.StatusOptimal, result.Status)
	assert.Zero(t, result.Objective)
	assert.Len(t, result.Placements, 2)
	for examID, pl := range result.Placements {
		assert.True(t, problem.IsStartFeasible(examID, pl.StartSlotID))
		assert.NotEmpty(t, pl.RoomIDs)
		assert.NotEmpty(t, pl.Invigilators)
	}
}

func TestSolveForcedConflictAsSoft(t *testing.T) {
	shared := uid(500)
	f := newFixture()
	f.addExam(100, 60, 1, map[uuid.UUID]models.RegistrationType{shared: models.RegistrationNormal})
	f.addExam(101, 60, 1, map[uuid.UUID]models.RegistrationType{shared: models.RegistrationNormal})
	f.addRoom(300, 2)
	weight := 100.0
	f.rules = []dto.ConstraintRule{
		{Code: models.CodeUnifiedStudentConflict, Enabled: true, Type: "soft", Weight: &weight},
		{Code: models.CodeRoomCapacityHard, Enabled: true},
		{Code: models.CodeMinimumGap, Enabled: true, Weight: &weight},
	}
	problem := f.build(t)

	result := solve(t, problem, 7)
	require.Contains(t, []models.SolveStatus{models.StatusOptimal, models.StatusFeasible}, result.Status)
	assert.Len(t, result.Placements, 2, "both exams must be scheduled")
	assert.GreaterOrEqual(t, result.Objective, 100.0)
	assert.Equal(t, 100.0, result.Breakdown[models.CodeMinimumGap], "the conflict is counted once")
}

func TestSolveHardCapacitySplitsAcrossRooms(t *testing.T) {
	studentsOf := func(base, n int) map[uuid.UUID]models.RegistrationType {
		out := make(map[uuid.UUID]models.RegistrationType, n)
		for i := 0; i < n; i++ {
			out[uid(base+i)] = models.RegistrationNormal
		}
		return out
	}
	f := newFixture()
	f.addExam(100, 60, 50, studentsOf(500, 50))
	f.addRoom(300, 30)
	f.addRoom(301, 20)
	problem := f.build(t)

	result := solve(t, problem, 7)
	require.Equal(t, models.StatusOptimal, result.Status)
	pl := result.Placements[uid(100)]
	require.Len(t, pl.RoomIDs, 2)
	assert.Equal(t, 30, pl.Alloc[uid(300)])
	assert.Equal(t, 20, pl.Alloc[uid(301)])
}

func TestSolvePrerequisiteOrder(t *testing.T) {
	f := newFixture()
	f.slotsPerDay = 3
	e1 := f.addExam(100, 60, 1, map[uuid.UUID]models.RegistrationType{uid(500): models.RegistrationNormal})
	e2 := f.addExam(101, 60, 1, map[uuid.UUID]models.RegistrationType{uid(501): models.RegistrationNormal})
	e2.Prerequisites[e1.ID] = struct{}{}
	f.addRoom(300, 2)
	problem := f.build(t)

	result := solve(t, problem, 7)
	require.Equal(t, models.StatusOptimal, result.Status)
	start1 := problem.SlotIndexInDay(result.Placements[e1.ID].StartSlotID)
	start2 := problem.SlotIndexInDay(result.Placements[e2.ID].StartSlotID)
	assert.Less(t, start1, start2)
}

func TestSolveLockHonored(t *testing.T) {
	f := newFixture()
	f.addExam(100, 60, 1, map[uuid.UUID]models.RegistrationType{uid(500): models.RegistrationNormal})
	f.addRoom(300, 2)
	f.addRoom(301, 2)
	lockedSlot := slotUID(0, 1)
	f.locks = []models.Lock{{
		ExamID:     uid(100),
		TimeSlotID: &lockedSlot,
		RoomIDs:    []uuid.UUID{uid(301)},
	}}
	problem := f.build(t)

	result := solve(t, problem, 7)
	require.Contains(t, []models.SolveStatus{models.StatusOptimal, models.StatusFeasible}, result.Status)
	pl := result.Placements[uid(100)]
	assert.Equal(t, lockedSlot, pl.StartSlotID)
	assert.Equal(t, []uuid.UUID{uid(301)}, pl.RoomIDs)
}

func TestSolveInfeasibleByDuration(t *testing.T) {
	f := newFixture()
	f.addExam(100, 240, 1, map[uuid.UUID]models.RegistrationType{uid(500): models.RegistrationNormal})
	f.addRoom(300, 2)
	problem := f.build(t)

	result := solve(t, problem, 7)
	assert.Equal(t, models.StatusInfeasible, result.Status)
	assert.Empty(t, result.Placements)
}

func TestSolveDeterministicAcrossRuns(t *testing.T) {
	build := func() *models.Problem {
		f := newFixture()
		f.days = 2
		f.slotsPerDay = 3
		f.addExam(100, 60, 2, map[uuid.UUID]models.RegistrationType{
			uid(500): models.RegistrationNormal, uid(501): models.RegistrationNormal})
		f.addExam(101, 60, 1, map[uuid.UUID]models.RegistrationType{uid(500): models.RegistrationNormal})
		f.addExam(102, 120, 1, map[uuid.UUID]models.RegistrationType{uid(502): models.RegistrationNormal})
		f.addRoom(300, 2)
		f.addRoom(301, 1)
		return f.build(t)
	}

	first := solve(t, build(), 42)
	second := solve(t, build(), 42)
	require.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Objective, second.Objective)
	for examID, pl := range first.Placements {
		other := second.Placements[examID]
		assert.Equal(t, pl.StartSlotID, other.StartSlotID, "exam %s start differs", examID)
		assert.Equal(t, pl.RoomIDs, other.RoomIDs, "exam %s rooms differ", examID)
		assert.Equal(t, pl.Invigilators, other.Invigilators, "exam %s invigilators differ", examID)
	}
}

func TestSolveCancelledContext(t *testing.T) {
	f := newFixture()
	f.addExam(100, 60, 1, map[uuid.UUID]models.RegistrationType{uid(500): models.RegistrationNormal})
	f.addRoom(300, 2)
	problem := f.build(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	model := cp.NewModel(problem, cp.FullDomain(problem))
	constraints.Post(model, problem.Constraints, nil)
	result := cp.NewSolver(nil).Solve(ctx, model, cp.Options{Seed: 1, TimeLimit: time.Second})
	assert.Equal(t, models.StatusTimedOut, result.Status)
}
