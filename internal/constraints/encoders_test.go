package constraints

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-exam-scheduler/internal/cp"
	"github.com/noah-isme/uni-exam-scheduler/internal/models"
)

func uid(n int) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n))
}

// encoderProblem: one day, three 60-minute slots, one room, two exams that share
// student 50.
func encoderProblem(t *testing.T) *models.Problem {
	t.Helper()

	day := &models.Day{ID: uid(80), Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)}
	slots := map[uuid.UUID]*models.TimeSlot{}
	for s := 0; s < 3; s++ {
		slot := &models.TimeSlot{
			ID:              uid(90 + s),
			DayID:           day.ID,
			Name:            fmt.Sprintf("P%d", s+1),
			StartMinutes:    9*60 + s*60,
			EndMinutes:      9*60 + (s+1)*60,
			DurationMinutes: 60,
		}
		slots[slot.ID] = slot
		day.SlotIDs = append(day.SlotIDs, slot.ID)
	}

	mkExam := func(n int) *models.Exam {
		return &models.Exam{
			ID:               uid(n),
			DurationMinutes:  60,
			ExpectedStudents: 1,
			Students:         map[uuid.UUID]models.RegistrationType{uid(50): models.RegistrationNormal},
			InstructorIDs:    map[uuid.UUID]struct{}{},
			Prerequisites:    map[uuid.UUID]struct{}{},
		}
	}
	exams := map[uuid.UUID]*models.Exam{uid(10): mkExam(10), uid(11): mkExam(11)}

	problem, err := models.NewProblem(models.ProblemInput{
		SessionID: uid(1),
		Exams:     exams,
		Rooms: map[uuid.UUID]*models.Room{
			uid(30): {ID: uid(30), Code: "R1", Capacity: 5, ExamCapacity: 5, MaxInvPerRoom: 1},
		},
		Days:     map[uuid.UUID]*models.Day{day.ID: day},
		Slots:    slots,
		Students: map[uuid.UUID]*models.Student{uid(50): {ID: uid(50)}},
		Invigilators: map[uuid.UUID]*models.Invigilator{
			uid(70): {ID: uid(70), CanInvigilate: true, MaxConcurrentExams: 2, MaxStudentsPerExam: 50,
				Unavailable: map[models.UnavailableKey]struct{}{}},
		},
	})
	require.NoError(t, err)
	return problem
}

func placementAt(examID uuid.UUID, slot int) cp.Placement {
	return cp.Placement{
		ExamID:       examID,
		StartSlotID:  uid(90 + slot),
		CoveredSlots: []uuid.UUID{uid(90 + slot)},
		RoomIDs:      []uuid.UUID{uid(30)},
		Alloc:        map[uuid.UUID]int{uid(30): 1},
		Invigilators: []uuid.UUID{uid(70)},
	}
}

func activeRule(code string, typ models.ConstraintType, weight float64, params map[string]float64) models.ActiveConstraint {
	return models.ActiveConstraint{
		Declaration: models.ConstraintDeclaration{Code: code, Type: typ, ParameterDefaults: params},
		Weight:      weight,
		Parameters:  params,
	}
}

func TestUnifiedStudentConflictHardRejectsOverlap(t *testing.T) {
	problem := encoderProblem(t)
	model := cp.NewModel(problem, cp.FullDomain(problem))
	Post(model, []models.ActiveConstraint{
		activeRule(models.CodeUnifiedStudentConflict, models.ConstraintHard, 0, nil),
	}, nil)
	require.Len(t, model.Propagators, 1)

	state := cp.NewState(problem)
	state.Place(placementAt(uid(10), 0))

	assert.Error(t, model.Propagators[0].Check(state, placementAt(uid(11), 0)))
	assert.NoError(t, model.Propagators[0].Check(state, placementAt(uid(11), 1)))
}

func TestUnifiedStudentConflictSoftCountsOnce(t *testing.T) {
	problem := encoderProblem(t)
	model := cp.NewModel(problem, cp.FullDomain(problem))
	Post(model, []models.ActiveConstraint{
		activeRule(models.CodeUnifiedStudentConflict, models.ConstraintSoft, 100, nil),
	}, nil)
	require.Len(t, model.Penalties, 1)

	state := cp.NewState(problem)
	state.Place(placementAt(uid(10), 0))
	state.Place(placementAt(uid(11), 0))
	assert.Equal(t, 1.0, model.Penalties[0].Eval(state))
}

func TestMinimumGapPenalty(t *testing.T) {
	problem := encoderProblem(t)
	model := cp.NewModel(problem, cp.FullDomain(problem))
	Post(model, []models.ActiveConstraint{
		activeRule(models.CodeMinimumGap, models.ConstraintSoft, 100, map[string]float64{"min_gap_slots": 1}),
	}, nil)
	require.Len(t, model.Penalties, 1)

	state := cp.NewState(problem)
	state.Place(placementAt(uid(10), 0))
	state.Place(placementAt(uid(11), 1))
	assert.Equal(t, 1.0, model.Penalties[0].Eval(state), "back-to-back exams violate a one-slot gap")

	state.Unplace(placementAt(uid(11), 1))
	state.Place(placementAt(uid(11), 2))
	assert.Equal(t, 0.0, model.Penalties[0].Eval(state), "one empty slot between exams satisfies the gap")
}

func TestMaxExamsPerStudentPerDayPenalty(t *testing.T) {
	problem := encoderProblem(t)
	model := cp.NewModel(problem, cp.FullDomain(problem))
	Post(model, []models.ActiveConstraint{
		activeRule(models.CodeMaxExamsPerStudentDay, models.ConstraintSoft, 50, map[string]float64{"max_exams_per_day": 1}),
	}, nil)

	state := cp.NewState(problem)
	state.Place(placementAt(uid(10), 0))
	assert.Equal(t, 0.0, model.Penalties[0].Eval(state))
	state.Place(placementAt(uid(11), 2))
	assert.Equal(t, 1.0, model.Penalties[0].Eval(state))
}

func TestRoomCapacityPropagatorRejectsOverflow(t *testing.T) {
	problem := encoderProblem(t)
	model := cp.NewModel(problem, cp.FullDomain(problem))
	Post(model, []models.ActiveConstraint{
		activeRule(models.CodeRoomCapacityHard, models.ConstraintHard, 0, nil),
	}, nil)

	state := cp.NewState(problem)
	big := placementAt(uid(10), 0)
	big.Alloc[uid(30)] = 5
	state.Place(big)

	overflow := placementAt(uid(11), 0)
	overflow.Alloc[uid(30)] = 1
	assert.Error(t, model.Propagators[0].Check(state, overflow))
}

func TestPrerequisiteOrderPropagator(t *testing.T) {
	problem := encoderProblem(t)
	problem.Exams[uid(11)].Prerequisites[uid(10)] = struct{}{}
	model := cp.NewModel(problem, cp.FullDomain(problem))
	Post(model, []models.ActiveConstraint{
		activeRule(models.CodePrerequisiteOrder, models.ConstraintHard, 0, nil),
	}, nil)

	state := cp.NewState(problem)
	state.Place(placementAt(uid(10), 1))

	assert.Error(t, model.Propagators[0].Check(state, placementAt(uid(11), 0)), "dependent cannot precede its prerequisite")
	assert.Error(t, model.Propagators[0].Check(state, placementAt(uid(11), 1)), "dependent cannot overlap its prerequisite")
	assert.NoError(t, model.Propagators[0].Check(state, placementAt(uid(11), 2)))
}

func TestLockCompliancePropagator(t *testing.T) {
	problem := encoderProblem(t)
	lockedSlot := uid(91)
	problem.Locks = append(problem.Locks, models.Lock{ExamID: uid(10), TimeSlotID: &lockedSlot})
	// Rebuild to refresh the lock index.
	rebuilt, err := models.NewProblem(models.ProblemInput{
		SessionID:    problem.SessionID,
		Exams:        problem.Exams,
		Rooms:        problem.Rooms,
		Days:         problem.Days,
		Slots:        problem.Slots,
		Students:     problem.Students,
		Invigilators: problem.Invigilators,
		Locks:        problem.Locks,
	})
	require.NoError(t, err)

	model := cp.NewModel(rebuilt, cp.FullDomain(rebuilt))
	Post(model, []models.ActiveConstraint{
		activeRule(models.CodeLockCompliance, models.ConstraintHard, 0, nil),
	}, nil)

	state := cp.NewState(rebuilt)
	assert.Error(t, model.Propagators[0].Check(state, placementAt(uid(10), 0)))
	assert.NoError(t, model.Propagators[0].Check(state, placementAt(uid(10), 1)))
}

func TestRoomFitPenalty(t *testing.T) {
	problem := encoderProblem(t)
	model := cp.NewModel(problem, cp.FullDomain(problem))
	Post(model, []models.ActiveConstraint{
		activeRule(models.CodeRoomFitPenalty, models.ConstraintSoft, 1, nil),
	}, nil)

	state := cp.NewState(problem)
	state.Place(placementAt(uid(10), 0))
	// Room seats five, one student allocated: slack of four.
	assert.Equal(t, 4.0, model.Penalties[0].Eval(state))
}

func TestPostSkipsUnknownCode(t *testing.T) {
	problem := encoderProblem(t)
	model := cp.NewModel(problem, cp.FullDomain(problem))
	Post(model, []models.ActiveConstraint{
		activeRule("NO_SUCH_RULE", models.ConstraintSoft, 1, nil),
	}, nil)
	assert.Empty(t, model.Propagators)
	assert.Empty(t, model.Penalties)
}
