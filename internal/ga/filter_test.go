package ga

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-exam-scheduler/internal/cp"
	"github.com/noah-isme/uni-exam-scheduler/internal/models"
	"github.com/noah-isme/uni-exam-scheduler/pkg/jobs"
)

func uid(n int) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n))
}

func yKey(exam, room, slot int) cp.RoomKey {
	return cp.RoomKey{Exam: uid(exam), Room: uid(room), Slot: uid(slot)}
}

// filterProblem builds a problem with enough rooms and invigilators that pruning
// has something to remove: 3 exams, 4 rooms, 2 days x 3 slots, 4 invigilators.
func filterProblem(t *testing.T) *models.Problem {
	t.Helper()

	days := map[uuid.UUID]*models.Day{}
	slots := map[uuid.UUID]*models.TimeSlot{}
	for d := 0; d < 2; d++ {
		day := &models.Day{ID: uid(8000 + d), Date: time.Date(2026, 3, 2+d, 0, 0, 0, 0, time.UTC)}
		for s := 0; s < 3; s++ {
			slot := &models.TimeSlot{
				ID:              uid(9000 + d*100 + s),
				DayID:           day.ID,
				Name:            fmt.Sprintf("P%d", s+1),
				StartMinutes:    9*60 + s*60,
				EndMinutes:      9*60 + (s+1)*60,
				DurationMinutes: 60,
			}
			slots[slot.ID] = slot
			day.SlotIDs = append(day.SlotIDs, slot.ID)
		}
		days[day.ID] = day
	}

	exams := map[uuid.UUID]*models.Exam{}
	students := map[uuid.UUID]*models.Student{}
	for e := 0; e < 3; e++ {
		exam := &models.Exam{
			ID:               uid(100 + e),
			DurationMinutes:  60,
			ExpectedStudents: 2,
			Students: map[uuid.UUID]models.RegistrationType{
				uid(500 + e*2):   models.RegistrationNormal,
				uid(500 + e*2 + 1): models.RegistrationNormal,
			},
			InstructorIDs: map[uuid.UUID]struct{}{},
			Prerequisites: map[uuid.UUID]struct{}{},
		}
		exams[exam.ID] = exam
		for id := range exam.Students {
			students[id] = &models.Student{ID: id}
		}
	}

	rooms := map[uuid.UUID]*models.Room{}
	for r := 0; r < 4; r++ {
		room := &models.Room{
			ID: uid(300 + r), Code: fmt.Sprintf("R-%d", r),
			Capacity: 10 + r, ExamCapacity: 10 + r, MaxInvPerRoom: 2,
		}
		rooms[room.ID] = room
	}

	invs := map[uuid.UUID]*models.Invigilator{}
	for i := 0; i < 4; i++ {
		inv := &models.Invigilator{
			ID: uid(700 + i), CanInvigilate: true,
			MaxConcurrentExams: 2, MaxStudentsPerExam: 100,
			Unavailable: map[models.UnavailableKey]struct{}{},
		}
		invs[inv.ID] = inv
	}

	problem, err := models.NewProblem(models.ProblemInput{
		SessionID:    uid(1),
		Exams:        exams,
		Rooms:        rooms,
		Days:         days,
		Slots:        slots,
		Students:     students,
		Invigilators: invs,
	})
	require.NoError(t, err)
	return problem
}

func TestFilterReducesDomainAndKeepsCoverage(t *testing.T) {
	problem := filterProblem(t)
	filter := NewFilter(jobs.NewPool(jobs.PoolConfig{Workers: 2}), nil, Config{
		PopulationSize: 20,
		Generations:    10,
		TimeBudget:     10 * time.Second,
	})

	result := filter.Run(context.Background(), problem, 42)
	require.Equal(t, ModeGA, result.Mode)
	assert.LessOrEqual(t, result.YAfter, result.YBefore)
	assert.LessOrEqual(t, result.UAfter, result.UBefore)

	// Coverage floors: every exam keeps starts, every kept start keeps rooms,
	// every kept (exam, room, slot) keeps at least one invigilator.
	for _, examID := range problem.ExamIDs() {
		starts := result.Domain.Starts[examID]
		require.NotEmpty(t, starts, "exam %s lost all starts", examID)
		roomOptions := 0
		for _, slotID := range starts {
			rooms := result.Domain.Rooms[cp.StartKey{Exam: examID, Slot: slotID}]
			require.NotEmpty(t, rooms)
			roomOptions += len(rooms)
			for _, roomID := range rooms {
				invs := result.Domain.Invigilators[cp.RoomKey{Exam: examID, Room: roomID, Slot: slotID}]
				assert.NotEmpty(t, invs)
			}
		}
		assert.GreaterOrEqual(t, roomOptions, minRoomsPerExam)
	}
}

func TestFilterDeterministicForSeed(t *testing.T) {
	problem := filterProblem(t)
	mk := func() *Result {
		filter := NewFilter(jobs.NewPool(jobs.PoolConfig{Workers: 3}), nil, Config{
			PopulationSize: 20,
			Generations:    10,
			TimeBudget:     10 * time.Second,
		})
		return filter.Run(context.Background(), problem, 42)
	}
	first := mk()
	second := mk()
	assert.Equal(t, first.YAfter, second.YAfter)
	assert.Equal(t, first.UAfter, second.UAfter)
	assert.Equal(t, len(first.Hints), len(second.Hints))
}

func TestFilterFallbackOnCancelledContext(t *testing.T) {
	problem := filterProblem(t)
	filter := NewFilter(jobs.NewPool(jobs.PoolConfig{Workers: 1}), nil, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := filter.Run(ctx, problem, 7)
	require.Equal(t, ModeFallback, result.Mode)
	assert.NotEmpty(t, result.Domain.Starts)
	for key, rooms := range result.Domain.Rooms {
		assert.NotEmpty(t, rooms, "start %v lost all rooms", key)
	}
}

func TestManagerEvolveTracksUsage(t *testing.T) {
	problem := filterProblem(t)
	manager := NewManager(problem, cp.FullDomain(problem), jobs.NewPool(jobs.PoolConfig{Workers: 1}), nil, Config{
		PopulationSize: 20,
		Generations:    10,
		TimeBudget:     5 * time.Second,
		Seed:           1,
	})

	report, err := manager.Evolve(context.Background())
	require.NoError(t, err)
	assert.Greater(t, report.Generations, 0)
	usageY, usageU := manager.UsageCounts()
	assert.NotEmpty(t, usageY)
	assert.NotEmpty(t, usageU)
	assert.NotNil(t, manager.Best())
}

func TestLayoutOffsets(t *testing.T) {
	problem := filterProblem(t)
	layout := NewLayout(problem)

	expected := len(layout.ExamIDs) +
		len(layout.ExamIDs)*len(layout.RoomIDs) +
		len(layout.ExamIDs)*len(layout.SlotIDs) +
		len(layout.InvIDs)
	assert.Equal(t, expected, layout.Size())

	genes := make([]float64, layout.Size())
	for i := range genes {
		genes[i] = float64(i)
	}
	assert.Equal(t, 0.0, layout.ExamPriority(genes, 0))
	assert.Equal(t, float64(len(layout.ExamIDs)), layout.RoomPreference(genes, 0, 0))
	assert.Equal(t, float64(layout.Size()-len(layout.InvIDs)), layout.InvigilatorPreference(genes, 0))
}
