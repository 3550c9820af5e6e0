package extract

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-exam-scheduler/internal/cp"
	"github.com/noah-isme/uni-exam-scheduler/internal/models"
)

// Extractor materialises a timetable from solver placements. It reads solver
// output only and never mutates it.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor builds an extractor.
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract converts the solver result into a complete solution. Every exam of the
// model appears; exams without a placement are marked unassigned. The returned
// issues list is the validation summary.
func (e *Extractor) Extract(problem *models.Problem, result *cp.Result, solveID uuid.UUID) (*models.Solution, []string) {
	solution := models.NewSolution(problem, solveID)
	solution.Status = result.Status
	solution.Statistics = models.SolverStatistics{
		Branches:      result.Stats.Branches,
		Conflicts:     result.Stats.Conflicts,
		Propagations:  result.Stats.Propagations,
		BestObjective: result.Stats.BestObjective,
		Gap:           result.Stats.Gap,
		WallTime:      result.Stats.WallTime,
		CPUTime:       result.Stats.CPUTime,
	}
	for code, value := range result.Breakdown {
		solution.ObjectiveBreakdown[code] = value
	}

	extracted := 0
	for _, examID := range problem.ExamIDs() {
		placement, ok := result.Placements[examID]
		if !ok {
			continue
		}
		day, found := problem.DayOf(placement.StartSlotID)
		if !found {
			e.logger.Warn("could not resolve day for start slot",
				zap.String("exam", examID.String()),
				zap.String("slot", placement.StartSlotID.String()))
			continue
		}

		rooms := append([]uuid.UUID(nil), placement.RoomIDs...)
		sortRooms(problem, rooms)

		assignment := solution.Assignments[examID]
		assignment.Date = day.Date
		assignment.StartSlotID = placement.StartSlotID
		assignment.RoomIDs = rooms
		assignment.RoomAllocations = allocateRooms(problem, examID, rooms)
		assignment.InvigilatorIDs = sortedIDs(placement.Invigilators)
		assignment.Status = models.AssignmentAssigned
		extracted++
	}

	issues := e.validate(problem, solution)
	e.logger.Info("extracted solution",
		zap.Int("assigned", extracted),
		zap.Int("unassigned", len(solution.UnassignedExamIDs())),
		zap.Int("validation_issues", len(issues)),
	)
	return solution, issues
}

// allocateRooms applies the allocation policy: rooms sorted by exam capacity
// descending, filled greedily; the last room absorbs any remainder.
func allocateRooms(problem *models.Problem, examID uuid.UUID, rooms []uuid.UUID) map[uuid.UUID]int {
	exam := problem.Exams[examID]
	allocations := make(map[uuid.UUID]int, len(rooms))
	remaining := exam.ExpectedStudents
	for i, roomID := range rooms {
		room := problem.Rooms[roomID]
		take := remaining
		if i < len(rooms)-1 && take > room.ExamCapacity {
			take = room.ExamCapacity
		}
		allocations[roomID] = take
		remaining -= take
	}
	return allocations
}

// validate checks the extracted solution against the invariants the solver must
// honour; any finding indicates an engine defect rather than bad input.
func (e *Extractor) validate(problem *models.Problem, solution *models.Solution) []string {
	var issues []string

	for _, examID := range solution.AssignedExamIDs() {
		assignment := solution.Assignments[examID]
		exam := problem.Exams[examID]

		if !problem.IsStartFeasible(examID, assignment.StartSlotID) {
			issues = append(issues, fmt.Sprintf("exam %s starts at an infeasible slot %s", examID, assignment.StartSlotID))
		}
		if total := assignment.AllocatedStudents(); total != exam.ExpectedStudents {
			issues = append(issues, fmt.Sprintf("exam %s allocates %d students, expected %d", examID, total, exam.ExpectedStudents))
		}
		if lock, locked := problem.LockFor(examID); locked {
			if lock.PinsSlot() && *lock.TimeSlotID != assignment.StartSlotID {
				issues = append(issues, fmt.Sprintf("exam %s violates its slot lock", examID))
			}
			if lock.PinsRooms() && !sameSet(lock.RoomIDs, assignment.RoomIDs) {
				issues = append(issues, fmt.Sprintf("exam %s violates its room lock", examID))
			}
			if lock.PinsInvigilators() && !sameSet(lock.InvigilatorIDs, assignment.InvigilatorIDs) {
				issues = append(issues, fmt.Sprintf("exam %s violates its invigilator lock", examID))
			}
		}
	}

	issues = append(issues, e.validateRoomCapacity(problem, solution)...)
	return issues
}

func (e *Extractor) validateRoomCapacity(problem *models.Problem, solution *models.Solution) []string {
	var issues []string
	type roomSlot struct {
		Room uuid.UUID
		Slot uuid.UUID
	}
	seated := make(map[roomSlot]int)
	for _, examID := range solution.AssignedExamIDs() {
		assignment := solution.Assignments[examID]
		for _, slotID := range problem.SlotsCovering(examID, assignment.StartSlotID) {
			for roomID, n := range assignment.RoomAllocations {
				seated[roomSlot{Room: roomID, Slot: slotID}] += n
			}
		}
	}
	for key, n := range seated {
		room := problem.Rooms[key.Room]
		if room == nil || room.Overbookable {
			continue
		}
		if n > room.ExamCapacity {
			issues = append(issues, fmt.Sprintf("room %s holds %d students at slot %s, capacity %d",
				key.Room, n, key.Slot, room.ExamCapacity))
		}
	}
	sort.Strings(issues)
	return issues
}

func sortRooms(problem *models.Problem, rooms []uuid.UUID) {
	sort.SliceStable(rooms, func(i, j int) bool {
		a, b := problem.Rooms[rooms[i]], problem.Rooms[rooms[j]]
		if a.ExamCapacity != b.ExamCapacity {
			return a.ExamCapacity > b.ExamCapacity
		}
		return models.LessUUID(a.ID, b.ID)
	})
}

func sortedIDs(ids []uuid.UUID) []uuid.UUID {
	out := append([]uuid.UUID(nil), ids...)
	models.SortUUIDs(out)
	return out
}

func sameSet(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := sortedIDs(a), sortedIDs(b)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
