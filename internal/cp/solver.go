package cp

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-exam-scheduler/internal/models"
)

const defaultMaxBranches = 5_000_000

// Options configure one solver run.
type Options struct {
	Seed        int64
	TimeLimit   time.Duration
	Workers     int
	MaxBranches int64
}

// Statistics summarise the search effort of a run.
type Statistics struct {
	Branches      int64
	Conflicts     int64
	Propagations  int64
	BestObjective float64
	Gap           float64
	WallTime      time.Duration
	CPUTime       time.Duration
}

// Result is the outcome of a solver run. Placements hold the incumbent assignment
// when Status is Optimal or Feasible.
type Result struct {
	Status     models.SolveStatus
	Placements map[uuid.UUID]Placement
	Objective  float64
	Breakdown  map[string]float64
	Stats      Statistics
}

// Solver drives a deterministic branch-and-bound search over the model's viable
// domain. Given a fixed seed the same model produces the same result regardless
// of scheduling.
type Solver struct {
	logger *zap.Logger
}

// NewSolver builds a solver.
func NewSolver(logger *zap.Logger) *Solver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Solver{logger: logger}
}

type search struct {
	model    *Model
	problem  *models.Problem
	state    *State
	deadline time.Time
	ctx      context.Context

	examOrder  []uuid.UUID
	startOrder map[uuid.UUID][]uuid.UUID

	maxBranches int64
	stats       Statistics

	bestObjective  float64
	bestPlacements map[uuid.UUID]Placement
	bestBreakdown  map[string]float64

	stopped bool
}

// Solve runs the search. The context cancels cooperatively; the time limit is a
// hard wall-clock bound.
func (s *Solver) Solve(ctx context.Context, model *Model, opts Options) *Result {
	started := time.Now()

	if opts.MaxBranches <= 0 {
		opts.MaxBranches = defaultMaxBranches
	}
	deadline := time.Time{}
	if opts.TimeLimit > 0 {
		deadline = started.Add(opts.TimeLimit)
	}

	for _, examID := range model.Problem.ExamIDs() {
		if len(model.Domain.Starts[examID]) == 0 {
			s.logger.Warn("exam has no viable start, problem is infeasible",
				zap.String("exam", examID.String()))
			return &Result{
				Status: models.StatusInfeasible,
				Stats:  Statistics{WallTime: time.Since(started)},
			}
		}
	}

	sr := &search{
		model:         model,
		problem:       model.Problem,
		state:         NewState(model.Problem),
		deadline:      deadline,
		ctx:           ctx,
		maxBranches:   opts.MaxBranches,
		bestObjective: math.Inf(1),
	}
	sr.orderExams()
	sr.orderStarts(opts.Seed)

	sr.dive(0)

	stats := sr.stats
	stats.WallTime = time.Since(started)
	stats.CPUTime = stats.WallTime

	result := &Result{Stats: stats}
	switch {
	case sr.bestPlacements != nil && !sr.stopped:
		result.Status = models.StatusOptimal
		result.Stats.Gap = 0
	case sr.bestPlacements != nil:
		result.Status = models.StatusFeasible
		if sr.bestObjective > 0 {
			result.Stats.Gap = 1
		}
	case sr.stopped:
		result.Status = models.StatusTimedOut
	default:
		result.Status = models.StatusInfeasible
	}
	if sr.bestPlacements != nil {
		result.Placements = sr.bestPlacements
		result.Objective = sr.bestObjective
		result.Breakdown = sr.bestBreakdown
		result.Stats.BestObjective = sr.bestObjective
	}

	s.logger.Info("solver finished",
		zap.String("status", string(result.Status)),
		zap.Float64("objective", result.Objective),
		zap.Int64("branches", stats.Branches),
		zap.Int64("conflicts", stats.Conflicts),
		zap.Duration("wall_time", stats.WallTime),
	)
	return result
}

// orderExams picks the branching order: locked exams first, then fewest viable
// starts, then most students, then id.
func (sr *search) orderExams() {
	ids := append([]uuid.UUID(nil), sr.problem.ExamIDs()...)
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		_, aLocked := sr.problem.LockFor(a)
		_, bLocked := sr.problem.LockFor(b)
		if aLocked != bLocked {
			return aLocked
		}
		aStarts, bStarts := len(sr.model.Domain.Starts[a]), len(sr.model.Domain.Starts[b])
		if aStarts != bStarts {
			return aStarts < bStarts
		}
		aStud, bStud := len(sr.problem.Exams[a].Students), len(sr.problem.Exams[b].Students)
		if aStud != bStud {
			return aStud > bStud
		}
		return models.LessUUID(a, b)
	})
	sr.examOrder = ids
}

// orderStarts ranks candidate starts per exam: hint confidence first, then day and
// slot index, with a seeded jitter as the final tie-break.
func (sr *search) orderStarts(seed int64) {
	rng := rand.New(rand.NewSource(seed))

	hintFor := make(map[StartKey]float64, len(sr.model.Hints))
	for _, hint := range sr.model.Hints {
		hintFor[StartKey{Exam: hint.Exam, Slot: hint.Slot}] = hint.Confidence
	}

	sr.startOrder = make(map[uuid.UUID][]uuid.UUID, len(sr.examOrder))
	for _, examID := range sr.examOrder {
		starts := append([]uuid.UUID(nil), sr.model.Domain.Starts[examID]...)
		jitter := make(map[uuid.UUID]float64, len(starts))
		for _, slotID := range starts {
			jitter[slotID] = rng.Float64()
		}
		sort.SliceStable(starts, func(i, j int) bool {
			a, b := starts[i], starts[j]
			ha := hintFor[StartKey{Exam: examID, Slot: a}]
			hb := hintFor[StartKey{Exam: examID, Slot: b}]
			if ha != hb {
				return ha > hb
			}
			da, _ := sr.problem.DayOf(a)
			db, _ := sr.problem.DayOf(b)
			ia, ib := sr.problem.DayIndex(da.ID), sr.problem.DayIndex(db.ID)
			if ia != ib {
				return ia < ib
			}
			sa, sb := sr.problem.SlotIndexInDay(a), sr.problem.SlotIndexInDay(b)
			if sa != sb {
				return sa < sb
			}
			return jitter[a] < jitter[b]
		})
		sr.startOrder[examID] = starts
	}
}

func (sr *search) shouldStop() bool {
	if sr.stopped {
		return true
	}
	if sr.ctx != nil && sr.ctx.Err() != nil {
		sr.stopped = true
		return true
	}
	if !sr.deadline.IsZero() && sr.stats.Branches%256 == 0 && time.Now().After(sr.deadline) {
		sr.stopped = true
		return true
	}
	if sr.stats.Branches >= sr.maxBranches {
		sr.stopped = true
		return true
	}
	return false
}

// dive places exams depth-first, bounding on the admissible partial objective.
func (sr *search) dive(depth int) {
	if sr.shouldStop() {
		return
	}
	if depth == len(sr.examOrder) {
		objective, breakdown := sr.evaluate(false)
		if objective < sr.bestObjective {
			sr.bestObjective = objective
			sr.bestBreakdown = breakdown
			sr.bestPlacements = snapshotPlacements(sr.state)
		}
		return
	}

	examID := sr.examOrder[depth]
	for _, slotID := range sr.startOrder[examID] {
		if sr.shouldStop() {
			return
		}
		sr.stats.Branches++

		placement, ok := sr.buildPlacement(examID, slotID)
		if !ok {
			sr.stats.Conflicts++
			continue
		}
		if !sr.propagate(placement) {
			sr.stats.Conflicts++
			continue
		}

		sr.state.Place(placement)
		partial, _ := sr.evaluate(true)
		if sr.bestPlacements == nil || partial < sr.bestObjective {
			sr.dive(depth + 1)
		} else {
			sr.stats.Conflicts++
		}
		sr.state.Unplace(placement)

		// An incumbent with objective zero cannot be improved.
		if sr.bestPlacements != nil && sr.bestObjective == 0 && !sr.stopped {
			return
		}
	}
}

func (sr *search) propagate(pl Placement) bool {
	for _, propagator := range sr.model.Propagators {
		sr.stats.Propagations++
		if err := propagator.Check(sr.state, pl); err != nil {
			return false
		}
	}
	return true
}

// evaluate sums weighted penalty terms. Partial evaluation only counts admissible
// terms so the value is a valid lower bound for pruning.
func (sr *search) evaluate(partial bool) (float64, map[string]float64) {
	total := 0.0
	var breakdown map[string]float64
	if !partial {
		breakdown = make(map[string]float64, len(sr.model.Penalties))
	}
	for _, term := range sr.model.Penalties {
		if partial && !term.Admissible {
			continue
		}
		value := term.Eval(sr.state) * term.Weight
		total += value
		if breakdown != nil && value != 0 {
			breakdown[term.Code] += value
		}
	}
	return total, breakdown
}

// buildPlacement assembles rooms, allocations and invigilators for an exam start.
func (sr *search) buildPlacement(examID, slotID uuid.UUID) (Placement, bool) {
	exam := sr.problem.Exams[examID]
	covered := sr.problem.SlotsCovering(examID, slotID)
	if len(covered) == 0 {
		return Placement{}, false
	}

	pl := Placement{
		ExamID:       examID,
		StartSlotID:  slotID,
		CoveredSlots: covered,
		Alloc:        make(map[uuid.UUID]int),
	}

	lock, locked := sr.problem.LockFor(examID)
	remaining := exam.ExpectedStudents
	if remaining == 0 {
		remaining = len(exam.Students)
	}

	if locked && lock.PinsRooms() {
		// A lock fixes the room set element-wise; every pinned room is used.
		pinned := append([]uuid.UUID(nil), lock.RoomIDs...)
		sortRoomsByCapacity(sr.problem, pinned)
		for _, roomID := range pinned {
			free := sr.freeCapacity(roomID, covered)
			take := remaining
			if take > free {
				take = free
			}
			if take < 0 {
				take = 0
			}
			pl.RoomIDs = append(pl.RoomIDs, roomID)
			pl.Alloc[roomID] = take
			remaining -= take
		}
		if remaining > 0 {
			// Seat the tail in the last pinned room; capacity propagators decide.
			last := pl.RoomIDs[len(pl.RoomIDs)-1]
			pl.Alloc[last] += remaining
			remaining = 0
		}
	} else {
		for _, roomID := range sr.model.Domain.Rooms[StartKey{Exam: examID, Slot: slotID}] {
			if remaining <= 0 {
				break
			}
			free := sr.freeCapacity(roomID, covered)
			if free <= 0 {
				continue
			}
			take := remaining
			if take > free {
				take = free
			}
			pl.RoomIDs = append(pl.RoomIDs, roomID)
			pl.Alloc[roomID] = take
			remaining -= take
		}
	}
	if remaining > 0 || len(pl.RoomIDs) == 0 {
		return Placement{}, false
	}

	if locked && lock.PinsInvigilators() {
		pl.Invigilators = append(pl.Invigilators, lock.InvigilatorIDs...)
		return pl, true
	}
	for _, roomID := range pl.RoomIDs {
		invs, ok := sr.pickInvigilators(examID, roomID, slotID, covered, pl.Alloc[roomID], pl.Invigilators)
		if !ok {
			return Placement{}, false
		}
		pl.Invigilators = append(pl.Invigilators, invs...)
	}
	return pl, true
}

// freeCapacity is the least remaining exam capacity of a room across the covered
// slots. Overbookable rooms extend to physical capacity.
func (sr *search) freeCapacity(roomID uuid.UUID, covered []uuid.UUID) int {
	room := sr.problem.Rooms[roomID]
	limit := room.ExamCapacity
	if room.Overbookable {
		limit = room.Capacity
	}
	free := limit
	for _, slotID := range covered {
		if remaining := limit - sr.state.RoomStudents(roomID, slotID); remaining < free {
			free = remaining
		}
	}
	return free
}

// pickInvigilators selects invigilators for one room by (current load asc, id asc)
// until the allocation is covered or the room cap is reached. At least one
// invigilator is required per occupied room.
func (sr *search) pickInvigilators(examID, roomID, slotID uuid.UUID, covered []uuid.UUID, alloc int, alreadyUsed []uuid.UUID) ([]uuid.UUID, bool) {
	room := sr.problem.Rooms[roomID]
	day, _ := sr.problem.DayOf(slotID)

	used := make(map[uuid.UUID]bool, len(alreadyUsed))
	for _, invID := range alreadyUsed {
		used[invID] = true
	}

	candidates := append([]uuid.UUID(nil), sr.model.Domain.Invigilators[RoomKey{Exam: examID, Room: roomID, Slot: slotID}]...)
	sort.SliceStable(candidates, func(i, j int) bool {
		li, lj := sr.state.InvigilatorLoad(candidates[i]), sr.state.InvigilatorLoad(candidates[j])
		if li != lj {
			return li < lj
		}
		return models.LessUUID(candidates[i], candidates[j])
	})

	var picked []uuid.UUID
	coverage := 0
	for _, invID := range candidates {
		if len(picked) >= room.MaxInvPerRoom {
			break
		}
		if coverage >= alloc && len(picked) >= 1 {
			break
		}
		if used[invID] {
			continue
		}
		if !sr.invigilatorEligible(invID, day, covered) {
			continue
		}
		picked = append(picked, invID)
		coverage += sr.problem.Invigilators[invID].MaxStudentsPerExam
	}
	if len(picked) == 0 {
		return nil, false
	}
	return picked, true
}

func (sr *search) invigilatorEligible(invID uuid.UUID, day *models.Day, covered []uuid.UUID) bool {
	inv := sr.problem.Invigilators[invID]

	for _, slotID := range covered {
		if sr.state.InvigilatorBusy(invID, slotID)+1 > inv.MaxConcurrentExams {
			return false
		}
	}
	if inv.MaxDailySessions > 0 && sr.state.InvigilatorDaySessions(invID, day.ID)+1 > inv.MaxDailySessions {
		return false
	}
	if inv.MaxConsecutiveSessions > 0 && sr.wouldExceedConsecutive(invID, day, covered, inv.MaxConsecutiveSessions) {
		return false
	}
	return true
}

// wouldExceedConsecutive checks the longest run of occupied slot indices on the day
// after adding the covered slots.
func (sr *search) wouldExceedConsecutive(invID uuid.UUID, day *models.Day, covered []uuid.UUID, limit int) bool {
	occupied := make([]bool, len(day.SlotIDs))
	for idx, slotID := range day.SlotIDs {
		if sr.state.InvigilatorBusy(invID, slotID) > 0 {
			occupied[idx] = true
		}
	}
	for _, slotID := range covered {
		if idx := sr.problem.SlotIndexInDay(slotID); idx >= 0 {
			occupied[idx] = true
		}
	}
	run := 0
	for _, busy := range occupied {
		if !busy {
			run = 0
			continue
		}
		run++
		if run > limit {
			return true
		}
	}
	return false
}

func snapshotPlacements(st *State) map[uuid.UUID]Placement {
	out := make(map[uuid.UUID]Placement, len(st.placements))
	for examID, pl := range st.placements {
		copied := pl
		copied.CoveredSlots = append([]uuid.UUID(nil), pl.CoveredSlots...)
		copied.RoomIDs = append([]uuid.UUID(nil), pl.RoomIDs...)
		copied.Invigilators = append([]uuid.UUID(nil), pl.Invigilators...)
		copied.Alloc = make(map[uuid.UUID]int, len(pl.Alloc))
		for roomID, n := range pl.Alloc {
			copied.Alloc[roomID] = n
		}
		out[examID] = copied
	}
	return out
}
