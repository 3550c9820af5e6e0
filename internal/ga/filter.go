package ga

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-exam-scheduler/internal/cp"
	"github.com/noah-isme/uni-exam-scheduler/internal/models"
	"github.com/noah-isme/uni-exam-scheduler/pkg/jobs"
)

// Filter modes reported in solve statistics.
const (
	ModeGA       = "ga"
	ModeFallback = "fallback"
	ModeFull     = "full"
)

// Result is the reduced variable space handed to the model builder.
type Result struct {
	Domain cp.Domain
	Hints  []cp.Hint
	Mode   string

	YBefore int
	YAfter  int
	UBefore int
	UAfter  int
}

// Filter runs the GA variable exploration and converts usage statistics into a
// pruned domain. Failures never abort a solve: the filter falls back to a top-k
// heuristic, and callers may ignore it entirely.
type Filter struct {
	pool   *jobs.Pool
	logger *zap.Logger
	cfg    Config
}

// NewFilter builds a filter.
func NewFilter(pool *jobs.Pool, logger *zap.Logger, cfg Config) *Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filter{pool: pool, logger: logger, cfg: cfg}
}

// Run evolves preferences over the full domain and returns the reduced one. The
// seed keys this run's randomness. On cancellation or evolution failure the top-k
// fallback domain is returned instead.
func (f *Filter) Run(ctx context.Context, problem *models.Problem, seed int64) *Result {
	full := cp.FullDomain(problem)
	yBefore, uBefore := countYU(full)

	cfg := f.cfg
	cfg.Seed = seed
	manager := NewManager(problem, full, f.pool, f.logger, cfg)
	report, err := manager.Evolve(ctx)
	if err != nil || ctx.Err() != nil {
		f.logger.Warn("variable exploration failed, using top-k fallback", zap.Error(err))
		return f.fallback(problem, full, yBefore, uBefore)
	}

	decisions := f.decide(problem, full, manager)
	domain := f.applyDecisions(problem, full, decisions)
	hints := f.hints(problem, manager)

	yAfter, uAfter := countYU(domain)
	f.logger.Info("variable filter complete",
		zap.Int("generations", report.Generations),
		zap.Int("y_before", yBefore), zap.Int("y_after", yAfter),
		zap.Int("u_before", uBefore), zap.Int("u_after", uAfter),
	)
	return &Result{
		Domain:  domain,
		Hints:   hints,
		Mode:    ModeGA,
		YBefore: yBefore,
		YAfter:  yAfter,
		UBefore: uBefore,
		UAfter:  uAfter,
	}
}

// decide marks relevance by usage percentile (30th for Y, 50th for U) and forces
// locked variables critical.
func (f *Filter) decide(problem *models.Problem, full cp.Domain, manager *Manager) *PruningDecisions {
	usageY, usageU := manager.UsageCounts()
	decisions := NewPruningDecisions()

	// A variable stays relevant when the evolved schedules actually used it and
	// its usage clears the percentile bar; everything else is prunable.
	yThreshold := usagePercentile(collectYCounts(full, usageY), yUsagePercentile)
	for key := range full.Rooms {
		for _, roomID := range full.Rooms[key] {
			roomKey := cp.RoomKey{Exam: key.Exam, Room: roomID, Slot: key.Slot}
			if usageY[roomKey] == 0 || usageY[roomKey] < yThreshold {
				decisions.PruneY(roomKey)
			}
		}
	}

	uThreshold := usagePercentile(collectUCounts(full, usageU), uUsagePercentile)
	for key, invs := range full.Invigilators {
		for _, invID := range invs {
			invKey := cp.InvKey{Invigilator: invID, Exam: key.Exam, Room: key.Room, Slot: key.Slot}
			if usageU[invKey] == 0 || usageU[invKey] < uThreshold {
				decisions.PruneU(invKey)
			}
		}
	}

	for _, lock := range problem.Locks {
		slots := full.Starts[lock.ExamID]
		for _, slotID := range slots {
			for _, roomID := range lock.RoomIDs {
				decisions.MarkCriticalY(cp.RoomKey{Exam: lock.ExamID, Room: roomID, Slot: slotID})
				for _, invID := range lock.InvigilatorIDs {
					decisions.MarkCriticalU(cp.InvKey{Invigilator: invID, Exam: lock.ExamID, Room: roomID, Slot: slotID})
				}
			}
		}
	}
	return decisions
}

// applyDecisions materialises the pruned domain, then repairs minimum coverage:
// at least two room options per exam and one invigilator per surviving (e, r, s).
func (f *Filter) applyDecisions(problem *models.Problem, full cp.Domain, decisions *PruningDecisions) cp.Domain {
	domain := cp.Domain{
		Starts:       make(map[uuid.UUID][]uuid.UUID, len(full.Starts)),
		Rooms:        make(map[cp.StartKey][]uuid.UUID),
		Invigilators: make(map[cp.RoomKey][]uuid.UUID),
	}

	for examID, starts := range full.Starts {
		var keptStarts []uuid.UUID
		roomOptions := 0
		for _, slotID := range starts {
			startKey := cp.StartKey{Exam: examID, Slot: slotID}
			var rooms []uuid.UUID
			for _, roomID := range full.Rooms[startKey] {
				roomKey := cp.RoomKey{Exam: examID, Room: roomID, Slot: slotID}
				if _, pruned := decisions.PrunedY[roomKey]; pruned {
					continue
				}
				rooms = append(rooms, roomID)
			}
			if len(rooms) == 0 {
				continue
			}
			domain.Rooms[startKey] = rooms
			keptStarts = append(keptStarts, slotID)
			roomOptions += len(rooms)
		}

		// Coverage floor: an exam keeps at least two room options across its starts.
		if roomOptions < minRoomsPerExam {
			keptStarts = keptStarts[:0]
			for _, slotID := range starts {
				startKey := cp.StartKey{Exam: examID, Slot: slotID}
				domain.Rooms[startKey] = append([]uuid.UUID(nil), full.Rooms[startKey]...)
				if len(domain.Rooms[startKey]) > 0 {
					keptStarts = append(keptStarts, slotID)
				} else {
					delete(domain.Rooms, startKey)
				}
			}
		}
		domain.Starts[examID] = keptStarts
	}

	for startKey, rooms := range domain.Rooms {
		for _, roomID := range rooms {
			roomKey := cp.RoomKey{Exam: startKey.Exam, Room: roomID, Slot: startKey.Slot}
			var invs []uuid.UUID
			for _, invID := range full.Invigilators[roomKey] {
				invKey := cp.InvKey{Invigilator: invID, Exam: startKey.Exam, Room: roomID, Slot: startKey.Slot}
				if _, pruned := decisions.PrunedU[invKey]; pruned {
					continue
				}
				invs = append(invs, invID)
			}
			if len(invs) == 0 && len(full.Invigilators[roomKey]) > 0 {
				invs = full.Invigilators[roomKey][:1]
			}
			domain.Invigilators[roomKey] = invs
		}
	}
	return domain
}

// hints extracts the best individual's preferred start per exam.
func (f *Filter) hints(problem *models.Problem, manager *Manager) []cp.Hint {
	best := manager.Best()
	if best == nil {
		return nil
	}
	layout := manager.Layout()
	slotIndex := make(map[uuid.UUID]int, len(layout.SlotIDs))
	for i, slotID := range layout.SlotIDs {
		slotIndex[slotID] = i
	}

	var hints []cp.Hint
	for examIdx, examID := range layout.ExamIDs {
		var starts []uuid.UUID
		for _, slotID := range problem.SlotIDs() {
			if problem.IsStartFeasible(examID, slotID) {
				starts = append(starts, slotID)
			}
		}
		bestSlot := uuid.Nil
		bestPref := -1.0
		for _, slotID := range starts {
			pref := layout.SlotPreference(best.Genes, examIdx, slotIndex[slotID])
			if pref > bestPref {
				bestPref = pref
				bestSlot = slotID
			}
		}
		if bestSlot != uuid.Nil {
			hints = append(hints, cp.Hint{Exam: examID, Slot: bestSlot, Confidence: bestPref})
		}
	}
	return hints
}

// fallback keeps the top half of rooms per start (by the builder's tie-break
// order) and up to the first two invigilator options per kept room, honouring coverage floors.
func (f *Filter) fallback(problem *models.Problem, full cp.Domain, yBefore, uBefore int) *Result {
	domain := cp.Domain{
		Starts:       full.Starts,
		Rooms:        make(map[cp.StartKey][]uuid.UUID, len(full.Rooms)),
		Invigilators: make(map[cp.RoomKey][]uuid.UUID),
	}
	for key, rooms := range full.Rooms {
		keep := (len(rooms) + 1) / 2
		if keep < minRoomsPerExam {
			keep = minRoomsPerExam
		}
		if keep > len(rooms) {
			keep = len(rooms)
		}
		kept := append([]uuid.UUID(nil), rooms[:keep]...)
		domain.Rooms[key] = kept
		for _, roomID := range kept {
			roomKey := cp.RoomKey{Exam: key.Exam, Room: roomID, Slot: key.Slot}
			invs := full.Invigilators[roomKey]
			if len(invs) > 2 {
				invs = invs[:2]
			}
			domain.Invigilators[roomKey] = invs
		}
	}

	yAfter, uAfter := countYU(domain)
	return &Result{
		Domain:  domain,
		Mode:    ModeFallback,
		YBefore: yBefore,
		YAfter:  yAfter,
		UBefore: uBefore,
		UAfter:  uAfter,
	}
}

func countYU(domain cp.Domain) (int, int) {
	y, u := 0, 0
	for _, rooms := range domain.Rooms {
		y += len(rooms)
	}
	for _, invs := range domain.Invigilators {
		u += len(invs)
	}
	return y, u
}

func collectYCounts(full cp.Domain, usage map[cp.RoomKey]int) []int {
	var counts []int
	for key, rooms := range full.Rooms {
		for _, roomID := range rooms {
			counts = append(counts, usage[cp.RoomKey{Exam: key.Exam, Room: roomID, Slot: key.Slot}])
		}
	}
	return counts
}

func collectUCounts(full cp.Domain, usage map[cp.InvKey]int) []int {
	var counts []int
	for key, invs := range full.Invigilators {
		for _, invID := range invs {
			counts = append(counts, usage[cp.InvKey{Invigilator: invID, Exam: key.Exam, Room: key.Room, Slot: key.Slot}])
		}
	}
	return counts
}

// usagePercentile returns the value at the given percentile of the counts.
func usagePercentile(counts []int, percentile int) int {
	if len(counts) == 0 {
		return 0
	}
	sort.Ints(counts)
	idx := len(counts) * percentile / 100
	if idx >= len(counts) {
		idx = len(counts) - 1
	}
	return counts[idx]
}
