package ga

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-exam-scheduler/internal/cp"
	"github.com/noah-isme/uni-exam-scheduler/internal/models"
	"github.com/noah-isme/uni-exam-scheduler/pkg/jobs"
)

// Percentile thresholds for usage-based relevance.
const (
	yUsagePercentile = 30
	uUsagePercentile = 50
	minRoomsPerExam  = 2
)

// Config bounds one evolution run.
type Config struct {
	PopulationSize int
	Generations    int
	TimeBudget     time.Duration
	MutationProb   float64
	TournamentSize int
	CrossoverAlpha float64
	Seed           int64
}

func (c Config) withDefaults() Config {
	if c.PopulationSize < 20 {
		c.PopulationSize = 20
	}
	if c.PopulationSize > 50 {
		c.PopulationSize = 50
	}
	if c.Generations < 10 {
		c.Generations = 10
	}
	if c.Generations > 30 {
		c.Generations = 30
	}
	if c.TimeBudget <= 0 {
		c.TimeBudget = 90 * time.Second
	}
	if c.MutationProb <= 0 {
		c.MutationProb = 0.15
	}
	if c.TournamentSize < 2 {
		c.TournamentSize = 3
	}
	if c.CrossoverAlpha <= 0 {
		c.CrossoverAlpha = defaultBlendAlpha
	}
	return c
}

// EvolutionReport summarises a finished run.
type EvolutionReport struct {
	Generations    int
	BestFitness    float64
	UsageTrackedY  int
	UsageTrackedU  int
	TimedOut       bool
}

// Manager evolves preference vectors against the full variable domain and tracks
// which variables the decoded schedules actually use.
type Manager struct {
	problem *models.Problem
	domain  cp.Domain
	layout  *Layout
	pool    *jobs.Pool
	logger  *zap.Logger
	cfg     Config

	mu     sync.Mutex
	usageY map[cp.RoomKey]int
	usageU map[cp.InvKey]int

	population []*Individual
	best       *Individual
}

// NewManager prepares an evolution over the problem's full domain.
func NewManager(problem *models.Problem, domain cp.Domain, pool *jobs.Pool, logger *zap.Logger, cfg Config) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pool == nil {
		pool = jobs.NewPool(jobs.PoolConfig{Workers: 1})
	}
	return &Manager{
		problem: problem,
		domain:  domain,
		layout:  NewLayout(problem),
		pool:    pool,
		logger:  logger,
		cfg:     cfg.withDefaults(),
		usageY:  make(map[cp.RoomKey]int),
		usageU:  make(map[cp.InvKey]int),
	}
}

// Evolve runs the bounded generational loop. The context and the time budget are
// polled between generations; hitting either returns the state evolved so far.
func (m *Manager) Evolve(ctx context.Context) (*EvolutionReport, error) {
	deadline := time.Now().Add(m.cfg.TimeBudget)
	rng := rand.New(rand.NewSource(m.cfg.Seed))

	m.initPopulation(rng)
	if err := m.evaluatePopulation(ctx); err != nil {
		return nil, err
	}

	report := &EvolutionReport{}
	for gen := 0; gen < m.cfg.Generations; gen++ {
		if ctx.Err() != nil || time.Now().After(deadline) {
			report.TimedOut = true
			break
		}
		m.stepGeneration(rng)
		if err := m.evaluatePopulation(ctx); err != nil {
			return nil, err
		}
		report.Generations = gen + 1
	}

	if m.best != nil {
		report.BestFitness = m.best.Fitness
	}
	report.UsageTrackedY = len(m.usageY)
	report.UsageTrackedU = len(m.usageU)
	m.logger.Info("evolution finished",
		zap.Int("generations", report.Generations),
		zap.Float64("best_fitness", report.BestFitness),
		zap.Bool("timed_out", report.TimedOut),
	)
	return report, nil
}

func (m *Manager) initPopulation(rng *rand.Rand) {
	capacities := make([]int, len(m.layout.RoomIDs))
	for i, roomID := range m.layout.RoomIDs {
		capacities[i] = m.problem.Rooms[roomID].ExamCapacity
	}
	m.population = make([]*Individual, 0, m.cfg.PopulationSize)
	for i := 0; i < m.cfg.PopulationSize; i++ {
		if i%2 == 0 {
			m.population = append(m.population, SeededIndividual(m.layout, rng, capacities))
		} else {
			m.population = append(m.population, RandomIndividual(m.layout, rng))
		}
	}
}

// evaluatePopulation scores unevaluated individuals on the worker pool. Each task
// writes only its own individual; usage maps take the shared mutex.
func (m *Manager) evaluatePopulation(ctx context.Context) error {
	var tasks []jobs.Task
	for _, ind := range m.population {
		if ind.Evaluated {
			continue
		}
		individual := ind
		tasks = append(tasks, func(ctx context.Context) error {
			m.evaluate(individual)
			return nil
		})
	}
	if err := m.pool.Run(ctx, tasks); err != nil {
		return err
	}

	// The incumbent is picked by population order after the batch drains, so the
	// outcome does not depend on worker completion order.
	m.mu.Lock()
	for _, ind := range m.population {
		if ind.Evaluated && (m.best == nil || ind.Fitness < m.best.Fitness) {
			m.best = ind.Clone()
		}
	}
	m.mu.Unlock()
	return nil
}

// evaluate decodes the preference vector into a greedy timetable attempt and
// scores it. The decode is deterministic, so parallel evaluation stays
// reproducible regardless of worker interleaving.
func (m *Manager) evaluate(ind *Individual) {
	decoded := m.decode(ind)

	ind.Violations = decoded.violations
	ind.CriticalViolations = decoded.critical
	ind.Fitness = float64(decoded.critical)*1000 + float64(decoded.violations)*10 + decoded.slack
	ind.Evaluated = true

	m.mu.Lock()
	for key := range decoded.usedY {
		m.usageY[key]++
	}
	for key := range decoded.usedU {
		m.usageU[key]++
	}
	m.mu.Unlock()
}

type decodeResult struct {
	violations int
	critical   int
	slack      float64
	usedY      map[cp.RoomKey]struct{}
	usedU      map[cp.InvKey]struct{}
}

// decode greedily schedules exams in priority order, following the individual's
// slot and room preferences, and records the variables the schedule touches.
func (m *Manager) decode(ind *Individual) decodeResult {
	result := decodeResult{
		usedY: make(map[cp.RoomKey]struct{}),
		usedU: make(map[cp.InvKey]struct{}),
	}

	examOrder := make([]int, len(m.layout.ExamIDs))
	for i := range examOrder {
		examOrder[i] = i
	}
	sort.SliceStable(examOrder, func(a, b int) bool {
		return m.layout.ExamPriority(ind.Genes, examOrder[a]) > m.layout.ExamPriority(ind.Genes, examOrder[b])
	})

	slotIndex := make(map[uuid.UUID]int, len(m.layout.SlotIDs))
	for i, slotID := range m.layout.SlotIDs {
		slotIndex[slotID] = i
	}
	roomIndex := make(map[uuid.UUID]int, len(m.layout.RoomIDs))
	for i, roomID := range m.layout.RoomIDs {
		roomIndex[roomID] = i
	}

	studentBusy := make(map[uuid.UUID]map[uuid.UUID]bool)
	roomUsed := make(map[cp.RoomKey]int)
	invLoad := make(map[uuid.UUID]int, len(m.layout.InvIDs))

	for _, examIdx := range examOrder {
		examID := m.layout.ExamIDs[examIdx]
		exam := m.problem.Exams[examID]

		starts := m.domain.Starts[examID]
		if len(starts) == 0 {
			result.critical++
			continue
		}
		ranked := append([]uuid.UUID(nil), starts...)
		sort.SliceStable(ranked, func(a, b int) bool {
			return m.layout.SlotPreference(ind.Genes, examIdx, slotIndex[ranked[a]]) >
				m.layout.SlotPreference(ind.Genes, examIdx, slotIndex[ranked[b]])
		})

		chosenSlot := uuid.Nil
		for _, slotID := range ranked {
			if !m.conflictsStudents(studentBusy, exam, slotID) {
				chosenSlot = slotID
				break
			}
		}
		if chosenSlot == uuid.Nil {
			chosenSlot = ranked[0]
			result.violations++
		}
		for studentID := range exam.Students {
			if studentBusy[studentID] == nil {
				studentBusy[studentID] = make(map[uuid.UUID]bool)
			}
			studentBusy[studentID][chosenSlot] = true
		}

		rooms := m.domain.Rooms[cp.StartKey{Exam: examID, Slot: chosenSlot}]
		if len(rooms) == 0 {
			result.critical++
			continue
		}
		rankedRooms := append([]uuid.UUID(nil), rooms...)
		sort.SliceStable(rankedRooms, func(a, b int) bool {
			return m.layout.RoomPreference(ind.Genes, examIdx, roomIndex[rankedRooms[a]]) >
				m.layout.RoomPreference(ind.Genes, examIdx, roomIndex[rankedRooms[b]])
		})

		remaining := exam.ExpectedStudents
		for _, roomID := range rankedRooms {
			if remaining <= 0 {
				break
			}
			key := cp.RoomKey{Exam: examID, Room: roomID, Slot: chosenSlot}
			room := m.problem.Rooms[roomID]
			free := room.ExamCapacity - roomUsed[key]
			if free <= 0 {
				continue
			}
			take := remaining
			if take > free {
				take = free
			}
			roomUsed[key] += take
			remaining -= take
			result.usedY[key] = struct{}{}
			result.slack += float64(room.ExamCapacity-take) * 0.001

			m.trackInvigilators(ind, examID, roomID, chosenSlot, invLoad, &result)
		}
		if remaining > 0 {
			result.violations++
		}
	}
	return result
}

func (m *Manager) conflictsStudents(busy map[uuid.UUID]map[uuid.UUID]bool, exam *models.Exam, slotID uuid.UUID) bool {
	for studentID := range exam.Students {
		if busy[studentID][slotID] {
			return true
		}
	}
	return false
}

func (m *Manager) trackInvigilators(ind *Individual, examID, roomID, slotID uuid.UUID, invLoad map[uuid.UUID]int, result *decodeResult) {
	candidates := m.domain.Invigilators[cp.RoomKey{Exam: examID, Room: roomID, Slot: slotID}]
	if len(candidates) == 0 {
		result.violations++
		return
	}
	invIndex := make(map[uuid.UUID]int, len(m.layout.InvIDs))
	for i, invID := range m.layout.InvIDs {
		invIndex[invID] = i
	}
	ranked := append([]uuid.UUID(nil), candidates...)
	sort.SliceStable(ranked, func(a, b int) bool {
		pa := m.layout.InvigilatorPreference(ind.Genes, invIndex[ranked[a]]) - 0.05*float64(invLoad[ranked[a]])
		pb := m.layout.InvigilatorPreference(ind.Genes, invIndex[ranked[b]]) - 0.05*float64(invLoad[ranked[b]])
		return pa > pb
	})
	picked := ranked[0]
	invLoad[picked]++
	result.usedU[cp.InvKey{Invigilator: picked, Exam: examID, Room: roomID, Slot: slotID}] = struct{}{}
}

// stepGeneration applies selection, crossover and mutation under the population
// mutex. Operators themselves run serially.
func (m *Manager) stepGeneration(rng *rand.Rand) {
	m.mu.Lock()
	defer m.mu.Unlock()

	worst := 0.0
	for _, ind := range m.population {
		ind.Age++
		if ind.Fitness > worst {
			worst = ind.Fitness
		}
	}

	next := make([]*Individual, 0, len(m.population))
	if m.best != nil {
		elite := m.best.Clone()
		elite.Evaluated = true
		next = append(next, elite)
	}
	for len(next) < len(m.population) {
		p1 := TournamentSelect(rng, m.cfg.TournamentSize, m.population, worst)
		p2 := TournamentSelect(rng, m.cfg.TournamentSize, m.population, worst)
		c1, c2 := BlendCrossover(m.layout, rng, m.cfg.CrossoverAlpha, p1, p2)
		GaussianMutate(m.layout, rng, m.cfg.MutationProb, c1)
		GaussianMutate(m.layout, rng, m.cfg.MutationProb, c2)
		next = append(next, c1)
		if len(next) < len(m.population) {
			next = append(next, c2)
		}
	}
	m.population = next
}

// Best returns the best evaluated individual so far.
func (m *Manager) Best() *Individual {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.best
}

// UsageCounts returns copies of the Y and U usage counters.
func (m *Manager) UsageCounts() (map[cp.RoomKey]int, map[cp.InvKey]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	y := make(map[cp.RoomKey]int, len(m.usageY))
	for k, v := range m.usageY {
		y[k] = v
	}
	u := make(map[cp.InvKey]int, len(m.usageU))
	for k, v := range m.usageU {
		u[k] = v
	}
	return y, u
}

// Layout exposes the vector layout.
func (m *Manager) Layout() *Layout { return m.layout }
