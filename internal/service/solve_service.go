package service

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-exam-scheduler/internal/constraints"
	"github.com/noah-isme/uni-exam-scheduler/internal/cp"
	"github.com/noah-isme/uni-exam-scheduler/internal/dataprep"
	"github.com/noah-isme/uni-exam-scheduler/internal/dto"
	"github.com/noah-isme/uni-exam-scheduler/internal/extract"
	"github.com/noah-isme/uni-exam-scheduler/internal/ga"
	"github.com/noah-isme/uni-exam-scheduler/internal/models"
	appErrors "github.com/noah-isme/uni-exam-scheduler/pkg/errors"
)

type datasetPreparer interface {
	Prepare(dataset dto.Dataset) (*models.Problem, *dataprep.Diagnostics, error)
}

type presolveAnalyzer interface {
	Analyze(problem *models.Problem) dto.AnalysisReportDocument
}

type variableFilter interface {
	Run(ctx context.Context, problem *models.Problem, seed int64) *ga.Result
}

type modelSolver interface {
	Solve(ctx context.Context, model *cp.Model, opts cp.Options) *cp.Result
}

type solutionExtractor interface {
	Extract(problem *models.Problem, result *cp.Result, solveID uuid.UUID) (*models.Solution, []string)
}

// SolveOptions tune one solve. A zero Seed derives one from the solve id.
type SolveOptions struct {
	Seed          int64
	TimeLimit     time.Duration
	Workers       int
	DisableFilter bool
}

// SolveOutcome bundles everything a caller needs from a finished solve.
type SolveOutcome struct {
	SolveID  uuid.UUID
	Solution *models.Solution
	Document dto.SolutionDocument
	Report   dto.AnalysisReportDocument
	Filter   *ga.Result
}

// SolveService orchestrates the pipeline: prepare, analyze, filter, build, solve,
// extract. It owns no persistent state; each call is one independent solve.
type SolveService struct {
	prep      datasetPreparer
	analyzer  presolveAnalyzer
	filter    variableFilter
	solver    modelSolver
	extractor solutionExtractor
	metrics   *MetricsService
	progress  *ProgressPublisher
	logger    *zap.Logger
}

// NewSolveService wires the pipeline stages.
func NewSolveService(
	prep datasetPreparer,
	analyzer presolveAnalyzer,
	filter variableFilter,
	solver modelSolver,
	extractor solutionExtractor,
	metrics *MetricsService,
	progress *ProgressPublisher,
	logger *zap.Logger,
) *SolveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if solver == nil {
		solver = cp.NewSolver(logger)
	}
	if extractor == nil {
		extractor = extract.NewExtractor(logger)
	}
	return &SolveService{
		prep:      prep,
		analyzer:  analyzer,
		filter:    filter,
		solver:    solver,
		extractor: extractor,
		metrics:   metrics,
		progress:  progress,
		logger:    logger,
	}
}

// Solve runs the full pipeline over a raw dataset. Structural failures return a
// typed error; solver outcomes (including Infeasible and TimedOut) return a
// populated outcome instead.
func (s *SolveService) Solve(ctx context.Context, dataset dto.Dataset, opts SolveOptions) (*SolveOutcome, error) {
	started := time.Now()
	solveID := uuid.New()
	seed := opts.Seed
	if seed == 0 {
		seed = deriveSeed(solveID)
	}

	s.publish(ctx, solveID, dataset.SessionID, PhasePreparing, "")
	problem, diags, err := s.prep.Prepare(dataset)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, solveID, dataset.SessionID, PhaseAnalyzing, "")
	report := s.analyzer.Analyze(problem)

	if !opts.DisableFilter && s.filter != nil {
		s.publish(ctx, solveID, dataset.SessionID, PhaseFiltering, "")
	}
	filterResult := s.runFilter(ctx, problem, seed, opts.DisableFilter)
	if s.metrics != nil && filterResult.Mode != ga.ModeFull {
		s.metrics.ObserveFilter(filterResult.YBefore, filterResult.YAfter, filterResult.UBefore, filterResult.UAfter)
	}

	s.publish(ctx, solveID, dataset.SessionID, PhaseBuilding, "")
	model := cp.NewModel(problem, filterResult.Domain)
	model.Hints = filterResult.Hints
	constraints.Post(model, problem.Constraints, s.logger)

	s.publish(ctx, solveID, dataset.SessionID, PhaseSolving, "")
	solverOpts := cp.Options{
		Seed:      seed,
		TimeLimit: opts.TimeLimit,
		Workers:   opts.Workers,
	}
	result := s.solver.Solve(ctx, model, solverOpts)

	// Pruning must never turn a solvable problem infeasible: prove UNSAT on the
	// full domain before reporting it.
	if result.Status == models.StatusInfeasible && filterResult.Mode != ga.ModeFull {
		s.logger.Warn("filtered domain proved infeasible, retrying with the full domain")
		filterResult = s.runFilter(ctx, problem, seed, true)
		model = cp.NewModel(problem, filterResult.Domain)
		constraints.Post(model, problem.Constraints, s.logger)
		result = s.solver.Solve(ctx, model, solverOpts)
	}

	s.publish(ctx, solveID, dataset.SessionID, PhaseExtracting, "")
	solution, issues := s.extractor.Extract(problem, result, solveID)
	solution.Statistics.FilterMode = filterResult.Mode

	diagnostics := append([]string(nil), diags.Warnings...)
	diagnostics = append(diagnostics, issues...)

	outcome := &SolveOutcome{
		SolveID:  solveID,
		Solution: solution,
		Document: buildSolutionDocument(problem, solution, diagnostics),
		Report:   report,
		Filter:   filterResult,
	}

	if s.metrics != nil {
		s.metrics.ObserveSolve(solution.Status, time.Since(started), result.Objective)
		s.metrics.ObserveSearch(result.Stats.Branches, result.Stats.Conflicts)
		s.metrics.ObserveCompletion(solution.CompletionPercentage())
	}
	s.publish(ctx, solveID, dataset.SessionID, PhaseDone, string(solution.Status))

	s.logger.Info("solve finished",
		zap.String("solve_id", solveID.String()),
		zap.String("status", string(solution.Status)),
		zap.String("filter", filterResult.Mode),
		zap.Duration("elapsed", time.Since(started)),
	)
	return outcome, nil
}

// runFilter applies the GA filter unless disabled. A filter panic is a recoverable
// failure: the solve continues on the full variable domain.
func (s *SolveService) runFilter(ctx context.Context, problem *models.Problem, seed int64, disabled bool) (result *ga.Result) {
	full := func() *ga.Result {
		domain := cp.FullDomain(problem)
		y, u := 0, 0
		for _, rooms := range domain.Rooms {
			y += len(rooms)
		}
		for _, invs := range domain.Invigilators {
			u += len(invs)
		}
		return &ga.Result{Domain: domain, Mode: ga.ModeFull, YBefore: y, YAfter: y, UBefore: u, UAfter: u}
	}

	if disabled || s.filter == nil {
		return full()
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("variable filter panicked, continuing with the full domain",
				zap.Any("panic", r))
			result = full()
		}
	}()
	return s.filter.Run(ctx, problem, seed)
}

func (s *SolveService) publish(ctx context.Context, solveID uuid.UUID, sessionID, phase, detail string) {
	if s.progress == nil {
		return
	}
	s.progress.Publish(ctx, ProgressEvent{
		SolveID:   solveID.String(),
		SessionID: sessionID,
		Phase:     phase,
		Detail:    detail,
	})
}

// buildSolutionDocument serializes a solution into the external output shape.
func buildSolutionDocument(problem *models.Problem, solution *models.Solution, diagnostics []string) dto.SolutionDocument {
	doc := dto.SolutionDocument{
		SessionID:   solution.SessionID.String(),
		Status:      string(solution.Status),
		Assignments: []dto.AssignmentDocument{},
		Unassigned:  []string{},
		Diagnostics: diagnostics,
		Statistics: dto.StatisticsDocument{
			Branches:        solution.Statistics.Branches,
			Conflicts:       solution.Statistics.Conflicts,
			Propagations:    solution.Statistics.Propagations,
			BestObjective:   solution.Statistics.BestObjective,
			Gap:             solution.Statistics.Gap,
			WallTimeSeconds: solution.Statistics.WallTime.Seconds(),
			CPUTimeSeconds:  solution.Statistics.CPUTime.Seconds(),
			Filter:          solution.Statistics.FilterMode,
			Objective:       solution.ObjectiveBreakdown,
			Completion:      solution.CompletionPercentage(),
		},
	}

	for _, examID := range solution.AssignedExamIDs() {
		assignment := solution.Assignments[examID]
		entry := dto.AssignmentDocument{
			ExamID:      examID.String(),
			Date:        assignment.Date.Format("2006-01-02"),
			StartSlotID: assignment.StartSlotID.String(),
		}
		for _, roomID := range assignment.RoomIDs {
			entry.RoomAllocations = append(entry.RoomAllocations, dto.RoomAllocationDocument{
				RoomID:   roomID.String(),
				Students: assignment.RoomAllocations[roomID],
			})
		}
		for _, invID := range assignment.InvigilatorIDs {
			entry.InvigilatorIDs = append(entry.InvigilatorIDs, invID.String())
		}
		doc.Assignments = append(doc.Assignments, entry)
	}
	for _, examID := range solution.UnassignedExamIDs() {
		doc.Unassigned = append(doc.Unassigned, examID.String())
	}
	return doc
}

// ExitStatus maps a terminal solve status to the CLI exit code.
func ExitStatus(status models.SolveStatus) int {
	switch status {
	case models.StatusOptimal, models.StatusFeasible:
		return appErrors.StatusSolved
	case models.StatusInfeasible:
		return appErrors.StatusInfeasible
	case models.StatusTimedOut:
		return appErrors.StatusTimeout
	default:
		return appErrors.StatusInternal
	}
}

func deriveSeed(solveID uuid.UUID) int64 {
	h := fnv.New64a()
	_, _ = h.Write(solveID[:])
	seed := int64(h.Sum64())
	if seed == 0 {
		seed = 1
	}
	return seed
}
