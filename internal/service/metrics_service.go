package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/noah-isme/uni-exam-scheduler/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the solve pipeline.
type MetricsService struct {
	registry *prometheus.Registry

	solvesTotal    *prometheus.CounterVec
	solveDuration  prometheus.Histogram
	objectiveValue prometheus.Histogram
	branchesTotal  prometheus.Counter
	conflictsTotal prometheus.Counter
	yReduction     prometheus.Gauge
	uReduction     prometheus.Gauge
	completion     prometheus.Gauge
}

// NewMetricsService registers the engine collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	solvesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_solves_total",
		Help: "Total solves by terminal status",
	}, []string{"status"})

	solveDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_solve_duration_seconds",
		Help:    "Wall-clock duration of complete solves",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	objectiveValue := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_objective_value",
		Help:    "Best objective value of finished solves",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})

	branchesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_solver_branches_total",
		Help: "Branch decisions explored by the solver",
	})

	conflictsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_solver_conflicts_total",
		Help: "Conflicts hit by the solver",
	})

	yReduction := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_filter_y_reduction_ratio",
		Help: "Share of room-assignment variables removed by the filter",
	})

	uReduction := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_filter_u_reduction_ratio",
		Help: "Share of invigilator-assignment variables removed by the filter",
	})

	completion := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_solution_completion_percentage",
		Help: "Share of exams placed in the latest solution",
	})

	registry.MustRegister(solvesTotal, solveDuration, objectiveValue, branchesTotal, conflictsTotal, yReduction, uReduction, completion)

	return &MetricsService{
		registry:       registry,
		solvesTotal:    solvesTotal,
		solveDuration:  solveDuration,
		objectiveValue: objectiveValue,
		branchesTotal:  branchesTotal,
		conflictsTotal: conflictsTotal,
		yReduction:     yReduction,
		uReduction:     uReduction,
		completion:     completion,
	}
}

// Registry exposes the underlying registry for scraping or test assertions.
func (m *MetricsService) Registry() *prometheus.Registry { return m.registry }

// ObserveSolve records a finished solve.
func (m *MetricsService) ObserveSolve(status models.SolveStatus, duration time.Duration, objective float64) {
	if m == nil {
		return
	}
	m.solvesTotal.WithLabelValues(string(status)).Inc()
	m.solveDuration.Observe(duration.Seconds())
	if status == models.StatusOptimal || status == models.StatusFeasible {
		m.objectiveValue.Observe(objective)
	}
}

// ObserveSearch records solver effort counters.
func (m *MetricsService) ObserveSearch(branches, conflicts int64) {
	if m == nil {
		return
	}
	m.branchesTotal.Add(float64(branches))
	m.conflictsTotal.Add(float64(conflicts))
}

// ObserveFilter records domain reduction ratios.
func (m *MetricsService) ObserveFilter(yBefore, yAfter, uBefore, uAfter int) {
	if m == nil {
		return
	}
	if yBefore > 0 {
		m.yReduction.Set(1 - float64(yAfter)/float64(yBefore))
	}
	if uBefore > 0 {
		m.uReduction.Set(1 - float64(uAfter)/float64(uBefore))
	}
}

// ObserveCompletion records the placement share of the latest solution.
func (m *MetricsService) ObserveCompletion(percentage float64) {
	if m == nil {
		return
	}
	m.completion.Set(percentage)
}
