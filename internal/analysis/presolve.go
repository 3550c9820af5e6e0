package analysis

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-exam-scheduler/internal/dto"
	"github.com/noah-isme/uni-exam-scheduler/internal/models"
)

// Likelihood buckets for the feasibility prediction.
const (
	LikelihoodHigh       = "High"
	LikelihoodMedium     = "Medium"
	LikelihoodLow        = "Low"
	LikelihoodInfeasible = "Very Low / Infeasible"
)

// Runtime buckets.
const (
	RuntimeShort    = "Short"
	RuntimeMedium   = "Medium"
	RuntimeLong     = "Long"
	RuntimeVeryLong = "Very Long"
)

// Quality buckets.
const (
	QualityExcellent = "Excellent"
	QualityGood      = "Good"
	QualityModerate  = "Moderate"
	QualityPoor      = "Poor"
)

// Metrics are the structural measurements the predictions derive from.
type Metrics struct {
	NumExams        int
	NumStudents     int
	NumRooms        int
	NumTimeslots    int
	NumInvigilators int
	NumLocks        int

	TotalRegistrations int
	StudentDensity     float64
	SeatPressure       float64

	ActiveHard int
	ActiveSoft int
}

// Analyzer computes the pre-solve report. It never mutates the problem and is
// deterministic for a given model.
type Analyzer struct {
	logger *zap.Logger
}

// NewAnalyzer builds an analyzer.
func NewAnalyzer(logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{logger: logger}
}

// Analyze produces the full report for a built problem.
func (a *Analyzer) Analyze(problem *models.Problem) dto.AnalysisReportDocument {
	metrics := a.computeMetrics(problem)
	report := dto.AnalysisReportDocument{
		Feasibility: a.analyzeFeasibility(problem, metrics),
		Runtime:     a.estimateRuntime(metrics),
		Quality:     a.predictQuality(problem, metrics),
	}
	report.Summary = fmt.Sprintf(
		"Analysis complete. Feasibility is rated '%s'. Expected runtime is '%s' based on a complexity score of %.0f. Anticipated solution quality is '%s'.",
		report.Feasibility.Likelihood,
		report.Runtime.ExpectedDuration,
		report.Runtime.ComplexityScore,
		report.Quality.ExpectedQuality,
	)
	a.logger.Info("pre-solve analysis complete",
		zap.String("likelihood", report.Feasibility.Likelihood),
		zap.String("runtime", report.Runtime.ExpectedDuration),
		zap.String("quality", report.Quality.ExpectedQuality),
	)
	return report
}

// ComputeMetrics exposes the base metrics for reuse by the solve pipeline.
func (a *Analyzer) ComputeMetrics(problem *models.Problem) Metrics {
	return a.computeMetrics(problem)
}

func (a *Analyzer) computeMetrics(problem *models.Problem) Metrics {
	m := Metrics{
		NumExams:        len(problem.Exams),
		NumStudents:     len(problem.Students),
		NumRooms:        len(problem.Rooms),
		NumTimeslots:    len(problem.Slots),
		NumInvigilators: len(problem.Invigilators),
		NumLocks:        len(problem.Locks),
	}

	totalStudentExamMinutes := 0
	totalDemand := 0
	for _, examID := range problem.ExamIDs() {
		exam := problem.Exams[examID]
		m.TotalRegistrations += len(exam.Students)
		totalStudentExamMinutes += len(exam.Students) * exam.DurationMinutes
		totalDemand += exam.ExpectedStudents
	}

	totalSlotMinutes := 0
	for _, slotID := range problem.SlotIDs() {
		totalSlotMinutes += problem.Slots[slotID].DurationMinutes
	}

	if totalSlotMinutes > 0 && m.NumStudents > 0 {
		m.StudentDensity = float64(totalStudentExamMinutes) / (float64(totalSlotMinutes) * float64(m.NumStudents))
	}

	totalSeatCapacity := 0
	for _, roomID := range problem.RoomIDs() {
		totalSeatCapacity += problem.Rooms[roomID].ExamCapacity
	}
	if totalSeatCapacity > 0 && m.NumTimeslots > 0 {
		m.SeatPressure = float64(totalDemand) / (float64(totalSeatCapacity) * float64(m.NumTimeslots))
	} else {
		m.SeatPressure = math.Inf(1)
	}

	for _, ac := range problem.Constraints {
		if ac.Declaration.Type == models.ConstraintHard {
			m.ActiveHard++
		} else {
			m.ActiveSoft++
		}
	}
	return m
}

func (a *Analyzer) analyzeFeasibility(problem *models.Problem, m Metrics) dto.FeasibilitySection {
	section := dto.FeasibilitySection{
		CriticalIssues: []string{},
		Warnings:       []string{},
	}

	for _, examID := range problem.ExamIDs() {
		if !problem.HasFeasibleStart(examID) {
			exam := problem.Exams[examID]
			section.CriticalIssues = append(section.CriticalIssues, fmt.Sprintf(
				"Exam '%s' (duration: %d min) is too long to fit into any single day's schedule.",
				examLabel(exam), exam.DurationMinutes))
		}
	}

	if len(problem.Rooms) == 0 {
		section.CriticalIssues = append(section.CriticalIssues,
			"No rooms are defined in the dataset. Cannot schedule any exams.")
	}

	a.analyzeLocks(problem, &section)

	if m.SeatPressure > 0.9 && m.SeatPressure <= 1.0 {
		section.Warnings = append(section.Warnings, fmt.Sprintf(
			"Seat pressure ratio is very high (%.2f). Room capacity is extremely tight, increasing difficulty.", m.SeatPressure))
	}
	if m.StudentDensity > 0.3 {
		section.Warnings = append(section.Warnings, fmt.Sprintf(
			"Student density is high (%.2f). Student schedules are very constrained, making conflicts hard to avoid.", m.StudentDensity))
	}

	switch {
	case len(section.CriticalIssues) > 0:
		section.Likelihood = LikelihoodInfeasible
	case m.SeatPressure > 1.0:
		section.Likelihood = LikelihoodInfeasible
		section.CriticalIssues = append(section.CriticalIssues,
			"Overall student demand exceeds total available seat-hours. A feasible solution is impossible without reducing demand or increasing capacity/time.")
	case len(section.Warnings) >= 2 || float64(m.NumLocks) > float64(m.NumExams)*0.5:
		section.Likelihood = LikelihoodLow
	case len(section.Warnings) == 1:
		section.Likelihood = LikelihoodMedium
	default:
		section.Likelihood = LikelihoodHigh
	}
	return section
}

// analyzeLocks flags lock pairs colliding in (slot, room) and lock pairs whose exams
// share a student at the same slot.
func (a *Analyzer) analyzeLocks(problem *models.Problem, section *dto.FeasibilitySection) {
	type slotRoom struct{ slot, room uuid.UUID }
	type slotStudent struct{ slot, student uuid.UUID }

	bySlotRoom := make(map[slotRoom]uuid.UUID)
	bySlotStudent := make(map[slotStudent]uuid.UUID)

	for _, lock := range problem.Locks {
		if lock.TimeSlotID == nil {
			continue
		}
		exam, ok := problem.Exams[lock.ExamID]
		if !ok {
			continue
		}
		slotID := *lock.TimeSlotID

		for _, roomID := range lock.RoomIDs {
			key := slotRoom{slot: slotID, room: roomID}
			if otherID, exists := bySlotRoom[key]; exists {
				other := problem.Exams[otherID]
				room := problem.Rooms[roomID]
				section.CriticalIssues = append(section.CriticalIssues, fmt.Sprintf(
					"Lock Conflict: Exam '%s' and Exam '%s' are both locked into the same room ('%s') at the same time.",
					examLabel(exam), examLabel(other), roomLabel(room, roomID)))
				continue
			}
			bySlotRoom[key] = lock.ExamID
		}

		for _, studentID := range exam.StudentIDs() {
			key := slotStudent{slot: slotID, student: studentID}
			if otherID, exists := bySlotStudent[key]; exists {
				other := problem.Exams[otherID]
				section.CriticalIssues = append(section.CriticalIssues, fmt.Sprintf(
					"Lock Conflict: A student is registered for both Exam '%s' and Exam '%s', which are locked into the same timeslot.",
					examLabel(exam), examLabel(other)))
				continue
			}
			bySlotStudent[key] = lock.ExamID
		}
	}
}

func (a *Analyzer) estimateRuntime(m Metrics) dto.RuntimeSection {
	section := dto.RuntimeSection{KeyDrivers: []string{}}

	numX := float64(m.NumExams) * float64(m.NumTimeslots)
	avgExamsPerSlot := 0.0
	if m.NumTimeslots > 0 {
		avgExamsPerSlot = float64(m.NumExams) / float64(m.NumTimeslots)
	}
	numYPerGroup := avgExamsPerSlot * float64(m.NumRooms)
	numUPerGroup := float64(m.NumInvigilators) * float64(m.NumRooms)

	score := numX*0.1 + numYPerGroup*float64(m.NumTimeslots)*0.4 + numUPerGroup*float64(m.NumTimeslots)*0.5
	score *= 1 + m.StudentDensity
	score *= 1 + float64(m.ActiveSoft)*0.05

	section.ComplexityScore = score
	section.KeyDrivers = append(section.KeyDrivers,
		fmt.Sprintf("Phase 1 Variables (Starts): ~%d", int(numX)),
		fmt.Sprintf("Phase 2 Variables (Room/Invigilator Assignments): ~%d per start-time group", int(numYPerGroup+numUPerGroup)),
	)

	switch {
	case score > 5_000_000:
		section.ExpectedDuration = RuntimeVeryLong
	case score > 1_000_000:
		section.ExpectedDuration = RuntimeLong
	case score > 200_000:
		section.ExpectedDuration = RuntimeMedium
	default:
		section.ExpectedDuration = RuntimeShort
	}
	return section
}

func (a *Analyzer) predictQuality(problem *models.Problem, m Metrics) dto.QualitySection {
	section := dto.QualitySection{PotentialIssues: []string{}}

	activeSoft := make(map[string]bool)
	for _, ac := range problem.Constraints {
		if ac.Declaration.Type == models.ConstraintSoft {
			activeSoft[ac.Declaration.Code] = true
		}
	}

	if len(activeSoft) == 0 {
		section.ExpectedQuality = QualityExcellent
		section.PotentialIssues = append(section.PotentialIssues,
			"No active soft constraints; solution will be feasible but not optimized for any quality metrics.")
		return section
	}

	pressure := 0
	if activeSoft[models.CodeMinimumGap] && m.StudentDensity > 0.25 {
		section.PotentialIssues = append(section.PotentialIssues,
			"High student density will likely force many back-to-back exams, violating the 'Minimum Gap' preference.")
		pressure += 2
	}
	if activeSoft[models.CodeMaxExamsPerStudentDay] && m.StudentDensity > 0.3 {
		section.PotentialIssues = append(section.PotentialIssues,
			"High student density may lead to students having more than the preferred max exams per day.")
		pressure += 2
	}
	if activeSoft[models.CodeInvigilatorLoadBalance] && m.NumInvigilators < m.NumRooms {
		section.PotentialIssues = append(section.PotentialIssues,
			"Fewer invigilators than rooms suggests workload balance will be difficult to achieve.")
		pressure++
	}
	if activeSoft[models.CodeRoomFitPenalty] && m.SeatPressure < 0.5 {
		section.PotentialIssues = append(section.PotentialIssues,
			"Low seat pressure with a room fit penalty active may result in inefficient space usage if not heavily weighted.")
		pressure++
	}

	switch {
	case pressure >= 4:
		section.ExpectedQuality = QualityPoor
	case pressure >= 2:
		section.ExpectedQuality = QualityModerate
	default:
		section.ExpectedQuality = QualityGood
	}
	return section
}

func examLabel(exam *models.Exam) string {
	if exam == nil {
		return "?"
	}
	if exam.CourseCode != "" {
		return exam.CourseCode
	}
	return exam.ID.String()
}

func roomLabel(room *models.Room, id uuid.UUID) string {
	if room != nil && room.Code != "" {
		return room.Code
	}
	return id.String()
}
