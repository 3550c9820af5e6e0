package constraints

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-exam-scheduler/internal/cp"
	"github.com/noah-isme/uni-exam-scheduler/internal/models"
)

// Encoder posts one constraint onto the model. Encoders are pure: everything they
// need arrives through the model and the resolved active constraint.
type Encoder func(m *cp.Model, ac models.ActiveConstraint)

// encoders maps constraint codes to their encoding routine.
var encoders = map[string]Encoder{
	models.CodeUnifiedStudentConflict:  encodeUnifiedStudentConflict,
	models.CodeRoomCapacityHard:        encodeRoomCapacity,
	models.CodeRoomSequentialUse:       encodeRoomSequentialUse,
	models.CodePrerequisiteOrder:       encodePrerequisiteOrder,
	models.CodeLockCompliance:          encodeLockCompliance,
	models.CodeMaxExamsPerStudentDay:   encodeMaxExamsPerStudentDay,
	models.CodeMinimumGap:              encodeMinimumGap,
	models.CodeInvigilatorLoadBalance:  encodeInvigilatorLoadBalance,
	models.CodeInstructorConflict:      encodeInstructorConflict,
	models.CodeCarryoverConflict:       encodeCarryoverConflict,
	models.CodePreferenceSlots:         encodePreferenceSlots,
	models.CodeDailyWorkloadBalance:    encodeDailyWorkloadBalance,
	models.CodeOverbookingPenalty:      encodeOverbookingPenalty,
	models.CodeRoomDurationHomogeneity: encodeRoomDurationHomogeneity,
	models.CodeRoomFitPenalty:          encodeRoomFitPenalty,
}

// Post encodes every active constraint onto the model. Codes without an encoder
// are logged and skipped.
func Post(m *cp.Model, active []models.ActiveConstraint, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, ac := range active {
		encode, ok := encoders[ac.Declaration.Code]
		if !ok {
			logger.Warn("no encoder for constraint", zap.String("code", ac.Declaration.Code))
			continue
		}
		encode(m, ac)
	}
}

// placementWindow computes the minute range an exam occupies when placed.
func placementWindow(problem *models.Problem, pl cp.Placement) (dayID uuid.UUID, startMin, endMin int) {
	day, _ := problem.DayOf(pl.StartSlotID)
	start := problem.Slots[pl.StartSlotID]
	exam := problem.Exams[pl.ExamID]
	return day.ID, start.StartMinutes, start.StartMinutes + exam.DurationMinutes
}

func overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}

// encodeUnifiedStudentConflict keeps each student's exam ranges disjoint within a
// day. Hard posts a propagator; soft counts overlapping pairs.
func encodeUnifiedStudentConflict(m *cp.Model, ac models.ActiveConstraint) {
	if ac.Declaration.Type == models.ConstraintHard {
		m.AddPropagator(cp.Propagator{
			Code: ac.Declaration.Code,
			Check: func(st *cp.State, pl cp.Placement) error {
				problem := st.Problem()
				dayID, startMin, endMin := placementWindow(problem, pl)
				for studentID := range problem.Exams[pl.ExamID].Students {
					for _, iv := range st.IntervalsFor(studentID, dayID) {
						if overlaps(startMin, endMin, iv.StartMin, iv.EndMin) {
							return fmt.Errorf("student %s already sits exam %s in this window", studentID, iv.ExamID)
						}
					}
				}
				return nil
			},
		})
		return
	}
	m.AddPenalty(cp.PenaltyTerm{
		Code:       ac.Declaration.Code,
		Weight:     ac.Weight,
		Admissible: true,
		Eval:       countStudentOverlaps(nil),
	})
}

// countStudentOverlaps counts overlapping interval pairs per student per day.
// When filter is non-nil only students it accepts are counted.
func countStudentOverlaps(filter func(problem *models.Problem, studentID uuid.UUID) bool) func(st *cp.State) float64 {
	return func(st *cp.State) float64 {
		problem := st.Problem()
		seen := make(map[uuid.UUID]bool)
		total := 0.0
		for _, examID := range st.PlacedExamIDs() {
			for studentID := range problem.Exams[examID].Students {
				if seen[studentID] {
					continue
				}
				seen[studentID] = true
				if filter != nil && !filter(problem, studentID) {
					continue
				}
				total += float64(studentOverlapCount(st, studentID))
			}
		}
		return total
	}
}

func studentOverlapCount(st *cp.State, studentID uuid.UUID) int {
	problem := st.Problem()
	count := 0
	for _, dayID := range problem.DayIDs() {
		ivs := st.IntervalsFor(studentID, dayID)
		for i := 0; i < len(ivs); i++ {
			for j := i + 1; j < len(ivs); j++ {
				if overlaps(ivs[i].StartMin, ivs[i].EndMin, ivs[j].StartMin, ivs[j].EndMin) {
					count++
				}
			}
		}
	}
	return count
}

// encodeRoomCapacity rejects placements that push a non-overbookable room past its
// exam capacity in any covered slot.
func encodeRoomCapacity(m *cp.Model, ac models.ActiveConstraint) {
	m.AddPropagator(cp.Propagator{
		Code: ac.Declaration.Code,
		Check: func(st *cp.State, pl cp.Placement) error {
			problem := st.Problem()
			for _, roomID := range pl.RoomIDs {
				room := problem.Rooms[roomID]
				limit := room.ExamCapacity
				if room.Overbookable {
					limit = room.Capacity
				}
				for _, slotID := range pl.CoveredSlots {
					if st.RoomStudents(roomID, slotID)+pl.Alloc[roomID] > limit {
						return fmt.Errorf("room %s over capacity at slot %s", roomID, slotID)
					}
				}
			}
			return nil
		},
	})
}

// encodeRoomSequentialUse forbids overlapping exam windows in one room within a
// day. A zero-gap handover (one exam starting exactly when another ends) is allowed.
func encodeRoomSequentialUse(m *cp.Model, ac models.ActiveConstraint) {
	m.AddPropagator(cp.Propagator{
		Code: ac.Declaration.Code,
		Check: func(st *cp.State, pl cp.Placement) error {
			problem := st.Problem()
			dayID, startMin, endMin := placementWindow(problem, pl)
			for _, roomID := range pl.RoomIDs {
				for _, otherID := range st.PlacedExamIDs() {
					other, ok := st.Placement(otherID)
					if !ok || !placementUsesRoom(other, roomID) {
						continue
					}
					otherDay, otherStart, otherEnd := placementWindow(problem, other)
					if otherDay != dayID {
						continue
					}
					if overlaps(startMin, endMin, otherStart, otherEnd) {
						return fmt.Errorf("room %s already hosts exam %s in this window", roomID, otherID)
					}
				}
			}
			return nil
		},
	})
}

func placementUsesRoom(pl cp.Placement, roomID uuid.UUID) bool {
	for _, id := range pl.RoomIDs {
		if id == roomID {
			return true
		}
	}
	return false
}

// encodePrerequisiteOrder requires every prerequisite to finish before its
// dependent starts. Both directions are checked because placement order is free.
func encodePrerequisiteOrder(m *cp.Model, ac models.ActiveConstraint) {
	m.AddPropagator(cp.Propagator{
		Code: ac.Declaration.Code,
		Check: func(st *cp.State, pl cp.Placement) error {
			problem := st.Problem()
			exam := problem.Exams[pl.ExamID]

			for prereqID := range exam.Prerequisites {
				prereq, ok := st.Placement(prereqID)
				if !ok {
					continue
				}
				if !endsBeforeStarts(problem, prereq, pl) {
					return fmt.Errorf("exam %s must follow prerequisite %s", pl.ExamID, prereqID)
				}
			}
			for _, otherID := range st.PlacedExamIDs() {
				other := problem.Exams[otherID]
				if _, requires := other.Prerequisites[pl.ExamID]; !requires {
					continue
				}
				dependent, _ := st.Placement(otherID)
				if !endsBeforeStarts(problem, pl, dependent) {
					return fmt.Errorf("exam %s is a prerequisite of already-placed %s", pl.ExamID, otherID)
				}
			}
			return nil
		},
	})
}

// endsBeforeStarts reports whether first completes before second begins, on an
// earlier day or earlier within the same day.
func endsBeforeStarts(problem *models.Problem, first, second cp.Placement) bool {
	firstDay, _, firstEnd := placementWindow(problem, first)
	secondDay, secondStart, _ := placementWindow(problem, second)
	fi := problem.DayIndex(firstDay)
	si := problem.DayIndex(secondDay)
	if fi != si {
		return fi < si
	}
	return secondStart >= firstEnd
}

// encodeLockCompliance requires placements to match their lock element-wise.
func encodeLockCompliance(m *cp.Model, ac models.ActiveConstraint) {
	m.AddPropagator(cp.Propagator{
		Code: ac.Declaration.Code,
		Check: func(st *cp.State, pl cp.Placement) error {
			lock, ok := st.Problem().LockFor(pl.ExamID)
			if !ok {
				return nil
			}
			if lock.PinsSlot() && *lock.TimeSlotID != pl.StartSlotID {
				return fmt.Errorf("exam %s is locked to slot %s", pl.ExamID, *lock.TimeSlotID)
			}
			if lock.PinsRooms() && !sameIDSet(lock.RoomIDs, pl.RoomIDs) {
				return fmt.Errorf("exam %s is locked to a fixed room set", pl.ExamID)
			}
			if lock.PinsInvigilators() && !sameIDSet(lock.InvigilatorIDs, pl.Invigilators) {
				return fmt.Errorf("exam %s is locked to a fixed invigilator set", pl.ExamID)
			}
			return nil
		},
	})
}

func sameIDSet(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[uuid.UUID]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}

// encodeMaxExamsPerStudentDay penalizes per-student daily excess over the limit.
func encodeMaxExamsPerStudentDay(m *cp.Model, ac models.ActiveConstraint) {
	limit := int(ac.Param("max_exams_per_day"))
	m.AddPenalty(cp.PenaltyTerm{
		Code:       ac.Declaration.Code,
		Weight:     ac.Weight,
		Admissible: true,
		Eval: func(st *cp.State) float64 {
			problem := st.Problem()
			counts := make(map[uuid.UUID]map[uuid.UUID]int)
			for _, examID := range st.PlacedExamIDs() {
				pl, _ := st.Placement(examID)
				day, _ := problem.DayOf(pl.StartSlotID)
				for studentID := range problem.Exams[examID].Students {
					if counts[studentID] == nil {
						counts[studentID] = make(map[uuid.UUID]int)
					}
					counts[studentID][day.ID]++
				}
			}
			total := 0.0
			for _, days := range counts {
				for _, n := range days {
					if n > limit {
						total += float64(n - limit)
					}
				}
			}
			return total
		},
	})
}

// encodeMinimumGap penalizes same-day exam pairs of one student with fewer empty
// slots between them than the minimum. Overlapping pairs count once.
func encodeMinimumGap(m *cp.Model, ac models.ActiveConstraint) {
	minGap := int(ac.Param("min_gap_slots"))
	m.AddPenalty(cp.PenaltyTerm{
		Code:       ac.Declaration.Code,
		Weight:     ac.Weight,
		Admissible: true,
		Eval: func(st *cp.State) float64 {
			problem := st.Problem()
			seen := make(map[uuid.UUID]bool)
			total := 0.0
			for _, examID := range st.PlacedExamIDs() {
				for studentID := range problem.Exams[examID].Students {
					if seen[studentID] {
						continue
					}
					seen[studentID] = true
					for _, dayID := range problem.DayIDs() {
						ivs := st.IntervalsFor(studentID, dayID)
						for i := 0; i < len(ivs); i++ {
							for j := i + 1; j < len(ivs); j++ {
								total += float64(gapViolation(ivs[i], ivs[j], minGap))
							}
						}
					}
				}
			}
			return total
		},
	})
}

func gapViolation(a, b cp.Interval, minGap int) int {
	first, second := a, b
	if b.StartIdx < a.StartIdx {
		first, second = b, a
	}
	empty := second.StartIdx - first.EndIdx - 1
	if empty < minGap {
		return 1
	}
	return 0
}

// encodeInvigilatorLoadBalance penalizes load variance across invigilators.
// Variance shifts as placements arrive, so the term only scores complete states.
func encodeInvigilatorLoadBalance(m *cp.Model, ac models.ActiveConstraint) {
	m.AddPenalty(cp.PenaltyTerm{
		Code:       ac.Declaration.Code,
		Weight:     ac.Weight,
		Admissible: false,
		Eval: func(st *cp.State) float64 {
			problem := st.Problem()
			ids := problem.InvigilatorIDs()
			if len(ids) == 0 {
				return 0
			}
			sum := 0
			for _, invID := range ids {
				sum += st.InvigilatorLoad(invID)
			}
			mean := float64(sum) / float64(len(ids))
			variance := 0.0
			for _, invID := range ids {
				diff := float64(st.InvigilatorLoad(invID)) - mean
				variance += diff * diff
			}
			return variance / float64(len(ids))
		},
	})
}

// encodeInstructorConflict penalizes an exam's instructor invigilating it.
func encodeInstructorConflict(m *cp.Model, ac models.ActiveConstraint) {
	m.AddPenalty(cp.PenaltyTerm{
		Code:       ac.Declaration.Code,
		Weight:     ac.Weight,
		Admissible: true,
		Eval: func(st *cp.State) float64 {
			problem := st.Problem()
			total := 0.0
			for _, examID := range st.PlacedExamIDs() {
				pl, _ := st.Placement(examID)
				exam := problem.Exams[examID]
				for _, invID := range pl.Invigilators {
					if _, isInstructor := exam.InstructorIDs[invID]; isInstructor {
						total++
					}
				}
			}
			return total
		},
	})
}

// encodeCarryoverConflict escalates once a carryover student accrues more
// conflicts than allowed.
func encodeCarryoverConflict(m *cp.Model, ac models.ActiveConstraint) {
	allowed := int(ac.Param("max_allowed_conflicts"))
	m.AddPenalty(cp.PenaltyTerm{
		Code:       ac.Declaration.Code,
		Weight:     ac.Weight,
		Admissible: true,
		Eval: func(st *cp.State) float64 {
			problem := st.Problem()
			seen := make(map[uuid.UUID]bool)
			total := 0.0
			for _, examID := range st.PlacedExamIDs() {
				for studentID, regType := range problem.Exams[examID].Students {
					if regType != models.RegistrationCarryover || seen[studentID] {
						continue
					}
					seen[studentID] = true
					if conflicts := studentOverlapCount(st, studentID); conflicts > allowed {
						total += float64(conflicts - allowed)
					}
				}
			}
			return total
		},
	})
}

// encodePreferenceSlots penalizes starts in the last slot of a day, the least
// preferred sitting.
func encodePreferenceSlots(m *cp.Model, ac models.ActiveConstraint) {
	m.AddPenalty(cp.PenaltyTerm{
		Code:       ac.Declaration.Code,
		Weight:     ac.Weight,
		Admissible: true,
		Eval: func(st *cp.State) float64 {
			problem := st.Problem()
			total := 0.0
			for _, examID := range st.PlacedExamIDs() {
				pl, _ := st.Placement(examID)
				day, _ := problem.DayOf(pl.StartSlotID)
				if problem.SlotIndexInDay(pl.StartSlotID) == len(day.SlotIDs)-1 && len(day.SlotIDs) > 1 {
					total++
				}
			}
			return total
		},
	})
}

// encodeDailyWorkloadBalance penalizes variance of exam counts across days.
func encodeDailyWorkloadBalance(m *cp.Model, ac models.ActiveConstraint) {
	m.AddPenalty(cp.PenaltyTerm{
		Code:       ac.Declaration.Code,
		Weight:     ac.Weight,
		Admissible: false,
		Eval: func(st *cp.State) float64 {
			problem := st.Problem()
			days := problem.DayIDs()
			if len(days) == 0 {
				return 0
			}
			counts := make(map[uuid.UUID]int, len(days))
			for _, examID := range st.PlacedExamIDs() {
				pl, _ := st.Placement(examID)
				day, _ := problem.DayOf(pl.StartSlotID)
				counts[day.ID]++
			}
			mean := float64(len(st.PlacedExamIDs())) / float64(len(days))
			variance := 0.0
			for _, dayID := range days {
				diff := float64(counts[dayID]) - mean
				variance += diff * diff
			}
			return variance / float64(len(days))
		},
	})
}

// encodeOverbookingPenalty charges for students seated beyond exam capacity in
// overbookable rooms.
func encodeOverbookingPenalty(m *cp.Model, ac models.ActiveConstraint) {
	m.AddPenalty(cp.PenaltyTerm{
		Code:       ac.Declaration.Code,
		Weight:     ac.Weight,
		Admissible: true,
		Eval: func(st *cp.State) float64 {
			problem := st.Problem()
			total := 0.0
			for _, examID := range st.PlacedExamIDs() {
				pl, _ := st.Placement(examID)
				for _, roomID := range pl.RoomIDs {
					room := problem.Rooms[roomID]
					for _, slotID := range pl.CoveredSlots {
						if extra := st.RoomStudents(roomID, slotID) - room.ExamCapacity; extra > 0 {
							total += float64(extra)
						}
					}
				}
			}
			return total
		},
	})
}

// encodeRoomDurationHomogeneity prefers rooms hosting same-duration exams on a day.
func encodeRoomDurationHomogeneity(m *cp.Model, ac models.ActiveConstraint) {
	m.AddPenalty(cp.PenaltyTerm{
		Code:       ac.Declaration.Code,
		Weight:     ac.Weight,
		Admissible: true,
		Eval: func(st *cp.State) float64 {
			problem := st.Problem()
			type roomDay struct {
				Room uuid.UUID
				Day  uuid.UUID
			}
			durations := make(map[roomDay]map[int]bool)
			for _, examID := range st.PlacedExamIDs() {
				pl, _ := st.Placement(examID)
				day, _ := problem.DayOf(pl.StartSlotID)
				for _, roomID := range pl.RoomIDs {
					key := roomDay{Room: roomID, Day: day.ID}
					if durations[key] == nil {
						durations[key] = make(map[int]bool)
					}
					durations[key][problem.Exams[examID].DurationMinutes] = true
				}
			}
			total := 0.0
			for _, set := range durations {
				if len(set) > 1 {
					total += float64(len(set) - 1)
				}
			}
			return total
		},
	})
}

// encodeRoomFitPenalty minimizes unused exam capacity in assigned rooms.
func encodeRoomFitPenalty(m *cp.Model, ac models.ActiveConstraint) {
	m.AddPenalty(cp.PenaltyTerm{
		Code:       ac.Declaration.Code,
		Weight:     ac.Weight,
		Admissible: true,
		Eval: func(st *cp.State) float64 {
			problem := st.Problem()
			total := 0.0
			for _, examID := range st.PlacedExamIDs() {
				pl, _ := st.Placement(examID)
				for _, roomID := range pl.RoomIDs {
					if slack := problem.Rooms[roomID].ExamCapacity - pl.Alloc[roomID]; slack > 0 {
						total += float64(slack)
					}
				}
			}
			return total
		},
	})
}
