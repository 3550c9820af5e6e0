package cp

import (
	"github.com/google/uuid"

	"github.com/noah-isme/uni-exam-scheduler/internal/models"
)

type roomSlot struct {
	Room uuid.UUID
	Slot uuid.UUID
}

// Interval is a student's occupied time range on one day, in minutes from midnight
// and slot indices within the day.
type Interval struct {
	ExamID   uuid.UUID
	StartMin int
	EndMin   int
	StartIdx int
	EndIdx   int
}

// State is the mutable search state: placements plus the occupancy indices the
// propagators and penalty terms query. It is owned by exactly one search goroutine.
type State struct {
	problem *models.Problem

	placements map[uuid.UUID]Placement
	order      []uuid.UUID

	roomStudents map[roomSlot]int
	roomExams    map[roomSlot][]uuid.UUID

	studentDay map[uuid.UUID]map[uuid.UUID][]Interval

	invLoad     map[uuid.UUID]int
	invSlots    map[uuid.UUID]map[uuid.UUID]int
	invDayCount map[uuid.UUID]map[uuid.UUID]int
}

// NewState builds an empty state over the problem.
func NewState(problem *models.Problem) *State {
	return &State{
		problem:      problem,
		placements:   make(map[uuid.UUID]Placement),
		roomStudents: make(map[roomSlot]int),
		roomExams:    make(map[roomSlot][]uuid.UUID),
		studentDay:   make(map[uuid.UUID]map[uuid.UUID][]Interval),
		invLoad:      make(map[uuid.UUID]int),
		invSlots:     make(map[uuid.UUID]map[uuid.UUID]int),
		invDayCount:  make(map[uuid.UUID]map[uuid.UUID]int),
	}
}

// Problem returns the underlying model.
func (st *State) Problem() *models.Problem { return st.problem }

// PlacedExamIDs returns placed exams in placement order.
func (st *State) PlacedExamIDs() []uuid.UUID { return st.order }

// Placement returns the placement of an exam, if placed.
func (st *State) Placement(examID uuid.UUID) (Placement, bool) {
	pl, ok := st.placements[examID]
	return pl, ok
}

// RoomStudents returns the students seated in a room at a slot.
func (st *State) RoomStudents(roomID, slotID uuid.UUID) int {
	return st.roomStudents[roomSlot{Room: roomID, Slot: slotID}]
}

// RoomExams returns the exams occupying a room at a slot.
func (st *State) RoomExams(roomID, slotID uuid.UUID) []uuid.UUID {
	return st.roomExams[roomSlot{Room: roomID, Slot: slotID}]
}

// IntervalsFor returns a student's occupied intervals on a day.
func (st *State) IntervalsFor(studentID, dayID uuid.UUID) []Interval {
	return st.studentDay[studentID][dayID]
}

// InvigilatorLoad returns the total sittings assigned to an invigilator.
func (st *State) InvigilatorLoad(invID uuid.UUID) int { return st.invLoad[invID] }

// InvigilatorBusy returns how many concurrent sittings an invigilator has at a slot.
func (st *State) InvigilatorBusy(invID, slotID uuid.UUID) int {
	return st.invSlots[invID][slotID]
}

// InvigilatorDaySessions returns an invigilator's sitting count on a day.
func (st *State) InvigilatorDaySessions(invID, dayID uuid.UUID) int {
	return st.invDayCount[invID][dayID]
}

// interval computes the occupied range for an exam starting at a slot.
func (st *State) interval(examID uuid.UUID, pl Placement) Interval {
	start := st.problem.Slots[pl.StartSlotID]
	last := st.problem.Slots[pl.CoveredSlots[len(pl.CoveredSlots)-1]]
	exam := st.problem.Exams[examID]
	endMin := start.StartMinutes + exam.DurationMinutes
	if endMin > last.EndMinutes {
		endMin = last.EndMinutes
	}
	return Interval{
		ExamID:   examID,
		StartMin: start.StartMinutes,
		EndMin:   endMin,
		StartIdx: st.problem.SlotIndexInDay(pl.StartSlotID),
		EndIdx:   st.problem.SlotIndexInDay(pl.CoveredSlots[len(pl.CoveredSlots)-1]),
	}
}

// Place applies a placement to the state.
func (st *State) Place(pl Placement) {
	st.placements[pl.ExamID] = pl
	st.order = append(st.order, pl.ExamID)

	for _, slotID := range pl.CoveredSlots {
		for _, roomID := range pl.RoomIDs {
			key := roomSlot{Room: roomID, Slot: slotID}
			st.roomStudents[key] += pl.Alloc[roomID]
			st.roomExams[key] = append(st.roomExams[key], pl.ExamID)
		}
	}

	day, _ := st.problem.DayOf(pl.StartSlotID)
	iv := st.interval(pl.ExamID, pl)
	for studentID := range st.problem.Exams[pl.ExamID].Students {
		if st.studentDay[studentID] == nil {
			st.studentDay[studentID] = make(map[uuid.UUID][]Interval)
		}
		st.studentDay[studentID][day.ID] = append(st.studentDay[studentID][day.ID], iv)
	}

	for _, invID := range pl.Invigilators {
		st.invLoad[invID]++
		if st.invSlots[invID] == nil {
			st.invSlots[invID] = make(map[uuid.UUID]int)
		}
		for _, slotID := range pl.CoveredSlots {
			st.invSlots[invID][slotID]++
		}
		if st.invDayCount[invID] == nil {
			st.invDayCount[invID] = make(map[uuid.UUID]int)
		}
		st.invDayCount[invID][day.ID]++
	}
}

// Unplace reverts a placement. Placements unwind in LIFO order during search.
func (st *State) Unplace(pl Placement) {
	delete(st.placements, pl.ExamID)
	if n := len(st.order); n > 0 && st.order[n-1] == pl.ExamID {
		st.order = st.order[:n-1]
	}

	for _, slotID := range pl.CoveredSlots {
		for _, roomID := range pl.RoomIDs {
			key := roomSlot{Room: roomID, Slot: slotID}
			st.roomStudents[key] -= pl.Alloc[roomID]
			exams := st.roomExams[key]
			for i := len(exams) - 1; i >= 0; i-- {
				if exams[i] == pl.ExamID {
					st.roomExams[key] = append(exams[:i], exams[i+1:]...)
					break
				}
			}
		}
	}

	day, _ := st.problem.DayOf(pl.StartSlotID)
	for studentID := range st.problem.Exams[pl.ExamID].Students {
		ivs := st.studentDay[studentID][day.ID]
		for i := len(ivs) - 1; i >= 0; i-- {
			if ivs[i].ExamID == pl.ExamID {
				st.studentDay[studentID][day.ID] = append(ivs[:i], ivs[i+1:]...)
				break
			}
		}
	}

	for _, invID := range pl.Invigilators {
		st.invLoad[invID]--
		for _, slotID := range pl.CoveredSlots {
			st.invSlots[invID][slotID]--
		}
		st.invDayCount[invID][day.ID]--
	}
}

// Complete reports whether every exam with a non-empty start domain is placed.
func (st *State) Complete(domain Domain) bool {
	for examID, starts := range domain.Starts {
		if len(starts) == 0 {
			continue
		}
		if _, ok := st.placements[examID]; !ok {
			return false
		}
	}
	return true
}
