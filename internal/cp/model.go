package cp

import (
	"github.com/google/uuid"

	"github.com/noah-isme/uni-exam-scheduler/internal/models"
)

// StartKey identifies an X variable: exam e starts at slot s.
type StartKey struct {
	Exam uuid.UUID
	Slot uuid.UUID
}

// RoomKey identifies a Y variable: exam e uses room r at start slot s.
type RoomKey struct {
	Exam uuid.UUID
	Room uuid.UUID
	Slot uuid.UUID
}

// InvKey identifies a U variable: invigilator i serves (e, r, s).
type InvKey struct {
	Invigilator uuid.UUID
	Exam        uuid.UUID
	Room        uuid.UUID
	Slot        uuid.UUID
}

// Domain is the viable variable space the search branches over. A full domain is
// built from the problem; the GA filter narrows it.
type Domain struct {
	// Starts lists candidate start slots per exam, in (day, slot index) order.
	Starts map[uuid.UUID][]uuid.UUID

	// Rooms lists candidate rooms per (exam, start slot), in tie-break order.
	Rooms map[StartKey][]uuid.UUID

	// Invigilators lists candidate invigilators per (exam, room, start slot).
	Invigilators map[RoomKey][]uuid.UUID
}

// Hint suggests a start slot for an exam with a confidence used to bias search
// order. Hints never restrict feasibility.
type Hint struct {
	Exam       uuid.UUID
	Slot       uuid.UUID
	Confidence float64
}

// Placement is one exam's tentative assignment during search.
type Placement struct {
	ExamID       uuid.UUID
	StartSlotID  uuid.UUID
	CoveredSlots []uuid.UUID
	RoomIDs      []uuid.UUID
	Alloc        map[uuid.UUID]int
	Invigilators []uuid.UUID
}

// Propagator rejects placements that violate a hard constraint.
type Propagator struct {
	Code  string
	Check func(st *State, pl Placement) error
}

// PenaltyTerm contributes a weighted violation count to the objective. Admissible
// terms never decrease as placements are added, so partial sums are safe lower
// bounds for pruning; non-admissible terms are only counted on complete states.
type PenaltyTerm struct {
	Code       string
	Weight     float64
	Admissible bool
	Eval       func(st *State) float64
}

// Model is the built CP model: viable domains plus posted constraints and
// objective terms.
type Model struct {
	Problem      *models.Problem
	Domain       Domain
	Propagators  []Propagator
	Penalties    []PenaltyTerm
	Hints        []Hint
	VariableMode string
}

// NewModel creates an empty model over the given domain.
func NewModel(problem *models.Problem, domain Domain) *Model {
	return &Model{Problem: problem, Domain: domain}
}

// AddPropagator posts a hard constraint.
func (m *Model) AddPropagator(p Propagator) {
	m.Propagators = append(m.Propagators, p)
}

// AddPenalty posts a weighted soft term.
func (m *Model) AddPenalty(t PenaltyTerm) {
	m.Penalties = append(m.Penalties, t)
}

// VariableCounts reports the X, Y and U variable counts of the domain.
func (m *Model) VariableCounts() (x, y, u int) {
	for _, starts := range m.Domain.Starts {
		x += len(starts)
	}
	for _, rooms := range m.Domain.Rooms {
		y += len(rooms)
	}
	for _, invs := range m.Domain.Invigilators {
		u += len(invs)
	}
	return x, y, u
}

// FullDomain builds the unfiltered viable variable space: every feasible start,
// every fitting room per start, every eligible invigilator per (exam, room, start).
// Lock fields collapse the corresponding dimension to the pinned values.
func FullDomain(problem *models.Problem) Domain {
	domain := Domain{
		Starts:       make(map[uuid.UUID][]uuid.UUID),
		Rooms:        make(map[StartKey][]uuid.UUID),
		Invigilators: make(map[RoomKey][]uuid.UUID),
	}

	for _, examID := range problem.ExamIDs() {
		lock, locked := problem.LockFor(examID)

		var starts []uuid.UUID
		if locked && lock.PinsSlot() {
			if problem.IsStartFeasible(examID, *lock.TimeSlotID) {
				starts = []uuid.UUID{*lock.TimeSlotID}
			}
		} else {
			for _, slotID := range problem.SlotIDs() {
				if problem.IsStartFeasible(examID, slotID) {
					starts = append(starts, slotID)
				}
			}
		}
		domain.Starts[examID] = starts

		for _, slotID := range starts {
			rooms := candidateRooms(problem, examID, lock)
			domain.Rooms[StartKey{Exam: examID, Slot: slotID}] = rooms
			for _, roomID := range rooms {
				key := RoomKey{Exam: examID, Room: roomID, Slot: slotID}
				domain.Invigilators[key] = candidateInvigilators(problem, examID, slotID, lock)
			}
		}
	}
	return domain
}

// candidateRooms orders viable rooms by (exam_capacity desc, id asc).
func candidateRooms(problem *models.Problem, examID uuid.UUID, lock *models.Lock) []uuid.UUID {
	exam := problem.Exams[examID]

	var pool []uuid.UUID
	if lock != nil && lock.PinsRooms() {
		pool = append(pool, lock.RoomIDs...)
	} else {
		pool = problem.RoomIDs()
	}

	var rooms []uuid.UUID
	for _, roomID := range pool {
		room, ok := problem.Rooms[roomID]
		if !ok || room.ExamCapacity <= 0 {
			continue
		}
		if !room.Fits(exam) {
			continue
		}
		rooms = append(rooms, roomID)
	}
	sortRoomsByCapacity(problem, rooms)
	return rooms
}

func sortRoomsByCapacity(problem *models.Problem, rooms []uuid.UUID) {
	for i := 1; i < len(rooms); i++ {
		for j := i; j > 0; j-- {
			a, b := problem.Rooms[rooms[j-1]], problem.Rooms[rooms[j]]
			swap := false
			if a.ExamCapacity < b.ExamCapacity {
				swap = true
			} else if a.ExamCapacity == b.ExamCapacity && models.LessUUID(b.ID, a.ID) {
				swap = true
			}
			if !swap {
				break
			}
			rooms[j-1], rooms[j] = rooms[j], rooms[j-1]
		}
	}
}

// candidateInvigilators filters by availability on the slot's date and period.
func candidateInvigilators(problem *models.Problem, examID, slotID uuid.UUID, lock *models.Lock) []uuid.UUID {
	slot := problem.Slots[slotID]
	day, _ := problem.DayOf(slotID)
	date := ""
	if day != nil {
		date = day.Date.Format("2006-01-02")
	}

	var pool []uuid.UUID
	if lock != nil && lock.PinsInvigilators() {
		pool = append(pool, lock.InvigilatorIDs...)
	} else {
		pool = problem.InvigilatorIDs()
	}

	var invs []uuid.UUID
	for _, invID := range pool {
		inv, ok := problem.Invigilators[invID]
		if !ok {
			continue
		}
		if !inv.IsAvailable(date, slot.Name) {
			continue
		}
		invs = append(invs, invID)
	}
	return invs
}
