package ga

import (
	"github.com/google/uuid"

	"github.com/noah-isme/uni-exam-scheduler/internal/cp"
	"github.com/noah-isme/uni-exam-scheduler/internal/models"
)

// Layout maps the flat preference vector onto problem entities. The vector packs,
// in order: exam priorities (|E|), per-exam room preferences (|E|x|R|), per-exam
// slot preferences (|E|x|T|), and invigilator utilization preferences (|I|).
type Layout struct {
	ExamIDs []uuid.UUID
	RoomIDs []uuid.UUID
	SlotIDs []uuid.UUID
	InvIDs  []uuid.UUID

	roomOffset int
	slotOffset int
	invOffset  int
	size       int
}

// NewLayout derives the vector layout from a problem.
func NewLayout(problem *models.Problem) *Layout {
	l := &Layout{
		ExamIDs: problem.ExamIDs(),
		RoomIDs: problem.RoomIDs(),
		SlotIDs: problem.SlotIDs(),
		InvIDs:  problem.InvigilatorIDs(),
	}
	numExams := len(l.ExamIDs)
	l.roomOffset = numExams
	l.slotOffset = l.roomOffset + numExams*len(l.RoomIDs)
	l.invOffset = l.slotOffset + numExams*len(l.SlotIDs)
	l.size = l.invOffset + len(l.InvIDs)
	return l
}

// Size is the gene count.
func (l *Layout) Size() int { return l.size }

// ExamPriority reads the priority gene of an exam index.
func (l *Layout) ExamPriority(genes []float64, examIdx int) float64 {
	return genes[examIdx]
}

// RoomPreference reads the (exam, room) preference gene.
func (l *Layout) RoomPreference(genes []float64, examIdx, roomIdx int) float64 {
	return genes[l.roomOffset+examIdx*len(l.RoomIDs)+roomIdx]
}

// SlotPreference reads the (exam, slot) preference gene.
func (l *Layout) SlotPreference(genes []float64, examIdx, slotIdx int) float64 {
	return genes[l.slotOffset+examIdx*len(l.SlotIDs)+slotIdx]
}

// InvigilatorPreference reads the utilization gene of an invigilator index.
func (l *Layout) InvigilatorPreference(genes []float64, invIdx int) float64 {
	return genes[l.invOffset+invIdx]
}

// IsCriticalGene marks constraint-critical segments: the first 20% and the middle
// 40% of the vector. Operators treat these conservatively.
func (l *Layout) IsCriticalGene(idx int) bool {
	if l.size == 0 {
		return false
	}
	first := idx < l.size/5
	middle := idx >= l.size*3/10 && idx < l.size*7/10
	return first || middle
}

// Individual is one preference vector with bookkeeping used by the operators.
type Individual struct {
	Genes []float64

	Fitness            float64
	Evaluated          bool
	Age                int
	Violations         int
	CriticalViolations int
}

// Clone copies the individual.
func (ind *Individual) Clone() *Individual {
	genes := make([]float64, len(ind.Genes))
	copy(genes, ind.Genes)
	return &Individual{
		Genes:              genes,
		Fitness:            ind.Fitness,
		Evaluated:          ind.Evaluated,
		Age:                ind.Age,
		Violations:         ind.Violations,
		CriticalViolations: ind.CriticalViolations,
	}
}

// PruningDecisions records variables flagged prunable and the disjoint critical set
// that must never be pruned. Locked variables are forced critical.
type PruningDecisions struct {
	PrunedY map[cp.RoomKey]struct{}
	PrunedU map[cp.InvKey]struct{}

	CriticalY map[cp.RoomKey]struct{}
	CriticalU map[cp.InvKey]struct{}
}

// NewPruningDecisions builds empty decision sets.
func NewPruningDecisions() *PruningDecisions {
	return &PruningDecisions{
		PrunedY:   make(map[cp.RoomKey]struct{}),
		PrunedU:   make(map[cp.InvKey]struct{}),
		CriticalY: make(map[cp.RoomKey]struct{}),
		CriticalU: make(map[cp.InvKey]struct{}),
	}
}

// MarkCriticalY flags a Y variable as never-prune and removes any pruning mark.
func (p *PruningDecisions) MarkCriticalY(key cp.RoomKey) {
	p.CriticalY[key] = struct{}{}
	delete(p.PrunedY, key)
}

// MarkCriticalU flags a U variable as never-prune and removes any pruning mark.
func (p *PruningDecisions) MarkCriticalU(key cp.InvKey) {
	p.CriticalU[key] = struct{}{}
	delete(p.PrunedU, key)
}

// PruneY marks a Y variable prunable unless it is critical.
func (p *PruningDecisions) PruneY(key cp.RoomKey) bool {
	if _, critical := p.CriticalY[key]; critical {
		return false
	}
	p.PrunedY[key] = struct{}{}
	return true
}

// PruneU marks a U variable prunable unless it is critical.
func (p *PruningDecisions) PruneU(key cp.InvKey) bool {
	if _, critical := p.CriticalU[key]; critical {
		return false
	}
	p.PrunedU[key] = struct{}{}
	return true
}
