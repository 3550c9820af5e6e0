package ga

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLayout(size int) *Layout {
	// A bare layout is enough for operator tests; only Size and segment bounds matter.
	return &Layout{size: size}
}

func uniform(layout *Layout, value float64) *Individual {
	genes := make([]float64, layout.Size())
	for i := range genes {
		genes[i] = value
	}
	return &Individual{Genes: genes, Evaluated: true}
}

func TestBlendCrossoverStaysInBounds(t *testing.T) {
	layout := testLayout(100)
	rng := rand.New(rand.NewSource(1))
	p1 := uniform(layout, 0.0)
	p2 := uniform(layout, 1.0)

	c1, c2 := BlendCrossover(layout, rng, 0.4, p1, p2)
	require.Len(t, c1.Genes, 100)
	for i := range c1.Genes {
		assert.GreaterOrEqual(t, c1.Genes[i], 0.0)
		assert.LessOrEqual(t, c1.Genes[i], 1.0)
		assert.GreaterOrEqual(t, c2.Genes[i], 0.0)
		assert.LessOrEqual(t, c2.Genes[i], 1.0)
	}
	assert.False(t, c1.Evaluated)
	assert.Zero(t, c1.Age)
}

func TestBlendCrossoverDoesNotMutateParents(t *testing.T) {
	layout := testLayout(50)
	rng := rand.New(rand.NewSource(2))
	p1 := uniform(layout, 0.25)
	p2 := uniform(layout, 0.75)

	BlendCrossover(layout, rng, 0.3, p1, p2)
	for i := range p1.Genes {
		assert.Equal(t, 0.25, p1.Genes[i])
		assert.Equal(t, 0.75, p2.Genes[i])
	}
}

func TestGaussianMutateClampsAndMarksUnevaluated(t *testing.T) {
	layout := testLayout(200)
	rng := rand.New(rand.NewSource(3))
	ind := uniform(layout, 0.5)
	ind.Violations = 10
	ind.Age = 5

	GaussianMutate(layout, rng, 1.0, ind)
	changed := 0
	for _, gene := range ind.Genes {
		assert.GreaterOrEqual(t, gene, 0.0)
		assert.LessOrEqual(t, gene, 1.0)
		if gene != 0.5 {
			changed++
		}
	}
	assert.Greater(t, changed, 0)
	assert.False(t, ind.Evaluated)
}

func TestTournamentPrefersZeroCriticalViolations(t *testing.T) {
	layout := testLayout(10)
	clean := uniform(layout, 0.5)
	clean.Fitness = 500
	dirty := uniform(layout, 0.5)
	dirty.Fitness = 1
	dirty.CriticalViolations = 3

	rng := rand.New(rand.NewSource(4))
	population := []*Individual{clean, dirty}
	// A tournament that draws the clean contender at least once must pick it.
	wins := 0
	for i := 0; i < 100; i++ {
		if TournamentSelect(rng, 4, population, 500) == clean {
			wins++
		}
	}
	assert.Greater(t, wins, 80, "a critically violating individual must not beat a clean one")
}

func TestIsCriticalGeneSegments(t *testing.T) {
	layout := testLayout(100)
	assert.True(t, layout.IsCriticalGene(0))
	assert.True(t, layout.IsCriticalGene(19))
	assert.False(t, layout.IsCriticalGene(25))
	assert.True(t, layout.IsCriticalGene(30))
	assert.True(t, layout.IsCriticalGene(69))
	assert.False(t, layout.IsCriticalGene(70))
	assert.False(t, layout.IsCriticalGene(99))
}

func TestPruningDecisionsProtectCriticalVariables(t *testing.T) {
	decisions := NewPruningDecisions()
	key := yKey(1, 2, 3)

	decisions.MarkCriticalY(key)
	assert.False(t, decisions.PruneY(key))
	_, pruned := decisions.PrunedY[key]
	assert.False(t, pruned)

	other := yKey(4, 5, 6)
	assert.True(t, decisions.PruneY(other))
}
