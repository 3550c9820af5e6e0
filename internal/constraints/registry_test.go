package constraints

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-exam-scheduler/internal/dto"
	"github.com/noah-isme/uni-exam-scheduler/internal/models"
)

func TestResolveEmptyConfigActivatesHardDefaults(t *testing.T) {
	registry := NewRegistry(nil)
	active := registry.Resolve(dto.ConstraintConfig{}, models.SlotModeFixed)

	require.NotEmpty(t, active)
	codes := map[string]bool{}
	for _, ac := range active {
		assert.Equal(t, models.ConstraintHard, ac.Declaration.Type)
		codes[ac.Declaration.Code] = true
	}
	assert.True(t, codes[models.CodeUnifiedStudentConflict])
	assert.True(t, codes[models.CodeRoomCapacityHard])
	assert.False(t, codes[models.CodeRoomSequentialUse], "flexible-only rules stay off in fixed mode")
}

func TestResolveUnknownCodeIgnored(t *testing.T) {
	registry := NewRegistry(nil)
	active := registry.Resolve(dto.ConstraintConfig{Rules: []dto.ConstraintRule{
		{Code: "NOT_A_RULE", Enabled: true},
		{Code: models.CodeMinimumGap, Enabled: true},
	}}, models.SlotModeFixed)

	require.Len(t, active, 1)
	assert.Equal(t, models.CodeMinimumGap, active[0].Declaration.Code)
}

func TestResolveWeightAndParameterOverrides(t *testing.T) {
	registry := NewRegistry(nil)
	weight := 250.0
	active := registry.Resolve(dto.ConstraintConfig{Rules: []dto.ConstraintRule{
		{
			Code:    models.CodeMinimumGap,
			Enabled: true,
			Weight:  &weight,
			Parameters: map[string]float64{
				"min_gap_slots": 2,
				"bogus_param":   9,
			},
		},
	}}, models.SlotModeFixed)

	require.Len(t, active, 1)
	assert.Equal(t, 250.0, active[0].Weight)
	assert.Equal(t, 2.0, active[0].Param("min_gap_slots"))
	_, hasBogus := active[0].Parameters["bogus_param"]
	assert.False(t, hasBogus, "unknown parameters are dropped")
}

func TestResolveParameterDefaults(t *testing.T) {
	registry := NewRegistry(nil)
	active := registry.Resolve(dto.ConstraintConfig{Rules: []dto.ConstraintRule{
		{Code: models.CodeMaxExamsPerStudentDay, Enabled: true},
	}}, models.SlotModeFixed)

	require.Len(t, active, 1)
	assert.Equal(t, 2.0, active[0].Param("max_exams_per_day"))
	assert.Equal(t, 50.0, active[0].Weight)
}

func TestResolveTypeOverride(t *testing.T) {
	registry := NewRegistry(nil)
	active := registry.Resolve(dto.ConstraintConfig{Rules: []dto.ConstraintRule{
		{Code: models.CodeUnifiedStudentConflict, Enabled: true, Type: "soft"},
	}}, models.SlotModeFixed)

	require.Len(t, active, 1)
	assert.Equal(t, models.ConstraintSoft, active[0].Declaration.Type)
}

func TestResolveFlexibleOnlyActivatesInFlexibleMode(t *testing.T) {
	registry := NewRegistry(nil)

	fixed := registry.Resolve(dto.ConstraintConfig{Rules: []dto.ConstraintRule{
		{Code: models.CodeRoomSequentialUse, Enabled: true},
	}}, models.SlotModeFixed)
	assert.Empty(t, fixed)

	flexible := registry.Resolve(dto.ConstraintConfig{Rules: []dto.ConstraintRule{
		{Code: models.CodeRoomSequentialUse, Enabled: true},
	}}, models.SlotModeFlexible)
	assert.Len(t, flexible, 1)
}

func TestResolveDisabledRuleSkipped(t *testing.T) {
	registry := NewRegistry(nil)
	active := registry.Resolve(dto.ConstraintConfig{Rules: []dto.ConstraintRule{
		{Code: models.CodeMinimumGap, Enabled: false},
	}}, models.SlotModeFixed)
	assert.Empty(t, active)
}
