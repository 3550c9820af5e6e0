package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolutionDocumentRoundTrip(t *testing.T) {
	doc := SolutionDocument{
		SessionID: "11111111-1111-1111-1111-111111111111",
		Status:    "Feasible",
		Statistics: StatisticsDocument{
			Branches:        120,
			Conflicts:       4,
			BestObjective:   250,
			WallTimeSeconds: 1.5,
			Filter:          "ga",
			Objective:       map[string]float64{"MINIMUM_GAP": 250},
			Completion:      100,
		},
		Assignments: []AssignmentDocument{{
			ExamID:      "22222222-2222-2222-2222-222222222222",
			Date:        "2026-03-02",
			StartSlotID: "33333333-3333-3333-3333-333333333333",
			RoomAllocations: []RoomAllocationDocument{
				{RoomID: "44444444-4444-4444-4444-444444444444", Students: 30},
			},
			InvigilatorIDs: []string{"55555555-5555-5555-5555-555555555555"},
		}},
		Unassigned: []string{},
	}

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var decoded SolutionDocument
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, doc, decoded)
}

func TestDatasetDecodesConstraintConfig(t *testing.T) {
	raw := `{
		"session_id": "11111111-1111-1111-1111-111111111111",
		"exam_period_start": "2026-03-02",
		"exam_period_end": "2026-03-06",
		"exam_days": [],
		"exams": [],
		"rooms": [],
		"constraints": {
			"rules": [
				{"code": "MINIMUM_GAP", "enabled": true, "weight": 250.0,
				 "parameters": {"min_gap_slots": 1}}
			]
		}
	}`
	var dataset Dataset
	require.NoError(t, json.Unmarshal([]byte(raw), &dataset))
	require.Len(t, dataset.Constraints.Rules, 1)
	rule := dataset.Constraints.Rules[0]
	assert.Equal(t, "MINIMUM_GAP", rule.Code)
	assert.True(t, rule.Enabled)
	require.NotNil(t, rule.Weight)
	assert.Equal(t, 250.0, *rule.Weight)
	assert.Equal(t, 1.0, rule.Parameters["min_gap_slots"])
}
