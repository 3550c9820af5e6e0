package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-exam-scheduler/internal/dto"
)

func sampleDocument() dto.SolutionDocument {
	return dto.SolutionDocument{
		SessionID: "11111111-1111-1111-1111-111111111111",
		Status:    "Optimal",
		Assignments: []dto.AssignmentDocument{{
			ExamID:      "22222222-2222-2222-2222-222222222222",
			Date:        "2026-03-02",
			StartSlotID: "33333333-3333-3333-3333-333333333333",
			RoomAllocations: []dto.RoomAllocationDocument{
				{RoomID: "44444444-4444-4444-4444-444444444444", Students: 30},
				{RoomID: "55555555-5555-5555-5555-555555555555", Students: 20},
			},
			InvigilatorIDs: []string{"66666666-6666-6666-6666-666666666666"},
		}},
	}
}

func TestTabulateFlattensAssignments(t *testing.T) {
	svc := NewExportService(nil)
	dataset := svc.Tabulate(sampleDocument())

	require.Len(t, dataset.Rows, 1)
	row := dataset.Rows[0]
	assert.Equal(t, "2026-03-02", row["Date"])
	assert.Equal(t, "50", row["Students"])
	assert.Contains(t, row["Rooms"], "(30)")
	assert.Contains(t, row["Rooms"], "(20)")
}

func TestRenderCSVAndPDF(t *testing.T) {
	svc := NewExportService(nil)

	csvData, err := svc.RenderCSV(sampleDocument())
	require.NoError(t, err)
	assert.Contains(t, string(csvData), "Exam,Date,Start Slot")

	pdfData, err := svc.RenderPDF(sampleDocument())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdfData), "%PDF"))
}
