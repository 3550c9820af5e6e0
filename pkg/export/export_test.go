package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Headers: []string{"Exam", "Date", "Rooms"},
		Rows: []map[string]string{
			{"Exam": "CSC101", "Date": "2026-03-02", "Rooms": "HALL-A (30)"},
			{"Exam": "MTH101", "Date": "2026-03-03", "Rooms": "HALL-B (20)"},
		},
	}
}

func TestCSVRender(t *testing.T) {
	data, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Exam,Date,Rooms", lines[0])
	assert.Contains(t, lines[1], "CSC101")
	assert.Contains(t, lines[2], "HALL-B (20)")
}

func TestCSVRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFRender(t *testing.T) {
	data, err := NewPDFExporter().Render(sampleDataset(), "Exam timetable")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
}

func TestPDFRequiresHeaders(t *testing.T) {
	_, err := NewPDFExporter().Render(Dataset{}, "")
	assert.Error(t, err)
}
