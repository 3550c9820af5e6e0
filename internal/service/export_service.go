package service

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-exam-scheduler/internal/dto"
	"github.com/noah-isme/uni-exam-scheduler/pkg/export"
)

// ExportService renders a solution document into tabular exports.
type ExportService struct {
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	logger *zap.Logger
}

// NewExportService builds the exporter pair.
func NewExportService(logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		logger: logger,
	}
}

var timetableHeaders = []string{"Exam", "Date", "Start Slot", "Rooms", "Students", "Invigilators"}

// Tabulate flattens assignments into the shared export dataset shape.
func (s *ExportService) Tabulate(doc dto.SolutionDocument) export.Dataset {
	rows := make([]map[string]string, 0, len(doc.Assignments))
	for _, assignment := range doc.Assignments {
		var rooms []string
		students := 0
		for _, alloc := range assignment.RoomAllocations {
			rooms = append(rooms, fmt.Sprintf("%s (%d)", alloc.RoomID, alloc.Students))
			students += alloc.Students
		}
		rows = append(rows, map[string]string{
			"Exam":         assignment.ExamID,
			"Date":         assignment.Date,
			"Start Slot":   assignment.StartSlotID,
			"Rooms":        strings.Join(rooms, "; "),
			"Students":     fmt.Sprintf("%d", students),
			"Invigilators": strings.Join(assignment.InvigilatorIDs, "; "),
		})
	}
	return export.Dataset{Headers: timetableHeaders, Rows: rows}
}

// RenderCSV produces the timetable as CSV bytes.
func (s *ExportService) RenderCSV(doc dto.SolutionDocument) ([]byte, error) {
	return s.csv.Render(s.Tabulate(doc))
}

// RenderPDF produces the timetable as PDF bytes.
func (s *ExportService) RenderPDF(doc dto.SolutionDocument) ([]byte, error) {
	title := fmt.Sprintf("Exam timetable %s (%s)", doc.SessionID, doc.Status)
	return s.pdf.Render(s.Tabulate(doc), title)
}
