package service

import (
	"go.uber.org/zap"

	"github.com/noah-isme/uni-exam-scheduler/internal/dto"
)

// AnalyzeService runs the pre-solve analysis over a raw dataset without solving.
type AnalyzeService struct {
	prep     datasetPreparer
	analyzer presolveAnalyzer
	logger   *zap.Logger
}

// NewAnalyzeService wires the analysis pipeline.
func NewAnalyzeService(prep datasetPreparer, analyzer presolveAnalyzer, logger *zap.Logger) *AnalyzeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyzeService{prep: prep, analyzer: analyzer, logger: logger}
}

// Analyze prepares the dataset and returns the report plus preparation warnings.
func (s *AnalyzeService) Analyze(dataset dto.Dataset) (dto.AnalysisReportDocument, []string, error) {
	problem, diags, err := s.prep.Prepare(dataset)
	if err != nil {
		return dto.AnalysisReportDocument{}, nil, err
	}
	report := s.analyzer.Analyze(problem)
	return report, diags.Warnings, nil
}
