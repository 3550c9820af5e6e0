package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-exam-scheduler/internal/analysis"
	"github.com/noah-isme/uni-exam-scheduler/internal/constraints"
	"github.com/noah-isme/uni-exam-scheduler/internal/cp"
	"github.com/noah-isme/uni-exam-scheduler/internal/dataprep"
	"github.com/noah-isme/uni-exam-scheduler/internal/dto"
	"github.com/noah-isme/uni-exam-scheduler/internal/extract"
	"github.com/noah-isme/uni-exam-scheduler/internal/ga"
	"github.com/noah-isme/uni-exam-scheduler/internal/repository"
	"github.com/noah-isme/uni-exam-scheduler/internal/service"
	"github.com/noah-isme/uni-exam-scheduler/pkg/cache"
	"github.com/noah-isme/uni-exam-scheduler/pkg/config"
	"github.com/noah-isme/uni-exam-scheduler/pkg/database"
	appErrors "github.com/noah-isme/uni-exam-scheduler/pkg/errors"
	"github.com/noah-isme/uni-exam-scheduler/pkg/jobs"
	"github.com/noah-isme/uni-exam-scheduler/pkg/logger"
)

const usage = `usage: scheduler <command> [flags]

commands:
  solve    run the full scheduling pipeline over a dataset
  analyze  print the pre-solve feasibility report
  export   render a solved timetable as CSV or PDF
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(appErrors.StatusValidation)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	switch os.Args[1] {
	case "solve":
		os.Exit(runSolve(cfg, logr, os.Args[2:]))
	case "analyze":
		os.Exit(runAnalyze(cfg, logr, os.Args[2:]))
	case "export":
		os.Exit(runExport(logr, os.Args[2:]))
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(appErrors.StatusValidation)
	}
}

func runSolve(cfg *config.Config, logr *zap.Logger, args []string) int {
	fs := flag.NewFlagSet("solve", flag.ExitOnError)
	input := fs.String("input", "", "dataset file (JSON)")
	output := fs.String("output", "", "solution output file (JSON)")
	seed := fs.Int64("seed", cfg.Solver.Seed, "deterministic random seed (0 derives one from the solve id)")
	timeLimit := fs.Int("time-limit", int(cfg.Solver.TimeLimit.Seconds()), "solver wall-clock limit in seconds")
	workers := fs.Int("workers", cfg.Solver.Workers, "worker count for parallel stages")
	noFilter := fs.Bool("no-ga-filter", !cfg.GA.Enabled, "skip the GA variable filter")
	pdfOut := fs.String("pdf", "", "also render the timetable as PDF")
	csvOut := fs.String("csv", "", "also render the timetable as CSV")
	fromDB := fs.Bool("from-db", false, "load the dataset from the database instead of a file")
	session := fs.String("session", "", "exam session id (with --from-db)")
	_ = fs.Parse(args)

	dataset, code := loadDataset(cfg, logr, *input, *fromDB, *session)
	if code != appErrors.StatusSolved {
		return code
	}

	svc, exporter := buildSolveService(cfg, logr, *workers)
	outcome, err := svc.Solve(context.Background(), *dataset, service.SolveOptions{
		Seed:          *seed,
		TimeLimit:     time.Duration(*timeLimit) * time.Second,
		Workers:       *workers,
		DisableFilter: *noFilter,
	})
	if err != nil {
		return reportError(logr, err)
	}

	if *output != "" {
		if err := writeJSON(*output, outcome.Document); err != nil {
			logr.Error("failed to write solution", zap.Error(err))
			return appErrors.StatusInternal
		}
	} else {
		printJSON(outcome.Document)
	}

	if *csvOut != "" {
		if data, err := exporter.RenderCSV(outcome.Document); err == nil {
			if err := os.WriteFile(*csvOut, data, 0o644); err != nil {
				logr.Warn("failed to write csv export", zap.Error(err))
			}
		} else {
			logr.Warn("failed to render csv export", zap.Error(err))
		}
	}
	if *pdfOut != "" {
		if data, err := exporter.RenderPDF(outcome.Document); err == nil {
			if err := os.WriteFile(*pdfOut, data, 0o644); err != nil {
				logr.Warn("failed to write pdf export", zap.Error(err))
			}
		} else {
			logr.Warn("failed to render pdf export", zap.Error(err))
		}
	}

	return service.ExitStatus(outcome.Solution.Status)
}

func runAnalyze(cfg *config.Config, logr *zap.Logger, args []string) int {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	input := fs.String("input", "", "dataset file (JSON)")
	asJSON := fs.Bool("json", false, "emit the report as JSON")
	_ = fs.Parse(args)

	dataset, code := loadDataset(cfg, logr, *input, false, "")
	if code != appErrors.StatusSolved {
		return code
	}

	registry := constraints.NewRegistry(logr)
	prep := dataprep.NewService(registry, validator.New(), logr)
	analyzer := analysis.NewAnalyzer(logr)
	svc := service.NewAnalyzeService(prep, analyzer, logr)

	report, warnings, err := svc.Analyze(*dataset)
	if err != nil {
		return reportError(logr, err)
	}

	if *asJSON {
		printJSON(report)
		return appErrors.StatusSolved
	}

	fmt.Println(report.Summary)
	printSection("Critical issues", report.Feasibility.CriticalIssues)
	printSection("Warnings", append(append([]string(nil), report.Feasibility.Warnings...), warnings...))
	printSection("Key drivers", report.Runtime.KeyDrivers)
	printSection("Quality notes", report.Quality.PotentialIssues)
	return appErrors.StatusSolved
}

func runExport(logr *zap.Logger, args []string) int {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	input := fs.String("solution", "", "solution file (JSON)")
	pdfOut := fs.String("pdf", "", "PDF output path")
	csvOut := fs.String("csv", "", "CSV output path")
	_ = fs.Parse(args)

	if *input == "" || (*pdfOut == "" && *csvOut == "") {
		fmt.Fprintln(os.Stderr, "export requires --solution and one of --pdf / --csv")
		return appErrors.StatusValidation
	}

	raw, err := os.ReadFile(*input)
	if err != nil {
		logr.Error("failed to read solution", zap.Error(err))
		return appErrors.StatusValidation
	}
	var doc dto.SolutionDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		logr.Error("failed to decode solution", zap.Error(err))
		return appErrors.StatusValidation
	}

	exporter := service.NewExportService(logr)
	if *csvOut != "" {
		data, err := exporter.RenderCSV(doc)
		if err != nil {
			logr.Error("failed to render csv", zap.Error(err))
			return appErrors.StatusInternal
		}
		if err := os.WriteFile(*csvOut, data, 0o644); err != nil {
			logr.Error("failed to write csv", zap.Error(err))
			return appErrors.StatusInternal
		}
	}
	if *pdfOut != "" {
		data, err := exporter.RenderPDF(doc)
		if err != nil {
			logr.Error("failed to render pdf", zap.Error(err))
			return appErrors.StatusInternal
		}
		if err := os.WriteFile(*pdfOut, data, 0o644); err != nil {
			logr.Error("failed to write pdf", zap.Error(err))
			return appErrors.StatusInternal
		}
	}
	return appErrors.StatusSolved
}

func buildSolveService(cfg *config.Config, logr *zap.Logger, workers int) (*service.SolveService, *service.ExportService) {
	registry := constraints.NewRegistry(logr)
	prep := dataprep.NewService(registry, validator.New(), logr)
	analyzer := analysis.NewAnalyzer(logr)

	if workers <= 0 {
		workers = cfg.Solver.Workers
	}
	pool := jobs.NewPool(jobs.PoolConfig{Workers: workers, Logger: logr})
	filter := ga.NewFilter(pool, logr, ga.Config{
		PopulationSize: cfg.GA.PopulationSize,
		Generations:    cfg.GA.Generations,
		TimeBudget:     cfg.GA.TimeBudget,
		MutationProb:   cfg.GA.MutationProb,
		TournamentSize: cfg.GA.TournamentSize,
	})

	var progress *service.ProgressPublisher
	if cfg.Redis.ProgressChannel != "" {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("progress publishing disabled, redis unreachable", zap.Error(err))
		} else {
			progress = service.NewProgressPublisher(client, cfg.Redis.ProgressChannel, logr)
		}
	}

	svc := service.NewSolveService(
		prep,
		analyzer,
		filter,
		cp.NewSolver(logr),
		extract.NewExtractor(logr),
		service.NewMetricsService(),
		progress,
		logr,
	)
	return svc, service.NewExportService(logr)
}

func loadDataset(cfg *config.Config, logr *zap.Logger, input string, fromDB bool, session string) (*dto.Dataset, int) {
	if fromDB {
		if session == "" {
			fmt.Fprintln(os.Stderr, "--from-db requires --session")
			return nil, appErrors.StatusValidation
		}
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			logr.Error("failed to connect to database", zap.Error(err))
			return nil, appErrors.StatusInternal
		}
		defer db.Close()
		dataset, err := repository.NewDatasetRepository(db).GetBySession(context.Background(), session)
		if err != nil {
			logr.Error("failed to load dataset from database", zap.Error(err))
			return nil, appErrors.StatusValidation
		}
		return dataset, appErrors.StatusSolved
	}

	if input == "" {
		fmt.Fprintln(os.Stderr, "missing --input")
		return nil, appErrors.StatusValidation
	}
	raw, err := os.ReadFile(input)
	if err != nil {
		logr.Error("failed to read dataset", zap.Error(err))
		return nil, appErrors.StatusValidation
	}
	var dataset dto.Dataset
	if err := json.Unmarshal(raw, &dataset); err != nil {
		logr.Error("failed to decode dataset", zap.Error(err))
		return nil, appErrors.StatusValidation
	}
	return &dataset, appErrors.StatusSolved
}

func reportError(logr *zap.Logger, err error) int {
	appErr := appErrors.FromError(err)
	logr.Error("solve failed", zap.String("code", appErr.Code), zap.Error(err))
	fmt.Fprintf(os.Stderr, "%s: %s\n", appErr.Code, appErr.Error())
	return appErr.Status
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Printf("failed to encode output: %v", err)
		return
	}
	fmt.Println(string(data))
}

func printSection(title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Printf("\n%s:\n", title)
	for _, line := range lines {
		fmt.Printf("  - %s\n", line)
	}
}
