// Command cohortstats computes the per-year student id sets from the raw
// PEDE workbook and reports their pairwise overlap. Output is aggregate
// only: counts, ratios and discarded-id tallies, never the ids themselves.
package main

import (
	"flag"
	"log/slog"
	"os"

	"pedeprep/internal/config"
	"pedeprep/internal/dataprocessing"
	"pedeprep/internal/exporter"
	"pedeprep/internal/infrastructure"
	"pedeprep/internal/validation"
	"pedeprep/internal/workbook"
)

func main() {
	datasetPath := flag.String("dataset", "", "path to the PEDE workbook (overrides PEDE_DATASET_PATH)")
	artifactsDir := flag.String("artifacts", "", "output directory for the intersection report (default from config)")
	noMarkdown := flag.Bool("no-markdown", false, "skip the Markdown tables next to the JSON report")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := infrastructure.MustInitializeLogger(cfg.Logging)
	defer infrastructure.CloseLogFile()

	if *datasetPath == "" {
		*datasetPath = cfg.DatasetPath()
	}
	if *artifactsDir == "" {
		*artifactsDir = cfg.Artifacts.Dir
	}

	if err := validation.NewFileValidator(logger).ValidateDatasetWorkbook(*datasetPath); err != nil {
		logger.Error("dataset validation failed", "error", err)
		os.Exit(1)
	}

	frames, err := workbook.NewLoader(logger).LoadAll(*datasetPath)
	if err != nil {
		logger.Error("workbook load failed", "error", err)
		os.Exit(1)
	}

	idSets, invalid, err := dataprocessing.ComputeIDSets(frames)
	if err != nil {
		logger.Error("id set computation failed", "error", err)
		os.Exit(1)
	}
	report, err := dataprocessing.ComputeIntersections(idSets, invalid, nil)
	if err != nil {
		logger.Error("intersection computation failed", "error", err)
		os.Exit(1)
	}

	for key, pair := range report.Pairs {
		logger.Info("cohort overlap",
			slog.String("pair", key),
			slog.Int("intersection", pair.Intersection),
			slog.Int("union", pair.Union),
			slog.Float64("jaccard", pair.Jaccard))
	}

	writer := exporter.NewWriter(*artifactsDir, cfg.Artifacts.WriteMarkdown && !*noMarkdown, logger)
	if err := writer.WriteCohortReport(report); err != nil {
		logger.Error("report export failed", "error", err)
		os.Exit(1)
	}

	logger.Info("cohort stats finished", slog.String("run_id", writer.RunID()))
}
