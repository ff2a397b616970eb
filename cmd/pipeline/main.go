// Command pipeline runs the full PEDE dataset preparation: workbook load,
// harmonization, alignment, dtype standardization, category normalization
// and cohort stats, persisting the aggregate report artifacts. With -pairs
// it also builds the temporal training pairs and their feature split
// reports.
package main

import (
	"context"
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
	artifactsDir := flag.String("artifacts", "", "output directory for report artifacts (default from config)")
	noMarkdown := flag.Bool("no-markdown", false, "skip the Markdown renderings next to the JSON artifacts")
	buildPairs := flag.Bool("pairs", true, "build temporal pairs for consecutive years")
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
	writeMarkdown := cfg.Artifacts.WriteMarkdown && !*noMarkdown

	validator := validation.NewFileValidator(logger)
	if err := validator.ValidateDatasetWorkbook(*datasetPath); err != nil {
		logger.Error("dataset validation failed", "error", err)
		os.Exit(1)
	}
	if err := validator.ValidateOutputDirectory(*artifactsDir); err != nil {
		logger.Error("artifact directory validation failed", "error", err)
		os.Exit(1)
	}

	frames, err := workbook.NewLoader(logger).LoadAll(*datasetPath)
	if err != nil {
		logger.Error("workbook load failed", "error", err)
		os.Exit(1)
	}

	result, err := dataprocessing.NewPipeline(logger).Run(context.Background(), frames)
	if err != nil {
		logger.Error("pipeline run failed", "error", err)
		os.Exit(1)
	}

	writer := exporter.NewWriter(*artifactsDir, writeMarkdown, logger)
	if err := writer.WriteAll(result); err != nil {
		logger.Error("artifact export failed", "error", err)
		os.Exit(1)
	}

	if *buildPairs {
		if err := buildTemporalPairs(logger, writer, result); err != nil {
			logger.Error("temporal pair build failed", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("pipeline finished",
		slog.String("run_id", writer.RunID()),
		slog.String("artifacts", *artifactsDir))
}

// buildTemporalPairs joins each consecutive year pair and persists the
// resulting feature split reports.
func buildTemporalPairs(logger *slog.Logger, writer *exporter.Writer, result *dataprocessing.PipelineResult) error {
	builder := dataprocessing.NewPairBuilder(logger)
	for _, pair := range [][2]int{{2022, 2023}, {2023, 2024}} {
		dfT, okT := result.Frames[pair[0]]
		dfT1, okT1 := result.Frames[pair[1]]
		if !okT || !okT1 {
			continue
		}
		built, err := builder.MakeTemporalPairs(dfT, dfT1, pair[0], pair[1])
		if err != nil {
			return err
		}
		if err := writer.WriteFeatureSplit(built.FeatureSplit); err != nil {
			return err
		}
		logger.Info("temporal pair built",
			slog.Int("year_t", pair[0]),
			slog.Int("year_t1", pair[1]),
			slog.Int("rows", len(built.IDs)))
	}
	return nil
}
