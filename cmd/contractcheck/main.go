// Command contractcheck manages the per-year data contracts. In export
// mode it writes the versioned contract documents; in check mode it runs
// the preparation pipeline over the workbook and validates each year's
// standardized frame against its loaded contract. Strict mode turns a
// FAIL verdict into a non-zero exit.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"pedeprep/internal/config"
	"pedeprep/internal/contracts"
	"pedeprep/internal/dataprocessing"
	"pedeprep/internal/infrastructure"
	"pedeprep/internal/validation"
	"pedeprep/internal/workbook"
)

func main() {
	export := flag.Bool("export", false, "export the contract documents instead of checking the dataset")
	outputDir := flag.String("output-dir", "", "contracts directory (default from config)")
	noMarkdown := flag.Bool("no-markdown", false, "skip Markdown renderings on export")
	datasetPath := flag.String("dataset", "", "path to the PEDE workbook (overrides PEDE_DATASET_PATH)")
	datasetBasename := flag.String("dataset-basename", "", "dataset basename stamped into exported contracts (default derived from the dataset path)")
	strict := flag.Bool("strict", false, "exit non-zero when any year's validation verdict is FAIL")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := infrastructure.MustInitializeLogger(cfg.Logging)
	defer infrastructure.CloseLogFile()

	if *outputDir == "" {
		*outputDir = cfg.Contracts.Dir
	}
	if *datasetPath == "" {
		*datasetPath = cfg.DatasetPath()
	}

	if *export {
		if err := exportContracts(logger, *outputDir, *datasetPath, *datasetBasename, !*noMarkdown); err != nil {
			logger.Error("contract export failed", "error", err)
			os.Exit(1)
		}
		return
	}

	failed, err := checkDataset(logger, *outputDir, *datasetPath)
	if err != nil {
		logger.Error("contract check failed", "error", err)
		os.Exit(1)
	}
	if failed && *strict {
		logger.Error("contract verdict FAIL under strict mode")
		os.Exit(1)
	}
}

func exportContracts(logger *slog.Logger, outputDir, datasetPath, basename string, markdown bool) error {
	if basename == "" {
		basename = filepath.Base(datasetPath)
	}
	opts := contracts.ExportOptions{
		OutputDir:       outputDir,
		DatasetBasename: basename,
		WriteMarkdown:   markdown,
	}
	if sum, err := hashFile(datasetPath); err == nil {
		opts.DatasetSHA256 = sum
	} else {
		logger.Warn("dataset not hashable, exporting contracts without checksum",
			slog.String("dataset", datasetPath), "error", err)
	}

	if err := contracts.ExportContracts(opts); err != nil {
		return err
	}
	logger.Info("contracts exported",
		slog.String("dir", outputDir),
		slog.String("dataset_basename", basename))
	return nil
}

// checkDataset validates every year's prepared frame against its contract.
// It reports whether any verdict was FAIL; severities below error never
// fail a year.
func checkDataset(logger *slog.Logger, contractsDir, datasetPath string) (bool, error) {
	validator := validation.NewFileValidator(logger)
	if err := validator.ValidateDatasetWorkbook(datasetPath); err != nil {
		return false, err
	}
	if _, err := validator.ValidateContractsDirectory(contractsDir); err != nil {
		return false, err
	}

	frames, err := workbook.NewLoader(logger).LoadAll(datasetPath)
	if err != nil {
		return false, err
	}
	result, err := dataprocessing.NewPipeline(logger).Run(context.Background(), frames)
	if err != nil {
		return false, err
	}

	failed := false
	for _, year := range workbook.Years() {
		contract, err := contracts.LoadYearContract(year, contractsDir)
		if err != nil {
			return false, err
		}
		verdict, err := contracts.ValidateFrame(result.Frames[year], contract, logger)
		if err != nil {
			return false, err
		}
		if !verdict.Passed() {
			failed = true
		}
		logger.Info("contract verdict",
			slog.Int("year", year),
			slog.String("status", verdict.Status),
			slog.Int("errors", verdict.ErrorsCount),
			slog.Int("warnings", verdict.WarningsCount),
			slog.Int("infos", verdict.InfosCount))
	}
	return failed, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
