// Package validation checks the filesystem preconditions of the CLI entry
// points before any pipeline stage runs: the dataset workbook, the
// contracts directory and the artifact output directory.
package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"pedeprep/internal/errors"
)

// FileValidator bundles the path checks shared by the executables.
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a validator. A nil logger falls back to
// slog.Default().
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{logger: logger}
}

// ValidateFile checks that path exists, is a regular file and is readable.
func (v *FileValidator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		v.logger.Error("file does not exist", slog.String("file", path))
		return errors.NewNotFoundError(
			fmt.Sprintf("file %s does not exist", path), err)
	}
	if err != nil {
		return errors.NewStorageError(
			fmt.Sprintf("failed to stat file %s", path), err)
	}
	if info.IsDir() {
		v.logger.Error("path is a directory, not a file", slog.String("path", path))
		return errors.NewConfigError(
			fmt.Sprintf("%s is a directory, not a file", path), nil)
	}

	file, err := os.Open(path)
	if err != nil {
		v.logger.Error("file is not readable",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return errors.NewStorageError(
			fmt.Sprintf("file %s is not readable", path), err)
	}
	file.Close()

	v.logger.Debug("file validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}

// ValidateDatasetWorkbook checks that the configured dataset path points at
// a readable XLSX workbook.
func (v *FileValidator) ValidateDatasetWorkbook(path string) error {
	if err := v.ValidateFile(path); err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".xlsx" && ext != ".xls" {
		v.logger.Error("dataset is not an Excel workbook",
			slog.String("file", path),
			slog.String("extension", ext))
		return errors.NewConfigError(
			fmt.Sprintf("dataset %s is not an Excel workbook (extension: %s)", path, ext), nil)
	}

	// Office lock files start with ~$ and are not real workbooks.
	if strings.HasPrefix(filepath.Base(path), "~$") {
		return errors.NewConfigError(
			fmt.Sprintf("dataset %s is a temporary Excel lock file", path), nil)
	}
	return nil
}

// ValidateContractsDirectory checks that dir exists and counts the exported
// contract documents in it. Zero contracts is reported, not an error; the
// loader raises the per-year miss with its remediation hint.
func (v *FileValidator) ValidateContractsDirectory(dir string) (int, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		v.logger.Error("contracts directory does not exist", slog.String("directory", dir))
		return 0, errors.NewNotFoundError(
			fmt.Sprintf("contracts directory %s does not exist; export contracts first", dir), err)
	}
	if err != nil {
		return 0, errors.NewStorageError(
			fmt.Sprintf("failed to stat contracts directory %s", dir), err)
	}
	if !info.IsDir() {
		return 0, errors.NewConfigError(
			fmt.Sprintf("%s is not a directory", dir), nil)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "data_contract_*.json"))
	if err != nil {
		return 0, errors.NewStorageError(
			fmt.Sprintf("failed to scan contracts directory %s", dir), err)
	}

	count := 0
	for _, match := range matches {
		if info, err := os.Stat(match); err == nil && !info.IsDir() {
			count++
		}
	}
	if count == 0 {
		v.logger.Warn("no contract documents found",
			slog.String("directory", dir))
	} else {
		v.logger.Info("contracts directory validated",
			slog.String("directory", dir),
			slog.Int("contracts", count))
	}
	return count, nil
}

// ValidateOutputDirectory ensures the artifact directory exists and is
// writable, creating it when absent.
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		v.logger.Error("failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return errors.NewStorageError(
			fmt.Sprintf("failed to create output directory %s", dir), err)
	}

	testFile := filepath.Join(dir, ".write_test")
	file, err := os.Create(testFile)
	if err != nil {
		v.logger.Error("output directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return errors.NewStorageError(
			fmt.Sprintf("output directory %s is not writable", dir), err)
	}
	file.Close()
	os.Remove(testFile)

	v.logger.Debug("output directory validated", slog.String("directory", dir))
	return nil
}
