// Package workbook reads the PEDE survey workbook into raw frames, one
// sheet per assessment year. Cells come out as untyped strings; the dtype
// standardizer owns all interpretation.
package workbook

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"pedeprep/internal/errors"
	"pedeprep/internal/frame"
)

// YearToSheet maps each supported assessment year to its sheet name.
var YearToSheet = map[int]string{
	2022: "PEDE2022",
	2023: "PEDE2023",
	2024: "PEDE2024",
}

// Years returns the supported years in ascending order.
func Years() []int {
	years := make([]int, 0, len(YearToSheet))
	for year := range YearToSheet {
		years = append(years, year)
	}
	sort.Ints(years)
	return years
}

// Loader reads year sheets from an XLSX workbook.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a workbook loader. A nil logger falls back to
// slog.Default().
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// LoadYear reads one year's sheet into a raw frame. The first row supplies
// the column labels; every remaining row becomes a data row. Blank cells
// map to the missing marker, everything else stays a string.
func (l *Loader) LoadYear(path string, year int) (*frame.Frame, error) {
	sheet, ok := YearToSheet[year]
	if !ok {
		return nil, errors.NewConfigError(
			fmt.Sprintf("unsupported year %d (supported: %v)", year, Years()), nil).
			WithContext("year", year)
	}

	f, err := openWorkbook(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return l.loadSheet(f, path, year, sheet)
}

// LoadAll reads every supported year from a single workbook, opening the
// file once.
func (l *Loader) LoadAll(path string) (map[int]*frame.Frame, error) {
	f, err := openWorkbook(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	frames := make(map[int]*frame.Frame, len(YearToSheet))
	for _, year := range Years() {
		fr, err := l.loadSheet(f, path, year, YearToSheet[year])
		if err != nil {
			return nil, err
		}
		frames[year] = fr
	}
	return frames, nil
}

func openWorkbook(path string) (*excelize.File, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errors.NewNotFoundError(
			fmt.Sprintf("dataset workbook not found at %s; set PEDE_DATASET_PATH to its location", path), err).
			WithContext("path", path)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.NewParsingError(
			fmt.Sprintf("failed to open workbook %s", path), err)
	}
	return f, nil
}

func (l *Loader) loadSheet(f *excelize.File, path string, year int, sheet string) (*frame.Frame, error) {
	if idx, _ := f.GetSheetIndex(sheet); idx == -1 {
		return nil, errors.NewConfigError(
			fmt.Sprintf("sheet %s not found in %s (available: %s)",
				sheet, path, strings.Join(f.GetSheetList(), ", ")), nil).
			WithContext("year", year).
			WithContext("sheet", sheet)
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.NewParsingError(
			fmt.Sprintf("failed to read sheet %s from %s", sheet, path), err)
	}
	if len(rows) == 0 {
		return nil, errors.NewParsingError(
			fmt.Sprintf("sheet %s in %s has no header row", sheet, path), nil)
	}

	labels := mangleLabels(rows[0])
	dataRows := rows[1:]

	out := frame.New(len(dataRows))
	for col, label := range labels {
		values := make([]frame.Value, len(dataRows))
		for i, row := range dataRows {
			// excelize trims trailing empty cells per row.
			if col >= len(row) || strings.TrimSpace(row[col]) == "" {
				values[i] = frame.NA()
				continue
			}
			values[i] = frame.String(row[col])
		}
		if err := out.AddColumn(label, values); err != nil {
			return nil, errors.NewParsingError(
				fmt.Sprintf("failed to build column %q from sheet %s", label, sheet), err)
		}
	}

	l.logger.Info("loaded workbook sheet",
		slog.String("file", path),
		slog.Int("year", year),
		slog.String("sheet", sheet),
		slog.Int("rows", out.NumRows()),
		slog.Int("cols", out.NumColumns()))
	return out, nil
}

// mangleLabels makes the raw header row usable as frame column names:
// blank headers become "Unnamed: N" and repeats get a ".N" suffix, the same
// shapes the downstream duplicate resolver expects.
func mangleLabels(header []string) []string {
	labels := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, raw := range header {
		label := strings.TrimSpace(raw)
		if label == "" {
			label = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, dup := seen[label]; dup {
			seen[label] = n + 1
			mangled := fmt.Sprintf("%s.%d", label, n)
			for seen[mangled] > 0 {
				n++
				seen[label] = n + 1
				mangled = fmt.Sprintf("%s.%d", label, n)
			}
			seen[mangled] = 1
			labels[i] = mangled
			continue
		}
		seen[label] = 1
		labels[i] = label
	}
	return labels
}
