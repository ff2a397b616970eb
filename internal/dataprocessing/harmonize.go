package dataprocessing

import (
	"fmt"
	"log/slog"
	"sort"

	"pedeprep/internal/errors"
	"pedeprep/internal/frame"
)

// idColumn is the student identifier key joining all yearly frames.
const idColumn = "RA"

// SupportedYears lists the reference years this pipeline understands.
var SupportedYears = []int{2022, 2023, 2024}

// indeCandidatesByYear orders the source columns probed to fill the
// composite INDE column. Literal column presence wins, not first non-null.
var indeCandidatesByYear = map[int][]string{
	2022: {"INDE 22"},
	2023: {"INDE 2023", "INDE 23", "INDE 22"},
	2024: {"INDE 2024", "INDE 23", "INDE 22"},
}

// pedraCandidatesByYear orders the source columns probed for Pedra_Ano.
var pedraCandidatesByYear = map[int][]string{
	2022: {"Pedra 22", "Pedra 21", "Pedra 20"},
	2023: {"Pedra 2023", "Pedra 23", "Pedra 22"},
	2024: {"Pedra 2024", "Pedra 23", "Pedra 22"},
}

// HarmonizeReport aggregates every schema decision made for one year.
type HarmonizeReport struct {
	Crosswalk               *CrosswalkReport  `json:"crosswalk"`
	HeaderDuplicatesRenamed map[string]string `json:"header_duplicates_renamed"`
	INDESource              string            `json:"inde_source,omitempty"`
	PedraAnoSource          string            `json:"pedra_ano_source,omitempty"`
}

// Harmonizer reconciles one year's raw schema into the canonical model:
// header normalization, duplicate-suffix resolution, alias crosswalk and
// year-specific composite fallback for INDE and Pedra_Ano.
type Harmonizer struct {
	logger       *slog.Logger
	equivalences EquivalenceTable
}

// NewHarmonizer creates a harmonizer bound to an immutable equivalence
// table. A nil logger falls back to slog.Default().
func NewHarmonizer(logger *slog.Logger, equivalences EquivalenceTable) *Harmonizer {
	if logger == nil {
		logger = slog.Default()
	}
	if equivalences == nil {
		equivalences = DefaultEquivalences()
	}
	return &Harmonizer{logger: logger, equivalences: equivalences}
}

// ValidateYear fails with a configuration error for unsupported years.
func ValidateYear(year int) error {
	for _, supported := range SupportedYears {
		if year == supported {
			return nil
		}
	}
	return errors.NewConfigError(
		fmt.Sprintf("invalid year %d; supported years: %v", year, SupportedYears), nil).
		WithContext("year", year)
}

// selectWithFallback returns the first candidate column that literally
// exists in the frame, together with its name.
func selectWithFallback(f *frame.Frame, candidates []string) ([]frame.Value, string) {
	for _, col := range candidates {
		if values, ok := f.Column(col); ok {
			return values, col
		}
	}
	return nil, ""
}

// HarmonizeYear harmonizes one year's schema and resolves the composite
// INDE and Pedra_Ano columns. Missing composite sources log a warning and
// fill with explicit missing markers; they never fail the run.
func (h *Harmonizer) HarmonizeYear(f *frame.Frame, year int) (*frame.Frame, *HarmonizeReport, error) {
	if err := ValidateYear(year); err != nil {
		return nil, nil, err
	}

	beforeCols := f.NumColumns()
	normalized, dupRenameMap, err := NormalizeFrameHeaders(f)
	if err != nil {
		return nil, nil, err
	}

	mapped, crosswalkReport, err := HarmonizeYearColumns(normalized, year, h.equivalences, false)
	if err != nil {
		return nil, nil, err
	}
	harmonized := mapped

	indeValues, indeSource := selectWithFallback(harmonized, indeCandidatesByYear[year])
	if indeValues == nil {
		if err := harmonized.SetColumn("INDE", frame.NAColumn(harmonized.NumRows())); err != nil {
			return nil, nil, err
		}
		h.logger.Warn("harmonize schema: INDE source missing, filled with NA",
			slog.Int("year", year))
	} else {
		if err := harmonized.SetColumn("INDE", append([]frame.Value(nil), indeValues...)); err != nil {
			return nil, nil, err
		}
	}

	pedraValues, pedraSource := selectWithFallback(harmonized, pedraCandidatesByYear[year])
	if pedraValues == nil {
		if err := harmonized.SetColumn("Pedra_Ano", frame.NAColumn(harmonized.NumRows())); err != nil {
			return nil, nil, err
		}
		h.logger.Warn("harmonize schema: Pedra_Ano source missing, filled with NA",
			slog.Int("year", year))
	} else {
		if err := harmonized.SetColumn("Pedra_Ano", append([]frame.Value(nil), pedraValues...)); err != nil {
			return nil, nil, err
		}
	}

	h.logger.Info("harmonize schema",
		slog.Int("year", year),
		slog.Int("columns_before", beforeCols),
		slog.Int("columns_after", harmonized.NumColumns()),
		slog.Int("mapping_renames", len(crosswalkReport.Renamed)),
		slog.Int("mapping_merges", len(crosswalkReport.Merged)),
		slog.Int("duplicates_resolved", len(dupRenameMap)),
		slog.String("inde_source", indeSource),
		slog.String("pedra_ano_source", pedraSource))

	report := &HarmonizeReport{
		Crosswalk:               crosswalkReport,
		HeaderDuplicatesRenamed: dupRenameMap,
		INDESource:              indeSource,
		PedraAnoSource:          pedraSource,
	}
	return harmonized, report, nil
}

// AlignMetadata captures the cross-year alignment outcome for audit.
type AlignMetadata struct {
	OriginalColumns map[int][]string         `json:"original_columns"`
	AlignedColumns  []string                 `json:"aligned_columns"`
	SchemaIdentical bool                     `json:"schema_identical"`
	MappingReports  map[int]*HarmonizeReport `json:"column_mapping_report"`
}

// AlignYears harmonizes each yearly frame, unions the canonical columns
// across years (RA pinned first, remainder sorted) and pads columns absent
// from a year with explicit missing markers so every frame carries an
// identical column set in identical order. The pre-alignment column set per
// year is preserved in the metadata to distinguish structural absence from
// real missingness downstream.
func (h *Harmonizer) AlignYears(frames map[int]*frame.Frame, years []int) (map[int]*frame.Frame, *AlignMetadata, error) {
	if len(years) == 0 {
		years = append([]int(nil), SupportedYears...)
	}

	harmonized := make(map[int]*frame.Frame, len(years))
	originalColumns := make(map[int][]string, len(years))
	mappingReports := make(map[int]*HarmonizeReport, len(years))

	for _, year := range years {
		f, ok := frames[year]
		if !ok {
			return nil, nil, errors.NewConfigError(
				fmt.Sprintf("year %d missing from input frames for alignment", year), nil).
				WithContext("year", year)
		}
		harmonizedYear, report, err := h.HarmonizeYear(f, year)
		if err != nil {
			return nil, nil, err
		}
		harmonized[year] = harmonizedYear
		mappingReports[year] = report
		cols := harmonizedYear.Columns()
		sort.Strings(cols)
		originalColumns[year] = cols
	}

	allColumns := make(map[string]bool)
	for _, f := range harmonized {
		for _, col := range f.Columns() {
			allColumns[col] = true
		}
	}

	var ordered []string
	if allColumns[idColumn] {
		rest := make([]string, 0, len(allColumns)-1)
		for col := range allColumns {
			if col != idColumn {
				rest = append(rest, col)
			}
		}
		sort.Strings(rest)
		ordered = append([]string{idColumn}, rest...)
	} else {
		ordered = make([]string, 0, len(allColumns))
		for col := range allColumns {
			ordered = append(ordered, col)
		}
		sort.Strings(ordered)
	}

	aligned := make(map[int]*frame.Frame, len(harmonized))
	for year, f := range harmonized {
		alignedYear := f.Clone()
		added := 0
		for _, col := range ordered {
			if !alignedYear.HasColumn(col) {
				if err := alignedYear.AddColumn(col, frame.NAColumn(alignedYear.NumRows())); err != nil {
					return nil, nil, err
				}
				added++
			}
		}
		if err := alignedYear.Reorder(ordered); err != nil {
			return nil, nil, err
		}

		h.logger.Info("align schema",
			slog.Int("year", year),
			slog.Int("columns_before", f.NumColumns()),
			slog.Int("columns_after", alignedYear.NumColumns()),
			slog.Int("added_na_columns", added))
		aligned[year] = alignedYear
	}

	schemaIdentical := true
	for _, f := range aligned {
		if !equalColumns(f.Columns(), ordered) {
			schemaIdentical = false
			break
		}
	}

	metadata := &AlignMetadata{
		OriginalColumns: originalColumns,
		AlignedColumns:  ordered,
		SchemaIdentical: schemaIdentical,
		MappingReports:  mappingReports,
	}
	return aligned, metadata, nil
}

// equalColumns compares two column tuples element-wise, order included.
func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
