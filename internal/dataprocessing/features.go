package dataprocessing

import (
	"fmt"
	"sort"

	"pedeprep/internal/contracts"
	"pedeprep/internal/errors"
	"pedeprep/internal/frame"
)

// DefaultExcludeColumns returns the feature exclusion set: every PII column
// except the identifier, which pairing removes on its own.
func DefaultExcludeColumns() map[string]bool {
	out := make(map[string]bool, len(contracts.PIIColumns))
	for column := range contracts.PIIColumns {
		if column != idColumn {
			out[column] = true
		}
	}
	return out
}

// FeatureColumns filters a frame's columns through an exclusion set,
// preserving column order. A nil set means the default PII exclusion.
func FeatureColumns(f *frame.Frame, exclude map[string]bool) []string {
	if exclude == nil {
		exclude = DefaultExcludeColumns()
	}
	var out []string
	for _, column := range f.Columns() {
		if !exclude[column] {
			out = append(out, column)
		}
	}
	return out
}

// FeatureSplitReport describes the feature-family split of one pair's
// feature matrix. Column names and counts only.
type FeatureSplitReport struct {
	YearT                    int      `json:"year_t"`
	YearT1                   int      `json:"year_t1"`
	NTotalFeatures           int      `json:"n_total_features"`
	NNumeric                 int      `json:"n_numeric"`
	NCategorical             int      `json:"n_categorical"`
	NDatetime                int      `json:"n_datetime"`
	NumericCols              []string `json:"numeric_cols"`
	CategoricalCols          []string `json:"categorical_cols"`
	DatetimeCols             []string `json:"datetime_cols"`
	ExcludedCols             []string `json:"excluded_cols"`
	NAllMissingCols          int      `json:"n_all_missing_cols"`
	AllMissingCols           []string `json:"all_missing_cols"`
	LeakageSuspectColumns    []string `json:"leakage_suspect_columns"`
	LeakageDroppedAllMissing []string `json:"leakage_dropped_all_missing"`
}

// SplitFeatureFamilies partitions feature columns into numeric, categorical
// and datetime families from their declared column types. Boolean and raw
// columns fall into the categorical family.
func SplitFeatureFamilies(f *frame.Frame, featureCols []string) (numeric, categorical, datetime []string, report *FeatureSplitReport, err error) {
	var missing []string
	for _, column := range featureCols {
		if !f.HasColumn(column) {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return nil, nil, nil, nil, errors.NewInvariantError(
			fmt.Sprintf("feature columns absent from frame: %v", missing), nil)
	}

	for _, column := range featureCols {
		switch f.ColumnType(column) {
		case frame.TypeTime:
			datetime = append(datetime, column)
		case frame.TypeInt, frame.TypeFloat:
			numeric = append(numeric, column)
		default:
			categorical = append(categorical, column)
		}
	}

	selected := make(map[string]bool, len(featureCols))
	for _, column := range featureCols {
		selected[column] = true
	}
	var excluded []string
	for _, column := range f.Columns() {
		if !selected[column] {
			excluded = append(excluded, column)
		}
	}

	var allMissing []string
	for _, column := range featureCols {
		if f.AllMissing(column) {
			allMissing = append(allMissing, column)
		}
	}
	sort.Strings(allMissing)

	report = &FeatureSplitReport{
		NTotalFeatures:  len(featureCols),
		NNumeric:        len(numeric),
		NCategorical:    len(categorical),
		NDatetime:       len(datetime),
		NumericCols:     numeric,
		CategoricalCols: categorical,
		DatetimeCols:    datetime,
		ExcludedCols:    excluded,
		NAllMissingCols: len(allMissing),
		AllMissingCols:  allMissing,
	}
	return numeric, categorical, datetime, report, nil
}
