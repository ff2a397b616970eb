package dataprocessing

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"pedeprep/internal/errors"
	"pedeprep/internal/frame"
)

// lagColumn is the next-year outcome column required in the t+1 frame.
const lagColumn = "Defasagem"

// PairSummary is the aggregate-only observability record of one temporal
// pair build.
type PairSummary struct {
	YearT        int     `json:"year_t"`
	YearT1       int     `json:"year_t1"`
	TotalPairs   int     `json:"total_pairs"`
	ValidPairs   int     `json:"valid_pairs"`
	MissingCount int     `json:"excluded_missing"`
	InvalidCount int     `json:"excluded_invalid"`
	Prevalence   float64 `json:"prevalence"`
}

// TemporalPair is the X(t) -> y(t+1) training triple for one year pair.
// Every id appears in both source years, X carries only year-t feature
// columns and y is fully resolved with values in {0,1}.
type TemporalPair struct {
	X            *frame.Frame
	Y            []int
	IDs          []string
	Summary      PairSummary
	FeatureSplit *FeatureSplitReport
	Leakage      *LeakageReport
}

// MakeTarget derives the binary target from resolved next-year lag values.
// The input must be fully numeric with no missing values; anything else is a
// pipeline defect and fails loudly.
func MakeTarget(values []frame.Value) ([]int, error) {
	out := make([]int, len(values))
	for i, v := range values {
		if v.IsMissing() {
			return nil, errors.NewInvariantError(
				"target derivation requires no missing values; filter unresolved pairs first", nil)
		}
		f, ok := v.AsFloat()
		if !ok {
			return nil, errors.NewInvariantError(
				"target derivation requires numeric values; coerce invalid tokens to missing first", nil)
		}
		if f < 0 {
			out[i] = 1
		}
	}
	return out, nil
}

// PairBuilder constructs temporally-safe training pairs.
type PairBuilder struct {
	logger *slog.Logger
}

// NewPairBuilder creates a pair builder. A nil logger falls back to
// slog.Default().
func NewPairBuilder(logger *slog.Logger) *PairBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &PairBuilder{logger: logger}
}

// classifyLagValue buckets one joined next-year lag value.
func classifyLagValue(v frame.Value) (numeric float64, state string) {
	if v.IsMissing() {
		return 0, "missing"
	}
	if s, ok := v.AsString(); ok {
		text := strings.TrimSpace(s)
		if text == "" {
			return 0, "missing"
		}
		if f, parsed := parseDelimitedNumeric(text); parsed {
			return f, "valid"
		}
		return 0, "invalid"
	}
	if f, ok := v.AsFloat(); ok {
		return f, "valid"
	}
	return 0, "invalid"
}

func requireColumns(f *frame.Frame, year int, required ...string) error {
	var missing []string
	for _, column := range required {
		if !f.HasColumn(column) {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return errors.NewConfigError(
			fmt.Sprintf("required columns missing in year %d: %v; available columns: %v",
				year, missing, f.Columns()), nil).
			WithContext("year", year)
	}
	return nil
}

// MakeTemporalPairs inner-joins year t and year t+1 on the student id,
// classifies the next-year lag value per row, derives the binary target for
// valid rows and returns the guarded feature/target/id triple.
func (b *PairBuilder) MakeTemporalPairs(dfT, dfT1 *frame.Frame, yearT, yearT1 int) (*TemporalPair, error) {
	if err := requireColumns(dfT, yearT, idColumn); err != nil {
		return nil, err
	}
	if err := requireColumns(dfT1, yearT1, idColumn, lagColumn); err != nil {
		return nil, err
	}

	featureColsT := make([]string, 0, dfT.NumColumns()-1)
	for _, column := range dfT.Columns() {
		if column != idColumn {
			featureColsT = append(featureColsT, column)
		}
	}

	nextTargetCol := "__defasagem_next__"
	for dfT.HasColumn(nextTargetCol) {
		nextTargetCol = "_" + nextTargetCol
	}

	t1Lag := make(map[string]frame.Value, dfT1.NumRows())
	t1IDs, _ := dfT1.Column(idColumn)
	t1Values, _ := dfT1.Column(lagColumn)
	for i, id := range t1IDs {
		if id.IsMissing() {
			continue
		}
		key := strings.TrimSpace(id.Render())
		if _, exists := t1Lag[key]; !exists {
			t1Lag[key] = t1Values[i]
		}
	}

	tIDs, _ := dfT.Column(idColumn)
	var joinedRows []int
	var joinedLag []frame.Value
	for i, id := range tIDs {
		if id.IsMissing() {
			continue
		}
		lag, ok := t1Lag[strings.TrimSpace(id.Render())]
		if !ok {
			continue
		}
		joinedRows = append(joinedRows, i)
		joinedLag = append(joinedLag, lag)
	}

	cohort, err := dfT.SelectRows(joinedRows)
	if err != nil {
		return nil, err
	}
	if err := cohort.AddColumn(nextTargetCol, joinedLag); err != nil {
		return nil, err
	}

	// The join must produce exactly year-t columns plus the renamed lag.
	expected := make(map[string]bool, dfT.NumColumns()+1)
	for _, column := range dfT.Columns() {
		expected[column] = true
	}
	expected[nextTargetCol] = true
	var extras []string
	for _, column := range cohort.Columns() {
		if !expected[column] {
			extras = append(extras, column)
		}
	}
	if len(extras) > 0 || cohort.NumColumns() != len(expected) {
		sort.Strings(extras)
		return nil, errors.NewInvariantError(
			fmt.Sprintf("join produced unexpected columns for %d->%d: %v", yearT, yearT1, extras), nil)
	}

	totalPairs := cohort.NumRows()
	var validRows []int
	var validLag []frame.Value
	missingCount, invalidCount := 0, 0
	for i, lag := range joinedLag {
		numeric, state := classifyLagValue(lag)
		switch state {
		case "missing":
			missingCount++
		case "invalid":
			invalidCount++
		default:
			validRows = append(validRows, i)
			validLag = append(validLag, frame.Float(numeric))
		}
	}

	filtered, err := cohort.SelectRows(validRows)
	if err != nil {
		return nil, err
	}

	idValues, _ := filtered.Column(idColumn)
	ids := make([]string, len(idValues))
	for i, v := range idValues {
		ids[i] = strings.TrimSpace(v.Render())
	}

	y, err := MakeTarget(validLag)
	if err != nil {
		return nil, err
	}

	x := filtered.Clone()
	x.Drop(idColumn, nextTargetCol)
	featureCols := FeatureColumns(x, nil)

	// The first split runs against the pre-exclusion matrix so the report can
	// name what was excluded.
	_, _, _, splitReport, err := SplitFeatureFamilies(x, featureCols)
	if err != nil {
		return nil, err
	}
	splitReport.YearT = yearT
	splitReport.YearT1 = yearT1
	x.Drop(splitReport.ExcludedCols...)

	leakOpts := LeakageOptions{
		YearT:               yearT,
		YearT1:              yearT1,
		Allowlist:           DefaultAllowlist,
		IncludeYearSpecific: true,
	}
	leakage, err := DetectLeakageColumns(x, leakOpts)
	if err != nil {
		return nil, err
	}

	var droppedAllMissing []string
	for _, column := range leakage.SuspectColumns {
		if x.HasColumn(column) && x.AllMissing(column) {
			droppedAllMissing = append(droppedAllMissing, column)
		}
	}
	if len(droppedAllMissing) > 0 {
		sort.Strings(droppedAllMissing)
		x.Drop(droppedAllMissing...)
		b.logger.Warn("dropped all-missing leakage-suspect columns",
			slog.Int("year_t", yearT),
			slog.Int("year_t1", yearT1),
			slog.Any("columns", droppedAllMissing))
	}

	if err := AssertNoLeakage(x, leakOpts); err != nil {
		return nil, err
	}

	// Recompute the family split against the post-guard column set.
	numeric, categorical, datetime, finalSplit, err := SplitFeatureFamilies(x, x.Columns())
	if err != nil {
		return nil, err
	}
	finalSplit.YearT = yearT
	finalSplit.YearT1 = yearT1
	finalSplit.ExcludedCols = splitReport.ExcludedCols
	finalSplit.LeakageSuspectColumns = leakage.SuspectColumns
	finalSplit.LeakageDroppedAllMissing = droppedAllMissing

	if err := assertPairInvariants(x, y, ids, featureColsT, dfT, dfT1, nextTargetCol, yearT, yearT1); err != nil {
		return nil, err
	}

	prevalence := 0.0
	if len(y) > 0 {
		positives := 0
		for _, label := range y {
			positives += label
		}
		prevalence = float64(positives) / float64(len(y))
	}

	b.logger.Info("feature split",
		slog.Int("year_t", yearT),
		slog.Int("year_t1", yearT1),
		slog.Int("total_features", len(featureColsT)),
		slog.Int("selected", x.NumColumns()),
		slog.Int("excluded", len(finalSplit.ExcludedCols)),
		slog.Int("numeric", len(numeric)),
		slog.Int("categorical", len(categorical)),
		slog.Int("datetime", len(datetime)),
		slog.Int("all_missing", finalSplit.NAllMissingCols))
	b.logger.Info("temporal pairs",
		slog.Int("year_t", yearT),
		slog.Int("year_t1", yearT1),
		slog.Int("total_cohort", totalPairs),
		slog.Int("valid", len(y)),
		slog.Int("excluded_missing", missingCount),
		slog.Int("excluded_invalid", invalidCount),
		slog.Float64("prevalence", prevalence))

	return &TemporalPair{
		X:   x,
		Y:   y,
		IDs: ids,
		Summary: PairSummary{
			YearT:        yearT,
			YearT1:       yearT1,
			TotalPairs:   totalPairs,
			ValidPairs:   len(y),
			MissingCount: missingCount,
			InvalidCount: invalidCount,
			Prevalence:   prevalence,
		},
		FeatureSplit: finalSplit,
		Leakage:      leakage,
	}, nil
}

// assertPairInvariants is the final structural gate before a pair is
// returned. Violations indicate a pipeline defect, never a data issue.
func assertPairInvariants(x *frame.Frame, y []int, ids []string, featureColsT []string, dfT, dfT1 *frame.Frame, nextTargetCol string, yearT, yearT1 int) error {
	if x.HasColumn(idColumn) {
		return errors.NewInvariantError(
			fmt.Sprintf("id column must not appear as a feature in %d->%d", yearT, yearT1), nil)
	}
	if x.HasColumn(nextTargetCol) {
		return errors.NewInvariantError(
			fmt.Sprintf("future target column leaked into features in %d->%d", yearT, yearT1), nil)
	}

	allowed := make(map[string]bool, len(featureColsT))
	for _, column := range featureColsT {
		allowed[column] = true
	}
	var unexpected []string
	var t1Only []string
	var suffixed []string
	for _, column := range x.Columns() {
		if !allowed[column] {
			unexpected = append(unexpected, column)
		}
		if dfT1.HasColumn(column) && !dfT.HasColumn(column) {
			t1Only = append(t1Only, column)
		}
		if strings.HasSuffix(column, "_x") || strings.HasSuffix(column, "_y") || strings.HasSuffix(column, "_t1") {
			suffixed = append(suffixed, column)
		}
	}
	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		return errors.NewInvariantError(
			fmt.Sprintf("features outside year %d columns in %d->%d: %v", yearT, yearT, yearT1, unexpected), nil)
	}
	if len(t1Only) > 0 {
		return errors.NewInvariantError(
			fmt.Sprintf("features exclusive to year %d present in %d->%d: %v", yearT1, yearT, yearT1, t1Only), nil)
	}
	if len(suffixed) > 0 {
		return errors.NewInvariantError(
			fmt.Sprintf("merge-artifact suffixes present in %d->%d: %v", yearT, yearT1, suffixed), nil)
	}

	if x.NumRows() != len(y) || len(y) != len(ids) {
		return errors.NewInvariantError(
			fmt.Sprintf("row count mismatch in %d->%d: X=%d y=%d ids=%d",
				yearT, yearT1, x.NumRows(), len(y), len(ids)), nil)
	}
	for _, label := range y {
		if label != 0 && label != 1 {
			return errors.NewInvariantError(
				fmt.Sprintf("target outside {0,1} in %d->%d: %d", yearT, yearT1, label), nil)
		}
	}
	return nil
}
