package dataprocessing

import (
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"pedeprep/internal/frame"
)

// Strategy tags the coercion rule applied to one canonical column.
type Strategy int

const (
	StrategyGenericText Strategy = iota
	StrategyIdentifier
	StrategyBirthDate
	StrategyAge
	StrategyInteger
	StrategyFloat
	StrategyForcedText
)

// String implements fmt.Stringer for log output.
func (s Strategy) String() string {
	switch s {
	case StrategyIdentifier:
		return "identifier"
	case StrategyBirthDate:
		return "birth_date"
	case StrategyAge:
		return "age"
	case StrategyInteger:
		return "integer"
	case StrategyFloat:
		return "float"
	case StrategyForcedText:
		return "forced_text"
	default:
		return "generic_text"
	}
}

var (
	dupColRE       = regexp.MustCompile(`__dup\d+$`)
	numericTextRE  = regexp.MustCompile(`^[+-]?\d+(?:[.,]\d+)?$`)
	yearFirstRE    = regexp.MustCompile(`^\d{4}[-/]\d{1,2}[-/]\d{1,2}`)
	embeddedDigits = regexp.MustCompile(`\d+`)
)

// excelEpoch is the spreadsheet serial-date origin.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// invalidNumericTokens are textual placeholders that must read as missing in
// numeric columns.
var invalidNumericTokens = map[string]bool{
	"INCLUIR": true,
}

// ageTokenBlacklist rejects casefolded placeholder tokens in the age column,
// counted apart from generic non-numeric failures.
var ageTokenBlacklist = map[string]bool{
	"incluir":  true,
	"alfa":     true,
	"#n/a":     true,
	"#div/0!":  true,
	"n/a":      true,
}

// Age plausibility bounds, inclusive.
const (
	ageMin = 3
	ageMax = 30
)

// ageRecoveryYear pins the 1900-01 date-artifact recovery to the one cohort
// year known to carry it. Other years treat such dates as invalid.
const ageRecoveryYear = 2023

var integerColumns = map[string]bool{
	"Ano ingresso": true,
	"Nº Av":        true,
	"Defasagem":    true,
}

var floatColumns = map[string]bool{
	"IAA":            true,
	"IAN":            true,
	"IDA":            true,
	"IEG":            true,
	"IPS":            true,
	"IPP":            true,
	"IPV":            true,
	"INDE":           true,
	"INDE 22":        true,
	"INDE 23":        true,
	"INDE 2023":      true,
	"INDE 2024":      true,
	"Mat":            true,
	"Por":            true,
	"Ing":            true,
	"Cg":             true,
	"Cf":             true,
	"Ct":             true,
	"Rec Psicologia": true,
}

var forcedTextColumns = map[string]bool{
	"Fase":       true,
	"Fase_Ideal": true,
}

// baseColumnName strips a __dupN suffix so duplicates share their base
// column's strategy.
func baseColumnName(column string) string {
	return dupColRE.ReplaceAllString(column, "")
}

// ResolveStrategy maps a column name to its coercion strategy. Resolution
// happens once per column before any value is touched.
func ResolveStrategy(column string) Strategy {
	switch base := baseColumnName(column); {
	case base == idColumn:
		return StrategyIdentifier
	case base == "Data_Nasc":
		return StrategyBirthDate
	case base == "Idade":
		return StrategyAge
	case forcedTextColumns[base]:
		return StrategyForcedText
	case integerColumns[base]:
		return StrategyInteger
	case floatColumns[base]:
		return StrategyFloat
	default:
		return StrategyGenericText
	}
}

// NumericCoercion counts the anomalies seen while coercing one numeric
// column.
type NumericCoercion struct {
	InvalidTokensReplaced int `json:"invalid_tokens_replaced"`
	CoercedToNA           int `json:"coerced_to_na"`
}

// BirthDateSources counts which interpretation path produced each parsed
// birth date.
type BirthDateSources struct {
	YearLiteral int `json:"year"`
	ExcelSerial int `json:"excel_serial"`
	Text        int `json:"string"`
	Native      int `json:"datetime"`
}

// AgeCoercion is the full provenance ledger for the age column. The counters
// satisfy CoercedToMissing == OriginalNonNull - (Parsed + RecoveredFromDate).
type AgeCoercion struct {
	OriginalNonNull   int `json:"original_non_null"`
	Parsed            int `json:"parsed"`
	RecoveredFromDate int `json:"recovered_from_date"`
	InvalidDatetime   int `json:"invalid_datetime"`
	InvalidToken      int `json:"invalid_token"`
	NonNumeric        int `json:"non_numeric"`
	Fractional        int `json:"fractional"`
	OutOfRange        int `json:"out_of_range"`
	CoercedToMissing  int `json:"coerced_to_missing"`
}

func (a *AgeCoercion) add(other AgeCoercion) {
	a.OriginalNonNull += other.OriginalNonNull
	a.Parsed += other.Parsed
	a.RecoveredFromDate += other.RecoveredFromDate
	a.InvalidDatetime += other.InvalidDatetime
	a.InvalidToken += other.InvalidToken
	a.NonNumeric += other.NonNumeric
	a.Fractional += other.Fractional
	a.OutOfRange += other.OutOfRange
	a.CoercedToMissing += other.CoercedToMissing
}

// ColumnCoercion pairs a column with its coerced-to-missing count for the
// top-N summary.
type ColumnCoercion struct {
	Column string `json:"column"`
	Count  int    `json:"count"`
}

// DtypeReport is the aggregate-only audit of one year's standardization. It
// holds column names and counters, never cell values or identifiers.
type DtypeReport struct {
	Year                  int                         `json:"year"`
	Coercions             map[string]int              `json:"coercions"`
	InvalidTokensReplaced map[string]int              `json:"invalid_tokens_replaced"`
	NMissingBirthDate     int                         `json:"n_missing_birth_date"`
	BirthDateSources      BirthDateSources            `json:"birth_date_sources"`
	Age                   AgeCoercion                 `json:"age"`
	Strategies            map[string]string           `json:"strategies"`
	DtypesFinal           map[string]frame.ColumnType `json:"dtypes_final"`
}

// TopCoercions returns the n columns with the highest coerced-to-missing
// counts, count descending then name ascending for determinism.
func (r *DtypeReport) TopCoercions(n int) []ColumnCoercion {
	var out []ColumnCoercion
	for column, count := range r.Coercions {
		if count > 0 {
			out = append(out, ColumnCoercion{Column: column, Count: count})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Column < out[j].Column
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// DtypeCounts summarizes the final dtype histogram.
func (r *DtypeReport) DtypeCounts() map[string]int {
	counts := map[string]int{"int": 0, "float": 0, "string": 0, "datetime": 0}
	for _, dtype := range r.DtypesFinal {
		switch dtype {
		case frame.TypeInt:
			counts["int"]++
		case frame.TypeFloat:
			counts["float"]++
		case frame.TypeText:
			counts["string"]++
		case frame.TypeTime:
			counts["datetime"]++
		}
	}
	return counts
}

// Standardizer applies the per-family coercion rules to harmonized frames.
// Anomalies never raise; they degrade to missing with counted provenance.
type Standardizer struct {
	logger *slog.Logger
}

// NewStandardizer creates a standardizer. A nil logger falls back to
// slog.Default().
func NewStandardizer(logger *slog.Logger) *Standardizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Standardizer{logger: logger}
}

// cleanString trims a raw value into text, mapping blanks to missing.
// Non-string scalars are rendered through their canonical representation.
func cleanString(v frame.Value) frame.Value {
	if v.IsMissing() {
		return frame.NA()
	}
	s := strings.TrimSpace(v.Render())
	if s == "" {
		return frame.NA()
	}
	return frame.String(s)
}

// parseDelimitedNumeric parses numeric text accepting comma as decimal
// separator. Only fully-numeric text qualifies.
func parseDelimitedNumeric(text string) (float64, bool) {
	if !numericTextRE.MatchString(text) {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.Replace(text, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// parseDateText parses a textual date, year-first when the text starts with a
// 4-digit year and day-first otherwise.
func parseDateText(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	var layouts []string
	if yearFirstRE.MatchString(text) {
		layouts = []string{
			"2006-01-02 15:04:05",
			"2006-01-02T15:04:05",
			"2006-01-02",
			"2006/01/02",
		}
	} else {
		layouts = []string{
			"02/01/2006 15:04:05",
			"02/01/2006",
			"02-01-2006",
			"02.01.2006",
			"2/1/2006",
		}
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, text, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// numericToDate interprets a numeric birth-date cell. Integral values within
// [1900,2100] read as a bare year; everything else reads as a spreadsheet
// serial day count.
func numericToDate(value float64, sources *BirthDateSources) time.Time {
	if value >= 1900 && value <= 2100 && value == math.Trunc(value) {
		sources.YearLiteral++
		return time.Date(int(value), time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	sources.ExcelSerial++
	days := math.Trunc(value)
	frac := value - days
	return excelEpoch.AddDate(0, 0, int(days)).
		Add(time.Duration(frac * 24 * float64(time.Hour)))
}

// coerceBirthDate standardizes one birth-date column to native dates.
func coerceBirthDate(values []frame.Value, sources *BirthDateSources) ([]frame.Value, int) {
	out := make([]frame.Value, len(values))
	missing := 0
	for i, v := range values {
		switch v.Kind() {
		case frame.KindMissing:
			out[i] = frame.NA()
			missing++
		case frame.KindTime:
			t, _ := v.AsTime()
			out[i] = frame.Time(t)
			sources.Native++
		case frame.KindInt, frame.KindFloat:
			f, _ := v.AsFloat()
			out[i] = frame.Time(numericToDate(f, sources))
		case frame.KindString:
			s, _ := v.AsString()
			text := strings.TrimSpace(s)
			if text == "" {
				out[i] = frame.NA()
				missing++
				continue
			}
			if f, ok := parseDelimitedNumeric(text); ok {
				out[i] = frame.Time(numericToDate(f, sources))
				continue
			}
			if t, ok := parseDateText(text); ok {
				out[i] = frame.Time(t)
				sources.Text++
				continue
			}
			out[i] = frame.NA()
			missing++
		default:
			out[i] = frame.NA()
			missing++
		}
	}
	return out, missing
}

// isAgeArtifactDate reports whether a date matches the known 1900-01
// mis-serialization pattern: year 1900, month January, zero time components.
// The day of month carries the true age.
func isAgeArtifactDate(t time.Time) bool {
	return t.Year() == 1900 && t.Month() == time.January &&
		t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

// applyAgeBounds applies the [3,30] plausibility window. Out-of-range ages
// become missing but are counted apart from parse failures.
func applyAgeBounds(age int64, report *AgeCoercion, recovered bool) frame.Value {
	if age < ageMin || age > ageMax {
		report.OutOfRange++
		return frame.NA()
	}
	if recovered {
		report.RecoveredFromDate++
	} else {
		report.Parsed++
	}
	return frame.Int(age)
}

// coerceAge standardizes one age column to nullable integers with full
// provenance counting. Recovery of the 1900-01 date artifact only applies
// when allowRecovery is set for the frame's year.
func coerceAge(values []frame.Value, allowRecovery bool) ([]frame.Value, AgeCoercion) {
	var report AgeCoercion
	out := make([]frame.Value, len(values))

	handleDate := func(t time.Time) frame.Value {
		if allowRecovery && isAgeArtifactDate(t) {
			return applyAgeBounds(int64(t.Day()), &report, true)
		}
		report.InvalidDatetime++
		return frame.NA()
	}

	for i, v := range values {
		if v.IsMissing() {
			out[i] = frame.NA()
			continue
		}
		if s, ok := v.AsString(); ok && strings.TrimSpace(s) == "" {
			out[i] = frame.NA()
			continue
		}
		report.OriginalNonNull++

		switch v.Kind() {
		case frame.KindTime:
			t, _ := v.AsTime()
			out[i] = handleDate(t)
		case frame.KindInt:
			n, _ := v.AsInt()
			out[i] = applyAgeBounds(n, &report, false)
		case frame.KindFloat:
			f, _ := v.AsFloat()
			if f != math.Trunc(f) {
				report.Fractional++
				out[i] = frame.NA()
				continue
			}
			out[i] = applyAgeBounds(int64(f), &report, false)
		case frame.KindString:
			s, _ := v.AsString()
			text := strings.TrimSpace(s)
			if ageTokenBlacklist[strings.ToLower(text)] {
				report.InvalidToken++
				out[i] = frame.NA()
				continue
			}
			if f, ok := parseDelimitedNumeric(text); ok {
				if f != math.Trunc(f) {
					report.Fractional++
					out[i] = frame.NA()
					continue
				}
				out[i] = applyAgeBounds(int64(f), &report, false)
				continue
			}
			// Date-like text must be checked before digit extraction so
			// "1900-01-11" is treated as a date artifact, not the number 1900.
			if t, ok := parseDateText(text); ok {
				out[i] = handleDate(t)
				continue
			}
			if digits := embeddedDigits.FindString(text); digits != "" {
				n, err := strconv.ParseInt(digits, 10, 64)
				if err != nil {
					report.NonNumeric++
					out[i] = frame.NA()
					continue
				}
				out[i] = applyAgeBounds(n, &report, false)
				continue
			}
			report.NonNumeric++
			out[i] = frame.NA()
		default:
			report.NonNumeric++
			out[i] = frame.NA()
		}
	}

	report.CoercedToMissing = report.OriginalNonNull - report.Parsed - report.RecoveredFromDate
	return out, report
}

// coerceNumeric standardizes one numeric column. Integer mode additionally
// rejects fractional results.
func coerceNumeric(values []frame.Value, asInteger bool) ([]frame.Value, NumericCoercion) {
	var report NumericCoercion
	out := make([]frame.Value, len(values))

	emit := func(f float64) frame.Value {
		if asInteger {
			if f != math.Trunc(f) {
				report.CoercedToNA++
				return frame.NA()
			}
			return frame.Int(int64(f))
		}
		return frame.Float(f)
	}

	for i, v := range values {
		switch v.Kind() {
		case frame.KindMissing:
			out[i] = frame.NA()
		case frame.KindInt:
			n, _ := v.AsInt()
			if asInteger {
				out[i] = frame.Int(n)
			} else {
				out[i] = frame.Float(float64(n))
			}
		case frame.KindFloat:
			f, _ := v.AsFloat()
			out[i] = emit(f)
		case frame.KindString:
			s, _ := v.AsString()
			text := strings.TrimSpace(s)
			if text == "" {
				out[i] = frame.NA()
				continue
			}
			if invalidNumericTokens[strings.ToUpper(text)] {
				report.InvalidTokensReplaced++
				out[i] = frame.NA()
				continue
			}
			f, ok := parseDelimitedNumeric(text)
			if !ok {
				report.CoercedToNA++
				out[i] = frame.NA()
				continue
			}
			out[i] = emit(f)
		default:
			report.CoercedToNA++
			out[i] = frame.NA()
		}
	}
	return out, report
}

// coerceText trims every value into text, mapping blanks to missing.
func coerceText(values []frame.Value) []frame.Value {
	out := make([]frame.Value, len(values))
	for i, v := range values {
		out[i] = cleanString(v)
	}
	return out
}

// StandardizeFrame coerces every column of one yearly frame according to its
// resolved strategy and returns the standardized frame plus its report.
func (s *Standardizer) StandardizeFrame(f *frame.Frame, year int) (*frame.Frame, *DtypeReport, error) {
	if err := ValidateYear(year); err != nil {
		return nil, nil, err
	}

	standardized := f.Clone()
	report := &DtypeReport{
		Year:                  year,
		Coercions:             make(map[string]int),
		InvalidTokensReplaced: make(map[string]int),
		Strategies:            make(map[string]string),
		DtypesFinal:           make(map[string]frame.ColumnType),
	}
	allowRecovery := year == ageRecoveryYear

	for _, column := range standardized.Columns() {
		values, _ := standardized.Column(column)
		strategy := ResolveStrategy(column)
		report.Strategies[column] = strategy.String()

		var (
			converted []frame.Value
			finalType frame.ColumnType
		)
		switch strategy {
		case StrategyIdentifier, StrategyForcedText, StrategyGenericText:
			if strategy == StrategyGenericText && standardized.ColumnType(column) == frame.TypeTime {
				finalType = frame.TypeTime
				converted = values
				break
			}
			converted = coerceText(values)
			finalType = frame.TypeText
		case StrategyBirthDate:
			var missing int
			converted, missing = coerceBirthDate(values, &report.BirthDateSources)
			report.NMissingBirthDate += missing
			finalType = frame.TypeTime
		case StrategyAge:
			var age AgeCoercion
			converted, age = coerceAge(values, allowRecovery)
			report.Age.add(age)
			report.Coercions[column] = age.CoercedToMissing
			finalType = frame.TypeInt
		case StrategyInteger, StrategyFloat:
			var numeric NumericCoercion
			converted, numeric = coerceNumeric(values, strategy == StrategyInteger)
			report.Coercions[column] = numeric.CoercedToNA
			if numeric.InvalidTokensReplaced > 0 {
				report.InvalidTokensReplaced[column] = numeric.InvalidTokensReplaced
			}
			if strategy == StrategyInteger {
				finalType = frame.TypeInt
			} else {
				finalType = frame.TypeFloat
			}
		}

		if err := standardized.SetColumn(column, converted); err != nil {
			return nil, nil, err
		}
		standardized.SetColumnType(column, finalType)
		report.DtypesFinal[column] = finalType
	}

	counts := report.DtypeCounts()
	s.logger.Info("dtype standardization",
		slog.Int("year", year),
		slog.Int("missing_birth_dates", report.NMissingBirthDate),
		slog.Int("birth_date_year_literal", report.BirthDateSources.YearLiteral),
		slog.Int("birth_date_excel_serial", report.BirthDateSources.ExcelSerial),
		slog.Int("birth_date_text", report.BirthDateSources.Text),
		slog.Int("age_recovered_from_date", report.Age.RecoveredFromDate),
		slog.Int("age_invalid_tokens", report.Age.InvalidToken),
		slog.Int("age_out_of_range", report.Age.OutOfRange),
		slog.Any("top_coercions", report.TopCoercions(5)),
		slog.Int("dtype_int", counts["int"]),
		slog.Int("dtype_float", counts["float"]),
		slog.Int("dtype_string", counts["string"]),
		slog.Int("dtype_datetime", counts["datetime"]))

	return standardized, report, nil
}

// StandardizeAll applies dtype standardization to every yearly frame in
// ascending year order.
func (s *Standardizer) StandardizeAll(frames map[int]*frame.Frame) (map[int]*frame.Frame, map[int]*DtypeReport, error) {
	years := make([]int, 0, len(frames))
	for year := range frames {
		years = append(years, year)
	}
	sort.Ints(years)

	standardized := make(map[int]*frame.Frame, len(frames))
	reports := make(map[int]*DtypeReport, len(frames))
	for _, year := range years {
		f, report, err := s.StandardizeFrame(frames[year], year)
		if err != nil {
			return nil, nil, err
		}
		standardized[year] = f
		reports[year] = report
	}
	return standardized, reports, nil
}
