package contracts

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"pedeprep/internal/errors"
	"pedeprep/internal/frame"
)

// Finding is one rule violation detected during frame validation. Metrics
// are aggregate counts only.
type Finding struct {
	Year        int            `json:"year"`
	Column      string         `json:"column"`
	RuleType    string         `json:"rule_type"`
	Kind        string         `json:"kind"`
	Enforcement Enforcement    `json:"enforcement"`
	Message     string         `json:"message"`
	Metrics     map[string]any `json:"metrics"`
}

// SchemaSummary compares the contract column set to the frame's.
type SchemaSummary struct {
	ContractColumnsCount int      `json:"contract_columns_count"`
	FrameColumnsCount    int      `json:"df_columns_count"`
	MissingColumns       []string `json:"missing_columns"`
	ExtraColumns         []string `json:"extra_columns"`
}

// ValidationResult is the verdict of one frame-against-contract run.
type ValidationResult struct {
	Year          int           `json:"year"`
	Status        string        `json:"status"`
	ErrorsCount   int           `json:"errors_count"`
	WarningsCount int           `json:"warnings_count"`
	InfosCount    int           `json:"infos_count"`
	Schema        SchemaSummary `json:"schema"`
	Findings      []Finding     `json:"findings"`
}

// Passed reports whether no error-severity finding was recorded.
func (r *ValidationResult) Passed() bool { return r.Status == "PASS" }

func normalizeDtypeName(dtype string) string {
	text := strings.TrimSpace(dtype)
	low := strings.ToLower(text)
	switch {
	case strings.HasPrefix(low, "string"):
		return "string"
	case strings.HasPrefix(low, "datetime64"):
		return "datetime64[ns]"
	default:
		return text
	}
}

func observedDtype(t frame.ColumnType) string {
	if t == frame.TypeRaw {
		return "object"
	}
	return normalizeDtypeName(string(t))
}

func numericValue(v frame.Value) (float64, bool) {
	if f, ok := v.AsFloat(); ok {
		return f, true
	}
	if s, ok := v.AsString(); ok {
		text := strings.Replace(strings.TrimSpace(s), ",", ".", 1)
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func rangeMetrics(values []frame.Value, spec RuleSpec) map[string]any {
	nonNull, castInvalid, outOfRange := 0, 0, 0
	for _, v := range values {
		if v.IsMissing() {
			continue
		}
		nonNull++
		f, ok := numericValue(v)
		if !ok {
			castInvalid++
			continue
		}
		if (spec.Min != nil && f < *spec.Min) || (spec.Max != nil && f > *spec.Max) {
			outOfRange++
		}
	}
	invalid := castInvalid + outOfRange
	rate := 0.0
	if nonNull > 0 {
		rate = float64(invalid) / float64(nonNull)
	}
	return map[string]any{
		"n_non_null":     nonNull,
		"n_cast_invalid": castInvalid,
		"n_out_of_range": outOfRange,
		"n_invalid":      invalid,
		"invalid_rate":   rate,
	}
}

func setMetrics(values []frame.Value, allowed []string) map[string]any {
	allowedSet := make(map[string]bool, len(allowed))
	for _, item := range allowed {
		allowedSet[item] = true
	}
	nonNull, notAllowed := 0, 0
	for _, v := range values {
		if v.IsMissing() {
			continue
		}
		nonNull++
		if !allowedSet[v.Render()] {
			notAllowed++
		}
	}
	rate := 0.0
	if nonNull > 0 {
		rate = float64(notAllowed) / float64(nonNull)
	}
	return map[string]any{
		"n_non_null":    nonNull,
		"n_not_allowed": notAllowed,
		"invalid_rate":  rate,
	}
}

func regexMetrics(values []frame.Value, re *regexp.Regexp) map[string]any {
	nonNull, notMatching := 0, 0
	for _, v := range values {
		if v.IsMissing() {
			continue
		}
		nonNull++
		if !re.MatchString(v.Render()) {
			notMatching++
		}
	}
	rate := 0.0
	if nonNull > 0 {
		rate = float64(notMatching) / float64(nonNull)
	}
	return map[string]any{
		"n_non_null":     nonNull,
		"n_not_matching": notMatching,
		"invalid_rate":   rate,
	}
}

func dateRangeMetrics(values []frame.Value, start, end string) map[string]any {
	var startTS, endTS time.Time
	var hasStart, hasEnd bool
	if start != "" {
		if t, err := time.Parse("2006-01-02", start); err == nil {
			startTS, hasStart = t, true
		}
	}
	if end != "" {
		if t, err := time.Parse("2006-01-02", end); err == nil {
			endTS, hasEnd = t, true
		}
	}

	nonNull, parseInvalid, outOfRange := 0, 0, 0
	for _, v := range values {
		if v.IsMissing() {
			continue
		}
		nonNull++
		t, ok := v.AsTime()
		if !ok {
			parseInvalid++
			continue
		}
		if (hasStart && t.Before(startTS)) || (hasEnd && t.After(endTS)) {
			outOfRange++
		}
	}
	invalid := parseInvalid + outOfRange
	rate := 0.0
	if nonNull > 0 {
		rate = float64(invalid) / float64(nonNull)
	}
	return map[string]any{
		"n_non_null":      nonNull,
		"n_parse_invalid": parseInvalid,
		"n_out_of_range":  outOfRange,
		"n_invalid":       invalid,
		"invalid_rate":    rate,
	}
}

// identifierFindings runs the roster-identifier checks that apply to every
// year regardless of declared rules: RA must be present, non-null, non-blank
// and unique. Duplicate counting includes every member of a duplicated
// group, so two rows sharing one RA count as two duplicates.
func identifierFindings(f *frame.Frame, year int) []Finding {
	values, ok := f.Column("RA")
	if !ok {
		return []Finding{{
			Year:        year,
			Column:      "RA",
			RuleType:    RuleIdentifier,
			Kind:        "id_absent",
			Enforcement: EnforcementError,
			Message:     "identifier column RA absent from frame",
			Metrics:     map[string]any{"ra_null": 0, "ra_blank": 0, "ra_duplicates": 0},
		}}
	}

	counts := make(map[string]int, len(values))
	nullCount, blankCount := 0, 0
	for _, v := range values {
		if v.IsMissing() {
			nullCount++
			continue
		}
		rendered := v.Render()
		if strings.TrimSpace(rendered) == "" {
			blankCount++
		}
		counts[rendered]++
	}
	duplicateCount := 0
	for _, n := range counts {
		if n > 1 {
			duplicateCount += n
		}
	}

	var findings []Finding
	if nullCount > 0 {
		findings = append(findings, Finding{
			Year: year, Column: "RA",
			RuleType: RuleIdentifier, Kind: "id_null", Enforcement: EnforcementError,
			Message: fmt.Sprintf("identifier RA carries %d null values", nullCount),
			Metrics: map[string]any{"ra_null": nullCount},
		})
	}
	if blankCount > 0 {
		findings = append(findings, Finding{
			Year: year, Column: "RA",
			RuleType: RuleIdentifier, Kind: "id_blank", Enforcement: EnforcementError,
			Message: fmt.Sprintf("identifier RA carries %d blank values", blankCount),
			Metrics: map[string]any{"ra_blank": blankCount},
		})
	}
	if duplicateCount > 0 {
		findings = append(findings, Finding{
			Year: year, Column: "RA",
			RuleType: RuleIdentifier, Kind: "id_duplicates", Enforcement: EnforcementError,
			Message: fmt.Sprintf("identifier RA carries %d duplicated values", duplicateCount),
			Metrics: map[string]any{"ra_duplicates": duplicateCount},
		})
	}
	return findings
}

// effectiveEnforcement downgrades structural-optional findings to info;
// alignment-added columns can never fail a year.
func effectiveEnforcement(presence Presence, enforcement Enforcement) Enforcement {
	if presence == PresenceStructuralOptional {
		return EnforcementInfo
	}
	return enforcement
}

// ValidateFrame checks one standardized frame against one yearly contract
// and returns a PASS/FAIL verdict with per-rule findings.
func ValidateFrame(f *frame.Frame, contract *YearContract, logger *slog.Logger) (*ValidationResult, error) {
	if logger == nil {
		logger = slog.Default()
	}

	frameColumns := make(map[string]bool, f.NumColumns())
	for _, column := range f.Columns() {
		frameColumns[column] = true
	}

	var missingCols, extraCols []string
	for column := range contract.Columns {
		if !frameColumns[column] {
			missingCols = append(missingCols, column)
		}
	}
	for column := range frameColumns {
		if _, ok := contract.Columns[column]; !ok {
			extraCols = append(extraCols, column)
		}
	}
	sort.Strings(missingCols)
	sort.Strings(extraCols)

	var findings []Finding
	for _, column := range missingCols {
		findings = append(findings, Finding{
			Year:        contract.Year,
			Column:      column,
			RuleType:    RuleSchema,
			Kind:        "missing_column",
			Enforcement: EnforcementError,
			Message:     fmt.Sprintf("expected column absent from frame: %q", column),
			Metrics:     map[string]any{},
		})
	}
	for _, column := range extraCols {
		findings = append(findings, Finding{
			Year:        contract.Year,
			Column:      column,
			RuleType:    RuleSchema,
			Kind:        "extra_column",
			Enforcement: EnforcementWarning,
			Message:     fmt.Sprintf("column not declared by the contract: %q", column),
			Metrics:     map[string]any{},
		})
	}

	findings = append(findings, identifierFindings(f, contract.Year)...)

	shared := make([]string, 0, len(contract.Columns))
	for column := range contract.Columns {
		if frameColumns[column] {
			shared = append(shared, column)
		}
	}
	sort.Strings(shared)

	for _, column := range shared {
		spec := contract.Columns[column]
		values, _ := f.Column(column)

		for _, rule := range spec.Rules {
			switch rule.RuleType {
			case RuleDtype:
				expected := normalizeDtypeName(rule.Spec.ExpectedDtype)
				observed := observedDtype(f.ColumnType(column))
				if expected != observed {
					findings = append(findings, Finding{
						Year:        contract.Year,
						Column:      column,
						RuleType:    RuleDtype,
						Kind:        RuleDtype,
						Enforcement: rule.Enforcement,
						Message: fmt.Sprintf("dtype mismatch in %q: expected=%s observed=%s",
							column, expected, observed),
						Metrics: map[string]any{
							"expected_dtype": expected,
							"observed_dtype": observed,
						},
					})
				}

			case RuleMissing:
				allowMissing := rule.Spec.AllowMissing == nil || *rule.Spec.AllowMissing
				missingCount := len(values) - f.NonMissingCount(column)
				if !allowMissing && missingCount > 0 {
					rate := 0.0
					if len(values) > 0 {
						rate = float64(missingCount) / float64(len(values))
					}
					findings = append(findings, Finding{
						Year:        contract.Year,
						Column:      column,
						RuleType:    RuleMissing,
						Kind:        RuleMissing,
						Enforcement: effectiveEnforcement(spec.Presence, rule.Enforcement),
						Message: fmt.Sprintf("missing values not allowed in %q (missing_rate=%.2f%%)",
							column, rate*100),
						Metrics: map[string]any{
							"allow_missing": allowMissing,
							"missing_count": missingCount,
							"missing_rate":  rate,
						},
					})
				}

			case RuleDomain:
				kind := strings.ToLower(strings.TrimSpace(rule.Spec.Kind))
				if kind == DomainNone || kind == "" {
					continue
				}
				enforcement := effectiveEnforcement(spec.Presence, rule.Enforcement)

				switch kind {
				case DomainRange:
					metrics := rangeMetrics(values, rule.Spec)
					if metrics["n_invalid"].(int) > 0 {
						findings = append(findings, Finding{
							Year: contract.Year, Column: column,
							RuleType: RuleDomain, Kind: DomainRange, Enforcement: enforcement,
							Message: fmt.Sprintf("range domain violated in %q (n_invalid=%d)",
								column, metrics["n_invalid"].(int)),
							Metrics: metrics,
						})
					}
				case DomainSet:
					metrics := setMetrics(values, rule.Spec.Allowed)
					if metrics["n_not_allowed"].(int) > 0 {
						findings = append(findings, Finding{
							Year: contract.Year, Column: column,
							RuleType: RuleDomain, Kind: DomainSet, Enforcement: enforcement,
							Message: fmt.Sprintf("set domain violated in %q (n_not_allowed=%d)",
								column, metrics["n_not_allowed"].(int)),
							Metrics: metrics,
						})
					}
				case DomainRegex:
					if rule.Spec.Pattern == "" {
						continue
					}
					re, err := regexp.Compile(rule.Spec.Pattern)
					if err != nil {
						return nil, errors.NewConfigError(
							fmt.Sprintf("malformed regex domain for %q: %q", column, rule.Spec.Pattern), err)
					}
					metrics := regexMetrics(values, re)
					if metrics["n_not_matching"].(int) > 0 {
						findings = append(findings, Finding{
							Year: contract.Year, Column: column,
							RuleType: RuleDomain, Kind: DomainRegex, Enforcement: enforcement,
							Message: fmt.Sprintf("regex domain violated in %q (n_not_matching=%d)",
								column, metrics["n_not_matching"].(int)),
							Metrics: metrics,
						})
					}
				case DomainDateRange:
					metrics := dateRangeMetrics(values, rule.Spec.Start, rule.Spec.End)
					if metrics["n_invalid"].(int) > 0 {
						findings = append(findings, Finding{
							Year: contract.Year, Column: column,
							RuleType: RuleDomain, Kind: DomainDateRange, Enforcement: enforcement,
							Message: fmt.Sprintf("date range domain violated in %q (n_invalid=%d)",
								column, metrics["n_invalid"].(int)),
							Metrics: metrics,
						})
					}
				default:
					findings = append(findings, Finding{
						Year: contract.Year, Column: column,
						RuleType: RuleDomain, Kind: kind, Enforcement: EnforcementInfo,
						Message: fmt.Sprintf("unknown domain kind for %q: %q", column, kind),
						Metrics: map[string]any{},
					})
				}
			}
		}
	}

	result := &ValidationResult{
		Year: contract.Year,
		Schema: SchemaSummary{
			ContractColumnsCount: len(contract.Columns),
			FrameColumnsCount:    f.NumColumns(),
			MissingColumns:       missingCols,
			ExtraColumns:         extraCols,
		},
		Findings: findings,
	}
	for _, finding := range findings {
		switch finding.Enforcement {
		case EnforcementError:
			result.ErrorsCount++
		case EnforcementWarning:
			result.WarningsCount++
		default:
			result.InfosCount++
		}
	}
	result.Status = "PASS"
	if result.ErrorsCount > 0 {
		result.Status = "FAIL"
	}

	logger.Info("contract validation",
		slog.Int("year", contract.Year),
		slog.String("status", result.Status),
		slog.Int("errors", result.ErrorsCount),
		slog.Int("warnings", result.WarningsCount),
		slog.Int("infos", result.InfosCount),
		slog.Int("missing_cols", len(missingCols)),
		slog.Int("extra_cols", len(extraCols)))

	return result, nil
}
