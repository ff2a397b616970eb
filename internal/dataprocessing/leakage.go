package dataprocessing

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"pedeprep/internal/errors"
	"pedeprep/internal/frame"
)

// DefaultAllowlist names historical columns that look like future-period
// information but are known-safe inputs for every supported pair.
var DefaultAllowlist = []string{
	"INDE 22",
	"INDE 23",
	"Pedra 20",
	"Pedra 21",
	"Pedra 22",
	"Pedra 23",
}

// LeakageOptions configures one leakage scan.
type LeakageOptions struct {
	YearT               int
	YearT1              int
	ExtraBlacklist      []string
	Allowlist           []string
	IncludeYearSpecific bool
}

// LeakageReport is the outcome of one column-name scan. It never carries
// cell values.
type LeakageReport struct {
	NColumns       int      `json:"n_columns"`
	NSuspect       int      `json:"n_suspect"`
	SuspectColumns []string `json:"suspect_columns"`
	PatternsUsed   []string `json:"patterns_used"`
}

// BuildBlacklistPatterns assembles the regex patterns flagging
// future-information column names: merge-suffix markers, next-year markers,
// generic target names and, optionally, literal next-year column aliases.
// The result is sorted and deduplicated for determinism.
func BuildBlacklistPatterns(yearT1 int, includeYearSpecific bool) []string {
	patterns := []string{
		`(_x$|_y$|_t1$|_t\+1$)`,
		`(t\+1|next[_ ]?year|ano[_ ]?seguinte)`,
		`(^y$|^target$|label|target_)`,
		`defasagem.*(t\+1|_t1|_y$)`,
	}

	if includeYearSpecific && yearT1 != 0 {
		patterns = append(patterns,
			fmt.Sprintf(`^INDE\s*%d$`, yearT1),
			fmt.Sprintf(`^Pedra\s*%d$`, yearT1),
			fmt.Sprintf(`^INDE[_\s]*%d$`, yearT1),
			fmt.Sprintf(`^Pedra[_\s]*%d$`, yearT1),
		)
	}

	return sortedUnique(patterns)
}

func sortedUnique(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, errors.NewConfigError(
				fmt.Sprintf("invalid leakage blacklist pattern %q", pattern), err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// DetectLeakageColumns scans column names (never values) against the
// blacklist patterns, skipping allowlisted names by case-insensitive exact
// match.
func DetectLeakageColumns(f *frame.Frame, opts LeakageOptions) (*LeakageReport, error) {
	patterns := BuildBlacklistPatterns(opts.YearT1, opts.IncludeYearSpecific)
	if len(opts.ExtraBlacklist) > 0 {
		patterns = sortedUnique(append(patterns, opts.ExtraBlacklist...))
	}
	compiled, err := compilePatterns(patterns)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(opts.Allowlist))
	for _, name := range opts.Allowlist {
		trimmed := strings.TrimSpace(name)
		if trimmed != "" {
			allowed[strings.ToLower(trimmed)] = true
		}
	}

	var suspects []string
	for _, column := range f.Columns() {
		normalized := strings.TrimSpace(column)
		if normalized == "" {
			continue
		}
		if allowed[strings.ToLower(normalized)] {
			continue
		}
		for _, re := range compiled {
			if re.MatchString(normalized) {
				suspects = append(suspects, column)
				break
			}
		}
	}

	return &LeakageReport{
		NColumns:       f.NumColumns(),
		NSuspect:       len(suspects),
		SuspectColumns: sortedUnique(suspects),
		PatternsUsed:   patterns,
	}, nil
}

// AssertNoLeakage fails with an invariant error naming the year pair and the
// offending columns when any suspect survives the scan.
func AssertNoLeakage(f *frame.Frame, opts LeakageOptions) error {
	report, err := DetectLeakageColumns(f, opts)
	if err != nil {
		return err
	}
	if report.NSuspect > 0 {
		return errors.NewInvariantError(
			fmt.Sprintf("leakage detected %d->%d: %d suspect columns: %s",
				opts.YearT, opts.YearT1, report.NSuspect,
				strings.Join(report.SuspectColumns, ", ")), nil).
			WithContext("year_t", opts.YearT).
			WithContext("year_t1", opts.YearT1)
	}
	return nil
}
