package dataprocessing

import (
	"fmt"
	"regexp"
	"sort"

	"pedeprep/internal/errors"
	"pedeprep/internal/frame"
)

// EquivalenceTable maps a canonical column name to the priority-ordered
// source aliases accepted for each year. The first matching alias wins; the
// canonical name itself is always an implicit trailing alias.
type EquivalenceTable map[string]map[int][]string

// DefaultEquivalences returns the static crosswalk table for the three
// supported PEDE years. Callers receive a fresh copy so the table stays
// immutable configuration.
func DefaultEquivalences() EquivalenceTable {
	src := EquivalenceTable{
		"Defasagem": {
			2022: {"Defasagem", "Defasagem__dup1", "Defasagem.1", "Defas"},
			2023: {"Defasagem", "Defasagem__dup1", "Defasagem.1", "Defas"},
			2024: {"Defasagem", "Defasagem__dup1", "Defasagem.1", "Defas"},
		},
		"Mat": {
			2022: {"Matem", "Mat"},
			2023: {"Mat"},
			2024: {"Mat"},
		},
		"Por": {
			2022: {"Portug", "Por"},
			2023: {"Por"},
			2024: {"Por"},
		},
		"Ing": {
			2022: {"Inglês", "Ing"},
			2023: {"Ing"},
			2024: {"Ing"},
		},
		"Data_Nasc": {
			2022: {"Ano nasc", "Data_Nasc"},
			2023: {"Data de Nasc", "Data_Nasc"},
			2024: {"Data de Nasc", "Data_Nasc"},
		},
		"Fase_Ideal": {
			2022: {"Fase ideal", "Fase_Ideal"},
			2023: {"Fase Ideal", "Fase_Ideal"},
			2024: {"Fase Ideal", "Fase_Ideal"},
		},
		"Nome_Anon": {
			2022: {"Nome", "Nome_Anon"},
			2023: {"Nome Anonimizado", "Nome_Anon"},
			2024: {"Nome Anonimizado", "Nome_Anon"},
		},
		"Idade": {
			2022: {"Idade 22", "Idade"},
			2023: {"Idade"},
			2024: {"Idade"},
		},
	}
	out := make(EquivalenceTable, len(src))
	for canonical, byYear := range src {
		yearCopy := make(map[int][]string, len(byYear))
		for year, aliases := range byYear {
			yearCopy[year] = append([]string(nil), aliases...)
		}
		out[canonical] = yearCopy
	}
	return out
}

// MergeDetail records how one canonical column was assembled from multiple
// alias sources.
type MergeDetail struct {
	SourcesUsed   []string `json:"sources_used"`
	Strategy      string   `json:"strategy"`
	NSourcesFound int      `json:"n_sources_found"`
}

// Collision records a multi-source match and how it was resolved.
type Collision struct {
	Canonical string   `json:"canonical"`
	Found     []string `json:"found"`
	Resolved  string   `json:"resolved"`
}

// CrosswalkReport is the audit trail of one year's alias resolution. It
// holds column names and counts only, never cell values.
type CrosswalkReport struct {
	Year           int                    `json:"year"`
	Renamed        map[string]string      `json:"renamed"`
	Merged         map[string]MergeDetail `json:"merged"`
	MissingAliases map[string][]string    `json:"missing_aliases"`
	Collisions     []Collision            `json:"collisions"`
}

// aliasesForYear returns the priority-ordered alias list with the canonical
// name appended as implicit fallback, duplicates removed preserving order.
func (t EquivalenceTable) aliasesForYear(canonical string, year int) []string {
	aliases := append([]string(nil), t[canonical][year]...)
	aliases = append(aliases, canonical)

	seen := make(map[string]bool, len(aliases))
	unique := aliases[:0]
	for _, alias := range aliases {
		if seen[alias] {
			continue
		}
		seen[alias] = true
		unique = append(unique, alias)
	}
	return unique
}

// matchedColumns finds columns matching an alias, including its duplicate
// suffix variants (__dupN and .N), preserving the frame's column order.
func matchedColumns(alias string, columns []string, alreadySelected map[string]bool) []string {
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(alias) + `(?:__dup\d+|\.\d+)?$`)
	var matched []string
	for _, col := range columns {
		if alreadySelected[col] {
			continue
		}
		if pattern.MatchString(col) {
			matched = append(matched, col)
		}
	}
	return matched
}

// HarmonizeYearColumns applies the canonical crosswalk mapping to one yearly
// frame. Only canonical names survive for mapped concepts. When several
// aliases match, values merge by first-non-null in alias priority order.
// Under strict mode a canonical with no matching alias is a configuration
// error naming the year, expected aliases and observed columns.
func HarmonizeYearColumns(f *frame.Frame, year int, table EquivalenceTable, strict bool) (*frame.Frame, *CrosswalkReport, error) {
	harmonized := f.Clone()
	report := &CrosswalkReport{
		Year:           year,
		Renamed:        make(map[string]string),
		Merged:         make(map[string]MergeDetail),
		MissingAliases: make(map[string][]string),
	}

	canonicals := make([]string, 0, len(table))
	for canonical := range table {
		canonicals = append(canonicals, canonical)
	}
	sort.Strings(canonicals)

	for _, canonical := range canonicals {
		aliases := table.aliasesForYear(canonical, year)
		columns := harmonized.Columns()

		var selected []string
		selectedSet := make(map[string]bool)
		for _, alias := range aliases {
			for _, col := range matchedColumns(alias, columns, selectedSet) {
				selected = append(selected, col)
				selectedSet[col] = true
			}
		}

		if len(selected) == 0 {
			report.MissingAliases[canonical] = aliases
			if strict {
				return nil, nil, errors.NewConfigError(
					fmt.Sprintf("no alias found for canonical %q in year %d; expected aliases %v, observed columns %v",
						canonical, year, aliases, columns), nil).
					WithContext("year", year).
					WithContext("canonical", canonical)
			}
			continue
		}

		first, _ := harmonized.Column(selected[0])
		merged := append([]frame.Value(nil), first...)
		for _, sourceCol := range selected[1:] {
			source, _ := harmonized.Column(sourceCol)
			for i := range merged {
				if merged[i].IsMissing() {
					merged[i] = source[i]
				}
			}
		}

		if len(selected) == 1 && selected[0] != canonical {
			report.Renamed[selected[0]] = canonical
		} else if len(selected) > 1 {
			report.Merged[canonical] = MergeDetail{
				SourcesUsed:   append([]string(nil), selected...),
				Strategy:      "first_non_null",
				NSourcesFound: len(selected),
			}
			report.Collisions = append(report.Collisions, Collision{
				Canonical: canonical,
				Found:     append([]string(nil), selected...),
				Resolved:  "merged",
			})
		}

		var dropCandidates []string
		for _, col := range selected {
			if col != canonical {
				dropCandidates = append(dropCandidates, col)
			}
		}
		harmonized.Drop(dropCandidates...)
		if err := harmonized.SetColumn(canonical, merged); err != nil {
			return nil, nil, err
		}
	}

	return harmonized, report, nil
}
