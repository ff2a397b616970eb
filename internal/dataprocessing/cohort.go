package dataprocessing

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"pedeprep/internal/errors"
	"pedeprep/internal/frame"
)

// YearPair identifies one (earlier, later) cohort comparison.
type YearPair struct {
	A int
	B int
}

// Key renders the pair in the stable "A_B" report form.
func (p YearPair) Key() string { return fmt.Sprintf("%d_%d", p.A, p.B) }

// DefaultCohortPairs are the year pairs compared by default, including the
// two-year gap.
var DefaultCohortPairs = []YearPair{
	{2022, 2023},
	{2023, 2024},
	{2022, 2024},
}

// ComputeIDSets builds the per-year sets of valid student ids plus the count
// of blank or missing ids discarded per year.
func ComputeIDSets(frames map[int]*frame.Frame) (map[int]map[string]bool, map[int]int, error) {
	idSets := make(map[int]map[string]bool, len(frames))
	invalidCounts := make(map[int]int, len(frames))

	years := make([]int, 0, len(frames))
	for year := range frames {
		years = append(years, year)
	}
	sort.Ints(years)

	for _, year := range years {
		f := frames[year]
		ids, ok := f.Column(idColumn)
		if !ok {
			return nil, nil, errors.NewConfigError(
				fmt.Sprintf("id column missing for year %d; available columns: %v",
					year, f.Columns()), nil).
				WithContext("year", year)
		}

		set := make(map[string]bool)
		invalid := 0
		for _, v := range ids {
			if v.IsMissing() {
				invalid++
				continue
			}
			trimmed := strings.TrimSpace(v.Render())
			if trimmed == "" {
				invalid++
				continue
			}
			set[trimmed] = true
		}
		idSets[year] = set
		invalidCounts[year] = invalid
	}
	return idSets, invalidCounts, nil
}

// PairOverlap holds the aggregate overlap metrics of one year pair.
type PairOverlap struct {
	Intersection int     `json:"intersection"`
	PctOfA       float64 `json:"pct_of_a"`
	PctOfB       float64 `json:"pct_of_b"`
	Union        int     `json:"union"`
	Jaccard      float64 `json:"jaccard"`
}

// CohortReport aggregates yearly id counts and pairwise overlap. Set sizes
// and ratios only, never the ids themselves.
type CohortReport struct {
	GeneratedAt      time.Time              `json:"generated_at"`
	Years            []int                  `json:"years"`
	Counts           map[int]int            `json:"counts"`
	InvalidDiscarded map[int]int            `json:"ra_invalid_discarded_count"`
	Pairs            map[string]PairOverlap `json:"pairs"`
}

func safeRatio(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator)
}

// ComputeIntersections derives overlap metrics for the given year pairs,
// defaulting to the three standard comparisons.
func ComputeIntersections(idSets map[int]map[string]bool, invalidCounts map[int]int, pairs []YearPair) (*CohortReport, error) {
	if pairs == nil {
		pairs = DefaultCohortPairs
	}

	years := make([]int, 0, len(idSets))
	for year := range idSets {
		years = append(years, year)
	}
	sort.Ints(years)

	report := &CohortReport{
		GeneratedAt:      time.Now().UTC(),
		Years:            years,
		Counts:           make(map[int]int, len(idSets)),
		InvalidDiscarded: make(map[int]int, len(idSets)),
		Pairs:            make(map[string]PairOverlap, len(pairs)),
	}
	for _, year := range years {
		report.Counts[year] = len(idSets[year])
		report.InvalidDiscarded[year] = invalidCounts[year]
	}

	for _, pair := range pairs {
		setA, okA := idSets[pair.A]
		setB, okB := idSets[pair.B]
		if !okA || !okB {
			return nil, errors.NewConfigError(
				fmt.Sprintf("invalid cohort pair (%d, %d); available years: %v",
					pair.A, pair.B, years), nil)
		}

		intersection := 0
		for id := range setA {
			if setB[id] {
				intersection++
			}
		}
		union := len(setA) + len(setB) - intersection

		report.Pairs[pair.Key()] = PairOverlap{
			Intersection: intersection,
			PctOfA:       safeRatio(intersection, len(setA)),
			PctOfB:       safeRatio(intersection, len(setB)),
			Union:        union,
			Jaccard:      safeRatio(intersection, union),
		}
	}
	return report, nil
}
