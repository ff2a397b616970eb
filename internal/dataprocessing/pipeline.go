package dataprocessing

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"pedeprep/internal/frame"
)

// PipelineResult bundles the typed frames and every report the preparation
// stages emit for one full run.
type PipelineResult struct {
	Frames          map[int]*frame.Frame
	Align           *AlignMetadata
	DtypeReports    map[int]*DtypeReport
	CategoryReports map[int]*CategoryReport
	Cohort          *CohortReport
}

// Pipeline runs the full preparation sequence: harmonize and align the raw
// year frames, standardize dtypes, normalize category labels and compute
// cohort overlap stats.
type Pipeline struct {
	logger       *slog.Logger
	harmonizer   *Harmonizer
	standardizer *Standardizer
	normalizer   *CategoryNormalizer
}

// NewPipeline creates a pipeline with the default stage implementations.
// A nil logger falls back to slog.Default().
func NewPipeline(logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger:       logger,
		harmonizer:   NewHarmonizer(logger, nil),
		standardizer: NewStandardizer(logger),
		normalizer:   NewCategoryNormalizer(logger),
	}
}

// Run executes the pipeline over the raw per-year frames. Input frames are
// never mutated. Dtype standardization fans out one goroutine per year;
// the first stage error aborts the run.
func (p *Pipeline) Run(ctx context.Context, raw map[int]*frame.Frame) (*PipelineResult, error) {
	years := make([]int, 0, len(raw))
	for year := range raw {
		years = append(years, year)
	}
	sort.Ints(years)

	aligned, alignMeta, err := p.harmonizer.AlignYears(raw, years)
	if err != nil {
		return nil, err
	}

	typed := make(map[int]*frame.Frame, len(aligned))
	dtypeReports := make(map[int]*DtypeReport, len(aligned))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for _, year := range years {
		year := year
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, report, err := p.standardizer.StandardizeFrame(aligned[year], year)
			if err != nil {
				return err
			}
			mu.Lock()
			typed[year] = f
			dtypeReports[year] = report
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	normalized, categoryReports, err := p.normalizer.NormalizeAll(typed)
	if err != nil {
		return nil, err
	}

	idSets, invalid, err := ComputeIDSets(normalized)
	if err != nil {
		return nil, err
	}
	cohort, err := ComputeIntersections(idSets, invalid, cohortPairsFor(years))
	if err != nil {
		return nil, err
	}

	p.logger.Info("pipeline run complete",
		slog.Int("years", len(years)),
		slog.Int("columns", len(alignMeta.AlignedColumns)))

	return &PipelineResult{
		Frames:          normalized,
		Align:           alignMeta,
		DtypeReports:    dtypeReports,
		CategoryReports: categoryReports,
		Cohort:          cohort,
	}, nil
}

// cohortPairsFor filters the default cohort pairs down to the years
// actually present in the run.
func cohortPairsFor(years []int) []YearPair {
	present := make(map[int]bool, len(years))
	for _, year := range years {
		present[year] = true
	}
	pairs := make([]YearPair, 0, len(DefaultCohortPairs))
	for _, pair := range DefaultCohortPairs {
		if present[pair.A] && present[pair.B] {
			pairs = append(pairs, pair)
		}
	}
	return pairs
}
