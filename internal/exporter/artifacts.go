// Package exporter persists pipeline reports as aggregate-only artifacts:
// JSON documents with a run id and timestamp, plus optional Markdown
// renderings for human review. Artifacts carry counts, labels and ratios
// only; student identifiers and raw cell values never leave the pipeline.
package exporter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"pedeprep/internal/dataprocessing"
	"pedeprep/internal/errors"
)

// Artifact file names.
const (
	CategoryReportFile  = "category_normalization_report.json"
	CohortReportFile    = "ra_intersections.json"
	FeatureSplitFile    = "feature_split_report.json"
	DtypeReportFile     = "dtype_standardization_report.json"
	AlignmentReportFile = "schema_alignment_report.json"
)

// envelope wraps every persisted payload with run provenance.
type envelope struct {
	RunID       string      `json:"run_id"`
	GeneratedAt string      `json:"generated_at"`
	Kind        string      `json:"kind"`
	Payload     interface{} `json:"payload"`
}

// Writer persists report artifacts for one pipeline run. All artifacts of
// a run share the same run id.
type Writer struct {
	dir           string
	runID         string
	writeMarkdown bool
	logger        *slog.Logger
}

// NewWriter creates an artifact writer rooted at dir. A nil logger falls
// back to slog.Default().
func NewWriter(dir string, writeMarkdown bool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		dir:           dir,
		runID:         uuid.NewString(),
		writeMarkdown: writeMarkdown,
		logger:        logger,
	}
}

// RunID returns the id stamped on every artifact this writer produces.
func (w *Writer) RunID() string { return w.runID }

// WriteAll persists every report a pipeline run produced.
func (w *Writer) WriteAll(result *dataprocessing.PipelineResult) error {
	if err := w.WriteCategoryReports(result.CategoryReports); err != nil {
		return err
	}
	if err := w.WriteCohortReport(result.Cohort); err != nil {
		return err
	}
	if err := w.WriteDtypeReports(result.DtypeReports); err != nil {
		return err
	}
	return w.WriteAlignMetadata(result.Align)
}

// WriteCategoryReports persists the per-year category normalization
// reports, optionally with a Markdown summary.
func (w *Writer) WriteCategoryReports(reports map[int]*dataprocessing.CategoryReport) error {
	if err := w.writeJSON(CategoryReportFile, "category_normalization", reports); err != nil {
		return err
	}
	if !w.writeMarkdown {
		return nil
	}
	return w.writeFile(markdownName(CategoryReportFile), renderCategoryMarkdown(reports))
}

// WriteCohortReport persists the cohort overlap stats, optionally with the
// Markdown count and overlap tables.
func (w *Writer) WriteCohortReport(report *dataprocessing.CohortReport) error {
	if err := w.writeJSON(CohortReportFile, "ra_intersections", report); err != nil {
		return err
	}
	if !w.writeMarkdown {
		return nil
	}
	return w.writeFile(markdownName(CohortReportFile), renderCohortMarkdown(report))
}

// WriteFeatureSplit persists one temporal pair's feature split report.
func (w *Writer) WriteFeatureSplit(report *dataprocessing.FeatureSplitReport) error {
	name := fmt.Sprintf("feature_split_report_%d_%d.json", report.YearT, report.YearT1)
	return w.writeJSON(name, "feature_split", report)
}

// WriteDtypeReports persists the per-year dtype coercion reports.
func (w *Writer) WriteDtypeReports(reports map[int]*dataprocessing.DtypeReport) error {
	return w.writeJSON(DtypeReportFile, "dtype_standardization", reports)
}

// WriteAlignMetadata persists the schema alignment metadata.
func (w *Writer) WriteAlignMetadata(meta *dataprocessing.AlignMetadata) error {
	return w.writeJSON(AlignmentReportFile, "schema_alignment", meta)
}

func (w *Writer) writeJSON(name, kind string, payload interface{}) error {
	doc := envelope{
		RunID:       w.runID,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Kind:        kind,
		Payload:     payload,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.NewStorageError(
			fmt.Sprintf("failed to encode artifact %s", name), err)
	}
	return w.writeFile(name, string(data)+"\n")
}

func (w *Writer) writeFile(name, content string) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return errors.NewStorageError(
			fmt.Sprintf("failed to create artifact directory %s", w.dir), err)
	}
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return errors.NewStorageError(
			fmt.Sprintf("failed to write artifact %s", path), err)
	}
	w.logger.Info("wrote artifact",
		slog.String("path", path),
		slog.String("run_id", w.runID))
	return nil
}

func markdownName(jsonName string) string {
	return strings.TrimSuffix(jsonName, ".json") + ".md"
}

func renderCategoryMarkdown(reports map[int]*dataprocessing.CategoryReport) string {
	years := make([]int, 0, len(reports))
	for year := range reports {
		years = append(years, year)
	}
	sort.Ints(years)

	var b strings.Builder
	b.WriteString("# Category Normalization\n")
	for _, year := range years {
		report := reports[year]
		fmt.Fprintf(&b, "\n## %d\n\n", year)
		fmt.Fprintf(&b, "Values changed: %d\n\n", report.TotalChanged)
		b.WriteString("| Column | Changed |\n|---|---|\n")
		for _, col := range report.TopChanged(10) {
			fmt.Fprintf(&b, "| %s | %d |\n", col.Column, col.Count)
		}
	}
	return b.String()
}

func renderCohortMarkdown(report *dataprocessing.CohortReport) string {
	var b strings.Builder
	b.WriteString("# RA Intersections\n\n")

	b.WriteString("| Year | Valid IDs | Discarded |\n|---|---|---|\n")
	for _, year := range report.Years {
		fmt.Fprintf(&b, "| %d | %d | %d |\n",
			year, report.Counts[year], report.InvalidDiscarded[year])
	}

	keys := make([]string, 0, len(report.Pairs))
	for key := range report.Pairs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	b.WriteString("\n| Pair | Intersection | Union | Jaccard |\n|---|---|---|---|\n")
	for _, key := range keys {
		pair := report.Pairs[key]
		fmt.Fprintf(&b, "| %s | %d | %d | %.4f |\n",
			key, pair.Intersection, pair.Union, pair.Jaccard)
	}
	return b.String()
}
