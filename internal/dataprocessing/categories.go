package dataprocessing

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"pedeprep/internal/frame"
)

// CategoryColumns lists the textual columns subject to vocabulary
// normalization, in processing order.
var CategoryColumns = []string{
	"Gênero",
	"Instituição de ensino",
	"Escola",
	"Ativo/ Inativo",
	"Ativo/ Inativo__dup1",
	"Turma",
	"Indicado",
	"Atingiu PV",
	"Fase",
	"Fase_Ideal",
	"Pedra_Ano",
	"Pedra 20",
	"Pedra 21",
	"Pedra 22",
	"Pedra 23",
	"Pedra 2023",
	"Pedra 2024",
}

var pedraColumns = map[string]bool{
	"Pedra_Ano":  true,
	"Pedra 20":   true,
	"Pedra 21":   true,
	"Pedra 22":   true,
	"Pedra 23":   true,
	"Pedra 2023": true,
	"Pedra 2024": true,
}

var faseRE = regexp.MustCompile(`(?i)^FASE\s*([1-8])$`)

// naToken marks the placeholder tier value that maps to missing.
const naToken = "incluir"

var generoMap = map[string]string{
	"menina":    "Feminino",
	"menino":    "Masculino",
	"feminino":  "Feminino",
	"masculino": "Masculino",
}

var instituicaoMap = map[string]string{
	"escola pública": "Pública",
	"publica":        "Pública",
	"pública":        "Pública",
	"privada - programa de apadrinhamento": "Privada - Programa de Apadrinhamento",
}

var pedraMap = map[string]string{
	"agata": "Ágata",
	"ágata": "Ágata",
}

// NormalizeText applies NFC normalization, whitespace collapsing and
// trimming to one textual value, mapping blanks to missing.
func NormalizeText(v frame.Value) frame.Value {
	if v.IsMissing() {
		return frame.NA()
	}
	text := norm.NFC.String(v.Render())
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return frame.NA()
	}
	return frame.String(text)
}

// casefoldMap normalizes then rewrites values through a casefolded synonym
// table, passing unmapped values through unchanged.
func casefoldMap(v frame.Value, mapping map[string]string, naTokens map[string]bool) frame.Value {
	normalized := NormalizeText(v)
	if normalized.IsMissing() {
		return frame.NA()
	}
	text, _ := normalized.AsString()
	folded := strings.ToLower(text)
	if naTokens[folded] {
		return frame.NA()
	}
	if canonical, ok := mapping[folded]; ok {
		return frame.String(canonical)
	}
	return normalized
}

func normalizeGenero(v frame.Value) frame.Value {
	return casefoldMap(v, generoMap, nil)
}

func normalizeInstituicao(v frame.Value) frame.Value {
	return casefoldMap(v, instituicaoMap, nil)
}

func normalizePedra(v frame.Value) frame.Value {
	return casefoldMap(v, pedraMap, map[string]bool{naToken: true})
}

func normalizeTurma(v frame.Value) frame.Value {
	normalized := NormalizeText(v)
	if normalized.IsMissing() {
		return frame.NA()
	}
	text, _ := normalized.AsString()
	return frame.String(strings.ToUpper(text))
}

// normalizeFase rewrites single-digit phase tokens to the canonical
// "Fase N" form and uppercases the literal alpha phase. Anything else passes
// through unchanged; ambiguous phase text is never guessed at.
func normalizeFase(v frame.Value) frame.Value {
	normalized := NormalizeText(v)
	if normalized.IsMissing() {
		return frame.NA()
	}
	text, _ := normalized.AsString()
	if strings.EqualFold(text, "alfa") {
		return frame.String("ALFA")
	}
	if match := faseRE.FindStringSubmatch(text); match != nil {
		return frame.String("Fase " + match[1])
	}
	return normalized
}

// normalizeFaseIdeal fixes the degree-sign variant of the ordinal indicator.
func normalizeFaseIdeal(v frame.Value) frame.Value {
	normalized := NormalizeText(v)
	if normalized.IsMissing() {
		return frame.NA()
	}
	text, _ := normalized.AsString()
	text = strings.ReplaceAll(text, "°", "º")
	text = strings.Join(strings.Fields(text), " ")
	return frame.String(text)
}

// LabelCount is one entry of a top-value-frequency summary.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// topCounts tallies value frequencies including the missing marker, sorted
// count descending then label ascending, truncated to limit.
func topCounts(values []frame.Value, limit int) []LabelCount {
	counts := make(map[string]int)
	for _, v := range values {
		counts[v.Render()]++
	}
	out := make([]LabelCount, 0, len(counts))
	for label, count := range counts {
		out = append(out, LabelCount{Label: label, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ColumnCategoryReport is the per-column before/after audit. It carries
// aggregate label frequencies only, never row-level identifiers.
type ColumnCategoryReport struct {
	NChanged  int          `json:"n_changed"`
	TopBefore []LabelCount `json:"top_before"`
	TopAfter  []LabelCount `json:"top_after"`
}

// CategoryReport aggregates one year's category normalization.
type CategoryReport struct {
	Year         int                              `json:"year"`
	TotalChanged int                              `json:"total_changed"`
	Columns      map[string]*ColumnCategoryReport `json:"columns"`
}

// TopChanged returns the n most-rewritten columns, count descending then
// name ascending.
func (r *CategoryReport) TopChanged(n int) []ColumnCoercion {
	out := make([]ColumnCoercion, 0, len(r.Columns))
	for column, report := range r.Columns {
		out = append(out, ColumnCoercion{Column: column, Count: report.NChanged})
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

// CategoryNormalizer rewrites configured category columns into their
// canonical vocabularies.
type CategoryNormalizer struct {
	logger *slog.Logger
}

// NewCategoryNormalizer creates a normalizer. A nil logger falls back to
// slog.Default().
func NewCategoryNormalizer(logger *slog.Logger) *CategoryNormalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &CategoryNormalizer{logger: logger}
}

func normalizerFor(column string) func(frame.Value) frame.Value {
	switch {
	case column == "Gênero":
		return normalizeGenero
	case column == "Instituição de ensino":
		return normalizeInstituicao
	case pedraColumns[column]:
		return normalizePedra
	case column == "Turma":
		return normalizeTurma
	case column == "Fase":
		return normalizeFase
	case column == "Fase_Ideal":
		return normalizeFaseIdeal
	default:
		return NormalizeText
	}
}

// NormalizeFrame normalizes every configured category column present in the
// frame and reports per-column change counts with before/after frequencies.
func (c *CategoryNormalizer) NormalizeFrame(f *frame.Frame, year int) (*frame.Frame, *CategoryReport, error) {
	if err := ValidateYear(year); err != nil {
		return nil, nil, err
	}

	normalized := f.Clone()
	report := &CategoryReport{
		Year:    year,
		Columns: make(map[string]*ColumnCategoryReport),
	}

	for _, column := range CategoryColumns {
		before, ok := normalized.Column(column)
		if !ok {
			continue
		}

		transform := normalizerFor(column)
		after := make([]frame.Value, len(before))
		changed := 0
		for i, v := range before {
			after[i] = transform(v)
			if !v.Equal(after[i]) {
				changed++
			}
		}

		beforeCopy := append([]frame.Value(nil), before...)
		if err := normalized.SetColumn(column, after); err != nil {
			return nil, nil, err
		}
		normalized.SetColumnType(column, frame.TypeText)

		report.TotalChanged += changed
		report.Columns[column] = &ColumnCategoryReport{
			NChanged:  changed,
			TopBefore: topCounts(beforeCopy, 10),
			TopAfter:  topCounts(after, 10),
		}
	}

	c.logger.Info("category normalization",
		slog.Int("year", year),
		slog.Int("columns", len(report.Columns)),
		slog.Int("total_changed", report.TotalChanged),
		slog.Any("top_changed", report.TopChanged(5)))

	return normalized, report, nil
}

// NormalizeAll applies category normalization to every yearly frame in
// ascending year order.
func (c *CategoryNormalizer) NormalizeAll(frames map[int]*frame.Frame) (map[int]*frame.Frame, map[int]*CategoryReport, error) {
	years := make([]int, 0, len(frames))
	for year := range frames {
		years = append(years, year)
	}
	sort.Ints(years)

	normalized := make(map[int]*frame.Frame, len(frames))
	reports := make(map[int]*CategoryReport, len(frames))
	for _, year := range years {
		f, report, err := c.NormalizeFrame(frames[year], year)
		if err != nil {
			return nil, nil, err
		}
		normalized[year] = f
		reports[year] = report
	}
	return normalized, reports, nil
}
