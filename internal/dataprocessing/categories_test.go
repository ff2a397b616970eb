package dataprocessing

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pedeprep/internal/frame"
)

func testCategoryNormalizer(t *testing.T) *CategoryNormalizer {
	t.Helper()
	return NewCategoryNormalizer(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   frame.Value
		want frame.Value
	}{
		{"collapses whitespace", frame.String("  Escola   Pública "), frame.String("Escola Pública")},
		{"blank to missing", frame.String("   "), frame.NA()},
		{"missing passthrough", frame.NA(), frame.NA()},
		{"decomposed accents recomposed", frame.String("Ágata"), frame.String("Ágata")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(NormalizeText(tt.in)))
		})
	}
}

func TestNormalizeGenero(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Menina", "Feminino"},
		{"MENINO", "Masculino"},
		{"feminino", "Feminino"},
		{"Outro", "Outro"},
	}
	for _, tt := range tests {
		got, ok := normalizeGenero(frame.String(tt.in)).AsString()
		require.True(t, ok)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestNormalizePedra(t *testing.T) {
	got, ok := normalizePedra(frame.String("agata")).AsString()
	require.True(t, ok)
	assert.Equal(t, "Ágata", got)

	assert.True(t, normalizePedra(frame.String("INCLUIR")).IsMissing(),
		"placeholder tier token maps to missing")

	got, ok = normalizePedra(frame.String("Quartzo")).AsString()
	require.True(t, ok)
	assert.Equal(t, "Quartzo", got)
}

func TestNormalizeFase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"fase 3", "Fase 3"},
		{"FASE3", "Fase 3"},
		{"Fase 8", "Fase 8"},
		{"alfa", "ALFA"},
		{"Fase 9", "Fase 9"},
		{"Fase Especial", "Fase Especial"},
	}
	for _, tt := range tests {
		got, ok := normalizeFase(frame.String(tt.in)).AsString()
		require.True(t, ok)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestNormalizeFaseIdeal(t *testing.T) {
	got, ok := normalizeFaseIdeal(frame.String("7° ano")).AsString()
	require.True(t, ok)
	assert.Equal(t, "7º ano", got)
}

func TestNormalizeTurma(t *testing.T) {
	got, ok := normalizeTurma(frame.String(" 7a ")).AsString()
	require.True(t, ok)
	assert.Equal(t, "7A", got)
}

func TestTopCountsDeterministic(t *testing.T) {
	values := []frame.Value{
		frame.String("A"), frame.String("A"),
		frame.String("B"), frame.String("B"),
		frame.String("C"),
		frame.NA(),
	}

	got := topCounts(values, 3)
	assert.Equal(t, []LabelCount{
		{Label: "A", Count: 2},
		{Label: "B", Count: 2},
		{Label: "<NA>", Count: 1},
	}, got, "ties break by label ascending and the missing marker is counted")
}

func TestNormalizeFrame(t *testing.T) {
	f := frame.New(3)
	require.NoError(t, f.AddColumn("RA", strCol("1", "2", "3")))
	require.NoError(t, f.AddColumn("Gênero", strCol("Menina", "MENINO", "Feminino")))
	require.NoError(t, f.AddColumn("Pedra_Ano", strCol("agata", "INCLUIR", "Ametista")))
	require.NoError(t, f.AddColumn("Turma", strCol("7a", "8B", "")))

	out, report, err := testCategoryNormalizer(t).NormalizeFrame(f, 2023)
	require.NoError(t, err)

	genero, _ := out.Column("Gênero")
	s, _ := genero[0].AsString()
	assert.Equal(t, "Feminino", s)

	pedra, _ := out.Column("Pedra_Ano")
	assert.True(t, pedra[1].IsMissing())

	// RA is not a category column and stays untouched.
	ra, _ := out.Column("RA")
	s, _ = ra[0].AsString()
	assert.Equal(t, "1", s)
	assert.NotContains(t, report.Columns, "RA")

	require.Contains(t, report.Columns, "Gênero")
	assert.Equal(t, 2, report.Columns["Gênero"].NChanged)
	assert.NotEmpty(t, report.Columns["Gênero"].TopBefore)
	assert.NotEmpty(t, report.Columns["Gênero"].TopAfter)
	assert.Equal(t, 2, report.Columns["Pedra_Ano"].NChanged)

	wantTotal := 0
	for _, col := range report.Columns {
		wantTotal += col.NChanged
	}
	assert.Equal(t, wantTotal, report.TotalChanged)
}
