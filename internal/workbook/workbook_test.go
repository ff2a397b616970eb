package workbook

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"pedeprep/internal/errors"
)

func testLoader() *Loader {
	return NewLoader(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// writeTestWorkbook builds a minimal PEDE workbook on disk.
func writeTestWorkbook(t *testing.T, sheets map[string][][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for sheet, rows := range sheets {
		_, err := f.NewSheet(sheet)
		require.NoError(t, err)
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(sheet, cell, &row))
		}
	}
	require.NoError(t, f.DeleteSheet("Sheet1"))

	path := filepath.Join(t.TempDir(), "pede.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestLoadYear(t *testing.T) {
	path := writeTestWorkbook(t, map[string][][]interface{}{
		"PEDE2022": {
			{"RA", "Idade", "Pedra 22"},
			{"100", "12", "Ametista"},
			{"101", "", "Topázio"},
			{"102", "13"},
		},
	})

	f, err := testLoader().LoadYear(path, 2022)
	require.NoError(t, err)

	assert.Equal(t, []string{"RA", "Idade", "Pedra 22"}, f.Columns())
	assert.Equal(t, 3, f.NumRows())

	v, err := f.Value("RA", 0)
	require.NoError(t, err)
	s, _ := v.AsString()
	assert.Equal(t, "100", s)

	v, err = f.Value("Idade", 1)
	require.NoError(t, err)
	assert.True(t, v.IsMissing(), "blank cell loads as missing")

	v, err = f.Value("Pedra 22", 2)
	require.NoError(t, err)
	assert.True(t, v.IsMissing(), "short row is padded with missing")
}

func TestLoadYearUnsupported(t *testing.T) {
	_, err := testLoader().LoadYear("anything.xlsx", 2021)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
	assert.Contains(t, err.Error(), "2021")
}

func TestLoadYearMissingFile(t *testing.T) {
	_, err := testLoader().LoadYear(filepath.Join(t.TempDir(), "absent.xlsx"), 2022)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Contains(t, err.Error(), "PEDE_DATASET_PATH")
}

func TestLoadYearMissingSheet(t *testing.T) {
	path := writeTestWorkbook(t, map[string][][]interface{}{
		"PEDE2022": {{"RA"}, {"100"}},
	})

	_, err := testLoader().LoadYear(path, 2023)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
	assert.Contains(t, err.Error(), "PEDE2023")
	assert.Contains(t, err.Error(), "PEDE2022", "error lists the available sheets")
}

func TestLoadAll(t *testing.T) {
	path := writeTestWorkbook(t, map[string][][]interface{}{
		"PEDE2022": {{"RA"}, {"1"}},
		"PEDE2023": {{"RA"}, {"1"}, {"2"}},
		"PEDE2024": {{"RA"}, {"3"}},
	})

	frames, err := testLoader().LoadAll(path)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, 1, frames[2022].NumRows())
	assert.Equal(t, 2, frames[2023].NumRows())
	assert.Equal(t, 1, frames[2024].NumRows())
}

func TestMangleLabels(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		want   []string
	}{
		{
			name:   "clean headers pass through",
			header: []string{"RA", "Idade"},
			want:   []string{"RA", "Idade"},
		},
		{
			name:   "blank header gets positional name",
			header: []string{"RA", "", "Fase"},
			want:   []string{"RA", "Unnamed: 1", "Fase"},
		},
		{
			name:   "repeats get dot suffixes",
			header: []string{"IPP", "IPP", "IPP"},
			want:   []string{"IPP", "IPP.1", "IPP.2"},
		},
		{
			name:   "suffix skips an occupied name",
			header: []string{"IPP", "IPP.1", "IPP"},
			want:   []string{"IPP", "IPP.1", "IPP.2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mangleLabels(tt.header))
		})
	}
}
