package dataprocessing

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pedeprep/internal/errors"
	"pedeprep/internal/frame"
	"pedeprep/internal/shared/testutil"
)

func testHarmonizer(t *testing.T) *Harmonizer {
	t.Helper()
	return NewHarmonizer(slog.New(slog.NewTextHandler(io.Discard, nil)), DefaultEquivalences())
}

func TestValidateYear(t *testing.T) {
	for _, year := range SupportedYears {
		assert.NoError(t, ValidateYear(year))
	}

	err := ValidateYear(2021)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
	assert.Contains(t, err.Error(), "2021")
}

func TestHarmonizeYearINDEFallback(t *testing.T) {
	tests := []struct {
		name       string
		year       int
		columns    map[string][]frame.Value
		wantSource string
	}{
		{
			name:       "2023 prefers current-year column",
			year:       2023,
			columns:    map[string][]frame.Value{"INDE 2023": strCol("7.1"), "INDE 22": strCol("6.0")},
			wantSource: "INDE 2023",
		},
		{
			name:       "2023 falls back to prior-year column",
			year:       2023,
			columns:    map[string][]frame.Value{"INDE 22": strCol("6.0")},
			wantSource: "INDE 22",
		},
		{
			name:       "2024 probes INDE 23 before INDE 22",
			year:       2024,
			columns:    map[string][]frame.Value{"INDE 23": strCol("6.5"), "INDE 22": strCol("6.0")},
			wantSource: "INDE 23",
		},
		{
			name:       "no candidate present yields NA fill",
			year:       2022,
			columns:    map[string][]frame.Value{},
			wantSource: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := frame.New(1)
			require.NoError(t, f.AddColumn("RA", strCol("1")))
			for col, values := range tt.columns {
				require.NoError(t, f.AddColumn(col, values))
			}

			out, report, err := testHarmonizer(t).HarmonizeYear(f, tt.year)
			require.NoError(t, err)

			require.True(t, out.HasColumn("INDE"))
			assert.Equal(t, tt.wantSource, report.INDESource)
			if tt.wantSource == "" {
				assert.True(t, out.AllMissing("INDE"))
			} else {
				want, _ := out.Column(tt.wantSource)
				got, _ := out.Column("INDE")
				assert.True(t, want[0].Equal(got[0]))
			}
		})
	}
}

func TestHarmonizeYearMissingSourcesAreLogged(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)

	f := frame.New(1)
	require.NoError(t, f.AddColumn("RA", strCol("1")))

	_, _, err := NewHarmonizer(logger, nil).HarmonizeYear(f, 2022)
	require.NoError(t, err)

	warns := handler.GetRecordsByLevel(slog.LevelWarn)
	require.Len(t, warns, 2)
	assert.True(t, handler.ContainsMessage("INDE source missing"))
	assert.True(t, handler.ContainsMessage("Pedra_Ano source missing"))
	assert.True(t, handler.ContainsAttr("year", int64(2022)))
}

func TestHarmonizeYearPedraAnoFallback(t *testing.T) {
	f := frame.New(2)
	require.NoError(t, f.AddColumn("RA", strCol("1", "2")))
	require.NoError(t, f.AddColumn("Pedra 21", strCol("Ametista", "Quartzo")))
	require.NoError(t, f.AddColumn("Pedra 20", strCol("Topázio", "Ágata")))

	out, report, err := testHarmonizer(t).HarmonizeYear(f, 2022)
	require.NoError(t, err)

	assert.Equal(t, "Pedra 21", report.PedraAnoSource)
	got, _ := out.Column("Pedra_Ano")
	s, ok := got[0].AsString()
	require.True(t, ok)
	assert.Equal(t, "Ametista", s)
}

func TestHarmonizeYearRejectsUnsupportedYear(t *testing.T) {
	f := frame.New(1)
	require.NoError(t, f.AddColumn("RA", strCol("1")))

	_, _, err := testHarmonizer(t).HarmonizeYear(f, 2019)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestAlignYears(t *testing.T) {
	f2022 := frame.New(2)
	require.NoError(t, f2022.AddColumn("RA", strCol("1", "2")))
	require.NoError(t, f2022.AddColumn("INDE 22", strCol("6.0", "7.0")))
	require.NoError(t, f2022.AddColumn("Pedra 22", strCol("Ametista", "Quartzo")))
	require.NoError(t, f2022.AddColumn("Matem", strCol("5.5", "8.0")))

	f2023 := frame.New(1)
	require.NoError(t, f2023.AddColumn("RA", strCol("1")))
	require.NoError(t, f2023.AddColumn("INDE 2023", strCol("6.8")))
	require.NoError(t, f2023.AddColumn("Pedra 2023", strCol("Ametista")))
	require.NoError(t, f2023.AddColumn("Ing", strCol("9.0")))

	aligned, meta, err := testHarmonizer(t).AlignYears(map[int]*frame.Frame{
		2022: f2022,
		2023: f2023,
	}, []int{2022, 2023})
	require.NoError(t, err)

	require.Len(t, aligned, 2)
	assert.Equal(t, "RA", meta.AlignedColumns[0], "RA must be pinned first")
	assert.True(t, meta.SchemaIdentical,
		"every aligned tuple matches the union ordering, so the measured verdict holds")

	for year, f := range aligned {
		assert.Equal(t, meta.AlignedColumns, f.Columns(), "year %d column order", year)
	}

	// "Ing" was absent from 2022 pre-alignment, so it is pure NA there while
	// the metadata still shows it was not an original 2022 column.
	assert.True(t, aligned[2022].AllMissing("Ing"))
	assert.NotContains(t, meta.OriginalColumns[2022], "Ing")
	assert.Contains(t, meta.OriginalColumns[2023], "Ing")

	// Mat existed in 2022 under an alias and was mapped, not padded.
	assert.Contains(t, meta.OriginalColumns[2022], "Mat")
	assert.False(t, aligned[2022].AllMissing("Mat"))

	require.Contains(t, meta.MappingReports, 2022)
	assert.Equal(t, "INDE 22", meta.MappingReports[2022].INDESource)
}

func TestEqualColumns(t *testing.T) {
	assert.True(t, equalColumns([]string{"RA", "Fase"}, []string{"RA", "Fase"}))
	assert.False(t, equalColumns([]string{"RA", "Fase"}, []string{"Fase", "RA"}), "order matters")
	assert.False(t, equalColumns([]string{"RA"}, []string{"RA", "Fase"}))
	assert.True(t, equalColumns(nil, nil))
}

func TestAlignYearsMissingYearFrame(t *testing.T) {
	_, _, err := testHarmonizer(t).AlignYears(map[int]*frame.Frame{}, []int{2022})
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}
