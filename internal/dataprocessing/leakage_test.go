package dataprocessing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pedeprep/internal/errors"
	"pedeprep/internal/frame"
)

func frameWithColumns(t *testing.T, columns ...string) *frame.Frame {
	t.Helper()
	f := frame.New(1)
	for _, col := range columns {
		require.NoError(t, f.AddColumn(col, strCol("x")))
	}
	return f
}

func TestBuildBlacklistPatterns(t *testing.T) {
	base := BuildBlacklistPatterns(0, false)
	assert.Len(t, base, 4)

	withYear := BuildBlacklistPatterns(2024, true)
	assert.Len(t, withYear, 8)
	assert.Contains(t, withYear, `^INDE\s*2024$`)
	assert.Contains(t, withYear, `^Pedra\s*2024$`)

	// Year-specific patterns only appear when enabled.
	assert.NotContains(t, base, `^INDE\s*2024$`)
}

func TestDetectLeakageColumns(t *testing.T) {
	tests := []struct {
		name         string
		columns      []string
		opts         LeakageOptions
		wantSuspects []string
	}{
		{
			name:         "merge suffixes flagged",
			columns:      []string{"RA", "Defasagem_x", "Mat_y", "INDE"},
			opts:         LeakageOptions{YearT: 2022, YearT1: 2023},
			wantSuspects: []string{"Defasagem_x", "Mat_y"},
		},
		{
			name:         "target markers flagged case-insensitively",
			columns:      []string{"TARGET", "label_final", "Mat"},
			opts:         LeakageOptions{},
			wantSuspects: []string{"TARGET", "label_final"},
		},
		{
			name:         "next year markers flagged",
			columns:      []string{"defasagem_t+1", "ano_seguinte_flag", "Por"},
			opts:         LeakageOptions{},
			wantSuspects: []string{"ano_seguinte_flag", "defasagem_t+1"},
		},
		{
			name:         "year specific flags next-year literal",
			columns:      []string{"INDE 2024", "Pedra 2024", "INDE"},
			opts:         LeakageOptions{YearT: 2023, YearT1: 2024, IncludeYearSpecific: true},
			wantSuspects: []string{"INDE 2024", "Pedra 2024"},
		},
		{
			name:         "year specific disabled leaves literal alone",
			columns:      []string{"INDE 2024", "INDE"},
			opts:         LeakageOptions{YearT: 2023, YearT1: 2024},
			wantSuspects: nil,
		},
		{
			name:    "allowlist wins over year specific",
			columns: []string{"INDE 23", "INDE 2024"},
			opts: LeakageOptions{
				YearT: 2023, YearT1: 2024,
				IncludeYearSpecific: true,
				Allowlist:           DefaultAllowlist,
			},
			wantSuspects: []string{"INDE 2024"},
		},
		{
			name:         "extra blacklist extends the scan",
			columns:      []string{"nota_futura", "Mat"},
			opts:         LeakageOptions{ExtraBlacklist: []string{`futura`}},
			wantSuspects: []string{"nota_futura"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := DetectLeakageColumns(frameWithColumns(t, tt.columns...), tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuspects, report.SuspectColumns)
			assert.Equal(t, len(tt.wantSuspects), report.NSuspect)
			assert.Equal(t, len(tt.columns), report.NColumns)
		})
	}
}

func TestAssertNoLeakage(t *testing.T) {
	clean := frameWithColumns(t, "RA", "Mat", "INDE")
	assert.NoError(t, AssertNoLeakage(clean, LeakageOptions{YearT: 2022, YearT1: 2023}))

	dirty := frameWithColumns(t, "RA", "Defasagem_y")
	err := AssertNoLeakage(dirty, LeakageOptions{YearT: 2022, YearT1: 2023})
	require.Error(t, err)
	assert.True(t, errors.IsInvariant(err))
	assert.Contains(t, err.Error(), "2022->2023")
	assert.Contains(t, err.Error(), "Defasagem_y")
}

func TestDetectLeakageColumnsBadExtraPattern(t *testing.T) {
	_, err := DetectLeakageColumns(frameWithColumns(t, "RA"), LeakageOptions{
		ExtraBlacklist: []string{`([`},
	})
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}
