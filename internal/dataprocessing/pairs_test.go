package dataprocessing

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pedeprep/internal/errors"
	"pedeprep/internal/frame"
)

func testPairBuilder(t *testing.T) *PairBuilder {
	t.Helper()
	return NewPairBuilder(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMakeTarget(t *testing.T) {
	t.Run("negative lag means positive label", func(t *testing.T) {
		y, err := MakeTarget([]frame.Value{frame.Float(-1), frame.Float(0), frame.Float(2)})
		require.NoError(t, err)
		assert.Equal(t, []int{1, 0, 0}, y)
	})

	t.Run("missing values fail loudly", func(t *testing.T) {
		_, err := MakeTarget([]frame.Value{frame.Float(-1), frame.NA()})
		require.Error(t, err)
		assert.True(t, errors.IsInvariant(err))
	})

	t.Run("non-numeric values fail loudly", func(t *testing.T) {
		_, err := MakeTarget([]frame.Value{frame.String("x")})
		require.Error(t, err)
		assert.True(t, errors.IsInvariant(err))
	})
}

func buildYearT(t *testing.T) *frame.Frame {
	t.Helper()
	f := frame.New(4)
	require.NoError(t, f.AddColumn("RA", strCol("1", "2", "3", "4")))
	require.NoError(t, f.AddColumn("INDE", []frame.Value{
		frame.Float(6.0), frame.Float(7.0), frame.Float(5.5), frame.Float(8.0),
	}))
	require.NoError(t, f.AddColumn("Nome_Anon", strCol("A", "B", "C", "D")))
	f.SetColumnType("RA", frame.TypeText)
	f.SetColumnType("INDE", frame.TypeFloat)
	f.SetColumnType("Nome_Anon", frame.TypeText)
	return f
}

func buildYearT1(t *testing.T) *frame.Frame {
	t.Helper()
	f := frame.New(4)
	require.NoError(t, f.AddColumn("RA", strCol("1", "2", "3", "9")))
	require.NoError(t, f.AddColumn("Defasagem", []frame.Value{
		frame.Int(-1), frame.NA(), frame.String("token"), frame.Int(0),
	}))
	f.SetColumnType("RA", frame.TypeText)
	f.SetColumnType("Defasagem", frame.TypeInt)
	return f
}

func TestMakeTemporalPairs(t *testing.T) {
	pair, err := testPairBuilder(t).MakeTemporalPairs(buildYearT(t), buildYearT1(t), 2023, 2024)
	require.NoError(t, err)

	// RA 4 has no t+1 row, RA 2 has a missing lag, RA 3 an invalid token.
	assert.Equal(t, 3, pair.Summary.TotalPairs)
	assert.Equal(t, 1, pair.Summary.ValidPairs)
	assert.Equal(t, 1, pair.Summary.MissingCount)
	assert.Equal(t, 1, pair.Summary.InvalidCount)
	assert.InDelta(t, 1.0, pair.Summary.Prevalence, 1e-9)

	assert.Equal(t, []string{"1"}, pair.IDs)
	assert.Equal(t, []int{1}, pair.Y)
	assert.Equal(t, 1, pair.X.NumRows())

	assert.False(t, pair.X.HasColumn("RA"))
	assert.False(t, pair.X.HasColumn("__defasagem_next__"))
	assert.False(t, pair.X.HasColumn("Nome_Anon"), "PII excluded from features")
	assert.True(t, pair.X.HasColumn("INDE"))

	require.NotNil(t, pair.FeatureSplit)
	assert.Equal(t, 2023, pair.FeatureSplit.YearT)
	assert.Contains(t, pair.FeatureSplit.NumericCols, "INDE")
}

func TestMakeTemporalPairsMissingRequiredColumns(t *testing.T) {
	noRA := frame.New(1)
	require.NoError(t, noRA.AddColumn("INDE", []frame.Value{frame.Float(1)}))

	_, err := testPairBuilder(t).MakeTemporalPairs(noRA, buildYearT1(t), 2023, 2024)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
	assert.Contains(t, err.Error(), "2023")

	noLag := frame.New(1)
	require.NoError(t, noLag.AddColumn("RA", strCol("1")))
	_, err = testPairBuilder(t).MakeTemporalPairs(buildYearT(t), noLag, 2023, 2024)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
	assert.Contains(t, err.Error(), "Defasagem")
}

func TestMakeTemporalPairsDropsAllMissingLeakageSuspects(t *testing.T) {
	dfT := buildYearT(t)
	require.NoError(t, dfT.AddColumn("INDE 2024", frame.NAColumn(dfT.NumRows())))

	pair, err := testPairBuilder(t).MakeTemporalPairs(dfT, buildYearT1(t), 2023, 2024)
	require.NoError(t, err)

	assert.False(t, pair.X.HasColumn("INDE 2024"))
	assert.Equal(t, []string{"INDE 2024"}, pair.FeatureSplit.LeakageDroppedAllMissing)
}

func TestMakeTemporalPairsRejectsPopulatedLeakageColumn(t *testing.T) {
	dfT := buildYearT(t)
	require.NoError(t, dfT.AddColumn("INDE 2024", []frame.Value{
		frame.Float(1), frame.NA(), frame.NA(), frame.NA(),
	}))

	_, err := testPairBuilder(t).MakeTemporalPairs(dfT, buildYearT1(t), 2023, 2024)
	require.Error(t, err)
	assert.True(t, errors.IsInvariant(err))
	assert.Contains(t, err.Error(), "INDE 2024")
}

func TestMakeTemporalPairsAllowlistedHistoricalColumns(t *testing.T) {
	dfT := buildYearT(t)
	require.NoError(t, dfT.AddColumn("INDE 23", []frame.Value{
		frame.Float(6), frame.Float(6), frame.Float(6), frame.Float(6),
	}))
	dfT.SetColumnType("INDE 23", frame.TypeFloat)

	pair, err := testPairBuilder(t).MakeTemporalPairs(dfT, buildYearT1(t), 2023, 2024)
	require.NoError(t, err)
	assert.True(t, pair.X.HasColumn("INDE 23"), "allowlisted history stays available")
}

func TestMakeTemporalPairsCollisionSafeTargetName(t *testing.T) {
	dfT := buildYearT(t)
	require.NoError(t, dfT.AddColumn("__defasagem_next__", frame.NAColumn(dfT.NumRows())))

	pair, err := testPairBuilder(t).MakeTemporalPairs(dfT, buildYearT1(t), 2023, 2024)
	require.NoError(t, err)
	assert.False(t, pair.X.HasColumn("___defasagem_next__"))
	assert.True(t, pair.X.HasColumn("__defasagem_next__"),
		"the pre-existing column of that name is an ordinary feature")
}
