package dataprocessing

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pedeprep/internal/frame"
)

func testPipeline() *Pipeline {
	return NewPipeline(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func rawPipelineFrames(t *testing.T) map[int]*frame.Frame {
	t.Helper()

	f2022 := frame.New(2)
	require.NoError(t, f2022.AddColumn("RA", strCol("1", "2")))
	require.NoError(t, f2022.AddColumn("Matem", strCol("5,5", "7")))
	require.NoError(t, f2022.AddColumn("Gênero", strCol("MENINA", "Menino")))
	require.NoError(t, f2022.AddColumn("Idade", strCol("12", "13")))

	f2023 := frame.New(2)
	require.NoError(t, f2023.AddColumn("RA", strCol("2", "3")))
	require.NoError(t, f2023.AddColumn("Mat", strCol("6", "8")))
	require.NoError(t, f2023.AddColumn("Gênero", strCol("Feminino", "MASCULINO")))
	require.NoError(t, f2023.AddColumn("Idade", strCol("11", "12")))

	return map[int]*frame.Frame{2022: f2022, 2023: f2023}
}

func TestPipelineRun(t *testing.T) {
	raw := rawPipelineFrames(t)
	result, err := testPipeline().Run(context.Background(), raw)
	require.NoError(t, err)

	require.Len(t, result.Frames, 2)
	f2022 := result.Frames[2022]
	f2023 := result.Frames[2023]

	// Aligned schemas, id column first.
	assert.Equal(t, f2022.Columns(), f2023.Columns())
	assert.Equal(t, "RA", f2022.Columns()[0])
	assert.True(t, result.Align.SchemaIdentical)

	// The 2022 legacy label was mapped onto the canonical one.
	assert.True(t, f2022.HasColumn("Mat"))
	assert.False(t, f2022.HasColumn("Matem"))

	// Dtypes were standardized: grades are floats, ages integers.
	assert.Equal(t, frame.TypeFloat, f2022.ColumnType("Mat"))
	assert.Equal(t, frame.TypeInt, f2022.ColumnType("Idade"))
	v, err := f2022.Value("Mat", 0)
	require.NoError(t, err)
	grade, ok := v.AsFloat()
	require.True(t, ok)
	assert.InDelta(t, 5.5, grade, 1e-9)

	// Category labels were harmonized.
	v, err = f2022.Value("Gênero", 0)
	require.NoError(t, err)
	s, _ := v.AsString()
	assert.Equal(t, "Feminino", s)

	require.Contains(t, result.DtypeReports, 2022)
	require.Contains(t, result.CategoryReports, 2022)

	// Cohort overlap covers exactly the pair both years support.
	require.NotNil(t, result.Cohort)
	require.Len(t, result.Cohort.Pairs, 1)
	pair, ok := result.Cohort.Pairs["2022_2023"]
	require.True(t, ok)
	assert.Equal(t, 1, pair.Intersection)
	assert.Equal(t, 3, pair.Union)
}

func TestPipelineRunDoesNotMutateInput(t *testing.T) {
	raw := rawPipelineFrames(t)
	_, err := testPipeline().Run(context.Background(), raw)
	require.NoError(t, err)

	assert.True(t, raw[2022].HasColumn("Matem"), "raw frame keeps its original labels")
	v, err := raw[2022].Value("Matem", 0)
	require.NoError(t, err)
	s, _ := v.AsString()
	assert.Equal(t, "5,5", s, "raw cell values are untouched")
}

func TestPipelineRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testPipeline().Run(ctx, rawPipelineFrames(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipelineRunMissingIDColumn(t *testing.T) {
	f := frame.New(1)
	require.NoError(t, f.AddColumn("Idade", strCol("12")))

	_, err := testPipeline().Run(context.Background(), map[int]*frame.Frame{2022: f})
	require.Error(t, err)
}
