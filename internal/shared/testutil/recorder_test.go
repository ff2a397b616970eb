package testutil

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCapturesLevelsAndAttrs(t *testing.T) {
	logger, rec := NewTestLogger(t)

	logger.Info("workbook loaded", slog.Int("year", 2022), slog.String("sheet", "PEDE2022"))
	logger.Warn("INDE source missing", slog.Int("year", 2022))
	logger.Debug("cell coerced")

	require.Len(t, rec.Records(), 3, "debug records are captured too")
	assert.Len(t, rec.GetRecordsByLevel(slog.LevelWarn), 1)

	assert.True(t, rec.ContainsMessage("INDE source missing"))
	assert.False(t, rec.ContainsMessage("Pedra_Ano source missing"))

	assert.True(t, rec.ContainsAttr("sheet", "PEDE2022"))
	assert.True(t, rec.ContainsAttr("year", int64(2022)), "slog widens int attrs to int64")
	assert.False(t, rec.ContainsAttr("year", int64(2023)))
}

func TestRecorderRecordsReturnsCopy(t *testing.T) {
	logger, rec := NewTestLogger(t)
	logger.Info("first")

	snapshot := rec.Records()
	logger.Info("second")

	assert.Len(t, snapshot, 1)
	assert.Len(t, rec.Records(), 2)
}

func TestRecorderConcurrentHandle(t *testing.T) {
	logger, rec := NewTestLogger(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(year int) {
			defer wg.Done()
			logger.Info("year standardized", slog.Int("year", year))
		}(2022 + i%3)
	}
	wg.Wait()

	assert.Len(t, rec.Records(), 8)
	assert.True(t, rec.ContainsAttr("year", int64(2023)))
}
