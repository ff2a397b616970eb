package validation

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pedeprep/internal/errors"
)

func testValidator() *FileValidator {
	return NewFileValidator(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.xlsx")
	touch(t, path)

	assert.NoError(t, testValidator().ValidateFile(path))

	err := testValidator().ValidateFile(filepath.Join(dir, "absent.xlsx"))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	err = testValidator().ValidateFile(dir)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestValidateDatasetWorkbook(t *testing.T) {
	dir := t.TempDir()

	xlsx := filepath.Join(dir, "pede.xlsx")
	touch(t, xlsx)
	assert.NoError(t, testValidator().ValidateDatasetWorkbook(xlsx))

	csv := filepath.Join(dir, "pede.csv")
	touch(t, csv)
	err := testValidator().ValidateDatasetWorkbook(csv)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
	assert.Contains(t, err.Error(), ".csv")

	lock := filepath.Join(dir, "~$pede.xlsx")
	touch(t, lock)
	err = testValidator().ValidateDatasetWorkbook(lock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock file")
}

func TestValidateContractsDirectory(t *testing.T) {
	dir := t.TempDir()

	count, err := testValidator().ValidateContractsDirectory(dir)
	require.NoError(t, err, "empty directory is valid, just counted as zero")
	assert.Zero(t, count)

	touch(t, filepath.Join(dir, "data_contract_2022.json"))
	touch(t, filepath.Join(dir, "data_contract_2023.json"))
	touch(t, filepath.Join(dir, "unrelated.json"))

	count, err = testValidator().ValidateContractsDirectory(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = testValidator().ValidateContractsDirectory(filepath.Join(dir, "absent"))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestValidateOutputDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "artifacts", "nested")
	require.NoError(t, testValidator().ValidateOutputDirectory(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = os.Stat(filepath.Join(dir, ".write_test"))
	assert.True(t, os.IsNotExist(err), "probe file is cleaned up")
}
