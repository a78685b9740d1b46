package harness

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSink_AppendAndRows(t *testing.T) {
	s := NewSink(2)
	require.NoError(t, s.Append(MeasurementRow{Processed: 1}))
	require.NoError(t, s.Append(MeasurementRow{Processed: 2}))

	rows := s.Rows()
	require.Len(t, rows, 2)
	rows[0].Processed = 99
	assert.Equal(t, 1, s.Rows()[0].Processed, "Rows must return a copy")
	assert.Equal(t, 2, s.Len())
}

func TestSink_Persist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.csv")

	s := NewSink(0)
	require.NoError(t, s.Append(MeasurementRow{Processed: 100, MemoryUsageGB: 0.1234567, ElapsedSecs: 1.5}))
	require.NoError(t, s.Append(MeasurementRow{Processed: 200, MemoryUsageGB: 0.2, ElapsedSecs: 3}))
	require.NoError(t, s.Persist(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "processed,memory_usage_gb,elapsed_secs\n"+
		"100,0.123457,1.500000\n"+
		"200,0.200000,3.000000\n", string(b))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp file left behind")
}

func TestSink_SealedAfterPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.csv")
	s := NewSink(0)
	require.NoError(t, s.Append(MeasurementRow{Processed: 1}))
	require.NoError(t, s.Persist(path))

	assert.ErrorIs(t, s.Append(MeasurementRow{Processed: 2}), ErrSealed)
	assert.ErrorIs(t, s.Persist(path), ErrSealed)
	assert.Equal(t, 1, s.Len())
}

func TestSink_PersistMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "memory.csv")
	s := NewSink(0)
	err := s.Persist(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFilesystem))
	assert.NoFileExists(t, path)

	// A failed persist does not seal the sink.
	require.NoError(t, s.Append(MeasurementRow{Processed: 1}))
}

func TestRemoveStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.csv")
	require.NoError(t, RemoveStale(path))

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, RemoveStale(path))
	assert.NoFileExists(t, path)
}

func TestReadCSV(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader("processed,memory_usage_gb,elapsed_secs\n10,0.5,0.25\n20,0.75,0.5\n"))
	require.NoError(t, err)
	assert.Equal(t, []MeasurementRow{
		{Processed: 10, MemoryUsageGB: 0.5, ElapsedSecs: 0.25},
		{Processed: 20, MemoryUsageGB: 0.75, ElapsedSecs: 0.5},
	}, rows)

	_, err = ReadCSV(strings.NewReader("index,processed,memory\n"))
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("processed,memory_usage_gb,elapsed_secs\nx,1,1\n"))
	assert.ErrorContains(t, err, "line 2")
}
