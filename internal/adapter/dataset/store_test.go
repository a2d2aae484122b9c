package dataset

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbio/occurrence-screening/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStore_CellValues_Roundtrip(t *testing.T) {
	dir := t.TempDir()
	rows := []Row{
		{Cell: "871f24ac9ffffff", Density: 3.5, Suitability: 0.82},
		{Cell: "871f24ac8ffffff", Density: 1.0, Suitability: 0.4},
	}
	require.NoError(t, WriteDataset(filepath.Join(dir, "127405.parquet"), rows))

	store := NewStore(dir, testLogger())
	values, ok, err := store.CellValues(context.Background(), 127405)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, values, 2)
	assert.Equal(t, domain.CellValue{Density: 3.5, Suitability: 0.82}, values["871f24ac9ffffff"])
	assert.Equal(t, domain.CellValue{Density: 1.0, Suitability: 0.4}, values["871f24ac8ffffff"])
}

func TestStore_CellValues_MissingFile(t *testing.T) {
	store := NewStore(t.TempDir(), testLogger())
	values, ok, err := store.CellValues(context.Background(), 999999)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, values)
}

func TestStore_CellValues_MissingDirectory(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nope"), testLogger())
	_, ok, err := store.CellValues(context.Background(), 127405)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_CellValues_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "127405.parquet"), []byte("not parquet"), 0o644))

	store := NewStore(dir, testLogger())
	_, _, err := store.CellValues(context.Background(), 127405)
	require.Error(t, err)
}

func TestWriteDataset_Empty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1.parquet")
	require.NoError(t, WriteDataset(path, nil))

	store := NewStore(dir, testLogger())
	values, ok, err := store.CellValues(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, values)
}
