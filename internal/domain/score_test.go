package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testResolution = 7

// stubStore answers CellValues from an in-memory map of taxonID -> cells.
type stubStore struct {
	datasets map[int]map[string]CellValue
	err      error
	calls    int
}

func (s *stubStore) CellValues(_ context.Context, taxonID int) (map[string]CellValue, bool, error) {
	s.calls++
	if s.err != nil {
		return nil, true, s.err
	}
	cells, ok := s.datasets[taxonID]
	return cells, ok, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func georeferenced(taxonID int, lat, lon float64) *OccurrenceRecord {
	return &OccurrenceRecord{TaxonID: &taxonID, Latitude: &lat, Longitude: &lon}
}

func TestCellFor_Deterministic(t *testing.T) {
	a, err := CellFor(10.0, 120.0, testResolution)
	require.NoError(t, err)
	b, err := CellFor(10.0, 120.0, testResolution)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEmpty(t, a)
}

func TestCellFor_InvalidResolution(t *testing.T) {
	_, err := CellFor(10.0, 120.0, 16)
	require.Error(t, err)
}

func TestScoreOccurrences(t *testing.T) {
	ctx := context.Background()

	t.Run("hit populates all three fields, score equals suitability", func(t *testing.T) {
		cell, err := CellFor(10.0, 120.0, testResolution)
		require.NoError(t, err)
		store := &stubStore{datasets: map[int]map[string]CellValue{
			127405: {cell: {Density: 3.5, Suitability: 0.82}},
		}}
		rec := georeferenced(127405, 10.0, 120.0)

		stats, err := ScoreOccurrences(ctx, []*OccurrenceRecord{rec}, store, testResolution, nil, false, discardLogger())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Scored)
		require.NotNil(t, rec.Density)
		require.NotNil(t, rec.Suitability)
		require.NotNil(t, rec.Score)
		assert.Equal(t, 3.5, *rec.Density)
		assert.Equal(t, 0.82, *rec.Suitability)
		assert.Equal(t, 0.82, *rec.Score)
	})

	t.Run("cell absent from dataset leaves fields null", func(t *testing.T) {
		store := &stubStore{datasets: map[int]map[string]CellValue{
			127405: {"891f1d48d4bffff": {Density: 1, Suitability: 1}},
		}}
		rec := georeferenced(127405, -40.0, 5.0)

		stats, err := ScoreOccurrences(ctx, []*OccurrenceRecord{rec}, store, testResolution, nil, false, discardLogger())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.CellMiss)
		assert.Nil(t, rec.Density)
		assert.Nil(t, rec.Suitability)
		assert.Nil(t, rec.Score)
	})

	t.Run("no dataset for taxon is not an error", func(t *testing.T) {
		store := &stubStore{datasets: map[int]map[string]CellValue{}}
		rec := georeferenced(555, 10.0, 120.0)

		stats, err := ScoreOccurrences(ctx, []*OccurrenceRecord{rec}, store, testResolution, nil, false, discardLogger())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.NoDataset)
		assert.Nil(t, rec.Score)
	})

	t.Run("missing identifier or coordinates scored as null", func(t *testing.T) {
		lat := 10.0
		store := &stubStore{datasets: map[int]map[string]CellValue{}}
		recs := []*OccurrenceRecord{
			{Latitude: &lat},                // no taxon, no lon
			georeferenced(127405, 10, 120),  // fine shape, no dataset
			{ScientificName: "unresolved"},  // nothing at all
		}
		stats, err := ScoreOccurrences(ctx, recs, store, testResolution, nil, false, discardLogger())
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Unidentified)
		for _, rec := range recs {
			assert.Nil(t, rec.Score)
		}
	})

	t.Run("lenient mode absorbs store failure", func(t *testing.T) {
		store := &stubStore{err: errors.New("corrupt parquet footer")}
		rec := georeferenced(127405, 10.0, 120.0)

		stats, err := ScoreOccurrences(ctx, []*OccurrenceRecord{rec}, store, testResolution, nil, false, discardLogger())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Failures)
		assert.Nil(t, rec.Score)
	})

	t.Run("strict mode aborts on store failure", func(t *testing.T) {
		store := &stubStore{err: errors.New("corrupt parquet footer")}
		rec := georeferenced(127405, 10.0, 120.0)

		_, err := ScoreOccurrences(ctx, []*OccurrenceRecord{rec}, store, testResolution, nil, true, discardLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "127405")
	})

	t.Run("dataset read once per taxon", func(t *testing.T) {
		cell, err := CellFor(10.0, 120.0, testResolution)
		require.NoError(t, err)
		store := &stubStore{datasets: map[int]map[string]CellValue{
			127405: {cell: {Density: 1, Suitability: 0.5}},
		}}
		recs := []*OccurrenceRecord{
			georeferenced(127405, 10.0, 120.0),
			georeferenced(127405, 10.1, 120.1),
			georeferenced(127405, 10.2, 120.2),
		}
		_, err = ScoreOccurrences(ctx, recs, store, testResolution, nil, false, discardLogger())
		require.NoError(t, err)
		assert.Equal(t, 1, store.calls)
	})

	t.Run("custom score function", func(t *testing.T) {
		cell, err := CellFor(10.0, 120.0, testResolution)
		require.NoError(t, err)
		store := &stubStore{datasets: map[int]map[string]CellValue{
			127405: {cell: {Density: 2, Suitability: 0.5}},
		}}
		rec := georeferenced(127405, 10.0, 120.0)
		weighted := func(density, suitability float64) float64 { return density * suitability }

		_, err = ScoreOccurrences(ctx, []*OccurrenceRecord{rec}, store, testResolution, weighted, false, discardLogger())
		require.NoError(t, err)
		require.NotNil(t, rec.Score)
		assert.Equal(t, 1.0, *rec.Score)
	})
}
