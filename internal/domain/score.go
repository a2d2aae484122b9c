package domain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uber/h3-go/v4"
)

// CellValue holds the precomputed model outputs for one hexagonal cell of a
// per-taxon distribution dataset.
type CellValue struct {
	Density     float64
	Suitability float64
}

// DatasetStore answers suitability lookups for one taxon. The second return
// reports whether a dataset exists for the taxon at all; absence of a model
// is not an error.
type DatasetStore interface {
	CellValues(ctx context.Context, taxonID int) (map[string]CellValue, bool, error)
}

// ScoreFunc derives the final score from a cell's model outputs. Swappable
// independent of the lookup mechanism.
type ScoreFunc func(density, suitability float64) float64

// DefaultScore returns suitability unchanged. Placeholder until a combined
// density/suitability formula is agreed with the modeling group.
func DefaultScore(_, suitability float64) float64 { return suitability }

// CellFor maps a coordinate pair to its H3 cell index string at the given
// resolution. The string form is the join key into per-taxon datasets.
func CellFor(lat, lon float64, resolution int) (string, error) {
	cell, err := h3.LatLngToCell(h3.NewLatLng(lat, lon), resolution)
	if err != nil {
		return "", fmt.Errorf("h3 cell for (%g, %g): %w", lat, lon, err)
	}
	return cell.String(), nil
}

// ScoreStats aggregates scoring outcomes for the report and metrics.
type ScoreStats struct {
	Scored       int // all three fields populated
	NoDataset    int // taxon has no distribution dataset
	CellMiss     int // coordinate outside the modeled grid
	Unidentified int // missing taxon identifier or coordinates
	Failures     int // store failures absorbed in lenient mode
}

// ScoreOccurrences populates density, suitability, and score in place.
// Occurrences missing an identifier or coordinates keep null fields without
// being flagged as errors. Each taxon's dataset is read once and all of that
// taxon's occurrences are answered from it.
//
// A store failure for one taxon is local: in lenient mode (strict=false) it
// is logged and the affected occurrences keep null fields; in strict mode it
// aborts scoring. The policy belongs to the caller, not this function's
// internals.
func ScoreOccurrences(ctx context.Context, records []*OccurrenceRecord, store DatasetStore, resolution int, scoreFn ScoreFunc, strict bool, logger *slog.Logger) (ScoreStats, error) {
	if scoreFn == nil {
		scoreFn = DefaultScore
	}

	var stats ScoreStats
	byTaxon := make(map[int][]*OccurrenceRecord)
	for _, rec := range records {
		if rec.TaxonID == nil || rec.Longitude == nil || rec.Latitude == nil {
			stats.Unidentified++
			continue
		}
		byTaxon[*rec.TaxonID] = append(byTaxon[*rec.TaxonID], rec)
	}

	for taxonID, recs := range byTaxon {
		cells, exists, err := store.CellValues(ctx, taxonID)
		if err != nil {
			if strict {
				return stats, fmt.Errorf("dataset lookup for taxon %d: %w", taxonID, err)
			}
			logger.Warn("dataset lookup failed, leaving occurrences unscored",
				"taxon_id", taxonID,
				"occurrences", len(recs),
				"error", err,
			)
			stats.Failures += len(recs)
			continue
		}
		if !exists {
			stats.NoDataset += len(recs)
			continue
		}

		for _, rec := range recs {
			cell, err := CellFor(*rec.Latitude, *rec.Longitude, resolution)
			if err != nil {
				if strict {
					return stats, err
				}
				logger.Warn("cell derivation failed", "taxon_id", taxonID, "error", err)
				stats.Failures++
				continue
			}
			cv, ok := cells[cell]
			if !ok {
				stats.CellMiss++
				continue
			}
			density := cv.Density
			suitability := cv.Suitability
			score := scoreFn(density, suitability)
			rec.Density = &density
			rec.Suitability = &suitability
			rec.Score = &score
			stats.Scored++
		}
	}

	return stats, nil
}
