// Package dataset reads per-taxon suitability datasets stored as Parquet
// files on local disk. Each file is named <AphiaID>.parquet and carries one
// row per hexagonal cell with the columns h3, density and suitability.
package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/parquet"
	"github.com/apache/arrow/go/v18/parquet/file"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"

	"github.com/oceanbio/occurrence-screening/internal/domain"
)

const (
	colCell        = "h3"
	colDensity     = "density"
	colSuitability = "suitability"
)

// Store implements domain.DatasetStore over a directory of Parquet files.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a dataset store rooted at dir. The directory does not have
// to exist; a missing directory simply means no taxon has a dataset.
func NewStore(dir string, logger *slog.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

// CellValues loads the full cell table for a taxon. ok is false when the
// taxon has no dataset file, which is not an error. A file that exists but
// cannot be read or lacks the expected columns returns an error.
func (s *Store) CellValues(ctx context.Context, taxonID int) (map[string]domain.CellValue, bool, error) {
	path := filepath.Join(s.dir, strconv.Itoa(taxonID)+".parquet")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("stat dataset %s: %w", path, err)
	}

	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, false, fmt.Errorf("open dataset %s: %w", path, err)
	}
	defer rdr.Close()

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, false, fmt.Errorf("read dataset %s: %w", path, err)
	}
	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("read dataset %s: %w", path, err)
	}
	defer tbl.Release()

	cells, err := stringColumn(tbl, colCell)
	if err != nil {
		return nil, false, fmt.Errorf("dataset %s: %w", path, err)
	}
	density, err := floatColumn(tbl, colDensity)
	if err != nil {
		return nil, false, fmt.Errorf("dataset %s: %w", path, err)
	}
	suitability, err := floatColumn(tbl, colSuitability)
	if err != nil {
		return nil, false, fmt.Errorf("dataset %s: %w", path, err)
	}
	if len(density) != len(cells) || len(suitability) != len(cells) {
		return nil, false, fmt.Errorf("dataset %s: column lengths differ", path)
	}

	values := make(map[string]domain.CellValue, len(cells))
	for i, cell := range cells {
		values[cell] = domain.CellValue{
			Density:     density[i],
			Suitability: suitability[i],
		}
	}
	s.logger.Debug("dataset loaded", "taxon_id", taxonID, "cells", len(values))
	return values, true, nil
}

func stringColumn(tbl arrow.Table, name string) ([]string, error) {
	indices := tbl.Schema().FieldIndices(name)
	if len(indices) == 0 {
		return nil, fmt.Errorf("missing column %q", name)
	}
	var out []string
	for _, chunk := range tbl.Column(indices[0]).Data().Chunks() {
		col, ok := chunk.(*array.String)
		if !ok {
			return nil, fmt.Errorf("column %q is not a string column", name)
		}
		for i := 0; i < col.Len(); i++ {
			out = append(out, col.Value(i))
		}
	}
	return out, nil
}

func floatColumn(tbl arrow.Table, name string) ([]float64, error) {
	indices := tbl.Schema().FieldIndices(name)
	if len(indices) == 0 {
		return nil, fmt.Errorf("missing column %q", name)
	}
	var out []float64
	for _, chunk := range tbl.Column(indices[0]).Data().Chunks() {
		col, ok := chunk.(*array.Float64)
		if !ok {
			return nil, fmt.Errorf("column %q is not a float64 column", name)
		}
		for i := 0; i < col.Len(); i++ {
			out = append(out, col.Value(i))
		}
	}
	return out, nil
}

// Row is one cell entry of a dataset file.
type Row struct {
	Cell        string
	Density     float64
	Suitability float64
}

// WriteDataset writes rows as a Parquet dataset file. Used by the fixture
// generator and by tests.
func WriteDataset(path string, rows []Row) error {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: colCell, Type: arrow.BinaryTypes.String},
		{Name: colDensity, Type: arrow.PrimitiveTypes.Float64},
		{Name: colSuitability, Type: arrow.PrimitiveTypes.Float64},
	}, nil)

	builder := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer builder.Release()

	cellBuilder := builder.Field(0).(*array.StringBuilder)
	densityBuilder := builder.Field(1).(*array.Float64Builder)
	suitabilityBuilder := builder.Field(2).(*array.Float64Builder)
	for _, row := range rows {
		cellBuilder.Append(row.Cell)
		densityBuilder.Append(row.Density)
		suitabilityBuilder.Append(row.Suitability)
	}

	rec := builder.NewRecord()
	defer rec.Release()
	tbl := array.NewTableFromRecords(schema, []arrow.Record{rec})
	defer tbl.Release()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dataset %s: %w", path, err)
	}
	defer f.Close()

	chunkSize := tbl.NumRows()
	if chunkSize == 0 {
		chunkSize = 1
	}
	if err := pqarrow.WriteTable(tbl, f, chunkSize, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps()); err != nil {
		return fmt.Errorf("write dataset %s: %w", path, err)
	}
	return nil
}
