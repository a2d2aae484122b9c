// Command genocc generates local development fixtures: a sample Darwin Core
// occurrence file plus matching per-taxon suitability datasets. Dataset cells
// are derived from the occurrence coordinates with the same hexagonal indexing
// the service uses, so every generated occurrence scores.
//
// Usage:
//
//	go run ./cmd/genocc -out data/fixtures -dataset-dir data/datasets -resolution 7
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/oceanbio/occurrence-screening/internal/adapter/dataset"
	"github.com/oceanbio/occurrence-screening/internal/domain"
)

// taxa are real marine species with their WoRMS identifiers, so the fixture
// also works against the live registry.
var taxa = []struct {
	name    string
	aphiaID int
	phylum  string
	lat     float64
	lon     float64
}{
	{"Thunnus albacares", 127405, "Chordata", 10.0, 120.1},
	{"Solea solea", 127160, "Chordata", 51.5, 3.5},
	{"Mytilus edulis", 140480, "Mollusca", 53.4, 5.2},
	{"Calanus finmarchicus", 104464, "Arthropoda", 62.0, -5.0},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out", "data/fixtures", "output directory for the occurrence file")
	datasetDir := flag.String("dataset-dir", "data/datasets", "output directory for parquet datasets")
	resolution := flag.Int("resolution", 7, "h3 resolution, must match H3_RESOLUTION")
	rowsPerTaxon := flag.Int("rows", 25, "occurrence rows per taxon")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(*datasetDir, 0o755); err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("scientificName,scientificNameID,phylum,decimalLongitude,decimalLatitude\n")

	for _, taxon := range taxa {
		cells := make(map[string]struct{})
		for i := 0; i < *rowsPerTaxon; i++ {
			// Jitter around the taxon's home coordinate. Quantization matches
			// the extraction step so dataset cells line up with dedup output.
			lat := domain.Round1(taxon.lat + rng.Float64()*2 - 1)
			lon := domain.Round1(taxon.lon + rng.Float64()*2 - 1)

			sb.WriteString(fmt.Sprintf("%s,urn:lsid:marinespecies.org:taxname:%d,%s,%.1f,%.1f\n",
				taxon.name, taxon.aphiaID, taxon.phylum, lon, lat))

			cell, err := domain.CellFor(lat, lon, *resolution)
			if err != nil {
				return fmt.Errorf("cell for %s: %w", taxon.name, err)
			}
			cells[cell] = struct{}{}
		}

		rows := make([]dataset.Row, 0, len(cells))
		for cell := range cells {
			rows = append(rows, dataset.Row{
				Cell:        cell,
				Density:     rng.Float64() * 10,
				Suitability: rng.Float64(),
			})
		}
		path := filepath.Join(*datasetDir, strconv.Itoa(taxon.aphiaID)+".parquet")
		if err := dataset.WriteDataset(path, rows); err != nil {
			return err
		}
		log.Printf("wrote %s: %d cells", path, len(rows))
	}

	occPath := filepath.Join(*outDir, "occurrence.csv")
	if err := os.WriteFile(occPath, []byte(sb.String()), 0o600); err != nil {
		return err
	}
	log.Printf("wrote %s: %d rows across %d taxa", occPath, *rowsPerTaxon*len(taxa), len(taxa))
	return nil
}
