// Package domain models Darwin Core species occurrence records and their
// screening lifecycle: extraction, taxonomic normalization, and suitability
// scoring.
//
// # Data Source
//
// Occurrence files are Darwin Core-style tabular exports (comma- or
// tab-separated) as produced by OBIS/GBIF download tools. The columns this
// package cares about:
//
//	scientificName    binomial name as reported, e.g. "Thunnus albacares"
//	scientificNameID  LSID carrying the taxon identifier (optional column)
//	decimalLongitude  WGS-84 longitude in decimal degrees
//	decimalLatitude   WGS-84 latitude in decimal degrees
//	taxonRank         reported rank, e.g. "Species" (optional column)
//	phylum            reported phylum (optional column, passed through)
//
// # LSID Convention
//
// A scientificNameID is a Life Science Identifier URN whose trailing run of
// digits is the numeric taxon identifier (WoRMS AphiaID):
//
//	"urn:lsid:marinespecies.org:taxname:127405"  →  AphiaID 127405
//
// IDs extracted locally may be synonyms; the registry maps them to the
// currently accepted ("valid") AphiaID. See [ApplyTaxonRecords].
//
// # Deduplication Granularity
//
// Coordinates are quantized to one decimal place (~11 km at the equator)
// before dedup key formation. Two rows for the same name and nameID whose
// coordinates round to the same point collapse into one occurrence. This is a
// deliberate trade of geospatial precision for duplicate collapsing across
// near-identical reported coordinates; first row wins.
//
// # Rank Filtering
//
// Screening only keeps species-level occurrences. When the source file has a
// taxonRank column, rows are filtered before extraction (case-insensitive
// match on "species"). When the column is absent, all rows are provisionally
// accepted and a post-resolution filter drops occurrences whose
// registry-reported rank is known and is not "species". Occurrences with no
// known rank survive the filter: enrichment gaps degrade, they never drop
// data.
//
// # Suitability Scoring
//
// Each occurrence with a taxon identifier and both coordinates is mapped to a
// fixed-resolution H3 hexagonal cell, which joins against a precomputed
// per-taxon distribution dataset yielding (density, suitability). The score
// is derived by a swappable [ScoreFunc]; the default returns suitability
// unchanged. Missing dataset, missing cell, missing identifier, or missing
// coordinates all leave the three score fields null. Null means "not
// modeled", which is distinct from a modeled zero.
package domain
