package domain

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Column names this package recognizes in Darwin Core exports.
const (
	ColScientificName   = "scientificName"
	ColScientificNameID = "scientificNameID"
	ColLongitude        = "decimalLongitude"
	ColLatitude         = "decimalLatitude"
	ColTaxonRank        = "taxonRank"
	ColPhylum           = "phylum"
)

// taxonIDSuffixRe extracts the trailing run of digits from an LSID, e.g.
// "urn:lsid:marinespecies.org:taxname:127405" -> "127405".
var taxonIDSuffixRe = regexp.MustCompile(`(\d+)$`)

// SchemaError reports mandatory columns missing from the occurrence file.
// It is fatal to the screening request.
type SchemaError struct {
	Missing []string
	Found   []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required columns: %v (found columns: %v)", e.Missing, e.Found)
}

// mandatoryColumns are required for extraction. scientificNameID is optional;
// its absence selects the name-matching resolution path.
var mandatoryColumns = []string{ColScientificName, ColLongitude, ColLatitude}

// ValidateSchema checks the first row's column set for the mandatory columns.
// Returns a *SchemaError listing every missing column, or nil.
func ValidateSchema(rows []ParsedRow) error {
	if len(rows) == 0 {
		return nil
	}
	first := rows[0]
	var missing []string
	for _, col := range mandatoryColumns {
		if _, ok := first[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	found := make([]string, 0, len(first))
	for k := range first {
		found = append(found, k)
	}
	sort.Strings(found)
	return &SchemaError{Missing: missing, Found: found}
}

// HasColumn reports whether the file's schema (first row) contains col.
func HasColumn(rows []ParsedRow, col string) bool {
	if len(rows) == 0 {
		return false
	}
	_, ok := rows[0][col]
	return ok
}

// FilterSpeciesRank keeps rows whose taxonRank value case-insensitively
// equals "species". Callers only invoke this when the column exists.
func FilterSpeciesRank(rows []ParsedRow) []ParsedRow {
	filtered := make([]ParsedRow, 0, len(rows))
	for _, row := range rows {
		if strings.EqualFold(strings.TrimSpace(row[ColTaxonRank]), "species") {
			filtered = append(filtered, row)
		}
	}
	return filtered
}

// Extract builds unique occurrence records from filtered rows, failing with a
// *SchemaError when mandatory columns are missing.
//
// nameMatches is the name-matching enrichment source (may be nil): when a
// row's scientific name has an exact registry match, the record's identity
// fields are filled from it. Unmatched names leave identity fields empty.
//
// Rows with the same (name, nameID, rounded lon, rounded lat) collapse into
// one record; the first row wins. Non-numeric or empty coordinates resolve to
// absent, not an error, since identity normalization is still valuable without
// geocoordinates.
func Extract(rows []ParsedRow, nameMatches map[string]TaxonMatch) ([]*OccurrenceRecord, error) {
	if err := ValidateSchema(rows); err != nil {
		return nil, err
	}

	seen := make(map[OccurrenceKey]struct{}, len(rows))
	records := make([]*OccurrenceRecord, 0, len(rows))

	for _, row := range rows {
		rec := &OccurrenceRecord{
			ScientificName:   strings.TrimSpace(row[ColScientificName]),
			ScientificNameID: strings.TrimSpace(row[ColScientificNameID]),
			Phylum:           strings.TrimSpace(row[ColPhylum]),
			Longitude:        parseCoordinate(row[ColLongitude]),
			Latitude:         parseCoordinate(row[ColLatitude]),
		}
		rec.TaxonID = TaxonIDFromLSID(rec.ScientificNameID)

		if m, ok := nameMatches[rec.ScientificName]; ok && rec.ScientificNameID == "" {
			id := m.AphiaID
			rec.ScientificNameID = m.LSID
			rec.TaxonID = &id
			if rec.Phylum == "" {
				rec.Phylum = m.Phylum
			}
			rec.Class = m.Class
			rec.Rank = m.Rank
		}

		key := rec.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		records = append(records, rec)
	}

	return records, nil
}

// TaxonIDFromLSID extracts the trailing numeric suffix of an LSID. Returns
// nil when the string is empty or carries no digit suffix.
func TaxonIDFromLSID(lsid string) *int {
	if lsid == "" {
		return nil
	}
	m := taxonIDSuffixRe.FindString(lsid)
	if m == "" {
		return nil
	}
	id, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &id
}

// Round1 quantizes a coordinate to one decimal place. Idempotent: rounding an
// already-rounded value yields the same value.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// parseCoordinate parses and quantizes a coordinate string. Empty or
// non-numeric values resolve to absent.
func parseCoordinate(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	r := Round1(v)
	return &r
}

// DistinctNames returns the sorted set of non-empty scientific names in rows.
// Used to build name-matching batches before extraction.
func DistinctNames(rows []ParsedRow) []string {
	set := make(map[string]struct{})
	for _, row := range rows {
		name := strings.TrimSpace(row[ColScientificName])
		if name != "" {
			set[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DistinctTaxonIDs returns the sorted set of taxon identifiers present in
// records. Used to build ID-normalization batches.
func DistinctTaxonIDs(records []*OccurrenceRecord) []int {
	set := make(map[int]struct{})
	for _, rec := range records {
		if rec.TaxonID != nil {
			set[*rec.TaxonID] = struct{}{}
		}
	}
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// FilterConfirmedSpecies drops records whose rank is known and is not
// "species". Records with no rank (enrichment gap) are kept: degraded
// resolution never drops data. Applied post-resolution when the source file
// had no taxonRank column.
func FilterConfirmedSpecies(records []*OccurrenceRecord) []*OccurrenceRecord {
	kept := make([]*OccurrenceRecord, 0, len(records))
	for _, rec := range records {
		if rec.Rank == "" || strings.EqualFold(rec.Rank, "species") {
			kept = append(kept, rec)
		}
	}
	return kept
}
