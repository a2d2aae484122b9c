package domain

import "time"

// ParsedRow is one data line of the occurrence file, keyed by column name.
// Values are whitespace-trimmed; absent values are empty strings, never
// missing keys. The first row of the file fixes the column set.
type ParsedRow map[string]string

// FileInput is one uploaded file delivered to the pipeline by the transport
// layer.
type FileInput struct {
	Filename string
	Content  []byte
}

// OccurrenceKey is the deduplication identity of an occurrence within one
// screening: reported name, reported nameID, and coordinates quantized to one
// decimal place. Missing coordinates are part of the identity (HasLon/HasLat),
// so a row without coordinates does not collide with a georeferenced one.
type OccurrenceKey struct {
	Name   string
	NameID string
	Lon    float64
	Lat    float64
	HasLon bool
	HasLat bool
}

// OccurrenceRecord is the canonical occurrence entity threaded through the
// pipeline. It is created by Extract, enriched in place by the resolver
// application functions, and scored in place by ScoreOccurrences. Pointer
// fields serialize as null when absent.
type OccurrenceRecord struct {
	ScientificName   string   `json:"scientificName"`
	ScientificNameID string   `json:"scientificNameID"`
	TaxonID          *int     `json:"aphiaid"`
	Phylum           string   `json:"phylum"`
	Class            string   `json:"class"`
	Rank             string   `json:"rank"`
	Longitude        *float64 `json:"decimalLongitude"`
	Latitude         *float64 `json:"decimalLatitude"`
	Density          *float64 `json:"density"`
	Suitability      *float64 `json:"suitability"`
	Score            *float64 `json:"score"`
}

// Key returns the record's deduplication identity.
func (r *OccurrenceRecord) Key() OccurrenceKey {
	k := OccurrenceKey{Name: r.ScientificName, NameID: r.ScientificNameID}
	if r.Longitude != nil {
		k.Lon = *r.Longitude
		k.HasLon = true
	}
	if r.Latitude != nil {
		k.Lat = *r.Latitude
		k.HasLat = true
	}
	return k
}

// TaxonRecord is the registry's bulk-lookup result for one reported taxon
// identifier (ID-normalization path).
type TaxonRecord struct {
	AphiaID      int
	ValidAphiaID int
	Phylum       string
	Class        string
	Rank         string
}

// TaxonMatch is the registry's exact name match for one scientific name
// (name-matching path). LSID is the synthesized canonical identifier so
// downstream code treats matched and natively-identified occurrences
// uniformly.
type TaxonMatch struct {
	AphiaID int
	LSID    string
	Phylum  string
	Class   string
	Rank    string
}

// Report is the final screening output. Stage counts mirror the pipeline
// order for auditability: raw rows, then filtered rows, then unique
// occurrences, then scored occurrences.
type Report struct {
	ScreeningID         string      `json:"screening_id"`
	OccurrenceFileFound bool        `json:"occurrence_file_found"`
	OccurrenceFilename  string      `json:"occurrence_filename,omitempty"`
	DetectedDelimiter   string      `json:"detected_delimiter,omitempty"`
	RowCount            int         `json:"row_count"`
	ColumnCount         int         `json:"column_count"`
	Columns             []string    `json:"columns,omitempty"`
	PreviewRows         []ParsedRow `json:"parsed_data,omitempty"`

	FilteredRowCount      int `json:"filtered_row_count"`
	UniqueOccurrenceCount int `json:"unique_occurrence_count"`
	ScoredCount           int `json:"scored_count"`

	NameMatchingUsed  bool `json:"name_matching_used"`
	RankFilterApplied bool `json:"rank_filter_applied"`
	NormalizedCount   int  `json:"normalized_count"`
	UnmatchedNames    int  `json:"unmatched_name_count"`

	Occurrences []*OccurrenceRecord `json:"occurrences"`
	GeneratedAt time.Time           `json:"generated_at"`
}
