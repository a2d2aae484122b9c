package domain

import "context"

// Resolver reconciles locally reported taxon identity with an authoritative
// external registry. Both methods tolerate partial failure: a failed batch is
// simply absent from the result map, never an error. Implementations return a
// non-nil error only when the context is cancelled.
type Resolver interface {
	// NormalizeIDs resolves reported taxon identifiers to their registry
	// records, keyed by the reported (not the valid) identifier.
	NormalizeIDs(ctx context.Context, ids []int) (map[int]TaxonRecord, error)

	// MatchNames resolves scientific names to exact registry matches, keyed
	// by the input name. Names without an exact match have no entry.
	MatchNames(ctx context.Context, names []string) (map[string]TaxonMatch, error)
}

// ApplyTaxonRecords mutates records in place with registry lookup results:
// the taxon identifier is replaced with the valid identifier, phylum and
// class are filled only when currently empty, and the rank is attached.
// Records whose identifier has no entry are left untouched. Returns the
// number of records enriched.
func ApplyTaxonRecords(records []*OccurrenceRecord, lookup map[int]TaxonRecord) int {
	if len(lookup) == 0 {
		return 0
	}
	applied := 0
	for _, rec := range records {
		if rec.TaxonID == nil {
			continue
		}
		tr, ok := lookup[*rec.TaxonID]
		if !ok {
			continue
		}
		valid := tr.ValidAphiaID
		if valid == 0 {
			valid = tr.AphiaID
		}
		rec.TaxonID = &valid
		if rec.Phylum == "" {
			rec.Phylum = tr.Phylum
		}
		if rec.Class == "" {
			rec.Class = tr.Class
		}
		rec.Rank = tr.Rank
		applied++
	}
	return applied
}
