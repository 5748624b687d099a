package request

// DefaultScanLimit bounds the candidates one index emits per query.
const DefaultScanLimit = 10000

// Scan is what a candidate source needs to enumerate matching documents.
// Only the Sites, Types, Collections and Dates filter groups apply to a scan.
type Scan struct {
	Query   string
	Filters Filters
	// Limit caps the number of emitted candidates. 0 means DefaultScanLimit.
	Limit int
}

// Scan derives the candidate scan for p.
func (p Params) Scan(limit int) Scan {
	if limit <= 0 {
		limit = DefaultScanLimit
	}
	return Scan{
		Query: p.query,
		Filters: Filters{
			Sites:       p.filters.Sites,
			Types:       p.filters.Types,
			Collections: p.filters.Collections,
			Dates:       p.filters.Dates,
		},
		Limit: limit,
	}
}
