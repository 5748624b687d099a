package request

import (
	"fmt"
	"math"
	"slices"

	"github.com/kailas-cloud/sitesearch/internal/domain"
)

// Query parameter defaults and limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength     = 4096
	DefaultPageSize    = 10
	DefaultPerGroupCap = 1
)

// AllIndexes is the default index list meaning "every index the node serves".
var AllIndexes = []string{""}

// Filter group names usable in URL templates ({param=group}).
const (
	GroupSites       = "sites"
	GroupIndexNames  = "indexNames"
	GroupCollections = "collections"
	GroupTypes       = "types"
	GroupDates       = "dates"
	GroupExcludes    = "excludes"
)

// Filters holds the repeatable filter groups of a query.
type Filters struct {
	Sites       []string
	Types       []string
	Collections []string
	Dates       []string
	// Excludes names indexes (nodes) that must not be searched.
	Excludes []string
	// IndexNames names the indexes (nodes) to search. Nil means AllIndexes.
	IndexNames []string
}

// Params is a validated, immutable search query.
type Params struct {
	query       string
	start       int
	pageSize    int
	perGroupCap int
	filters     Filters
}

// New validates and normalizes query parameters.
// Defaults: pageSize=10. perGroupCap=0 disables collapsing.
func New(query string, start, pageSize, perGroupCap int, filters Filters) (Params, error) {
	if len(query) > MaxQueryLength {
		return Params{}, fmt.Errorf("%w: query too long (max %d chars)", domain.ErrInvalidParams, MaxQueryLength)
	}
	if start < 0 {
		return Params{}, fmt.Errorf("%w: start must be >= 0, got %d", domain.ErrInvalidParams, start)
	}
	if pageSize < 0 {
		return Params{}, fmt.Errorf("%w: page size must be >= 0, got %d", domain.ErrInvalidParams, pageSize)
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if start > math.MaxInt-pageSize {
		return Params{}, fmt.Errorf("%w: start %d plus page size %d overflows", domain.ErrInvalidParams, start, pageSize)
	}
	if perGroupCap < 0 {
		return Params{}, fmt.Errorf("%w: hits per site must be >= 0, got %d", domain.ErrInvalidParams, perGroupCap)
	}
	if len(filters.IndexNames) == 0 {
		filters.IndexNames = AllIndexes
	}

	return Params{
		query:       query,
		start:       start,
		pageSize:    pageSize,
		perGroupCap: perGroupCap,
		filters:     filters,
	}, nil
}

// Query returns the search query text.
func (p Params) Query() string { return p.query }

// Start returns the zero-based offset of the first hit of the page.
func (p Params) Start() int { return p.start }

// PageSize returns the number of hits per page.
func (p Params) PageSize() int { return p.pageSize }

// PerGroupCap returns the maximum hits per group (0 = unlimited).
func (p Params) PerGroupCap() int { return p.perGroupCap }

// Filters returns the filter groups. Callers must not modify the slices.
func (p Params) Filters() Filters { return p.filters }

// End returns start+pageSize, the exclusive upper bound of the page.
func (p Params) End() int { return p.start + p.pageSize }

// AllIndexes reports whether the query targets every index.
func (p Params) AllIndexes() bool {
	return slices.Equal(p.filters.IndexNames, AllIndexes)
}

// Group returns the values of a named filter group and whether the name is known.
func (p Params) Group(name string) ([]string, bool) {
	switch name {
	case GroupSites:
		return p.filters.Sites, true
	case GroupIndexNames:
		return p.filters.IndexNames, true
	case GroupCollections:
		return p.filters.Collections, true
	case GroupTypes:
		return p.filters.Types, true
	case GroupDates:
		return p.filters.Dates, true
	case GroupExcludes:
		return p.filters.Excludes, true
	default:
		return nil, false
	}
}

// ForRemote derives the parameters sent to each remote node of a federation:
// start at 0 and ask for enough hits to cover the merged window.
func (p Params) ForRemote() Params {
	rp := p
	rp.start = 0
	rp.pageSize = p.start + p.pageSize
	return rp
}

// WithWindow returns a copy with a different start and page size.
// The page size is clamped so that End never overflows.
func (p Params) WithWindow(start, pageSize int) Params {
	cp := p
	cp.start = max(start, 0)
	if pageSize > 0 {
		cp.pageSize = pageSize
	}
	cp.pageSize = min(cp.pageSize, math.MaxInt-cp.start)
	return cp
}

// WithIndexNames returns a copy targeting the given indexes.
func (p Params) WithIndexNames(names []string) Params {
	cp := p
	cp.filters.IndexNames = names
	return cp
}
