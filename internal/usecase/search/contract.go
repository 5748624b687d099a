package search

import (
	"context"

	"github.com/kailas-cloud/sitesearch/internal/domain/search/collapse"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/info"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/request"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/result"
)

// Index is one local candidate source. Document ids are local to the index
// and must fit in 40 bits.
type Index interface {
	Name() string

	// Scan emits every matching document with its relevance score, at most
	// q.Limit of them, and returns the raw number of matches.
	Scan(ctx context.Context, q request.Scan, emit func(id int64, score float64)) (int64, error)

	// Describe returns the stored documents for ids, in the same order.
	// Unknown ids yield a zero Doc.
	Describe(ctx context.Context, q request.Scan, ids []int64) ([]result.Doc, error)

	// Groups returns the site lookup used while collapsing.
	Groups(ctx context.Context) collapse.GroupLookup

	// Info summarizes the index and, where supported, the terms of fields.
	Info(ctx context.Context, fields []string) (info.Index, error)
}
