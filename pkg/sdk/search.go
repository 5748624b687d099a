package sitesearch

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/sitesearch/internal/domain/search/page"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/request"
)

// SearchOption refines a query.
type SearchOption func(*searchConfig)

type searchConfig struct {
	start       int
	pageSize    int
	hitsPerSite int
	filters     request.Filters
}

// Start sets the zero-based offset of the first hit. Default: 0.
func Start(n int) SearchOption {
	return func(c *searchConfig) { c.start = n }
}

// PageSize sets the number of hits per page. Default: 10.
func PageSize(n int) SearchOption {
	return func(c *searchConfig) { c.pageSize = n }
}

// HitsPerSite caps the hits kept per site. 0 disables collapsing. Default: 1.
func HitsPerSite(n int) SearchOption {
	return func(c *searchConfig) { c.hitsPerSite = n }
}

// Sites restricts the query to the given sites.
func Sites(sites ...string) SearchOption {
	return func(c *searchConfig) { c.filters.Sites = append(c.filters.Sites, sites...) }
}

// Indexes restricts the query to the named remote indexes.
func Indexes(names ...string) SearchOption {
	return func(c *searchConfig) { c.filters.IndexNames = append(c.filters.IndexNames, names...) }
}

// Excludes skips the named remote indexes.
func Excludes(names ...string) SearchOption {
	return func(c *searchConfig) { c.filters.Excludes = append(c.filters.Excludes, names...) }
}

// Collections restricts the query to the given collections.
func Collections(names ...string) SearchOption {
	return func(c *searchConfig) { c.filters.Collections = append(c.filters.Collections, names...) }
}

// Types restricts the query to the given document types.
func Types(types ...string) SearchOption {
	return func(c *searchConfig) { c.filters.Types = append(c.filters.Types, types...) }
}

// Dates restricts the query to the given dates.
func Dates(dates ...string) SearchOption {
	return func(c *searchConfig) { c.filters.Dates = append(c.filters.Dates, dates...) }
}

// Search sends query to every remote and returns the merged, collapsed page.
// Failed remotes are reported in Page.Nodes, not as an error.
func (c *Client) Search(ctx context.Context, query string, opts ...SearchOption) (pg *Page, err error) {
	start := time.Now()
	defer func() { c.obs.observe(query, start, pg, err) }()

	sc := searchConfig{pageSize: request.DefaultPageSize, hitsPerSite: request.DefaultPerGroupCap}
	for _, o := range opts {
		o(&sc)
	}

	p, err := request.New(query, sc.start, sc.pageSize, sc.hitsPerSite, sc.filters)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	res, err := c.svc.Query(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return toPage(&res), nil
}

func toPage(pg *page.Page) *Page {
	out := &Page{
		Hits:         make([]Hit, len(pg.Hits)),
		TotalResults: pg.TotalResults,
		Start:        pg.Start,
		PageSize:     pg.PageSize,
		Nodes:        make([]NodeStatus, len(pg.Nodes)),
		Elapsed:      pg.Elapsed,
	}
	for i := range pg.Hits {
		r := &pg.Hits[i]
		f := r.Fields()
		out.Hits[i] = Hit{
			ID:          r.ID(),
			Score:       r.Score(),
			Site:        r.Site(),
			Node:        r.Node(),
			Title:       f.Title,
			Link:        f.Link,
			Description: f.Description,
			Length:      f.Length,
			Type:        f.Type,
			Boost:       f.Boost,
			Collection:  f.Collection,
			Index:       f.Index,
			Dates:       f.Dates,
		}
	}
	for i, n := range pg.Nodes {
		out.Nodes[i] = NodeStatus(n)
	}
	return out
}
