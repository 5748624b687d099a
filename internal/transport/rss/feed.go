// Package rss reads and writes OpenSearch result lists: RSS 2.0 documents
// extended with the OpenSearch and archive namespaces.
package rss

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/sitesearch/internal/domain/search/hit"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/page"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/result"
)

// Namespaces and media type of the result-list protocol.
const (
	NSOpenSearch = "http://a9.com/-/spec/opensearchrss/1.0/"
	NSArchive    = "http://web.archive.org/-/spec/opensearchrss/1.0/"
	ContentType  = "application/rss+xml"
)

// Param is one echoed request parameter.
type Param struct {
	Name  string
	Value string
}

// Item is one search hit as carried on the wire.
type Item struct {
	Title       string
	Link        string
	Description string
	DocID       string
	Score       float64
	Site        string
	Length      string
	Type        string
	Boost       string
	Collection  string
	Index       string
	Dates       []string
}

// Feed is a decoded or to-be-encoded result list.
type Feed struct {
	Query        string
	TotalResults int64
	StartIndex   int
	ItemsPerPage int
	IndexNames   []string
	Params       []Param
	Items        []Item
	ResponseTime time.Duration
}

// FromPage renders a page of results for query.
func FromPage(query string, pg *page.Page) *Feed {
	f := &Feed{
		Query:        query,
		TotalResults: pg.TotalResults,
		StartIndex:   pg.Start,
		ItemsPerPage: pg.PageSize,
		Items:        make([]Item, 0, len(pg.Hits)),
		ResponseTime: pg.Elapsed,
	}
	for i := range pg.Hits {
		f.Items = append(f.Items, ItemFromResult(&pg.Hits[i]))
	}
	return f
}

// ItemFromResult renders a result as a wire item.
func ItemFromResult(r *result.Result) Item {
	f := r.Fields()
	return Item{
		Title:       f.Title,
		Link:        f.Link,
		Description: f.Description,
		DocID:       strconv.FormatInt(r.ID(), 10),
		Score:       r.Score(),
		Site:        r.Site(),
		Length:      f.Length,
		Type:        f.Type,
		Boost:       f.Boost,
		Collection:  f.Collection,
		Index:       f.Index,
		Dates:       f.Dates,
	}
}

// Result converts the item into a result attributed to node.
// A docId that is not an integer maps to 0.
func (it *Item) Result(node int) result.Result {
	id, err := strconv.ParseInt(strings.TrimSpace(it.DocID), 10, 64)
	if err != nil {
		id = 0
	}
	return result.New(hit.Hit{ID: id, Score: it.Score, Group: it.Site}, node, result.Fields{
		Title:       it.Title,
		Link:        it.Link,
		Description: it.Description,
		Length:      it.Length,
		Type:        it.Type,
		Boost:       it.Boost,
		Collection:  it.Collection,
		Index:       it.Index,
		Dates:       it.Dates,
	})
}

// Results converts every item, attributing them to node.
func (f *Feed) Results(node int) []result.Result {
	out := make([]result.Result, 0, len(f.Items))
	for i := range f.Items {
		out = append(out, f.Items[i].Result(node))
	}
	return out
}

func parseScore(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) {
		return 0
	}
	return v
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
