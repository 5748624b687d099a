// Package blevestore serves a local index from a bleve index.
package blevestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/kailas-cloud/sitesearch/internal/domain"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/collapse"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/info"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/request"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/result"
)

// Document field names.
const (
	FieldTitle       = "title"
	FieldURL         = "url"
	FieldContent     = "content"
	FieldDescription = "description"
	FieldSite        = "site"
	FieldType        = "type"
	FieldLength      = "length"
	FieldBoost       = "boost"
	FieldCollection  = "collection"
	FieldDate        = "date"
)

const (
	defaultPageSize = 1000
	titleBoost      = 2.0
	maxTerms        = 1000
)

var storedFields = []string{
	FieldTitle, FieldURL, FieldDescription, FieldSite, FieldType,
	FieldLength, FieldBoost, FieldCollection, FieldDate,
}

// Document is what gets indexed under a numeric id.
type Document struct {
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Content     string   `json:"content"`
	Description string   `json:"description,omitempty"`
	Site        string   `json:"site"`
	Type        string   `json:"type,omitempty"`
	Length      string   `json:"length,omitempty"`
	Boost       string   `json:"boost,omitempty"`
	Collection  string   `json:"collection,omitempty"`
	Date        []string `json:"date,omitempty"`
}

// GroupCache wraps a group lookup with a cache scoped to one index.
type GroupCache interface {
	Wrap(ctx context.Context, scope string, inner collapse.GroupLookup) collapse.GroupLookup
}

// Index is one named bleve index.
type Index struct {
	name     string
	idx      bleve.Index
	pageSize int
	cache    GroupCache
	logger   *zap.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithPageSize sets how many hits one bleve search request fetches.
func WithPageSize(n int) Option {
	return func(i *Index) {
		if n > 0 {
			i.pageSize = n
		}
	}
}

// WithGroupCache caches group lookups.
func WithGroupCache(c GroupCache) Option {
	return func(i *Index) { i.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Index) { i.logger = l }
}

// Open opens the bleve index at path, creating it when it does not exist.
// An empty path creates an in-memory index.
func Open(name, path string, opts ...Option) (*Index, error) {
	var (
		bi  bleve.Index
		err error
	)
	switch {
	case path == "":
		bi, err = bleve.NewMemOnly(NewMapping())
	default:
		bi, err = bleve.Open(path)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			bi, err = bleve.New(path, NewMapping())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open bleve index %s: %w", name, err)
	}
	return New(name, bi, opts...), nil
}

// New wraps an opened bleve index.
func New(name string, bi bleve.Index, opts ...Option) *Index {
	i := &Index{
		name:     name,
		idx:      bi,
		pageSize: defaultPageSize,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// NewMapping returns the document mapping: analyzed title and content,
// keyword filter fields, and stored display fields.
func NewMapping() *mapping.IndexMappingImpl {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = "en"
	text.Store = true
	text.IncludeTermVectors = true

	keyword := bleve.NewKeywordFieldMapping()
	keyword.Store = true

	stored := bleve.NewTextFieldMapping()
	stored.Index = false
	stored.Store = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(FieldTitle, text)
	doc.AddFieldMappingsAt(FieldContent, text)
	doc.AddFieldMappingsAt(FieldSite, keyword)
	doc.AddFieldMappingsAt(FieldType, keyword)
	doc.AddFieldMappingsAt(FieldCollection, keyword)
	doc.AddFieldMappingsAt(FieldDate, keyword)
	doc.AddFieldMappingsAt(FieldURL, stored)
	doc.AddFieldMappingsAt(FieldDescription, stored)
	doc.AddFieldMappingsAt(FieldLength, stored)
	doc.AddFieldMappingsAt(FieldBoost, stored)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// Name returns the index name.
func (i *Index) Name() string { return i.name }

// Put indexes doc under id, replacing any previous version.
func (i *Index) Put(id int64, doc Document) error {
	if err := i.idx.Index(strconv.FormatInt(id, 10), doc); err != nil {
		return fmt.Errorf("index document %d: %w", id, err)
	}
	return nil
}

// PutBatch indexes docs in one bleve batch.
func (i *Index) PutBatch(docs map[int64]Document) error {
	b := i.idx.NewBatch()
	for id, doc := range docs {
		if err := b.Index(strconv.FormatInt(id, 10), doc); err != nil {
			return fmt.Errorf("batch document %d: %w", id, err)
		}
	}
	if err := i.idx.Batch(b); err != nil {
		return fmt.Errorf("index batch of %d: %w", len(docs), err)
	}
	return nil
}

// Close closes the underlying bleve index.
func (i *Index) Close() error { return i.idx.Close() }

// Scan emits up to q.Limit matches in score order. An empty query matches
// nothing.
func (i *Index) Scan(ctx context.Context, q request.Scan, emit func(id int64, score float64)) (int64, error) {
	if strings.TrimSpace(q.Query) == "" {
		return 0, nil
	}
	bq := buildQuery(q)

	var (
		total   int64
		emitted int
	)
	for emitted < q.Limit {
		size := min(i.pageSize, q.Limit-emitted)
		req := bleve.NewSearchRequestOptions(bq, size, emitted, false)

		res, err := i.idx.SearchInContext(ctx, req)
		if err != nil {
			return 0, fmt.Errorf("search %s: %w", i.name, err)
		}
		total = int64(res.Total)

		for _, h := range res.Hits {
			id, err := strconv.ParseInt(h.ID, 10, 64)
			if err != nil || id < 0 {
				i.logger.Debug("skipping non-numeric document id", zap.String("index", i.name), zap.String("id", h.ID))
				continue
			}
			if id > domain.MaxLocalID {
				i.logger.Warn("skipping document id out of range",
					zap.String("index", i.name),
					zap.Int64("id", id),
				)
				continue
			}
			emit(id, h.Score)
		}

		emitted += len(res.Hits)
		if len(res.Hits) < size || int64(emitted) >= total {
			break
		}
	}
	return total, nil
}

// Describe loads the stored fields of ids and highlights the query in the
// content when no description is stored.
func (i *Index) Describe(ctx context.Context, q request.Scan, ids []int64) ([]result.Doc, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for j, id := range ids {
		keys[j] = strconv.FormatInt(id, 10)
	}

	var bq query.Query = bleve.NewDocIDQuery(keys)
	if strings.TrimSpace(q.Query) != "" {
		// Keep the id restriction but score against the query so fragments
		// get produced.
		bq = query.NewBooleanQuery([]query.Query{bq}, []query.Query{contentQuery(q.Query)}, nil)
	}
	req := bleve.NewSearchRequestOptions(bq, len(ids), 0, false)
	req.Fields = storedFields
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Highlight.AddField(FieldContent)

	res, err := i.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", i.name, err)
	}

	byID := make(map[string]result.Doc, len(res.Hits))
	for _, h := range res.Hits {
		d := toDoc(h.Fields)
		if d.Fields.Description == "" {
			d.Fields.Description = strings.Join(h.Fragments[FieldContent], " ")
		}
		byID[h.ID] = d
	}

	docs := make([]result.Doc, len(ids))
	for j, k := range keys {
		docs[j] = byID[k]
	}
	return docs, nil
}

// Groups returns the site lookup for one query.
func (i *Index) Groups(ctx context.Context) collapse.GroupLookup {
	var g collapse.GroupLookup = collapse.GroupLookupFunc(func(id int64) string {
		return i.site(ctx, id)
	})
	if i.cache != nil {
		g = i.cache.Wrap(ctx, i.name, g)
	}
	return g
}

// Info reports the document count and, per requested field, the indexed
// terms with their document frequencies.
func (i *Index) Info(_ context.Context, fields []string) (info.Index, error) {
	n, err := i.idx.DocCount()
	if err != nil {
		return info.Index{}, fmt.Errorf("doc count %s: %w", i.name, err)
	}
	out := info.Index{Name: i.name, NumDocs: n}

	for _, f := range fields {
		terms, err := i.terms(f)
		if err != nil {
			return info.Index{}, err
		}
		out.Fields = append(out.Fields, info.Field{Name: f, Terms: terms})
	}
	return out, nil
}

func (i *Index) terms(field string) ([]info.Term, error) {
	dict, err := i.idx.FieldDict(field)
	if err != nil {
		return nil, fmt.Errorf("field dict %s.%s: %w", i.name, field, err)
	}
	defer dict.Close()

	var out []info.Term
	for len(out) < maxTerms {
		entry, err := dict.Next()
		if err != nil {
			return nil, fmt.Errorf("field dict %s.%s: %w", i.name, field, err)
		}
		if entry == nil {
			break
		}
		out = append(out, info.Term{Term: entry.Term, Count: entry.Count})
	}
	return out, nil
}

func (i *Index) site(ctx context.Context, id int64) string {
	req := bleve.NewSearchRequestOptions(bleve.NewDocIDQuery([]string{strconv.FormatInt(id, 10)}), 1, 0, false)
	req.Fields = []string{FieldSite}

	res, err := i.idx.SearchInContext(ctx, req)
	if err != nil {
		i.logger.Warn("group lookup failed", zap.String("index", i.name), zap.Int64("id", id), zap.Error(err))
		return ""
	}
	if len(res.Hits) == 0 {
		return ""
	}
	s, _ := res.Hits[0].Fields[FieldSite].(string)
	return s
}

func contentQuery(text string) query.Query {
	title := bleve.NewMatchQuery(text)
	title.SetField(FieldTitle)
	title.SetBoost(titleBoost)

	content := bleve.NewMatchQuery(text)
	content.SetField(FieldContent)

	return bleve.NewDisjunctionQuery(title, content)
}

func buildQuery(q request.Scan) query.Query {
	must := []query.Query{contentQuery(q.Query)}
	for _, f := range []struct {
		field  string
		values []string
	}{
		{FieldSite, q.Filters.Sites},
		{FieldType, q.Filters.Types},
		{FieldCollection, q.Filters.Collections},
		{FieldDate, q.Filters.Dates},
	} {
		if tq := termsQuery(f.field, f.values); tq != nil {
			must = append(must, tq)
		}
	}
	if len(must) == 1 {
		return must[0]
	}
	return bleve.NewConjunctionQuery(must...)
}

// termsQuery matches any of values exactly; empty values are ignored.
func termsQuery(field string, values []string) query.Query {
	var terms []query.Query
	for _, v := range values {
		if v == "" {
			continue
		}
		tq := bleve.NewTermQuery(v)
		tq.SetField(field)
		terms = append(terms, tq)
	}
	if len(terms) == 0 {
		return nil
	}
	return bleve.NewDisjunctionQuery(terms...)
}

func toDoc(fields map[string]interface{}) result.Doc {
	str := func(name string) string {
		s, _ := fields[name].(string)
		return s
	}
	var dates []string
	switch v := fields[FieldDate].(type) {
	case string:
		dates = []string{v}
	case []interface{}:
		for _, d := range v {
			if s, ok := d.(string); ok {
				dates = append(dates, s)
			}
		}
	}
	return result.Doc{
		Site: str(FieldSite),
		Fields: result.Fields{
			Title:       str(FieldTitle),
			Link:        str(FieldURL),
			Description: str(FieldDescription),
			Length:      str(FieldLength),
			Type:        str(FieldType),
			Boost:       str(FieldBoost),
			Collection:  str(FieldCollection),
			Dates:       dates,
		},
	}
}
