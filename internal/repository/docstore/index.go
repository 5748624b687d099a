// Package docstore serves a local index stored as Redis hashes and searched
// with FT.SEARCH.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/sitesearch/internal/db"
	"github.com/kailas-cloud/sitesearch/internal/domain"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/collapse"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/info"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/request"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/result"
)

// Hash field names of a stored document.
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

// GroupBy selects where the collapsing group of a document comes from.
type GroupBy string

const (
	// GroupBySite reads the stored site field.
	GroupBySite GroupBy = "site"
	// GroupByURL derives the site from the host of the stored url.
	GroupByURL GroupBy = "url"
)

const (
	defaultPageSize = 1000
	dateSeparator   = ","
	summaryLength   = 240
)

// store is the consumer interface for document operations (ISP).
type store interface {
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	SearchIDs(ctx context.Context, q *db.IDQuery) (*db.IDResult, error)
	IndexInfo(ctx context.Context, name string) (*db.IndexStats, error)
	IndexExists(ctx context.Context, name string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
}

// GroupCache wraps a group lookup with a cache scoped to one index.
type GroupCache interface {
	Wrap(ctx context.Context, scope string, inner collapse.GroupLookup) collapse.GroupLookup
}

// Index is one named index: documents at <prefix><name>:doc:<id>, searched
// through the FT index <prefix><name>:idx.
type Index struct {
	name     string
	store    store
	prefix   string
	pageSize int
	groupBy  GroupBy
	cache    GroupCache
	logger   *zap.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithPrefix overrides the key prefix (default domain.KeyPrefix).
func WithPrefix(p string) Option {
	return func(i *Index) { i.prefix = p }
}

// WithPageSize sets how many keys one FT.SEARCH round-trip fetches.
func WithPageSize(n int) Option {
	return func(i *Index) {
		if n > 0 {
			i.pageSize = n
		}
	}
}

// WithGroupBy selects the group source.
func WithGroupBy(g GroupBy) Option {
	return func(i *Index) { i.groupBy = g }
}

// WithGroupCache caches group lookups.
func WithGroupCache(c GroupCache) Option {
	return func(i *Index) { i.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Index) { i.logger = l }
}

// New creates an index handle. It does not touch Redis.
func New(name string, s store, opts ...Option) *Index {
	i := &Index{
		name:     name,
		store:    s,
		prefix:   domain.KeyPrefix,
		pageSize: defaultPageSize,
		groupBy:  GroupBySite,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Name returns the index name.
func (i *Index) Name() string { return i.name }

// Ensure creates the FT index if it does not exist yet.
func (i *Index) Ensure(ctx context.Context) error {
	exists, err := i.store.IndexExists(ctx, i.ftName())
	if err != nil {
		return fmt.Errorf("check index %s: %w", i.name, err)
	}
	if exists {
		return nil
	}

	def, err := db.NewIndex(i.ftName()).
		Prefix(i.docPrefix()).
		TextWeighted(FieldTitle, 2).
		Text(FieldContent).
		Tag(FieldSite).
		Tag(FieldType).
		Tag(FieldCollection).
		TagWithOpts(FieldDate, dateSeparator, false).
		Build()
	if err != nil {
		return fmt.Errorf("build index %s: %w", i.name, err)
	}

	if err := i.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", i.name, err)
	}
	i.logger.Info("index created", zap.String("index", i.name), zap.String("schema", def.String()))
	return nil
}

// Scan pages through FT.SEARCH results in score order and emits up to q.Limit
// of them. An empty query matches nothing.
func (i *Index) Scan(ctx context.Context, q request.Scan, emit func(id int64, score float64)) (int64, error) {
	if strings.TrimSpace(q.Query) == "" {
		return 0, nil
	}

	query := &db.IDQuery{
		IndexName: i.ftName(),
		Text:      q.Query,
		Tags:      tagFilters(q.Filters),
	}

	var (
		total   int64
		emitted int
	)
	for emitted < q.Limit {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		query.Offset = emitted
		query.Limit = min(i.pageSize, q.Limit-emitted)

		res, err := i.store.SearchIDs(ctx, query)
		if err != nil {
			return 0, fmt.Errorf("search %s: %w", i.name, err)
		}
		total = res.Total

		for _, e := range res.Entries {
			id, ok := i.parseKey(e.Key)
			if !ok {
				i.logger.Debug("skipping foreign key", zap.String("index", i.name), zap.String("key", e.Key))
				continue
			}
			if id > domain.MaxLocalID {
				i.logger.Warn("skipping document id out of range",
					zap.String("index", i.name),
					zap.Int64("id", id),
				)
				continue
			}
			emit(id, e.Score)
		}

		emitted += len(res.Entries)
		if len(res.Entries) < query.Limit || int64(emitted) >= total {
			break
		}
	}
	return total, nil
}

// Describe loads the stored fields of ids in one pipelined round-trip.
func (i *Index) Describe(ctx context.Context, q request.Scan, ids []int64) ([]result.Doc, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for j, id := range ids {
		keys[j] = i.docKey(id)
	}

	hashes, err := i.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", i.name, err)
	}

	docs := make([]result.Doc, len(ids))
	for j, h := range hashes {
		docs[j] = toDoc(h, q.Query)
	}
	return docs, nil
}

// Groups returns the site lookup for one query.
func (i *Index) Groups(ctx context.Context) collapse.GroupLookup {
	var g collapse.GroupLookup
	switch i.groupBy {
	case GroupByURL:
		g = collapse.HostLookup{URL: func(id int64) string { return i.field(ctx, id, FieldURL) }}
	default:
		g = collapse.GroupLookupFunc(func(id int64) string { return i.field(ctx, id, FieldSite) })
	}
	if i.cache != nil {
		g = i.cache.Wrap(ctx, i.name, g)
	}
	return g
}

// Info reports the document count. Term listings are not available from Redis.
func (i *Index) Info(ctx context.Context, fields []string) (info.Index, error) {
	stats, err := i.store.IndexInfo(ctx, i.ftName())
	if err != nil {
		return info.Index{}, fmt.Errorf("index info %s: %w", i.name, err)
	}
	out := info.Index{Name: i.name, NumDocs: stats.NumDocs}
	for _, f := range fields {
		out.Fields = append(out.Fields, info.Field{Name: f})
	}
	return out, nil
}

// field reads one stored field; lookup failures yield "".
func (i *Index) field(ctx context.Context, id int64, name string) string {
	v, err := i.store.HGet(ctx, i.docKey(id), name)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			i.logger.Warn("group lookup failed",
				zap.String("index", i.name),
				zap.Int64("id", id),
				zap.Error(err),
			)
		}
		return ""
	}
	return v
}

func (i *Index) ftName() string { return fmt.Sprintf("%s%s:idx", i.prefix, i.name) }

func (i *Index) docPrefix() string { return fmt.Sprintf("%s%s:doc:", i.prefix, i.name) }

func (i *Index) docKey(id int64) string { return i.docPrefix() + strconv.FormatInt(id, 10) }

func (i *Index) parseKey(key string) (int64, bool) {
	rest, ok := strings.CutPrefix(key, i.docPrefix())
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

func tagFilters(f request.Filters) []db.TagFilter {
	var out []db.TagFilter
	add := func(field string, values []string) {
		if len(values) > 0 {
			out = append(out, db.TagFilter{Field: field, Values: values})
		}
	}
	add(FieldSite, f.Sites)
	add(FieldType, f.Types)
	add(FieldCollection, f.Collections)
	add(FieldDate, f.Dates)
	return out
}

func toDoc(h map[string]string, query string) result.Doc {
	desc := h[FieldDescription]
	if desc == "" {
		desc = summarize(h[FieldContent], query, summaryLength)
	}
	var dates []string
	if d := h[FieldDate]; d != "" {
		for _, v := range strings.Split(d, dateSeparator) {
			if v = strings.TrimSpace(v); v != "" {
				dates = append(dates, v)
			}
		}
	}
	return result.Doc{
		Site: h[FieldSite],
		Fields: result.Fields{
			Title:       h[FieldTitle],
			Link:        h[FieldURL],
			Description: desc,
			Length:      h[FieldLength],
			Type:        h[FieldType],
			Boost:       h[FieldBoost],
			Collection:  h[FieldCollection],
			Dates:       dates,
		},
	}
}
