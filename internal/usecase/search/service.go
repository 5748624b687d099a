// Package search serves queries against the local indexes of a node.
package search

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/sitesearch/internal/domain"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/collapse"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/hit"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/info"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/page"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/request"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/result"
	"github.com/kailas-cloud/sitesearch/internal/metrics"
)

// Global ids carry the index position in the bits above localBits.
const (
	localBits = domain.LocalIDBits
	localMask = domain.MaxLocalID

	// maxIndexes keeps global ids positive.
	maxIndexes = 1 << (63 - localBits)

	batchSize = 256

	// pageFactor is how many pages past the requested one are collected,
	// so that totals stay stable while paging forward.
	pageFactor = 3
)

type candidate struct {
	id    int64
	score float64
}

// Service is the local OpenSearch node.
type Service struct {
	indexes   []Index
	byName    map[string]int
	limits    request.Limits
	scanLimit int
	logger    *zap.Logger
	tracer    trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithLimits clamps the requested window.
func WithLimits(l request.Limits) Option {
	return func(s *Service) { s.limits = l }
}

// WithScanLimit caps the candidates read from each index per query.
func WithScanLimit(n int) Option {
	return func(s *Service) { s.scanLimit = n }
}

// WithTracer sets the tracer (default: global provider).
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// New creates a local search service over indexes. Index names must be unique.
func New(indexes []Index, logger *zap.Logger, opts ...Option) (*Service, error) {
	if len(indexes) >= maxIndexes {
		return nil, fmt.Errorf("too many indexes: %d", len(indexes))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		indexes:   slices.Clone(indexes),
		byName:    make(map[string]int, len(indexes)),
		scanLimit: request.DefaultScanLimit,
		logger:    logger,
	}
	for i, idx := range indexes {
		if _, dup := s.byName[idx.Name()]; dup {
			return nil, fmt.Errorf("duplicate index name %q", idx.Name())
		}
		s.byName[idx.Name()] = i
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/kailas-cloud/sitesearch/internal/usecase/search")
	}
	return s, nil
}

// Indexes returns the names of the served indexes in configuration order.
func (s *Service) Indexes() []string {
	names := make([]string, len(s.indexes))
	for i, idx := range s.indexes {
		names[i] = idx.Name()
	}
	return names
}

// Search collects start+pageSize*3 collapsed hits from the selected indexes
// and returns the requested window with its document fields.
func (s *Service) Search(ctx context.Context, p request.Params) (page.Page, error) {
	started := time.Now()
	p = p.WithWindow(s.limits.Node(p.Start(), p.PageSize()))

	ctx, span := s.tracer.Start(ctx, "search.Local", trace.WithAttributes(
		attribute.Int("query.start", p.Start()),
		attribute.Int("query.page_size", p.PageSize()),
		attribute.Int("query.hits_per_site", p.PerGroupCap()),
	))
	defer span.End()

	pg, err := s.search(ctx, p)
	pg.Elapsed = time.Since(started)

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.LocalQueryDuration.WithLabelValues(status).Observe(pg.Elapsed.Seconds())
	return pg, err
}

func (s *Service) search(ctx context.Context, p request.Params) (page.Page, error) {
	pg := page.Page{Hits: []result.Result{}, Start: p.Start(), PageSize: p.PageSize()}

	targets := s.resolve(p.Filters())
	if len(targets) == 0 {
		return pg, nil
	}

	lookups := make([]collapse.GroupLookup, len(s.indexes))
	for _, ord := range targets {
		lookups[ord] = s.indexes[ord].Groups(ctx)
	}
	groups := collapse.NewMemo(collapse.GroupLookupFunc(func(id int64) string {
		ord, local := splitID(id)
		return lookups[ord].Group(local)
	}))

	sel, err := collapse.NewSelector(p.Start()+p.PageSize()*pageFactor, p.PerGroupCap(), groups)
	if err != nil {
		return pg, fmt.Errorf("%w: %w", domain.ErrInvalidParams, err)
	}

	scan := p.Scan(s.scanLimit)
	raw, err := s.collect(ctx, targets, scan, sel)
	if err != nil {
		return pg, err
	}
	recordStats(sel.Stats())

	hits := sel.Results()
	end := min(len(hits), p.End())
	pg.TotalResults = raw
	if len(hits) < p.End() {
		pg.TotalResults = int64(len(hits))
	}
	if p.Start() >= end {
		return pg, nil
	}

	pg.Hits, err = s.hydrate(ctx, scan, hits[p.Start():end])
	if err != nil {
		return page.Page{Hits: []result.Result{}, Start: p.Start(), PageSize: p.PageSize()}, err
	}
	return pg, nil
}

// resolve picks the index positions a query targets. The default index list
// means every index except the excluded ones; an explicit list keeps the
// names this node serves.
func (s *Service) resolve(f request.Filters) []int {
	var out []int
	if len(f.IndexNames) == 0 || slices.Equal(f.IndexNames, request.AllIndexes) {
		for i, idx := range s.indexes {
			if !slices.Contains(f.Excludes, idx.Name()) {
				out = append(out, i)
			}
		}
		return out
	}
	for _, name := range f.IndexNames {
		ord, ok := s.byName[name]
		if !ok || slices.Contains(out, ord) {
			continue
		}
		out = append(out, ord)
	}
	return out
}

// collect scans every target concurrently and offers their candidates to sel
// from this goroutine only. It returns the summed raw match count.
func (s *Service) collect(ctx context.Context, targets []int, scan request.Scan, sel *collapse.Selector) (int64, error) {
	g, gctx := errgroup.WithContext(ctx)
	batches := make(chan []candidate, len(targets))
	var total atomic.Int64

	for _, ord := range targets {
		idx := s.indexes[ord]
		g.Go(func() error {
			buf := make([]candidate, 0, batchSize)
			flush := func() {
				if len(buf) == 0 {
					return
				}
				select {
				case batches <- buf:
				case <-gctx.Done():
				}
				buf = make([]candidate, 0, batchSize)
			}

			var outOfRange int
			n, err := idx.Scan(gctx, scan, func(id int64, score float64) {
				if id < 0 || id > localMask {
					outOfRange++
					return
				}
				buf = append(buf, candidate{id: globalID(ord, id), score: score})
				if len(buf) == batchSize {
					flush()
				}
			})
			if err != nil {
				return fmt.Errorf("%w: index %s: %w", domain.ErrSourceUnavailable, idx.Name(), err)
			}
			if outOfRange > 0 {
				s.logger.Warn("dropped document ids out of range",
					zap.String("index", idx.Name()),
					zap.Int("count", outOfRange),
				)
			}
			flush()
			total.Add(n)
			return nil
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
		close(batches)
	}()

	for b := range batches {
		for _, c := range b {
			sel.Offer(c.id, c.score)
		}
	}
	if err := <-done; err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("local search: %w", err)
	}
	return total.Load(), nil
}

// hydrate loads the document fields of the windowed hits, one Describe call
// per index.
func (s *Service) hydrate(ctx context.Context, scan request.Scan, hits []hit.Hit) ([]result.Result, error) {
	type slot struct {
		pos   int
		local int64
	}
	byIndex := make(map[int][]slot)
	for i, h := range hits {
		ord, local := splitID(h.ID)
		byIndex[ord] = append(byIndex[ord], slot{pos: i, local: local})
	}

	docs := make([]result.Doc, len(hits))
	g, gctx := errgroup.WithContext(ctx)
	for ord, slots := range byIndex {
		idx := s.indexes[ord]
		g.Go(func() error {
			ids := make([]int64, len(slots))
			for i, sl := range slots {
				ids[i] = sl.local
			}
			described, err := idx.Describe(gctx, scan, ids)
			if err != nil {
				return fmt.Errorf("%w: describe %s: %w", domain.ErrSourceUnavailable, idx.Name(), err)
			}
			if len(described) != len(ids) {
				return fmt.Errorf("%w: describe %s: got %d documents for %d ids",
					domain.ErrSourceUnavailable, idx.Name(), len(described), len(ids))
			}
			for i, sl := range slots {
				described[i].Fields.Index = idx.Name()
				docs[sl.pos] = described[i]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]result.Result, len(hits))
	for i, h := range hits {
		if h.Group == "" {
			h.Group = docs[i].Site
		}
		out[i] = result.New(h, 0, docs[i].Fields)
	}
	return out, nil
}

// Info summarizes the named indexes (every index when names is empty).
func (s *Service) Info(ctx context.Context, names, fields []string) ([]info.Index, error) {
	targets := s.resolve(request.Filters{IndexNames: names})
	out := make([]info.Index, 0, len(targets))
	for _, ord := range targets {
		idx := s.indexes[ord]
		ii, err := idx.Info(ctx, fields)
		if err != nil {
			if !errors.Is(err, domain.ErrNotImplemented) {
				return nil, fmt.Errorf("index %s info: %w", idx.Name(), err)
			}
			s.logger.Debug("index info not supported", zap.String("index", idx.Name()))
		}
		ii.Name = idx.Name()
		out = append(out, ii)
	}
	return out, nil
}

func recordStats(st collapse.Stats) {
	metrics.CollectorCandidatesTotal.WithLabelValues("score", "pass").Add(float64(st.ScorePassed))
	metrics.CollectorCandidatesTotal.WithLabelValues("score", "reject").Add(float64(st.ScoreRejected))
	metrics.CollectorCandidatesTotal.WithLabelValues("group", "pass").Add(float64(st.GroupPassed))
	metrics.CollectorCandidatesTotal.WithLabelValues("group", "reject").Add(float64(st.GroupRejected))
}

func globalID(ord int, local int64) int64 {
	return int64(ord)<<localBits | local&localMask
}

func splitID(id int64) (int, int64) {
	return int(id >> localBits), id & localMask
}
