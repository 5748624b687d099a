// Package federation sends one query to many remote nodes and merges their
// result lists into a single ranked, collapsed page.
package federation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kailas-cloud/sitesearch/internal/domain"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/collapse"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/page"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/request"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/result"
	"github.com/kailas-cloud/sitesearch/internal/metrics"
)

// RemoteResult is what one remote contributed to a query.
type RemoteResult struct {
	Results       []result.Result
	TotalRawCount int64
	Succeeded     bool
	Err           error
	Elapsed       time.Duration
}

type reply struct {
	node int
	res  RemoteResult
}

// Service is the federated aggregator.
type Service struct {
	remotes []Remote
	timeout time.Duration
	limits  request.Limits
	logger  *zap.Logger
	tracer  trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithLimits clamps the requested window before fan-out.
func WithLimits(l request.Limits) Option {
	return func(s *Service) { s.limits = l }
}

// WithTracer sets the tracer (default: global provider).
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// New creates a federated aggregator. timeout bounds how long a query waits
// for the remotes; 0 waits for every remote.
func New(remotes []Remote, timeout time.Duration, logger *zap.Logger, opts ...Option) (*Service, error) {
	if len(remotes) == 0 {
		return nil, domain.ErrNoRemotes
	}
	if timeout < 0 {
		return nil, fmt.Errorf("federation timeout must be >= 0, got %s", timeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		remotes: slices.Clone(remotes),
		timeout: timeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/kailas-cloud/sitesearch/internal/usecase/federation")
	}
	return s, nil
}

// Remotes returns the configured remotes in node order.
func (s *Service) Remotes() []Remote { return slices.Clone(s.remotes) }

// Query fans p out to every remote, waits until all of them answered or the
// timeout fired, and merges whatever arrived. Remote failures never fail the
// query; they are reported in Page.Nodes.
func (s *Service) Query(ctx context.Context, p request.Params) (page.Page, error) {
	started := time.Now()
	queryID := uuid.NewString()

	p = p.WithWindow(s.limits.Federated(p.Start(), p.PageSize()))

	ctx, span := s.tracer.Start(ctx, "federation.Query", trace.WithAttributes(
		attribute.String("query.id", queryID),
		attribute.Int("federation.remotes", len(s.remotes)),
		attribute.Int("query.start", p.Start()),
		attribute.Int("query.page_size", p.PageSize()),
	))
	defer span.End()

	replies, answered := s.scatter(ctx, p.ForRemote())
	if err := ctx.Err(); err != nil {
		return page.Page{}, fmt.Errorf("federated query: %w", err)
	}

	hits, total, nodes := s.gather(replies, answered)

	if p.PerGroupCap() > 0 {
		hits = collapse.Materialized(hits, p.PerGroupCap(), site, outranks)
	}
	slices.SortStableFunc(hits, compare)

	pg := page.Page{
		Hits:         page.Window(hits, p.Start(), p.PageSize()),
		TotalResults: total,
		Start:        p.Start(),
		PageSize:     p.PageSize(),
		Nodes:        nodes,
		Elapsed:      time.Since(started),
	}

	metrics.FederatedQueryDuration.Observe(pg.Elapsed.Seconds())
	span.SetAttributes(
		attribute.Int64("federation.total_results", total),
		attribute.Int("federation.failed_nodes", pg.Failed()),
	)
	s.logger.Info("federated_query",
		zap.String("query_id", queryID),
		zap.String("query", p.Query()),
		zap.Int("nodes", len(s.remotes)),
		zap.Int("failed", pg.Failed()),
		zap.Int64("total_results", total),
		zap.Int("hits", len(pg.Hits)),
		zap.Duration("elapsed", pg.Elapsed),
	)
	return pg, nil
}

// scatter runs one goroutine per remote and collects replies until every
// remote answered or the deadline fired. Stragglers are cancelled.
func (s *Service) scatter(ctx context.Context, rp request.Params) ([]RemoteResult, []bool) {
	var (
		qctx   context.Context
		cancel context.CancelFunc
	)
	if s.timeout > 0 {
		qctx, cancel = context.WithTimeout(ctx, s.timeout)
	} else {
		qctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	ch := make(chan reply, len(s.remotes))
	for i, r := range s.remotes {
		go func() {
			t0 := time.Now()
			hits, total, err := r.Search(qctx, rp)
			ch <- reply{node: i, res: RemoteResult{
				Results:       hits,
				TotalRawCount: total,
				Succeeded:     err == nil,
				Err:           err,
				Elapsed:       time.Since(t0),
			}}
		}()
	}

	results := make([]RemoteResult, len(s.remotes))
	answered := make([]bool, len(s.remotes))
	for pending := len(s.remotes); pending > 0; pending-- {
		select {
		case rep := <-ch:
			results[rep.node] = rep.res
			answered[rep.node] = true
		case <-qctx.Done():
			return results, answered
		}
	}
	return results, answered
}

// gather concatenates the hits of the remotes that succeeded, attributing
// each hit to its node position, and sums their raw counts.
func (s *Service) gather(results []RemoteResult, answered []bool) ([]result.Result, int64, []page.NodeStatus) {
	var (
		hits  []result.Result
		total int64
	)
	nodes := make([]page.NodeStatus, len(results))
	for i, rr := range results {
		st := page.NodeStatus{Node: i, Name: s.remotes[i].Name(), Elapsed: rr.Elapsed}
		switch {
		case !answered[i]:
			st.Err = fmt.Errorf("%w: no answer within %s", domain.ErrRemoteUnavailable, s.timeout)
			metrics.FederatedNodesTotal.WithLabelValues("timeout").Inc()
		case !rr.Succeeded:
			st.Err = rr.Err
			if st.Err == nil {
				st.Err = errors.New("remote failed")
			}
			metrics.FederatedNodesTotal.WithLabelValues("error").Inc()
		default:
			st.OK = true
			st.Hits = len(rr.Results)
			st.Total = rr.TotalRawCount
			total += rr.TotalRawCount
			for j := range rr.Results {
				r := &rr.Results[j]
				hits = append(hits, result.New(r.Hit(), i, r.Fields()))
			}
			metrics.FederatedNodesTotal.WithLabelValues("ok").Inc()
		}
		if st.Err != nil {
			s.logger.Debug("remote skipped",
				zap.Int("node", i),
				zap.String("name", st.Name),
				zap.Error(st.Err),
			)
		}
		nodes[i] = st
	}
	return hits, total, nodes
}

func site(r result.Result) string { return r.Site() }

func outranks(a, b result.Result) bool { return result.Outranks(&a, &b) }

func compare(a, b result.Result) int {
	switch {
	case result.Outranks(&a, &b):
		return -1
	case result.Outranks(&b, &a):
		return 1
	}
	return 0
}
