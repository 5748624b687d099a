// Package opensearch queries remote nodes speaking the OpenSearch RSS protocol.
package opensearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kailas-cloud/sitesearch/internal/domain/search/request"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/result"
	"github.com/kailas-cloud/sitesearch/internal/metrics"
	"github.com/kailas-cloud/sitesearch/internal/transport/rss"
)

// UserAgent is sent with every remote request.
const UserAgent = "Mozilla/4.0 (compatible; sitesearch RemoteSearchClient)"

const (
	defaultMaxBody          = 16 << 20
	defaultBreakerFailures  = 5
	defaultBreakerOpenDelay = 30 * time.Second
)

// BreakerSettings configures the per-remote circuit breaker.
type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker open. 0 disables the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of trial requests allowed while half-open.
	HalfOpenRequests uint32
}

// Client queries one remote node through its URL template.
type Client struct {
	template string
	name     string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	tracer   trace.Tracer
	logger   *zap.Logger
	maxBody  int64

	breakerSettings BreakerSettings
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client. Timeouts come from the caller's context.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithName overrides the node name used in logs and metrics (default: template host).
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTracer sets the tracer (default: global provider).
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithBreaker configures the circuit breaker.
func WithBreaker(s BreakerSettings) Option {
	return func(c *Client) { c.breakerSettings = s }
}

// WithMaxBody caps the response size read from the remote.
func WithMaxBody(n int64) Option {
	return func(c *Client) { c.maxBody = n }
}

// NewClient creates a client for a URL template such as
// "http://host/opensearch?q={searchTerms}&n={count}&{s=sites}".
func NewClient(template string, opts ...Option) (*Client, error) {
	template = strings.TrimSpace(template)
	if template == "" {
		return nil, errors.New("empty url template")
	}
	u, err := url.Parse(template)
	if err != nil {
		return nil, fmt.Errorf("parse url template: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("url template %q: unsupported scheme %q", template, u.Scheme)
	}

	c := &Client{
		template: template,
		name:     u.Host,
		http:     http.DefaultClient,
		logger:   zap.NewNop(),
		maxBody:  defaultMaxBody,
		breakerSettings: BreakerSettings{
			ConsecutiveFailures: defaultBreakerFailures,
			OpenTimeout:         defaultBreakerOpenDelay,
			HalfOpenRequests:    1,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("github.com/kailas-cloud/sitesearch/internal/transport/opensearch")
	}
	if c.breakerSettings.ConsecutiveFailures > 0 {
		c.breaker = c.newBreaker(c.breakerSettings)
	}
	return c, nil
}

func (c *Client) newBreaker(s BreakerSettings) *gobreaker.CircuitBreaker {
	metrics.RemoteBreakerState.WithLabelValues(c.name).Set(float64(gobreaker.StateClosed))
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        c.name,
		MaxRequests: s.HalfOpenRequests,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RemoteBreakerState.WithLabelValues(name).Set(float64(to))
			c.logger.Warn("remote breaker state changed",
				zap.String("node", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// Cancellation by the caller says nothing about the remote's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// Name returns the node name.
func (c *Client) Name() string { return c.name }

// Template returns the URL template.
func (c *Client) Template() string { return c.template }

// BreakerState returns the circuit breaker state ("closed" when disabled).
func (c *Client) BreakerState() gobreaker.State {
	if c.breaker == nil {
		return gobreaker.StateClosed
	}
	return c.breaker.State()
}

// Available reports whether the breaker lets requests through.
func (c *Client) Available() bool { return c.BreakerState() != gobreaker.StateOpen }

// BuildURL expands the template for p and checks the result is a valid URL.
func (c *Client) BuildURL(p request.Params) (string, error) {
	target := Expand(c.template, p)
	if _, err := url.Parse(target); err != nil {
		return "", fmt.Errorf("expand url template: %w", err)
	}
	return target, nil
}

// Query sends p to the remote and decodes its result list.
// Errors are *TransportError or *ProtocolError; there is no retry.
func (c *Client) Query(ctx context.Context, p request.Params) (*rss.Feed, error) {
	target, err := c.BuildURL(p)
	if err != nil {
		return nil, &TransportError{Node: c.name, Err: err}
	}

	ctx, span := c.tracer.Start(ctx, "opensearch.Query",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("remote.node", c.name),
			attribute.String("url.full", target),
		),
	)
	defer span.End()

	start := time.Now()
	feed, err := c.execute(ctx, target)
	metrics.RemoteRequestDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.RemoteRequestsTotal.WithLabelValues(c.name, errorStatus(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("remote query failed",
			zap.String("node", c.name),
			zap.String("url", target),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.RemoteRequestsTotal.WithLabelValues(c.name, "success").Inc()
	span.SetAttributes(
		attribute.Int64("opensearch.total_results", feed.TotalResults),
		attribute.Int("opensearch.items", len(feed.Items)),
	)
	return feed, nil
}

func (c *Client) execute(ctx context.Context, target string) (*rss.Feed, error) {
	if c.breaker == nil {
		return c.fetch(ctx, target)
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, target)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &TransportError{Node: c.name, Err: err}
		}
		return nil, err //nolint:wrapcheck // already a TransportError or ProtocolError
	}
	return out.(*rss.Feed), nil
}

func (c *Client) fetch(ctx context.Context, target string) (*rss.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, &TransportError{Node: c.name, Err: err}
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", rss.ContentType+", application/xml;q=0.9")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Node: c.name, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &TransportError{Node: c.name, Status: resp.StatusCode}
	}

	feed, err := rss.Decode(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &TransportError{Node: c.name, Err: ctxErr}
		}
		return nil, &ProtocolError{Node: c.name, Err: err}
	}
	return feed, nil
}

func errorStatus(err error) string {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return "protocol_error"
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "breaker_open"
	}
	return "transport_error"
}

// Search runs Query and converts the items into results. It satisfies the
// federation's remote contract; hits are attributed to node 0.
func (c *Client) Search(ctx context.Context, p request.Params) ([]result.Result, int64, error) {
	feed, err := c.Query(ctx, p)
	if err != nil {
		return nil, 0, err
	}
	return feed.Results(0), feed.TotalResults, nil
}
