package sitesearch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/sitesearch/internal/domain/search/page"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/request"
	"github.com/kailas-cloud/sitesearch/internal/repository/remotes"
	"github.com/kailas-cloud/sitesearch/internal/transport/opensearch"
	"github.com/kailas-cloud/sitesearch/internal/usecase/federation"
	healthuc "github.com/kailas-cloud/sitesearch/internal/usecase/health"
)

// federatedQuerier is the internal interface for substitution in tests.
type federatedQuerier interface {
	Query(ctx context.Context, p request.Params) (page.Page, error)
}

// Client is the sitesearch SDK entry point. It is safe for concurrent use.
type Client struct {
	svc       federatedQuerier
	remotes   []*opensearch.Client
	healthSvc healthUseCase
	obs       *observer
}

// New creates a Client for the configured remotes. The provided context is
// used to load a remotes file.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		timeout:         defaultTimeout,
		breakerFailures: 5,
		breakerOpen:     30 * time.Second,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	templates := cfg.templates
	if cfg.remotesFile != "" {
		loaded, err := remotes.NewLoader(remotes.WithS3Config(remotes.S3Config{})).Load(ctx, cfg.remotesFile)
		if err != nil {
			return nil, fmt.Errorf("sitesearch: %w", err)
		}
		templates = append(templates, loaded...)
	}
	if len(templates) == 0 {
		return nil, fmt.Errorf("sitesearch: %w (use WithRemotes or WithRemotesFile)", ErrNoRemotes)
	}

	clients, err := newClients(cfg, templates)
	if err != nil {
		return nil, err
	}
	rs := make([]federation.Remote, len(clients))
	checkers := make([]healthuc.RemoteChecker, len(clients))
	for i, c := range clients {
		rs[i] = c
		checkers[i] = c
	}

	svc, err := federation.New(rs, cfg.timeout, zap.NewNop())
	if err != nil {
		return nil, fmt.Errorf("sitesearch: %w", err)
	}
	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Client{
		svc:       svc,
		remotes:   clients,
		healthSvc: healthuc.New(nil, checkers),
		obs:       obs,
	}, nil
}

func newClients(cfg *clientConfig, templates []string) ([]*opensearch.Client, error) {
	opts := []opensearch.Option{
		opensearch.WithBreaker(opensearch.BreakerSettings{
			ConsecutiveFailures: uint32(max(cfg.breakerFailures, 0)), //nolint:gosec // clamped non-negative
			OpenTimeout:         cfg.breakerOpen,
			HalfOpenRequests:    1,
		}),
	}
	if cfg.httpClient != nil {
		opts = append(opts, opensearch.WithHTTPClient(cfg.httpClient))
	}

	out := make([]*opensearch.Client, 0, len(templates))
	for _, t := range templates {
		c, err := opensearch.NewClient(t, opts...)
		if err != nil {
			return nil, fmt.Errorf("sitesearch: remote %q: %w", t, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// Remotes describes the configured remotes in node order.
func (c *Client) Remotes() []RemoteInfo {
	out := make([]RemoteInfo, len(c.remotes))
	for i, r := range c.remotes {
		out[i] = RemoteInfo{Name: r.Name(), Template: r.Template(), Available: r.Available()}
	}
	return out
}
