package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/sitesearch/internal/config"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/request"
	logpkg "github.com/kailas-cloud/sitesearch/internal/logger"
	"github.com/kailas-cloud/sitesearch/internal/repository/remotes"
	"github.com/kailas-cloud/sitesearch/internal/transport/opensearch"
	"github.com/kailas-cloud/sitesearch/internal/transport/rss"
	"github.com/kailas-cloud/sitesearch/internal/usecase/federation"
)

const defaultCLITimeout = 10 * time.Second

// The command-line tools print every hit unless -h asks for collapsing.
const defaultCLIHitsPerSite = 0

// queryFlags are the window flags shared by meta and remote.
type queryFlags struct {
	perSite  int
	pageSize int
	start    int
	timeout  time.Duration
	logLevel string
}

func (f *queryFlags) register(cmd *cobra.Command, withStart bool) {
	// -h is taken before cobra adds --help, which then has no shorthand.
	cmd.Flags().IntVarP(&f.perSite, "hits-per-site", "h", defaultCLIHitsPerSite, "hits per site (0 disables collapsing)")
	cmd.Flags().IntVarP(&f.pageSize, "count", "n", request.DefaultPageSize, "hits per page")
	if withStart {
		cmd.Flags().IntVarP(&f.start, "start", "s", 0, "zero-based offset of the first hit")
	}
	cmd.Flags().DurationVar(&f.timeout, "timeout", defaultCLITimeout, "overall deadline")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "warn", "log level written to stderr")
}

func (f *queryFlags) params(query string) (request.Params, error) {
	return request.New(query, f.start, f.pageSize, f.perSite, request.Filters{})
}

func newMetaCmd() *cobra.Command {
	var f queryFlags
	cmd := &cobra.Command{
		Use:   "meta REMOTES QUERY...",
		Short: "Query every remote in a remotes list and print the merged result list",
		Long: "REMOTES is a file or s3://bucket/key URL holding one OpenSearch URL template per line.\n" +
			"Nodes that fail are reported on stderr; the merged list is written to stdout.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMeta(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], strings.Join(args[1:], " "), &f)
		},
	}
	f.register(cmd, true)
	return cmd
}

func newRemoteCmd() *cobra.Command {
	var f queryFlags
	cmd := &cobra.Command{
		Use:   "remote TEMPLATE QUERY...",
		Short: "Query one remote OpenSearch node and print its result list",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemote(cmd.Context(), cmd.OutOrStdout(), args[0], strings.Join(args[1:], " "), &f)
		},
	}
	f.register(cmd, false)
	return cmd
}

func runMeta(ctx context.Context, out, errOut io.Writer, location, query string, f *queryFlags) error {
	logger, err := logpkg.NewLogger("local", f.logLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	p, err := f.params(query)
	if err != nil {
		return err
	}

	loader := remotes.NewLoader(
		remotes.WithS3Config(remotes.S3Config{}),
		remotes.WithLogger(logger),
	)
	templates, err := loader.Load(ctx, location)
	if err != nil {
		return err
	}
	clients, err := newClients(templates, config.BreakerConfig{}, logger)
	if err != nil {
		return err
	}

	svc, err := federation.New(asRemotes(clients), f.timeout, logger)
	if err != nil {
		return err
	}
	pg, err := svc.Query(ctx, p)
	if err != nil {
		return err
	}
	if nodeErr := pg.Err(); nodeErr != nil {
		fmt.Fprintf(errOut, "%d of %d nodes failed: %v\n", pg.Failed(), len(pg.Nodes), nodeErr)
	}

	feed := rss.FromPage(p.Query(), &pg)
	feed.Params = []rss.Param{{Name: "q", Value: p.Query()}}
	return rss.Encode(out, feed)
}

func runRemote(ctx context.Context, out io.Writer, template, query string, f *queryFlags) error {
	logger, err := logpkg.NewLogger("local", f.logLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	p, err := f.params(query)
	if err != nil {
		return err
	}
	client, err := opensearch.NewClient(template, opensearch.WithLogger(logger))
	if err != nil {
		return err
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	feed, err := client.Query(ctx, p)
	if err != nil {
		return err
	}
	return rss.Encode(out, feed)
}

// newClients creates one breaker-guarded client per template. The clients
// share one HTTP transport.
func newClients(templates []string, bc config.BreakerConfig, logger *zap.Logger) ([]*opensearch.Client, error) {
	hc := &http.Client{Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        256,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}}
	breaker := opensearch.BreakerSettings{
		ConsecutiveFailures: uint32(max(bc.ConsecutiveFailures, 0)), //nolint:gosec // validated non-negative
		OpenTimeout:         time.Duration(bc.OpenTimeoutSec) * time.Second,
		HalfOpenRequests:    uint32(max(bc.HalfOpenRequests, 0)), //nolint:gosec // validated non-negative
	}

	clients := make([]*opensearch.Client, 0, len(templates))
	for _, t := range templates {
		c, err := opensearch.NewClient(t,
			opensearch.WithHTTPClient(hc),
			opensearch.WithBreaker(breaker),
			opensearch.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("remote %q: %w", t, err)
		}
		clients = append(clients, c)
	}
	return clients, nil
}

func asRemotes(clients []*opensearch.Client) []federation.Remote {
	out := make([]federation.Remote, len(clients))
	for i, c := range clients {
		out[i] = c
	}
	return out
}
