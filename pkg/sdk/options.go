package sitesearch

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultTimeout = 3 * time.Second

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	templates   []string
	remotesFile string

	timeout    time.Duration
	httpClient *http.Client

	breakerFailures int
	breakerOpen     time.Duration

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithRemotes adds remote nodes by URL template, e.g.
// "http://host/opensearch?q={searchTerms}&n={count}&{s=sites}".
// Node positions follow the order of the templates.
func WithRemotes(templates ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.templates = append(c.templates, templates...)
	})
}

// WithRemotesFile reads remote templates from a file or s3://bucket/key,
// one per line. They are appended after templates given with WithRemotes.
func WithRemotesFile(location string) Option {
	return optionFunc(func(c *clientConfig) {
		c.remotesFile = location
	})
}

// WithTimeout sets the per-query deadline for the remotes.
// Default: 3s. Zero waits for every remote.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.timeout = d
	})
}

// WithHTTPClient sets the HTTP client shared by all remotes.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *clientConfig) {
		c.httpClient = hc
	})
}

// WithBreaker opens a remote's circuit after failures consecutive errors
// and tries it again after openFor. failures=0 disables the breaker.
// Default: 5 failures, 30s.
func WithBreaker(failures int, openFor time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.breakerFailures = failures
		c.breakerOpen = openFor
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (query counts, durations and node
// failures) on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
