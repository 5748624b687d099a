// Package chi serves the OpenSearch HTTP surface of a node.
package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/sitesearch/internal/domain"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/info"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/page"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/request"
	"github.com/kailas-cloud/sitesearch/internal/logger"
	"github.com/kailas-cloud/sitesearch/internal/transport/rss"
	healthuc "github.com/kailas-cloud/sitesearch/internal/usecase/health"
)

// ErrorCode is the machine-readable error code of an error response.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest   ErrorCode = "bad_request"
	CodeUnauthorized ErrorCode = "unauthorized"
	CodeNotFound     ErrorCode = "not_found"
	CodeUnavailable  ErrorCode = "source_unavailable"
	CodeTimeout      ErrorCode = "timeout"
	CodeInternal     ErrorCode = "internal_error"
)

// HeaderFailedNodes carries the number of remotes that did not contribute to
// a federated page.
const HeaderFailedNodes = "X-Failed-Nodes"

// LocalSearcher queries the indexes this node serves.
type LocalSearcher interface {
	Search(ctx context.Context, p request.Params) (page.Page, error)
	Info(ctx context.Context, names, fields []string) ([]info.Index, error)
	Indexes() []string
}

// MetaSearcher queries the remote nodes of a federation.
type MetaSearcher interface {
	Query(ctx context.Context, p request.Params) (page.Page, error)
}

// HealthChecker reports node health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves /opensearch, /metasearch, /info, /health and /metrics.
type Server struct {
	local         LocalSearcher
	meta          MetaSearcher
	health        HealthChecker
	defaults      Defaults
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP server. local and meta may be nil; their routes
// then answer 404.
func NewServer(local LocalSearcher, meta MetaSearcher, health HealthChecker, defaults Defaults, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.PageSize <= 0 {
		defaults.PageSize = request.DefaultPageSize
	}
	s := &Server{
		local:    local,
		meta:     meta,
		health:   health,
		defaults: defaults,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidParams, http.StatusBadRequest, CodeBadRequest),
		sentinelHandler(domain.ErrIndexNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout, CodeTimeout),
		sentinelHandler(domain.ErrSourceUnavailable, http.StatusBadGateway, CodeUnavailable),
	}
	return s
}

// Routes registers the handlers on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/opensearch", s.OpenSearch)
	r.Get("/metasearch", s.MetaSearch)
	r.Get("/info", s.Info)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// OpenSearch handles GET /opensearch: a query against the local indexes.
func (s *Server) OpenSearch(w http.ResponseWriter, r *http.Request) {
	if s.local == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "no local indexes")
		return
	}
	q := r.URL.Query()
	p, err := parseParams(q, s.defaults)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	pg, err := s.local.Search(r.Context(), p)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	s.writeFeed(w, r, feedFromPage(p, pg, s.indexNames(p), q))
}

// MetaSearch handles GET /metasearch: a federated query over the remotes.
func (s *Server) MetaSearch(w http.ResponseWriter, r *http.Request) {
	if s.meta == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "federation is not configured")
		return
	}
	q := r.URL.Query()
	p, err := parseParams(q, s.defaults)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	pg, err := s.meta.Query(r.Context(), p)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if failed := pg.Failed(); failed > 0 {
		w.Header().Set(HeaderFailedNodes, strconv.Itoa(failed))
		logger.FromContext(r.Context()).Info("partial federated result", zap.Error(pg.Err()))
	}
	s.writeFeed(w, r, feedFromPage(p, pg, p.Filters().IndexNames, q))
}

// Info handles GET /info: document counts and term lists of the indexes.
func (s *Server) Info(w http.ResponseWriter, r *http.Request) {
	if s.local == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "no local indexes")
		return
	}
	q := r.URL.Query()
	indexes, err := s.local.Info(r.Context(), values(q, paramIndexNames), values(q, paramFields))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := rss.EncodeInfo(&buf, indexes); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

type healthResponse struct {
	Status string                          `json:"status"`
	Checks map[string]healthuc.CheckResult `json:"checks"`
}

type errorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// indexNames echoes the indexes a local query targets.
func (s *Server) indexNames(p request.Params) []string {
	if !p.AllIndexes() {
		return p.Filters().IndexNames
	}
	excludes := p.Filters().Excludes
	var out []string
	for _, name := range s.local.Indexes() {
		if !slices.Contains(excludes, name) {
			out = append(out, name)
		}
	}
	return out
}

func (s *Server) writeFeed(w http.ResponseWriter, r *http.Request, f *rss.Feed) {
	var buf bytes.Buffer
	if err := rss.Encode(&buf, f); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", rss.ContentType+"; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func feedFromPage(p request.Params, pg page.Page, indexNames []string, q map[string][]string) *rss.Feed {
	f := rss.FromPage(p.Query(), &pg)
	f.IndexNames = indexNames
	f.Params = echoParams(q)
	return f
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidParams,
		domain.ErrIndexNotFound,
		domain.ErrSourceUnavailable,
		context.DeadlineExceeded,
	}
	for _, s := range sentinels {
		if !errors.Is(err, s) {
			continue
		}
		// Validation messages describe the request, not the node.
		if s == domain.ErrInvalidParams {
			return err.Error()
		}
		return s.Error()
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	if errors.Is(err, context.Canceled) {
		log.Debug("client went away", zap.Error(err))
		return
	}
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err), zap.String("path", r.URL.Path))
	writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
}
