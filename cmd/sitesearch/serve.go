package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/sitesearch/internal/config"
	dbRedis "github.com/kailas-cloud/sitesearch/internal/db/redis"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/request"
	logpkg "github.com/kailas-cloud/sitesearch/internal/logger"
	"github.com/kailas-cloud/sitesearch/internal/metrics"
	"github.com/kailas-cloud/sitesearch/internal/repository/blevestore"
	"github.com/kailas-cloud/sitesearch/internal/repository/docstore"
	"github.com/kailas-cloud/sitesearch/internal/repository/remotes"
	"github.com/kailas-cloud/sitesearch/internal/repository/sitecache"
	"github.com/kailas-cloud/sitesearch/internal/tracing"
	chiTransport "github.com/kailas-cloud/sitesearch/internal/transport/chi"
	"github.com/kailas-cloud/sitesearch/internal/transport/opensearch"
	"github.com/kailas-cloud/sitesearch/internal/usecase/federation"
	healthuc "github.com/kailas-cloud/sitesearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/sitesearch/internal/usecase/search"
	"github.com/kailas-cloud/sitesearch/internal/version"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve /opensearch, /metasearch, /info and /health",
		Long:  "Configuration is read from config/<ENV>.yaml (ENV defaults to local).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting sitesearch node",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("search_driver", cfg.Search.Driver),
		zap.Strings("indexes", cfg.Search.Indexes),
	)

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("Tracing shutdown failed", zap.Error(err))
		}
	}()

	// Register search metrics explicitly (no init())
	metrics.RegisterSearchMetrics()

	// Redis backs the redis driver and the shared tier of the site cache.
	var store *dbRedis.Store
	if len(cfg.Database.Addrs) > 0 {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			return fmt.Errorf("create redis store: %w", err)
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			return fmt.Errorf("database not ready: %w", err)
		}
		logger.Info("Connected to database", zap.Strings("addrs", cfg.Database.Addrs))
	}

	siteCache, err := newSiteCache(cfg.Cache, store, logger)
	if err != nil {
		return err
	}

	indexes, closeIndexes, err := openIndexes(ctx, cfg.Search, store, siteCache, logger)
	if err != nil {
		return err
	}
	defer closeIndexes()

	limits := request.Limits{
		PageSizeMax: cfg.OpenSearch.HitsPerPageMax,
		PositionMax: cfg.OpenSearch.PositionMax,
	}
	localSvc, err := searchuc.New(indexes, logger,
		searchuc.WithLimits(limits),
		searchuc.WithScanLimit(cfg.Search.ScanLimit),
	)
	if err != nil {
		return fmt.Errorf("create search service: %w", err)
	}

	// Federation is optional. Pass nil interfaces, not typed nil pointers.
	var (
		meta     chiTransport.MetaSearcher
		checkers []healthuc.RemoteChecker
	)
	if cfg.Federation.Remotes != "" {
		clients, err := loadRemotes(ctx, cfg.Federation, logger)
		if err != nil {
			return err
		}
		fedSvc, err := federation.New(asRemotes(clients), cfg.Federation.Timeout(), logger,
			federation.WithLimits(limits),
		)
		if err != nil {
			return fmt.Errorf("create federation: %w", err)
		}
		meta = fedSvc
		for _, c := range clients {
			checkers = append(checkers, c)
		}
		logger.Info("Federation enabled", zap.Int("remotes", len(clients)))
	}

	var pinger healthuc.DBPinger
	if store != nil {
		pinger = store
	}
	healthSvc := healthuc.New(pinger, checkers)

	server := chiTransport.NewServer(localSvc, meta, healthSvc, chiTransport.Defaults{
		PageSize:    cfg.OpenSearch.HitsPerPage,
		PerGroupCap: cfg.OpenSearch.HitsPerSite,
	}, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	r.Use(chiTransport.CacheHeaders(time.Duration(cfg.Cache.MaxAgeSec) * time.Second))
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Graceful shutdown
	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}

func newSiteCache(cfg config.CacheConfig, store *dbRedis.Store, logger *zap.Logger) (*sitecache.Cache, error) {
	ttl := time.Duration(cfg.SiteTTLSec) * time.Second
	var (
		c   *sitecache.Cache
		err error
	)
	if store != nil && !cfg.DisableRedis {
		c, err = sitecache.New(cfg.SiteLRUSize, ttl, store, metrics.SiteCacheTotal, logger)
	} else {
		c, err = sitecache.New(cfg.SiteLRUSize, ttl, nil, metrics.SiteCacheTotal, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("create site cache: %w", err)
	}
	return c, nil
}

// openIndexes opens every configured index with the selected driver.
func openIndexes(
	ctx context.Context,
	cfg config.SearchConfig,
	store *dbRedis.Store,
	cache *sitecache.Cache,
	logger *zap.Logger,
) ([]searchuc.Index, func(), error) {
	out := make([]searchuc.Index, 0, len(cfg.Indexes))

	switch cfg.Driver {
	case config.DriverBleve:
		var opened []*blevestore.Index
		closeAll := func() {
			for _, idx := range opened {
				if err := idx.Close(); err != nil {
					logger.Warn("close index", zap.String("index", idx.Name()), zap.Error(err))
				}
			}
		}
		for _, name := range cfg.Indexes {
			path := ""
			if cfg.BlevePath != "" {
				path = filepath.Join(cfg.BlevePath, name)
			}
			idx, err := blevestore.Open(name, path,
				blevestore.WithPageSize(cfg.PageSize),
				blevestore.WithGroupCache(cache),
				blevestore.WithLogger(logger),
			)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("open index %s: %w", name, err)
			}
			opened = append(opened, idx)
			out = append(out, idx)
		}
		return out, closeAll, nil

	default:
		if store == nil {
			return nil, nil, errors.New("redis driver needs database.addrs")
		}
		for _, name := range cfg.Indexes {
			idx := docstore.New(name, store,
				docstore.WithPrefix(cfg.KeyPrefix),
				docstore.WithPageSize(cfg.PageSize),
				docstore.WithGroupBy(docstore.GroupBy(cfg.GroupBy)),
				docstore.WithGroupCache(cache),
				docstore.WithLogger(logger),
			)
			if err := idx.Ensure(ctx); err != nil {
				return nil, nil, err
			}
			out = append(out, idx)
		}
		return out, func() {}, nil
	}
}

func loadRemotes(ctx context.Context, cfg config.FederationConfig, logger *zap.Logger) ([]*opensearch.Client, error) {
	loader := remotes.NewLoader(
		remotes.WithS3Config(remotes.S3Config{Region: cfg.S3.Region, Endpoint: cfg.S3.Endpoint}),
		remotes.WithLogger(logger),
	)
	templates, err := loader.Load(ctx, cfg.Remotes)
	if err != nil {
		return nil, fmt.Errorf("load remotes: %w", err)
	}
	return newClients(templates, cfg.Breaker, logger)
}
