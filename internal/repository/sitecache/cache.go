// Package sitecache caches document-to-site lookups in memory and in Redis.
package sitecache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/sitesearch/internal/db"
	"github.com/kailas-cloud/sitesearch/internal/domain"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/collapse"
)

var cacheKeyPrefix = domain.KeyPrefix + "site:"

const (
	DefaultSize = 100_000
	DefaultTTL  = 24 * time.Hour
)

// store is the consumer interface for the shared tier (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache resolves sites through an in-process LRU, then Redis, then the
// wrapped lookup. Empty sites are not cached.
type Cache struct {
	mem        *lru.Cache[string, string]
	store      store
	ttl        time.Duration
	group      singleflight.Group
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a site cache. s may be nil to keep only the memory tier.
// cacheTotal is a counter vec with labels "tier" and "result", passed explicitly.
func New(size int, ttl time.Duration, s store, cacheTotal *prometheus.CounterVec, logger *zap.Logger) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	mem, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create site lru: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		mem:        mem,
		store:      s,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}, nil
}

// Wrap returns a lookup for one index that consults the cache before inner.
func (c *Cache) Wrap(ctx context.Context, scope string, inner collapse.GroupLookup) collapse.GroupLookup {
	return collapse.GroupLookupFunc(func(id int64) string {
		return c.site(ctx, scope, id, inner)
	})
}

// Len returns the number of entries in the memory tier.
func (c *Cache) Len() int { return c.mem.Len() }

// Purge empties the memory tier.
func (c *Cache) Purge() { c.mem.Purge() }

func (c *Cache) site(ctx context.Context, scope string, id int64, inner collapse.GroupLookup) string {
	key := cacheKey(scope, id)

	if site, ok := c.mem.Get(key); ok {
		c.inc("memory", "hit")
		return site
	}
	c.inc("memory", "miss")

	v, err, shared := c.group.Do(key, func() (any, error) {
		return c.resolve(ctx, key, id, inner)
	})
	if err != nil && shared && ctx.Err() == nil {
		// The caller that ran the lookup was cancelled. Its empty answer is
		// not ours; resolve again under this caller's context.
		site, _ := c.resolve(ctx, key, id, inner)
		return site
	}
	return v.(string)
}

// resolve consults the shared tier, then inner. An empty site caused by
// ctx being done is reported as ctx.Err().
func (c *Cache) resolve(ctx context.Context, key string, id int64, inner collapse.GroupLookup) (string, error) {
	if site, ok := c.getFromStore(ctx, key); ok {
		c.inc("redis", "hit")
		c.mem.Add(key, site)
		return site, nil
	}
	if c.store != nil {
		c.inc("redis", "miss")
	}

	site := inner.Group(id)
	if site == "" {
		return "", ctx.Err()
	}
	c.mem.Add(key, site)
	c.putToStore(ctx, key, site)
	return site, nil
}

func (c *Cache) getFromStore(ctx context.Context, key string) (string, bool) {
	if c.store == nil {
		return "", false
	}
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached site", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	if len(data) == 0 {
		return "", false
	}
	return string(data), true
}

func (c *Cache) putToStore(ctx context.Context, key, site string) {
	if c.store == nil {
		return
	}
	if err := c.store.SetWithTTL(ctx, key, []byte(site), c.ttl); err != nil {
		c.logger.Warn("Failed to cache site", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) inc(tier, result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(tier, result).Inc()
	}
}

func cacheKey(scope string, id int64) string {
	return cacheKeyPrefix + scope + ":" + strconv.FormatInt(id, 10)
}
