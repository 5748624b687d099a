package sitecache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/sitesearch/internal/domain/search/collapse"
)

func TestWrap_MemoryHit(t *testing.T) {
	kv := newMockKVStore()
	c, counter := newTestCache(t, kv)
	inner := newLookup(map[int64]string{1: "a.org"})
	g := c.Wrap(context.Background(), "main", inner)

	for i := 0; i < 3; i++ {
		if got := g.Group(1); got != "a.org" {
			t.Fatalf("Group = %q", got)
		}
	}
	if inner.count(1) != 1 {
		t.Errorf("inner called %d times, want 1", inner.count(1))
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("memory", "hit")); got != 2 {
		t.Errorf("memory hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("redis", "miss")); got != 1 {
		t.Errorf("redis misses = %v, want 1", got)
	}
	if string(kv.data["sitesearch:site:main:1"]) != "a.org" || kv.ttls["sitesearch:site:main:1"] != time.Minute {
		t.Errorf("redis tier = %v %v", kv.data, kv.ttls)
	}
}

func TestWrap_RedisHit(t *testing.T) {
	kv := newMockKVStore()
	kv.data["sitesearch:site:main:5"] = []byte("shared.org")
	c, counter := newTestCache(t, kv)
	inner := newLookup(nil)

	if got := c.Wrap(context.Background(), "main", inner).Group(5); got != "shared.org" {
		t.Errorf("Group = %q", got)
	}
	if inner.count(5) != 0 {
		t.Error("inner lookup should not run on a redis hit")
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("redis", "hit")); got != 1 {
		t.Errorf("redis hits = %v", got)
	}
	if c.Len() != 1 {
		t.Errorf("memory tier not filled, len %d", c.Len())
	}
}

func TestWrap_ScopesAreSeparate(t *testing.T) {
	c, _ := newTestCache(t, nil)
	a := c.Wrap(context.Background(), "a", newLookup(map[int64]string{1: "a.org"}))
	b := c.Wrap(context.Background(), "b", newLookup(map[int64]string{1: "b.org"}))

	if a.Group(1) != "a.org" || b.Group(1) != "b.org" {
		t.Error("scopes share entries")
	}
}

func TestWrap_EmptySiteNotCached(t *testing.T) {
	kv := newMockKVStore()
	c, _ := newTestCache(t, kv)
	inner := newLookup(map[int64]string{})
	g := c.Wrap(context.Background(), "main", inner)

	g.Group(9)
	g.Group(9)
	if inner.count(9) != 2 {
		t.Errorf("inner called %d times, want 2", inner.count(9))
	}
	if len(kv.data) != 0 {
		t.Errorf("empty site stored: %v", kv.data)
	}
}

func TestWrap_StoreErrors(t *testing.T) {
	kv := newMockKVStore()
	kv.getFn = func(context.Context, string) ([]byte, error) { return nil, errors.New("timeout") }
	kv.setFn = func(context.Context, string, []byte, time.Duration) error { return errors.New("readonly") }
	c, _ := newTestCache(t, kv)
	inner := newLookup(map[int64]string{1: "a.org"})

	if got := c.Wrap(context.Background(), "main", inner).Group(1); got != "a.org" {
		t.Errorf("Group = %q, store errors must fall through to the lookup", got)
	}
}

func TestWrap_MemoryOnly(t *testing.T) {
	c, counter := newTestCache(t, nil)
	inner := newLookup(map[int64]string{1: "a.org"})
	g := c.Wrap(context.Background(), "main", inner)
	g.Group(1)
	g.Group(1)

	if inner.count(1) != 1 {
		t.Errorf("inner called %d times", inner.count(1))
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("redis", "miss")); got != 0 {
		t.Errorf("redis misses counted without a store: %v", got)
	}
}

func TestWrap_Singleflight(t *testing.T) {
	c, _ := newTestCache(t, nil)
	inner := newLookup(map[int64]string{1: "a.org"})
	inner.delay = 50 * time.Millisecond
	g := c.Wrap(context.Background(), "main", inner)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := g.Group(1); got != "a.org" {
				t.Errorf("Group = %q", got)
			}
		}()
	}
	wg.Wait()

	if n := inner.count(1); n > 2 {
		t.Errorf("inner called %d times for concurrent lookups", n)
	}
}

func TestWrap_CancelledLeaderDoesNotLeakEmptySite(t *testing.T) {
	c, _ := newTestCache(t, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	leaderCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// A lookup bound to a cancelled request finds nothing.
	leader := c.Wrap(leaderCtx, "main", collapse.GroupLookupFunc(func(int64) string {
		close(entered)
		<-release
		return ""
	}))
	follower := c.Wrap(context.Background(), "main", newLookup(map[int64]string{1: "a.org"}))

	leaderSite := make(chan string, 1)
	go func() { leaderSite <- leader.Group(1) }()
	<-entered

	followerSite := make(chan string, 1)
	go func() { followerSite <- follower.Group(1) }()
	time.Sleep(20 * time.Millisecond) // let the follower join the in-flight lookup
	cancel()
	close(release)

	if got := <-leaderSite; got != "" {
		t.Errorf("leader Group = %q, want empty", got)
	}
	if got := <-followerSite; got != "a.org" {
		t.Errorf("follower Group = %q, want a.org", got)
	}
	if got := follower.Group(1); got != "a.org" {
		t.Errorf("cached Group = %q, want a.org", got)
	}
}

func TestEviction(t *testing.T) {
	c, err := New(2, 0, nil, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	inner := newLookup(map[int64]string{1: "a", 2: "b", 3: "c"})
	g := c.Wrap(context.Background(), "main", inner)
	g.Group(1)
	g.Group(2)
	g.Group(3)
	g.Group(1)

	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	if inner.count(1) != 2 {
		t.Errorf("evicted entry resolved %d times, want 2", inner.count(1))
	}

	c.Purge()
	if c.Len() != 0 {
		t.Error("Purge left entries")
	}
}
