package sitecache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/sitesearch/internal/db"
)

// mockKVStore implements the consumer interface for tests.
type mockKVStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	ttls  map[string]time.Duration
	getFn func(ctx context.Context, key string) ([]byte, error)
	setFn func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	gets  int
}

func newMockKVStore() *mockKVStore {
	return &mockKVStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *mockKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	m.gets++
	m.mu.Unlock()
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKVStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

// countingLookup counts how often each id is resolved.
type countingLookup struct {
	mu    sync.Mutex
	sites map[int64]string
	calls map[int64]int
	delay time.Duration
}

func newLookup(sites map[int64]string) *countingLookup {
	return &countingLookup{sites: sites, calls: map[int64]int{}}
}

func (l *countingLookup) Group(id int64) string {
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[id]++
	return l.sites[id]
}

func (l *countingLookup) count(id int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[id]
}

func newCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_site_cache_total"}, []string{"tier", "result"})
}

func newTestCache(t *testing.T, s store) (*Cache, *prometheus.CounterVec) {
	t.Helper()
	counter := newCounter()
	c, err := New(16, time.Minute, s, counter, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, counter
}
