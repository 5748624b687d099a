package docstore

import (
	"context"
	"strconv"
	"testing"

	"github.com/kailas-cloud/sitesearch/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hgetFn         func(ctx context.Context, key, field string) (string, error)
	hgetAllMultiFn func(ctx context.Context, keys []string) ([]map[string]string, error)
	searchIDsFn    func(ctx context.Context, q *db.IDQuery) (*db.IDResult, error)
	indexInfoFn    func(ctx context.Context, name string) (*db.IndexStats, error)
	indexExistsFn  func(ctx context.Context, name string) (bool, error)
	createIndexFn  func(ctx context.Context, def *db.IndexDefinition) error

	queries []db.IDQuery
}

func (m *mockStore) HGet(ctx context.Context, key, field string) (string, error) {
	if m.hgetFn != nil {
		return m.hgetFn(ctx, key, field)
	}
	return "", db.ErrKeyNotFound
}

func (m *mockStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if m.hgetAllMultiFn != nil {
		return m.hgetAllMultiFn(ctx, keys)
	}
	return make([]map[string]string, len(keys)), nil
}

func (m *mockStore) SearchIDs(ctx context.Context, q *db.IDQuery) (*db.IDResult, error) {
	m.queries = append(m.queries, *q)
	if m.searchIDsFn != nil {
		return m.searchIDsFn(ctx, q)
	}
	return &db.IDResult{}, nil
}

func (m *mockStore) IndexInfo(ctx context.Context, name string) (*db.IndexStats, error) {
	if m.indexInfoFn != nil {
		return m.indexInfoFn(ctx, name)
	}
	return &db.IndexStats{Name: name}, nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func newTestIndex(t *testing.T, opts ...Option) (*Index, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New("main", ms, opts...), ms
}

// pagedResults serves n keys of index "main" in descending score order.
func pagedResults(n int) func(ctx context.Context, q *db.IDQuery) (*db.IDResult, error) {
	return func(_ context.Context, q *db.IDQuery) (*db.IDResult, error) {
		res := &db.IDResult{Total: int64(n)}
		for i := q.Offset; i < n && i < q.Offset+q.Limit; i++ {
			res.Entries = append(res.Entries, db.IDEntry{
				Key:   "sitesearch:main:doc:" + strconv.Itoa(i),
				Score: float64(n - i),
			})
		}
		return res, nil
	}
}
