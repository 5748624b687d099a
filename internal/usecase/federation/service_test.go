package federation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/sitesearch/internal/domain"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/hit"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/request"
	"github.com/kailas-cloud/sitesearch/internal/domain/search/result"
)

// --- Mocks ---

type mockRemote struct {
	name  string
	hits  []result.Result
	total int64
	err   error
	block bool // wait for cancellation instead of answering

	mu        sync.Mutex
	got       []request.Params
	cancelled chan struct{}
}

func newRemote(name string, total int64, hits ...result.Result) *mockRemote {
	return &mockRemote{name: name, hits: hits, total: total, cancelled: make(chan struct{}, 1)}
}

func (m *mockRemote) Name() string { return m.name }

func (m *mockRemote) Search(ctx context.Context, p request.Params) ([]result.Result, int64, error) {
	m.mu.Lock()
	m.got = append(m.got, p)
	m.mu.Unlock()

	if m.block {
		<-ctx.Done()
		m.cancelled <- struct{}{}
		return nil, 0, ctx.Err()
	}
	if m.err != nil {
		return nil, 0, m.err
	}
	return m.hits, m.total, nil
}

func (m *mockRemote) params() []request.Params {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]request.Params(nil), m.got...)
}

// --- Helpers ---

func res(id int64, score float64, site string) result.Result {
	return result.New(hit.Hit{ID: id, Score: score, Group: site}, 0, result.Fields{Title: site})
}

func params(t *testing.T, start, n, h int) request.Params {
	t.Helper()
	p, err := request.New("q", start, n, h, request.Filters{})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func newService(t *testing.T, timeout time.Duration, remotes ...Remote) *Service {
	t.Helper()
	s, err := New(remotes, timeout, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

type hitKey struct {
	id   int64
	node int
}

func keys(rs []result.Result) []hitKey {
	out := make([]hitKey, len(rs))
	for i := range rs {
		out[i] = hitKey{rs[i].ID(), rs[i].Node()}
	}
	return out
}

// --- Tests ---

func TestNew_Errors(t *testing.T) {
	if _, err := New(nil, time.Second, nil); !errors.Is(err, domain.ErrNoRemotes) {
		t.Errorf("expected ErrNoRemotes, got %v", err)
	}
	if _, err := New([]Remote{newRemote("a", 0)}, -time.Second, nil); err == nil {
		t.Error("expected error for negative timeout")
	}
}

func TestQuery_PartialFailure(t *testing.T) {
	r1 := newRemote("one", 5, res(1, 0.9, "a.org"), res(2, 0.5, "b.org"))
	r2 := newRemote("two", 100, res(50, 10, "slow.org"))
	r2.block = true
	r3 := newRemote("three", 7, res(3, 0.7, "c.org"))

	s := newService(t, 100*time.Millisecond, r1, r2, r3)
	pg, err := s.Query(context.Background(), params(t, 0, 10, 1))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	if pg.TotalResults != 12 {
		t.Errorf("TotalResults = %d, want 12", pg.TotalResults)
	}
	want := []hitKey{{1, 0}, {3, 2}, {2, 0}}
	got := keys(pg.Hits)
	if len(got) != len(want) {
		t.Fatalf("hits = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("hits = %v, want %v", got, want)
		}
	}

	if pg.Failed() != 1 || pg.Nodes[1].OK || !errors.Is(pg.Nodes[1].Err, domain.ErrRemoteUnavailable) {
		t.Errorf("node status = %+v", pg.Nodes)
	}
	if pg.Err() == nil {
		t.Error("Err() should report the slow node")
	}

	select {
	case <-r2.cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("slow remote was not cancelled")
	}
}

func TestQuery_RemoteErrorSwallowed(t *testing.T) {
	r1 := newRemote("ok", 3, res(1, 0.9, "a.org"))
	r2 := newRemote("broken", 0)
	r2.err = errors.New("connection refused")

	s := newService(t, time.Second, r1, r2)
	pg, err := s.Query(context.Background(), params(t, 0, 10, 1))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if pg.TotalResults != 3 || len(pg.Hits) != 1 {
		t.Errorf("page = %+v", pg)
	}
	if pg.Nodes[1].OK || pg.Nodes[1].Err == nil {
		t.Errorf("broken node status = %+v", pg.Nodes[1])
	}
}

func TestQuery_AllRemotesFail(t *testing.T) {
	r1 := newRemote("a", 0)
	r1.err = errors.New("down")
	r2 := newRemote("b", 0)
	r2.err = errors.New("down")

	pg, err := newService(t, time.Second, r1, r2).Query(context.Background(), params(t, 0, 10, 1))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if pg.TotalResults != 0 || len(pg.Hits) != 0 || pg.Failed() != 2 {
		t.Errorf("page = %+v", pg)
	}
}

func TestQuery_RemoteParams(t *testing.T) {
	r := newRemote("a", 0)
	s := newService(t, time.Second, r)

	if _, err := s.Query(context.Background(), params(t, 20, 10, 2)); err != nil {
		t.Fatal(err)
	}
	got := r.params()
	if len(got) != 1 {
		t.Fatalf("remote called %d times", len(got))
	}
	if got[0].Start() != 0 || got[0].PageSize() != 30 || got[0].PerGroupCap() != 2 {
		t.Errorf("remote params: start=%d n=%d h=%d", got[0].Start(), got[0].PageSize(), got[0].PerGroupCap())
	}
}

func TestQuery_CollapseAcrossNodes(t *testing.T) {
	r1 := newRemote("a", 3, res(1, 0.9, "x.org"), res(2, 0.8, ""), res(3, 0.3, "y.org"))
	r2 := newRemote("b", 3, res(4, 0.95, "x.org"), res(5, 0.7, ""), res(6, 0.6, "y.org"))

	pg, err := newService(t, time.Second, r1, r2).Query(context.Background(), params(t, 0, 10, 1))
	if err != nil {
		t.Fatal(err)
	}

	// x.org and y.org keep one hit each; empty sites are never collapsed.
	want := []hitKey{{4, 1}, {2, 0}, {5, 1}, {6, 1}}
	got := keys(pg.Hits)
	if len(got) != len(want) {
		t.Fatalf("hits = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("hits = %v, want %v", got, want)
		}
	}
	if pg.TotalResults != 6 {
		t.Errorf("TotalResults = %d, want 6 (raw counts)", pg.TotalResults)
	}
}

func TestQuery_NoCollapse(t *testing.T) {
	r1 := newRemote("a", 2, res(1, 0.9, "x.org"), res(2, 0.8, "x.org"))

	pg, err := newService(t, time.Second, r1).Query(context.Background(), params(t, 0, 10, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(pg.Hits) != 2 {
		t.Errorf("hitsPerSite=0 must not collapse, got %d hits", len(pg.Hits))
	}
}

func TestQuery_DeterministicTieBreak(t *testing.T) {
	// Same id and score on two nodes: node position decides.
	r1 := newRemote("a", 1, res(7, 0.5, "a.org"))
	r2 := newRemote("b", 1, res(7, 0.5, "b.org"))
	r3 := newRemote("c", 1, res(3, 0.5, "c.org"))

	s := newService(t, time.Second, r1, r2, r3)
	for i := 0; i < 20; i++ {
		pg, err := s.Query(context.Background(), params(t, 0, 10, 1))
		if err != nil {
			t.Fatal(err)
		}
		got := keys(pg.Hits)
		want := []hitKey{{3, 2}, {7, 0}, {7, 1}}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("run %d: hits = %v, want %v", i, got, want)
			}
		}
	}
}

func TestQuery_PaginationClipping(t *testing.T) {
	r := newRemote("a", 40, res(1, 0.9, "a.org"), res(2, 0.8, "b.org"), res(3, 0.7, "c.org"))
	s := newService(t, time.Second, r)

	pg, err := s.Query(context.Background(), params(t, 10, 10, 1))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if pg.Hits == nil || len(pg.Hits) != 0 {
		t.Errorf("expected empty non-nil hits, got %v", pg.Hits)
	}
	if pg.TotalResults != 40 {
		t.Errorf("TotalResults = %d, want 40", pg.TotalResults)
	}

	pg, err = s.Query(context.Background(), params(t, 1, 10, 1))
	if err != nil {
		t.Fatal(err)
	}
	if got := keys(pg.Hits); len(got) != 2 || got[0].id != 2 || got[1].id != 3 {
		t.Errorf("window from 1 = %v", got)
	}
}

func TestQuery_Limits(t *testing.T) {
	r := newRemote("a", 0)
	s, err := New([]Remote{r}, time.Second, nil, WithLimits(request.Limits{PageSizeMax: 20, PositionMax: 100}))
	if err != nil {
		t.Fatal(err)
	}

	pg, err := s.Query(context.Background(), params(t, 500, 50, 1))
	if err != nil {
		t.Fatal(err)
	}
	if pg.Start != 80 || pg.PageSize != 20 {
		t.Errorf("window = %d+%d, want 80+20", pg.Start, pg.PageSize)
	}
	if got := r.params()[0].PageSize(); got != 100 {
		t.Errorf("remote page size = %d, want 100", got)
	}
}

func TestQuery_ParentCancelled(t *testing.T) {
	r := newRemote("a", 0)
	r.block = true
	s := newService(t, 0, r)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if _, err := s.Query(ctx, params(t, 0, 10, 1)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
