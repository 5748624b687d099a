package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) Ping(_ context.Context) error { return m.err }

type mockRemote struct {
	name string
	up   bool
}

func (m *mockRemote) Name() string    { return m.name }
func (m *mockRemote) Available() bool { return m.up }

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockDBPinger{}, []RemoteChecker{&mockRemote{name: "a", up: true}})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if r.Checks["database"] != CheckOK {
		t.Errorf("expected database %q, got %q", CheckOK, r.Checks["database"])
	}
	if r.Checks["remote:a"] != CheckOK {
		t.Errorf("expected remote:a %q, got %q", CheckOK, r.Checks["remote:a"])
	}
}

func TestCheck_DBError(t *testing.T) {
	svc := New(&mockDBPinger{err: errors.New("conn refused")}, []RemoteChecker{&mockRemote{name: "a"}})
	r := svc.Check(context.Background())

	if r.Status != Unhealthy {
		t.Errorf("expected %q, got %q", Unhealthy, r.Status)
	}
	if r.Checks["database"] != CheckError {
		t.Errorf("expected database %q, got %q", CheckError, r.Checks["database"])
	}
}

func TestCheck_RemoteOpen(t *testing.T) {
	svc := New(&mockDBPinger{}, []RemoteChecker{
		&mockRemote{name: "a", up: true},
		&mockRemote{name: "b", up: false},
	})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["remote:a"] != CheckOK || r.Checks["remote:b"] != CheckError {
		t.Errorf("checks = %v", r.Checks)
	}
}

func TestCheck_NoDatabase(t *testing.T) {
	r := New(nil, nil).Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if _, ok := r.Checks["database"]; ok {
		t.Error("database check reported without a database")
	}
}
