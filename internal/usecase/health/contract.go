package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// RemoteChecker reports whether a remote node is currently reachable.
type RemoteChecker interface {
	Name() string
	Available() bool
}
