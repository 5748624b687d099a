package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates that some remote nodes are unavailable.
	Degraded Status = "degraded"
	// Unhealthy indicates the local store is down.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db      DBPinger
	remotes []RemoteChecker
}

// New creates a Service. db can be nil when no database backs the node.
func New(db DBPinger, remotes []RemoteChecker) *Service {
	return &Service{db: db, remotes: remotes}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	status := Healthy

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			checks["database"] = CheckError
			status = Unhealthy
		} else {
			checks["database"] = CheckOK
		}
	}

	for _, r := range s.remotes {
		key := "remote:" + r.Name()
		if r.Available() {
			checks[key] = CheckOK
			continue
		}
		checks[key] = CheckError
		if status == Healthy {
			status = Degraded
		}
	}

	return Report{Status: status, Checks: checks}
}
