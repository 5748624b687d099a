package sitesearch

import (
	"context"

	healthuc "github.com/kailas-cloud/sitesearch/internal/usecase/health"
)

// HealthStatus represents the aggregated state of the remotes.
type HealthStatus struct {
	Status string            // "ok" or "degraded"
	Checks map[string]string // "remote:<name>" → "ok"/"error"
}

// Health reports which remotes currently have an open circuit breaker.
func (c *Client) Health(ctx context.Context) HealthStatus {
	report := c.healthSvc.Check(ctx)
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return HealthStatus{
		Status: string(report.Status),
		Checks: checks,
	}
}

// healthUseCase is the internal interface for health checks.
type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}
