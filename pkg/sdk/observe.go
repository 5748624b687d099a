package sitesearch

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// sdkMetrics holds prometheus metrics registered for the SDK.
type sdkMetrics struct {
	queries      *prometheus.CounterVec
	duration     prometheus.Histogram
	nodeFailures *prometheus.CounterVec
}

func newSDKMetrics(reg prometheus.Registerer) (*sdkMetrics, error) {
	m := &sdkMetrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitesearch",
			Subsystem: "sdk",
			Name:      "queries_total",
			Help:      "Total federated queries by status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sitesearch",
			Subsystem: "sdk",
			Name:      "query_duration_seconds",
			Help:      "Federated query duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		nodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitesearch",
			Subsystem: "sdk",
			Name:      "node_failures_total",
			Help:      "Remote nodes that did not contribute to a query.",
		}, []string{"node"}),
	}
	if err := registerOrReuse(reg, &m.queries); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.duration); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.nodeFailures); err != nil {
		return nil, err
	}
	return m, nil
}

// registerOrReuse registers a collector or reuses an existing one.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(T)
			if !ok {
				return fmt.Errorf("sitesearch: metric already registered with incompatible type: %T", are.ExistingCollector)
			}
			*c = existing
			return nil
		}
		return fmt.Errorf("sitesearch: register metric: %w", err)
	}
	return nil
}

// observer provides logging and metrics for SDK queries.
type observer struct {
	logger  *slog.Logger
	metrics *sdkMetrics
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	var m *sdkMetrics
	if reg != nil {
		var err error
		m, err = newSDKMetrics(reg)
		if err != nil {
			return nil, err
		}
	}
	return &observer{logger: logger, metrics: m}, nil
}

func (o *observer) observe(query string, start time.Time, pg *Page, err error) {
	if o == nil {
		return
	}
	dur := time.Since(start)

	var failed []NodeStatus
	if pg != nil {
		for _, n := range pg.Nodes {
			if !n.OK {
				failed = append(failed, n)
			}
		}
	}

	if o.metrics != nil {
		status := "ok"
		switch {
		case err != nil:
			status = "error"
		case len(failed) > 0:
			status = "partial"
		}
		o.metrics.queries.WithLabelValues(status).Inc()
		o.metrics.duration.Observe(dur.Seconds())
		for _, n := range failed {
			o.metrics.nodeFailures.WithLabelValues(n.Name).Inc()
		}
	}

	if o.logger == nil {
		return
	}
	switch {
	case err != nil:
		o.logger.Warn("query failed", "query", query, "duration", dur, "error", err)
	case len(failed) > 0:
		o.logger.Info("query partially answered",
			"query", query,
			"duration", dur,
			"failed_nodes", len(failed),
			"error", pg.Err(),
		)
	case pg != nil:
		o.logger.Debug("query completed", "query", query, "duration", dur, "hits", len(pg.Hits))
	}
}
