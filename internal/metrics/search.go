package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "sitesearch"

// Search and federation Prometheus metrics.
var (
	RemoteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Total number of remote OpenSearch requests",
		},
		[]string{"node", "status"}, // "success" / "transport_error" / "protocol_error" / "breaker_open"
	)

	RemoteRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_request_duration_seconds",
			Help:      "Remote OpenSearch request duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"node"},
	)

	RemoteBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "remote_breaker_state",
			Help:      "Circuit breaker state per remote (0 closed, 1 half-open, 2 open)",
		},
		[]string{"node"},
	)

	FederatedQueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "federated_query_duration_seconds",
			Help:      "Federated query duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	FederatedNodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "federated_nodes_total",
			Help:      "Per-node outcomes of federated queries",
		},
		[]string{"outcome"}, // "ok" / "error" / "timeout"
	)

	CollectorCandidatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collector_candidates_total",
			Help:      "Candidates offered to the collapsing collector by check outcome",
		},
		[]string{"check", "result"}, // check: "score" / "group"; result: "pass" / "reject"
	)

	LocalQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "local_query_duration_seconds",
			Help:      "Local index query duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"status"},
	)

	SiteCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "site_cache_total",
			Help:      "Site lookup cache hits and misses",
		},
		[]string{"tier", "result"}, // tier: "memory" / "redis"; result: "hit" / "miss"
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers Prometheus search metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(RemoteRequestsTotal)
	prometheus.MustRegister(RemoteRequestDuration)
	prometheus.MustRegister(RemoteBreakerState)
	prometheus.MustRegister(FederatedQueryDuration)
	prometheus.MustRegister(FederatedNodesTotal)
	prometheus.MustRegister(CollectorCandidatesTotal)
	prometheus.MustRegister(LocalQueryDuration)
	prometheus.MustRegister(SiteCacheTotal)
	searchMetricsRegistered = true
}
