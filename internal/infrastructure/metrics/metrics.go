package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal tracks total DNS queries processed
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heimdall_queries_total",
		Help: "Total number of DNS queries processed",
	}, []string{"qtype", "rcode", "protocol"})

	// QueryDuration tracks query processing time
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "heimdall_query_duration_seconds",
		Help:    "Histogram of query processing duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	// CacheOperations tracks cache hits and misses per tier
	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heimdall_cache_operations_total",
		Help: "Total number of cache hits and misses",
	}, []string{"tier", "result"})

	// MalformedPackets counts inbound packets the codec or validator
	// rejected, tagged with a coarse classification of what was wrong.
	MalformedPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heimdall_malformed_packets_total",
		Help: "Total number of malformed or invalid inbound packets",
	}, []string{"kind"})

	// BlocklistMatches counts queries answered from the blocklist.
	BlocklistMatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heimdall_blocklist_matches_total",
		Help: "Total number of queries blocked by the domain blocklist",
	})

	// UpstreamRequests tracks forwarded queries per upstream and outcome.
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heimdall_upstream_requests_total",
		Help: "Total number of queries forwarded to upstream resolvers",
	}, []string{"upstream", "result"})

	// UpstreamHealthy reports the current health flag per upstream.
	UpstreamHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "heimdall_upstream_health",
		Help: "Binary health indicator per upstream (1 = healthy, 0 = in cooldown)",
	}, []string{"upstream"})

	// DNSSECValidations tracks validation verdicts on forwarded responses.
	DNSSECValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heimdall_dnssec_validations_total",
		Help: "Total number of DNSSEC validation verdicts",
	}, []string{"result"})

	// RateLimitRejections counts queries dropped by the token buckets.
	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heimdall_rate_limit_rejections_total",
		Help: "Total number of queries rejected by rate limiting",
	}, []string{"scope"})

	// AdmissionRejections counts queries dropped because the concurrency
	// semaphore was full.
	AdmissionRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heimdall_admission_rejections_total",
		Help: "Total number of queries dropped at the concurrency gate",
	})

	// DBConnectionsActive tracks open database connections
	DBConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "heimdall_db_connections_active",
		Help: "Number of active database connections",
	})
)
