package telemetry

import "github.com/prometheus/client_golang/prometheus"

var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "agenr",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds by method, route, and status.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"method", "route", "status"},
)

var ExecuteRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "agenr",
		Subsystem: "execute",
		Name:      "requests_total",
		Help:      "Total number of /agp/execute calls by platform and outcome.",
	},
	[]string{"platform", "outcome"},
)

var ExecuteDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "agenr",
		Subsystem: "execute",
		Name:      "duration_seconds",
		Help:      "Execute call duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"platform"},
)

var IdempotencyHitsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "agenr",
		Subsystem: "idempotency",
		Name:      "hits_total",
		Help:      "Total number of idempotency cache hits that short-circuited a handler.",
	},
)

var ConfirmationTokensIssuedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "agenr",
		Subsystem: "confirm",
		Name:      "tokens_issued_total",
		Help:      "Total number of confirmation tokens issued.",
	},
)

var ConfirmationTokenFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "agenr",
		Subsystem: "confirm",
		Name:      "failures_total",
		Help:      "Total number of rejected confirmation tokens by reason.",
	},
	[]string{"reason"},
)

var CredentialOpsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "agenr",
		Subsystem: "vault",
		Name:      "operations_total",
		Help:      "Total number of credential vault operations by kind and outcome.",
	},
	[]string{"operation", "outcome"},
)

var OAuthRefreshTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "agenr",
		Subsystem: "oauth",
		Name:      "refresh_total",
		Help:      "Total number of OAuth refresh attempts by outcome.",
	},
	[]string{"outcome"},
)

var GenerationJobsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "agenr",
		Subsystem: "genjob",
		Name:      "jobs_total",
		Help:      "Total number of adapter generation jobs by terminal status.",
	},
	[]string{"status"},
)

var AuditWriteFailuresTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "agenr",
		Subsystem: "audit",
		Name:      "write_failures_total",
		Help:      "Total number of audit log writes dropped or failed.",
	},
)

var AdaptersLoadedGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "agenr",
		Subsystem: "adapter",
		Name:      "loaded",
		Help:      "Currently loaded adapter factories by scope.",
	},
	[]string{"scope"},
)

// All returns every gateway-specific metric collector for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		ExecuteRequestsTotal,
		ExecuteDuration,
		IdempotencyHitsTotal,
		ConfirmationTokensIssuedTotal,
		ConfirmationTokenFailuresTotal,
		CredentialOpsTotal,
		OAuthRefreshTotal,
		GenerationJobsTotal,
		AuditWriteFailuresTotal,
		AdaptersLoadedGauge,
	}
}
