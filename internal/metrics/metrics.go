package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_quotes_total",
			Help: "Quote requests by outcome.",
		},
		[]string{"result"}, // ok | cached | invalid | unavailable
	)

	QuoteCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_quote_cache_total",
			Help: "Quote cache lookups by result.",
		},
		[]string{"backend", "result"}, // hit | miss | expired | error
	)

	AggregatorRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_aggregator_requests_total",
			Help: "Outbound aggregator requests by provider and outcome.",
		},
		[]string{"provider", "result"},
	)

	AggregatorLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swap_aggregator_latency_seconds",
			Help:    "Aggregator request latency in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms → ~10s
		},
		[]string{"provider"},
	)

	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_executions_total",
			Help: "executeSwap calls by outcome.",
		},
		[]string{"result"},
	)

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_status_transitions_total",
			Help: "Pending swaps moved to a terminal state.",
		},
		[]string{"status"},
	)

	ReconciliationGaps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "swap_reconciliation_gaps_total",
			Help: "Swaps submitted on-chain whose record could not be persisted.",
		},
	)

	RefreshErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_refresh_errors_total",
			Help: "Transient failures while refreshing swap status.",
		},
		[]string{"reason"},
	)

	ActivePolls = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "swap_active_polls",
			Help: "Swaps currently being polled server-side.",
		},
	)

	LastSweepTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "swap_sweeper_last_run_timestamp",
			Help: "Unix time of the last completed pending-swap sweep.",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_events_published_total",
			Help: "Swap events published by subject.",
		},
		[]string{"subject"},
	)

	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_publish_errors_total",
			Help: "Swap event publish failures by subject.",
		},
		[]string{"subject"},
	)

	PublishLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swap_publish_latency_seconds",
			Help:    "Time taken to publish swap events.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subject"},
	)

	ChainRPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_chain_rpc_requests_total",
			Help: "Chain RPC calls by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	WalletRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_wallet_requests_total",
			Help: "Wallet service calls by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	FeesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_fees_recorded_total",
			Help: "Platform fee ledger writes by outcome.",
		},
		[]string{"outcome"},
	)

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_engine_errors_total",
			Help: "Count of engine-level errors by component.",
		},
		[]string{"component", "reason"},
	)
)

// ObserveDuration records the time since start on a histogram.
func ObserveDuration(h *prometheus.HistogramVec, start time.Time, labels ...string) {
	h.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
}

// ObserveAggregator is an httpclient.Observer for aggregator traffic.
func ObserveAggregator(provider, outcome string, elapsed time.Duration) {
	AggregatorRequests.WithLabelValues(provider, outcome).Inc()
	if elapsed > 0 {
		AggregatorLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
	}
}

func IncQuote(result string) {
	QuotesTotal.WithLabelValues(result).Inc()
}

func IncCache(backend, result string) {
	QuoteCacheTotal.WithLabelValues(backend, result).Inc()
}

func IncExecution(result string) {
	ExecutionsTotal.WithLabelValues(result).Inc()
}

func IncTransition(status string) {
	StatusTransitions.WithLabelValues(status).Inc()
}

func IncRefreshError(reason string) {
	RefreshErrors.WithLabelValues(reason).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}

func SetLastSweep(t time.Time) {
	LastSweepTimestamp.Set(float64(t.Unix()))
}

func IncChainRPC(method string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ChainRPCRequests.WithLabelValues(method, outcome).Inc()
}
