// Package observability holds the process-wide Prometheus collectors and the
// helpers packages call to record into them.
package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream"},
	)

	sourceLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_loads_total",
			Help: "Source load attempts by source and outcome (ok, error, stale).",
		},
		[]string{"source", "outcome"},
	)

	sourceLoadDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "source_load_duration_seconds",
			Help:    "Time from fetch start to snapshot applied.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"source"},
	)

	viewTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "view_transitions_total",
			Help: "Real view transitions by destination mode.",
		},
		[]string{"mode"},
	)

	resolvedRegions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "metric_resolved_regions",
			Help: "Regions in the current metric snapshot by the rule that produced their value.",
		},
		[]string{"rule"},
	)

	cacheOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Redis operations by op and result.",
		},
		[]string{"op", "result"},
	)

	redisOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	cacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Payload cache lookups by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "view_events_total",
			Help: "View transition events by outcome.",
		},
		[]string{"outcome"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds, upstreamLatencySeconds,
		sourceLoadsTotal, sourceLoadDurationSeconds, viewTransitionsTotal,
		resolvedRegions, cacheOpsTotal, redisOpDurationSeconds, cacheResults,
		eventsTotal,
	}
}

// Init registers every collector with reg. Registering twice with the same
// registry is a no-op.
func Init(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

// ObserveSourceLoad records one load attempt. Duration is only observed for
// successful loads.
func ObserveSourceLoad(source, outcome string, durationSeconds float64) {
	sourceLoadsTotal.WithLabelValues(source, outcome).Inc()
	if outcome == "ok" {
		sourceLoadDurationSeconds.WithLabelValues(source).Observe(durationSeconds)
	}
}

func IncViewTransition(mode string) {
	viewTransitionsTotal.WithLabelValues(mode).Inc()
}

// SetResolvedRegions replaces the per-rule region counts. Rules absent from
// counts are removed rather than left at their last value.
func SetResolvedRegions(counts map[string]int) {
	resolvedRegions.Reset()
	for rule, n := range counts {
		resolvedRegions.WithLabelValues(rule).Set(float64(n))
	}
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheOpsTotal.WithLabelValues(op, result).Inc()
	redisOpDurationSeconds.WithLabelValues(op).Observe(durationSeconds)
}

func IncCacheHit(tier string) {
	cacheResults.WithLabelValues(tier, "hit").Inc()
}

func IncCacheMiss(tier string) {
	cacheResults.WithLabelValues(tier, "miss").Inc()
}

func IncEvent(outcome string) {
	eventsTotal.WithLabelValues(outcome).Inc()
}
