// Package prommetrics provides Prometheus implementations of the
// metrics interfaces in pkg/ratelimit, pkg/cache, and pkg/webhook.
package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/centsible/fincore/pkg/ratelimit"
)

// RateLimitMetrics implements ratelimit.Metrics using Prometheus.
//
// Tenant ID is deliberately not a label: tenant cardinality is unbounded
// in a SaaS deployment and would blow up the time-series count. Per-
// tenant visibility comes from logs, not metrics.
type RateLimitMetrics struct {
	checksTotal   *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
	failOpenTotal *prometheus.CounterVec
	resetsTotal   *prometheus.CounterVec
}

// NewRateLimitMetrics creates a Prometheus rate limit metrics implementation.
func NewRateLimitMetrics(reg prometheus.Registerer, namespace string) *RateLimitMetrics {
	factory := promauto.With(reg)

	return &RateLimitMetrics{
		checksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "checks_total",
			Help:      "Total number of rate limit checks.",
		}, []string{"rate_type", "strategy", "allowed"}),

		checkDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "check_duration_seconds",
			Help:      "Latency of rate limit checks.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"rate_type", "strategy"}),

		failOpenTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "fail_open_total",
			Help:      "Total number of checks admitted because the store was unavailable.",
		}, []string{"strategy"}),

		resetsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "resets_total",
			Help:      "Total number of administrative limit resets.",
		}, []string{"rate_type"}),
	}
}

func (m *RateLimitMetrics) RecordCheck(_, rateType string, strategy ratelimit.Strategy, allowed bool, duration time.Duration) {
	m.checksTotal.WithLabelValues(rateType, string(strategy), strconv.FormatBool(allowed)).Inc()
	m.checkDuration.WithLabelValues(rateType, string(strategy)).Observe(duration.Seconds())
}

func (m *RateLimitMetrics) RecordFailOpen(strategy ratelimit.Strategy) {
	m.failOpenTotal.WithLabelValues(string(strategy)).Inc()
}

func (m *RateLimitMetrics) RecordReset(_, rateType string) {
	m.resetsTotal.WithLabelValues(rateType).Inc()
}

// CacheMetrics implements cache.Metrics using Prometheus.
type CacheMetrics struct {
	hitsTotal     *prometheus.CounterVec
	missesTotal   *prometheus.CounterVec
	degradedTotal *prometheus.CounterVec
	clearsTotal   *prometheus.CounterVec
	clearedKeys   *prometheus.CounterVec
}

// NewCacheMetrics creates a Prometheus cache metrics implementation.
func NewCacheMetrics(reg prometheus.Registerer, namespace string) *CacheMetrics {
	factory := promauto.With(reg)

	return &CacheMetrics{
		hitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits.",
		}, []string{"namespace"}),

		missesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses.",
		}, []string{"namespace"}),

		degradedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "degraded_total",
			Help:      "Total number of operations degraded to miss behavior by store failures.",
		}, []string{"operation"}),

		clearsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "clears_total",
			Help:      "Total number of bulk clear operations.",
		}, []string{"scope"}),

		clearedKeys: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "cleared_keys_total",
			Help:      "Total number of keys removed by bulk clears.",
		}, []string{"scope"}),
	}
}

func (m *CacheMetrics) RecordHit(namespace string)  { m.hitsTotal.WithLabelValues(namespace).Inc() }
func (m *CacheMetrics) RecordMiss(namespace string) { m.missesTotal.WithLabelValues(namespace).Inc() }

func (m *CacheMetrics) RecordDegraded(op string) {
	m.degradedTotal.WithLabelValues(op).Inc()
}

func (m *CacheMetrics) RecordClear(scope string, keys int) {
	m.clearsTotal.WithLabelValues(scope).Inc()
	m.clearedKeys.WithLabelValues(scope).Add(float64(keys))
}

// WebhookMetrics implements webhook.Metrics using Prometheus.
type WebhookMetrics struct {
	eventsTotal        *prometheus.CounterVec
	processingDuration *prometheus.HistogramVec
	sweepsTotal        prometheus.Counter
	sweepRedriven      prometheus.Counter
	sweepFailed        prometheus.Counter
}

// NewWebhookMetrics creates a Prometheus webhook metrics implementation.
func NewWebhookMetrics(reg prometheus.Registerer, namespace string) *WebhookMetrics {
	factory := promauto.With(reg)

	return &WebhookMetrics{
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Total number of webhook deliveries by disposition.",
		}, []string{"provider", "event_type", "status"}),

		processingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "processing_duration_seconds",
			Help:      "Duration of webhook event processing.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "event_type"}),

		sweepsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "sweeps_total",
			Help:      "Total number of redelivery sweeps.",
		}),

		sweepRedriven: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "sweep_redriven_total",
			Help:      "Total number of events re-driven by sweeps.",
		}),

		sweepFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "sweep_failures_total",
			Help:      "Total number of re-driven events that failed again.",
		}),
	}
}

func (m *WebhookMetrics) RecordEvent(provider, eventType, status string) {
	m.eventsTotal.WithLabelValues(provider, eventType, status).Inc()
}

func (m *WebhookMetrics) RecordProcessingDuration(provider, eventType string, duration time.Duration) {
	m.processingDuration.WithLabelValues(provider, eventType).Observe(duration.Seconds())
}

func (m *WebhookMetrics) RecordSweep(redriven, failed int) {
	m.sweepsTotal.Inc()
	m.sweepRedriven.Add(float64(redriven))
	m.sweepFailed.Add(float64(failed))
}
