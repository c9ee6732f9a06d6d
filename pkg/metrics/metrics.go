// Package metrics holds the Prometheus collectors exported on /metrics
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dashboard"

var (
	// Registry holds the service collectors plus the Go and process collectors
	Registry = prometheus.NewRegistry()

	HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "path"})

	DepositConfirmationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "deposit",
		Name:      "confirmations_total",
		Help:      "Deposit confirmations by payment method and outcome.",
	}, []string{"method", "outcome"})

	DepositStatusChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "deposit",
		Name:      "status_checks_total",
		Help:      "Transaction status checks by trigger and result.",
	}, []string{"trigger", "result"})

	ActiveDepositSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "deposit",
		Name:      "active_sessions",
		Help:      "Deposit sessions currently tracked in memory.",
	})

	UpstreamRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "account_api",
		Name:      "request_duration_seconds",
		Help:      "Duration of account API calls by operation and result.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "result"})

	CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "account_api",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open).",
	}, []string{"name"})

	FeeScheduleRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fees",
		Name:      "refresh_total",
		Help:      "Fee schedule refreshes by result.",
	}, []string{"result"})

	RealtimeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "connections",
		Help:      "Open websocket connections.",
	})

	RateLimitHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "rate_limit_hits_total",
		Help:      "Requests rejected by a rate limit tier.",
	}, []string{"tier"})

	DatabaseConnectionsGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "connections",
		Help:      "Database pool connections by state.",
	}, []string{"state"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestsInFlight,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		DepositConfirmationsTotal,
		DepositStatusChecksTotal,
		ActiveDepositSessions,
		UpstreamRequestDuration,
		CircuitBreakerState,
		FeeScheduleRefreshTotal,
		RealtimeConnections,
		RateLimitHitsTotal,
		DatabaseConnectionsGauge,
	)
}

// Handler exposes the registry for scraping
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
