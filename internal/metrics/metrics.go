// Package metrics registers the Prometheus collectors exposed by the bus
// server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SubscriptionsTotal counts every Add call across all banks,
	// regardless of whether it inserted or refreshed.
	SubscriptionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mcci_subscriptions_total",
		Help: "Total subscription add attempts by pattern and result",
	}, []string{"pattern", "result"})

	// SubscriptionsActive is registered for live subscriptions per pattern
	// bank; no code path sets it, so it reads zero.
	SubscriptionsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mcci_subscriptions_active",
		Help: "Current live subscriptions by pattern bank",
	}, []string{"pattern"})

	// DispatchFanoutSize is the distribution of client counts per
	// Dispatch call.
	DispatchFanoutSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mcci_dispatch_fanout_size",
		Help:    "Number of clients delivered to per data packet",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500},
	})

	// DispatchDurationSeconds times the Dispatch call itself.
	DispatchDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mcci_dispatch_duration_seconds",
		Help:    "Wall time spent in Engine.Dispatch",
		Buckets: prometheus.DefBuckets,
	})

	// RequestsRejectedTotal counts rejected process_request calls by
	// reason (quota, invalid-pattern, admission).
	RequestsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mcci_requests_rejected_total",
		Help: "Total rejected subscription requests by reason",
	}, []string{"reason"})

	// HeapSize is registered for the live node count in each bank's
	// timeout heap; no code path sets it, so it reads zero.
	HeapSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mcci_heap_size",
		Help: "Live timeout-heap node count by bank",
	}, []string{"bank"})

	// TimeoutsExpiredTotal counts subscriptions silently expired by
	// EnforceTimeouts, by bank.
	TimeoutsExpiredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mcci_timeouts_expired_total",
		Help: "Total subscriptions expired by EnforceTimeouts, by bank",
	}, []string{"bank"})

	// CPU and goroutine gauges for the admission-control layer (§3.4). The
	// CPU figure is gopsutil's all-core percentage; container limits are
	// not detected.
	CPUContainerPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mcci_cpu_container_percent",
		Help: "CPU usage percentage across all cores (0-100%)",
	})

	GoroutinesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mcci_goroutines_active",
		Help: "Current number of active goroutines",
	})

	// ConnectionsActive tracks live transport connections (§3.1).
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mcci_connections_active",
		Help: "Current number of active client transport connections",
	})

	// ProductionEventsConsumedTotal counts production events ingested
	// from Kafka/Redpanda (§3.3).
	ProductionEventsConsumedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mcci_production_events_consumed_total",
		Help: "Total production events consumed from the ingest topic",
	})

	// PeerMessagesTotal counts NATS peer-forwarding traffic (§3.2).
	PeerMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mcci_peer_messages_total",
		Help: "Total peer messages by direction and kind",
	}, []string{"direction", "kind"})
)

func init() {
	prometheus.MustRegister(
		SubscriptionsTotal,
		SubscriptionsActive,
		DispatchFanoutSize,
		DispatchDurationSeconds,
		RequestsRejectedTotal,
		HeapSize,
		TimeoutsExpiredTotal,
		CPUContainerPercent,
		GoroutinesActive,
		ConnectionsActive,
		ProductionEventsConsumedTotal,
		PeerMessagesTotal,
	)
}

// Handler returns the HTTP handler that serves the Prometheus scrape
// endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
