// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	EventsClassified     prometheus.Counter
	EventsAmbiguous      prometheus.Counter
	IngestionErrors      *prometheus.CounterVec
	TrackedWallets       prometheus.Gauge
	SubscriptionRestarts prometheus.Counter

	// Copy-trade metrics
	FanOutsTotal       prometheus.Counter
	SwapEventsEmitted  prometheus.Counter
	SubscriberFailures prometheus.Counter
	SubscriberSkips    *prometheus.CounterVec

	// Builder metrics
	BuildsTotal  *prometheus.CounterVec
	BuildLatency *prometheus.HistogramVec

	// Settlement metrics
	SettlementsTotal    *prometheus.CounterVec
	ConfirmationLatency prometheus.Histogram

	// Bus metrics
	BusPublished    *prometheus.CounterVec
	BusDeadLettered *prometheus.CounterVec
	BusDepth        *prometheus.GaugeVec

	// Latency metrics
	RPCCallLatency   *prometheus.HistogramVec
	WSMessageLatency prometheus.Histogram

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastClassifiedEvent prometheus.Gauge
	LastSettledSwap     prometheus.Gauge
	UptimeSeconds       prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_copytrader"
	}

	return &Metrics{
		// Ingestion metrics
		EventsClassified: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_classified_total",
			Help:      "Total number of transactions classified as trade events",
		}),
		EventsAmbiguous: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_ambiguous_total",
			Help:      "Total number of transactions skipped as ambiguous",
		}),
		IngestionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "errors_total",
			Help:      "Total number of ingestion errors by stage",
		}, []string{"stage"}),
		TrackedWallets: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "tracked_wallets",
			Help:      "Current number of wallets covered by the log subscription",
		}),
		SubscriptionRestarts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "subscription_restarts_total",
			Help:      "Total number of log subscription restarts",
		}),

		// Copy-trade metrics
		FanOutsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "copytrade",
			Name:      "fan_outs_total",
			Help:      "Total number of trade events fanned out to followers",
		}),
		SwapEventsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "copytrade",
			Name:      "swap_events_emitted_total",
			Help:      "Total number of swap events emitted for followers",
		}),
		SubscriberFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "copytrade",
			Name:      "subscriber_failures_total",
			Help:      "Total number of per-subscriber fan-out failures",
		}),
		SubscriberSkips: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "copytrade",
			Name:      "subscriber_skips_total",
			Help:      "Total number of subscribers skipped by reason",
		}, []string{"reason"}),

		// Builder metrics
		BuildsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "txbuilder",
			Name:      "builds_total",
			Help:      "Total number of transaction builds by venue and status",
		}, []string{"venue", "status"}),
		BuildLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "txbuilder",
			Name:      "build_latency_seconds",
			Help:      "Transaction build latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"venue"}),

		// Settlement metrics
		SettlementsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "settlements_total",
			Help:      "Total number of settled swap attempts by status",
		}, []string{"status"}),
		ConfirmationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "confirmation_latency_seconds",
			Help:      "Time from submission to confirmed status in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90},
		}),

		// Bus metrics
		BusPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "messages_published_total",
			Help:      "Total number of messages published by topic",
		}, []string{"topic"}),
		BusDeadLettered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "messages_dead_lettered_total",
			Help:      "Total number of messages parked on dead streams by topic",
		}, []string{"topic"}),
		BusDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "stream_depth",
			Help:      "Current stream length by topic",
		}, []string{"topic"}),

		// Latency metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WSMessageLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_message_latency_seconds",
			Help:      "WebSocket message processing latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastClassifiedEvent: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_classified_event_timestamp",
			Help:      "Unix timestamp of the last classified trade event",
		}),
		LastSettledSwap: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_settled_swap_timestamp",
			Help:      "Unix timestamp of the last settled swap",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEventClassified increments the classified events counter and
// bumps the health timestamp.
func RecordEventClassified(unixSeconds int64) {
	DefaultMetrics.EventsClassified.Inc()
	DefaultMetrics.LastClassifiedEvent.Set(float64(unixSeconds))
}

// RecordEventAmbiguous increments the ambiguous skip counter.
func RecordEventAmbiguous() {
	DefaultMetrics.EventsAmbiguous.Inc()
}

// RecordIngestionError records an ingestion error for a stage.
func RecordIngestionError(stage string) {
	DefaultMetrics.IngestionErrors.WithLabelValues(stage).Inc()
}

// UpdateTrackedWallets updates the tracked wallet gauge.
func UpdateTrackedWallets(n int) {
	DefaultMetrics.TrackedWallets.Set(float64(n))
}

// RecordFanOut records one fan-out and the swap events it emitted.
func RecordFanOut(emitted int) {
	DefaultMetrics.FanOutsTotal.Inc()
	DefaultMetrics.SwapEventsEmitted.Add(float64(emitted))
}

// RecordBuild records one venue build attempt.
func RecordBuild(venue, status string, seconds float64) {
	DefaultMetrics.BuildsTotal.WithLabelValues(venue, status).Inc()
	DefaultMetrics.BuildLatency.WithLabelValues(venue).Observe(seconds)
}

// RecordSettlement records a settled attempt and bumps the health
// timestamp.
func RecordSettlement(status string, unixSeconds int64) {
	DefaultMetrics.SettlementsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.LastSettledSwap.Set(float64(unixSeconds))
}

// RecordBusPublish increments the publish counter for a topic.
func RecordBusPublish(topic string) {
	DefaultMetrics.BusPublished.WithLabelValues(topic).Inc()
}

// RecordDeadLetter increments the dead-letter counter for a topic.
func RecordDeadLetter(topic string) {
	DefaultMetrics.BusDeadLettered.WithLabelValues(topic).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
