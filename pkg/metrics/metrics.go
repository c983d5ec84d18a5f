package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Notifications created by fan-out",
		},
		[]string{"type", "channel", "status"}, // status: pending, batched
	)

	DedupHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_dedup_hits_total",
			Help: "Send requests reconciled against an existing notification",
		},
		[]string{"strategy"}, // strategy: ignore, overwrite, idempotency_key
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_deliveries_total",
			Help: "Delivery attempts by outcome",
		},
		[]string{"channel", "outcome"}, // outcome: sent, retryable, failed, expired, skipped
	)

	DeliveryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_delivery_latency_seconds",
			Help:    "Channel adapter send latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		},
		[]string{"channel"},
	)

	BatchesFlushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_batches_flushed_total",
			Help: "Digest batches processed by outcome",
		},
		[]string{"outcome"}, // outcome: sent, failed
	)

	ActionsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_actions_executed_total",
			Help: "Notification actions executed by outcome",
		},
		[]string{"action_type", "outcome"}, // outcome: completed, failed, rejected
	)

	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)
)

func RecordDelivery(channel, outcome string, duration time.Duration) {
	Deliveries.WithLabelValues(channel, outcome).Inc()
	DeliveryLatency.WithLabelValues(channel).Observe(duration.Seconds())
}

func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}
