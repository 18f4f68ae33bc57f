package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics methods are safe on a nil receiver so components can run without
// instrumentation in tests.
type Metrics struct {
	ConnectionsTotal    prometheus.Gauge
	SubscriptionsByRoom *prometheus.GaugeVec
	MessagesReceived    prometheus.Counter
	MessagesSent        prometheus.Counter
	SlowClients         prometheus.Counter
	StaleSnapshots      prometheus.Counter
	Publishes           *prometheus.CounterVec
	RecomputeLatency    prometheus.Histogram
	KafkaMessages       *prometheus.CounterVec
	RedisOperations     *prometheus.CounterVec
	AuthFailures        prometheus.Counter
	RateLimited         *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ws_connections_total",
			Help: "Total number of active WebSocket connections",
		}),
		SubscriptionsByRoom: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ws_subscriptions_by_room_type",
			Help: "Number of room subscriptions per room type",
		}, []string{"room_type"}),
		MessagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "ws_messages_received_total",
			Help: "Total number of messages received from clients",
		}),
		MessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "ws_messages_sent_total",
			Help: "Total number of messages queued to clients",
		}),
		SlowClients: factory.NewCounter(prometheus.CounterOpts{
			Name: "ws_slow_clients_disconnected_total",
			Help: "Clients disconnected because their send buffer was full",
		}),
		StaleSnapshots: factory.NewCounter(prometheus.CounterOpts{
			Name: "ws_stale_snapshots_skipped_total",
			Help: "Leaderboard snapshots skipped because the client already had a newer one",
		}),
		Publishes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "broadcast_publishes_total",
			Help: "Broadcast publish attempts by room type and outcome",
		}, []string{"room_type", "status"}),
		RecomputeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "leaderboard_recompute_seconds",
			Help:    "Leaderboard recompute latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		KafkaMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kafka_messages_processed_total",
			Help: "Total number of Kafka messages processed",
		}, []string{"topic", "status"}),
		RedisOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total number of Redis operations",
		}, []string{"operation", "status"}),
		AuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ws_auth_failures_total",
			Help: "Total number of authentication failures",
		}),
		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Requests or socket messages rejected by rate limiting",
		}, []string{"scope"}),
	}
}

func (m *Metrics) IncConnections() {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Inc()
}

func (m *Metrics) DecConnections() {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Dec()
}

func (m *Metrics) IncRoomSubscriptions(roomType string) {
	if m == nil {
		return
	}
	m.SubscriptionsByRoom.WithLabelValues(roomType).Inc()
}

func (m *Metrics) DecRoomSubscriptions(roomType string) {
	if m == nil {
		return
	}
	m.SubscriptionsByRoom.WithLabelValues(roomType).Dec()
}

func (m *Metrics) IncMessagesReceived() {
	if m == nil {
		return
	}
	m.MessagesReceived.Inc()
}

func (m *Metrics) IncMessagesSent() {
	if m == nil {
		return
	}
	m.MessagesSent.Inc()
}

func (m *Metrics) IncSlowClients() {
	if m == nil {
		return
	}
	m.SlowClients.Inc()
}

func (m *Metrics) IncStaleSnapshots() {
	if m == nil {
		return
	}
	m.StaleSnapshots.Inc()
}

func (m *Metrics) IncPublish(roomType, status string) {
	if m == nil {
		return
	}
	m.Publishes.WithLabelValues(roomType, status).Inc()
}

func (m *Metrics) ObserveRecompute(seconds float64) {
	if m == nil {
		return
	}
	m.RecomputeLatency.Observe(seconds)
}

func (m *Metrics) IncKafkaMessage(topic, status string) {
	if m == nil {
		return
	}
	m.KafkaMessages.WithLabelValues(topic, status).Inc()
}

func (m *Metrics) IncRedisOperation(operation, status string) {
	if m == nil {
		return
	}
	m.RedisOperations.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) IncAuthFailures() {
	if m == nil {
		return
	}
	m.AuthFailures.Inc()
}

func (m *Metrics) IncRateLimited(scope string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(scope).Inc()
}
