// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// MessagesTotal tracks total messages committed.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages committed to the store",
		},
		[]string{"kind"},
	)

	// SendsDenied tracks sends rejected by the request gate.
	SendsDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sends_denied_total",
			Help: "Sends rejected by the request gate",
		},
		[]string{"reason"},
	)

	// ConversationsTotal tracks conversations created by initial status.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"status"},
	)

	// LiveSubscriptionsActive tracks open live-query subscriptions.
	LiveSubscriptionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "live_subscriptions_active",
			Help: "Number of active live-query subscriptions",
		},
		[]string{"kind"},
	)

	// SnapshotDecodeFailures tracks records skipped during snapshot decoding.
	SnapshotDecodeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_decode_failures_total",
			Help: "Records skipped while decoding a live snapshot",
		},
		[]string{"collection"},
	)

	// PaginationFetches tracks backward pagination fetches.
	PaginationFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagination_fetches_total",
			Help: "Backward pagination fetches against message history",
		},
		[]string{"outcome"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// EventsPublished tracks domain events published to NATS.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Domain events published to the event stream",
		},
		[]string{"type"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
