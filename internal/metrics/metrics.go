// Package metrics holds the Prometheus collectors of the chat server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quickchat_ws_connections",
		Help: "Open push-channel connections",
	})

	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quickchat_online_users",
		Help: "Users with at least one open connection",
	})

	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quickchat_messages_sent_total",
		Help: "Persisted messages by kind (text, image, mixed)",
	}, []string{"kind"})

	PushDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quickchat_push_deliveries_total",
		Help: "newMessage pushes by result (ok, failed)",
	}, []string{"result"})

	MediaUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quickchat_media_uploads_total",
		Help: "Media uploads by result (ok, failed, rejected)",
	}, []string{"result"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quickchat_circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quickchat_http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quickchat_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "route"})
)

// MessageKind labels a message for MessagesSent.
func MessageKind(hasText, hasImage bool) string {
	switch {
	case hasText && hasImage:
		return "mixed"
	case hasImage:
		return "image"
	default:
		return "text"
	}
}
