package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connection metrics
	connectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "receiptly_ws_connection_state",
			Help: "Current websocket connection state (1 for the active state)",
		},
		[]string{"state"},
	)

	connectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receiptly_ws_connects_total",
			Help: "Total number of websocket dial attempts",
		},
		[]string{"result"},
	)

	reconnectsScheduledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "receiptly_ws_reconnects_scheduled_total",
			Help: "Total number of automatic reconnects scheduled",
		},
	)

	sendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receiptly_ws_sends_total",
			Help: "Total number of outbound frames by status",
		},
		[]string{"status"},
	)

	// Protocol metrics
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receiptly_chat_events_total",
			Help: "Total number of decoded inbound chat events",
		},
		[]string{"type"},
	)

	decodeErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "receiptly_chat_decode_errors_total",
			Help: "Total number of malformed inbound payloads dropped",
		},
	)

	// REST collaborator metrics
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receiptly_api_requests_total",
			Help: "Total number of REST collaborator requests",
		},
		[]string{"endpoint", "status"},
	)

	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "receiptly_api_request_duration_seconds",
			Help:    "REST collaborator request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	initOnce sync.Once
)

// InitMetrics registers all metrics with the default registry.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			connectionState,
			connectsTotal,
			reconnectsScheduledTotal,
			sendsTotal,
			eventsTotal,
			decodeErrorsTotal,
			apiRequestsTotal,
			apiRequestDuration,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

var knownStates = []string{"disconnected", "connecting", "connected"}

// SetConnectionState marks the given connection state as active.
func SetConnectionState(state string) {
	for _, s := range knownStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		connectionState.WithLabelValues(s).Set(v)
	}
}

// RecordConnect records a dial attempt outcome ("ok" or "error").
func RecordConnect(result string) {
	connectsTotal.WithLabelValues(result).Inc()
}

// RecordReconnectScheduled counts a scheduled automatic reconnect.
func RecordReconnectScheduled() {
	reconnectsScheduledTotal.Inc()
}

// RecordSend records an outbound frame ("ok", "error" or "dropped").
func RecordSend(status string) {
	sendsTotal.WithLabelValues(status).Inc()
}

// RecordEvent counts a decoded inbound event by type.
func RecordEvent(eventType string) {
	eventsTotal.WithLabelValues(eventType).Inc()
}

// RecordDecodeError counts a dropped malformed payload.
func RecordDecodeError() {
	decodeErrorsTotal.Inc()
}

// RecordAPIRequest records a REST collaborator request.
func RecordAPIRequest(endpoint, status string, duration time.Duration) {
	apiRequestsTotal.WithLabelValues(endpoint, status).Inc()
	apiRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
