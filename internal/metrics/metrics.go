package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "herald_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	notificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_notifications_created_total",
			Help: "Total notifications created by type and priority",
		},
		[]string{"type", "priority"},
	)

	realtimeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_realtime_events_total",
			Help: "Total events emitted over the live channel",
		},
		[]string{"event"},
	)

	realtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "herald_realtime_connections",
			Help: "Live websocket connections currently joined to a room",
		},
	)

	escalationsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_escalations_processed_total",
			Help: "Escalation delivery attempts by channel and outcome",
		},
		[]string{"channel", "status"},
	)

	notificationsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "herald_notifications_purged_total",
			Help: "Notifications physically removed by the retention sweep",
		},
	)

	eventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_platform_events_consumed_total",
			Help: "Platform events consumed from the queue by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	rateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "herald_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics.
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordNotificationCreated records a successfully persisted notification.
func RecordNotificationCreated(notifType, priority string) {
	notificationsCreated.WithLabelValues(notifType, priority).Inc()
}

// RecordRealtimeEvent records an event pushed over the live channel.
func RecordRealtimeEvent(event string) {
	realtimeEvents.WithLabelValues(event).Inc()
}

// IncRealtimeConnections tracks a connection joining a room.
func IncRealtimeConnections() {
	realtimeConnections.Inc()
}

// DecRealtimeConnections tracks a connection leaving a room.
func DecRealtimeConnections() {
	realtimeConnections.Dec()
}

// RecordEscalationProcessed records an escalation delivery outcome.
func RecordEscalationProcessed(channel, status string) {
	escalationsProcessed.WithLabelValues(channel, status).Inc()
}

// RecordNotificationsPurged records rows removed by the retention sweep.
func RecordNotificationsPurged(count int64) {
	notificationsPurged.Add(float64(count))
}

// RecordEventConsumed records a platform event pulled from the queue.
func RecordEventConsumed(eventType, outcome string) {
	eventsConsumed.WithLabelValues(eventType, outcome).Inc()
}

// RecordRateLimitRejection records a request rejected by the rate limiter.
func RecordRateLimitRejection() {
	rateLimitRejections.Inc()
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
