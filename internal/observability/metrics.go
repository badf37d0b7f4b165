package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_http_requests_total",
			Help: "Total number of control API requests processed.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_client_http_request_duration_seconds",
			Help:    "Control API request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_client_ws_status",
			Help: "Connection status per channel (0 disconnected, 1 connecting, 2 connected).",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_ws_events_total",
			Help: "Total number of websocket lifecycle events.",
		},
		[]string{"kind", "event"},
	)
	framesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_frames_sent_total",
			Help: "Total number of frames written to the transport.",
		},
		[]string{"kind"},
	)
	sendFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_send_failures_total",
			Help: "Total number of sends rejected or failed.",
		},
		[]string{"kind", "reason"},
	)
	framesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_frames_received_total",
			Help: "Total number of inbound frames by type.",
		},
		[]string{"kind", "type"},
	)
	protocolErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_protocol_errors_total",
			Help: "Total number of unknown or malformed inbound frames.",
		},
		[]string{"kind", "reason"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_client_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsStatus,
		wsEventsTotal,
		framesSentTotal,
		sendFailuresTotal,
		framesReceivedTotal,
		protocolErrorsTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func SetWSStatus(kind string, status int) {
	wsStatus.WithLabelValues(kind).Set(float64(status))
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncFrameSent(kind string) {
	framesSentTotal.WithLabelValues(kind).Inc()
}

func IncSendFailure(kind, reason string) {
	sendFailuresTotal.WithLabelValues(kind, reason).Inc()
}

func IncFrameReceived(kind, frameType string) {
	framesReceivedTotal.WithLabelValues(kind, frameType).Inc()
}

func IncProtocolError(kind, reason string) {
	protocolErrorsTotal.WithLabelValues(kind, reason).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
