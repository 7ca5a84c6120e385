// Package telemetry holds the Prometheus metrics and OpenTelemetry tracing
// setup for the backend.
//
// All Metrics methods are nil-safe so services and tests can run without a
// registry.
package telemetry

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "loop"

type Metrics struct {
	MessagesSent      *prometheus.CounterVec
	ReadMarkers       prometheus.Counter
	WSConnections     prometheus.Gauge
	BroadcastsDropped prometheus.Counter
	RelayErrors       *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// NewMetrics registers all collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MessagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_sent_total",
			Help:      "Messages persisted, by kind (direct, group, community).",
		}, []string{"kind"}),
		ReadMarkers: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "read_markers_total",
			Help:      "Read markers created.",
		}),
		WSConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "ws_connections",
			Help:      "Currently connected websocket clients.",
		}),
		BroadcastsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ws_broadcasts_dropped_total",
			Help:      "Broadcast frames dropped because a client send buffer was full.",
		}),
		RelayErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "relay_errors_total",
			Help:      "Realtime events rejected, by event and error kind.",
		}, []string{"event", "kind"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) MessageSent(kind string) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(kind).Inc()
}

func (m *Metrics) ReadMarkersCreated(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.ReadMarkers.Add(float64(n))
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

func (m *Metrics) BroadcastDropped() {
	if m == nil {
		return
	}
	m.BroadcastsDropped.Inc()
}

func (m *Metrics) RelayError(event, kind string) {
	if m == nil {
		return
	}
	m.RelayErrors.WithLabelValues(event, kind).Inc()
}

// GinMiddleware records request count and latency per matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
