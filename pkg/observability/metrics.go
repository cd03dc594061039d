package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors of the portal client and relay. Each
// instance owns its registry so tests and multiple clients do not collide.
type Metrics struct {
	Registry *prometheus.Registry

	ClientRequests  *prometheus.CounterVec
	ClientLatency   *prometheus.HistogramVec
	StreamEvents    *prometheus.CounterVec
	RelayForwarded  *prometheus.CounterVec
	RelayDuplicates prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ClientRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_client_requests_total",
			Help: "Total number of portal API requests by method and status code.",
		}, []string{"method", "status"}),
		ClientLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_client_request_duration_seconds",
			Help:    "Latency of portal API requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		StreamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_stream_events_total",
			Help: "Total number of push channel events received by type.",
		}, []string{"type"}),
		RelayForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_relay_forwarded_total",
			Help: "Total number of notifications forwarded by sink and result.",
		}, []string{"sink", "result"}),
		RelayDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_relay_duplicates_total",
			Help: "Total number of notifications skipped as already relayed.",
		}),
	}
	m.Registry.MustRegister(m.ClientRequests, m.ClientLatency, m.StreamEvents, m.RelayForwarded, m.RelayDuplicates)
	return m
}

// ObserveRequest records one API round trip. status is 0 for transport errors.
func (m *Metrics) ObserveRequest(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ClientRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.ClientLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveEvent(eventType string) {
	if m == nil {
		return
	}
	m.StreamEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
