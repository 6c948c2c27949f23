// Package metrics exposes Prometheus instrumentation for the streaming core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the streaming core.
type Metrics struct {
	registry            *prometheus.Registry
	keysIssuedTotal     prometheus.Counter
	streamsStartedTotal prometheus.Counter
	streamsEndedTotal   prometheus.Counter
	streamsExpiredTotal prometheus.Counter
	activeStreams       prometheus.Gauge
	viewersPresent      prometheus.Gauge
	chatMessagesTotal   prometheus.Counter
	wsConnections       prometheus.Gauge
}

// New creates and registers Prometheus metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		keysIssuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamdj_keys_issued_total",
			Help: "Total number of stream keys issued",
		}),
		streamsStartedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamdj_streams_started_total",
			Help: "Total number of streams activated by the ingest gateway",
		}),
		streamsEndedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamdj_streams_ended_total",
			Help: "Total number of streams ended (deactivate or owner end)",
		}),
		streamsExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamdj_streams_expired_total",
			Help: "Total number of streams force-ended by the expiry sweep",
		}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamdj_active_streams",
			Help: "Number of currently active streams",
		}),
		viewersPresent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamdj_viewers_present",
			Help: "Distinct viewer identities present across all streams",
		}),
		chatMessagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamdj_chat_messages_total",
			Help: "Total chat messages relayed",
		}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamdj_ws_connections",
			Help: "Open WebSocket connections",
		}),
	}

	registry.MustRegister(
		m.keysIssuedTotal,
		m.streamsStartedTotal,
		m.streamsEndedTotal,
		m.streamsExpiredTotal,
		m.activeStreams,
		m.viewersPresent,
		m.chatMessagesTotal,
		m.wsConnections,
	)
	return m
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// KeyIssued increments the keys-issued counter.
func (m *Metrics) KeyIssued() { m.keysIssuedTotal.Inc() }

// StreamStarted tracks one activation.
func (m *Metrics) StreamStarted() {
	m.streamsStartedTotal.Inc()
	m.activeStreams.Inc()
}

// StreamEnded tracks one deactivation.
func (m *Metrics) StreamEnded() {
	m.streamsEndedTotal.Inc()
	m.activeStreams.Dec()
}

// StreamExpired tracks one sweep-forced end.
func (m *Metrics) StreamExpired() {
	m.streamsExpiredTotal.Inc()
	m.activeStreams.Dec()
}

// SetViewersPresent records the current distinct-viewer total.
func (m *Metrics) SetViewersPresent(n int) { m.viewersPresent.Set(float64(n)) }

// ChatMessage increments the relayed-message counter.
func (m *Metrics) ChatMessage() { m.chatMessagesTotal.Inc() }

// WSConnected / WSDisconnected track the open connection gauge.
func (m *Metrics) WSConnected() { m.wsConnections.Inc() }

// WSDisconnected decrements the open connection gauge.
func (m *Metrics) WSDisconnected() { m.wsConnections.Dec() }
