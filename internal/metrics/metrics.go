// Package metrics provides Prometheus metrics for the SSH stack.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "sshmux"
)

// Metrics contains all Prometheus metrics for the stack. The Observe*
// helper methods are safe on a nil *Metrics; callers that use the
// fields directly check the pointer for nil first.
type Metrics struct {
	// Transport metrics
	PacketsSent     *prometheus.CounterVec
	PacketsReceived *prometheus.CounterVec
	BytesSent       prometheus.Counter
	BytesReceived   prometheus.Counter
	KeyExchanges    prometheus.Counter
	Disconnects     *prometheus.CounterVec
	KeepalivesSent  prometheus.Counter

	// Auth metrics
	AuthAttempts  *prometheus.CounterVec
	AuthFailures  prometheus.Counter
	AuthSuccesses prometheus.Counter

	// Channel metrics
	ChannelsActive prometheus.Gauge
	ChannelsOpened prometheus.Counter
	ChannelsClosed prometheus.Counter
	OpenFailures   *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance registered on the default
// registerer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PacketsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_sent_total",
			Help:      "Number of SSH packets sent, by message name",
		}, []string{"message"}),
		PacketsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "Number of SSH packets received, by message name",
		}, []string{"message"}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Payload bytes sent on the transport",
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Payload bytes received on the transport",
		}),
		KeyExchanges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_exchanges_total",
			Help:      "Number of completed key exchanges including rekeys",
		}),
		Disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Number of disconnects, by origin (local or peer)",
		}, []string{"origin"}),
		KeepalivesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keepalives_sent_total",
			Help:      "Number of keepalive probes sent",
		}),
		AuthAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Number of authentication attempts, by method",
		}, []string{"method"}),
		AuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Number of failed authentication attempts",
		}),
		AuthSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_successes_total",
			Help:      "Number of successful authentications",
		}),
		ChannelsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels_active",
			Help:      "Number of currently open channels",
		}),
		ChannelsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channels_opened_total",
			Help:      "Number of channels opened",
		}),
		ChannelsClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channels_closed_total",
			Help:      "Number of channels closed",
		}),
		OpenFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "open_failures_total",
			Help:      "Number of channel open failures, by reason code",
		}, []string{"reason"}),
	}
}

// ObservePacketSent records a sent packet. Nil-safe.
func (m *Metrics) ObservePacketSent(message string, payloadLen int) {
	if m == nil {
		return
	}
	m.PacketsSent.WithLabelValues(message).Inc()
	m.BytesSent.Add(float64(payloadLen))
}

// ObservePacketReceived records a received packet. Nil-safe.
func (m *Metrics) ObservePacketReceived(message string, payloadLen int) {
	if m == nil {
		return
	}
	m.PacketsReceived.WithLabelValues(message).Inc()
	m.BytesReceived.Add(float64(payloadLen))
}

// ObserveKeyExchange records a completed key exchange. Nil-safe.
func (m *Metrics) ObserveKeyExchange() {
	if m == nil {
		return
	}
	m.KeyExchanges.Inc()
}

// ObserveDisconnect records a disconnect. Nil-safe.
func (m *Metrics) ObserveDisconnect(origin string) {
	if m == nil {
		return
	}
	m.Disconnects.WithLabelValues(origin).Inc()
}

// ObserveKeepalive records a keepalive probe. Nil-safe.
func (m *Metrics) ObserveKeepalive() {
	if m == nil {
		return
	}
	m.KeepalivesSent.Inc()
}
