// Package metrics defines the Prometheus collectors of the relay.
//
// All methods are safe on a nil *Metrics, so components can run without
// instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kephaschat"

// Fanout results.
const (
	FanoutDelivered = "delivered"
	FanoutFailed    = "failed"
	FanoutOffline   = "offline"
)

// Metrics holds the relay collectors.
type Metrics struct {
	connectionsActive prometheus.Gauge
	sessionsOnline    prometheus.Gauge
	framesReceived    *prometheus.CounterVec
	fanout            *prometheus.CounterVec
	authFailures      *prometheus.CounterVec
	storeErrors       *prometheus.CounterVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of open WebSocket connections, authenticated or not",
		}),
		sessionsOnline: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_online",
			Help:      "Number of identities in the session registry",
		}),
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound frames by type tag",
		}, []string{"type"}),
		fanout: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_total",
			Help:      "Outbound pushes to peers by result",
		}, []string{"result"}),
		authFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected auth frames by reason",
		}, []string{"reason"}),
		storeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Adapter failures by operation",
		}, []string{"op"}),
	}
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connectionsActive.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connectionsActive.Dec()
	}
}

// SetSessionsOnline records the registry size.
func (m *Metrics) SetSessionsOnline(n int) {
	if m != nil {
		m.sessionsOnline.Set(float64(n))
	}
}

// FrameReceived counts an inbound frame. Unknown tags are folded into
// "unknown" to keep label cardinality bounded.
func (m *Metrics) FrameReceived(frameType string, known bool) {
	if m == nil {
		return
	}
	if !known {
		frameType = "unknown"
	}
	m.framesReceived.WithLabelValues(frameType).Inc()
}

func (m *Metrics) Fanout(result string) {
	if m != nil {
		m.fanout.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) AuthFailure(reason string) {
	if m != nil {
		m.authFailures.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) StoreError(op string) {
	if m != nil {
		m.storeErrors.WithLabelValues(op).Inc()
	}
}
