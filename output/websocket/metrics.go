package websocket

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tomwslape5638/vector/errors"
	"github.com/Tomwslape5638/vector/metric"
)

// Metrics holds Prometheus metrics for one WebSocket sink
type Metrics struct {
	connectionState prometheus.Gauge
	eventsSent      prometheus.Counter
	eventsFailed    prometheus.Counter
	bytesSent       prometheus.Counter
	reconnects      prometheus.Counter
	connectErrors   prometheus.Counter
	pingsSent       prometheus.Counter
	pongTimeouts    prometheus.Counter
}

// newMetrics returns nil when registry is nil
func newMetrics(registry *metric.MetricsRegistry, componentName string) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	labels := prometheus.Labels{"component": componentName}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "websocket",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	m := &Metrics{
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "websocket",
			Name:        "connection_state",
			Help:        "Connection state (0=disconnected, 1=connecting, 2=open, 3=closing)",
			ConstLabels: labels,
		}),
		eventsSent:    counter("events_sent_total", "Events written to the connection"),
		eventsFailed:  counter("events_failed_total", "Events whose write failed"),
		bytesSent:     counter("bytes_sent_total", "Encoded bytes written to the connection"),
		reconnects:    counter("reconnects_total", "Connections opened after the first one"),
		connectErrors: counter("connect_errors_total", "Failed connection attempts"),
		pingsSent:     counter("pings_sent_total", "Keepalive pings sent"),
		pongTimeouts:  counter("pong_timeouts_total", "Connections dropped because no pong arrived in time"),
	}

	if err := registry.RegisterCollectors(componentName,
		metric.NamedCollector{Name: "connection_state", Collector: m.connectionState},
		metric.NamedCollector{Name: "events_sent_total", Collector: m.eventsSent},
		metric.NamedCollector{Name: "events_failed_total", Collector: m.eventsFailed},
		metric.NamedCollector{Name: "bytes_sent_total", Collector: m.bytesSent},
		metric.NamedCollector{Name: "reconnects_total", Collector: m.reconnects},
		metric.NamedCollector{Name: "connect_errors_total", Collector: m.connectErrors},
		metric.NamedCollector{Name: "pings_sent_total", Collector: m.pingsSent},
		metric.NamedCollector{Name: "pong_timeouts_total", Collector: m.pongTimeouts},
	); err != nil {
		return nil, errors.Wrap(err, "websocket", "newMetrics", "register metrics")
	}

	return m, nil
}

func (m *Metrics) recordState(state State) {
	if m == nil {
		return
	}
	m.connectionState.Set(float64(state))
}

func (m *Metrics) recordSent(bytes int) {
	if m == nil {
		return
	}
	m.eventsSent.Inc()
	m.bytesSent.Add(float64(bytes))
}

func (m *Metrics) recordFailed() {
	if m == nil {
		return
	}
	m.eventsFailed.Inc()
}

func (m *Metrics) recordReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) recordConnectError() {
	if m == nil {
		return
	}
	m.connectErrors.Inc()
}

func (m *Metrics) recordPing() {
	if m == nil {
		return
	}
	m.pingsSent.Inc()
}

func (m *Metrics) recordPongTimeout() {
	if m == nil {
		return
	}
	m.pongTimeouts.Inc()
}
