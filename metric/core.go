package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name
const Namespace = "vector"

// Component status values reported by RecordComponentStatus
const (
	StatusStopped  = 0
	StatusRunning  = 1
	StatusStopping = 2
	StatusFailed   = 3
)

// Metrics contains the pipeline-level metrics shared by all components
type Metrics struct {
	ComponentStatus  *prometheus.GaugeVec
	HealthStatus     *prometheus.GaugeVec
	ShutdownDuration *prometheus.HistogramVec
	ShutdownTimeouts *prometheus.CounterVec
	BufferedEvents   *prometheus.CounterVec

	NATSConnected      prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

// NewMetrics creates the pipeline metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ComponentStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "component",
			Name:      "status",
			Help:      "Component status (0=stopped, 1=running, 2=stopping, 3=failed)",
		}, []string{"component", "kind"}),

		HealthStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "component",
			Name:      "healthy",
			Help:      "Result of the last healthcheck (0=unhealthy, 1=healthy)",
		}, []string{"component"}),

		ShutdownDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "shutdown",
			Name:      "duration_seconds",
			Help:      "Time from shutdown request to component completion",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"component"}),

		ShutdownTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "shutdown",
			Name:      "timeouts_total",
			Help:      "Components that did not complete before the shutdown deadline",
		}, []string{"component"}),

		BufferedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "buffer",
			Name:      "events_total",
			Help:      "Events accepted by a buffer between a source and its sinks",
		}, []string{"source", "buffer"}),

		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "nats",
			Name:      "connected",
			Help:      "NATS connection status (0=disconnected, 1=connected)",
		}),

		NATSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "nats",
			Name:      "reconnects_total",
			Help:      "Total number of NATS reconnections",
		}),

		NATSCircuitBreaker: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "nats",
			Name:      "circuit_breaker",
			Help:      "NATS circuit breaker status (0=closed, 1=open, 2=half-open)",
		}),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.ComponentStatus,
		c.HealthStatus,
		c.ShutdownDuration,
		c.ShutdownTimeouts,
		c.BufferedEvents,
		c.NATSConnected,
		c.NATSReconnects,
		c.NATSCircuitBreaker,
	}
}

// RecordComponentStatus updates the status gauge of a component
func (c *Metrics) RecordComponentStatus(component, kind string, status int) {
	c.ComponentStatus.WithLabelValues(component, kind).Set(float64(status))
}

// RecordHealthStatus updates the healthcheck gauge of a component
func (c *Metrics) RecordHealthStatus(component string, healthy bool) {
	c.HealthStatus.WithLabelValues(component).Set(boolToFloat(healthy))
}

// RecordShutdown records how a component's shutdown went
func (c *Metrics) RecordShutdown(component string, duration time.Duration, completed bool) {
	if !completed {
		c.ShutdownTimeouts.WithLabelValues(component).Inc()
		return
	}
	c.ShutdownDuration.WithLabelValues(component).Observe(duration.Seconds())
}

// RecordBufferedEvent counts an event accepted by a buffer
func (c *Metrics) RecordBufferedEvent(source, buffer string) {
	c.BufferedEvents.WithLabelValues(source, buffer).Inc()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	c.NATSConnected.Set(boolToFloat(connected))
}

// RecordNATSReconnect increments the reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (c *Metrics) RecordCircuitBreakerState(state int) {
	c.NATSCircuitBreaker.Set(float64(state))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
