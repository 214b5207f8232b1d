package httpscrape

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tomwslape5638/vector/errors"
	"github.com/Tomwslape5638/vector/event"
	"github.com/Tomwslape5638/vector/metric"
)

// Metrics holds Prometheus metrics for one scrape source
type Metrics struct {
	requests        *prometheus.CounterVec
	eventsEmitted   prometheus.Counter
	decodeErrors    prometheus.Counter
	requestDuration *prometheus.HistogramVec
	bytesReceived   prometheus.Counter
	acknowledged    *prometheus.CounterVec
}

// newMetrics returns nil when registry is nil
func newMetrics(registry *metric.MetricsRegistry, componentName string) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	labels := prometheus.Labels{"component": componentName}
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "http_scrape",
			Name:        "requests_total",
			Help:        "Scrape requests by endpoint and outcome",
			ConstLabels: labels,
		}, []string{"endpoint", "status"}),

		eventsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "http_scrape",
			Name:        "events_emitted_total",
			Help:        "Events handed to the downstream channel",
			ConstLabels: labels,
		}),

		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "http_scrape",
			Name:        "decode_errors_total",
			Help:        "Response bodies whose decoding stopped on an error",
			ConstLabels: labels,
		}),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "http_scrape",
			Name:        "request_duration_seconds",
			Help:        "Scrape request latency",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"endpoint"}),

		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "http_scrape",
			Name:        "bytes_received_total",
			Help:        "Response body bytes after decompression",
			ConstLabels: labels,
		}),

		acknowledged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "http_scrape",
			Name:        "acknowledged_scrapes_total",
			Help:        "Scrapes whose events were all finalized downstream, by worst status",
			ConstLabels: labels,
		}, []string{"status"}),
	}

	if err := registry.RegisterCollectors(componentName,
		metric.NamedCollector{Name: "requests_total", Collector: m.requests},
		metric.NamedCollector{Name: "events_emitted_total", Collector: m.eventsEmitted},
		metric.NamedCollector{Name: "decode_errors_total", Collector: m.decodeErrors},
		metric.NamedCollector{Name: "request_duration_seconds", Collector: m.requestDuration},
		metric.NamedCollector{Name: "bytes_received_total", Collector: m.bytesReceived},
		metric.NamedCollector{Name: "acknowledged_scrapes_total", Collector: m.acknowledged},
	); err != nil {
		return nil, errors.Wrap(err, "httpscrape", "newMetrics", "register metrics")
	}

	return m, nil
}

func (m *Metrics) recordRequest(endpoint, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint, status).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(seconds)
}

func (m *Metrics) recordBody(bytes int) {
	if m == nil {
		return
	}
	m.bytesReceived.Add(float64(bytes))
}

func (m *Metrics) recordDecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

func (m *Metrics) recordEmitted() {
	if m == nil {
		return
	}
	m.eventsEmitted.Inc()
}

func (m *Metrics) recordAck(status event.EventStatus) {
	if m == nil {
		return
	}
	m.acknowledged.WithLabelValues(status.String()).Inc()
}
