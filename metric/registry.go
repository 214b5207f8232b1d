package metric

import (
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Tomwslape5638/vector/errors"
)

// MetricsRegistrar registers component-specific metrics
type MetricsRegistrar interface {
	RegisterCounter(componentName, metricName string, counter prometheus.Counter) error
	RegisterGauge(componentName, metricName string, gauge prometheus.Gauge) error
	RegisterHistogram(componentName, metricName string, histogram prometheus.Histogram) error
	RegisterCounterVec(componentName, metricName string, counterVec *prometheus.CounterVec) error
	RegisterGaugeVec(componentName, metricName string, gaugeVec *prometheus.GaugeVec) error
	RegisterHistogramVec(componentName, metricName string, histogramVec *prometheus.HistogramVec) error
	Unregister(componentName, metricName string) bool
}

// MetricsRegistry manages the registration and lifecycle of metrics
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
	registeredMetrics  map[string]prometheus.Collector
	mu                 sync.RWMutex
}

var _ MetricsRegistrar = (*MetricsRegistry)(nil)

// NewMetricsRegistry creates a new metrics registry with the core pipeline metrics
func NewMetricsRegistry() *MetricsRegistry {
	registry := &MetricsRegistry{
		prometheusRegistry: prometheus.NewRegistry(),
		registeredMetrics:  make(map[string]prometheus.Collector),
		Metrics:            NewMetrics(),
	}

	registry.prometheusRegistry.MustRegister(registry.Metrics.collectors()...)
	registry.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return registry
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// CoreMetrics returns the core pipeline metrics
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	return r.Metrics
}

// register adds collector under componentName.metricName. A key that is already taken or
// a collector Prometheus rejects as a duplicate is an invalid registration.
func (r *MetricsRegistry) register(method, componentName, metricName string, collector prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", componentName, metricName)

	if _, exists := r.registeredMetrics[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered for component %s", metricName, componentName),
			"MetricsRegistry", method, "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegErr) {
			return errors.WrapInvalid(err, "MetricsRegistry", method,
				fmt.Sprintf("prometheus conflict for metric %s", metricName))
		}
		return errors.WrapFatal(err, "MetricsRegistry", method, "register collector with prometheus")
	}

	r.registeredMetrics[key] = collector
	return nil
}

// RegisterCounter registers a counter metric for a component
func (r *MetricsRegistry) RegisterCounter(componentName, metricName string, counter prometheus.Counter) error {
	return r.register("RegisterCounter", componentName, metricName, counter)
}

// RegisterGauge registers a gauge metric for a component
func (r *MetricsRegistry) RegisterGauge(componentName, metricName string, gauge prometheus.Gauge) error {
	return r.register("RegisterGauge", componentName, metricName, gauge)
}

// RegisterHistogram registers a histogram metric for a component
func (r *MetricsRegistry) RegisterHistogram(
	componentName, metricName string, histogram prometheus.Histogram) error {
	return r.register("RegisterHistogram", componentName, metricName, histogram)
}

// RegisterCounterVec registers a counter vector metric for a component
func (r *MetricsRegistry) RegisterCounterVec(
	componentName, metricName string, counterVec *prometheus.CounterVec) error {
	return r.register("RegisterCounterVec", componentName, metricName, counterVec)
}

// RegisterGaugeVec registers a gauge vector metric for a component
func (r *MetricsRegistry) RegisterGaugeVec(componentName, metricName string, gaugeVec *prometheus.GaugeVec) error {
	return r.register("RegisterGaugeVec", componentName, metricName, gaugeVec)
}

// RegisterHistogramVec registers a histogram vector metric for a component
func (r *MetricsRegistry) RegisterHistogramVec(
	componentName, metricName string, histogramVec *prometheus.HistogramVec) error {
	return r.register("RegisterHistogramVec", componentName, metricName, histogramVec)
}

// Unregister removes a metric from the registry
func (r *MetricsRegistry) Unregister(componentName, metricName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", componentName, metricName)

	collector, exists := r.registeredMetrics[key]
	if !exists {
		return false
	}

	if !r.prometheusRegistry.Unregister(collector) {
		return false
	}
	delete(r.registeredMetrics, key)
	return true
}

// UnregisterComponent removes every metric registered for a component
func (r *MetricsRegistry) UnregisterComponent(componentName string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := componentName + "."
	removed := 0
	for key, collector := range r.registeredMetrics {
		if strings.HasPrefix(key, prefix) {
			r.prometheusRegistry.Unregister(collector)
			delete(r.registeredMetrics, key)
			removed++
		}
	}
	return removed
}

// NamedCollector pairs a collector with the metric name it is registered under
type NamedCollector struct {
	Name      string
	Collector prometheus.Collector
}

// RegisterCollectors registers collectors for a component in order. When one fails, the
// ones registered before it are removed again and the error is returned.
func (r *MetricsRegistry) RegisterCollectors(componentName string, collectors ...NamedCollector) error {
	for i, c := range collectors {
		if err := r.register("RegisterCollectors", componentName, c.Name, c.Collector); err != nil {
			for _, prev := range collectors[:i] {
				r.Unregister(componentName, prev.Name)
			}
			return err
		}
	}
	return nil
}
