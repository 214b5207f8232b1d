// Package metric provides the Prometheus registry shared by pipeline components and the
// HTTP server that exposes it.
//
// MetricsRegistry owns a private prometheus.Registry with Go runtime and process
// collectors plus the core pipeline metrics (component status, shutdown outcomes, buffer
// throughput and NATS health). Components register their own collectors under their
// instance name:
//
//	requests := prometheus.NewCounterVec(opts, []string{"endpoint", "status"})
//	if err := registry.RegisterCounterVec("scrape_logs", "requests_total", requests); err != nil {
//	    return err
//	}
//
// A nil *MetricsRegistry means metrics are disabled; components check for nil before
// building their metrics.
//
// Server exposes /metrics in the Prometheus text and OpenMetrics formats next to a
// caller-supplied health handler.
package metric
