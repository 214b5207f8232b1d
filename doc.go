// Package vector is an observability data pipeline: sources collect log and metric
// events, a buffer carries them, and sinks deliver them elsewhere.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│            Topology                 │  Build, start, healthcheck,
//	│  (topology.Build / Start / Stop)    │  ordered shutdown
//	└─────────────────────────────────────┘
//	           ↓ runs
//	┌─────────────────────────────────────┐
//	│           Components                │  input/httpscrape (source)
//	│       (sources and sinks)           │  output/websocket (sink)
//	└─────────────────────────────────────┘
//	           ↓ connected by
//	┌─────────────────────────────────────┐
//	│             Buffer                  │  memory channels or
//	│        (memory | nats)              │  NATS subjects
//	└─────────────────────────────────────┘
//
// Every event carries an optional finalizer. Sinks report each event as delivered,
// errored or rejected, and the source that produced it can wait for that outcome through
// an event.BatchNotifier.
//
// Fan-out: a sink names the sources it reads in its inputs list. A source read by several
// sinks sends each of them the same event, and the first sink to finalize it decides its
// status.
//
//	              ┌───────────────┐
//	              │  http_scrape  │
//	              └───────┬───────┘
//	                      │
//	         ┌────────────┴────────────┐
//	         ↓                         ↓
//	┌─────────────────┐       ┌─────────────────┐
//	│ websocket (ui)  │       │ websocket (ops) │
//	└─────────────────┘       └─────────────────┘
//
// # Packages
//
//   - event: log and metric events, envelopes, finalizers and batch notifiers
//   - codec: framing, deserializers and serializers (bytes, json, native CBOR, text...)
//   - component: Source and Sink interfaces, factory registry, config schemas
//   - componentregistry: registers the built-in component types
//   - config: pipeline configuration with file layers and environment overrides
//   - topology: builds and runs a pipeline
//   - shutdown: per-component shutdown signals with deadlines
//   - health, metric: component health and Prometheus metrics
//   - natsclient: NATS connection used by the nats buffer
//   - pkg/retry, pkg/security, pkg/tlsutil: backoff, auth and TLS helpers
//
// # Binary
//
//	# Run a pipeline
//	vector --config vector.yaml
//
//	# Merge layers; later files win key by key
//	vector --config base.yaml --config prod.yaml
//
//	# Print a starting point
//	vector generate http_scrape websocket
//
// Metrics are served on /metrics and topology health on /healthz at --health-addr.
package vector
