// Package config loads and validates pipeline definitions.
//
// A pipeline names its sources and sinks, wires every sink to the sources it reads
// from, and selects the buffer that carries events between them. Files are JSON or
// YAML, chosen by extension. Component settings stay opaque here: each component
// receives its "config" block as json.RawMessage and parses it through its own
// factory.
//
//	sources:
//	  app_logs:
//	    type: http_scrape
//	    config:
//	      endpoints: ["http://localhost:9898/logs"]
//	      scrape_interval_secs: 15
//	sinks:
//	  collector:
//	    type: websocket
//	    inputs: [app_logs]
//	    config:
//	      uri: ws://127.0.0.1:9000/endpoint
//	buffer:
//	  type: memory
//	  max_events: 500
//
// # Loading
//
// Loader merges layers over the defaults, key by key, so an override file only
// needs the keys it changes:
//
//	loader := config.NewLoader()
//	loader.AddLayer("vector.yaml")
//	loader.AddLayer("vector.prod.yaml")
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//
// Buffer settings can be overridden from the environment: VECTOR_BUFFER_TYPE,
// VECTOR_BUFFER_MAX_EVENTS, VECTOR_NATS_URL, VECTOR_NATS_USERNAME,
// VECTOR_NATS_PASSWORD and VECTOR_NATS_TOKEN.
//
// # Validation
//
// Validate checks structure only: names, sink inputs, timeouts and the buffer.
// ValidateTypes additionally checks every enabled component against a
// component.Registry, which is only available once the factories are registered.
package config
