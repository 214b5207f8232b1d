// Package component defines the contracts shared by pipeline sources and sinks and the
// registry that builds them from configuration.
//
// A component type registers a factory under its type name ("http_scrape", "websocket").
// The factory receives the component's raw JSON configuration and its Dependencies, parses
// and validates its own configuration, and returns a component that has performed no I/O.
// All network activity happens inside Run, which is driven by a shutdown.Signal:
//
//	src, err := registry.BuildSource("http_scrape", "scrape_logs", rawConfig, deps)
//	if err != nil {
//	    return err // configuration errors are fatal at build time
//	}
//	go src.Run(signal, events)
//
// Configuration schemas are generated from struct tags with GenerateConfigSchema and are
// served through Discoverable.ConfigSchema.
package component
