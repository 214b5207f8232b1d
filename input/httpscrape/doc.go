// Package httpscrape provides the http_scrape source: a pull-based source that polls one
// or more HTTP endpoints on a fixed interval and decodes each response body into events.
//
// Every endpoint runs in its own goroutine on its own ticker, so a slow endpoint never
// delays the others. A tick is strictly sequential: request, decode, enrich, emit. The
// first tick fires as soon as the source starts.
//
// # Requests
//
// The request URL is the endpoint plus the configured query parameters. Configured values
// are appended after any values the endpoint already carries for the same key:
//
//	endpoint: http://host/metrics?key1=val1
//	query:    {key1: [val2], key2: [val1, val2]}
//	request:  http://host/metrics?key1=val1&key1=val2&key2=val1&key2=val2
//
// The Accept header is derived from the codec (text/plain for bytes, application/json or
// application/x-ndjson for JSON). Responses compressed with zstd, gzip or deflate are
// decoded transparently. TLS, basic or bearer authentication and an outbound proxy with a
// no_proxy list are configurable.
//
// # Errors
//
// Transport failures and non-2xx responses are logged and the tick is skipped; the next
// tick is the retry. Decoding stops at the first malformed frame: events decoded before it
// are emitted and the rest of the body is dropped. Configuration errors are returned by
// NewSource and are fatal.
//
// # Enrichment
//
// Logs get source_type "http_scrape" and the scrape time unless they already carry those
// fields. Metrics get a source_type tag and traces a source_type field.
//
// # Shutdown
//
// Run observes its shutdown.Signal while waiting for a tick, while a request is in flight
// and while blocked on a full output channel. Once the signal fires no further event is
// sent.
package httpscrape
