// Package websocket provides a sink that writes events to one outbound WebSocket
// connection.
//
// # Connection lifecycle
//
// The sink owns at most one connection. Its run loop moves through four states:
//
//	Disconnected -> Connecting -> Open -> Closing
//	      ^              |          |
//	      +--- backoff --+----------+
//
// Connect failures and lost connections return to Disconnected and wait for the next
// reconnect delay (exponential, bounded by reconnect.max_delay_ms) before connecting
// again. Closing is entered only on shutdown or when the upstream channel is closed; the
// sink then sends a close frame and waits for the peer's close frame until the shutdown
// deadline.
//
// # Keepalive
//
// With ping_interval set the sink sends a ping on every tick. With ping_timeout also set,
// a ping that is not answered by a pong within the timeout marks the connection dead and
// the sink reconnects. Pings and data writes run on the same goroutine, so the connection
// never has two writers.
//
// # Delivery
//
// Each event is encoded with the configured serializer and sent as one message: binary
// for the native codec, text otherwise. With acknowledgements enabled an event is
// finalized Delivered after its write succeeds and Errored when the write fails. With
// acknowledgements disabled it is finalized Delivered as soon as it is taken from the
// upstream channel. Events that have not been taken yet stay upstream while the sink
// reconnects.
//
// # Configuration
//
//	uri: wss://collector.example.com/ingest
//	encoding:
//	  codec: json
//	ping_interval: 30
//	ping_timeout: 10
//	acknowledgements: true
//	auth:
//	  strategy: bearer
//	  token_env: COLLECTOR_TOKEN
//	tls:
//	  ca_files: [/etc/ssl/collector-ca.pem]
package websocket
