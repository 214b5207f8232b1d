// Package natsclient wraps a NATS connection with a circuit breaker and the lifecycle the
// pipeline's NATS buffer needs: connect, publish, subscribe, flush and a bounded drain on
// close.
//
// The breaker opens after a threshold of consecutive connection failures (default 5).
// While it is open Connect fails fast with ErrCircuitOpen; after the backoff period the
// breaker half-opens and lets one attempt through. The backoff doubles on every trip up to
// the configured maximum and resets on a successful connection.
//
// Basic usage:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithLogger(logger),
//	    natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
//	sub, err := client.Subscribe(ctx, "events.scrape", func(ctx context.Context, data []byte) {
//	    // decode and forward
//	})
//
// Connection states move Disconnected → Connecting → Connected, through Reconnecting when
// the server goes away, and to CircuitOpen when connecting keeps failing.
//
// TestClient in test_client.go starts a NATS server with testcontainers for integration
// tests.
package natsclient
