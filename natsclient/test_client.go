package natsclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestClient is a NATS server in a container plus a connected Client
type TestClient struct {
	container testcontainers.Container
	Client    *Client
	URL       string
	cleanup   func()
}

type testConfig struct {
	natsVersion  string
	timeout      time.Duration
	startTimeout time.Duration
}

// TestOption configures a TestClient
type TestOption func(*testConfig)

// WithIntegrationDefaults is tuned for CI machines
func WithIntegrationDefaults() TestOption {
	return func(cfg *testConfig) {
		cfg.timeout = 5 * time.Second
		cfg.startTimeout = 60 * time.Second
	}
}

// NewSharedTestClient starts a container for use in TestMain, where no testing.T exists.
// The caller terminates it.
func NewSharedTestClient(opts ...TestOption) (*TestClient, error) {
	cfg := &testConfig{
		natsVersion:  "2.10-alpine",
		timeout:      5 * time.Second,
		startTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "nats:" + cfg.natsVersion,
		ExposedPorts: []string{"4222/tcp", "8222/tcp"},
		Cmd:          []string{"--port", "4222", "--http_port", "8222"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4222/tcp"),
			wait.ForHTTP("/").WithPort("8222/tcp").WithStartupTimeout(cfg.startTimeout),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start NATS container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "4222")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}
	url := fmt.Sprintf("nats://%s:%s", host, port.Port())

	client, err := NewClient(url, WithTimeout(cfg.timeout), WithMaxReconnects(0))
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create NATS client: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	if err := client.Connect(connectCtx); err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &TestClient{
		container: container,
		Client:    client,
		URL:       url,
		cleanup: func() {
			_ = client.Close(context.Background())
			_ = container.Terminate(context.Background())
		},
	}, nil
}

// NewTestClient starts a container and registers its cleanup with t
func NewTestClient(t testing.TB, opts ...TestOption) *TestClient {
	t.Helper()

	tc, err := NewSharedTestClient(opts...)
	if err != nil {
		t.Fatalf("NATS test container: %v", err)
	}
	t.Cleanup(func() { _ = tc.Terminate() })
	return tc
}

// Terminate closes the client and stops the container. Safe to call more than once.
func (tc *TestClient) Terminate() error {
	if tc.cleanup != nil {
		tc.cleanup()
		tc.cleanup = nil
	}
	return nil
}

// IsReady reports whether the client is connected
func (tc *TestClient) IsReady() bool {
	return tc.Client.IsHealthy()
}
