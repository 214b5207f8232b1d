package natsclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/Tomwslape5638/vector/errors"
	"github.com/Tomwslape5638/vector/metric"
)

func TestNewClient(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
	assert.Nil(t, client.GetConnection())

	_, err = NewClient("")
	assert.True(t, pkgerrors.IsInvalid(err))
}

func TestNewClient_ConnectionTuning(t *testing.T) {
	var changes []bool
	client, err := NewClient("nats://localhost:4222",
		WithReconnectWait(time.Second),
		WithPingInterval(20*time.Second),
		WithDrainTimeout(5*time.Second),
		WithHealthChangeCallback(func(healthy bool) { changes = append(changes, healthy) }),
	)
	require.NoError(t, err)

	assert.Equal(t, time.Second, client.reconnectWait)
	assert.Equal(t, 20*time.Second, client.pingInterval)
	assert.Equal(t, 5*time.Second, client.drainTimeout)
	require.NotNil(t, client.onHealthChange)
	client.onHealthChange(true)
	assert.Equal(t, []bool{true}, changes)
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	client, err := NewClient("nats://invalid:4222", WithClock(clockwork.NewFakeClock()))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		client.recordFailure()
	}
	assert.NotEqual(t, StatusCircuitOpen, client.Status())

	client.recordFailure()
	assert.Equal(t, StatusCircuitOpen, client.Status())
	assert.Equal(t, int32(5), client.Failures())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithClock(clockwork.NewFakeClock()))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	require.Equal(t, StatusCircuitOpen, client.Status())

	client.resetCircuit()
	assert.Equal(t, int32(0), client.Failures())
	assert.Equal(t, time.Second, client.Backoff())
	assert.Equal(t, StatusDisconnected, client.Status())
}

func TestCircuitBreaker_ExponentialBackoff(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithClock(clockwork.NewFakeClock()),
		WithMaxBackoff(5*time.Second),
	)
	require.NoError(t, err)

	assert.Equal(t, time.Second, client.Backoff())

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, 2*time.Second, client.Backoff())

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, 4*time.Second, client.Backoff())

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, 5*time.Second, client.Backoff(), "capped at the maximum")
}

func TestCircuitBreaker_HalfOpensAfterBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	client, err := NewClient("nats://localhost:4222", WithClock(clock), WithCircuitBreakerThreshold(2))
	require.NoError(t, err)

	client.recordFailure()
	client.recordFailure()
	require.Equal(t, StatusCircuitOpen, client.Status())

	clock.Advance(500 * time.Millisecond)
	assert.Equal(t, StatusCircuitOpen, client.Status())

	clock.Advance(600 * time.Millisecond)
	assert.Eventually(t, func() bool {
		return client.Status() == StatusDisconnected
	}, time.Second, 5*time.Millisecond)
}

func TestConnect_FailureIsTransientAndTripsBreaker(t *testing.T) {
	client, err := NewClient("nats://127.0.0.1:1",
		WithTimeout(200*time.Millisecond),
		WithMaxReconnects(0),
		WithCircuitBreakerThreshold(2),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = client.Connect(ctx)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsTransient(err))
	assert.Equal(t, StatusDisconnected, client.Status())

	err = client.Connect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, StatusCircuitOpen, client.Status())

	err = client.Connect(ctx)
	assert.ErrorIs(t, err, ErrCircuitOpen, "fails fast while open")
}

func TestConnect_CancelledContext(t *testing.T) {
	client, err := NewClient("nats://127.0.0.1:1", WithTimeout(200*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = client.Connect(ctx)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsTransient(err))
}

func TestOperationsWithoutConnection(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	ctx := context.Background()

	err = client.Publish(ctx, "events.test", []byte("x"))
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.True(t, errors.Is(err, pkgerrors.ErrNoConnection))

	_, err = client.Subscribe(ctx, "events.test", func(context.Context, []byte) {})
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = client.RTT()
	assert.ErrorIs(t, err, ErrNotConnected)

	assert.ErrorIs(t, client.Flush(ctx), ErrNotConnected)
}

func TestClose_Idempotent(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithCredentials("user", "secret"))
	require.NoError(t, err)

	require.NoError(t, client.Close(context.Background()))
	require.NoError(t, client.Close(context.Background()))

	assert.Empty(t, client.password)
	err = client.Connect(context.Background())
	assert.True(t, pkgerrors.IsFatal(err))
}

func TestWaitForConnection_Timeout(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = client.WaitForConnection(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrConnectionTimeout)
}

func TestGetStatus(t *testing.T) {
	clock := clockwork.NewFakeClock()
	client, err := NewClient("nats://localhost:4222", WithClock(clock))
	require.NoError(t, err)

	client.recordFailure()
	status := client.GetStatus()
	assert.Equal(t, StatusDisconnected, status.Status)
	assert.Equal(t, int32(1), status.FailureCount)
	assert.Equal(t, clock.Now(), status.LastFailureTime)
	assert.Zero(t, status.RTT)
}

func TestMetrics_RecordBreakerAndStatus(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	client, err := NewClient("nats://localhost:4222",
		WithMetrics(registry),
		WithClock(clockwork.NewFakeClock()),
		WithCircuitBreakerThreshold(1),
	)
	require.NoError(t, err)

	core := registry.CoreMetrics()
	client.setStatus(StatusConnected)
	assert.Equal(t, 1.0, testutil.ToFloat64(core.NATSConnected))

	client.setStatus(StatusReconnecting)
	assert.Equal(t, 0.0, testutil.ToFloat64(core.NATSConnected))

	client.recordFailure()
	assert.Equal(t, 1.0, testutil.ToFloat64(core.NATSCircuitBreaker))

	client.resetCircuit()
	assert.Equal(t, 0.0, testutil.ToFloat64(core.NATSCircuitBreaker))
}

func TestConcurrentFailures(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithClock(clockwork.NewFakeClock()))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client.recordFailure()
			_ = client.Status()
			_ = client.Backoff()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(50), client.Failures())
	assert.Equal(t, StatusCircuitOpen, client.Status())
}

func TestConnectionStatusString(t *testing.T) {
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "connecting", StatusConnecting.String())
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "circuit_open", StatusCircuitOpen.String())
	assert.Equal(t, "unknown", ConnectionStatus(42).String())
}
