package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"

	"github.com/Tomwslape5638/vector/errors"
	"github.com/Tomwslape5638/vector/metric"
	"github.com/Tomwslape5638/vector/pkg/security"
	"github.com/Tomwslape5638/vector/pkg/tlsutil"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Error values returned by the client. Both match the shared sentinels with errors.Is.
var (
	ErrNotConnected = fmt.Errorf("nats: %w", errors.ErrNoConnection)
	ErrCircuitOpen  = fmt.Errorf("nats: %w", errors.ErrCircuitOpen)
)

// Status holds runtime status information for the client
type Status struct {
	Status          ConnectionStatus
	FailureCount    int32
	LastFailureTime time.Time
	RTT             time.Duration
}

// Client manages one NATS connection guarded by a circuit breaker. It is used by the
// topology's NATS buffer to carry events between sources and sinks.
type Client struct {
	url      string
	status   atomic.Value // ConnectionStatus
	failures atomic.Int32
	logger   *slog.Logger
	clock    clockwork.Clock
	metrics  *metric.Metrics

	conn *nats.Conn

	// Circuit breaker
	lastFailure      atomic.Value // time.Time
	backoff          atomic.Value // time.Duration
	circuitFailures  atomic.Int32
	circuitThreshold int32
	maxBackoff       time.Duration
	circuitTimer     clockwork.Timer

	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	// Cleared on close
	username string
	password string
	token    string

	tls        *security.ClientTLSConfig
	clientName string

	onHealthChange func(bool)

	mu      sync.RWMutex
	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient creates a client for url. No connection is made until Connect.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "NewClient", "url check")
	}

	c := &Client{
		url:              url,
		logger:           slog.Default(),
		clock:            clockwork.NewRealClock(),
		maxReconnects:    -1,
		reconnectWait:    2 * time.Second,
		pingInterval:     30 * time.Second,
		timeout:          5 * time.Second,
		drainTimeout:     30 * time.Second,
		circuitThreshold: 5,
		maxBackoff:       time.Minute,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	c.status.Store(StatusDisconnected)
	c.backoff.Store(time.Second)
	c.lastFailure.Store(time.Time{})
	c.logger = c.logger.With("nats_url", url)

	return c, nil
}

// URL returns the server URL
func (m *Client) URL() string {
	return m.url
}

// Status returns the current connection status
func (m *Client) Status() ConnectionStatus {
	return m.status.Load().(ConnectionStatus)
}

// GetConnection returns the underlying connection, nil before Connect
func (m *Client) GetConnection() *nats.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn
}

func (m *Client) setStatus(status ConnectionStatus) {
	m.status.Store(status)
	m.recordStatus(status)
}

func (m *Client) recordStatus(status ConnectionStatus) {
	if m.metrics == nil {
		return
	}
	m.metrics.RecordNATSStatus(status == StatusConnected)
	if status == StatusCircuitOpen {
		m.metrics.RecordCircuitBreakerState(1)
	} else {
		m.metrics.RecordCircuitBreakerState(0)
	}
}

// IsHealthy reports whether the client is connected
func (m *Client) IsHealthy() bool {
	return m.Status() == StatusConnected
}

// Failures returns the number of failures since the last successful connection
func (m *Client) Failures() int32 {
	return m.failures.Load()
}

// Backoff returns how long the circuit stays open the next time it trips
func (m *Client) Backoff() time.Duration {
	return m.backoff.Load().(time.Duration)
}

// recordFailure counts a connection failure and opens the circuit after circuitThreshold
// failures in a row. The open period doubles on every trip up to maxBackoff.
func (m *Client) recordFailure() {
	total := m.failures.Add(1)
	m.lastFailure.Store(m.clock.Now())
	round := m.circuitFailures.Add(1)

	m.logger.Debug("NATS connection failure recorded", "failures", total, "circuit_failures", round)

	if round < m.circuitThreshold {
		return
	}

	current := m.Status()
	if current == StatusCircuitOpen {
		next := m.growBackoff()
		m.circuitFailures.Store(0)
		m.logger.Warn("NATS circuit breaker still open", "backoff", next)
		return
	}

	if !m.status.CompareAndSwap(current, StatusCircuitOpen) {
		return
	}
	m.recordStatus(StatusCircuitOpen)

	openFor := m.Backoff()
	m.growBackoff()
	m.circuitFailures.Store(0)
	m.logger.Warn("NATS circuit breaker opened", "failures", round, "backoff", openFor)

	m.mu.Lock()
	if m.circuitTimer != nil {
		m.circuitTimer.Stop()
	}
	m.circuitTimer = m.clock.AfterFunc(openFor, m.testCircuit)
	m.mu.Unlock()
}

func (m *Client) growBackoff() time.Duration {
	next := m.Backoff() * 2
	if next > m.maxBackoff {
		next = m.maxBackoff
	}
	m.backoff.Store(next)
	return next
}

// resetCircuit clears the breaker after a successful connection
func (m *Client) resetCircuit() {
	m.failures.Store(0)
	m.circuitFailures.Store(0)
	m.backoff.Store(time.Second)
	m.lastFailure.Store(time.Time{})

	m.mu.Lock()
	if m.circuitTimer != nil {
		m.circuitTimer.Stop()
		m.circuitTimer = nil
	}
	m.mu.Unlock()

	if m.Status() == StatusCircuitOpen {
		m.setStatus(StatusDisconnected)
	}
}

// testCircuit half-opens the breaker: the next Connect is allowed through
func (m *Client) testCircuit() {
	if m.status.CompareAndSwap(StatusCircuitOpen, StatusDisconnected) {
		m.recordStatus(StatusDisconnected)
		m.logger.Debug("NATS circuit breaker half-open, next connection attempt allowed")
	}
}

// WaitForConnection polls until the client is connected or ctx ends
func (m *Client) WaitForConnection(ctx context.Context) error {
	ticker := m.clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if m.IsHealthy() {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.WrapTransient(
				fmt.Errorf("%w: %w", errors.ErrConnectionTimeout, ctx.Err()),
				"Client", "WaitForConnection", "wait for connection")
		case <-ticker.Chan():
		}
	}
}

func (m *Client) buildConnectionOptions() ([]nats.Option, error) {
	opts := []nats.Option{
		nats.MaxReconnects(m.maxReconnects),
		nats.ReconnectWait(m.reconnectWait),
		nats.PingInterval(m.pingInterval),
		nats.Timeout(m.timeout),
		nats.DrainTimeout(m.drainTimeout),
		nats.DisconnectErrHandler(m.handleDisconnect),
		nats.ReconnectHandler(m.handleReconnect),
		nats.ClosedHandler(m.handleClosed),
		nats.ErrorHandler(m.handleError),
	}

	if m.username != "" && m.password != "" {
		opts = append(opts, nats.UserInfo(m.username, m.password))
	}
	if m.token != "" {
		opts = append(opts, nats.Token(m.token))
	}

	if m.tls != nil {
		tlsConfig, err := tlsutil.LoadClientTLSConfig(m.tls)
		if err != nil {
			return nil, err
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}

	if m.clientName != "" {
		opts = append(opts, nats.Name(m.clientName))
	}

	return opts, nil
}

// GetStatus returns current status information
func (m *Client) GetStatus() *Status {
	status := &Status{
		Status:          m.Status(),
		FailureCount:    m.failures.Load(),
		LastFailureTime: m.lastFailure.Load().(time.Time),
	}
	if rtt, err := m.RTT(); err == nil {
		status.RTT = rtt
	}
	return status
}

// Connect establishes the connection. It fails fast with ErrCircuitOpen while the circuit
// breaker is open.
func (m *Client) Connect(ctx context.Context) error {
	if m.closed.Load() {
		return errors.WrapFatal(errors.ErrShuttingDown, "Client", "Connect", "closed client")
	}
	if m.Status() == StatusCircuitOpen {
		return ErrCircuitOpen
	}

	opts, err := m.buildConnectionOptions()
	if err != nil {
		return err
	}

	m.setStatus(StatusConnecting)
	m.logger.Info("Connecting to NATS")

	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(m.url, opts...)
		done <- result{conn: conn, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return m.connectFailed(errors.WrapTransient(res.err, "Client", "Connect", "establish connection"))
		}
		m.mu.Lock()
		m.conn = res.conn
		m.mu.Unlock()
	case <-ctx.Done():
		// A connection that lands after cancellation is closed, not leaked
		go func() {
			if res := <-done; res.conn != nil {
				res.conn.Close()
			}
		}()
		return m.connectFailed(errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled"))
	}

	m.setStatus(StatusConnected)
	m.resetCircuit()
	m.logger.Info("Connected to NATS")
	m.notifyHealth(true)

	return nil
}

func (m *Client) connectFailed(err error) error {
	m.recordFailure()
	if m.Status() == StatusCircuitOpen {
		return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	m.setStatus(StatusDisconnected)
	return err
}

// Close drains the connection and its subscriptions. The drain is bounded by the
// drain timeout and by ctx. Close is idempotent.
func (m *Client) Close(ctx context.Context) error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()

	if m.closed.Swap(true) {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.circuitTimer != nil {
		m.circuitTimer.Stop()
		m.circuitTimer = nil
	}

	// Drain also drains every active subscription
	var errs []error

	if m.conn != nil {
		drainTimeout := m.drainTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := deadline.Sub(m.clock.Now()); remaining > 0 && remaining < drainTimeout {
				drainTimeout = remaining
			}
		}

		conn := m.conn
		if err := conn.Drain(); err != nil {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "drain connection"))
		} else if err := m.awaitClosed(ctx, conn, drainTimeout); err != nil {
			errs = append(errs, err)
		}

		conn.Close()
		m.conn = nil
	}

	m.username = ""
	m.password = ""
	m.token = ""

	m.setStatus(StatusDisconnected)

	if err := stderrors.Join(errs...); err != nil {
		m.logger.Error("NATS client closed with errors", "error", err)
		return err
	}
	return nil
}

// awaitClosed waits for an asynchronous drain to finish. Drain closes the connection when
// every pending message has been handled.
func (m *Client) awaitClosed(ctx context.Context, conn *nats.Conn, timeout time.Duration) error {
	timer := m.clock.NewTimer(timeout)
	defer timer.Stop()
	ticker := m.clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for !conn.IsClosed() {
		select {
		case <-timer.Chan():
			return errors.WrapTransient(
				fmt.Errorf("drain timeout after %v", timeout), "Client", "Close", "drain connection")
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "Client", "Close", "drain connection")
		case <-ticker.Chan():
		}
	}
	return nil
}

// RTT returns the round-trip time to the server
func (m *Client) RTT() (time.Duration, error) {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return 0, ErrNotConnected
	}
	return conn.RTT()
}

// Subscribe registers handler for subject. Each message is handled with a context derived
// from ctx, so cancelling ctx tells in-flight handlers to give up. The subscription is
// returned so callers can drain it on their own schedule; Close drains whatever is still
// active.
func (m *Client) Subscribe(
	ctx context.Context,
	subject string,
	handler func(context.Context, []byte),
) (*nats.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || !m.conn.IsConnected() {
		return nil, ErrNotConnected
	}

	sub, err := m.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(ctx, msg.Data)
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "Subscribe", fmt.Sprintf("subscribe to %s", subject))
	}

	return sub, nil
}

// Publish publishes data to subject
func (m *Client) Publish(_ context.Context, subject string, data []byte) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "Client", "Publish", fmt.Sprintf("publish to %s", subject))
	}
	return nil
}

// Flush waits until the server has processed everything published so far
func (m *Client) Flush(ctx context.Context) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.FlushWithContext(ctx); err != nil {
		return errors.WrapTransient(err, "Client", "Flush", "flush connection")
	}
	return nil
}

func (m *Client) notifyHealth(healthy bool) {
	m.mu.RLock()
	fn := m.onHealthChange
	m.mu.RUnlock()
	if fn != nil {
		go fn(healthy)
	}
}

func (m *Client) handleDisconnect(_ *nats.Conn, err error) {
	if m.closed.Load() {
		return
	}
	m.setStatus(StatusReconnecting)
	m.logger.Warn("NATS disconnected", "error", err)
	m.notifyHealth(false)
}

func (m *Client) handleReconnect(_ *nats.Conn) {
	m.setStatus(StatusConnected)
	m.resetCircuit()
	if m.metrics != nil {
		m.metrics.RecordNATSReconnect()
	}
	m.logger.Info("NATS reconnected")
	m.notifyHealth(true)
}

func (m *Client) handleClosed(_ *nats.Conn) {
	m.setStatus(StatusDisconnected)
	m.notifyHealth(false)
}

func (m *Client) handleError(_ *nats.Conn, sub *nats.Subscription, err error) {
	// Not a connection failure; the breaker is not involved
	if sub != nil {
		m.logger.Error("NATS subscription error", "subject", sub.Subject, "error", err)
		return
	}
	m.logger.Error("NATS error", "error", err)
}
