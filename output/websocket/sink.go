package websocket

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/Tomwslape5638/vector/codec"
	"github.com/Tomwslape5638/vector/component"
	"github.com/Tomwslape5638/vector/errors"
	"github.com/Tomwslape5638/vector/event"
	"github.com/Tomwslape5638/vector/pkg/retry"
	"github.com/Tomwslape5638/vector/shutdown"
)

// SinkType is the registered type name of the sink
const SinkType = "websocket"

// State is the connection state of a sink. Only the run loop changes it.
type State int32

// Connection states
const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// closeWait bounds how long a clean close waits for the peer's close frame
const closeWait = 5 * time.Second

// interruptInterval is how often a write still blocked after shutdown has its socket
// deadline pulled in
const interruptInterval = 10 * time.Millisecond

// exitReason tells the run loop why serving a connection ended
type exitReason int

const (
	exitLost exitReason = iota
	exitShutdown
	exitUpstreamClosed
	// a write was cut short by shutdown; the stream may hold a partial frame
	exitInterrupted
)

// session is one open connection together with the goroutine reading from it
type session struct {
	conn     *websocket.Conn
	id       string
	logger   *slog.Logger
	readErr  chan error
	pongs    chan struct{}
	readDone bool

	writing atomic.Bool
	done    chan struct{}
	endOnce sync.Once
}

func (sess *session) end() {
	sess.endOnce.Do(func() { close(sess.done) })
}

// Sink writes events to a single outbound WebSocket connection, keeping it alive with
// pings and reconnecting when it is lost
type Sink struct {
	name        string
	config      Config
	connector   *Connector
	encoder     *codec.Encoder
	messageType int

	pingInterval time.Duration
	pingTimeout  time.Duration
	writeTimeout time.Duration
	reconnect    retry.Config
	acks         bool

	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *Metrics

	state        atomic.Int32
	running      atomic.Bool
	connID       atomic.Value // string
	startTime    atomic.Value // time.Time
	lastActivity atomic.Value // time.Time
	lastError    atomic.Value // string
	connections  atomic.Int64
	eventsSent   atomic.Int64
	eventsFailed atomic.Int64
	bytesSent    atomic.Int64
	errorCount   atomic.Int64
}

var _ component.Sink = (*Sink)(nil)

// NewSink builds a WebSocket sink. It validates cfg and loads TLS material but does not
// connect.
func NewSink(name string, cfg Config, deps component.Dependencies) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	connector, err := NewConnector(cfg.URI, cfg.TLS, cfg.Auth,
		time.Duration(cfg.HandshakeTimeoutSecs)*time.Second)
	if err != nil {
		return nil, err
	}

	encoder, err := codec.NewEncoder(codec.MessageBased(), cfg.Encoding, deps.GetLogSchema())
	if err != nil {
		return nil, err
	}

	reconnect := cfg.Reconnect.retryConfig()
	if _, err := retry.NewBackoff(reconnect); err != nil {
		return nil, errors.WrapInvalid(err, "websocket", "NewSink", "reconnect policy")
	}

	metrics, err := newMetrics(deps.MetricsRegistry, name)
	if err != nil {
		return nil, errors.WrapFatal(err, "websocket", "NewSink", "metrics setup")
	}

	messageType := websocket.TextMessage
	if cfg.Encoding.Codec == codec.SerializerNative {
		messageType = websocket.BinaryMessage
	}

	s := &Sink{
		name:         name,
		config:       cfg,
		connector:    connector,
		encoder:      encoder,
		messageType:  messageType,
		pingInterval: seconds(cfg.PingInterval),
		pingTimeout:  seconds(cfg.PingTimeout),
		writeTimeout: time.Duration(cfg.WriteTimeoutSecs) * time.Second,
		reconnect:    reconnect,
		acks:         cfg.Acknowledgements.Enabled,
		clock:        deps.GetClock(),
		logger:       deps.GetLoggerWithComponent(name),
		metrics:      metrics,
	}
	s.connID.Store("")
	s.startTime.Store(time.Time{})
	s.lastActivity.Store(time.Time{})
	s.lastError.Store("")
	return s, nil
}

// State returns the current connection state
func (s *Sink) State() State {
	return State(s.state.Load())
}

func (s *Sink) setState(state State) {
	s.state.Store(int32(state))
	s.metrics.recordState(state)
}

// Healthcheck opens and closes a connection to the configured URI
func (s *Sink) Healthcheck(ctx context.Context) error {
	return s.connector.Healthcheck(ctx)
}

// Run drains in onto the connection until sig fires or in is closed. Connection failures
// never end Run: the sink reconnects with backoff and resumes with the next event from in.
func (s *Sink) Run(sig *shutdown.Signal, in <-chan event.Event) error {
	defer sig.Complete()

	if !s.running.CompareAndSwap(false, true) {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "websocket", "Run", "start sink")
	}
	defer s.running.Store(false)

	backoff, err := retry.NewBackoff(s.reconnect)
	if err != nil {
		return errors.WrapFatal(err, "websocket", "Run", "reconnect policy")
	}

	s.startTime.Store(s.clock.Now())
	s.logger.Info("WebSocket sink started", "uri", s.connector.URI())
	defer s.logger.Info("WebSocket sink stopped")

	for {
		conn := s.connect(sig, backoff)
		if conn == nil {
			s.setState(StateDisconnected)
			return nil
		}

		sess := s.open(sig, conn)
		reason := s.serve(sig, sess, in)
		if reason != exitLost {
			s.close(sig, sess, reason != exitInterrupted)
			return nil
		}

		sess.end()
		_ = sess.conn.Close()
		s.setState(StateDisconnected)
		s.connID.Store("")

		if err := backoff.Wait(sig.Context(), s.clock); err != nil {
			return nil
		}
	}
}

// connect retries until a connection opens or shutdown is requested, in which case it
// returns nil
func (s *Sink) connect(sig *shutdown.Signal, backoff *retry.Backoff) *websocket.Conn {
	ctx := sig.Context()
	for {
		s.setState(StateConnecting)
		conn, err := s.connector.Connect(ctx)
		if err == nil {
			backoff.Reset()
			return conn
		}
		if sig.Requested() {
			return nil
		}

		s.metrics.recordConnectError()
		s.recordError(err)
		s.setState(StateDisconnected)
		s.logger.Warn("WebSocket connection failed, retrying",
			"uri", s.connector.URI(), "attempt", backoff.Attempts()+1, "error", err)

		if err := backoff.Wait(ctx, s.clock); err != nil {
			return nil
		}
	}
}

// open starts the reader for conn. The reader processes control frames, which is what
// runs the pong handler and answers the peer's close frame.
func (s *Sink) open(sig *shutdown.Signal, conn *websocket.Conn) *session {
	id := uuid.NewString()
	sess := &session{
		conn:    conn,
		id:      id,
		logger:  s.logger.With("conn_id", id),
		readErr: make(chan error, 1),
		pongs:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go s.interruptWrites(sig, sess)

	conn.SetPongHandler(func(string) error {
		select {
		case sess.pongs <- struct{}{}:
		default:
		}
		return nil
	})

	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				sess.readErr <- err
				return
			}
		}
	}()

	if s.connections.Add(1) > 1 {
		s.metrics.recordReconnect()
	}
	s.connID.Store(id)
	s.setState(StateOpen)
	sess.logger.Info("WebSocket connection open", "uri", s.connector.URI())
	return sess
}

// serve is the Open state. Writes and keepalive share this goroutine, so the connection
// has a single writer.
func (s *Sink) serve(sig *shutdown.Signal, sess *session, in <-chan event.Event) exitReason {
	var pingC <-chan time.Time
	if s.pingInterval > 0 {
		ticker := s.clock.NewTicker(s.pingInterval)
		defer ticker.Stop()
		pingC = ticker.Chan()
	}

	var pongTimer clockwork.Timer
	var pongC <-chan time.Time
	defer func() {
		if pongTimer != nil {
			pongTimer.Stop()
		}
	}()

	for {
		// Shutdown and an expired pong wait win over queued events
		select {
		case <-sig.Done():
			return exitShutdown
		case <-pongC:
			s.pongTimedOut(sess)
			return exitLost
		default:
		}

		select {
		case <-sig.Done():
			return exitShutdown

		case err := <-sess.readErr:
			sess.readDone = true
			s.recordError(err)
			sess.logger.Warn("WebSocket connection lost", "error", err)
			return exitLost

		case <-pongC:
			s.pongTimedOut(sess)
			return exitLost

		case <-sess.pongs:
			if pongTimer != nil {
				pongTimer.Stop()
				pongTimer, pongC = nil, nil
			}

		case <-pingC:
			if err := s.ping(sess); err != nil {
				return lostOrInterrupted(sig)
			}
			if s.pingTimeout > 0 && pongTimer == nil {
				pongTimer = s.clock.NewTimer(s.pingTimeout)
				pongC = pongTimer.Chan()
			}

		case ev, ok := <-in:
			if !ok {
				return exitUpstreamClosed
			}
			if err := s.write(sess, ev); err != nil {
				return lostOrInterrupted(sig)
			}
		}
	}
}

// interruptWrites fails the write in progress once shutdown is requested, so a peer that
// stopped reading cannot hold the sink past the shutdown deadline. gorilla sets the socket
// deadline at the start of every write, so it is pulled in again until the write gives up.
func (s *Sink) interruptWrites(sig *shutdown.Signal, sess *session) {
	select {
	case <-sig.Done():
	case <-sess.done:
		return
	}

	ticker := time.NewTicker(interruptInterval)
	defer ticker.Stop()
	for {
		if sess.writing.Load() {
			_ = sess.conn.UnderlyingConn().SetWriteDeadline(time.Now())
		}
		select {
		case <-sess.done:
			return
		case <-ticker.C:
		}
	}
}

// lostOrInterrupted classifies a failed write
func lostOrInterrupted(sig *shutdown.Signal) exitReason {
	if sig.Requested() {
		return exitInterrupted
	}
	return exitLost
}

func (s *Sink) pongTimedOut(sess *session) {
	s.metrics.recordPongTimeout()
	s.recordError(errors.ErrPongTimeout)
	sess.logger.Warn("No pong received before timeout, reconnecting", "timeout", s.pingTimeout)
}

func (s *Sink) ping(sess *session) error {
	sess.writing.Store(true)
	err := sess.conn.WriteControl(websocket.PingMessage, nil, s.writeDeadline())
	sess.writing.Store(false)
	if err != nil {
		s.recordError(err)
		sess.logger.Warn("WebSocket ping failed", "error", err)
		return err
	}
	s.metrics.recordPing()
	return nil
}

// write encodes and sends one event. An event that cannot be encoded is rejected without
// touching the connection; a failed write is reported as undelivered and drops the
// connection.
func (s *Sink) write(sess *session, ev event.Event) error {
	if !s.acks {
		ev.Finalize(event.StatusDelivered)
	}

	payload, err := s.encoder.Encode(ev)
	if err != nil {
		ev.Finalize(event.StatusRejected)
		s.eventsFailed.Add(1)
		s.metrics.recordFailed()
		s.recordError(err)
		sess.logger.Error("Dropping event that could not be encoded", "error", err)
		return nil
	}

	_ = sess.conn.SetWriteDeadline(s.writeDeadline())
	sess.writing.Store(true)
	err = sess.conn.WriteMessage(s.messageType, payload)
	sess.writing.Store(false)
	if err != nil {
		ev.Finalize(event.StatusErrored)
		s.eventsFailed.Add(1)
		s.metrics.recordFailed()
		s.recordError(err)
		sess.logger.Warn("WebSocket write failed", "error", err)
		return errors.WrapTransient(err, "websocket", "write", "write message")
	}

	ev.Finalize(event.StatusDelivered)
	s.eventsSent.Add(1)
	s.bytesSent.Add(int64(len(payload)))
	s.metrics.recordSent(len(payload))
	s.lastActivity.Store(s.clock.Now())
	return nil
}

// writeDeadline is wall-clock time because it is enforced by the socket
func (s *Sink) writeDeadline() time.Time {
	if s.writeTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(s.writeTimeout)
}

// close runs the close handshake, bounded by the shutdown deadline. Without handshake the
// socket is dropped at once.
func (s *Sink) close(sig *shutdown.Signal, sess *session, handshake bool) {
	s.setState(StateClosing)
	defer func() {
		sess.end()
		_ = sess.conn.Close()
		s.connID.Store("")
		s.setState(StateDisconnected)
	}()

	if !handshake {
		sess.logger.Info("Write interrupted by shutdown, dropping connection")
		return
	}

	dctx, cancel := sig.DeadlineContext()
	defer cancel()
	ctx, cancelWait := context.WithTimeout(dctx, closeWait)
	defer cancelWait()

	deadline, _ := ctx.Deadline()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := sess.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		sess.logger.Debug("Close frame not sent", "error", err)
		return
	}

	if sess.readDone {
		return
	}
	select {
	case <-sess.readErr:
		sess.logger.Info("WebSocket connection closed")
	case <-ctx.Done():
		sess.logger.Warn("Peer did not complete the close handshake in time")
	}
}

func (s *Sink) recordError(err error) {
	s.errorCount.Add(1)
	s.lastError.Store(err.Error())
}

// Meta returns component metadata
func (s *Sink) Meta() component.Metadata {
	return component.Metadata{
		Name:        s.name,
		Type:        SinkType,
		Kind:        component.KindSink,
		Description: description,
		Version:     version,
	}
}

// ConfigSchema returns the configuration schema
func (s *Sink) ConfigSchema() component.ConfigSchema {
	return websocketSchema
}

// Health reports the sink healthy while a connection is open
func (s *Sink) Health() component.HealthStatus {
	started := s.startTime.Load().(time.Time)
	running := s.running.Load()

	var uptime time.Duration
	if running && !started.IsZero() {
		uptime = s.clock.Since(started)
	}

	return component.HealthStatus{
		Healthy:    running && s.State() == StateOpen,
		LastCheck:  s.clock.Now(),
		ErrorCount: int(s.errorCount.Load()),
		LastError:  s.lastError.Load().(string),
		Uptime:     uptime,
	}
}

// DataFlow returns rates averaged over the uptime of the sink
func (s *Sink) DataFlow() component.FlowMetrics {
	flow := component.FlowMetrics{LastActivity: s.lastActivity.Load().(time.Time)}

	started := s.startTime.Load().(time.Time)
	if started.IsZero() {
		return flow
	}
	if secs := s.clock.Since(started).Seconds(); secs > 0 {
		flow.EventsPerSecond = float64(s.eventsSent.Load()) / secs
		flow.BytesPerSecond = float64(s.bytesSent.Load()) / secs
	}
	if total := s.eventsSent.Load() + s.eventsFailed.Load(); total > 0 {
		flow.ErrorRate = float64(s.eventsFailed.Load()) / float64(total)
	}
	return flow
}
