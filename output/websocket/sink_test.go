package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tomwslape5638/vector/codec"
	"github.com/Tomwslape5638/vector/component"
	"github.com/Tomwslape5638/vector/event"
	"github.com/Tomwslape5638/vector/metric"
	"github.com/Tomwslape5638/vector/pkg/security"
	"github.com/Tomwslape5638/vector/shutdown"
)

type received struct {
	conn        int32
	messageType int
	data        []byte
}

// peer is a WebSocket server standing in for the remote collector
type peer struct {
	server   *httptest.Server
	accepted atomic.Int32
	messages chan received
	headers  chan http.Header
	closes   chan int

	// silent lists connections (1-based) that never answer pings
	silent map[int32]bool
}

func newPeer(t *testing.T, silent ...int32) *peer {
	t.Helper()

	p := &peer{
		messages: make(chan received, 64),
		headers:  make(chan http.Header, 8),
		closes:   make(chan int, 8),
		silent:   map[int32]bool{},
	}
	for _, n := range silent {
		p.silent[n] = true
	}

	upgrader := websocket.Upgrader{}
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		idx := p.accepted.Add(1)
		select {
		case p.headers <- r.Header.Clone():
		default:
		}
		if p.silent[idx] {
			conn.SetPingHandler(func(string) error { return nil })
		}

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				var closeErr *websocket.CloseError
				if errors.As(err, &closeErr) {
					select {
					case p.closes <- closeErr.Code:
					default:
					}
				}
				return
			}
			p.messages <- received{conn: idx, messageType: mt, data: data}
		}
	}))
	t.Cleanup(p.server.Close)
	return p
}

func (p *peer) uri() string {
	return "ws" + strings.TrimPrefix(p.server.URL, "http") + "/ingest"
}

func (p *peer) next(t *testing.T) received {
	t.Helper()
	select {
	case m := <-p.messages:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("peer received nothing")
		return received{}
	}
}

func testSinkConfig(uri string) Config {
	cfg := DefaultConfig()
	cfg.URI = uri
	cfg.WriteTimeoutSecs = 2
	cfg.Reconnect = ReconnectConfig{InitialDelayMs: 10, MaxDelayMs: 50}
	return cfg
}

type running struct {
	coord *shutdown.Coordinator
	in    chan event.Event
	errCh chan error
	once  sync.Once
}

// startSink runs sink and registers a cleanup that shuts it down
func startSink(t *testing.T, sink *Sink) *running {
	t.Helper()

	r := &running{
		coord: shutdown.NewCoordinator(),
		in:    make(chan event.Event, 16),
		errCh: make(chan error, 1),
	}
	sig, err := r.coord.Issue("ws")
	require.NoError(t, err)

	go func() { r.errCh <- sink.Run(sig, r.in) }()
	t.Cleanup(func() { r.stop(t) })
	return r
}

func (r *running) stop(t *testing.T) {
	r.once.Do(func() {
		select {
		case ok := <-r.coord.Shutdown("ws", time.Now().Add(2*time.Second)):
			assert.True(t, ok, "sink did not stop before the deadline")
		case <-time.After(5 * time.Second):
			t.Error("shutdown future never resolved")
		}
		assert.NoError(t, <-r.errCh)
	})
}

func waitState(t *testing.T, sink *Sink, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return sink.State() == want },
		5*time.Second, 5*time.Millisecond, "state never became %s", want)
}

func TestSink_WritesEventsInOrder(t *testing.T) {
	p := newPeer(t)
	sink, err := NewSink("ws", testSinkConfig(p.uri()), component.Dependencies{})
	require.NoError(t, err)

	r := startSink(t, sink)
	for _, msg := range []string{"one", "two", "three"} {
		r.in <- event.FromLog(event.NewLogMessage(msg))
	}

	for _, want := range []string{"one", "two", "three"} {
		m := p.next(t)
		assert.Equal(t, websocket.TextMessage, m.messageType)

		var fields map[string]any
		require.NoError(t, json.Unmarshal(m.data, &fields))
		assert.Equal(t, want, fields["message"])
	}
	assert.Equal(t, StateOpen, sink.State())
	assert.True(t, sink.Health().Healthy)
}

func TestSink_NativeEncodingUsesBinaryMessages(t *testing.T) {
	p := newPeer(t)
	cfg := testSinkConfig(p.uri())
	cfg.Encoding = codec.SerializerConfig{Codec: codec.SerializerNative}

	sink, err := NewSink("ws", cfg, component.Dependencies{})
	require.NoError(t, err)

	r := startSink(t, sink)
	r.in <- event.FromMetric(event.NewCounter("requests", 3))

	m := p.next(t)
	assert.Equal(t, websocket.BinaryMessage, m.messageType)

	dec, err := codec.NewDecoder(codec.MessageBased(),
		codec.DeserializerConfig{Codec: codec.DeserializerNative}, event.DefaultLogSchema())
	require.NoError(t, err)
	events, err := dec.Decode(m.data)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "requests", events[0].Metric().Name)
}

func TestSink_AuthHeaderSentOnHandshake(t *testing.T) {
	p := newPeer(t)
	cfg := testSinkConfig(p.uri())
	cfg.Auth = &security.AuthConfig{Strategy: security.AuthBearer, Token: "s3cret"}

	sink, err := NewSink("ws", cfg, component.Dependencies{})
	require.NoError(t, err)
	startSink(t, sink)

	select {
	case h := <-p.headers:
		assert.Equal(t, "Bearer s3cret", h.Get("Authorization"))
	case <-time.After(5 * time.Second):
		t.Fatal("no handshake")
	}
}

func TestSink_PongTimeoutReconnects(t *testing.T) {
	p := newPeer(t, 1)
	registry := metric.NewMetricsRegistry()
	sink, err := NewSink("ws", testSinkConfig(p.uri()), component.Dependencies{MetricsRegistry: registry})
	require.NoError(t, err)
	sink.pingInterval = 20 * time.Millisecond
	sink.pingTimeout = 100 * time.Millisecond

	r := startSink(t, sink)
	r.in <- event.FromLog(event.NewLogMessage("before"))
	first := p.next(t)
	assert.Equal(t, int32(1), first.conn)

	require.Eventually(t, func() bool { return p.accepted.Load() == 2 }, 5*time.Second, 5*time.Millisecond)
	waitState(t, sink, StateOpen)

	r.in <- event.FromLog(event.NewLogMessage("after"))
	second := p.next(t)
	assert.Equal(t, int32(2), second.conn)
	assert.Contains(t, string(second.data), "after")

	assert.GreaterOrEqual(t, testutil.ToFloat64(sink.metrics.pongTimeouts), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(sink.metrics.reconnects), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(sink.metrics.pingsSent), 1.0)
}

func TestSink_AnsweredPingsKeepConnection(t *testing.T) {
	p := newPeer(t)
	sink, err := NewSink("ws", testSinkConfig(p.uri()), component.Dependencies{})
	require.NoError(t, err)
	sink.pingInterval = 10 * time.Millisecond
	sink.pingTimeout = 200 * time.Millisecond

	startSink(t, sink)
	waitState(t, sink, StateOpen)

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(1), p.accepted.Load())
	assert.Equal(t, StateOpen, sink.State())
}

func TestSink_PeerCloseReconnects(t *testing.T) {
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	messages := make(chan string, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if conns.Add(1) == 1 {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "restart"), time.Now().Add(time.Second))
			return
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			messages <- string(data)
		}
	}))
	t.Cleanup(srv.Close)

	cfg := testSinkConfig("ws" + strings.TrimPrefix(srv.URL, "http"))
	cfg.Encoding = codec.SerializerConfig{Codec: codec.SerializerText}
	sink, err := NewSink("ws", cfg, component.Dependencies{})
	require.NoError(t, err)

	r := startSink(t, sink)
	require.Eventually(t, func() bool { return conns.Load() == 2 }, 5*time.Second, 5*time.Millisecond)
	waitState(t, sink, StateOpen)

	r.in <- event.FromLog(event.NewLogMessage("resumed"))
	select {
	case m := <-messages:
		assert.Equal(t, "resumed", m)
	case <-time.After(5 * time.Second):
		t.Fatal("no message after reconnect")
	}
}

func TestSink_ConnectFailuresRetryUntilShutdown(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	uri := "ws" + strings.TrimPrefix(dead.URL, "http")
	dead.Close()

	sink, err := NewSink("ws", testSinkConfig(uri), component.Dependencies{})
	require.NoError(t, err)

	r := startSink(t, sink)
	require.Eventually(t, func() bool { return sink.Health().ErrorCount >= 3 }, 5*time.Second, 5*time.Millisecond)
	assert.False(t, sink.Health().Healthy)

	r.stop(t)
	assert.Equal(t, StateDisconnected, sink.State())
}

func TestSink_HandshakeRejectedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sink, err := NewSink("ws", testSinkConfig("ws"+strings.TrimPrefix(srv.URL, "http")), component.Dependencies{})
	require.NoError(t, err)

	err = sink.Healthcheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestSink_Healthcheck(t *testing.T) {
	p := newPeer(t)
	sink, err := NewSink("ws", testSinkConfig(p.uri()), component.Dependencies{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sink.Healthcheck(ctx))

	select {
	case code := <-p.closes:
		assert.Equal(t, websocket.CloseNormalClosure, code)
	case <-time.After(5 * time.Second):
		t.Fatal("healthcheck connection was not closed cleanly")
	}
	assert.Equal(t, StateDisconnected, sink.State())
}

func TestSink_ShutdownClosesCleanly(t *testing.T) {
	p := newPeer(t)
	sink, err := NewSink("ws", testSinkConfig(p.uri()), component.Dependencies{})
	require.NoError(t, err)

	r := startSink(t, sink)
	waitState(t, sink, StateOpen)

	start := time.Now()
	r.stop(t)
	assert.Less(t, time.Since(start), 2*time.Second)

	select {
	case code := <-p.closes:
		assert.Equal(t, websocket.CloseNormalClosure, code)
	case <-time.After(5 * time.Second):
		t.Fatal("peer saw no close frame")
	}
	assert.Equal(t, StateDisconnected, sink.State())
	assert.False(t, sink.Health().Healthy)
}

// stalledPeer accepts connections and never reads from them, so the sink's socket buffers
// fill up and writes block
func stalledPeer(t *testing.T) string {
	t.Helper()
	release := make(chan struct{})
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-release
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestSink_ShutdownInterruptsBlockedWrite(t *testing.T) {
	cfg := testSinkConfig(stalledPeer(t))
	cfg.WriteTimeoutSecs = 10
	cfg.Acknowledgements.Enabled = true
	sink, err := NewSink("ws", cfg, component.Dependencies{})
	require.NoError(t, err)

	coord := shutdown.NewCoordinator()
	sig, err := coord.Issue("ws")
	require.NoError(t, err)

	in := make(chan event.Event)
	done := make(chan error, 1)
	go func() { done <- sink.Run(sig, in) }()

	stopFeeding := make(chan struct{})
	defer close(stopFeeding)
	go func() {
		big := strings.Repeat("x", 1<<20)
		for i := 0; i < 256; i++ {
			select {
			case in <- event.FromLog(event.NewLogMessage(big)):
			case <-stopFeeding:
				return
			}
		}
	}()

	// Wait until the sink is stuck in a write
	var last int64 = -1
	require.Eventually(t, func() bool {
		sent := sink.eventsSent.Load()
		stuck := sent > 0 && sent == last
		last = sent
		return stuck
	}, 10*time.Second, 300*time.Millisecond, "sink never blocked on the stalled peer")

	start := time.Now()
	select {
	case ok := <-coord.Shutdown("ws", time.Now().Add(time.Second)):
		assert.True(t, ok, "sink missed the shutdown deadline")
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown future never resolved")
	}
	assert.Less(t, time.Since(start), time.Second)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, int64(1), sink.eventsFailed.Load(), "the interrupted event is reported undelivered")
	assert.Equal(t, StateDisconnected, sink.State())
}

func TestSink_UpstreamClosedEndsRun(t *testing.T) {
	p := newPeer(t)
	sink, err := NewSink("ws", testSinkConfig(p.uri()), component.Dependencies{})
	require.NoError(t, err)

	coord := shutdown.NewCoordinator()
	sig, err := coord.Issue("ws")
	require.NoError(t, err)

	in := make(chan event.Event, 1)
	in <- event.FromLog(event.NewLogMessage("last"))
	close(in)

	done := make(chan error, 1)
	go func() { done <- sink.Run(sig, in) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after upstream closed")
	}
	assert.Contains(t, string(p.next(t).data), "last")
	assert.Equal(t, StateDisconnected, sink.State())
}

func TestSink_AcknowledgementsFollowWriteOutcome(t *testing.T) {
	p := newPeer(t)
	cfg := testSinkConfig(p.uri())
	cfg.Acknowledgements.Enabled = true
	sink, err := NewSink("ws", cfg, component.Dependencies{})
	require.NoError(t, err)

	r := startSink(t, sink)

	notifier := event.NewBatchNotifier()
	batch := notifier.Attach([]event.Event{
		event.FromLog(event.NewLogMessage("a")),
		event.FromLog(event.NewLogMessage("b")),
	})
	for _, ev := range batch {
		r.in <- ev
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := notifier.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, event.StatusDelivered, status)
}

// closedSession returns a session whose socket is already closed, so every write fails
func closedSession(t *testing.T, sink *Sink) *session {
	t.Helper()
	conn, err := sink.connector.Connect(context.Background())
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	return &session{conn: conn, logger: sink.logger}
}

func TestSink_FailedWriteIsReportedUndelivered(t *testing.T) {
	p := newPeer(t)
	registry := metric.NewMetricsRegistry()
	cfg := testSinkConfig(p.uri())
	cfg.Acknowledgements.Enabled = true
	sink, err := NewSink("ws", cfg, component.Dependencies{MetricsRegistry: registry})
	require.NoError(t, err)

	notifier := event.NewBatchNotifier()
	batch := notifier.Attach([]event.Event{event.FromLog(event.NewLogMessage("lost"))})

	require.Error(t, sink.write(closedSession(t, sink), batch[0]))
	assert.Equal(t, event.StatusErrored, notifier.Status())
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.metrics.eventsFailed))
}

func TestSink_WithoutAcknowledgementsFinalizesOnDequeue(t *testing.T) {
	p := newPeer(t)
	sink, err := NewSink("ws", testSinkConfig(p.uri()), component.Dependencies{})
	require.NoError(t, err)

	notifier := event.NewBatchNotifier()
	batch := notifier.Attach([]event.Event{event.FromLog(event.NewLogMessage("fire and forget"))})

	require.Error(t, sink.write(closedSession(t, sink), batch[0]))
	assert.Equal(t, event.StatusDelivered, notifier.Status())
}

func TestSink_UnencodableEventIsRejected(t *testing.T) {
	p := newPeer(t)
	cfg := testSinkConfig(p.uri())
	cfg.Encoding = codec.SerializerConfig{Codec: codec.SerializerText}
	cfg.Acknowledgements.Enabled = true
	sink, err := NewSink("ws", cfg, component.Dependencies{})
	require.NoError(t, err)

	notifier := event.NewBatchNotifier()
	batch := notifier.Attach([]event.Event{event.FromMetric(event.NewGauge("load", 0.5))})

	assert.NoError(t, sink.write(closedSession(t, sink), batch[0]))
	assert.Equal(t, event.StatusRejected, notifier.Status())
}

func TestSink_Metrics(t *testing.T) {
	p := newPeer(t)
	registry := metric.NewMetricsRegistry()
	sink, err := NewSink("ws", testSinkConfig(p.uri()), component.Dependencies{MetricsRegistry: registry})
	require.NoError(t, err)

	r := startSink(t, sink)
	r.in <- event.FromLog(event.NewLogMessage("counted"))
	p.next(t)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(sink.metrics.eventsSent) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(StateOpen), testutil.ToFloat64(sink.metrics.connectionState))
	assert.Positive(t, testutil.ToFloat64(sink.metrics.bytesSent))

	_, err = NewSink("ws", testSinkConfig(p.uri()), component.Dependencies{MetricsRegistry: registry})
	assert.Error(t, err, "a second sink with the same name collides in the registry")
}

func TestSink_RunTwiceFails(t *testing.T) {
	p := newPeer(t)
	sink, err := NewSink("ws", testSinkConfig(p.uri()), component.Dependencies{})
	require.NoError(t, err)

	startSink(t, sink)
	waitState(t, sink, StateOpen)

	coord := shutdown.NewCoordinator()
	sig, err := coord.Issue("again")
	require.NoError(t, err)
	assert.Error(t, sink.Run(sig, make(chan event.Event)))
}

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	sink, err := registry.BuildSink(SinkType, "collector",
		json.RawMessage(`{"uri": "ws://127.0.0.1:9000/endpoint", "ping_interval": 30}`), component.Dependencies{})
	require.NoError(t, err)

	meta := sink.Meta()
	assert.Equal(t, "collector", meta.Name)
	assert.Equal(t, component.KindSink, meta.Kind)
	assert.Contains(t, sink.ConfigSchema().Properties, "ping_timeout")

	_, err = registry.BuildSink(SinkType, "bad", json.RawMessage(`{"uri": "tcp://x"}`), component.Dependencies{})
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "closing", StateClosing.String())
	assert.Equal(t, "unknown", State(9).String())
}
