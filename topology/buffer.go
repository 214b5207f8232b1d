package topology

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/Tomwslape5638/vector/codec"
	"github.com/Tomwslape5638/vector/config"
	"github.com/Tomwslape5638/vector/errors"
	"github.com/Tomwslape5638/vector/event"
	"github.com/Tomwslape5638/vector/metric"
	"github.com/Tomwslape5638/vector/natsclient"
	"github.com/Tomwslape5638/vector/pkg/retry"
)

// buffer carries events from the source channels to the sink channels.
//
// open runs before any source starts. pump runs once per source and returns when the
// source channel is closed or abort fires. close runs after every source has stopped;
// once it returns no new event enters the buffer.
//
// A buffer feeds a sink through sink.feeders: every feeder it adds is released once the
// buffer can no longer send on sink.in, which then gets closed.
type buffer interface {
	kind() string
	open(ctx context.Context, sinks []*sinkNode) error
	pump(src *sourceNode, abort <-chan struct{})
	close(ctx context.Context) error
	healthy() bool
}

// deliver hands ev to sink, blocking until the sink takes it. It gives up when the sink
// has stopped or the topology aborts, and reports the event as errored.
func deliver(sink *sinkNode, ev event.Event, abort <-chan struct{}) bool {
	select {
	case sink.in <- ev:
		return true
	case <-sink.sig.Completed():
	case <-abort:
	}
	ev.Finalize(event.StatusErrored)
	return false
}

// memoryBuffer fans every source channel out to the channels of the sinks reading it
type memoryBuffer struct {
	metrics *metric.Metrics
	routes  map[string][]*sinkNode
}

func newMemoryBuffer(metrics *metric.Metrics) *memoryBuffer {
	return &memoryBuffer{metrics: metrics, routes: make(map[string][]*sinkNode)}
}

func (b *memoryBuffer) kind() string { return config.BufferMemory }

func (b *memoryBuffer) open(_ context.Context, sinks []*sinkNode) error {
	for _, sink := range sinks {
		for _, input := range sink.inputs {
			b.routes[input] = append(b.routes[input], sink)
			sink.feeders.Add(1)
		}
	}
	return nil
}

func (b *memoryBuffer) pump(src *sourceNode, abort <-chan struct{}) {
	targets := b.routes[src.name]
	defer func() {
		for _, sink := range targets {
			sink.feeders.Done()
		}
	}()

	for {
		select {
		case ev, ok := <-src.out:
			if !ok {
				return
			}
			if b.metrics != nil {
				b.metrics.RecordBufferedEvent(src.name, config.BufferMemory)
			}
			if len(targets) == 0 {
				ev.Finalize(event.StatusDelivered)
				continue
			}
			for _, sink := range targets {
				deliver(sink, ev, abort)
			}
		case <-abort:
			return
		}
	}
}

func (b *memoryBuffer) close(context.Context) error { return nil }

func (b *memoryBuffer) healthy() bool { return true }

// natsBuffer publishes each source's events to its own subject as CBOR envelopes and
// subscribes every sink to the subjects of its inputs. Acknowledgements end at the
// publish: an event is delivered once NATS accepted it.
type natsBuffer struct {
	cfg     *config.NATSBufferConfig
	client  *natsclient.Client
	connect retry.Config
	logger  *slog.Logger
	metrics *metric.Metrics

	sinks   []*sinkNode
	subs    []*nats.Subscription
	closing chan struct{}

	mu       sync.RWMutex
	shutdown bool
	abort    <-chan struct{}
}

func newNATSBuffer(
	cfg *config.NATSBufferConfig,
	client *natsclient.Client,
	logger *slog.Logger,
	metrics *metric.Metrics,
	abort <-chan struct{},
) *natsBuffer {
	connect := retry.DefaultConfig()
	connect.MaxAttempts = 5
	return &natsBuffer{
		cfg:     cfg,
		client:  client,
		connect: connect,
		logger:  logger.With("buffer", config.BufferNATS),
		metrics: metrics,
		closing: make(chan struct{}),
		abort:   abort,
	}
}

func (b *natsBuffer) kind() string { return config.BufferNATS }

func (b *natsBuffer) open(ctx context.Context, sinks []*sinkNode) error {
	if err := retry.Do(ctx, b.connect, func() error {
		return b.client.Connect(ctx)
	}); err != nil {
		return errors.Wrap(err, "natsBuffer", "open", "connect to NATS")
	}

	for _, sink := range sinks {
		for _, input := range sink.inputs {
			subject := b.cfg.Subject(input)
			sub, err := b.client.Subscribe(ctx, subject, b.handler(sink, subject))
			if err != nil {
				b.unsubscribe()
				return errors.Wrap(err, "natsBuffer", "open", "subscribe "+sink.name)
			}
			b.subs = append(b.subs, sub)
		}
		sink.feeders.Add(1)
		b.sinks = append(b.sinks, sink)
	}

	// Interest must reach the server before the first publish
	if err := b.client.Flush(ctx); err != nil {
		b.unsubscribe()
		return errors.Wrap(err, "natsBuffer", "open", "flush subscriptions")
	}

	go b.release()
	return nil
}

func (b *natsBuffer) handler(sink *sinkNode, subject string) func(context.Context, []byte) {
	return func(_ context.Context, data []byte) {
		b.mu.RLock()
		defer b.mu.RUnlock()
		if b.shutdown {
			return
		}

		var env event.Envelope
		if err := codec.UnmarshalNative(data, &env); err != nil {
			b.logger.Warn("Dropping undecodable buffered event", "subject", subject, "error", err)
			return
		}
		ev, err := env.Event()
		if err != nil {
			b.logger.Warn("Dropping invalid buffered event", "subject", subject, "error", err)
			return
		}
		deliver(sink, ev, b.abort)
	}
}

// release waits for close, then for in-flight handlers, before giving up the feeders
func (b *natsBuffer) release() {
	select {
	case <-b.closing:
	case <-b.abort:
	}

	b.mu.Lock()
	b.shutdown = true
	b.mu.Unlock()

	for _, sink := range b.sinks {
		sink.feeders.Done()
	}
}

func (b *natsBuffer) unsubscribe() {
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
}

func (b *natsBuffer) pump(src *sourceNode, abort <-chan struct{}) {
	subject := b.cfg.Subject(src.name)
	logger := b.logger.With("source", src.name, "subject", subject)

	for {
		select {
		case ev, ok := <-src.out:
			if !ok {
				return
			}
			b.publish(logger, subject, src.name, ev)
		case <-abort:
			return
		}
	}
}

func (b *natsBuffer) publish(logger *slog.Logger, subject, source string, ev event.Event) {
	data, err := codec.MarshalNative(ev.ToEnvelope())
	if err != nil {
		logger.Error("Failed to encode event for NATS", "error", err)
		ev.Finalize(event.StatusRejected)
		return
	}

	if err := b.client.Publish(context.Background(), subject, data); err != nil {
		logger.Warn("Failed to publish event", "error", err)
		ev.Finalize(event.StatusErrored)
		return
	}

	if b.metrics != nil {
		b.metrics.RecordBufferedEvent(source, config.BufferNATS)
	}
	ev.Finalize(event.StatusDelivered)
}

// close flushes what the sources published, then drains the subscriptions and the
// connection
func (b *natsBuffer) close(ctx context.Context) error {
	defer close(b.closing)

	var flushErr error
	if err := b.client.Flush(ctx); err != nil {
		flushErr = errors.Wrap(err, "natsBuffer", "close", "flush published events")
	}
	if err := b.client.Close(ctx); err != nil {
		return errors.Wrap(err, "natsBuffer", "close", "drain NATS connection")
	}
	return flushErr
}

func (b *natsBuffer) healthy() bool {
	return b.client.IsHealthy()
}
