package topology

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/Tomwslape5638/vector/component"
	"github.com/Tomwslape5638/vector/config"
	"github.com/Tomwslape5638/vector/errors"
	"github.com/Tomwslape5638/vector/event"
	"github.com/Tomwslape5638/vector/health"
	"github.com/Tomwslape5638/vector/metric"
	"github.com/Tomwslape5638/vector/natsclient"
	"github.com/Tomwslape5638/vector/shutdown"
)

// SystemName is the component name of the aggregated health status
const SystemName = "vector"

const bufferHealthName = "buffer"

type sourceNode struct {
	name   string
	source component.Source
	out    chan event.Event
	sig    *shutdown.Signal
}

type sinkNode struct {
	name        string
	sink        component.Sink
	inputs      []string
	healthcheck bool
	in          chan event.Event
	feeders     sync.WaitGroup
	sig         *shutdown.Signal
	done        chan struct{} // closed when Run has returned
}

// Option configures a Topology
type Option func(*Topology)

// WithRequireHealthy overrides health.require_healthy from the pipeline config
func WithRequireHealthy(require bool) Option {
	return func(t *Topology) { t.requireHealthy = require }
}

// Topology runs a pipeline: it builds the configured components, connects every source to
// the sinks reading it through the configured buffer, and shuts them down in order.
type Topology struct {
	id              string
	cfg             *config.Config
	registry        *component.Registry
	metricsRegistry *metric.MetricsRegistry
	metrics         *metric.Metrics
	logger          *slog.Logger
	clock           clockwork.Clock
	coordinator     *shutdown.Coordinator
	monitor         *health.Monitor
	requireHealthy  bool

	sources []*sourceNode
	sinks   []*sinkNode
	buffer  buffer

	group   *errgroup.Group
	failed  <-chan struct{}
	workers sync.WaitGroup
	abort   chan struct{}

	started    atomic.Bool
	running    atomic.Bool
	stopping   atomic.Bool
	stopOnce   sync.Once
	stopResult bool
}

// Build validates cfg and creates every enabled component through registry. Nothing runs
// and no connection is made until Start.
func Build(cfg *config.Config, registry *component.Registry, deps component.Dependencies, opts ...Option) (*Topology, error) {
	if cfg == nil || registry == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Topology", "Build", "config and registry are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ValidateTypes(registry); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	logger := deps.GetLogger().With("topology", id)
	clock := deps.GetClock()
	deps.Logger = logger
	deps.Clock = clock

	t := &Topology{
		id:              id,
		cfg:             cfg,
		registry:        registry,
		metricsRegistry: deps.MetricsRegistry,
		logger:          logger,
		clock:           clock,
		coordinator:     shutdown.NewCoordinator(shutdown.WithClock(clock), shutdown.WithLogger(logger)),
		monitor:         health.NewMonitor(),
		requireHealthy:  cfg.Health.RequireHealthy,
		abort:           make(chan struct{}),
	}
	if deps.MetricsRegistry != nil {
		t.metrics = deps.MetricsRegistry.CoreMetrics()
	}
	for _, opt := range opts {
		opt(t)
	}

	if err := t.build(deps); err != nil {
		t.release()
		return nil, err
	}

	t.logger.Info("Topology built",
		"sources", len(t.sources), "sinks", len(t.sinks), "buffer", t.buffer.kind())
	return t, nil
}

func (t *Topology) build(deps component.Dependencies) error {
	capacity := t.cfg.Buffer.MaxEvents

	for _, name := range sortedNames(t.cfg.Sources) {
		cc := t.cfg.Sources[name]
		if !cc.IsEnabled() {
			t.logger.Info("Skipping disabled source", "source", name)
			continue
		}
		src, err := t.registry.BuildSource(cc.Type, name, cc.Config, deps)
		if err != nil {
			return errors.Wrap(err, "Topology", "Build", fmt.Sprintf("build source %s", name))
		}
		t.sources = append(t.sources, &sourceNode{
			name:   name,
			source: src,
			out:    make(chan event.Event, capacity),
		})
	}

	for _, name := range sortedNames(t.cfg.Sinks) {
		sc := t.cfg.Sinks[name]
		if !sc.IsEnabled() {
			t.logger.Info("Skipping disabled sink", "sink", name)
			continue
		}
		sink, err := t.registry.BuildSink(sc.Type, name, sc.Config, deps)
		if err != nil {
			return errors.Wrap(err, "Topology", "Build", fmt.Sprintf("build sink %s", name))
		}
		t.sinks = append(t.sinks, &sinkNode{
			name:        name,
			sink:        sink,
			inputs:      sc.Inputs,
			healthcheck: sc.Healthcheck.IsEnabled(),
			in:          make(chan event.Event, capacity),
			done:        make(chan struct{}),
		})
	}

	switch t.cfg.Buffer.Type {
	case config.BufferNATS:
		nc := t.cfg.Buffer.NATS
		clientName := nc.Name
		if clientName == "" {
			clientName = "vector-" + t.id
		}
		client, err := natsclient.NewClient(nc.URL, natsOptions(nc,
			natsclient.WithLogger(t.logger),
			natsclient.WithClock(t.clock),
			natsclient.WithName(clientName),
			natsclient.WithHealthChangeCallback(t.bufferHealthChanged),
			natsclient.WithMetrics(t.metricsRegistry),
		)...)
		if err != nil {
			return errors.Wrap(err, "Topology", "Build", "create NATS client")
		}
		t.buffer = newNATSBuffer(nc, client, t.logger, t.metrics, t.abort)
	default:
		t.buffer = newMemoryBuffer(t.metrics)
	}
	return nil
}

// natsOptions appends the connection settings of nc to opts
func natsOptions(nc *config.NATSBufferConfig, opts ...natsclient.ClientOption) []natsclient.ClientOption {
	opts = append(opts,
		natsclient.WithCredentials(nc.Username, nc.Password),
		natsclient.WithToken(nc.Token),
		natsclient.WithTLS(nc.TLS),
	)
	if nc.ReconnectWaitSecs > 0 {
		opts = append(opts, natsclient.WithReconnectWait(time.Duration(nc.ReconnectWaitSecs)*time.Second))
	}
	if nc.PingIntervalSecs > 0 {
		opts = append(opts, natsclient.WithPingInterval(time.Duration(nc.PingIntervalSecs)*time.Second))
	}
	if nc.DrainTimeoutSecs > 0 {
		opts = append(opts, natsclient.WithDrainTimeout(time.Duration(nc.DrainTimeoutSecs)*time.Second))
	}
	return opts
}

// bufferHealthChanged records connection changes of the nats buffer under "buffer"
func (t *Topology) bufferHealthChanged(healthy bool) {
	if healthy {
		t.monitor.UpdateHealthy(bufferHealthName, config.BufferNATS+" buffer connected")
		return
	}
	t.monitor.UpdateUnhealthy(bufferHealthName, config.BufferNATS+" buffer not connected")
	if !t.stopping.Load() {
		t.logger.Warn("Buffer connection lost", "buffer", config.BufferNATS)
	}
}

// ID returns the run id attached to every log line of this topology
func (t *Topology) ID() string {
	return t.id
}

// Monitor returns the monitor holding the sink healthcheck results
func (t *Topology) Monitor() *health.Monitor {
	return t.monitor
}

// Start runs the sink healthchecks, opens the buffer and starts every component. With
// require_healthy a failed healthcheck aborts the start and nothing runs.
func (t *Topology) Start(ctx context.Context) error {
	if !t.started.CompareAndSwap(false, true) {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Topology", "Start", "start topology")
	}

	if err := t.runHealthchecks(ctx); err != nil {
		return err
	}

	for _, node := range t.sources {
		sig, err := t.coordinator.Issue(node.name)
		if err != nil {
			return err
		}
		node.sig = sig
	}
	for _, node := range t.sinks {
		sig, err := t.coordinator.Issue(node.name)
		if err != nil {
			return err
		}
		node.sig = sig
	}

	if err := t.buffer.open(ctx, t.sinks); err != nil {
		_ = t.buffer.close(context.Background())
		return errors.WrapFatal(err, "Topology", "Start", "open buffer")
	}

	group, groupCtx := errgroup.WithContext(context.Background())
	t.group = group
	t.failed = groupCtx.Done()

	// Consumers first, so no source runs ahead of the sinks reading it
	for _, node := range t.sinks {
		t.startSink(node)
	}
	for _, node := range t.sources {
		t.workers.Add(1)
		go func() {
			defer t.workers.Done()
			t.buffer.pump(node, t.abort)
		}()
	}
	for _, node := range t.sources {
		t.startSource(node)
	}

	t.running.Store(true)
	t.logger.Info("Topology started")
	return nil
}

func (t *Topology) startSource(node *sourceNode) {
	t.recordStatus(node.name, component.KindSource, metric.StatusRunning)
	t.group.Go(func() error {
		defer close(node.out)

		err := node.source.Run(node.sig, node.out)
		if err != nil {
			t.logger.Error("Source failed", "source", node.name, "error", err)
			t.recordStatus(node.name, component.KindSource, metric.StatusFailed)
			return errors.Wrap(err, "Topology", "Run", "source "+node.name)
		}
		t.recordStatus(node.name, component.KindSource, metric.StatusStopped)
		return nil
	})
}

func (t *Topology) startSink(node *sinkNode) {
	t.workers.Add(1)
	go func() {
		defer t.workers.Done()
		node.feeders.Wait()
		close(node.in)
	}()

	t.recordStatus(node.name, component.KindSink, metric.StatusRunning)
	t.group.Go(func() error {
		defer close(node.done)

		err := node.sink.Run(node.sig, node.in)
		if err != nil {
			t.logger.Error("Sink failed", "sink", node.name, "error", err)
			t.recordStatus(node.name, component.KindSink, metric.StatusFailed)
			return errors.Wrap(err, "Topology", "Run", "sink "+node.name)
		}
		t.recordStatus(node.name, component.KindSink, metric.StatusStopped)
		return nil
	})
}

// runHealthchecks probes every sink concurrently, each bounded by the health timeout
func (t *Topology) runHealthchecks(ctx context.Context) error {
	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures []error
	)

	for _, node := range t.sinks {
		if !node.healthcheck {
			continue
		}
		g.Go(func() error {
			checkCtx := ctx
			if timeout := t.cfg.Health.Timeout(); timeout > 0 {
				var cancel context.CancelFunc
				checkCtx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			name := healthcheckName(node.name)
			err := node.sink.Healthcheck(checkCtx)
			if t.metrics != nil {
				t.metrics.RecordHealthStatus(node.name, err == nil)
			}
			if err != nil {
				t.logger.Warn("Sink healthcheck failed", "sink", node.name, "error", err)
				t.monitor.UpdateUnhealthy(name, err.Error())
				mu.Lock()
				failures = append(failures, fmt.Errorf("sink %s: %w", node.name, err))
				mu.Unlock()
				return nil
			}
			t.logger.Info("Sink healthcheck passed", "sink", node.name)
			t.monitor.UpdateHealthy(name, "healthcheck passed")
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) > 0 && t.requireHealthy {
		return errors.WrapFatal(stderrors.Join(failures...), "Topology", "Start", "sink healthchecks")
	}
	return nil
}

func healthcheckName(sink string) string {
	return sink + ".healthcheck"
}

// Failed is closed when a component's Run returns an error
func (t *Topology) Failed() <-chan struct{} {
	return t.failed
}

// Wait blocks until every component has returned and reports the first failure
func (t *Topology) Wait() error {
	if t.group == nil {
		return nil
	}
	return t.group.Wait()
}

// Stop shuts the pipeline down by the deadline and reports whether every component
// completed in time.
//
// Sources stop first. The buffer then drains into the sinks, which finish on their own
// once their inputs are closed. Sinks still running halfway to the deadline are signalled.
// Events left in a sink's channel are reported as errored. Stop is idempotent.
func (t *Topology) Stop(deadline time.Time) bool {
	t.stopOnce.Do(func() {
		t.stopResult = t.stop(deadline)
	})
	return t.stopResult
}

func (t *Topology) stop(deadline time.Time) bool {
	defer t.release()
	t.stopping.Store(true)

	if !t.running.Load() {
		return true
	}

	start := t.clock.Now()
	t.logger.Info("Stopping topology", "deadline", deadline)
	ok := t.shutdownNodes(sourceNames(t.sources), deadline, start)

	drainCtx, cancel := context.WithTimeout(context.Background(), deadline.Sub(t.clock.Now())/2)
	defer cancel()

	if err := t.buffer.close(drainCtx); err != nil {
		t.logger.Warn("Buffer did not close cleanly", "buffer", t.buffer.kind(), "error", err)
	}

	for _, node := range t.sinks {
		select {
		case <-node.sig.Completed():
		case <-drainCtx.Done():
		}
	}

	ok = t.shutdownNodes(sinkNames(t.sinks), deadline, start) && ok

	close(t.abort)
	t.workers.Wait()

	for _, node := range t.sinks {
		select {
		case <-node.sig.Completed():
			<-node.done
		default:
			continue
		}
		dropped := 0
		for ev := range node.in {
			ev.Finalize(event.StatusErrored)
			dropped++
		}
		if dropped > 0 {
			t.logger.Warn("Events left undelivered at shutdown", "sink", node.name, "events", dropped)
		}
	}

	t.logger.Info("Topology stopped", "clean", ok, "elapsed", t.clock.Since(start))
	return ok
}

func (t *Topology) shutdownNodes(names []string, deadline, start time.Time) bool {
	ok := true
	results := t.coordinator.ShutdownMany(names, deadline)
	for _, name := range names {
		done := results[name]
		if t.metrics != nil {
			t.metrics.RecordShutdown(name, t.clock.Since(start), done)
		}
		if !done {
			t.logger.Error("Component missed the shutdown deadline", "component", name)
			ok = false
		}
	}
	return ok
}

// release removes the instances and their metrics from the shared registries
func (t *Topology) release() {
	names := append(sourceNames(t.sources), sinkNames(t.sinks)...)
	for _, name := range names {
		t.registry.UnregisterInstance(name)
		if t.metricsRegistry != nil {
			t.metricsRegistry.UnregisterComponent(name)
		}
	}
}

// Health aggregates component health, sink healthcheck results and the buffer
func (t *Topology) Health() health.Status {
	components := make(map[string]component.Discoverable, len(t.sources)+len(t.sinks))
	for _, node := range t.sources {
		components[node.name] = node.source
	}
	for _, node := range t.sinks {
		components[node.name] = node.sink
	}

	statuses := append(health.FromComponents(components), t.monitor.Statuses()...)

	// A connection callback, once seen, owns the buffer status
	if _, reported := t.monitor.Get(bufferHealthName); !reported {
		bufferStatus := health.NewHealthy(bufferHealthName, t.buffer.kind()+" buffer ready")
		if !t.buffer.healthy() {
			bufferStatus = health.NewUnhealthy(bufferHealthName, t.buffer.kind()+" buffer not connected")
		}
		statuses = append(statuses, bufferStatus)
	}

	return health.Aggregate(SystemName, statuses)
}

func (t *Topology) recordStatus(name string, kind component.Kind, status int) {
	if t.metrics != nil {
		t.metrics.RecordComponentStatus(name, string(kind), status)
	}
}

func sourceNames(nodes []*sourceNode) []string {
	names := make([]string, 0, len(nodes))
	for _, node := range nodes {
		names = append(names, node.name)
	}
	return names
}

func sinkNames(nodes []*sinkNode) []string {
	names := make([]string, 0, len(nodes))
	for _, node := range nodes {
		names = append(names, node.name)
	}
	return names
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
