package httpscrape

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/Tomwslape5638/vector/codec"
	"github.com/Tomwslape5638/vector/component"
	"github.com/Tomwslape5638/vector/errors"
	"github.com/Tomwslape5638/vector/event"
	"github.com/Tomwslape5638/vector/shutdown"
)

// SourceType marks every event produced by this source
const SourceType = "http_scrape"

// target is one resolved endpoint: the request URL and the label used in logs and metrics
type target struct {
	url   *url.URL
	label string
}

// Source scrapes a set of HTTP endpoints on an interval and emits the decoded events
type Source struct {
	name    string
	config  Config
	targets []target
	headers http.Header
	client  *http.Client
	decoder *codec.Decoder
	schema  event.LogSchema
	maxBody int

	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *Metrics

	running       atomic.Bool
	startTime     atomic.Value // time.Time
	lastActivity  atomic.Value // time.Time
	lastError     atomic.Value // string
	eventsEmitted atomic.Int64
	bytesReceived atomic.Int64
	requests      atomic.Int64
	errorCount    atomic.Int64

	acks      sync.WaitGroup
	ackCounts [event.StatusRejected + 1]atomic.Int64
}

var _ component.Source = (*Source)(nil)

// NewSource builds a scrape source. It validates cfg, resolves every endpoint and builds
// the HTTP client; it performs no I/O.
func NewSource(name string, cfg Config, deps component.Dependencies) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	targets := make([]target, 0, len(cfg.AllEndpoints()))
	for _, ep := range cfg.AllEndpoints() {
		u, err := buildURL(ep, cfg.Query)
		if err != nil {
			return nil, err
		}
		label := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}).String()
		targets = append(targets, target{url: u, label: label})
	}

	schema := deps.GetLogSchema()
	decoder, err := codec.NewDecoder(cfg.Framing, cfg.Decoding, schema)
	if err != nil {
		return nil, err
	}

	client, err := newHTTPClient(&cfg)
	if err != nil {
		return nil, err
	}

	headers := make(http.Header, len(cfg.Headers)+2)
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}
	headers.Set("Accept", codec.ContentType(cfg.Framing, cfg.Decoding))
	headers.Set("Accept-Encoding", acceptEncoding)

	metrics, err := newMetrics(deps.MetricsRegistry, name)
	if err != nil {
		return nil, errors.WrapFatal(err, "httpscrape", "NewSource", "metrics setup")
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	s := &Source{
		name:    name,
		config:  cfg,
		targets: targets,
		headers: headers,
		client:  client,
		decoder: decoder,
		schema:  schema,
		maxBody: maxBody,
		clock:   deps.GetClock(),
		logger:  deps.GetLoggerWithComponent(name),
		metrics: metrics,
	}
	s.startTime.Store(time.Time{})
	s.lastActivity.Store(time.Time{})
	s.lastError.Store("")
	return s, nil
}

// Run scrapes every endpoint on its own timer until sig fires. The first scrape of each
// endpoint happens immediately. In-flight requests are cancelled when shutdown is
// requested and no event is sent after that.
func (s *Source) Run(sig *shutdown.Signal, out chan<- event.Event) error {
	defer sig.Complete()

	if !s.running.CompareAndSwap(false, true) {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "httpscrape", "Run", "start source")
	}
	defer s.running.Store(false)

	s.startTime.Store(s.clock.Now())
	s.logger.Info("HTTP scrape source started",
		"endpoints", len(s.targets), "interval", s.config.Interval())

	g, ctx := errgroup.WithContext(sig.Context())
	for _, t := range s.targets {
		g.Go(func() error {
			s.scrapeLoop(ctx, sig, t, out)
			return nil
		})
	}
	err := g.Wait()
	s.acks.Wait()

	s.logger.Info("HTTP scrape source stopped")
	return err
}

func (s *Source) scrapeLoop(ctx context.Context, sig *shutdown.Signal, t target, out chan<- event.Event) {
	ticker := s.clock.NewTicker(s.config.Interval())
	defer ticker.Stop()

	for {
		if !s.scrape(ctx, sig, t, out) {
			return
		}
		select {
		case <-sig.Done():
			return
		case <-ticker.Chan():
		}
	}
}

// scrape runs one tick for t: request, decode, enrich, emit. It returns false once shutdown
// has been observed.
func (s *Source) scrape(ctx context.Context, sig *shutdown.Signal, t target, out chan<- event.Event) bool {
	start := s.clock.Now()
	s.requests.Add(1)

	body, status, err := s.fetch(ctx, t.url)
	elapsed := s.clock.Since(start).Seconds()
	if err != nil {
		if sig.Requested() {
			return false
		}
		s.metrics.recordRequest(t.label, statusLabel(status), elapsed)
		s.recordError(err)
		s.logger.Warn("Scrape failed, retrying on next tick",
			"endpoint", t.label, "status", status, "error", err)
		return true
	}
	s.metrics.recordRequest(t.label, statusLabel(status), elapsed)
	s.metrics.recordBody(len(body))
	s.bytesReceived.Add(int64(len(body)))

	events, err := s.decoder.Decode(body)
	if err != nil {
		s.metrics.recordDecodeError()
		s.recordError(err)
		s.logger.Warn("Decoding stopped, rest of response discarded",
			"endpoint", t.label, "decoded", len(events), "error", err)
	}

	s.enrich(events)
	if len(events) > 0 {
		notifier := event.NewBatchNotifier()
		events = notifier.Attach(events)
		s.acks.Add(1)
		go s.awaitAcks(sig, t, notifier, len(events))
	}
	return s.emit(sig, events, out)
}

// awaitAcks records the outcome of one scrape once every event of it has been finalized
// downstream. Outcomes still pending at shutdown are not recorded.
func (s *Source) awaitAcks(sig *shutdown.Signal, t target, notifier *event.BatchNotifier, count int) {
	defer s.acks.Done()

	select {
	case <-notifier.Done():
	case <-sig.Done():
		return
	}

	status := notifier.Status()
	s.ackCounts[status].Add(1)
	s.metrics.recordAck(status)
	if status != event.StatusDelivered {
		s.logger.Warn("Scraped events were not delivered",
			"endpoint", t.label, "events", count, "status", status)
	}
}

// Acknowledged returns how many scrapes resolved with status, the worst outcome among
// their events
func (s *Source) Acknowledged(status event.EventStatus) int64 {
	if status < 0 || int(status) >= len(s.ackCounts) {
		return 0
	}
	return s.ackCounts[status].Load()
}

// enrich stamps provenance on every event: logs get the source type and the current time
// unless already present, metrics get a source type tag, traces get a source type field.
func (s *Source) enrich(events []event.Event) {
	now := s.clock.Now().UTC()
	for _, ev := range events {
		switch ev.Kind() {
		case event.KindLog:
			log := ev.Log()
			log.TryInsert(s.schema.SourceTypeKey, SourceType)
			log.TryInsert(s.schema.TimestampKey, now)
		case event.KindMetric:
			ev.Metric().InsertTag(s.schema.SourceTypeKey, SourceType)
		case event.KindTrace:
			ev.Trace().Insert(s.schema.SourceTypeKey, SourceType)
		}
	}
}

// emit sends events in order, blocking while out is full. Shutdown wins over a pending
// send; events left unsent are finalized as errored.
func (s *Source) emit(sig *shutdown.Signal, events []event.Event, out chan<- event.Event) bool {
	for i, ev := range events {
		select {
		case <-sig.Done():
			event.FinalizeAll(events[i:], event.StatusErrored)
			return false
		default:
		}

		select {
		case out <- ev:
			s.eventsEmitted.Add(1)
			s.metrics.recordEmitted()
			s.lastActivity.Store(s.clock.Now())
		case <-sig.Done():
			event.FinalizeAll(events[i:], event.StatusErrored)
			return false
		}
	}
	return true
}

func (s *Source) recordError(err error) {
	s.errorCount.Add(1)
	s.lastError.Store(err.Error())
}

func statusLabel(status int) string {
	if status == 0 {
		return "error"
	}
	return strconv.Itoa(status)
}

// Meta returns component metadata
func (s *Source) Meta() component.Metadata {
	return component.Metadata{
		Name:        s.name,
		Type:        SourceType,
		Kind:        component.KindSource,
		Description: description,
		Version:     version,
	}
}

// ConfigSchema returns the configuration schema
func (s *Source) ConfigSchema() component.ConfigSchema {
	return httpScrapeSchema
}

// Health reports the source healthy while it runs. Scrape failures are counted but do not
// make it unhealthy, since the next tick retries.
func (s *Source) Health() component.HealthStatus {
	started := s.startTime.Load().(time.Time)
	running := s.running.Load()

	var uptime time.Duration
	if running && !started.IsZero() {
		uptime = s.clock.Since(started)
	}

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  s.clock.Now(),
		ErrorCount: int(s.errorCount.Load()),
		LastError:  s.lastError.Load().(string),
		Uptime:     uptime,
	}
}

// DataFlow returns rates averaged over the uptime of the source
func (s *Source) DataFlow() component.FlowMetrics {
	flow := component.FlowMetrics{LastActivity: s.lastActivity.Load().(time.Time)}

	started := s.startTime.Load().(time.Time)
	if started.IsZero() {
		return flow
	}
	if secs := s.clock.Since(started).Seconds(); secs > 0 {
		flow.EventsPerSecond = float64(s.eventsEmitted.Load()) / secs
		flow.BytesPerSecond = float64(s.bytesReceived.Load()) / secs
	}
	if requests := s.requests.Load(); requests > 0 {
		flow.ErrorRate = float64(s.errorCount.Load()) / float64(requests)
	}
	return flow
}
