// Package shutdown coordinates cooperative termination of long-running components.
//
// Each component instance is issued a Signal when it is built. Its run loop selects on
// Signal.Done at every suspension point, releases what it owns, and calls Complete. The
// Coordinator requests shutdown with a deadline and reports whether the component
// completed in time. It never stops a component by force.
package shutdown

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Tomwslape5638/vector/errors"
)

// Signal is the single-use shutdown notification of one component instance.
type Signal struct {
	id string

	requested   chan struct{}
	requestOnce sync.Once
	deadline    time.Time

	completed    chan struct{}
	completeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

func newSignal(id string) *Signal {
	ctx, cancel := context.WithCancel(context.Background())
	return &Signal{
		id:        id,
		requested: make(chan struct{}),
		completed: make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ID returns the component id the signal was issued for
func (s *Signal) ID() string {
	return s.id
}

// Done is closed when shutdown has been requested
func (s *Signal) Done() <-chan struct{} {
	return s.requested
}

// Requested reports whether shutdown has been requested
func (s *Signal) Requested() bool {
	select {
	case <-s.requested:
		return true
	default:
		return false
	}
}

// Context returns a context cancelled when shutdown is requested. In-flight requests
// made with it are abandoned as soon as the component is asked to stop.
func (s *Signal) Context() context.Context {
	return s.ctx
}

// Deadline returns the deadline of the shutdown request. ok is false until shutdown
// has been requested.
func (s *Signal) Deadline() (deadline time.Time, ok bool) {
	if !s.Requested() {
		return time.Time{}, false
	}
	return s.deadline, true
}

// DeadlineContext returns a context that ends at the shutdown deadline, for cleanup work
// such as a close handshake that may outlive the shutdown request itself. Before shutdown
// is requested it never ends on its own.
func (s *Signal) DeadlineContext() (context.Context, context.CancelFunc) {
	if deadline, ok := s.Deadline(); ok {
		return context.WithDeadline(context.Background(), deadline)
	}
	return context.WithCancel(context.Background())
}

// Complete reports that the component has reached its terminal state and released its
// resources. Only the first call has an effect.
func (s *Signal) Complete() {
	s.completeOnce.Do(func() {
		close(s.completed)
	})
}

// Completed is closed once Complete has been called
func (s *Signal) Completed() <-chan struct{} {
	return s.completed
}

func (s *Signal) request(deadline time.Time) {
	s.requestOnce.Do(func() {
		s.deadline = deadline
		close(s.requested)
		s.cancel()
	})
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithClock sets the clock used to enforce deadlines
func WithClock(clock clockwork.Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// Coordinator issues signals per component id and drives shutdown requests.
type Coordinator struct {
	mu      sync.Mutex
	signals map[string]*Signal
	clock   clockwork.Clock
	logger  *slog.Logger
}

// NewCoordinator creates an empty coordinator
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		signals: make(map[string]*Signal),
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Issue creates the signal for componentID. Each id can be issued once.
func (c *Coordinator) Issue(componentID string) (*Signal, error) {
	if componentID == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Coordinator", "Issue", "component id validation")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.signals[componentID]; exists {
		return nil, errors.WrapInvalid(
			fmt.Errorf("signal for %q already issued", componentID),
			"Coordinator", "Issue", "duplicate id check")
	}

	sig := newSignal(componentID)
	c.signals[componentID] = sig
	return sig, nil
}

// Shutdown requests shutdown of componentID and returns a channel that receives true if
// the component completes before deadline and false otherwise. Unknown ids resolve false.
// The first request fixes the deadline; later requests only observe the outcome.
func (c *Coordinator) Shutdown(componentID string, deadline time.Time) <-chan bool {
	result := make(chan bool, 1)

	c.mu.Lock()
	sig, ok := c.signals[componentID]
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("Shutdown requested for unknown component", "component", componentID)
		result <- false
		return result
	}

	sig.request(deadline)

	go func() {
		// Completion that already happened wins even against an expired deadline
		select {
		case <-sig.completed:
			result <- true
			return
		default:
		}

		timer := c.clock.NewTimer(deadline.Sub(c.clock.Now()))
		defer timer.Stop()

		select {
		case <-sig.completed:
			result <- true
		case <-timer.Chan():
			select {
			case <-sig.completed:
				result <- true
			default:
				c.logger.Error("Component did not shut down before deadline",
					"component", componentID, "deadline", deadline)
				result <- false
			}
		}
	}()

	return result
}

// ShutdownAll requests shutdown of every issued component with the same deadline. It
// reports true only if all of them completed in time.
func (c *Coordinator) ShutdownAll(deadline time.Time) bool {
	ok := true
	for _, done := range c.ShutdownMany(c.IDs(), deadline) {
		ok = ok && done
	}
	return ok
}

// ShutdownMany requests shutdown of the given components concurrently and waits for
// every outcome.
func (c *Coordinator) ShutdownMany(ids []string, deadline time.Time) map[string]bool {
	futures := make(map[string]<-chan bool, len(ids))
	for _, id := range ids {
		futures[id] = c.Shutdown(id, deadline)
	}

	results := make(map[string]bool, len(ids))
	for id, future := range futures {
		results[id] = <-future
	}
	return results
}

// IDs returns the issued component ids in sorted order
func (c *Coordinator) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.signals))
	for id := range c.signals {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
