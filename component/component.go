package component

import (
	"context"

	"github.com/Tomwslape5638/vector/event"
	"github.com/Tomwslape5638/vector/shutdown"
)

// Kind distinguishes sources from sinks
type Kind string

// Component kinds
const (
	KindSource Kind = "source"
	KindSink   Kind = "sink"
)

// Source produces events until its shutdown signal fires.
//
// Run blocks. Sends on out honour backpressure: a full channel suspends the source, and
// the source stops sending as soon as the signal fires. Run calls sig.Complete before it
// returns. The returned error is non-nil only for failures that prevented the source from
// running at all.
type Source interface {
	Discoverable
	Run(sig *shutdown.Signal, out chan<- event.Event) error
}

// Sink consumes events until its shutdown signal fires or its input channel is closed.
//
// Every event received from in is finalized exactly once. Run calls sig.Complete before
// it returns.
type Sink interface {
	Discoverable
	Run(sig *shutdown.Signal, in <-chan event.Event) error

	// Healthcheck probes connectivity independently of the data path
	Healthcheck(ctx context.Context) error
}
