package event

import (
	"context"
	"sync"
)

// EventStatus is the delivery outcome reported for an event
type EventStatus int

// Delivery outcomes, ordered from best to worst
const (
	StatusDelivered EventStatus = iota
	StatusErrored
	StatusRejected
)

// String returns the string representation of EventStatus
func (s EventStatus) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusErrored:
		return "errored"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// BatchNotifier collects the outcomes of a group of events and resolves once every one
// of them has been finalized. The resolved status is the worst status reported.
type BatchNotifier struct {
	mu      sync.Mutex
	pending int
	status  EventStatus
	done    chan struct{}
}

// NewBatchNotifier creates an empty notifier
func NewBatchNotifier() *BatchNotifier {
	return &BatchNotifier{done: make(chan struct{})}
}

// Attach registers every event with the notifier and returns the events carrying it.
// All events of a batch must be attached before any of them is sent. Attaching an empty
// batch resolves the notifier immediately as delivered.
func (b *BatchNotifier) Attach(events []Event) []Event {
	b.mu.Lock()
	b.pending += len(events)
	empty := b.pending == 0
	b.mu.Unlock()

	for i := range events {
		events[i].fin = &finalizer{notifier: b}
	}
	if empty {
		b.resolve()
	}
	return events
}

func (b *BatchNotifier) update(status EventStatus) {
	b.mu.Lock()
	if status > b.status {
		b.status = status
	}
	b.pending--
	last := b.pending == 0
	b.mu.Unlock()

	if last {
		b.resolve()
	}
}

func (b *BatchNotifier) resolve() {
	select {
	case <-b.done:
	default:
		close(b.done)
	}
}

// Done is closed once every attached event has been finalized
func (b *BatchNotifier) Done() <-chan struct{} {
	return b.done
}

// Status returns the worst status seen so far
func (b *BatchNotifier) Status() EventStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Wait blocks until the batch resolves or ctx ends
func (b *BatchNotifier) Wait(ctx context.Context) (EventStatus, error) {
	select {
	case <-b.done:
		return b.Status(), nil
	case <-ctx.Done():
		return b.Status(), ctx.Err()
	}
}

type finalizer struct {
	once     sync.Once
	notifier *BatchNotifier
}

// Finalize reports the delivery outcome of the event. Only the first call has an effect;
// events without a notifier ignore it.
func (e Event) Finalize(status EventStatus) {
	if e.fin == nil {
		return
	}
	e.fin.once.Do(func() {
		e.fin.notifier.update(status)
	})
}

// HasFinalizer reports whether someone is waiting on the outcome of this event
func (e Event) HasFinalizer() bool {
	return e.fin != nil
}

// FinalizeAll reports the same status for every event
func FinalizeAll(events []Event, status EventStatus) {
	for _, e := range events {
		e.Finalize(status)
	}
}
