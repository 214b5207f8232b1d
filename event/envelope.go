package event

import (
	"fmt"

	"github.com/Tomwslape5638/vector/errors"
)

// Envelope is the self-describing wire form of an Event used by the native codecs:
// exactly one of the fields is set. Field maps are held by pointer so that an empty
// log still encodes as {"log":{}}.
type Envelope struct {
	Log    *map[string]any `json:"log,omitempty" cbor:"log,omitempty"`
	Metric *Metric         `json:"metric,omitempty" cbor:"metric,omitempty"`
	Trace  *map[string]any `json:"trace,omitempty" cbor:"trace,omitempty"`
}

// ToEnvelope converts an event to its wire form
func (e Event) ToEnvelope() Envelope {
	switch e.Kind() {
	case KindMetric:
		return Envelope{Metric: e.metric}
	case KindTrace:
		return Envelope{Trace: &e.trace.fields}
	default:
		return Envelope{Log: &e.Log().fields}
	}
}

// Event converts the wire form back into an event
func (env Envelope) Event() (Event, error) {
	set := 0
	for _, present := range []bool{env.Log != nil, env.Metric != nil, env.Trace != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return Event{}, errors.WrapInvalid(
			fmt.Errorf("%w: envelope must hold exactly one of log, metric, trace (got %d)", errors.ErrInvalidData, set),
			"Envelope", "Event", "variant check")
	}

	switch {
	case env.Metric != nil:
		return FromMetric(env.Metric), nil
	case env.Trace != nil:
		return FromTrace(NewTrace(*env.Trace)), nil
	default:
		return FromLog(NewLog(*env.Log)), nil
	}
}
