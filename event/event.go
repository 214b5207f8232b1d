package event

import (
	"fmt"
	"maps"
	"time"
)

// Kind identifies which variant an Event holds
type Kind int

// Event kinds
const (
	KindLog Kind = iota
	KindMetric
	KindTrace
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindLog:
		return "log"
	case KindMetric:
		return "metric"
	case KindTrace:
		return "trace"
	default:
		return "unknown"
	}
}

// Event is a tagged union over Log, Metric and Trace. Exactly one variant is set; the
// zero Event is an empty Log. Events are passed by value; the variant payloads are shared.
type Event struct {
	log    *Log
	metric *Metric
	trace  *Trace
	fin    *finalizer
}

// FromLog wraps a Log in an Event
func FromLog(l *Log) Event {
	if l == nil {
		l = NewLog(nil)
	}
	return Event{log: l}
}

// FromMetric wraps a Metric in an Event
func FromMetric(m *Metric) Event {
	if m == nil {
		m = &Metric{}
	}
	return Event{metric: m}
}

// FromTrace wraps a Trace in an Event
func FromTrace(t *Trace) Event {
	if t == nil {
		t = NewTrace(nil)
	}
	return Event{trace: t}
}

// Kind reports which variant the event holds
func (e Event) Kind() Kind {
	switch {
	case e.metric != nil:
		return KindMetric
	case e.trace != nil:
		return KindTrace
	default:
		return KindLog
	}
}

// Log returns the log payload, or nil if the event is not a log
func (e Event) Log() *Log {
	if e.metric != nil || e.trace != nil {
		return nil
	}
	if e.log == nil {
		return NewLog(nil)
	}
	return e.log
}

// Metric returns the metric payload, or nil if the event is not a metric
func (e Event) Metric() *Metric { return e.metric }

// Trace returns the trace payload, or nil if the event is not a trace
func (e Event) Trace() *Trace { return e.trace }

// String implements fmt.Stringer for debugging output
func (e Event) String() string {
	switch e.Kind() {
	case KindMetric:
		return fmt.Sprintf("metric(%s=%v)", e.metric.Name, e.metric.Value)
	case KindTrace:
		return fmt.Sprintf("trace(%v)", e.trace.fields)
	default:
		return fmt.Sprintf("log(%v)", e.Log().fields)
	}
}

// fieldMap is the field storage shared by logs and traces
type fieldMap struct {
	fields map[string]any
}

func newFieldMap(fields map[string]any) fieldMap {
	if fields == nil {
		fields = make(map[string]any)
	}
	return fieldMap{fields: fields}
}

// Get returns the value stored under key
func (f *fieldMap) Get(key string) (any, bool) {
	v, ok := f.fields[key]
	return v, ok
}

// Insert stores value under key, replacing any existing value
func (f *fieldMap) Insert(key string, value any) {
	f.fields[key] = value
}

// TryInsert stores value under key only if key is absent. It reports whether it stored.
func (f *fieldMap) TryInsert(key string, value any) bool {
	if _, exists := f.fields[key]; exists {
		return false
	}
	f.fields[key] = value
	return true
}

// Remove deletes key
func (f *fieldMap) Remove(key string) {
	delete(f.fields, key)
}

// Len returns the number of top-level fields
func (f *fieldMap) Len() int {
	return len(f.fields)
}

// Fields returns the underlying field map. Callers must not retain it across goroutines.
func (f *fieldMap) Fields() map[string]any {
	return f.fields
}

// Log is a structured log record: a mapping of field name to value.
type Log struct {
	fieldMap
}

// NewLog creates a log owning fields
func NewLog(fields map[string]any) *Log {
	return &Log{fieldMap: newFieldMap(fields)}
}

// NewLogMessage creates a log with message stored under the default message key
func NewLogMessage(message string) *Log {
	l := NewLog(nil)
	l.Insert(DefaultLogSchema().MessageKey, message)
	return l
}

// Clone returns a shallow copy of the log
func (l *Log) Clone() *Log {
	return NewLog(maps.Clone(l.fields))
}

// Trace is a span or trace record held as a mapping of fields.
type Trace struct {
	fieldMap
}

// NewTrace creates a trace owning fields
func NewTrace(fields map[string]any) *Trace {
	return &Trace{fieldMap: newFieldMap(fields)}
}

// MetricKind tells whether a value is a delta or a point-in-time reading
type MetricKind string

// Metric kinds
const (
	MetricIncremental MetricKind = "incremental"
	MetricAbsolute    MetricKind = "absolute"
)

// MetricType is the shape of the metric value
type MetricType string

// Metric types
const (
	MetricCounter MetricType = "counter"
	MetricGauge   MetricType = "gauge"
)

// Metric carries a named numeric value and a set of string tags.
type Metric struct {
	Name      string            `json:"name" cbor:"name"`
	Namespace string            `json:"namespace,omitempty" cbor:"namespace,omitempty"`
	Kind      MetricKind        `json:"kind" cbor:"kind"`
	Type      MetricType        `json:"type" cbor:"type"`
	Value     float64           `json:"value" cbor:"value"`
	Tags      map[string]string `json:"tags,omitempty" cbor:"tags,omitempty"`
	Timestamp *time.Time        `json:"timestamp,omitempty" cbor:"timestamp,omitempty"`
}

// NewCounter creates an incremental counter metric
func NewCounter(name string, value float64) *Metric {
	return &Metric{Name: name, Kind: MetricIncremental, Type: MetricCounter, Value: value}
}

// NewGauge creates an absolute gauge metric
func NewGauge(name string, value float64) *Metric {
	return &Metric{Name: name, Kind: MetricAbsolute, Type: MetricGauge, Value: value}
}

// InsertTag sets a tag, replacing any existing value
func (m *Metric) InsertTag(key, value string) {
	if m.Tags == nil {
		m.Tags = make(map[string]string)
	}
	m.Tags[key] = value
}

// Tag returns the value of a tag
func (m *Metric) Tag(key string) (string, bool) {
	v, ok := m.Tags[key]
	return v, ok
}
