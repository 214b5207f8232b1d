package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventKinds(t *testing.T) {
	var zero Event
	assert.Equal(t, KindLog, zero.Kind())
	assert.NotNil(t, zero.Log())

	logEvent := FromLog(NewLogMessage("hello"))
	assert.Equal(t, KindLog, logEvent.Kind())
	msg, ok := logEvent.Log().Get("message")
	require.True(t, ok)
	assert.Equal(t, "hello", msg)
	assert.Nil(t, logEvent.Metric())
	assert.Nil(t, logEvent.Trace())

	metricEvent := FromMetric(NewCounter("requests", 3))
	assert.Equal(t, KindMetric, metricEvent.Kind())
	assert.Nil(t, metricEvent.Log())
	assert.Equal(t, MetricIncremental, metricEvent.Metric().Kind)

	traceEvent := FromTrace(NewTrace(map[string]any{"span_id": "abc"}))
	assert.Equal(t, KindTrace, traceEvent.Kind())
	assert.Equal(t, "trace", traceEvent.Kind().String())
}

func TestFieldMap(t *testing.T) {
	l := NewLog(nil)
	l.Insert("a", 1)
	assert.False(t, l.TryInsert("a", 2))
	assert.True(t, l.TryInsert("b", 2))

	v, _ := l.Get("a")
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, l.Len())

	clone := l.Clone()
	clone.Insert("c", 3)
	assert.Equal(t, 2, l.Len())

	l.Remove("a")
	_, ok := l.Get("a")
	assert.False(t, ok)
}

func TestMetricTags(t *testing.T) {
	m := NewGauge("temperature", 21.5)
	_, ok := m.Tag("room")
	assert.False(t, ok)

	m.InsertTag("room", "kitchen")
	v, ok := m.Tag("room")
	assert.True(t, ok)
	assert.Equal(t, "kitchen", v)
}

func TestEnvelope(t *testing.T) {
	e, err := FromLog(NewLog(nil)).ToEnvelope().Event()
	require.NoError(t, err)
	assert.Equal(t, KindLog, e.Kind())

	e, err = FromMetric(NewCounter("hits", 1)).ToEnvelope().Event()
	require.NoError(t, err)
	assert.Equal(t, "hits", e.Metric().Name)

	_, err = Envelope{}.Event()
	assert.Error(t, err)

	fields := map[string]any{}
	_, err = Envelope{Log: &fields, Metric: NewCounter("x", 1)}.Event()
	assert.Error(t, err)
}

func TestBatchNotifier_WorstStatusWins(t *testing.T) {
	b := NewBatchNotifier()
	events := b.Attach([]Event{
		FromLog(NewLogMessage("one")),
		FromLog(NewLogMessage("two")),
		FromLog(NewLogMessage("three")),
	})

	events[0].Finalize(StatusDelivered)
	events[1].Finalize(StatusErrored)

	select {
	case <-b.Done():
		t.Fatal("notifier resolved before every event was finalized")
	default:
	}

	// a copy of an event shares its finalizer: the second call is a no-op
	copied := events[1]
	copied.Finalize(StatusRejected)

	events[2].Finalize(StatusDelivered)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	status, err := b.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusErrored, status)
}

func TestBatchNotifier_EmptyBatchResolves(t *testing.T) {
	b := NewBatchNotifier()
	b.Attach(nil)

	status, err := b.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, status)
}

func TestFinalizeWithoutNotifier(t *testing.T) {
	e := FromLog(NewLogMessage("fire and forget"))
	assert.False(t, e.HasFinalizer())
	assert.NotPanics(t, func() { e.Finalize(StatusRejected) })
}

func TestWaitRespectsContext(t *testing.T) {
	b := NewBatchNotifier()
	b.Attach([]Event{FromLog(nil)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
