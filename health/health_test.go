package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tomwslape5638/vector/component"
)

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name, input, expected string
	}{
		{"empty", "", ""},
		{"http url", "GET https://api.example.com/logs?x=1 failed", "GET [URL] failed"},
		{"ws url", "dial wss://10.0.0.5:9000/endpoint: refused", "dial [URL]: refused"},
		{"nats url", "cannot connect to nats://localhost:4222", "cannot connect to [URL]"},
		{"address", "dial tcp 192.168.1.100:8080: connection refused", "dial tcp [ADDR]: connection refused"},
		{"path", "open /etc/vector/ca.pem: no such file", "open [PATH]: no such file"},
		{"credential", "auth failed token=abc123, retrying", "auth failed [REDACTED], retrying"},
		{"plain", "pong not received before timeout", "pong not received before timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeErrorMessage(tt.input))
		})
	}
}

func TestAggregate(t *testing.T) {
	assert.True(t, Aggregate("vector", nil).IsHealthy())

	healthy := NewHealthy("a", "ok")
	degraded := NewDegraded("b", "slow")
	unhealthy := NewUnhealthy("c", "down")

	assert.True(t, Aggregate("vector", []Status{healthy}).IsHealthy())
	assert.True(t, Aggregate("vector", []Status{healthy, degraded}).IsDegraded())

	agg := Aggregate("vector", []Status{healthy, degraded, unhealthy})
	assert.True(t, agg.IsUnhealthy())
	assert.False(t, agg.Healthy)
	assert.Len(t, agg.SubStatuses, 3)
}

func TestWithSubStatusCopies(t *testing.T) {
	base := NewHealthy("root", "ok").WithSubStatus(NewHealthy("a", "ok"))
	one := base.WithSubStatus(NewHealthy("b", "ok"))
	two := base.WithSubStatus(NewUnhealthy("c", "down"))

	assert.Len(t, base.SubStatuses, 1)
	assert.Equal(t, "b", one.SubStatuses[1].Component)
	assert.Equal(t, "c", two.SubStatuses[1].Component)
}

type fakeComponent struct {
	health component.HealthStatus
}

func (f fakeComponent) Meta() component.Metadata             { return component.Metadata{} }
func (f fakeComponent) ConfigSchema() component.ConfigSchema { return component.ConfigSchema{} }
func (f fakeComponent) Health() component.HealthStatus       { return f.health }
func (f fakeComponent) DataFlow() component.FlowMetrics      { return component.FlowMetrics{} }

func TestFromComponents(t *testing.T) {
	statuses := FromComponents(map[string]component.Discoverable{
		"ws":     fakeComponent{component.HealthStatus{Healthy: false, ErrorCount: 2, LastError: "dial ws://127.0.0.1:9000/x: refused"}},
		"scrape": fakeComponent{component.HealthStatus{Healthy: true, Uptime: time.Minute}},
	})

	require.Len(t, statuses, 2)
	assert.Equal(t, "scrape", statuses[0].Component)
	assert.True(t, statuses[0].IsHealthy())
	assert.Equal(t, time.Minute, statuses[0].Metrics.Uptime)

	assert.Equal(t, "ws", statuses[1].Component)
	assert.True(t, statuses[1].IsUnhealthy())
	assert.Equal(t, "dial [URL]: refused", statuses[1].Message)
	assert.Equal(t, 2, statuses[1].Metrics.ErrorCount)
}

func TestMonitor(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("sink_b", "healthcheck passed")
	m.UpdateUnhealthy("sink_a", "dial tcp 10.1.1.1:80: refused")

	status, ok := m.Get("sink_a")
	require.True(t, ok)
	assert.Equal(t, "dial tcp [ADDR]: refused", status.Message)

	statuses := m.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "sink_a", statuses[0].Component)

	assert.True(t, m.AggregateHealth("vector").IsUnhealthy())

	m.Remove("sink_a")
	assert.True(t, m.AggregateHealth("vector").IsHealthy())
}

func TestHandler(t *testing.T) {
	status := NewHealthy("vector", "ok")
	h := Handler(func() Status { return status })

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var decoded Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, "vector", decoded.Component)

	status = NewUnhealthy("vector", "down")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	status = NewDegraded("vector", "slow")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
