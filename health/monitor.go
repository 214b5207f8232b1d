package health

import (
	"sort"
	"sync"
	"time"
)

// Monitor tracks externally observed health, such as sink healthcheck results.
// It is safe for concurrent use.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
	}
}

// Update records the status of a named component
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[name] = status
}

// UpdateHealthy records a component as healthy
func (m *Monitor) UpdateHealthy(name, message string) {
	m.Update(name, NewHealthy(name, message))
}

// UpdateUnhealthy records a component as unhealthy. The message is sanitized.
func (m *Monitor) UpdateUnhealthy(name, message string) {
	m.Update(name, NewUnhealthy(name, sanitizeErrorMessage(message)))
}

// Get retrieves the health status for a named component
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, exists := m.statuses[name]
	return status, exists
}

// Remove removes a component from monitoring
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, name)
}

// Statuses returns the recorded statuses sorted by component name
func (m *Monitor) Statuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]Status, 0, len(m.statuses))
	for _, status := range m.statuses {
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Component < statuses[j].Component
	})
	return statuses
}

// AggregateHealth returns an aggregated health status of all recorded components
func (m *Monitor) AggregateHealth(systemName string) Status {
	return Aggregate(systemName, m.Statuses())
}
