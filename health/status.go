// Package health reports the health of pipeline components. Statuses come from two places:
// the components themselves (component.Discoverable.Health) and the sink healthchecks run
// by the topology, which are recorded in a Monitor. Aggregate folds them into one system
// status and Handler serves that status as JSON.
package health

import (
	"regexp"
	"sort"
	"time"

	"github.com/Tomwslape5638/vector/component"
)

// Status values
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Status represents the health state of a component or system
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "unhealthy", "degraded"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains health-related metrics
type Metrics struct {
	Uptime       time.Duration `json:"uptime"`
	ErrorCount   int           `json:"error_count"`
	LastActivity time.Time     `json:"last_activity,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == StatusHealthy
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == StatusDegraded
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == StatusUnhealthy
}

// WithSubStatus adds a sub-status and returns a copy
func (s Status) WithSubStatus(subStatus Status) Status {
	subs := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(subs, s.SubStatuses)
	s.SubStatuses = append(subs, subStatus)
	return s
}

// Error messages of scrape and sink failures carry endpoints and credentials. They are
// masked before being exposed on the health endpoint.
var redactions = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)(password|token|secret|authorization|api[_-]?key)\s*[:=]\s*[^,\s}]+`), "[REDACTED]"},
	{regexp.MustCompile(`(?i)\b(https?|wss?|nats)://[^\s"']*[^\s"':,.]`), "[URL]"},
	{regexp.MustCompile(`\b\d{1,3}(\.\d{1,3}){3}(:\d{1,5})?\b`), "[ADDR]"},
	{regexp.MustCompile(`(^|\s)(/[\w.-]+)+`), "$1[PATH]"},
}

// sanitizeErrorMessage masks credentials, URLs, addresses and file paths
func sanitizeErrorMessage(msg string) string {
	for _, r := range redactions {
		msg = r.pattern.ReplaceAllString(msg, r.replacement)
	}
	return msg
}

// FromComponentHealth converts a component.HealthStatus to a Status
func FromComponentHealth(name string, ch component.HealthStatus) Status {
	status := NewUnhealthy(name, "Component unhealthy")
	if ch.Healthy {
		status = NewHealthy(name, "Component healthy")
	}
	if ch.LastError != "" {
		status.Message = sanitizeErrorMessage(ch.LastError)
	}

	status.Metrics = &Metrics{
		Uptime:       ch.Uptime,
		ErrorCount:   ch.ErrorCount,
		LastActivity: ch.LastCheck,
	}
	return status
}

// FromComponents collects the health of every component, sorted by name
func FromComponents(components map[string]component.Discoverable) []Status {
	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)

	statuses := make([]Status, 0, len(names))
	for _, name := range names {
		statuses = append(statuses, FromComponentHealth(name, components[name].Health()))
	}
	return statuses
}
