package component

import (
	"sort"
	"time"
)

// Discoverable defines the interface for components that can be inspected by the
// management layer: what they are, how they are configured, and how they are doing.
type Discoverable interface {
	// Meta returns basic component information
	Meta() Metadata

	// ConfigSchema returns the configuration schema for this component
	ConfigSchema() ConfigSchema

	// Health returns current health status
	Health() HealthStatus

	// DataFlow returns current data flow metrics
	DataFlow() FlowMetrics
}

// Metadata describes what a component is
type Metadata struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // registered type name, e.g. "http_scrape"
	Kind        Kind   `json:"kind"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// ConfigSchema describes the configuration parameters for a component
type ConfigSchema struct {
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required"`
}

// PropertySchema describes a single configuration property
type PropertySchema struct {
	Type        string   `json:"type"` // "string", "int", "bool", "float", "enum", "array", "object"
	Description string   `json:"description"`
	Default     any      `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Minimum     *int     `json:"minimum,omitempty"`
	Maximum     *int     `json:"maximum,omitempty"`
	Category    string   `json:"category,omitempty"` // "basic" or "advanced"
}

// HealthStatus describes the current health state of a component
type HealthStatus struct {
	Healthy    bool          `json:"healthy"`
	LastCheck  time.Time     `json:"last_check"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	Uptime     time.Duration `json:"uptime"`
}

// FlowMetrics describes the current data flow through a component
type FlowMetrics struct {
	EventsPerSecond float64   `json:"events_per_second"`
	BytesPerSecond  float64   `json:"bytes_per_second"`
	ErrorRate       float64   `json:"error_rate"`
	LastActivity    time.Time `json:"last_activity"`
}

// SortedKeys returns the property names of a schema in sorted order
func SortedKeys(properties map[string]PropertySchema) []string {
	names := make([]string, 0, len(properties))
	for name := range properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
