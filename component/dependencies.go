package component

import (
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/Tomwslape5638/vector/event"
	"github.com/Tomwslape5638/vector/metric"
)

// Dependencies provides the external dependencies shared by all components.
type Dependencies struct {
	MetricsRegistry *metric.MetricsRegistry // Metrics registry for Prometheus (can be nil)
	Logger          *slog.Logger            // Structured logger (can be nil, defaults to slog.Default())
	Clock           clockwork.Clock         // Clock for tickers and timers (can be nil, defaults to the real clock)
	LogSchema       *event.LogSchema        // Field names used when enriching logs (can be nil)
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger configured with component context
func (d *Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	return d.GetLogger().With("component", componentName)
}

// GetClock returns the configured clock or the real clock
func (d *Dependencies) GetClock() clockwork.Clock {
	if d.Clock != nil {
		return d.Clock
	}
	return clockwork.NewRealClock()
}

// GetLogSchema returns the configured log schema or the default one
func (d *Dependencies) GetLogSchema() event.LogSchema {
	if d.LogSchema != nil {
		return *d.LogSchema
	}
	return event.DefaultLogSchema()
}
