package websocket

import (
	"encoding/json"

	"github.com/Tomwslape5638/vector/component"
	"github.com/Tomwslape5638/vector/errors"
)

const (
	description = "Writes events to a persistent outbound WebSocket connection"
	version     = "1.0.0"
)

// CreateSink is the factory registered for the websocket type
func CreateSink(name string, rawConfig json.RawMessage, deps component.Dependencies) (component.Sink, error) {
	cfg, err := decodeConfig(rawConfig)
	if err != nil {
		return nil, errors.Wrap(err, "websocket-factory", "create", "config parsing")
	}
	sink, err := NewSink(name, cfg, deps)
	if err != nil {
		return nil, err
	}
	return sink, nil
}

// Register registers the WebSocket sink with the registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:          SinkType,
		Kind:          component.KindSink,
		Description:   description,
		Version:       version,
		Schema:        websocketSchema,
		NewSink:       CreateSink,
		DefaultConfig: func() any { return DefaultConfig() },
	})
}
