package component

import (
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/Tomwslape5638/vector/errors"
)

// SourceFactory creates a source from its raw JSON configuration. Factories parse and
// validate their own config and perform no I/O.
type SourceFactory func(name string, rawConfig json.RawMessage, deps Dependencies) (Source, error)

// SinkFactory creates a sink from its raw JSON configuration. Factories parse and
// validate their own config and perform no I/O.
type SinkFactory func(name string, rawConfig json.RawMessage, deps Dependencies) (Sink, error)

// Registration holds the factory and metadata for a component type
type Registration struct {
	Name        string       `json:"name"` // Type name (e.g., "http_scrape")
	Kind        Kind         `json:"kind"`
	Description string       `json:"description"`
	Version     string       `json:"version"`
	Schema      ConfigSchema `json:"schema"`

	NewSource SourceFactory `json:"-"` // Set for sources
	NewSink   SinkFactory   `json:"-"` // Set for sinks

	// DefaultConfig returns the configuration printed by "vector generate"
	DefaultConfig func() any `json:"-"`
}

// RegistrationConfig provides a clean API for component registration.
// It maps 1:1 to Registration struct fields.
type RegistrationConfig struct {
	Name          string
	Kind          Kind
	Description   string
	Version       string
	Schema        ConfigSchema
	NewSource     SourceFactory
	NewSink       SinkFactory
	DefaultConfig func() any
}

// Registry manages component factories and the instances built from them.
// It is safe for concurrent use.
type Registry struct {
	factories map[string]*Registration
	instances map[string]Discoverable
	mu        sync.RWMutex
}

// NewRegistry creates a new empty component registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]*Registration),
		instances: make(map[string]Discoverable),
	}
}

// RegisterFactory registers a component factory under name.
// Returns an error if a factory with the same name is already registered.
func (r *Registry) RegisterFactory(name string, registration *Registration) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "factory name validation")
	}
	if registration == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "registration validation")
	}

	switch registration.Kind {
	case KindSource:
		if registration.NewSource == nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "source factory validation")
		}
	case KindSink:
		if registration.NewSink == nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "sink factory validation")
		}
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: kind %q", errors.ErrInvalidConfig, registration.Kind),
			"Registry", "RegisterFactory", "component kind validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		msg := fmt.Errorf("factory '%s' is already registered", name)
		return errors.WrapInvalid(msg, "Registry", "RegisterFactory", "duplicate factory check")
	}

	r.factories[name] = registration
	return nil
}

// RegisterWithConfig registers a component using a configuration struct.
//
// Example usage:
//
//	registry.RegisterWithConfig(component.RegistrationConfig{
//	    Name:        "http_scrape",
//	    Kind:        component.KindSource,
//	    NewSource:   httpscrape.NewSource,
//	    Schema:      httpscrape.Schema,
//	    Description: "Polls HTTP endpoints and decodes the responses into events",
//	    Version:     "1.0.0",
//	})
func (r *Registry) RegisterWithConfig(config RegistrationConfig) error {
	return r.RegisterFactory(config.Name, &Registration{
		Name:          config.Name,
		Kind:          config.Kind,
		Description:   config.Description,
		Version:       config.Version,
		Schema:        config.Schema,
		NewSource:     config.NewSource,
		NewSink:       config.NewSink,
		DefaultConfig: config.DefaultConfig,
	})
}

func (r *Registry) lookup(typeName string, kind Kind, method string) (*Registration, error) {
	r.mu.RLock()
	registration, exists := r.factories[typeName]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownType, typeName), "Registry", method, "factory lookup")
	}
	if registration.Kind != kind {
		return nil, errors.WrapInvalid(
			fmt.Errorf("component type %q is a %s, not a %s", typeName, registration.Kind, kind),
			"Registry", method, "kind validation")
	}
	return registration, nil
}

// BuildSource creates and registers a source instance named instanceName.
func (r *Registry) BuildSource(
	typeName, instanceName string, rawConfig json.RawMessage, deps Dependencies,
) (Source, error) {
	if err := ValidateComponentName(instanceName); err != nil {
		return nil, errors.Wrap(err, "Registry", "BuildSource", "instance name validation")
	}
	if err := ValidateFactoryConfig(rawConfig); err != nil {
		return nil, errors.Wrap(err, "Registry", "BuildSource", "config validation")
	}

	registration, err := r.lookup(typeName, KindSource, "BuildSource")
	if err != nil {
		return nil, err
	}

	source, err := registration.NewSource(instanceName, rawConfig, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "BuildSource", "factory execution")
	}

	if err := r.RegisterInstance(instanceName, source); err != nil {
		return nil, errors.Wrap(err, "Registry", "BuildSource", "instance registration")
	}
	return source, nil
}

// BuildSink creates and registers a sink instance named instanceName.
func (r *Registry) BuildSink(
	typeName, instanceName string, rawConfig json.RawMessage, deps Dependencies,
) (Sink, error) {
	if err := ValidateComponentName(instanceName); err != nil {
		return nil, errors.Wrap(err, "Registry", "BuildSink", "instance name validation")
	}
	if err := ValidateFactoryConfig(rawConfig); err != nil {
		return nil, errors.Wrap(err, "Registry", "BuildSink", "config validation")
	}

	registration, err := r.lookup(typeName, KindSink, "BuildSink")
	if err != nil {
		return nil, err
	}

	sink, err := registration.NewSink(instanceName, rawConfig, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "BuildSink", "factory execution")
	}

	if err := r.RegisterInstance(instanceName, sink); err != nil {
		return nil, errors.Wrap(err, "Registry", "BuildSink", "instance registration")
	}
	return sink, nil
}

// RegisterInstance registers a component instance with the given name so it can be
// discovered. Returns an error if the name is taken.
func (r *Registry) RegisterInstance(name string, component Discoverable) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterInstance", "instance name validation")
	}
	if component == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterInstance", "component validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[name]; exists {
		msg := fmt.Errorf("instance '%s' is already registered", name)
		return errors.WrapInvalid(msg, "Registry", "RegisterInstance", "duplicate instance check")
	}

	r.instances[name] = component
	return nil
}

// UnregisterInstance removes a component instance from the registry
func (r *Registry) UnregisterInstance(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, name)
}

// ListComponents returns all registered component instances
func (r *Registry) ListComponents() map[string]Discoverable {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Return a copy to prevent external modification
	result := make(map[string]Discoverable, len(r.instances))
	maps.Copy(result, r.instances)
	return result
}

// Component retrieves a component instance by name. Returns nil if not found.
func (r *Registry) Component(name string) Discoverable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instances[name]
}

// GetComponentSchema returns the schema registered for a component type
func (r *Registry) GetComponentSchema(typeName string) (ConfigSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	registration, exists := r.factories[typeName]
	if !exists {
		return ConfigSchema{}, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownType, typeName),
			"Registry", "GetComponentSchema", "type lookup")
	}
	return registration.Schema, nil
}

// DefaultConfig returns the default configuration of a component type
func (r *Registry) DefaultConfig(typeName string) (any, error) {
	r.mu.RLock()
	registration, exists := r.factories[typeName]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownType, typeName),
			"Registry", "DefaultConfig", "type lookup")
	}
	if registration.DefaultConfig == nil {
		return map[string]any{}, nil
	}
	return registration.DefaultConfig(), nil
}

// Kind returns the kind of a registered component type
func (r *Registry) Kind(typeName string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	registration, exists := r.factories[typeName]
	if !exists {
		return "", false
	}
	return registration.Kind, true
}

// ListComponentTypes returns all registered component type names in sorted order
func (r *Registry) ListComponentTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListFactories returns copies of all registrations without their factory functions
func (r *Registry) ListFactories() map[string]*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*Registration, len(r.factories))
	for name, registration := range r.factories {
		result[name] = &Registration{
			Name:        registration.Name,
			Kind:        registration.Kind,
			Description: registration.Description,
			Version:     registration.Version,
			Schema:      registration.Schema,
		}
	}
	return result
}

// ValidateComponentName validates component instance names. Names double as metric
// labels and NATS subject tokens, so only alphanumerics, dash and underscore are allowed.
func ValidateComponentName(name string) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ConfigValidator", "ValidateComponentName", "empty name")
	}
	if len(name) > MaxNameLength {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ConfigValidator", "ValidateComponentName", "name too long")
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_') {
			return errors.WrapInvalid(
				fmt.Errorf("%w: invalid character %q in name %q", errors.ErrInvalidConfig, r, name),
				"ConfigValidator", "ValidateComponentName", "invalid name characters")
		}
	}
	return nil
}
