package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/Tomwslape5638/vector/component"
	"github.com/Tomwslape5638/vector/errors"
	"github.com/Tomwslape5638/vector/pkg/security"
)

// Buffer types
const (
	BufferMemory = "memory"
	BufferNATS   = "nats"
)

// Defaults
const (
	DefaultMaxEvents       = 500
	DefaultSubjectPrefix   = "vector.events"
	DefaultShutdownTimeout = 60
	DefaultHealthcheckSecs = 10
)

// ComponentConfig is one source or sink instance. The map key it is stored under is the
// instance name; Type selects the registered factory.
type ComponentConfig struct {
	Type    string          `json:"type" yaml:"type"`
	Enabled *bool           `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Config  json.RawMessage `json:"config,omitempty" yaml:"config,omitempty"`
}

// IsEnabled reports whether the component should be built. Components are enabled unless
// switched off explicitly.
func (c ComponentConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Validate ensures the component configuration is valid
func (c ComponentConfig) Validate() error {
	if c.Type == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "ComponentConfig", "Validate",
			"component type cannot be empty")
	}
	return nil
}

// SinkConfig is a sink instance together with the sources it reads from
type SinkConfig struct {
	ComponentConfig `yaml:",inline"`
	Inputs          []string          `json:"inputs" yaml:"inputs"`
	Healthcheck     HealthcheckConfig `json:"healthcheck,omitempty" yaml:"healthcheck,omitempty"`
}

// HealthcheckConfig controls the startup healthcheck of one sink
type HealthcheckConfig struct {
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the healthcheck runs; it does unless switched off
func (h HealthcheckConfig) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// BufferConfig selects how events travel from sources to sinks
type BufferConfig struct {
	Type      string            `json:"type" yaml:"type"`
	MaxEvents int               `json:"max_events,omitempty" yaml:"max_events,omitempty"`
	NATS      *NATSBufferConfig `json:"nats,omitempty" yaml:"nats,omitempty"`
}

// NATSBufferConfig carries events through NATS subjects named <subject_prefix>.<source>
type NATSBufferConfig struct {
	URL           string                    `json:"url" yaml:"url"`
	SubjectPrefix string                    `json:"subject_prefix,omitempty" yaml:"subject_prefix,omitempty"`
	Name          string                    `json:"name,omitempty" yaml:"name,omitempty"`
	Username      string                    `json:"username,omitempty" yaml:"username,omitempty"`
	Password      string                    `json:"password,omitempty" yaml:"password,omitempty"`
	Token         string                    `json:"token,omitempty" yaml:"token,omitempty"`
	TLS           *security.ClientTLSConfig `json:"tls,omitempty" yaml:"tls,omitempty"`

	// Connection tuning; zero keeps the client defaults
	ReconnectWaitSecs int `json:"reconnect_wait_secs,omitempty" yaml:"reconnect_wait_secs,omitempty"`
	PingIntervalSecs  int `json:"ping_interval_secs,omitempty" yaml:"ping_interval_secs,omitempty"`
	DrainTimeoutSecs  int `json:"drain_timeout_secs,omitempty" yaml:"drain_timeout_secs,omitempty"`
}

// HealthConfig controls startup healthchecks
type HealthConfig struct {
	// RequireHealthy makes a failed sink healthcheck abort startup
	RequireHealthy bool `json:"require_healthy,omitempty" yaml:"require_healthy,omitempty"`
	TimeoutSecs    int  `json:"timeout_secs,omitempty" yaml:"timeout_secs,omitempty"`
}

// Timeout returns the healthcheck timeout
func (h HealthConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSecs) * time.Second
}

// ShutdownConfig bounds graceful shutdown
type ShutdownConfig struct {
	TimeoutSecs int `json:"timeout_secs,omitempty" yaml:"timeout_secs,omitempty"`
}

// Timeout returns the shutdown grace period
func (s ShutdownConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSecs) * time.Second
}

// Config is a complete pipeline: sources, sinks and the buffer between them
type Config struct {
	Sources  map[string]ComponentConfig `json:"sources" yaml:"sources"`
	Sinks    map[string]SinkConfig      `json:"sinks" yaml:"sinks"`
	Buffer   BufferConfig               `json:"buffer" yaml:"buffer"`
	Health   HealthConfig               `json:"health" yaml:"health"`
	Shutdown ShutdownConfig             `json:"shutdown" yaml:"shutdown"`
}

// Default returns a pipeline with no components and default settings
func Default() *Config {
	return &Config{
		Sources: map[string]ComponentConfig{},
		Sinks:   map[string]SinkConfig{},
		Buffer: BufferConfig{
			Type:      BufferMemory,
			MaxEvents: DefaultMaxEvents,
		},
		Health:   HealthConfig{TimeoutSecs: DefaultHealthcheckSecs},
		Shutdown: ShutdownConfig{TimeoutSecs: DefaultShutdownTimeout},
	}
}

// Validate checks the structure of the pipeline: names, references between sinks and
// sources, and the buffer. Component types are checked by ValidateTypes.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "at least one source is required")
	}
	if len(c.Sinks) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "at least one sink is required")
	}

	for _, name := range sortedKeys(c.Sources) {
		if err := validateInstance(name, c.Sources[name]); err != nil {
			return err
		}
	}

	for _, name := range sortedKeys(c.Sinks) {
		sink := c.Sinks[name]
		if _, clash := c.Sources[name]; clash {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %q names both a source and a sink", errors.ErrInvalidConfig, name),
				"Config", "Validate", "unique names")
		}
		if err := validateInstance(name, sink.ComponentConfig); err != nil {
			return err
		}
		if !sink.IsEnabled() {
			continue
		}
		if len(sink.Inputs) == 0 {
			return errors.WrapInvalid(
				fmt.Errorf("%w: sink %q has no inputs", errors.ErrMissingConfig, name),
				"Config", "Validate", "sink inputs")
		}
		for _, input := range sink.Inputs {
			src, ok := c.Sources[input]
			if !ok {
				return errors.WrapInvalid(
					fmt.Errorf("%w: sink %q reads from unknown source %q", errors.ErrInvalidConfig, name, input),
					"Config", "Validate", "sink inputs")
			}
			if !src.IsEnabled() {
				return errors.WrapInvalid(
					fmt.Errorf("%w: sink %q reads from disabled source %q", errors.ErrInvalidConfig, name, input),
					"Config", "Validate", "sink inputs")
			}
		}
	}

	if c.Health.TimeoutSecs < 0 || c.Shutdown.TimeoutSecs < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "timeouts cannot be negative")
	}

	return c.Buffer.Validate()
}

func validateInstance(name string, cfg ComponentConfig) error {
	if err := component.ValidateComponentName(name); err != nil {
		return errors.Wrap(err, "Config", "Validate", fmt.Sprintf("component name %q", name))
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "Config", "Validate", fmt.Sprintf("component %s", name))
	}
	return nil
}

// Validate checks the buffer settings. MaxEvents bounds every channel of the topology, for both buffer types.
func (b BufferConfig) Validate() error {
	if b.MaxEvents < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "BufferConfig", "Validate",
			"buffer max_events must be at least 1")
	}

	switch b.Type {
	case BufferMemory:
	case BufferNATS:
		if b.NATS == nil || b.NATS.URL == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "BufferConfig", "Validate", "nats buffer url is required")
		}
		u, err := url.Parse(b.NATS.URL)
		if err != nil || u.Host == "" {
			return errors.WrapInvalid(
				fmt.Errorf("%w: invalid nats url %q", errors.ErrInvalidConfig, b.NATS.URL),
				"BufferConfig", "Validate", "nats url")
		}
		if b.NATS.ReconnectWaitSecs < 0 || b.NATS.PingIntervalSecs < 0 || b.NATS.DrainTimeoutSecs < 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "BufferConfig", "Validate",
				"nats timings cannot be negative")
		}
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown buffer type %q", errors.ErrInvalidConfig, b.Type),
			"BufferConfig", "Validate", "buffer type")
	}
	return nil
}

// Subject returns the subject carrying the events of source
func (n *NATSBufferConfig) Subject(source string) string {
	prefix := DefaultSubjectPrefix
	if n != nil && n.SubjectPrefix != "" {
		prefix = n.SubjectPrefix
	}
	return prefix + "." + source
}

// ValidateTypes checks that every enabled component names a factory of the right kind
func (c *Config) ValidateTypes(registry *component.Registry) error {
	check := func(name, typeName string, want component.Kind) error {
		kind, ok := registry.Kind(typeName)
		if !ok {
			return errors.WrapInvalid(
				fmt.Errorf("%w: component %q has unknown type %q", errors.ErrUnknownType, name, typeName),
				"Config", "ValidateTypes", "factory lookup")
		}
		if kind != want {
			return errors.WrapInvalid(
				fmt.Errorf("%w: component %q of type %q is a %s, not a %s",
					errors.ErrInvalidConfig, name, typeName, kind, want),
				"Config", "ValidateTypes", "factory kind")
		}
		return nil
	}

	for _, name := range sortedKeys(c.Sources) {
		if src := c.Sources[name]; src.IsEnabled() {
			if err := check(name, src.Type, component.KindSource); err != nil {
				return err
			}
		}
	}
	for _, name := range sortedKeys(c.Sinks) {
		if sink := c.Sinks[name]; sink.IsEnabled() {
			if err := check(name, sink.Type, component.KindSink); err != nil {
				return err
			}
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
