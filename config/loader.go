package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/Tomwslape5638/vector/errors"
)

// EnvPrefix prefixes the environment variables read by the loader
const EnvPrefix = "VECTOR"

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:    []string{},
		envPrefix: EnvPrefix,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones key by key.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers over the defaults, then applies
// environment overrides
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", fmt.Sprintf("load %s", path))
		}
		merged = l.deepMergeMaps(merged, raw)
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "decode merged config")
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "environment overrides")
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Parse decodes a single document without touching the filesystem. The document is
// merged over the defaults like a file layer.
func Parse(data []byte, yamlSyntax bool) (*Config, error) {
	f := formatJSON
	if yamlSyntax {
		f = formatYAML
	}
	raw, err := decodeRaw(data, f)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "Parse", "decode document")
	}

	base, err := toMap(Default())
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Parse", "encode defaults")
	}

	l := NewLoader()
	cfg, err := fromMap(l.deepMergeMaps(base, raw))
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "Parse", "decode config")
	}
	return cfg, nil
}

// loadRaw loads one layer as a generic map
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	return decodeRaw(data, f)
}

func decodeRaw(data []byte, f format) (map[string]any, error) {
	var raw map[string]any

	switch f {
	case formatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
		}
		normalized, ok := normalizeYAML(raw).(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: document is not a mapping", errors.ErrInvalidConfig)
		}
		raw = normalized
		if err := validateValueDepth(raw, 0); err != nil {
			return nil, err
		}
	default:
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
		}
	}

	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// normalizeYAML turns mappings with non-string keys into map[string]any so the
// document can be re-encoded as JSON
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = normalizeYAML(child)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[fmt.Sprint(k)] = normalizeYAML(child)
		}
		return out
	case []any:
		for i, child := range t {
			t[i] = normalizeYAML(child)
		}
		return t
	default:
		return v
	}
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func (l *Loader) deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = l.deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}

	return result
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromMap(m map[string]any) (*Config, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the buffer settings
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	lookup := func(name string) (string, bool, error) {
		key := l.envPrefix + "_" + name
		val, ok := os.LookupEnv(key)
		if !ok || val == "" {
			return "", false, nil
		}
		if err := validateEnvVar(key, val); err != nil {
			return "", false, err
		}
		return val, true, nil
	}

	if val, ok, err := lookup("BUFFER_TYPE"); err != nil {
		return err
	} else if ok {
		cfg.Buffer.Type = val
	}

	if val, ok, err := lookup("BUFFER_MAX_EVENTS"); err != nil {
		return err
	} else if ok {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%w: %s_BUFFER_MAX_EVENTS: %v", errors.ErrInvalidConfig, l.envPrefix, err)
		}
		cfg.Buffer.MaxEvents = n
	}

	natsFields := []struct {
		name string
		dst  func(*NATSBufferConfig) *string
	}{
		{"NATS_URL", func(n *NATSBufferConfig) *string { return &n.URL }},
		{"NATS_USERNAME", func(n *NATSBufferConfig) *string { return &n.Username }},
		{"NATS_PASSWORD", func(n *NATSBufferConfig) *string { return &n.Password }},
		{"NATS_TOKEN", func(n *NATSBufferConfig) *string { return &n.Token }},
	}
	for _, field := range natsFields {
		val, ok, err := lookup(field.name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if cfg.Buffer.NATS == nil {
			cfg.Buffer.NATS = &NATSBufferConfig{}
		}
		*field.dst(cfg.Buffer.NATS) = val
	}

	return nil
}
