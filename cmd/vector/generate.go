package main

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/Tomwslape5638/vector/component"
	"github.com/Tomwslape5638/vector/config"
)

// generate writes a pipeline holding one instance of each requested type, named after the
// type and configured with its defaults. Every generated sink reads every generated source.
func generate(w io.Writer, registry *component.Registry, types []string) error {
	sources := map[string]any{}
	sinks := map[string]any{}
	var sourceNames []string

	for _, typeName := range types {
		kind, ok := registry.Kind(typeName)
		if !ok {
			return fmt.Errorf("unknown component type %q (available: %v)", typeName, registry.ListComponentTypes())
		}
		defaults, err := registry.DefaultConfig(typeName)
		if err != nil {
			return fmt.Errorf("default config for %s: %w", typeName, err)
		}

		instance := map[string]any{"type": typeName}
		if defaults != nil {
			instance["config"] = defaults
		}

		switch kind {
		case component.KindSource:
			if _, dup := sources[typeName]; dup {
				return fmt.Errorf("component type %s given twice", typeName)
			}
			sources[typeName] = instance
			sourceNames = append(sourceNames, typeName)
		case component.KindSink:
			if _, dup := sinks[typeName]; dup {
				return fmt.Errorf("component type %s given twice", typeName)
			}
			sinks[typeName] = instance
		}
	}

	for _, sink := range sinks {
		sink.(map[string]any)["inputs"] = sourceNames
	}

	doc := map[string]any{
		"sources": sources,
		"sinks":   sinks,
		"buffer": map[string]any{
			"type":       config.BufferMemory,
			"max_events": config.DefaultMaxEvents,
		},
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode generated config: %w", err)
	}
	return enc.Close()
}
