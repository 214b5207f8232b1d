package httpscrape

import (
	"encoding/json"

	"github.com/Tomwslape5638/vector/component"
	"github.com/Tomwslape5638/vector/errors"
)

const (
	description = "Scrapes HTTP endpoints on an interval and decodes the responses into events"
	version     = "1.0.0"
)

// CreateSource is the factory registered for the http_scrape type
func CreateSource(name string, rawConfig json.RawMessage, deps component.Dependencies) (component.Source, error) {
	cfg, err := decodeConfig(rawConfig)
	if err != nil {
		return nil, errors.Wrap(err, "httpscrape-factory", "create", "config parsing")
	}
	source, err := NewSource(name, cfg, deps)
	if err != nil {
		return nil, err
	}
	return source, nil
}

// Register registers the HTTP scrape source with the registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:          SourceType,
		Kind:          component.KindSource,
		Description:   description,
		Version:       version,
		Schema:        httpScrapeSchema,
		NewSource:     CreateSource,
		DefaultConfig: func() any { return DefaultConfig() },
	})
}
