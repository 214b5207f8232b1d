// Package componentregistry registers every built-in source and sink type.
package componentregistry

import (
	"errors"

	"github.com/Tomwslape5638/vector/component"
	pkgerrors "github.com/Tomwslape5638/vector/errors"
	"github.com/Tomwslape5638/vector/input/httpscrape"
	"github.com/Tomwslape5638/vector/output/websocket"
)

// Register registers the built-in components with the provided registry:
//
//   - http_scrape source (interval HTTP polling)
//   - websocket sink (persistent outbound connection)
func Register(registry *component.Registry) error {
	// Nil registry is a programming error (fatal), not invalid input
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	if err := httpscrape.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "HTTP scrape source registration")
	}

	if err := websocket.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "WebSocket sink registration")
	}

	return nil
}
