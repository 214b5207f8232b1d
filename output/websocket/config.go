package websocket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"time"

	"github.com/Tomwslape5638/vector/codec"
	"github.com/Tomwslape5638/vector/component"
	"github.com/Tomwslape5638/vector/errors"
	"github.com/Tomwslape5638/vector/pkg/retry"
	"github.com/Tomwslape5638/vector/pkg/security"
)

// Defaults
const (
	DefaultURI              = "ws://127.0.0.1:9000/endpoint"
	DefaultWriteTimeout     = 10
	DefaultHandshakeTimeout = 30
	DefaultInitialDelayMs   = 500
	DefaultMaxDelayMs       = 60_000
)

// Config holds configuration for the WebSocket sink
type Config struct {
	URI string `json:"uri" yaml:"uri" schema:"type:string,description:WebSocket URI to connect to (ws or wss),required:true,category:basic"`

	TLS  *security.ClientTLSConfig `json:"tls,omitempty" yaml:"tls,omitempty" schema:"type:object,description:TLS trust and client certificate settings,category:security"`
	Auth *security.AuthConfig      `json:"auth,omitempty" yaml:"auth,omitempty" schema:"type:object,description:Basic or bearer credentials sent with the handshake,category:security"`

	Encoding codec.SerializerConfig `json:"encoding" yaml:"encoding" schema:"type:object,description:Serializer for outgoing messages,category:basic"`

	// Keepalive is disabled when PingInterval is nil. Without PingTimeout pings are sent
	// but a silent peer is never declared dead.
	PingInterval *int `json:"ping_interval,omitempty" yaml:"ping_interval,omitempty" schema:"type:int,description:Seconds between pings,min:1,category:advanced"`
	PingTimeout  *int `json:"ping_timeout,omitempty" yaml:"ping_timeout,omitempty" schema:"type:int,description:Seconds to wait for a pong before reconnecting,min:1,category:advanced"`

	Acknowledgements AcknowledgementsConfig `json:"acknowledgements,omitempty" yaml:"acknowledgements,omitempty" schema:"type:object,description:End-to-end delivery acknowledgements,category:advanced"`

	WriteTimeoutSecs     int             `json:"write_timeout_secs,omitempty" yaml:"write_timeout_secs,omitempty" schema:"type:int,description:Deadline for a single write,min:1,default:10,category:advanced"`
	HandshakeTimeoutSecs int             `json:"handshake_timeout_secs,omitempty" yaml:"handshake_timeout_secs,omitempty" schema:"type:int,description:Deadline for the opening handshake,min:1,default:30,category:advanced"`
	Reconnect            ReconnectConfig `json:"reconnect,omitempty" yaml:"reconnect,omitempty" schema:"type:object,description:Delay between reconnect attempts,category:advanced"`
}

// AcknowledgementsConfig accepts either a bare boolean or {"enabled": bool}
type AcknowledgementsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// UnmarshalJSON implements json.Unmarshaler
func (a *AcknowledgementsConfig) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("true")) || bytes.Equal(data, []byte("false")) {
		a.Enabled = data[0] == 't'
		return nil
	}
	type plain AcknowledgementsConfig
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = AcknowledgementsConfig(p)
	return nil
}

// ReconnectConfig bounds the delay between reconnect attempts
type ReconnectConfig struct {
	InitialDelayMs int `json:"initial_delay_ms,omitempty" yaml:"initial_delay_ms,omitempty"`
	MaxDelayMs     int `json:"max_delay_ms,omitempty" yaml:"max_delay_ms,omitempty"`
}

func (r ReconnectConfig) retryConfig() retry.Config {
	cfg := retry.Reconnect()
	if r.InitialDelayMs > 0 {
		cfg.InitialDelay = time.Duration(r.InitialDelayMs) * time.Millisecond
	}
	if r.MaxDelayMs > 0 {
		cfg.MaxDelay = time.Duration(r.MaxDelayMs) * time.Millisecond
	}
	return cfg
}

// DefaultConfig returns the default configuration for the WebSocket sink
func DefaultConfig() Config {
	return Config{
		URI:                  DefaultURI,
		Encoding:             codec.SerializerConfig{Codec: codec.SerializerJSON},
		WriteTimeoutSecs:     DefaultWriteTimeout,
		HandshakeTimeoutSecs: DefaultHandshakeTimeout,
		Reconnect: ReconnectConfig{
			InitialDelayMs: DefaultInitialDelayMs,
			MaxDelayMs:     DefaultMaxDelayMs,
		},
	}
}

// decodeConfig parses a raw configuration over the defaults. The URI must be given.
func decodeConfig(rawConfig []byte) (Config, error) {
	cfg := DefaultConfig()
	cfg.URI = ""
	if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration without touching the network
func (c Config) Validate() error {
	if c.URI == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "uri is required")
	}
	if _, err := parseURI(c.URI); err != nil {
		return err
	}
	if err := c.Encoding.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if c.PingInterval != nil && *c.PingInterval < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "ping_interval must be at least 1")
	}
	if c.PingTimeout != nil && *c.PingTimeout < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "ping_timeout must be at least 1")
	}
	if c.WriteTimeoutSecs < 0 || c.HandshakeTimeoutSecs < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "timeouts cannot be negative")
	}
	if c.Reconnect.InitialDelayMs < 0 || c.Reconnect.MaxDelayMs < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "reconnect delays cannot be negative")
	}
	if c.Reconnect.MaxDelayMs > 0 && c.Reconnect.MaxDelayMs < c.Reconnect.InitialDelayMs {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"reconnect max_delay_ms must not be below initial_delay_ms")
	}
	return nil
}

func parseURI(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Validate", "parse uri")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: uri scheme must be ws or wss, got %q", errors.ErrInvalidConfig, u.Scheme),
			"Config", "Validate", "check uri scheme")
	}
	if u.Host == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: uri %q has no host", errors.ErrInvalidConfig, raw), "Config", "Validate", "check uri host")
	}
	return u, nil
}

func seconds(v *int) time.Duration {
	if v == nil {
		return 0
	}
	return time.Duration(*v) * time.Second
}

var websocketSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))
