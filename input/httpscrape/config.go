package httpscrape

import (
	"fmt"
	"net/url"
	"reflect"
	"time"

	"github.com/Tomwslape5638/vector/codec"
	"github.com/Tomwslape5638/vector/component"
	"github.com/Tomwslape5638/vector/errors"
	"github.com/Tomwslape5638/vector/pkg/security"
)

// Defaults
const (
	DefaultEndpoint       = "http://localhost:9898/logs"
	DefaultScrapeInterval = 15
	DefaultTimeout        = 10
	DefaultMaxBodyBytes   = 10 << 20
)

// Config holds configuration for the HTTP scrape source
type Config struct {
	// Endpoint is the single-endpoint form kept for older configuration files. It is merged
	// into Endpoints.
	Endpoint  string   `json:"endpoint,omitempty" yaml:"endpoint,omitempty" schema:"type:string,description:Endpoint to scrape (single endpoint form),category:basic"`
	Endpoints []string `json:"endpoints,omitempty" yaml:"endpoints,omitempty" schema:"type:array,description:Endpoints to scrape; each one runs on its own timer,category:basic"`

	ScrapeIntervalSecs int `json:"scrape_interval_secs" yaml:"scrape_interval_secs" schema:"type:int,description:Seconds between scrapes of one endpoint,min:1,default:15,category:basic"`
	TimeoutSecs        int `json:"timeout_secs,omitempty" yaml:"timeout_secs,omitempty" schema:"type:int,description:Per-request timeout in seconds,min:1,default:10,category:advanced"`

	// Query values are appended to the values already present in the endpoint query string
	Query   map[string][]string `json:"query,omitempty" yaml:"query,omitempty" schema:"type:object,description:Query parameters appended to each endpoint,category:basic"`
	Headers map[string]string   `json:"headers,omitempty" yaml:"headers,omitempty" schema:"type:object,description:Headers sent with every request,category:basic"`

	Decoding codec.DeserializerConfig `json:"decoding" yaml:"decoding" schema:"type:object,description:Deserializer applied to each frame,category:basic"`
	Framing  codec.FramingConfig      `json:"framing" yaml:"framing" schema:"type:object,description:Framing used to split response bodies,category:basic"`

	TLS   *security.ClientTLSConfig `json:"tls,omitempty" yaml:"tls,omitempty" schema:"type:object,description:TLS trust and client certificate settings,category:security"`
	Auth  *security.AuthConfig      `json:"auth,omitempty" yaml:"auth,omitempty" schema:"type:object,description:Basic or bearer authentication,category:security"`
	Proxy *ProxyConfig              `json:"proxy,omitempty" yaml:"proxy,omitempty" schema:"type:object,description:Outbound proxy settings,category:advanced"`

	MaxBodyBytes int `json:"max_body_bytes,omitempty" yaml:"max_body_bytes,omitempty" schema:"type:int,description:Largest response body accepted after decompression,min:1,category:advanced"`
}

// ProxyConfig routes scrape requests through an HTTP proxy
type ProxyConfig struct {
	Enabled *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	HTTP    string   `json:"http,omitempty" yaml:"http,omitempty"`
	HTTPS   string   `json:"https,omitempty" yaml:"https,omitempty"`
	NoProxy []string `json:"no_proxy,omitempty" yaml:"no_proxy,omitempty"`
}

func (p *ProxyConfig) active() bool {
	return p != nil && (p.Enabled == nil || *p.Enabled) && (p.HTTP != "" || p.HTTPS != "")
}

// DefaultConfig returns the default configuration for the HTTP scrape source
func DefaultConfig() Config {
	return Config{
		Endpoints:          []string{DefaultEndpoint},
		ScrapeIntervalSecs: DefaultScrapeInterval,
		TimeoutSecs:        DefaultTimeout,
		Decoding:           codec.DeserializerConfig{Codec: codec.DeserializerBytes},
		Framing:            codec.MessageBased(),
		MaxBodyBytes:       DefaultMaxBodyBytes,
	}
}

// decodeConfig parses a raw configuration over the defaults. The default endpoint is not
// carried over, so a configuration must name its endpoints.
func decodeConfig(rawConfig []byte) (Config, error) {
	cfg := DefaultConfig()
	cfg.Endpoints = nil
	if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// AllEndpoints returns Endpoint followed by Endpoints, without duplicates
func (c *Config) AllEndpoints() []string {
	seen := make(map[string]bool)
	var all []string
	for _, ep := range append([]string{c.Endpoint}, c.Endpoints...) {
		if ep == "" || seen[ep] {
			continue
		}
		seen[ep] = true
		all = append(all, ep)
	}
	return all
}

// Interval returns the scrape interval
func (c *Config) Interval() time.Duration {
	return time.Duration(c.ScrapeIntervalSecs) * time.Second
}

// Validate checks the configuration. Every failure is a configuration error.
func (c *Config) Validate() error {
	endpoints := c.AllEndpoints()
	if len(endpoints) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "endpoint check")
	}
	for _, ep := range endpoints {
		if err := validateEndpoint(ep); err != nil {
			return err
		}
	}

	if c.ScrapeIntervalSecs < 1 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: scrape_interval_secs must be at least 1, got %d", errors.ErrInvalidConfig, c.ScrapeIntervalSecs),
			"Config", "Validate", "interval check")
	}
	if c.TimeoutSecs < 0 || c.MaxBodyBytes < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: timeout_secs and max_body_bytes cannot be negative", errors.ErrInvalidConfig),
			"Config", "Validate", "limit check")
	}

	if err := c.Decoding.Validate(); err != nil {
		return err
	}
	if err := c.Framing.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}

	if c.Proxy.active() {
		for _, p := range []string{c.Proxy.HTTP, c.Proxy.HTTPS} {
			if p == "" {
				continue
			}
			if _, err := url.Parse(p); err != nil {
				return errors.WrapInvalid(err, "Config", "Validate", "proxy URL check")
			}
		}
	}

	return nil
}

func validateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
			"Config", "Validate", "endpoint parse")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: endpoint %q must use http or https", errors.ErrInvalidConfig, raw),
			"Config", "Validate", "endpoint scheme check")
	}
	if u.Host == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: endpoint %q has no host", errors.ErrInvalidConfig, raw),
			"Config", "Validate", "endpoint host check")
	}
	return nil
}

var httpScrapeSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))
