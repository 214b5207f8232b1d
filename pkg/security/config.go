// Package security provides the TLS and authentication settings shared by HTTP and
// WebSocket clients.
package security

// ClientMTLSConfig holds mTLS configuration for clients (client certificate provision)
type ClientMTLSConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	CertFile string `json:"cert_file,omitempty" yaml:"cert_file,omitempty"` // Client certificate
	KeyFile  string `json:"key_file,omitempty" yaml:"key_file,omitempty"`   // Client private key
}

// ClientTLSConfig holds TLS configuration for HTTP/WebSocket clients.
// The system CA bundle is always loaded; CAFiles are ADDITIONAL trusted CAs.
type ClientTLSConfig struct {
	// Enabled forces TLS for transports that would otherwise be plaintext. Nil leaves the
	// decision to the URI scheme (https, wss).
	Enabled            *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	CAFiles            []string `json:"ca_files,omitempty" yaml:"ca_files,omitempty"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"` // DEV/TEST ONLY
	MinVersion         string   `json:"min_version,omitempty" yaml:"min_version,omitempty"`
	ServerName         string   `json:"server_name,omitempty" yaml:"server_name,omitempty"`

	MTLS ClientMTLSConfig `json:"mtls,omitempty" yaml:"mtls,omitempty"`
}

// IsEnabled reports whether TLS was explicitly switched on.
func (c *ClientTLSConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}
