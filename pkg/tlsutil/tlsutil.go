// Package tlsutil builds client TLS configuration for the HTTP scrape client and the
// WebSocket sink.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/Tomwslape5638/vector/errors"
	"github.com/Tomwslape5638/vector/pkg/security"
)

// LoadClientTLSConfig creates a tls.Config for HTTP/WebSocket clients.
// It always starts from the system CA bundle; CAFiles are additional trusted CAs.
// A nil cfg yields the defaults.
func LoadClientTLSConfig(cfg *security.ClientTLSConfig) (*tls.Config, error) {
	if cfg == nil {
		cfg = &security.ClientTLSConfig{}
	}

	tlsConfig := &tls.Config{
		MinVersion: parseTLSVersion(cfg.MinVersion),
		ServerName: cfg.ServerName,
	}

	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		rootCAs = x509.NewCertPool()
	}

	for _, caFile := range cfg.CAFiles {
		caPEM, err := os.ReadFile(caFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLSConfig", fmt.Sprintf("read CA file %s", caFile))
		}
		if !rootCAs.AppendCertsFromPEM(caPEM) {
			return nil, errors.WrapFatal(
				fmt.Errorf("invalid PEM data"),
				"tlsutil",
				"LoadClientTLSConfig",
				fmt.Sprintf("parse CA certificate from %s", caFile),
			)
		}
	}
	tlsConfig.RootCAs = rootCAs

	// Operators opt in to this explicitly
	if cfg.InsecureSkipVerify {
		tlsConfig.InsecureSkipVerify = true
	}

	if cfg.MTLS.Enabled {
		clientCert, err := tls.LoadX509KeyPair(cfg.MTLS.CertFile, cfg.MTLS.KeyFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLSConfig", "load client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{clientCert}
	}

	return tlsConfig, nil
}

// parseTLSVersion converts version string to crypto/tls constant.
// Returns tls.VersionTLS12 if empty or invalid.
func parseTLSVersion(version string) uint16 {
	switch version {
	case "1.3":
		return tls.VersionTLS13
	case "1.2":
		return tls.VersionTLS12
	default:
		return tls.VersionTLS12
	}
}
