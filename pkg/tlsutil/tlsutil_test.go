package tlsutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tomwslape5638/vector/pkg/security"
)

func generateTestCert(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"Test Org"}, CommonName: "client"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})
	return certPEM, keyPEM
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestLoadClientTLSConfig_Defaults(t *testing.T) {
	cfg, err := LoadClientTLSConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.NotNil(t, cfg.RootCAs)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.Empty(t, cfg.Certificates)
}

func TestLoadClientTLSConfig_Options(t *testing.T) {
	cfg, err := LoadClientTLSConfig(&security.ClientTLSConfig{
		MinVersion:         "1.3",
		InsecureSkipVerify: true,
		ServerName:         "scrape.internal",
	})
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.Equal(t, "scrape.internal", cfg.ServerName)
}

func TestLoadClientTLSConfig_BadCAFile(t *testing.T) {
	_, err := LoadClientTLSConfig(&security.ClientTLSConfig{CAFiles: []string{"/nonexistent/ca.pem"}})
	assert.Error(t, err)

	garbage := writeFile(t, "ca.pem", []byte("not a certificate"))
	_, err = LoadClientTLSConfig(&security.ClientTLSConfig{CAFiles: []string{garbage}})
	assert.Error(t, err)
}

func TestLoadClientTLSConfig_TrustsAdditionalCA(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("secure"))
	}))
	defer srv.Close()

	caPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	caFile := writeFile(t, "ca.pem", caPEM)

	tlsCfg, err := LoadClientTLSConfig(&security.ClientTLSConfig{CAFiles: []string{caFile}})
	require.NoError(t, err)

	client := &http.Client{Transport: &http.Transport{TLSClientConfig: tlsCfg}}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "secure", string(body))
}

func TestLoadClientTLSConfig_MTLS(t *testing.T) {
	certPEM, keyPEM := generateTestCert(t)
	certFile := writeFile(t, "cert.pem", certPEM)
	keyFile := writeFile(t, "key.pem", keyPEM)

	cfg, err := LoadClientTLSConfig(&security.ClientTLSConfig{
		MTLS: security.ClientMTLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile},
	})
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)

	_, err = LoadClientTLSConfig(&security.ClientTLSConfig{
		MTLS: security.ClientMTLSConfig{Enabled: true, CertFile: certFile, KeyFile: "/missing.pem"},
	})
	assert.Error(t, err)
}
