package httpscrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/net/http/httpproxy"

	"github.com/Tomwslape5638/vector/errors"
	"github.com/Tomwslape5638/vector/pkg/tlsutil"
)

// acceptEncoding lists the content codings the client can decode
const acceptEncoding = "zstd, gzip, deflate"

// newHTTPClient builds the client shared by every endpoint of one source
func newHTTPClient(cfg *Config) (*http.Client, error) {
	tlsConfig, err := tlsutil.LoadClientTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	// Content-Encoding is handled by decodeBody
	transport.DisableCompression = true

	if cfg.Proxy.active() {
		proxy := httpproxy.Config{
			HTTPProxy:  cfg.Proxy.HTTP,
			HTTPSProxy: cfg.Proxy.HTTPS,
			NoProxy:    strings.Join(cfg.Proxy.NoProxy, ","),
		}
		proxyFunc := proxy.ProxyFunc()
		transport.Proxy = func(req *http.Request) (*url.URL, error) {
			return proxyFunc(req.URL)
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   time.Duration(cfg.TimeoutSecs) * time.Second,
	}, nil
}

// fetch performs one scrape request and returns the decoded body. Every failure is
// transient: the next tick retries.
func (s *Source) fetch(ctx context.Context, target *url.URL) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, 0, errors.WrapTransient(err, "Source", "fetch", "build request")
	}
	req.Header = s.headers.Clone()
	// Credentials may come from the environment and are resolved per request
	s.config.Auth.Apply(req.Header)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, errors.WrapTransient(err, "Source", "fetch", "send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.StatusCode, errors.WrapTransient(
			fmt.Errorf("%w: %s", errors.ErrUnexpectedStatus, resp.Status), "Source", "fetch", "check status")
	}

	body, err := decodeBody(resp.Header.Get("Content-Encoding"), resp.Body, s.maxBody)
	if err != nil {
		return nil, resp.StatusCode, errors.WrapTransient(err, "Source", "fetch", "read body")
	}
	return body, resp.StatusCode, nil
}

// decodeBody undoes the content coding of r and reads at most limit bytes
func decodeBody(encoding string, r io.Reader, limit int) ([]byte, error) {
	var reader io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		reader = r
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		reader = zr
	case "zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		reader = zr
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}

	body, err := io.ReadAll(io.LimitReader(reader, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	if len(body) > limit {
		return nil, fmt.Errorf("response body exceeds %d bytes", limit)
	}
	return body, nil
}
