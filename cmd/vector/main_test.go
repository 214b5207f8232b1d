package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tomwslape5638/vector/component"
	"github.com/Tomwslape5638/vector/componentregistry"
	"github.com/Tomwslape5638/vector/config"
)

func newRegistry(t *testing.T) *component.Registry {
	t.Helper()
	registry := component.NewRegistry()
	require.NoError(t, componentregistry.Register(registry))
	return registry
}

func TestParseFlagsDefaults(t *testing.T) {
	cfg, err := parseFlags(nil, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, []string{"vector.yaml"}, cfg.ConfigPaths)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, ":8686", cfg.HealthAddr)
	assert.Zero(t, cfg.ShutdownTimeout)
	assert.Nil(t, cfg.RequireHealthy)
	assert.Empty(t, cfg.Command)
	assert.NoError(t, validateFlags(cfg))
}

func TestParseFlagsFromEnvironment(t *testing.T) {
	t.Setenv("VECTOR_LOG_LEVEL", "DEBUG")
	t.Setenv("VECTOR_SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("VECTOR_REQUIRE_HEALTHY", "true")

	cfg, err := parseFlags([]string{"--log-format=text"}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	require.NotNil(t, cfg.RequireHealthy)
	assert.True(t, *cfg.RequireHealthy)
}

func TestParseFlagsOverridesEnvironment(t *testing.T) {
	t.Setenv("VECTOR_LOG_LEVEL", "warn")

	cfg, err := parseFlags([]string{"--log-level=error", "-c", "a.yaml", "-c", "b.yaml"}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, []string{"a.yaml", "b.yaml"}, cfg.ConfigPaths)
}

func TestParseFlagsSubcommand(t *testing.T) {
	cfg, err := parseFlags([]string{"generate", "http_scrape", "websocket"}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "generate", cfg.Command)
	assert.Equal(t, []string{"http_scrape", "websocket"}, cfg.Args)
}

func TestParseFlagsHelp(t *testing.T) {
	var out bytes.Buffer
	_, err := parseFlags([]string{"--help"}, &out)
	assert.ErrorIs(t, err, pflag.ErrHelp)
	assert.Contains(t, out.String(), "--shutdown-timeout")
}

func TestValidateFlags(t *testing.T) {
	valid := func() *CLIConfig {
		return &CLIConfig{ConfigPaths: []string{"vector.yaml"}, LogLevel: "info", LogFormat: "json"}
	}

	tests := []struct {
		name    string
		modify  func(*CLIConfig)
		wantErr string
	}{
		{"valid", func(*CLIConfig) {}, ""},
		{"bad level", func(c *CLIConfig) { c.LogLevel = "trace" }, "invalid log level"},
		{"bad format", func(c *CLIConfig) { c.LogFormat = "xml" }, "invalid log format"},
		{"no config", func(c *CLIConfig) { c.ConfigPaths = nil }, "no configuration file"},
		{"negative timeout", func(c *CLIConfig) { c.ShutdownTimeout = -time.Second }, "invalid shutdown timeout"},
		{"unknown command", func(c *CLIConfig) { c.Command = "tap" }, "unknown command"},
		{"generate without types", func(c *CLIConfig) { c.Command = "generate" }, "at least one component type"},
		{"version skips checks", func(c *CLIConfig) { c.ShowVersion = true; c.LogLevel = "trace" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			err := validateFlags(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGenerate(t *testing.T) {
	registry := newRegistry(t)

	var out bytes.Buffer
	require.NoError(t, generate(&out, registry, []string{"http_scrape", "websocket"}))

	cfg, err := config.Parse(out.Bytes(), true)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateTypes(registry))

	require.Contains(t, cfg.Sources, "http_scrape")
	require.Contains(t, cfg.Sinks, "websocket")
	assert.Equal(t, []string{"http_scrape"}, cfg.Sinks["websocket"].Inputs)
	assert.Contains(t, out.String(), "scrape_interval_secs: 15")
}

func TestGenerateUnknownType(t *testing.T) {
	err := generate(io.Discard, newRegistry(t), []string{"kafka"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown component type")
}

func TestRunVersion(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, run([]string{"--version"}, &stdout, io.Discard))
	assert.True(t, strings.HasPrefix(stdout.String(), "vector "+Version))
}

func TestRunValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vector.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sources:
  app:
    type: http_scrape
    config:
      endpoints: ["http://127.0.0.1:9090/metrics"]
sinks:
  out:
    type: websocket
    inputs: [app]
    config:
      uri: ws://127.0.0.1:8080/events
`), 0600))

	assert.NoError(t, run([]string{"--validate", "--config", path, "--log-format=text"}, io.Discard, io.Discard))
}

func TestRunValidateRejectsUnknownType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vector.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sources:
  app:
    type: syslog
sinks:
  out:
    type: websocket
    inputs: [app]
    config:
      uri: ws://127.0.0.1:8080/events
`), 0600))

	err := run([]string{"--validate", "--config", path}, io.Discard, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate config")
}

func TestRunWithSignalHandlingStopsOnCancel(t *testing.T) {
	scraped := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	t.Cleanup(scraped.Close)

	upgrader := websocket.Upgrader{}
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(peer.Close)

	cfg, err := config.Parse([]byte(`{
		"sources": {"app": {"type": "http_scrape", "config": {"endpoints": ["`+scraped.URL+`"], "scrape_interval_secs": 1}}},
		"sinks": {"out": {"type": "websocket", "inputs": ["app"], "config": {"uri": "ws`+strings.TrimPrefix(peer.URL, "http")+`"}}}
	}`), false)
	require.NoError(t, err)

	cliCfg := &CLIConfig{HealthAddr: "127.0.0.1:0", ShutdownTimeout: 5 * time.Second}
	logger := setupLogger("error", "text", io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(500*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() {
		done <- runWithSignalHandling(ctx, cliCfg, cfg, newRegistry(t), logger)
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("pipeline did not stop after cancellation")
	}
}
