package topology

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tomwslape5638/vector/component"
	"github.com/Tomwslape5638/vector/componentregistry"
	"github.com/Tomwslape5638/vector/config"
	"github.com/Tomwslape5638/vector/event"
	"github.com/Tomwslape5638/vector/input/httpscrape"
	"github.com/Tomwslape5638/vector/metric"
)

// collector is a WebSocket peer that records every text message it receives
func collector(t *testing.T) (*httptest.Server, <-chan string) {
	t.Helper()
	messages := make(chan string, 100)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case messages <- string(data):
			default:
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, messages
}

func TestScrapeToWebSocket(t *testing.T) {
	scraped := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("A plain text event"))
	}))
	t.Cleanup(scraped.Close)

	peer, messages := collector(t)
	wsURL := "ws" + strings.TrimPrefix(peer.URL, "http")

	cfg, err := config.Parse([]byte(fmt.Sprintf(`
sources:
  app:
    type: http_scrape
    config:
      endpoints: [%q]
      scrape_interval_secs: 1
sinks:
  out:
    type: websocket
    inputs: [app]
    config:
      uri: %q
      encoding:
        codec: json
      acknowledgements:
        enabled: true
health:
  require_healthy: true
`, scraped.URL, wsURL)), true)
	require.NoError(t, err)

	registry := component.NewRegistry()
	require.NoError(t, componentregistry.Register(registry))
	metrics := metric.NewMetricsRegistry()

	topo, err := Build(cfg, registry, component.Dependencies{MetricsRegistry: metrics})
	require.NoError(t, err)
	require.NoError(t, topo.Start(context.Background()))

	select {
	case msg := <-messages:
		assert.Contains(t, msg, `"message":"A plain text event"`)
		assert.Contains(t, msg, `"source_type":"http_scrape"`)
		assert.Contains(t, msg, `"timestamp"`)
	case <-time.After(5 * time.Second):
		t.Fatal("no event reached the WebSocket peer")
	}

	status, ok := topo.Monitor().Get("out.healthcheck")
	require.True(t, ok)
	assert.True(t, status.IsHealthy())

	// The sink's acknowledgement flows back to the scrape that produced the event
	src, ok := registry.Component("app").(*httpscrape.Source)
	require.True(t, ok)
	require.Eventually(t, func() bool { return src.Acknowledged(event.StatusDelivered) >= 1 },
		5*time.Second, 10*time.Millisecond)
	assert.Zero(t, src.Acknowledged(event.StatusErrored))

	assert.True(t, topo.Stop(time.Now().Add(5*time.Second)))
	assert.NoError(t, topo.Wait())

	// Component metrics are released with the topology
	assert.Equal(t, 0, metrics.UnregisterComponent("out"))
}
