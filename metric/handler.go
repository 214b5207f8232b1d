package metric

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tomwslape5638/vector/errors"
)

// Server serves /metrics and a health endpoint
type Server struct {
	addr     string
	registry *MetricsRegistry
	health   http.Handler

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates a server listening on addr. health is served at /healthz when not nil.
func NewServer(addr string, registry *MetricsRegistry, health http.Handler) *Server {
	return &Server{addr: addr, registry: registry, health: health}
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(
			s.registry.PrometheusRegistry(),
			promhttp.HandlerOpts{EnableOpenMetrics: true},
		))
	}

	if s.health != nil {
		mux.Handle("/healthz", s.health)
	} else {
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		})
	}

	return mux
}

// Start listens and serves until Stop is called. It returns nil after a clean stop.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Start", "server state check")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return errors.WrapFatal(err, "Server", "Start", fmt.Sprintf("listen on %s", s.addr))
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.server = server
	s.listener = listener
	s.mu.Unlock()

	if err := server.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return errors.WrapTransient(err, "Server", "Start", "serve")
	}
	return nil
}

// Addr returns the bound address once the server is started
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	if err := server.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "shutdown HTTP server")
	}
	return nil
}
