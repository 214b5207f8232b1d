package natsclient

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Tomwslape5638/vector/metric"
	"github.com/Tomwslape5638/vector/pkg/security"
)

// ClientOption is a functional option for configuring the Client
type ClientOption func(*Client) error

// WithMaxReconnects sets the maximum number of reconnection attempts (-1 for infinite)
func WithMaxReconnects(maxReconnects int) ClientOption {
	return func(c *Client) error {
		c.maxReconnects = maxReconnects
		return nil
	}
}

// WithReconnectWait sets the wait time between reconnection attempts
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.reconnectWait = d
		return nil
	}
}

// WithPingInterval sets the server ping interval
func WithPingInterval(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.pingInterval = d
		return nil
	}
}

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithClock sets the clock used by the circuit breaker and drain timeout
func WithClock(clock clockwork.Clock) ClientOption {
	return func(c *Client) error {
		if clock != nil {
			c.clock = clock
		}
		return nil
	}
}

// WithHealthChangeCallback sets a callback for health state changes
func WithHealthChangeCallback(fn func(healthy bool)) ClientOption {
	return func(c *Client) error {
		c.onHealthChange = fn
		return nil
	}
}

// WithCircuitBreakerThreshold sets the number of failures before opening circuit
func WithCircuitBreakerThreshold(threshold int32) ClientOption {
	return func(c *Client) error {
		if threshold < 1 {
			threshold = 5
		}
		c.circuitThreshold = threshold
		return nil
	}
}

// WithMaxBackoff sets the maximum time the circuit stays open
func WithMaxBackoff(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d < time.Second {
			d = time.Minute
		}
		c.maxBackoff = d
		return nil
	}
}

// WithCredentials sets username and password for authentication
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		c.username = username
		c.password = password
		return nil
	}
}

// WithToken sets a token for authentication
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithTLS enables TLS using the same client settings as the HTTP and WebSocket transports
func WithTLS(cfg *security.ClientTLSConfig) ClientOption {
	return func(c *Client) error {
		c.tls = cfg
		return nil
	}
}

// WithName sets the client name reported to the server
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}

// WithTimeout sets the connection timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.timeout = d
		return nil
	}
}

// WithDrainTimeout sets the upper bound for draining on Close
func WithDrainTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.drainTimeout = d
		return nil
	}
}

// WithMetrics records connection status, reconnects and breaker state in the registry's
// core metrics. A nil registry disables metrics.
func WithMetrics(registry *metric.MetricsRegistry) ClientOption {
	return func(c *Client) error {
		if registry != nil {
			c.metrics = registry.CoreMetrics()
		}
		return nil
	}
}
