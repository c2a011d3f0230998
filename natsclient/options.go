package natsclient

import (
	"log/slog"
	"time"

	"github.com/c360/edgetwin/metric"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.With("component", "natsclient")
		}
	}
}

// WithName sets the client name reported to the broker.
func WithName(name string) ClientOption {
	return func(c *Client) {
		c.clientName = name
	}
}

// WithMaxReconnects bounds automatic reconnect attempts. Negative means
// retry forever.
func WithMaxReconnects(n int) ClientOption {
	return func(c *Client) {
		c.maxReconnects = n
	}
}

// WithReconnectWait sets the delay between reconnect attempts.
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.reconnectWait = d
		}
	}
}

// WithTimeout sets the dial timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCircuitThreshold sets how many consecutive connect failures open
// the circuit.
func WithCircuitThreshold(n int32) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.circuitThreshold = n
		}
	}
}

// WithMaxBackoff caps the circuit-open backoff window.
func WithMaxBackoff(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.maxBackoff = d
		}
	}
}

// WithMetrics wires connection gauges and reconnect counters.
func WithMetrics(m *metric.CoreMetrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}
