// Package natsclient manages the NATS connection with a circuit breaker:
// repeated connect failures open the circuit and back off exponentially
// instead of hammering the broker.
package natsclient

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/edgetwin/metric"
)

// ConnectionStatus is the state of the NATS connection.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

var (
	ErrNotConnected = stderrors.New("not connected to NATS")
	ErrCircuitOpen  = stderrors.New("circuit breaker is open")
)

// Status is a point-in-time snapshot of the client.
type Status struct {
	Status          ConnectionStatus `json:"status"`
	FailureCount    int32            `json:"failure_count"`
	LastFailureTime time.Time        `json:"last_failure_time,omitempty"`
	Reconnects      int32            `json:"reconnects"`
}

// Client wraps a single NATS connection for the runtime's telemetry
// ingest and control publishing.
type Client struct {
	url    string
	logger *slog.Logger

	status      atomic.Value // ConnectionStatus
	failures    atomic.Int32
	reconnects  atomic.Int32
	lastFailure atomic.Value // time.Time

	circuitThreshold int32
	circuitOpenUntil atomic.Value // time.Time
	backoff          atomic.Value // time.Duration
	maxBackoff       time.Duration

	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	clientName    string

	metrics *metric.CoreMetrics

	mu          sync.RWMutex
	conn        *nats.Conn
	subs        []*nats.Subscription
	onReconnect []func()
	closed      atomic.Bool
}

// NewClient creates an unconnected client.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:              url,
		logger:           slog.Default().With("component", "natsclient"),
		circuitThreshold: 5,
		maxBackoff:       time.Minute,
		maxReconnects:    -1,
		reconnectWait:    2 * time.Second,
		timeout:          5 * time.Second,
		clientName:       "edgetwin",
	}
	c.status.Store(StatusDisconnected)
	c.backoff.Store(time.Second)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the broker URL.
func (c *Client) URL() string { return c.url }

// Status returns the current connection status.
func (c *Client) Status() ConnectionStatus {
	return c.status.Load().(ConnectionStatus)
}

// IsConnected reports whether the underlying connection is up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// GetStatus returns a snapshot for the status surface.
func (c *Client) GetStatus() Status {
	s := Status{
		Status:       c.Status(),
		FailureCount: c.failures.Load(),
		Reconnects:   c.reconnects.Load(),
	}
	if t, ok := c.lastFailure.Load().(time.Time); ok {
		s.LastFailureTime = t
	}
	return s
}

// Connect dials the broker. While the circuit is open it fails fast with
// ErrCircuitOpen; callers retry after the backoff window.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrNotConnected
	}
	if until, ok := c.circuitOpenUntil.Load().(time.Time); ok && time.Now().Before(until) {
		return ErrCircuitOpen
	}

	c.setStatus(StatusConnecting)

	opts := []nats.Option{
		nats.Name(c.clientName),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.timeout),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.setStatus(StatusReconnecting)
			c.logger.Warn("disconnected from NATS", "error", err)
		}),
		// Fires on reconnects and, with RetryOnFailedConnect, on the
		// first connection when the broker was down at dial time.
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.reconnects.Add(1)
			c.resetCircuit()
			c.setStatus(StatusConnected)
			if c.metrics != nil {
				c.metrics.NATSReconnects.Inc()
			}
			c.logger.Info("connected to NATS after retry", "url", nc.ConnectedUrl())
			c.fireReconnectCallbacks()
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.setStatus(StatusDisconnected)
		}),
	}

	connCh := make(chan *nats.Conn, 1)
	errCh := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(c.url, opts...)
		if err != nil {
			errCh <- err
			return
		}
		connCh <- conn
	}()

	select {
	case <-ctx.Done():
		c.recordFailure()
		return ctx.Err()
	case err := <-errCh:
		c.recordFailure()
		return err
	case conn := <-connCh:
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		if !conn.IsConnected() {
			// RetryOnFailedConnect handed us a pending connection; the
			// reconnect handler completes the transition when the
			// broker appears.
			c.setStatus(StatusReconnecting)
			c.logger.Warn("broker unreachable, retrying in background", "url", c.url)
			return nil
		}
		c.resetCircuit()
		c.setStatus(StatusConnected)
		c.logger.Info("connected to NATS", "url", conn.ConnectedUrl())
		return nil
	}
}

// Publish sends data on the subject.
func (c *Client) Publish(subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}
	return conn.Publish(subject, data)
}

// Subscribe registers a handler for the subject. Subscriptions are
// tracked and drained on Close.
func (c *Client) Subscribe(subject string, handler func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return err
	}
	c.subs = append(c.subs, sub)
	return nil
}

// OnReconnect registers a callback invoked whenever a connection is
// (re)established. The NATS library re-establishes existing subscriptions
// itself; callbacks are for work that failed while the broker was down,
// and must be idempotent.
func (c *Client) OnReconnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnect = append(c.onReconnect, fn)
}

func (c *Client) fireReconnectCallbacks() {
	c.mu.RLock()
	cbs := make([]func(), len(c.onReconnect))
	copy(cbs, c.onReconnect)
	c.mu.RUnlock()
	for _, fn := range cbs {
		fn()
	}
}

// Close drains subscriptions and closes the connection. Safe to call
// more than once.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			c.logger.Warn("draining subscription failed", "error", err)
		}
	}
	c.subs = nil
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.setStatus(StatusDisconnected)
}

func (c *Client) setStatus(status ConnectionStatus) {
	c.status.Store(status)
	if c.metrics != nil {
		if status == StatusConnected {
			c.metrics.NATSConnected.Set(1)
		} else {
			c.metrics.NATSConnected.Set(0)
		}
	}
}

func (c *Client) recordFailure() {
	n := c.failures.Add(1)
	c.lastFailure.Store(time.Now())

	if n >= c.circuitThreshold {
		backoff := c.backoff.Load().(time.Duration)
		c.circuitOpenUntil.Store(time.Now().Add(backoff))
		c.setStatus(StatusCircuitOpen)
		c.logger.Warn("circuit opened after repeated connect failures",
			"failures", n, "backoff", backoff)

		next := backoff * 2
		if next > c.maxBackoff {
			next = c.maxBackoff
		}
		c.backoff.Store(next)
		return
	}
	c.setStatus(StatusDisconnected)
}

func (c *Client) resetCircuit() {
	c.failures.Store(0)
	c.backoff.Store(time.Second)
	c.circuitOpenUntil.Store(time.Time{})
}
