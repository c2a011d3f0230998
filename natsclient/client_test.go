package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionStatusString(t *testing.T) {
	tests := []struct {
		status ConnectionStatus
		want   string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusReconnecting, "reconnecting"},
		{StatusCircuitOpen, "circuit_open"},
		{ConnectionStatus(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("nats://localhost:4222")
	assert.Equal(t, "nats://localhost:4222", c.URL())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsConnected())
}

func TestPublishWhenDisconnected(t *testing.T) {
	c := NewClient("nats://localhost:4222")
	err := c.Publish("edgetwin.control.commands", []byte("{}"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSubscribeWhenDisconnected(t *testing.T) {
	c := NewClient("nats://localhost:4222")
	err := c.Subscribe("edgetwin.telemetry.frames", func([]byte) {})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestCircuitOpensAfterThreshold(t *testing.T) {
	c := NewClient("nats://localhost:4222", WithCircuitThreshold(3))

	for i := 0; i < 3; i++ {
		c.recordFailure()
	}

	assert.Equal(t, StatusCircuitOpen, c.Status())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := c.Connect(ctx)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	status := c.GetStatus()
	assert.Equal(t, int32(3), status.FailureCount)
	assert.False(t, status.LastFailureTime.IsZero())
}

func TestCircuitBackoffDoubles(t *testing.T) {
	c := NewClient("nats://localhost:4222",
		WithCircuitThreshold(1), WithMaxBackoff(4*time.Second))

	c.recordFailure()
	assert.Equal(t, 2*time.Second, c.backoff.Load().(time.Duration))
	c.recordFailure()
	assert.Equal(t, 4*time.Second, c.backoff.Load().(time.Duration))
	c.recordFailure()
	// Capped at the configured maximum.
	assert.Equal(t, 4*time.Second, c.backoff.Load().(time.Duration))
}

func TestResetCircuitClearsState(t *testing.T) {
	c := NewClient("nats://localhost:4222", WithCircuitThreshold(1))
	c.recordFailure()
	require.Equal(t, StatusCircuitOpen, c.Status())

	c.resetCircuit()
	assert.Equal(t, int32(0), c.failures.Load())
	assert.Equal(t, time.Second, c.backoff.Load().(time.Duration))
}

func TestOnReconnectCallbacksAccumulate(t *testing.T) {
	c := NewClient("nats://localhost:4222")

	var first, second int
	c.OnReconnect(func() { first++ })
	c.OnReconnect(func() { second++ })

	c.fireReconnectCallbacks()
	c.fireReconnectCallbacks()

	assert.Equal(t, 2, first)
	assert.Equal(t, 2, second)
}

func TestCloseIsIdempotent(t *testing.T) {
	c := NewClient("nats://localhost:4222")
	c.Close()
	c.Close()
	assert.Equal(t, StatusDisconnected, c.Status())
}
