package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/edgetwin/control"
	"github.com/c360/edgetwin/natsclient"
)

func testPublisher(t *testing.T) *Publisher {
	t.Helper()
	p := New(Deps{NATS: natsclient.NewClient("nats://localhost:4222")})
	require.NoError(t, p.Initialize())
	require.NoError(t, p.Start(context.Background()))
	return p
}

func TestInitializeRequiresClient(t *testing.T) {
	p := New(Deps{})
	assert.Error(t, p.Initialize())
}

func TestPublishInvalidCommand(t *testing.T) {
	p := testPublisher(t)

	err := p.Publish(control.StartProcess{})
	assert.Error(t, err)
	assert.Equal(t, int64(0), p.Published())
}

func TestPublishDisconnectedDrops(t *testing.T) {
	p := testPublisher(t)

	// The client was never connected; the command is counted as dropped
	// but the call does not error.
	err := p.Publish(control.EmergencyStop{Reason: "test", Timestamp: time.Now()})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), p.Dropped())
	assert.Equal(t, int64(0), p.Published())
}

func TestPublishInactiveIsNoop(t *testing.T) {
	p := testPublisher(t)
	require.NoError(t, p.Stop(0))

	err := p.Publish(control.EmergencyStop{Reason: "test", Timestamp: time.Now()})
	assert.NoError(t, err)
	assert.Equal(t, int64(0), p.Dropped())
}

func TestMetaAndHealth(t *testing.T) {
	p := testPublisher(t)
	assert.Equal(t, "publisher", p.Meta().Name)
	assert.True(t, p.Health().Healthy)
}

func TestFlowTracksDropRate(t *testing.T) {
	p := testPublisher(t)

	// Disconnected client: everything published is counted as dropped.
	_ = p.Publish(control.EmergencyStop{Reason: "test", Timestamp: time.Now()})
	_ = p.Publish(control.EmergencyStop{Reason: "test", Timestamp: time.Now()})

	fm := p.Flow()
	assert.Equal(t, 1.0, fm.ErrorRate)
	assert.Equal(t, 0.0, fm.MessagesPerSecond)
}
