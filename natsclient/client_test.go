package natsclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionStatusString(t *testing.T) {
	tests := []struct {
		status   ConnectionStatus
		expected string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusReconnecting, "reconnecting"},
		{StatusCircuitOpen, "circuit_open"},
		{ConnectionStatus(42), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.status.String())
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("nats://localhost:4222")
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsHealthy())
}

func TestPublishWithoutConnection(t *testing.T) {
	c := NewClient("nats://localhost:4222")
	err := c.Publish(context.Background(), "telemetry.raw", []byte("{}"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestJetStreamWithoutConnection(t *testing.T) {
	c := NewClient("nats://localhost:4222")
	_, err := c.JetStream()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestCircuitOpensAfterRepeatedFailures(t *testing.T) {
	c := NewClient("nats://localhost:4222")
	for i := 0; i < failureThreshold; i++ {
		c.recordFailure()
	}
	assert.Equal(t, StatusCircuitOpen, c.Status())

	// Publish is shed while the circuit is open and fresh.
	err := c.Publish(context.Background(), "telemetry.raw", []byte("{}"))
	assert.ErrorIs(t, err, ErrCircuitOpen)

	c.resetCircuit()
	assert.NotEqual(t, StatusCircuitOpen, c.Status())
}

func TestCloseIsIdempotent(t *testing.T) {
	c := NewClient("nats://localhost:4222")
	assert.NoError(t, c.Close(context.Background()))
	assert.NoError(t, c.Close(context.Background()))
}
