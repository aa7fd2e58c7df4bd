package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diazhh/petroedge-sub003/errors"
)

const validEnvelope = `{
	"dataSourceId": "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
	"gatewayId": "gw-rig-07",
	"tenantId": "550e8400-e29b-41d4-a716-446655440000",
	"timestamp": "2026-08-27T14:05:00Z",
	"data": {"wellhead_pressure": 2175.4, "valve_open": true, "pump_mode": "auto"},
	"metadata": {"firmware": "4.2.1"}
}`

func TestParseEnvelopeValid(t *testing.T) {
	env, err := ParseEnvelope([]byte(validEnvelope))
	require.NoError(t, err)

	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", env.DataSourceID)
	assert.Equal(t, "gw-rig-07", env.GatewayID)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", env.TenantID)
	assert.Equal(t, time.Date(2026, 8, 27, 14, 5, 0, 0, time.UTC), env.Timestamp.UTC())
	assert.Equal(t, 2175.4, env.Data["wellhead_pressure"])
	assert.Equal(t, true, env.Data["valve_open"])
	assert.Equal(t, "4.2.1", env.Metadata["firmware"])
	assert.NoError(t, env.Validate())
}

func TestParseEnvelopeRejectsBadShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"dataSourceId": `},
		{"missing data source", `{"gatewayId":"g","tenantId":"550e8400-e29b-41d4-a716-446655440000","timestamp":"2026-08-27T14:05:00Z","data":{"a":1}}`},
		{"empty data map", `{"dataSourceId":"6ba7b810-9dad-11d1-80b4-00c04fd430c8","gatewayId":"g","tenantId":"550e8400-e29b-41d4-a716-446655440000","timestamp":"2026-08-27T14:05:00Z","data":{}}`},
		{"non-scalar data value", `{"dataSourceId":"6ba7b810-9dad-11d1-80b4-00c04fd430c8","gatewayId":"g","tenantId":"550e8400-e29b-41d4-a716-446655440000","timestamp":"2026-08-27T14:05:00Z","data":{"nested":{"x":1}}}`},
		{"bad timestamp", `{"dataSourceId":"6ba7b810-9dad-11d1-80b4-00c04fd430c8","gatewayId":"g","tenantId":"550e8400-e29b-41d4-a716-446655440000","timestamp":"yesterday","data":{"a":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEnvelope([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err), "expected invalid classification, got: %v", err)
		})
	}
}

func TestNewExecMessageCopiesEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(validEnvelope))
	require.NoError(t, err)

	msg := NewExecMessage(env)
	msg.Data["wellhead_pressure"] = 0.0
	msg.SetMeta("firmware", "overwritten")

	// The envelope stays immutable regardless of downstream mutation.
	assert.Equal(t, 2175.4, env.Data["wellhead_pressure"])
	assert.Equal(t, "4.2.1", env.Metadata["firmware"])
}

func TestExecMessageClone(t *testing.T) {
	msg := &ExecMessage{
		DataSourceID: "ds-1",
		TenantID:     "t-1",
		Data:         map[string]any{"temp": 42.0},
		Metadata:     map[string]any{"twin": "twin-1"},
	}

	clone := msg.Clone()
	clone.Data["temp"] = 100.0
	clone.Metadata["twin"] = "twin-2"
	clone.Dropped = true

	assert.Equal(t, 42.0, msg.Data["temp"])
	assert.Equal(t, "twin-1", msg.Metadata["twin"])
	assert.False(t, msg.Dropped)
}
