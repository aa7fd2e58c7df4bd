package node

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diazhh/petroedge-sub003/errors"
	"github.com/diazhh/petroedge-sub003/telemetry"
)

func testMessage() *telemetry.ExecMessage {
	return &telemetry.ExecMessage{
		DataSourceID: "ds-1",
		GatewayID:    "gw-1",
		TenantID:     "t-1",
		Timestamp:    time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC),
		Data: map[string]any{
			"p":    2175.4,
			"temp": 88.0,
			"mode": "auto",
		},
		Metadata: map[string]any{
			telemetry.MetaTwinID:      "twin-1",
			telemetry.MetaRootAssetID: "asset-9",
		},
	}
}

func TestRegistryHasBuiltinTypes(t *testing.T) {
	r := NewRegistry()
	assert.ElementsMatch(t,
		[]string{TypeIngress, TypeEnrich, TypeTransform, TypeFilter, TypePublish},
		r.Types())
}

func TestRegistryRejectsDuplicateAndUnknown(t *testing.T) {
	r := NewRegistry()

	err := r.Register(TypeIngress, newIngressNode)
	assert.Error(t, err)

	_, err = r.Create("teleport", nil, Dependencies{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownNodeType))
}

func TestIngressNodeStampsChainStart(t *testing.T) {
	r := NewRegistry()
	n, err := r.Create(TypeIngress, nil, Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, TypeIngress, n.Type())

	out, err := n.Execute(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Contains(t, out.Metadata, telemetry.MetaIngestedAt)
	assert.Equal(t, 2175.4, out.Data["p"])
}

func TestTransformNodeMappingsAndComputed(t *testing.T) {
	cfg := json.RawMessage(`{
		"mappings": [
			{"source": "p", "target": "pressure_kpa", "scale": 0.001},
			{"source": "temp", "target": "temp"}
		],
		"computed": [
			{"target": "overheat", "expression": "data.temp > 85.0"}
		]
	}`)

	r := NewRegistry()
	n, err := r.Create(TypeTransform, cfg, Dependencies{})
	require.NoError(t, err)

	out, err := n.Execute(context.Background(), testMessage())
	require.NoError(t, err)

	assert.InDelta(t, 2.1754, out.Data["pressure_kpa"].(float64), 0.0001)
	assert.NotContains(t, out.Data, "p", "renamed source field is removed")
	assert.Equal(t, 88.0, out.Data["temp"])
	assert.Equal(t, true, out.Data["overheat"])
	assert.Equal(t, "auto", out.Data["mode"], "unmapped fields survive by default")
}

func TestTransformNodeDropUnmapped(t *testing.T) {
	cfg := json.RawMessage(`{
		"mappings": [{"source": "p", "target": "pressure"}],
		"dropUnmapped": true
	}`)

	r := NewRegistry()
	n, err := r.Create(TypeTransform, cfg, Dependencies{})
	require.NoError(t, err)

	out, err := n.Execute(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"pressure": 2175.4}, out.Data)
}

func TestTransformNodeScaleNonNumericFails(t *testing.T) {
	cfg := json.RawMessage(`{"mappings": [{"source": "mode", "target": "mode", "scale": 2}]}`)

	r := NewRegistry()
	n, err := r.Create(TypeTransform, cfg, Dependencies{})
	require.NoError(t, err)

	_, err = n.Execute(context.Background(), testMessage())
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestTransformNodeDoesNotMutateInput(t *testing.T) {
	cfg := json.RawMessage(`{"mappings": [{"source": "p", "target": "pressure"}]}`)

	r := NewRegistry()
	n, err := r.Create(TypeTransform, cfg, Dependencies{})
	require.NoError(t, err)

	in := testMessage()
	_, err = n.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Contains(t, in.Data, "p", "predecessor output must stay stable")
}

func TestTransformNodeRejectsEmptyMappingFields(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name string
		cfg  string
	}{
		{"empty source", `{"mappings": [{"source": "", "target": "pressure"}]}`},
		{"empty target", `{"mappings": [{"source": "p", "target": ""}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Create(TypeTransform, json.RawMessage(tt.cfg), Dependencies{})
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestTransformNodeRejectsBadExpression(t *testing.T) {
	cfg := json.RawMessage(`{"computed": [{"target": "x", "expression": "data.temp +* 2"}]}`)

	r := NewRegistry()
	_, err := r.Create(TypeTransform, cfg, Dependencies{})
	assert.Error(t, err)
}

func TestFilterNodePasses(t *testing.T) {
	cfg := json.RawMessage(`{"expression": "data.temp > 50.0", "name": "hot-only"}`)

	r := NewRegistry()
	n, err := r.Create(TypeFilter, cfg, Dependencies{})
	require.NoError(t, err)

	out, err := n.Execute(context.Background(), testMessage())
	require.NoError(t, err)
	assert.False(t, out.Dropped)
}

func TestFilterNodeDropsAndRecordsProvenance(t *testing.T) {
	cfg := json.RawMessage(`{"expression": "data.temp > 500.0", "name": "extreme-only"}`)

	r := NewRegistry()
	n, err := r.Create(TypeFilter, cfg, Dependencies{})
	require.NoError(t, err)

	out, err := n.Execute(context.Background(), testMessage())
	require.NoError(t, err)
	assert.True(t, out.Dropped)
	assert.Equal(t, "extreme-only", out.Metadata[telemetry.MetaDroppedBy])
}

func TestFilterNodeRequiresExpression(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create(TypeFilter, json.RawMessage(`{}`), Dependencies{})
	assert.Error(t, err)
}

func TestEnrichNodeCopiesTwinContext(t *testing.T) {
	r := NewRegistry()
	n, err := r.Create(TypeEnrich, nil, Dependencies{})
	require.NoError(t, err)

	out, err := n.Execute(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "twin-1", out.Data[telemetry.MetaTwinID])
	assert.Equal(t, "asset-9", out.Data[telemetry.MetaRootAssetID])
}

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) PublishToStream(_ context.Context, subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func TestPublishNodeWritesTwinUpdate(t *testing.T) {
	pub := &fakePublisher{}
	cfg := json.RawMessage(`{"subject": "twin.updates.{tenantId}.{twinId}"}`)

	r := NewRegistry()
	n, err := r.Create(TypePublish, cfg, Dependencies{Publisher: pub})
	require.NoError(t, err)

	_, err = n.Execute(context.Background(), testMessage())
	require.NoError(t, err)

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "twin.updates.t-1.twin-1", pub.subjects[0])

	var update TwinUpdate
	require.NoError(t, json.Unmarshal(pub.payloads[0], &update))
	assert.Equal(t, "twin-1", update.TwinID)
	assert.Equal(t, "ds-1", update.DataSourceID)
	assert.Equal(t, 2175.4, update.Data["p"])
}

func TestPublishNodeSkipsDroppedMessage(t *testing.T) {
	pub := &fakePublisher{}
	cfg := json.RawMessage(`{"subject": "twin.updates"}`)

	r := NewRegistry()
	n, err := r.Create(TypePublish, cfg, Dependencies{Publisher: pub})
	require.NoError(t, err)

	msg := testMessage()
	msg.Dropped = true

	out, err := n.Execute(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, out.Dropped)
	assert.Empty(t, pub.subjects)
}

func TestPublishNodeRequiresSubjectAndPublisher(t *testing.T) {
	r := NewRegistry()

	_, err := r.Create(TypePublish, json.RawMessage(`{}`), Dependencies{Publisher: &fakePublisher{}})
	assert.Error(t, err)

	_, err = r.Create(TypePublish, json.RawMessage(`{"subject": "s"}`), Dependencies{})
	assert.Error(t, err)
}
