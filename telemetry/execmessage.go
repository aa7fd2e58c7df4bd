package telemetry

import (
	"encoding/json"
	"time"
)

// ExecMessage is the single message object a rule chain operates on. Nodes
// receive one ExecMessage and return one (or an error); the engine owns all
// control flow between them.
//
// Data and Metadata are owned by the current node during Execute; nodes that
// modify them must do so on the copy returned by Clone so that predecessor
// outputs retained for provenance stay stable.
type ExecMessage struct {
	// Origin fields copied from the envelope
	DataSourceID string    `json:"dataSourceId"`
	GatewayID    string    `json:"gatewayId"`
	TenantID     string    `json:"tenantId"`
	Timestamp    time.Time `json:"timestamp"`

	// Data is the working telemetry payload, transformed in place by
	// transform nodes.
	Data map[string]any `json:"data"`

	// Metadata accumulates resolved mapping context (twin id, profile
	// names, chain source) and anything nodes choose to attach.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Dropped marks a message filtered out mid-chain. Side-effect nodes
	// observe the flag and skip their output while still counting as
	// executed for completeness accounting.
	Dropped bool `json:"dropped,omitempty"`
}

// NewExecMessage builds the initial chain message from a validated envelope.
func NewExecMessage(env *Envelope) *ExecMessage {
	data := make(map[string]any, len(env.Data))
	for k, v := range env.Data {
		data[k] = v
	}
	meta := make(map[string]any, len(env.Metadata)+4)
	for k, v := range env.Metadata {
		meta[k] = v
	}
	return &ExecMessage{
		DataSourceID: env.DataSourceID,
		GatewayID:    env.GatewayID,
		TenantID:     env.TenantID,
		Timestamp:    env.Timestamp,
		Data:         data,
		Metadata:     meta,
	}
}

// Clone returns a deep copy of the message. Map values are scalars per the
// envelope schema, so a per-map copy is sufficient.
func (m *ExecMessage) Clone() *ExecMessage {
	clone := *m
	clone.Data = make(map[string]any, len(m.Data))
	for k, v := range m.Data {
		clone.Data[k] = v
	}
	clone.Metadata = make(map[string]any, len(m.Metadata))
	for k, v := range m.Metadata {
		clone.Metadata[k] = v
	}
	return &clone
}

// SetMeta attaches one metadata entry, allocating the map if needed.
func (m *ExecMessage) SetMeta(key string, value any) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
}

// Env returns the evaluation environment exposed to chain expressions. The
// working payload appears as `data`, accumulated metadata as `metadata`,
// and the origin fields by name.
func (m *ExecMessage) Env() map[string]any {
	return map[string]any{
		"data":         m.Data,
		"metadata":     m.Metadata,
		"dataSourceId": m.DataSourceID,
		"gatewayId":    m.GatewayID,
		"tenantId":     m.TenantID,
		"timestamp":    m.Timestamp,
	}
}

// MarshalPayload serializes the message for persistence in an execution
// record.
func (m *ExecMessage) MarshalPayload() json.RawMessage {
	b, err := json.Marshal(m)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
