// Package telemetry defines the inbound telemetry envelope and the execution
// message that flows through a rule chain.
//
// The envelope is produced externally by the protocol-ingestion layer (one
// JSON object per wire message) and is immutable once parsed. The execution
// message wraps the envelope payload together with resolved mapping metadata
// and accumulates per-node provenance as the chain runs.
package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/diazhh/petroedge-sub003/errors"
)

// Envelope is one raw telemetry event as received from the broker topic.
type Envelope struct {
	DataSourceID string         `json:"dataSourceId"`
	GatewayID    string         `json:"gatewayId"`
	TenantID     string         `json:"tenantId"`
	Timestamp    time.Time      `json:"timestamp"`
	Data         map[string]any `json:"data"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// envelopeSchema validates the wire shape before any field is trusted.
// Scalar-only data values are enforced here rather than in code.
const envelopeSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["dataSourceId", "gatewayId", "tenantId", "timestamp", "data"],
	"properties": {
		"dataSourceId": {"type": "string", "format": "uuid"},
		"gatewayId": {"type": "string", "minLength": 1},
		"tenantId": {"type": "string", "format": "uuid"},
		"timestamp": {"type": "string", "format": "date-time"},
		"data": {
			"type": "object",
			"minProperties": 1,
			"additionalProperties": {
				"type": ["number", "string", "boolean"]
			}
		},
		"metadata": {"type": "object"}
	}
}`

var compiledEnvelopeSchema = gojsonschema.NewStringLoader(envelopeSchema)

// ParseEnvelope validates raw bytes against the envelope schema and decodes
// them. Schema violations and malformed JSON both classify as invalid: the
// consumer drops such messages without retry.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	result, err := gojsonschema.Validate(compiledEnvelopeSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, errors.WrapInvalid(errors.ErrParsingFailed, "telemetry", "ParseEnvelope", "load envelope json")
	}
	if !result.Valid() {
		detail := ""
		if len(result.Errors()) > 0 {
			detail = result.Errors()[0].String()
		}
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrSchemaViolation, detail),
			"telemetry", "ParseEnvelope", "validate envelope shape")
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.WrapInvalid(err, "telemetry", "ParseEnvelope", "decode envelope")
	}
	return &env, nil
}

// Validate re-checks envelope fields after decoding. Used by tests and by
// callers constructing envelopes programmatically.
func (e *Envelope) Validate() error {
	switch {
	case e.DataSourceID == "":
		return errors.Wrap(errors.ErrInvalidEnvelope, "telemetry", "Validate", "dataSourceId missing")
	case e.TenantID == "":
		return errors.Wrap(errors.ErrInvalidEnvelope, "telemetry", "Validate", "tenantId missing")
	case e.GatewayID == "":
		return errors.Wrap(errors.ErrInvalidEnvelope, "telemetry", "Validate", "gatewayId missing")
	case e.Timestamp.IsZero():
		return errors.Wrap(errors.ErrInvalidEnvelope, "telemetry", "Validate", "timestamp missing")
	case len(e.Data) == 0:
		return errors.Wrap(errors.ErrInvalidEnvelope, "telemetry", "Validate", "data empty")
	}
	return nil
}
