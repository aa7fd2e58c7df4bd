package node

import (
	"context"
	"encoding/json"
	"time"

	"github.com/diazhh/petroedge-sub003/telemetry"
)

// IngressConfig configures the chain entry node.
type IngressConfig struct {
	// TriggerType labels the record provenance; defaults to "telemetry".
	TriggerType string `json:"triggerType,omitempty"`
}

// ingressNode marks the single entry point of a chain. It stamps the chain
// start time and otherwise passes the seeded message through unchanged.
type ingressNode struct {
	config IngressConfig
}

func newIngressNode(config json.RawMessage, _ Dependencies) (Node, error) {
	n := &ingressNode{config: IngressConfig{TriggerType: "telemetry"}}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &n.config); err != nil {
			return nil, invalidNodeConfig(TypeIngress, err)
		}
		if n.config.TriggerType == "" {
			n.config.TriggerType = "telemetry"
		}
	}
	return n, nil
}

func (n *ingressNode) Type() string { return TypeIngress }

func (n *ingressNode) Execute(_ context.Context, msg *telemetry.ExecMessage) (*telemetry.ExecMessage, error) {
	out := msg.Clone()
	out.SetMeta(telemetry.MetaIngestedAt, time.Now().UTC().Format(time.RFC3339Nano))
	return out, nil
}
