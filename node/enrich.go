package node

import (
	"context"
	"encoding/json"

	"github.com/diazhh/petroedge-sub003/telemetry"
)

// EnrichConfig selects which resolution metadata is folded into the payload.
type EnrichConfig struct {
	// Keys lists metadata entries to copy into data. Empty means the
	// standard twin-addressing set.
	Keys []string `json:"keys,omitempty"`
}

// defaultEnrichKeys is the twin-addressing context every sink document needs.
var defaultEnrichKeys = []string{
	telemetry.MetaTwinID,
	telemetry.MetaRootAssetID,
	telemetry.MetaDeviceProfileID,
}

// enrichNode copies resolved mapping context from metadata into the working
// payload, making it part of the document a downstream publish node emits.
type enrichNode struct {
	keys []string
}

func newEnrichNode(config json.RawMessage, _ Dependencies) (Node, error) {
	var cfg EnrichConfig
	if len(config) > 0 {
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, invalidNodeConfig(TypeEnrich, err)
		}
	}
	keys := cfg.Keys
	if len(keys) == 0 {
		keys = defaultEnrichKeys
	}
	return &enrichNode{keys: keys}, nil
}

func (n *enrichNode) Type() string { return TypeEnrich }

func (n *enrichNode) Execute(_ context.Context, msg *telemetry.ExecMessage) (*telemetry.ExecMessage, error) {
	out := msg.Clone()
	for _, key := range n.keys {
		if value, ok := out.Metadata[key]; ok {
			out.Data[key] = value
		}
	}
	return out, nil
}
